package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"pastecap/cfg"
	"pastecap/svc/cache"
	"pastecap/svc/db"
	"pastecap/svc/svc"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

var envLoadOnce sync.Once

func loadTestEnv() {
	envLoadOnce.Do(func() {
		for _, p := range []string{".env.test", "../.env.test", "../../.env.test"} {
			if absPath, err := filepath.Abs(p); err == nil {
				if _, err := os.Stat(absPath); err == nil {
					if err := godotenv.Load(absPath); err == nil {
						return
					}
				}
			}
		}
	})
}

func createTestConfig() *cfg.Cfg {
	loadTestEnv()
	return &cfg.Cfg{
		Port:           "8000",
		Environment:    "development",
		LogLevel:       "error",
		StoreBackend:   cfg.BackendSQLite,
		DBQueryTimeout: 5 * time.Second,
		LRUCacheSize:   100,
		CacheTTL:       time.Minute,
		ContextTimeout: 5 * time.Second,
		AllowedOrigins: []string{"*"},
	}
}

func createTestDB(t *testing.T) *db.SQLite {
	t.Helper()
	sqlDB, err := db.NewSQLiteWithConfig(filepath.Join(t.TempDir(), "api.db"), 16, 16, 10*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { sqlDB.Close() })
	return sqlDB
}

func setupTestServer(t *testing.T, c *cfg.Cfg) *httptest.Server {
	t.Helper()
	sqlDB := createTestDB(t)
	lru, err := cache.NewLRU(c.LRUCacheSize)
	if err != nil {
		t.Fatal(err)
	}
	pasteSvc := svc.NewPaste(sqlDB, lru, zerolog.Nop(), svc.WithCacheTTL(c.CacheTTL))
	ts := httptest.NewServer(NewServer(c, pasteSvc, sqlDB))
	t.Cleanup(func() {
		ts.Close()
		pasteSvc.Shutdown()
	})
	return ts
}

func postJSON(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url+"/pastes", "application/json", bytes.NewBufferString(body))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func createPaste(t *testing.T, url, body string) CreateResp {
	t.Helper()
	resp := postJSON(t, url, body)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d, want 201", resp.StatusCode)
	}
	var out CreateResp
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	return out
}

func get(t *testing.T, url string) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}
