package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pastecap/cfg"
	"pastecap/svc/api"
	"pastecap/svc/cache"
	"pastecap/svc/db"
	"pastecap/svc/svc"
	"pastecap/svc/util"

	"github.com/joho/godotenv"
)

type store interface {
	svc.Store
	api.Pinger
	io.Closer
}

func main() {
	// a missing .env is fine; the environment may already be set
	_ = godotenv.Load()

	if len(os.Args) > 1 && os.Args[1] == "-health" {
		os.Exit(probe())
	}

	c, err := cfg.Load()
	if err != nil {
		util.InitLog("info", false)
		util.Fatal().Err(err).Msg("failed to load configuration")
	}
	util.InitLog(c.LogLevel, c.Environment == "development")
	if err := cfg.Validate(c); err != nil {
		util.Fatal().Err(err).Msg("invalid configuration")
	}
	defer c.Wipe()
	util.Info().
		Str("environment", c.Environment).
		Str("backend", c.StoreBackend).
		Msg("starting pastecap")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, walDone, err := openStore(ctx, c)
	if err != nil {
		util.Fatal().Err(err).Str("backend", c.StoreBackend).Msg("failed to initialize store")
	}
	defer st.Close()

	var lruCache *cache.LRU
	if c.LRUCacheSize > 0 {
		lruCache, err = cache.NewLRU(c.LRUCacheSize)
		if err != nil {
			util.Fatal().Err(err).Msg("failed to create LRU cache")
		}
		util.Info().Int("size", c.LRUCacheSize).Dur("ttl", c.CacheTTL).Msg("LRU cache initialized")
	}

	pasteSvc := svc.NewPaste(st, lruCache, util.GetLogger(), svc.WithCacheTTL(c.CacheTTL))
	server := api.NewServer(c, pasteSvc, st)

	go func() {
		if err := server.Start(); err != nil {
			util.Fatal().Err(err).Msg("server failed")
		}
	}()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	util.Info().Msg("shutting down gracefully...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		util.Error().Err(err).Msg("server shutdown error")
	}
	pasteSvc.Shutdown()
	cancel()
	if walDone != nil {
		select {
		case <-walDone:
			util.Info().Msg("WAL maintenance stopped")
		case <-time.After(6 * time.Second):
			util.Warn().Msg("WAL maintenance did not stop gracefully")
		}
	}
	util.Info().Msg("shutdown complete")
}

// openStore returns the configured backend. For sqlite it also starts WAL
// maintenance, whose done channel closes once ctx is cancelled.
func openStore(ctx context.Context, c *cfg.Cfg) (store, <-chan struct{}, error) {
	switch c.StoreBackend {
	case cfg.BackendRedis:
		rdb, err := db.NewRedis(c.RedisURL, c)
		if err != nil {
			return nil, nil, err
		}
		util.Info().Msg("redis connected")
		return rdb, nil, nil
	default:
		sqlDB, err := db.NewSQLiteWithConfig(c.DatabasePath, c.DBMaxOpenConns, c.DBMaxIdleConns, c.DBQueryTimeout)
		if err != nil {
			return nil, nil, err
		}
		util.Info().Str("path", c.DatabasePath).Msg("database initialized")
		done := sqlDB.StartWALMaintenance(ctx, c.WALCheckpointInterval)
		util.Info().Dur("interval", c.WALCheckpointInterval).Msg("WAL maintenance worker started")
		return sqlDB, done, nil
	}
}

// probe backs the container health check: exit 0 when the store answers.
func probe() int {
	c, err := cfg.Load()
	if err != nil {
		return 1
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	var st interface {
		api.Pinger
		io.Closer
	}
	if c.StoreBackend == cfg.BackendRedis {
		st, err = db.NewRedis(c.RedisURL, c)
	} else {
		st, err = db.NewSQLite(c.DatabasePath)
	}
	if err != nil {
		return 1
	}
	defer st.Close()
	if err := st.Ping(ctx); err != nil {
		return 1
	}
	return 0
}
