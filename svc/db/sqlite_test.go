package db

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"pastecap/pkg/domain"

	"github.com/pkg/errors"
)

func newTestSQLite(t *testing.T) *SQLite {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pastes.db")
	s, err := NewSQLiteWithConfig(path, 16, 16, 10*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func i64(v int64) *int64 { return &v }

func testPaste(id string, now time.Time, ttl time.Duration, maxViews *int64) *domain.Paste {
	p := &domain.Paste{
		ID:        id,
		Content:   "hello " + id,
		CreatedAt: now,
		MaxViews:  maxViews,
	}
	if ttl > 0 {
		exp := now.Add(ttl)
		p.ExpiresAt = &exp
	}
	return p
}

func TestSQLiteCreateGet(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	in := testPaste("aaaaaaaaaa1", now, time.Hour, i64(3))
	if err := s.Create(ctx, in); err != nil {
		t.Fatalf("Create: %v", err)
	}
	got, err := s.Get(ctx, "aaaaaaaaaa1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Content != in.Content || got.Views != 0 {
		t.Errorf("got %+v", got)
	}
	if !got.CreatedAt.Equal(now) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, now)
	}
	if got.ExpiresAt == nil || !got.ExpiresAt.Equal(now.Add(time.Hour)) {
		t.Errorf("ExpiresAt = %v", got.ExpiresAt)
	}
	if got.MaxViews == nil || *got.MaxViews != 3 {
		t.Errorf("MaxViews = %v", got.MaxViews)
	}

	exists, err := s.Exists(ctx, "aaaaaaaaaa1")
	if err != nil || !exists {
		t.Errorf("Exists = %v, %v", exists, err)
	}
}

func TestSQLiteOptionalFieldsNull(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	if err := s.Create(ctx, testPaste("nolimits000", time.Now(), 0, nil)); err != nil {
		t.Fatal(err)
	}
	got, err := s.Get(ctx, "nolimits000")
	if err != nil {
		t.Fatal(err)
	}
	if got.ExpiresAt != nil || got.MaxViews != nil {
		t.Errorf("expected nil optional fields, got %+v", got)
	}
}

func TestSQLiteGetMissing(t *testing.T) {
	s := newTestSQLite(t)
	_, err := s.Get(context.Background(), "doesnotexst")
	if !errors.Is(err, domain.ErrPasteNotFound) {
		t.Fatalf("err = %v, want ErrPasteNotFound", err)
	}
	exists, err := s.Exists(context.Background(), "doesnotexst")
	if err != nil || exists {
		t.Errorf("Exists = %v, %v", exists, err)
	}
}

func TestSQLiteDuplicateIDIsStorageError(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	p := testPaste("duplicate00", time.Now(), 0, nil)
	if err := s.Create(ctx, p); err != nil {
		t.Fatal(err)
	}
	err := s.Create(ctx, testPaste("duplicate00", time.Now(), 0, nil))
	var se *domain.StorageErr
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want StorageErr", err)
	}
}

func TestSQLiteIncrViewsRespectsLimit(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	now := time.Now()
	if err := s.Create(ctx, testPaste("limited0000", now, 0, i64(2))); err != nil {
		t.Fatal(err)
	}
	for want := int64(1); want <= 2; want++ {
		p, err := s.IncrViews(ctx, "limited0000", now)
		if err != nil {
			t.Fatalf("view %d: %v", want, err)
		}
		if p.Views != want {
			t.Errorf("Views = %d, want %d", p.Views, want)
		}
	}
	if _, err := s.IncrViews(ctx, "limited0000", now); !errors.Is(err, domain.ErrPasteNotFound) {
		t.Fatalf("third view: err = %v, want ErrPasteNotFound", err)
	}
	got, _ := s.Get(ctx, "limited0000")
	if got.Views != 2 {
		t.Errorf("denied consume must not increment, views = %d", got.Views)
	}
}

func TestSQLiteIncrViewsRespectsExpiry(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)
	if err := s.Create(ctx, testPaste("expiring000", now, 5*time.Second, nil)); err != nil {
		t.Fatal(err)
	}
	if _, err := s.IncrViews(ctx, "expiring000", now.Add(5*time.Second)); err != nil {
		t.Fatalf("read at the deadline should succeed: %v", err)
	}
	if _, err := s.IncrViews(ctx, "expiring000", now.Add(5*time.Second+time.Millisecond)); !errors.Is(err, domain.ErrPasteNotFound) {
		t.Fatalf("err = %v, want ErrPasteNotFound", err)
	}
}

func TestSQLiteIncrViewsMissing(t *testing.T) {
	s := newTestSQLite(t)
	if _, err := s.IncrViews(context.Background(), "nothinghere", time.Now()); !errors.Is(err, domain.ErrPasteNotFound) {
		t.Fatalf("err = %v, want ErrPasteNotFound", err)
	}
}

func TestSQLiteIncrViewsConcurrent(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	now := time.Now()
	if err := s.Create(ctx, testPaste("onceonly000", now, 0, i64(1))); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	var success, denied, failed int64
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.IncrViews(ctx, "onceonly000", now)
			switch {
			case err == nil:
				atomic.AddInt64(&success, 1)
			case errors.Is(err, domain.ErrPasteNotFound):
				atomic.AddInt64(&denied, 1)
			default:
				atomic.AddInt64(&failed, 1)
				t.Logf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if success != 1 {
		t.Errorf("%d consumes succeeded, want exactly 1", success)
	}
	if failed != 0 {
		t.Errorf("%d consumes failed with storage errors", failed)
	}
	got, _ := s.Get(ctx, "onceonly000")
	if got.Views != 1 {
		t.Errorf("views = %d, want 1", got.Views)
	}
}

func TestSQLiteCheckpoint(t *testing.T) {
	s := newTestSQLite(t)
	if err := s.Create(context.Background(), testPaste("checkpoint0", time.Now(), 0, nil)); err != nil {
		t.Fatal(err)
	}
	if err := s.Checkpoint(context.Background()); err != nil {
		t.Fatalf("Checkpoint: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := s.StartWALMaintenance(ctx, time.Hour)
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("WAL maintenance did not stop")
	}
}

func TestSQLiteInMemory(t *testing.T) {
	s, err := NewSQLite(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if err := s.Create(context.Background(), testPaste("inmemory000", time.Now(), 0, nil)); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Get(context.Background(), "inmemory000"); err != nil {
		t.Fatalf("pooled connections must share the in-memory db: %v", err)
	}
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}

func TestBuildDSN(t *testing.T) {
	if got := buildDSN(":memory:"); got != ":memory:" {
		t.Errorf("memory dsn = %q", got)
	}
	if got := buildDSN("data/p.db"); got != "data/p.db?_busy_timeout=5000&_journal_mode=WAL&_synchronous=FULL" {
		t.Errorf("file dsn = %q", got)
	}
	if got := buildDSN("file:p.db?cache=shared"); got != "file:p.db?cache=shared&_busy_timeout=5000&_journal_mode=WAL&_synchronous=FULL" {
		t.Errorf("dsn with params = %q", got)
	}
}
