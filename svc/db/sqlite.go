package db

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"pastecap/metrics"
	"pastecap/pkg/domain"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

const (
	defaultMaxOpenConns = 25
	defaultMaxIdleConns = 10
	defaultQueryTimeout = 5 * time.Second
	pasteColumns        = "id, content, created_at, expires_at, max_views, views"
)

type SQLite struct {
	db           *sql.DB
	cb           *breaker
	queryTimeout time.Duration
}

func NewSQLite(path string) (*SQLite, error) {
	return NewSQLiteWithConfig(path, defaultMaxOpenConns, defaultMaxIdleConns, defaultQueryTimeout)
}

func NewSQLiteWithConfig(path string, maxOpenConns, maxIdleConns int, queryTimeout time.Duration) (*SQLite, error) {
	db, err := sql.Open("sqlite3", buildDSN(path))
	if err != nil {
		return nil, errors.Wrap(err, "failed to open db")
	}
	if path == ":memory:" {
		// every pooled connection would otherwise get its own empty database
		maxOpenConns, maxIdleConns = 1, 1
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(1 * time.Hour)
	db.SetConnMaxIdleTime(10 * time.Minute)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to ping db")
	}
	s := &SQLite{
		db:           db,
		cb:           newBreaker("sqlite"),
		queryTimeout: queryTimeout,
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "migration failed")
	}
	return s, nil
}

// buildDSN puts connection-level pragmas in the DSN so that every pooled
// connection gets them, not just the one that happened to run migrate.
func buildDSN(path string) string {
	if path == ":memory:" {
		return path
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_busy_timeout=5000&_journal_mode=WAL&_synchronous=FULL"
}

func (s *SQLite) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS pastes (
		id TEXT PRIMARY KEY,
		content TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		expires_at INTEGER,
		max_views INTEGER,
		views INTEGER NOT NULL DEFAULT 0,
		CHECK (max_views IS NULL OR max_views >= 1),
		CHECK (expires_at IS NULL OR expires_at > created_at)
	);
	`
	_, err := s.db.Exec(query)
	return err
}

func (s *SQLite) Create(ctx context.Context, p *domain.Paste) error {
	if err := s.cb.allow(); err != nil {
		return domain.Storage("create", err)
	}
	queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	q := `INSERT INTO pastes (` + pasteColumns + `) VALUES (?, ?, ?, ?, ?, 0)`
	_, err := s.db.ExecContext(queryCtx, q,
		p.ID, p.Content, toMillis(p.CreatedAt), nullMillis(p.ExpiresAt), nullInt(p.MaxViews),
	)
	s.cb.record(err)
	if err != nil {
		metrics.StorageErrors.WithLabelValues("create").Inc()
		return domain.Storage("create", err)
	}
	p.Views = 0
	return nil
}

func (s *SQLite) Get(ctx context.Context, id string) (*domain.Paste, error) {
	if err := s.cb.allow(); err != nil {
		return nil, domain.Storage("get", err)
	}
	queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	q := `SELECT ` + pasteColumns + ` FROM pastes WHERE id = ?`
	p, err := scanPaste(s.db.QueryRowContext(queryCtx, q, id))
	s.cb.record(err)
	if err == sql.ErrNoRows {
		return nil, domain.ErrPasteNotFound
	}
	if err != nil {
		metrics.StorageErrors.WithLabelValues("get").Inc()
		return nil, domain.Storage("get", err)
	}
	return p, nil
}

// IncrViews consumes one view in a single statement, and only while the paste
// is unexpired at now and under its view limit. A denied consume is reported
// as ErrPasteNotFound, the same as a missing id.
func (s *SQLite) IncrViews(ctx context.Context, id string, now time.Time) (*domain.Paste, error) {
	if err := s.cb.allow(); err != nil {
		return nil, domain.Storage("incr views", err)
	}
	queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	q := `
	UPDATE pastes SET views = views + 1
	WHERE id = ?
		AND (expires_at IS NULL OR expires_at >= ?)
		AND (max_views IS NULL OR views < max_views)
	RETURNING ` + pasteColumns
	p, err := scanPaste(s.db.QueryRowContext(queryCtx, q, id, toMillis(now)))
	s.cb.record(err)
	if err == sql.ErrNoRows {
		return nil, domain.ErrPasteNotFound
	}
	if err != nil {
		metrics.StorageErrors.WithLabelValues("incr_views").Inc()
		return nil, domain.Storage("incr views", err)
	}
	return p, nil
}

func (s *SQLite) Exists(ctx context.Context, id string) (bool, error) {
	if err := s.cb.allow(); err != nil {
		return false, domain.Storage("exists", err)
	}
	queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	var exists int
	err := s.db.QueryRowContext(queryCtx, `SELECT 1 FROM pastes WHERE id = ? LIMIT 1`, id).Scan(&exists)
	s.cb.record(err)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		metrics.StorageErrors.WithLabelValues("exists").Inc()
		return false, domain.Storage("exists", err)
	}
	return exists == 1, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPaste(row rowScanner) (*domain.Paste, error) {
	var (
		p         domain.Paste
		createdAt int64
		expiresAt sql.NullInt64
		maxViews  sql.NullInt64
	)
	if err := row.Scan(&p.ID, &p.Content, &createdAt, &expiresAt, &maxViews, &p.Views); err != nil {
		return nil, err
	}
	p.CreatedAt = fromMillis(createdAt)
	if expiresAt.Valid {
		t := fromMillis(expiresAt.Int64)
		p.ExpiresAt = &t
	}
	if maxViews.Valid {
		v := maxViews.Int64
		p.MaxViews = &v
	}
	return &p, nil
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}
func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMillis(*t), Valid: true}
}
func nullInt(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}
