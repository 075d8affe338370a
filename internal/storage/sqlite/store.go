package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/tjfontaine/webapi-sample/internal/storage"
)

// Store is a SQLite-backed request journal.
type Store struct {
	db *sqlx.DB
}

var _ storage.Journal = (*Store)(nil)

// row mirrors the journal table; times are stored as unix nanoseconds.
type row struct {
	ID          int64  `db:"id"`
	RequestID   string `db:"request_id"`
	Interceptor string `db:"interceptor"`
	Method      string `db:"method"`
	Path        string `db:"path"`
	Status      int    `db:"status"`
	Size        int    `db:"size"`
	DurationNS  int64  `db:"duration_ns"`
	Error       string `db:"error"`
	HaltedBy    string `db:"halted_by"`
	CreatedAt   int64  `db:"created_at"`
}

// New opens (or creates) the database at dsn and initializes the schema.
func New(dsn string) (*Store, error) {
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	store := &Store{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

func (s *Store) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS request_journal (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			request_id TEXT NOT NULL,
			interceptor TEXT NOT NULL,
			method TEXT NOT NULL,
			path TEXT NOT NULL,
			status INTEGER NOT NULL DEFAULT 0,
			size INTEGER NOT NULL DEFAULT 0,
			duration_ns INTEGER NOT NULL DEFAULT 0,
			error TEXT NOT NULL DEFAULT '',
			halted_by TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_request_journal_created ON request_journal(created_at)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Append(ctx context.Context, e storage.Entry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	_, err := s.db.NamedExecContext(ctx, `INSERT INTO request_journal
		(request_id, interceptor, method, path, status, size, duration_ns, error, halted_by, created_at)
		VALUES (:request_id, :interceptor, :method, :path, :status, :size, :duration_ns, :error, :halted_by, :created_at)`,
		row{
			RequestID:   e.RequestID,
			Interceptor: e.Interceptor,
			Method:      e.Method,
			Path:        e.Path,
			Status:      e.Status,
			Size:        e.Size,
			DurationNS:  int64(e.Duration),
			Error:       e.Error,
			HaltedBy:    e.HaltedBy,
			CreatedAt:   e.CreatedAt.UnixNano(),
		})
	if err != nil {
		return fmt.Errorf("insert journal entry: %w", err)
	}
	return nil
}

func (s *Store) Recent(ctx context.Context, limit int) ([]storage.Entry, error) {
	if limit <= 0 {
		limit = storage.DefaultRecentLimit
	}

	var rows []row
	if err := s.db.SelectContext(ctx, &rows,
		`SELECT * FROM request_journal ORDER BY id DESC LIMIT ?`, limit); err != nil {
		return nil, fmt.Errorf("query journal: %w", err)
	}

	out := make([]storage.Entry, 0, len(rows))
	for _, r := range rows {
		out = append(out, storage.Entry{
			RequestID:   r.RequestID,
			Interceptor: r.Interceptor,
			Method:      r.Method,
			Path:        r.Path,
			Status:      r.Status,
			Size:        r.Size,
			Duration:    time.Duration(r.DurationNS),
			Error:       r.Error,
			HaltedBy:    r.HaltedBy,
			CreatedAt:   time.Unix(0, r.CreatedAt),
		})
	}
	return out, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
