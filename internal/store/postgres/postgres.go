package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"billdesk/backend/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	path       TEXT PRIMARY KEY,
	collection TEXT NOT NULL,
	data       JSONB NOT NULL,
	version    BIGINT NOT NULL DEFAULT 1,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS documents_collection_idx ON documents (collection, path);
`

// Store keeps every document as a JSONB row keyed by its path. Transactions
// run at SERIALIZABLE isolation and are retried on serialization failures.
type Store struct {
	db          *sql.DB
	clock       func() time.Time
	maxAttempts int
	logger      *zap.Logger
}

type Option func(*Store)

func WithMaxAttempts(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithClock(clock func() time.Time) Option {
	return func(s *Store) {
		if clock != nil {
			s.clock = clock
		}
	}
}

func New(ctx context.Context, databaseURL string, opts ...Option) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Store{
		db:          db,
		clock:       time.Now,
		maxAttempts: store.DefaultMaxAttempts,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Get(ctx context.Context, path string) (*store.Snapshot, error) {
	return getDocument(ctx, s.db, path, false)
}

func (s *Store) List(ctx context.Context, collection string) ([]*store.Snapshot, error) {
	if !store.ValidCollection(collection) {
		return nil, store.ErrInvalidPath
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT path, data FROM documents
		WHERE collection = $1
		ORDER BY path
	`, collection)
	if err != nil {
		return nil, err
	}
	return scanSnapshots(rows)
}

// Query sorts and limits in SQL so only the requested page leaves the
// database.
func (s *Store) Query(ctx context.Context, collection string, q store.Query) ([]*store.Snapshot, error) {
	if !store.ValidCollection(collection) {
		return nil, store.ErrInvalidPath
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}
	query, args := buildQuery(collection, q)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return scanSnapshots(rows)
}

func buildQuery(collection string, q store.Query) (string, []any) {
	args := []any{collection}
	var sb strings.Builder
	sb.WriteString("SELECT path, data FROM documents WHERE collection = $1 ORDER BY ")
	for _, o := range q.OrderBy {
		args = append(args, o.Field)
		expr := fmt.Sprintf("data->>$%d", len(args))
		switch o.As {
		case store.SortTime:
			expr = "(" + expr + ")::timestamptz"
		case store.SortNumber:
			expr = "(" + expr + ")::numeric"
		default:
			expr += ` COLLATE "C"`
		}
		dir := "ASC"
		if o.Descending {
			dir = "DESC"
		}
		fmt.Fprintf(&sb, "%s %s NULLS LAST, ", expr, dir)
	}
	sb.WriteString("path")
	if q.Limit > 0 {
		args = append(args, q.Limit)
		fmt.Fprintf(&sb, " LIMIT $%d", len(args))
	}
	return sb.String(), args
}

func scanSnapshots(rows *sql.Rows) ([]*store.Snapshot, error) {
	defer rows.Close()

	out := make([]*store.Snapshot, 0, 32)
	for rows.Next() {
		var path string
		var raw []byte
		if err := rows.Scan(&path, &raw); err != nil {
			return nil, err
		}
		data, err := store.Decode(raw)
		if err != nil {
			return nil, err
		}
		_, id, _ := store.SplitDocPath(path)
		out = append(out, &store.Snapshot{Path: path, ID: id, Exists: true, Data: data})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) RunTransaction(ctx context.Context, fn store.TxFunc) error {
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		err := s.runOnce(ctx, fn)
		if err == nil {
			return nil
		}
		if !isRetryable(err) {
			return err
		}
		s.logger.Debug("postgres transaction conflict", zap.Int("attempt", attempt), zap.Error(err))
		if attempt < s.maxAttempts {
			wait := time.Duration(rand.Intn(attempt*10)+1) * time.Millisecond
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}
	}
	return store.ErrAborted
}

func (s *Store) runOnce(ctx context.Context, fn store.TxFunc) error {
	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() {
		_ = pgTx.Rollback()
	}()

	t := &tx{pgTx: pgTx}
	if err := fn(ctx, t); err != nil {
		return err
	}
	if err := t.apply(ctx, s.clock()); err != nil {
		return err
	}
	return pgTx.Commit()
}

type tx struct {
	store.WriteBuffer
	pgTx *sql.Tx
	mu   sync.Mutex
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (t *tx) Get(ctx context.Context, path string) (*store.Snapshot, error) {
	if err := t.CheckRead(); err != nil {
		return nil, err
	}
	// One connection serves the transaction, so reads issued concurrently
	// by the read phase take turns on it.
	t.mu.Lock()
	defer t.mu.Unlock()
	return getDocument(ctx, t.pgTx, path, false)
}

func (t *tx) apply(ctx context.Context, now time.Time) error {
	type staged struct {
		data   map[string]any
		exists bool
	}
	pending := map[string]*staged{}
	order := []string{}
	for _, m := range t.Mutations() {
		cur, ok := pending[m.Path]
		if !ok {
			snap, err := getDocument(ctx, t.pgTx, m.Path, true)
			if err != nil {
				return err
			}
			cur = &staged{data: snap.Data, exists: snap.Exists}
			pending[m.Path] = cur
			order = append(order, m.Path)
		}
		next, exists, err := m.Apply(cur.data, cur.exists, now)
		if err != nil {
			return err
		}
		cur.data, cur.exists = next, exists
	}

	for _, path := range order {
		st := pending[path]
		if !st.exists {
			if _, err := t.pgTx.ExecContext(ctx, `DELETE FROM documents WHERE path = $1`, path); err != nil {
				return err
			}
			continue
		}
		raw, err := json.Marshal(st.data)
		if err != nil {
			return err
		}
		collection, _, _ := store.SplitDocPath(path)
		if _, err := t.pgTx.ExecContext(ctx, `
			INSERT INTO documents (path, collection, data, version, updated_at)
			VALUES ($1, $2, $3::jsonb, 1, $4)
			ON CONFLICT (path)
			DO UPDATE SET data = EXCLUDED.data, version = documents.version + 1, updated_at = EXCLUDED.updated_at
		`, path, collection, string(raw), now.UTC()); err != nil {
			return err
		}
	}
	return nil
}

func getDocument(ctx context.Context, q queryer, path string, forUpdate bool) (*store.Snapshot, error) {
	_, id, err := store.SplitDocPath(path)
	if err != nil {
		return nil, err
	}
	query := `SELECT data FROM documents WHERE path = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	var raw []byte
	if err := q.QueryRowContext(ctx, query, path).Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &store.Snapshot{Path: path, ID: id}, nil
		}
		return nil, err
	}
	data, err := store.Decode(raw)
	if err != nil {
		return nil, err
	}
	return &store.Snapshot{Path: path, ID: id, Exists: true, Data: data}, nil
}

// isRetryable reports serialization failures and deadlocks, the two
// outcomes of SERIALIZABLE isolation that a fresh attempt can resolve.
func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}
