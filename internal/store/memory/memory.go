package memory

import (
	"context"
	"errors"
	"math/rand"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"billdesk/backend/internal/store"
)

var errConflict = errors.New("memory: read set changed before commit")

type document struct {
	data    map[string]any
	version uint64
}

// Store is an in-process document store. Transactions read committed
// versions, buffer writes and validate their read set under the write lock
// at commit, retrying on conflict.
type Store struct {
	mu          sync.RWMutex
	docs        map[string]document
	seq         uint64
	clock       func() time.Time
	maxAttempts int
	logger      *zap.Logger
}

type Option func(*Store)

func WithClock(clock func() time.Time) Option {
	return func(s *Store) {
		if clock != nil {
			s.clock = clock
		}
	}
}

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

func New(opts ...Option) *Store {
	s := &Store{
		docs:        map[string]document{},
		clock:       time.Now,
		maxAttempts: store.DefaultMaxAttempts,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Seed writes documents directly, outside any transaction.
func (s *Store) Seed(docs map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock()
	for path, data := range docs {
		if _, _, err := store.SplitDocPath(path); err != nil {
			return err
		}
		encoded, err := store.Encode(data)
		if err != nil {
			return err
		}
		next, err := store.ApplySet(nil, encoded, false, now)
		if err != nil {
			return err
		}
		s.seq++
		s.docs[path] = document{data: next, version: s.seq}
	}
	return nil
}

func (s *Store) Get(_ context.Context, path string) (*store.Snapshot, error) {
	snap, _, err := s.read(path)
	return snap, err
}

func (s *Store) List(_ context.Context, collection string) ([]*store.Snapshot, error) {
	if !store.ValidCollection(collection) {
		return nil, store.ErrInvalidPath
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*store.Snapshot{}
	for path, doc := range s.docs {
		parent, id, err := store.SplitDocPath(path)
		if err != nil || parent != collection {
			continue
		}
		out = append(out, &store.Snapshot{Path: path, ID: id, Exists: true, Data: store.CloneMap(doc.data)})
	}
	slices.SortFunc(out, func(a, b *store.Snapshot) int {
		switch {
		case a.Path < b.Path:
			return -1
		case a.Path > b.Path:
			return 1
		}
		return 0
	})
	return out, nil
}

func (s *Store) Query(ctx context.Context, collection string, q store.Query) ([]*store.Snapshot, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	out, err := s.List(ctx, collection)
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(out, q.Compare)
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (s *Store) RunTransaction(ctx context.Context, fn store.TxFunc) error {
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		t := &tx{store: s, reads: map[string]uint64{}}
		if err := fn(ctx, t); err != nil {
			return err
		}
		err := s.commit(t)
		if err == nil {
			return nil
		}
		if !errors.Is(err, errConflict) {
			return err
		}
		s.logger.Debug("memory transaction conflict", zap.Int("attempt", attempt))
		if attempt < s.maxAttempts {
			if err := backoff(ctx, attempt); err != nil {
				return err
			}
		}
	}
	return store.ErrAborted
}

func (s *Store) Close() error {
	return nil
}

func (s *Store) read(path string) (*store.Snapshot, uint64, error) {
	_, id, err := store.SplitDocPath(path)
	if err != nil {
		return nil, 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[path]
	if !ok {
		return &store.Snapshot{Path: path, ID: id}, 0, nil
	}
	return &store.Snapshot{Path: path, ID: id, Exists: true, Data: store.CloneMap(doc.data)}, doc.version, nil
}

// commit validates the read set and applies the buffered writes as one unit.
// Nothing is installed unless every write applies cleanly.
func (s *Store) commit(t *tx) error {
	mutations := t.Mutations()
	s.mu.Lock()
	defer s.mu.Unlock()

	t.mu.Lock()
	for path, version := range t.reads {
		if s.docs[path].version != version {
			t.mu.Unlock()
			return errConflict
		}
	}
	t.mu.Unlock()
	if len(mutations) == 0 {
		return nil
	}

	type staged struct {
		data   map[string]any
		exists bool
	}
	now := s.clock()
	pending := map[string]*staged{}
	order := []string{}
	for _, m := range mutations {
		cur, ok := pending[m.Path]
		if !ok {
			doc, exists := s.docs[m.Path]
			cur = &staged{data: doc.data, exists: exists}
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
			delete(s.docs, path)
			continue
		}
		s.seq++
		s.docs[path] = document{data: st.data, version: s.seq}
	}
	return nil
}

func backoff(ctx context.Context, attempt int) error {
	wait := time.Duration(rand.Intn(attempt*2)+1) * time.Millisecond
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type tx struct {
	store.WriteBuffer
	store *Store
	mu    sync.Mutex
	reads map[string]uint64
}

func (t *tx) Get(_ context.Context, path string) (*store.Snapshot, error) {
	if err := t.CheckRead(); err != nil {
		return nil, err
	}
	snap, version, err := t.store.read(path)
	if err != nil {
		return nil, err
	}
	t.mu.Lock()
	if _, seen := t.reads[path]; !seen {
		t.reads[path] = version
	}
	t.mu.Unlock()
	return snap, nil
}
