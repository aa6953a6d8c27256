package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrAlreadyExists  = errors.New("already exists")
	ErrAborted        = errors.New("transaction aborted: too much contention")
	ErrReadAfterWrite = errors.New("transaction reads must happen before writes")
	ErrInvalidPath    = errors.New("invalid document path")
)

// DefaultMaxAttempts bounds how many times a transaction function runs
// before RunTransaction gives up with ErrAborted.
const DefaultMaxAttempts = 5

// Snapshot is a point-in-time copy of one document. A missing document has
// Exists=false and nil Data.
type Snapshot struct {
	Path   string
	ID     string
	Exists bool
	Data   map[string]any
}

// DataTo decodes the document into v through its JSON form.
func (s *Snapshot) DataTo(v any) error {
	if s == nil || !s.Exists {
		return ErrNotFound
	}
	raw, err := json.Marshal(s.Data)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}

type Reader interface {
	Get(ctx context.Context, path string) (*Snapshot, error)
}

// Writer buffers mutations. Nothing is visible to other readers until the
// enclosing transaction commits.
type Writer interface {
	// Create fails the commit with ErrAlreadyExists if the document exists.
	Create(path string, data any) error
	// Set replaces the whole document.
	Set(path string, data any) error
	// SetMerge deep-merges data into the document, creating it if missing.
	SetMerge(path string, data any) error
	// Update changes the named fields of an existing document. Keys may be
	// dotted paths into nested maps. A missing document fails the commit
	// with ErrNotFound.
	Update(path string, fields map[string]any) error
	Delete(path string) error
}

type Tx interface {
	Reader
	Writer
}

type TxFunc func(ctx context.Context, tx Tx) error

type Store interface {
	Reader
	// List returns the documents directly under collection ordered by path.
	List(ctx context.Context, collection string) ([]*Snapshot, error)
	// Query returns one ordered page of the documents directly under
	// collection.
	Query(ctx context.Context, collection string, q Query) ([]*Snapshot, error)
	// RunTransaction runs fn until it commits without conflict or the attempt
	// budget is spent. An error from fn is returned unchanged and nothing is
	// written.
	RunTransaction(ctx context.Context, fn TxFunc) error
	Close() error
}

// SplitDocPath validates a document path such as "shops/s1/bills/b1" and
// returns its parent collection and id.
func SplitDocPath(path string) (collection string, id string, err error) {
	segments := strings.Split(path, "/")
	if len(segments)%2 != 0 {
		return "", "", ErrInvalidPath
	}
	for _, segment := range segments {
		if strings.TrimSpace(segment) == "" {
			return "", "", ErrInvalidPath
		}
	}
	idx := strings.LastIndex(path, "/")
	return path[:idx], path[idx+1:], nil
}

func ValidCollection(collection string) bool {
	segments := strings.Split(collection, "/")
	if len(segments)%2 != 1 {
		return false
	}
	for _, segment := range segments {
		if strings.TrimSpace(segment) == "" {
			return false
		}
	}
	return true
}

// Decode parses a stored JSON document keeping numbers as json.Number.
func Decode(raw []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	out := map[string]any{}
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}
