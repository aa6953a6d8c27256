package store

import (
	"sync"
	"time"
)

type MutationKind int

const (
	MutationCreate MutationKind = iota + 1
	MutationSet
	MutationSetMerge
	MutationUpdate
	MutationDelete
)

// Mutation is one buffered write of a transaction.
type Mutation struct {
	Kind MutationKind
	Path string
	Data map[string]any
}

// Apply computes the document state after m. current/exists describe the
// document before the write.
func (m Mutation) Apply(current map[string]any, exists bool, now time.Time) (map[string]any, bool, error) {
	switch m.Kind {
	case MutationCreate:
		if exists {
			return nil, false, ErrAlreadyExists
		}
		next, err := ApplySet(nil, m.Data, false, now)
		return next, true, err
	case MutationSet:
		next, err := ApplySet(nil, m.Data, false, now)
		return next, true, err
	case MutationSetMerge:
		next, err := ApplySet(current, m.Data, true, now)
		return next, true, err
	case MutationUpdate:
		if !exists {
			return nil, false, ErrNotFound
		}
		next, err := ApplyUpdate(current, m.Data, now)
		return next, true, err
	case MutationDelete:
		return nil, false, nil
	default:
		return current, exists, nil
	}
}

// WriteBuffer implements Writer by recording mutations in order. Once the
// first write is buffered, CheckRead reports ErrReadAfterWrite so that
// implementations can enforce the read-then-write discipline.
type WriteBuffer struct {
	mu        sync.Mutex
	mutations []Mutation
}

func (b *WriteBuffer) CheckRead() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.mutations) > 0 {
		return ErrReadAfterWrite
	}
	return nil
}

func (b *WriteBuffer) Mutations() []Mutation {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Mutation, len(b.mutations))
	copy(out, b.mutations)
	return out
}

func (b *WriteBuffer) Create(path string, data any) error {
	return b.add(MutationCreate, path, data)
}

func (b *WriteBuffer) Set(path string, data any) error {
	return b.add(MutationSet, path, data)
}

func (b *WriteBuffer) SetMerge(path string, data any) error {
	return b.add(MutationSetMerge, path, data)
}

func (b *WriteBuffer) Update(path string, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	return b.add(MutationUpdate, path, fields)
}

func (b *WriteBuffer) Delete(path string) error {
	return b.add(MutationDelete, path, nil)
}

func (b *WriteBuffer) add(kind MutationKind, path string, data any) error {
	if _, _, err := SplitDocPath(path); err != nil {
		return err
	}
	var encoded map[string]any
	if kind != MutationDelete {
		var err error
		encoded, err = Encode(data)
		if err != nil {
			return err
		}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.mutations = append(b.mutations, Mutation{Kind: kind, Path: path, Data: encoded})
	return nil
}
