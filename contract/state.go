package contract

import (
	"context"
	"errors"
)

// ErrKeyNotFound is returned by State.Get for absent keys.
var ErrKeyNotFound = errors.New("state key not found")

// State is the key/value store behind the engine. Keys are binary strings
// built in keys.go and values are dao codec records.
type State interface {
	Get(ctx context.Context, key []byte) ([]byte, error)
	// Scan calls fn for every key starting with prefix, in key order.
	Scan(ctx context.Context, prefix []byte, fn func(key, value []byte) error) error
	// Commit applies every write of the batch or none of them.
	Commit(ctx context.Context, b *Batch) error
	Close() error
}

type mutation struct {
	key    []byte
	value  []byte
	delete bool
}

// Batch collects the writes of one operation.
type Batch struct {
	ops []mutation
}

func (b *Batch) Set(key, value []byte) {
	b.ops = append(b.ops, mutation{key: key, value: value})
}

func (b *Batch) Delete(key []byte) {
	b.ops = append(b.ops, mutation{key: key, delete: true})
}

func (b *Batch) Len() int { return len(b.ops) }
