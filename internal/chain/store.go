package chain

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Store.Get when no block exists at the index.
var ErrNotFound = errors.New("block not found")

// NextFunc builds the block that follows tail. tail is nil on an empty chain.
type NextFunc func(tail *Block) (*Block, error)

// Store is the durability layer behind a Ledger. MemoryStore, FileStore,
// SQLiteStore and PostgresStore implement it.
type Store interface {
	// Append reads the current tail, calls next with it and durably records
	// the returned block. The read and the write happen in one critical
	// section; when the write fails nothing is recorded.
	Append(ctx context.Context, next NextFunc) (*Block, error)

	// Blocks returns the full chain in index order.
	Blocks(ctx context.Context) ([]Block, error)

	// Get returns the block at the given index.
	Get(ctx context.Context, index int) (*Block, error)

	// Len returns the number of recorded blocks.
	Len(ctx context.Context) (int, error)
}
