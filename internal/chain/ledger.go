package chain

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jmerrifield20/ZakatLedger/internal/digest"
	"go.uber.org/zap"
)

var (
	// ErrInvalidInput is returned when a fingerprint is empty or malformed.
	// The store is never touched for such input.
	ErrInvalidInput = errors.New("invalid fingerprint")

	// ErrStorage wraps any failure of the durability layer.
	ErrStorage = errors.New("ledger storage failure")
)

// Ledger is the append-only, hash-linked donation chain. It owns block order
// and linkage; durability is delegated to its Store.
//
// Appends are serialised per Ledger. Reads go straight to the store and may
// run concurrently with each other and with an append.
type Ledger struct {
	mu     sync.Mutex
	store  Store
	now    func() time.Time
	logger *zap.Logger
}

// New creates a Ledger backed by store.
func New(store Store, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{store: store, now: time.Now, logger: logger}
}

// SetClock replaces the time source used to stamp CreatedAt.
func (l *Ledger) SetClock(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
}

// ParseFingerprint decodes a hex fingerprint, reporting ErrInvalidInput for
// empty or malformed values.
func ParseFingerprint(s string) (digest.Hash, error) {
	if s == "" {
		return digest.Zero, fmt.Errorf("%w: empty", ErrInvalidInput)
	}
	h, err := digest.Parse(s)
	if err != nil {
		return digest.Zero, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if h.IsZero() {
		return digest.Zero, fmt.Errorf("%w: zero digest", ErrInvalidInput)
	}
	return h, nil
}

// Append records a new block committing to metadataHash and returns it.
// No block is returned unless the store has durably recorded it.
func (l *Ledger) Append(ctx context.Context, metadataHash digest.Hash) (*Block, error) {
	if metadataHash.IsZero() {
		return nil, fmt.Errorf("%w: empty", ErrInvalidInput)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	block, err := l.store.Append(ctx, func(tail *Block) (*Block, error) {
		b := &Block{
			Index:        0,
			MetadataHash: metadataHash,
			PrevHash:     GenesisLink(),
			CreatedAt:    Stamp(l.now()),
		}
		if tail != nil {
			if err := tail.Malformed(); err != nil {
				return nil, fmt.Errorf("%w: tail block %d: %v", ErrChainIntegrity, tail.Index, err)
			}
			b.Index = tail.Index + 1
			b.PrevHash = LinkTo(tail.BlockHash)
		}
		b.BlockHash = b.ComputeHash()
		return b, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: append block: %w", ErrStorage, err)
	}

	l.logger.Debug("ledger block appended",
		zap.Int("index", block.Index),
		zap.Stringer("block_hash", block.BlockHash),
		zap.Stringer("metadata_hash", block.MetadataHash),
	)
	return block, nil
}

// Blocks returns a snapshot of the full chain in index order.
func (l *Ledger) Blocks(ctx context.Context) ([]Block, error) {
	blocks, err := l.store.Blocks(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: read blocks: %v", ErrStorage, err)
	}
	return blocks, nil
}

// Get returns the block at index. A missing block yields an error wrapping ErrNotFound.
func (l *Ledger) Get(ctx context.Context, index int) (*Block, error) {
	b, err := l.store.Get(ctx, index)
	if errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("block %d: %w", index, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get block %d: %v", ErrStorage, index, err)
	}
	return b, nil
}

// Len returns the number of blocks in the chain.
func (l *Ledger) Len(ctx context.Context) (int, error) {
	n, err := l.store.Len(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: count blocks: %v", ErrStorage, err)
	}
	return n, nil
}

// Tip returns the most recent block, or nil on an empty chain.
func (l *Ledger) Tip(ctx context.Context) (*Block, error) {
	n, err := l.Len(ctx)
	if err != nil || n == 0 {
		return nil, err
	}
	return l.Get(ctx, n-1)
}

// Fingerprints returns every block's MetadataHash in insertion order, taken
// from a single snapshot of the chain.
func (l *Ledger) Fingerprints(ctx context.Context) ([]digest.Hash, error) {
	blocks, err := l.Blocks(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]digest.Hash, len(blocks))
	for i := range blocks {
		out[i] = blocks[i].MetadataHash
	}
	return out, nil
}

// Verify loads the chain from the store and validates it. Storage errors are
// returned as errors; integrity problems are reported in the result.
func (l *Ledger) Verify(ctx context.Context) (ValidationResult, error) {
	blocks, err := l.Blocks(ctx)
	if err != nil {
		return ValidationResult{}, err
	}
	return Validate(blocks), nil
}
