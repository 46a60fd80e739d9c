package chain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmerrifield20/ZakatLedger/internal/digest"
	"go.uber.org/zap"
)

// advisoryLockKey is a stable PostgreSQL advisory lock key used to serialise
// Append across every process sharing the database.
const advisoryLockKey = int64(2_026_101_900)

// PostgresStore persists the chain in the ledger_blocks table.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresStore creates a PostgresStore backed by the given connection pool.
func NewPostgresStore(pool *pgxpool.Pool, logger *zap.Logger) *PostgresStore {
	return &PostgresStore{pool: pool, logger: logger}
}

// rowScanner is satisfied by pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanBlock(row rowScanner) (*Block, error) {
	var (
		idx                        int
		metaHex, prevStr, blockHex string
		createdAt                  time.Time
	)
	if err := row.Scan(&idx, &metaHex, &prevStr, &blockHex, &createdAt); err != nil {
		return nil, err
	}
	b := decodeRow(idx, metaHex, prevStr, blockHex)
	b.CreatedAt = createdAt.UTC()
	return b, nil
}

// decodeRow turns the textual columns shared by the SQL stores into a Block.
// A column that does not decode is recorded on the block for Validate to
// report rather than failing the whole read.
func decodeRow(idx int, metaHex, prevStr, blockHex string) *Block {
	b := &Block{Index: idx}
	if h, err := digest.Parse(metaHex); err != nil {
		b.MarkMalformed("metadataHash", metaHex, err)
	} else {
		b.MetadataHash = h
	}
	if l, err := ParseLink(prevStr); err != nil {
		b.MarkMalformed("prevHash", prevStr, err)
	} else {
		b.PrevHash = l
	}
	if h, err := digest.Parse(blockHex); err != nil {
		b.MarkMalformed("blockHash", blockHex, err)
	} else {
		b.BlockHash = h
	}
	return b
}

// Append implements Store.
// It takes a transaction-scoped advisory lock, reads the chain tail, builds
// the next block and inserts it, all within one transaction.
func (s *PostgresStore) Append(ctx context.Context, next NextFunc) (*Block, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", advisoryLockKey); err != nil {
		return nil, fmt.Errorf("acquire advisory lock: %w", err)
	}

	tail, err := scanBlock(tx.QueryRow(ctx,
		`SELECT idx, metadata_hash, prev_hash, block_hash, created_at
		 FROM ledger_blocks ORDER BY idx DESC LIMIT 1`,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		tail = nil
	} else if err != nil {
		return nil, fmt.Errorf("read ledger tail: %w", err)
	}

	b, err := next(tail)
	if err != nil {
		return nil, err
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO ledger_blocks (idx, metadata_hash, prev_hash, block_hash, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		b.Index, b.MetadataHash.String(), b.PrevHash.String(), b.BlockHash.String(), b.CreatedAt,
	); err != nil {
		return nil, fmt.Errorf("insert ledger block: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit ledger tx: %w", err)
	}

	s.logger.Debug("ledger block stored", zap.Int("idx", b.Index))
	return b, nil
}

// Blocks implements Store.
func (s *PostgresStore) Blocks(ctx context.Context) ([]Block, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT idx, metadata_hash, prev_hash, block_hash, created_at
		 FROM ledger_blocks ORDER BY idx ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("query ledger: %w", err)
	}
	defer rows.Close()

	var blocks []Block
	for rows.Next() {
		b, err := scanBlock(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ledger row: %w", err)
		}
		blocks = append(blocks, *b)
	}
	return blocks, rows.Err()
}

// Get implements Store.
func (s *PostgresStore) Get(ctx context.Context, index int) (*Block, error) {
	b, err := scanBlock(s.pool.QueryRow(ctx,
		`SELECT idx, metadata_hash, prev_hash, block_hash, created_at
		 FROM ledger_blocks WHERE idx = $1`, index,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get ledger block %d: %w", index, err)
	}
	return b, nil
}

// Len implements Store.
func (s *PostgresStore) Len(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM ledger_blocks").Scan(&n); err != nil {
		return 0, fmt.Errorf("count ledger blocks: %w", err)
	}
	return n, nil
}
