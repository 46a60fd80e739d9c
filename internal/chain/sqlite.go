package chain

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3" // registers the sqlite3 driver
	"go.uber.org/zap"
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS ledger_blocks (
	idx           INTEGER PRIMARY KEY,
	metadata_hash TEXT NOT NULL,
	prev_hash     TEXT NOT NULL,
	block_hash    TEXT NOT NULL UNIQUE,
	created_at    TEXT NOT NULL
);`

// SQLiteStore persists the chain in an embedded SQLite database. Writes use
// immediate transactions so the tail read and the insert cannot interleave
// with another writer.
type SQLiteStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// OpenSQLite opens (creating if needed) the database at path.
func OpenSQLite(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_txlock=immediate&_busy_timeout=5000&_journal_mode=WAL", path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close() //nolint:errcheck
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return db, nil
}

// NewSQLiteStore creates the ledger table if needed and returns the store.
func NewSQLiteStore(ctx context.Context, db *sql.DB, logger *zap.Logger) (*SQLiteStore, error) {
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		return nil, fmt.Errorf("create ledger_blocks: %w", err)
	}
	return &SQLiteStore{db: db, logger: logger}, nil
}

func scanSQLiteBlock(row rowScanner) (*Block, error) {
	var (
		idx                                   int
		metaHex, prevStr, blockHex, createdAt string
	)
	if err := row.Scan(&idx, &metaHex, &prevStr, &blockHex, &createdAt); err != nil {
		return nil, err
	}
	b := decodeRow(idx, metaHex, prevStr, blockHex)
	if t, err := ParseTime(createdAt); err != nil {
		b.MarkMalformed("createdAt", createdAt, err)
	} else {
		b.CreatedAt = t
	}
	return b, nil
}

// Append implements Store.
func (s *SQLiteStore) Append(ctx context.Context, next NextFunc) (*Block, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	tail, err := scanSQLiteBlock(tx.QueryRowContext(ctx,
		`SELECT idx, metadata_hash, prev_hash, block_hash, created_at
		 FROM ledger_blocks ORDER BY idx DESC LIMIT 1`,
	))
	if errors.Is(err, sql.ErrNoRows) {
		tail = nil
	} else if err != nil {
		return nil, fmt.Errorf("read ledger tail: %w", err)
	}

	b, err := next(tail)
	if err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO ledger_blocks (idx, metadata_hash, prev_hash, block_hash, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		b.Index, b.MetadataHash.String(), b.PrevHash.String(), b.BlockHash.String(), FormatTime(b.CreatedAt),
	); err != nil {
		return nil, fmt.Errorf("insert ledger block: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit ledger tx: %w", err)
	}

	s.logger.Debug("ledger block stored", zap.Int("idx", b.Index))
	return b, nil
}

// Blocks implements Store.
func (s *SQLiteStore) Blocks(ctx context.Context) ([]Block, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT idx, metadata_hash, prev_hash, block_hash, created_at
		 FROM ledger_blocks ORDER BY idx ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("query ledger: %w", err)
	}
	defer rows.Close()

	var blocks []Block
	for rows.Next() {
		b, err := scanSQLiteBlock(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ledger row: %w", err)
		}
		blocks = append(blocks, *b)
	}
	return blocks, rows.Err()
}

// Get implements Store.
func (s *SQLiteStore) Get(ctx context.Context, index int) (*Block, error) {
	b, err := scanSQLiteBlock(s.db.QueryRowContext(ctx,
		`SELECT idx, metadata_hash, prev_hash, block_hash, created_at
		 FROM ledger_blocks WHERE idx = ?`, index,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get ledger block %d: %w", index, err)
	}
	return b, nil
}

// Len implements Store.
func (s *SQLiteStore) Len(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM ledger_blocks").Scan(&n); err != nil {
		return 0, fmt.Errorf("count ledger blocks: %w", err)
	}
	return n, nil
}
