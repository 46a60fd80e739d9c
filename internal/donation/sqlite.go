package donation

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS donations (
	id            TEXT PRIMARY KEY,
	metadata_hash TEXT NOT NULL,
	block_index   INTEGER NOT NULL UNIQUE,
	category      TEXT NOT NULL,
	amount        REAL NOT NULL,
	receipt       TEXT NOT NULL
);`

// SQLiteRepository stores donations next to the ledger in an embedded SQLite
// database opened with chain.OpenSQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates the donations table if needed.
func NewSQLiteRepository(ctx context.Context, db *sql.DB) (*SQLiteRepository, error) {
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		return nil, fmt.Errorf("create donations: %w", err)
	}
	return &SQLiteRepository{db: db}, nil
}

// Create implements Repository.
func (r *SQLiteRepository) Create(ctx context.Context, d *Donation) error {
	receipt, err := json.Marshal(d.Receipt)
	if err != nil {
		return fmt.Errorf("marshal receipt: %w", err)
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO donations (id, metadata_hash, block_index, category, amount, receipt)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		d.ID.String(), d.MetadataHash.String(), d.BlockIndex, d.Receipt.Category, d.Receipt.Amount, string(receipt),
	)
	if err != nil {
		return fmt.Errorf("insert donation: %w", err)
	}
	return nil
}

// List implements Repository.
func (r *SQLiteRepository) List(ctx context.Context) ([]*Donation, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, metadata_hash, block_index, receipt FROM donations ORDER BY block_index ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("query donations: %w", err)
	}
	defer rows.Close()

	var out []*Donation
	for rows.Next() {
		d, err := scanSQLiteDonation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan donation: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// GetByID implements Repository.
func (r *SQLiteRepository) GetByID(ctx context.Context, id uuid.UUID) (*Donation, error) {
	d, err := scanSQLiteDonation(r.db.QueryRowContext(ctx,
		`SELECT id, metadata_hash, block_index, receipt FROM donations WHERE id = ?`, id.String(),
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get donation: %w", err)
	}
	return d, nil
}

func scanSQLiteDonation(row rowScanner) (*Donation, error) {
	var (
		d                    Donation
		id, metaHex, receipt string
	)
	if err := row.Scan(&id, &metaHex, &d.BlockIndex, &receipt); err != nil {
		return nil, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("donation id: %w", err)
	}
	d.ID = parsed
	return decodeDonation(&d, metaHex, []byte(receipt))
}
