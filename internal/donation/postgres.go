package donation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmerrifield20/ZakatLedger/internal/digest"
)

// PostgresRepository stores donations in the donations table. The receipt is
// kept as JSONB so it can be re-fingerprinted exactly as recorded.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create implements Repository.
func (r *PostgresRepository) Create(ctx context.Context, d *Donation) error {
	receipt, err := json.Marshal(d.Receipt)
	if err != nil {
		return fmt.Errorf("marshal receipt: %w", err)
	}
	_, err = r.db.Exec(ctx,
		`INSERT INTO donations (id, metadata_hash, block_index, category, amount, receipt, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		d.ID, d.MetadataHash.String(), d.BlockIndex, d.Receipt.Category, d.Receipt.Amount, receipt, d.Receipt.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert donation: %w", err)
	}
	return nil
}

// List implements Repository.
func (r *PostgresRepository) List(ctx context.Context) ([]*Donation, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, metadata_hash, block_index, receipt FROM donations ORDER BY block_index ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("query donations: %w", err)
	}
	defer rows.Close()

	var out []*Donation
	for rows.Next() {
		d, err := scanDonation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan donation: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// GetByID implements Repository.
func (r *PostgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*Donation, error) {
	d, err := scanDonation(r.db.QueryRow(ctx,
		`SELECT id, metadata_hash, block_index, receipt FROM donations WHERE id = $1`, id,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get donation: %w", err)
	}
	return d, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDonation(row rowScanner) (*Donation, error) {
	var (
		d       Donation
		metaHex string
		receipt []byte
	)
	if err := row.Scan(&d.ID, &metaHex, &d.BlockIndex, &receipt); err != nil {
		return nil, err
	}
	return decodeDonation(&d, metaHex, receipt)
}

func decodeDonation(d *Donation, metaHex string, receipt []byte) (*Donation, error) {
	h, err := digest.Parse(metaHex)
	if err != nil {
		return nil, fmt.Errorf("metadata_hash: %w", err)
	}
	d.MetadataHash = h
	if err := json.Unmarshal(receipt, &d.Receipt); err != nil {
		return nil, fmt.Errorf("decode receipt: %w", err)
	}
	return d, nil
}
