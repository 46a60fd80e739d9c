package donation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a donation is not found.
var ErrNotFound = errors.New("donation not found")

// Repository is the persistence interface for donations. List returns
// donations in the order they were created.
type Repository interface {
	Create(ctx context.Context, d *Donation) error
	List(ctx context.Context) ([]*Donation, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Donation, error)
}

// MemoryRepository is an in-memory Repository.
type MemoryRepository struct {
	mu   sync.RWMutex
	rows []*Donation
}

// NewMemoryRepository creates an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

// Create implements Repository.
func (r *MemoryRepository) Create(_ context.Context, d *Donation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *d
	r.rows = append(r.rows, &cp)
	return nil
}

// List implements Repository.
func (r *MemoryRepository) List(_ context.Context) ([]*Donation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Donation, len(r.rows))
	for i, d := range r.rows {
		cp := *d
		out[i] = &cp
	}
	return out, nil
}

// GetByID implements Repository.
func (r *MemoryRepository) GetByID(_ context.Context, id uuid.UUID) (*Donation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, d := range r.rows {
		if d.ID == id {
			cp := *d
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

// FileRepository keeps donations as a JSON array in a single file, the
// donations.json layout used by the first version of the service.
type FileRepository struct {
	mu   sync.RWMutex
	path string
}

// NewFileRepository opens (creating if needed) the donations file at path.
func NewFileRepository(path string) (*FileRepository, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := os.WriteFile(path, []byte("[]"), 0o644); err != nil {
			return nil, fmt.Errorf("init donations file: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("stat donations file: %w", err)
	}
	return &FileRepository{path: path}, nil
}

func (r *FileRepository) read() ([]*Donation, error) {
	raw, err := os.ReadFile(r.path)
	if err != nil {
		return nil, fmt.Errorf("read donations: %w", err)
	}
	var rows []*Donation
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("decode donations: %w", err)
	}
	return rows, nil
}

// Create implements Repository.
func (r *FileRepository) Create(_ context.Context, d *Donation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rows, err := r.read()
	if err != nil {
		return err
	}
	rows = append(rows, d)

	raw, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return fmt.Errorf("encode donations: %w", err)
	}
	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("write donations: %w", err)
	}
	if err := os.Rename(tmp, r.path); err != nil {
		return fmt.Errorf("replace donations file: %w", err)
	}
	return nil
}

// List implements Repository.
func (r *FileRepository) List(_ context.Context) ([]*Donation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.read()
}

// GetByID implements Repository.
func (r *FileRepository) GetByID(ctx context.Context, id uuid.UUID) (*Donation, error) {
	rows, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, d := range rows {
		if d.ID == id {
			return d, nil
		}
	}
	return nil, ErrNotFound
}
