package chain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
)

// FileStore keeps the chain as a pretty-printed JSON array in a single file,
// the blockchain-log.json layout used by the first version of the service.
//
// Every write goes to a temporary file which is then renamed over the log, so
// a failed append never leaves a partial block on disk. Reads always go to
// disk so that edits made outside the process are seen by Verify.
type FileStore struct {
	mu     sync.RWMutex
	path   string
	logger *zap.Logger
}

// NewFileStore opens (creating if needed) the chain log at path.
func NewFileStore(path string, logger *zap.Logger) (*FileStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := os.WriteFile(path, []byte("[]"), 0o644); err != nil {
			return nil, fmt.Errorf("init chain log: %w", err)
		}
		logger.Info("created chain log", zap.String("path", path))
	} else if err != nil {
		return nil, fmt.Errorf("stat chain log: %w", err)
	}
	return &FileStore{path: path, logger: logger}, nil
}

// Path returns the location of the chain log.
func (s *FileStore) Path() string { return s.path }

func (s *FileStore) read() ([]Block, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read chain log: %w", err)
	}
	var blocks []Block
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return nil, fmt.Errorf("decode chain log: %w", err)
	}
	return blocks, nil
}

func (s *FileStore) write(blocks []Block) error {
	raw, err := json.MarshalIndent(blocks, "", "  ")
	if err != nil {
		return fmt.Errorf("encode chain log: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".chain-*.json")
	if err != nil {
		return fmt.Errorf("create temp log: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close() //nolint:errcheck
		return fmt.Errorf("write temp log: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close() //nolint:errcheck
		return fmt.Errorf("sync temp log: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp log: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace chain log: %w", err)
	}
	return nil
}

// Append implements Store.
func (s *FileStore) Append(_ context.Context, next NextFunc) (*Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	blocks, err := s.read()
	if err != nil {
		return nil, err
	}

	var tail *Block
	if n := len(blocks); n > 0 {
		tail = &blocks[n-1]
	}

	b, err := next(tail)
	if err != nil {
		return nil, err
	}
	if b.Index != len(blocks) {
		return nil, fmt.Errorf("block index %d does not extend chain of length %d", b.Index, len(blocks))
	}

	if err := s.write(append(blocks, *b)); err != nil {
		return nil, err
	}
	return b, nil
}

// Blocks implements Store.
func (s *FileStore) Blocks(_ context.Context) ([]Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read()
}

// Get implements Store.
func (s *FileStore) Get(ctx context.Context, index int) (*Block, error) {
	blocks, err := s.Blocks(ctx)
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(blocks) {
		return nil, ErrNotFound
	}
	return &blocks[index], nil
}

// Len implements Store.
func (s *FileStore) Len(ctx context.Context) (int, error) {
	blocks, err := s.Blocks(ctx)
	if err != nil {
		return 0, err
	}
	return len(blocks), nil
}
