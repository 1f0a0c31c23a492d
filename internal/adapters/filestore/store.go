package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"cryptoLifecycleBot/internal/domain"
	"cryptoLifecycleBot/internal/ports"
)

// Config holds configuration for the JSON position store.
type Config struct {
	Path   string
	Logger ports.Logger
}

// Store implements ports.PositionStore on top of a single JSON document.
type Store struct {
	path   string
	logger ports.Logger
	mu     sync.Mutex
}

// Compile-time check
var _ ports.PositionStore = (*Store)(nil)

// NewStore prepares the directory holding the snapshot file.
func NewStore(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("%w: positions path is required", ports.ErrConfigurationError)
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("%w: logger is required", ports.ErrConfigurationError)
	}

	dir := filepath.Dir(cfg.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create positions directory '%s': %w", dir, err)
	}

	return &Store{path: cfg.Path, logger: cfg.Logger}, nil
}

func (s *Store) backupPath() string { return s.path + ".bak" }

// Load reads the snapshot. A missing file yields a freshly saved empty snapshot;
// an unreadable file falls back to the backup copy.
func (s *Store) Load(ctx context.Context) (*domain.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := readSnapshot(s.path)
	switch {
	case err == nil:
		return snap, nil
	case errors.Is(err, os.ErrNotExist):
		if _, bakErr := os.Stat(s.backupPath()); bakErr != nil {
			s.logger.Info(ctx, "Positions file not found, creating an empty one", map[string]interface{}{"path": s.path})
			snap = domain.NewSnapshot()
			if err := s.write(snap); err != nil {
				return nil, err
			}
			return snap, nil
		}
	}

	s.logger.Warn(ctx, "Positions file unreadable, trying backup", map[string]interface{}{"path": s.path, "error": err.Error()})
	snap, bakErr := readSnapshot(s.backupPath())
	if bakErr != nil {
		return nil, fmt.Errorf("%w: %s: %v (backup: %v)", ports.ErrSnapshotCorrupt, s.path, err, bakErr)
	}
	return snap, nil
}

// Save replaces the stored snapshot atomically.
func (s *Store) Save(ctx context.Context, snap *domain.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.write(snap); err != nil {
		s.logger.Error(ctx, err, "Failed to save positions", map[string]interface{}{"path": s.path})
		return err
	}
	return nil
}

func (s *Store) write(snap *domain.Snapshot) error {
	if snap == nil {
		snap = domain.NewSnapshot()
	}
	normalize(snap)

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode positions: %w", err)
	}

	tmp := s.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open '%s': %w", tmp, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("failed to write '%s': %w", tmp, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("failed to sync '%s': %w", tmp, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close '%s': %w", tmp, err)
	}

	// Keep the previous good copy before replacing it
	if _, err := os.Stat(s.path); err == nil {
		if err := copyFile(s.path, s.backupPath()); err != nil {
			return fmt.Errorf("failed to back up '%s': %w", s.path, err)
		}
	}

	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace '%s': %w", s.path, err)
	}
	return nil
}

func readSnapshot(path string) (*domain.Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var snap domain.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, err
	}
	normalize(&snap)
	return &snap, nil
}

// normalize turns null lists into empty ones so the file always shows both keys.
func normalize(snap *domain.Snapshot) {
	if snap.Current == nil {
		snap.Current = []*domain.Position{}
	}
	if snap.History == nil {
		snap.History = []*domain.Position{}
	}
	for _, list := range [][]*domain.Position{snap.Current, snap.History} {
		for _, p := range list {
			if p.StopLossOrderIDs == nil {
				p.StopLossOrderIDs = []int64{}
			}
			if p.TakeProfitOrderIDs == nil {
				p.TakeProfitOrderIDs = []int64{}
			}
		}
	}
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}
