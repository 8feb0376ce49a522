package lock

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// FileBackend locks through an O_EXCL lock file. A lock file older than the
// TTL is treated as left behind by a crashed invocation and removed.
type FileBackend struct {
	path  string
	ttl   time.Duration
	token string
	now   func() time.Time
}

// NewFileBackend creates a lock file backend at path.
func NewFileBackend(path string, ttl time.Duration) *FileBackend {
	return &FileBackend{
		path:  path,
		ttl:   ttl,
		token: uuid.NewString(),
		now:   time.Now,
	}
}

// TryAcquire creates the lock file, clearing a stale one first.
func (b *FileBackend) TryAcquire(ctx context.Context) (bool, error) {
	if err := os.MkdirAll(filepath.Dir(b.path), 0o755); err != nil {
		return false, fmt.Errorf("failed to create lock directory: %w", err)
	}

	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(b.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			_, werr := fmt.Fprintf(f, "%s %d %s\n", b.token, os.Getpid(), b.now().UTC().Format(time.RFC3339))
			cerr := f.Close()
			if werr != nil || cerr != nil {
				_ = os.Remove(b.path)
				return false, fmt.Errorf("failed to write lock file: %w", errors.Join(werr, cerr))
			}
			return true, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return false, fmt.Errorf("failed to create lock file: %w", err)
		}

		info, err := os.Stat(b.path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return false, fmt.Errorf("failed to stat lock file: %w", err)
		}
		if b.ttl <= 0 || b.now().Sub(info.ModTime()) < b.ttl {
			return false, nil
		}
		if err := os.Remove(b.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return false, fmt.Errorf("failed to remove stale lock file: %w", err)
		}
	}
	return false, nil
}

// Release removes the lock file if it still carries this holder's token.
func (b *FileBackend) Release(ctx context.Context) error {
	data, err := os.ReadFile(b.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read lock file: %w", err)
	}
	if !strings.HasPrefix(string(data), b.token+" ") {
		return nil
	}
	if err := os.Remove(b.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove lock file: %w", err)
	}
	return nil
}
