package index

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// LockTimeout bounds how long Load and Install wait for the store lock.
var LockTimeout = 30 * time.Second

const lockRetryDelay = 200 * time.Millisecond

// LockPath returns the lock file guarding the store in dir.
func LockPath(dir string) string {
	return filepath.Clean(dir) + ".lock"
}

// lockStore takes the store lock for dir: shared for readers, exclusive for
// Install. Stores whose parent directory is not writable are read unlocked.
func lockStore(dir string, shared bool) (func(), error) {
	ctx, cancel := context.WithTimeout(context.Background(), LockTimeout)
	defer cancel()
	return lockStoreContext(ctx, dir, shared)
}

func lockStoreContext(ctx context.Context, dir string, shared bool) (func(), error) {
	lockPath := LockPath(dir)
	l := flock.New(lockPath)
	for {
		var (
			locked bool
			err    error
		)
		if shared {
			locked, err = l.TryRLock()
		} else {
			locked, err = l.TryLock()
		}
		if err != nil {
			if shared && errors.Is(err, os.ErrPermission) {
				return func() {}, nil
			}
			return func() {}, fmt.Errorf("cannot acquire store lock: %w", err)
		}
		if locked {
			return func() { _ = l.Unlock() }, nil
		}
		select {
		case <-ctx.Done():
			return func() {}, fmt.Errorf("store is being rebuilt (lock: %s): %w", lockPath, ctx.Err())
		case <-time.After(lockRetryDelay):
		}
	}
}
