//go:build !windows

package index

import "os"

// cleanupBackup removes the previous store left behind by AtomicSwap.
func cleanupBackup(backupDir string) error {
	if backupDir == "" {
		return nil
	}
	return os.RemoveAll(backupDir)
}
