//go:build windows

package index

import (
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sys/windows"
)

// cleanupBackup removes the previous store left behind by AtomicSwap.
//
// A concurrent reader or an indexer may still hold one of the artifacts open.
// We retry for a short period, then schedule the leftover files for deletion
// at next reboot.
func cleanupBackup(backupDir string) error {
	if backupDir == "" {
		return nil
	}

	var lastErr error
	for i := 0; i < 15; i++ {
		if err := os.RemoveAll(backupDir); err == nil {
			return nil
		} else {
			lastErr = err
		}
		time.Sleep(200 * time.Millisecond)
	}

	entries, err := os.ReadDir(backupDir)
	if err != nil {
		return lastErr
	}
	for _, e := range entries {
		if err := deleteOnReboot(filepath.Join(backupDir, e.Name())); err != nil {
			return lastErr
		}
	}
	if err := deleteOnReboot(backupDir); err != nil {
		return lastErr
	}
	return nil
}

func deleteOnReboot(path string) error {
	p, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return err
	}
	return windows.MoveFileEx(p, nil, windows.MOVEFILE_DELAY_UNTIL_REBOOT)
}
