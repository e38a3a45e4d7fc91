package chart

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// SetupOnce runs fn once across every process sharing lockDir. Callers block
// on the lock while another process runs fn; a marker file records success
// so later callers return immediately. A failed fn leaves no marker.
func SetupOnce(lockDir, name string, fn func() error) error {
	if err := os.MkdirAll(lockDir, 0o755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}

	lock := flock.New(filepath.Join(lockDir, name+".lock"))
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("failed to lock %s: %w", lock.Path(), err)
	}
	defer lock.Unlock()

	done := filepath.Join(lockDir, name+".done")
	if _, err := os.Stat(done); err == nil {
		return nil
	}

	if err := fn(); err != nil {
		return err
	}
	return os.WriteFile(done, nil, 0o644)
}
