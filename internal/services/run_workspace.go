package services

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// RunWorkspace is a scratch directory owned by one run
type RunWorkspace struct {
	Dir string
}

// NewRunWorkspace creates a uniquely named directory under base (os.TempDir() when empty)
func NewRunWorkspace(base string) (*RunWorkspace, error) {
	if base == "" {
		base = os.TempDir()
	}
	dir := filepath.Join(base, "market-report-"+uuid.New().String())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create run workspace: %w", err)
	}
	return &RunWorkspace{Dir: dir}, nil
}

// Remove deletes the workspace. Safe to call more than once.
func (w *RunWorkspace) Remove() {
	if w == nil || w.Dir == "" {
		return
	}
	if err := os.RemoveAll(w.Dir); err != nil {
		log.Printf("Run workspace: failed to remove %s: %v", w.Dir, err)
	}
}
