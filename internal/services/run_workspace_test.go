package services

import (
	"os"
	"testing"
)

func TestRunWorkspace(t *testing.T) {
	base := t.TempDir()

	a, err := NewRunWorkspace(base)
	if err != nil {
		t.Fatalf("NewRunWorkspace() error = %v", err)
	}
	b, err := NewRunWorkspace(base)
	if err != nil {
		t.Fatalf("NewRunWorkspace() error = %v", err)
	}
	if a.Dir == b.Dir {
		t.Fatal("workspaces should be unique")
	}
	if err := os.WriteFile(a.Dir+"/chart.png", []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	a.Remove()
	a.Remove()
	if _, err := os.Stat(a.Dir); !os.IsNotExist(err) {
		t.Errorf("workspace %s still exists", a.Dir)
	}
	if _, err := os.Stat(b.Dir); err != nil {
		t.Errorf("other workspace removed: %v", err)
	}

	var nilWorkspace *RunWorkspace
	nilWorkspace.Remove()
}
