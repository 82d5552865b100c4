package workspace

import (
	"os"
	"path/filepath"
	"testing"
)

func TestEnsureDefault(t *testing.T) {
	configDir := filepath.Join(t.TempDir(), "aither-flow")

	dir, err := EnsureDefault(configDir)
	if err != nil {
		t.Fatalf("EnsureDefault: %v", err)
	}
	if dir != filepath.Join(configDir, "workspace") {
		t.Fatalf("unexpected dir: %q", dir)
	}

	data, err := os.ReadFile(filepath.Join(dir, "CLAUDE.md"))
	if err != nil {
		t.Fatalf("read CLAUDE.md: %v", err)
	}
	if string(data) != "# Workspace\n\nThis is the default workspace for Aither Flow.\n" {
		t.Fatalf("unexpected CLAUDE.md: %q", data)
	}
}

func TestEnsureDefaultKeepsExistingFile(t *testing.T) {
	configDir := t.TempDir()
	dir := filepath.Join(configDir, "workspace")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "CLAUDE.md"), []byte("custom"), 0644); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 2; i++ {
		if _, err := EnsureDefault(configDir); err != nil {
			t.Fatalf("EnsureDefault: %v", err)
		}
	}

	data, _ := os.ReadFile(filepath.Join(dir, "CLAUDE.md"))
	if string(data) != "custom" {
		t.Fatalf("CLAUDE.md overwritten: %q", data)
	}
}

func TestEnsureDefaultErrors(t *testing.T) {
	if _, err := EnsureDefault(""); err == nil {
		t.Fatal("expected error for empty config dir")
	}

	file := filepath.Join(t.TempDir(), "not-a-dir")
	if err := os.WriteFile(file, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := EnsureDefault(file); err == nil {
		t.Fatal("expected error when config dir is a file")
	}
}
