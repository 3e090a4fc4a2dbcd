package home

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNew(t *testing.T) {
	t.Run("with explicit path", func(t *testing.T) {
		dir, err := New("/tmp/test-spires")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if dir.Path() != "/tmp/test-spires" {
			t.Errorf("expected path /tmp/test-spires, got %s", dir.Path())
		}
	})

	t.Run("with empty path uses default", func(t *testing.T) {
		dir, err := New("")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		home, _ := os.UserHomeDir()
		expected := filepath.Join(home, DefaultDirName)
		if dir.Path() != expected {
			t.Errorf("expected path %s, got %s", expected, dir.Path())
		}
	})
}

func TestDir_Paths(t *testing.T) {
	dir, _ := New("/tmp/test-spires")

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"ConfigPath", dir.ConfigPath(), "/tmp/test-spires/config.yaml"},
		{"CachePath", dir.CachePath(), "/tmp/test-spires/cache.db"},
		{"IterationsDir", dir.IterationsDir(), "/tmp/test-spires/iterations"},
		{"IterationCachePath", dir.IterationCachePath("Marfan Syndrome (MONDO:0007947)"), "/tmp/test-spires/iterations/marfan_syndrome_mondo_0007947.yaml"},
		{"IterationCachePath empty", dir.IterationCachePath("!!"), "/tmp/test-spires/iterations/iteration.yaml"},
		{"TemplatePath", dir.TemplatePath("custom"), "/tmp/test-spires/templates/custom.yaml"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, tt.got)
			}
		})
	}
}

func TestDir_EnsureExists(t *testing.T) {
	tmpDir := t.TempDir()
	dir, _ := New(filepath.Join(tmpDir, "spires"))

	if dir.Exists() {
		t.Error("expected dir to not exist initially")
	}

	if err := dir.EnsureExists(); err != nil {
		t.Fatalf("EnsureExists failed: %v", err)
	}

	if !dir.Exists() {
		t.Error("expected dir to exist after EnsureExists")
	}
	for _, p := range []string{dir.IterationsDir(), dir.TemplatesDir()} {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("expected %s to exist", p)
		}
	}
}

func TestDir_ConfigExists(t *testing.T) {
	dir, _ := New(t.TempDir())

	if dir.ConfigExists() {
		t.Error("expected config to not exist")
	}
	if err := os.WriteFile(dir.ConfigPath(), []byte("defaults: {}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if !dir.ConfigExists() {
		t.Error("expected config to exist")
	}
}
