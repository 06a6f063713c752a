package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestPathFunctions(t *testing.T) {
	root := "/test/repo"

	tests := []struct {
		name string
		fn   func(string) string
		want string
	}{
		{"NoemaPath", NoemaPath, "/test/repo/.noema"},
		{"ConfigPath", ConfigPath, "/test/repo/.noema/config.yaml"},
		{"CachePath", CachePath, "/test/repo/.noema/cache"},
		{"DBPath", DBPath, "/test/repo/.noema/cache/noema.db"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.fn(root)
			if got != tt.want {
				t.Errorf("%s(%q) = %q, want %q", tt.name, root, got, tt.want)
			}
		})
	}
}

func TestIsRepository(t *testing.T) {
	tmpDir := t.TempDir()

	if IsRepository(tmpDir) {
		t.Error("IsRepository() = true for non-repo directory")
	}

	if err := os.Mkdir(filepath.Join(tmpDir, NoemaDir), 0755); err != nil {
		t.Fatalf("creating .noema: %v", err)
	}

	if !IsRepository(tmpDir) {
		t.Error("IsRepository() = false for repo directory")
	}
}

func TestFindRepository(t *testing.T) {
	tmpDir := t.TempDir()
	nested := filepath.Join(tmpDir, "a", "b", "c")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatalf("creating nested dirs: %v", err)
	}
	if err := os.Mkdir(filepath.Join(tmpDir, NoemaDir), 0755); err != nil {
		t.Fatalf("creating .noema: %v", err)
	}

	root, err := FindRepository(nested)
	if err != nil {
		t.Fatalf("FindRepository: %v", err)
	}
	// Resolve symlinks so macOS /tmp vs /private/tmp compares equal.
	wantRoot, _ := filepath.EvalSymlinks(tmpDir)
	gotRoot, _ := filepath.EvalSymlinks(root)
	if gotRoot != wantRoot {
		t.Errorf("FindRepository = %s, want %s", gotRoot, wantRoot)
	}
}

func TestFindRepository_NotFound(t *testing.T) {
	tmpDir := t.TempDir()
	if _, err := FindRepository(tmpDir); err == nil {
		t.Error("expected error outside any repository")
	}
}

func TestInitAndLoad(t *testing.T) {
	tmpDir := t.TempDir()

	cfg, err := Init(tmpDir)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if cfg.BitDepth != Default().BitDepth {
		t.Errorf("BitDepth = %d, want default %d", cfg.BitDepth, Default().BitDepth)
	}

	if _, err := Init(tmpDir); err == nil {
		t.Error("second Init should fail")
	}

	loaded, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if *loaded != *cfg {
		t.Errorf("loaded config differs: got %+v, want %+v", loaded, cfg)
	}
}

func TestLoadPartialConfig(t *testing.T) {
	tmpDir := t.TempDir()
	if _, err := Init(tmpDir); err != nil {
		t.Fatalf("Init: %v", err)
	}

	// A config naming only one field keeps defaults for the rest.
	if err := os.WriteFile(ConfigPath(tmpDir), []byte("window: 3\n"), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Window != 3 {
		t.Errorf("Window = %d, want 3", cfg.Window)
	}
	if cfg.BitDepth != Default().BitDepth {
		t.Errorf("BitDepth = %d, want default", cfg.BitDepth)
	}
	if cfg.Embedding.Model != Default().Embedding.Model {
		t.Errorf("Embedding.Model = %s, want default", cfg.Embedding.Model)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(c *Config) {}},
		{name: "zero bit depth", mutate: func(c *Config) { c.BitDepth = 0 }, wantErr: true},
		{name: "oversized bit depth", mutate: func(c *Config) { c.BitDepth = 33 }, wantErr: true},
		{name: "window of one", mutate: func(c *Config) { c.Window = 1 }, wantErr: true},
		{name: "zero neighbors", mutate: func(c *Config) { c.Neighbors = 0 }, wantErr: true},
		{name: "zero dimensions", mutate: func(c *Config) { c.Embedding.Dimensions = 0 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr && err == nil {
				t.Error("expected validation error")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}
