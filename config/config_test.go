package config

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/kbukum/wirekit/errors"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.MaxResolveDepth != DefaultMaxResolveDepth {
		t.Errorf("expected depth %d, got %d", DefaultMaxResolveDepth, cfg.MaxResolveDepth)
	}
	if !cfg.TrackDisposableTransients {
		t.Error("expected transient tracking on by default")
	}
	if cfg.StrictAmbiguity {
		t.Error("expected strict ambiguity off by default")
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("expected logging defaults, got %q", cfg.Logging.Level)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"negative depth", func(c *Config) { c.MaxResolveDepth = -1 }, "max_resolve_depth"},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"tracing without name", func(c *Config) {
			c.Observability.Tracing = true
			c.Observability.ServiceName = ""
		}, "service_name"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			err := cfg.Validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.Is(err, errors.ErrCodeInvalidConfig) {
				t.Errorf("expected INVALID_CONFIG, got %v", err)
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("expected error containing %q, got %q", tc.wantErr, err.Error())
			}
		})
	}
}

func TestLoadWithYAML(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "wirekit.yml")

	yamlContent := `
max_resolve_depth: 42
strict_ambiguity: true
logging:
  level: debug
  format: json
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load("orders", WithConfigFile(configPath), WithFileSystem(&mockFS{files: map[string]bool{configPath: true}}))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.MaxResolveDepth != 42 {
		t.Errorf("expected depth 42, got %d", cfg.MaxResolveDepth)
	}
	if !cfg.StrictAmbiguity {
		t.Error("expected strict ambiguity from file")
	}
	if !cfg.TrackDisposableTransients {
		t.Error("keys absent from the file should keep defaults")
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("unexpected logging config %+v", cfg.Logging)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "wirekit.yml")
	if err := os.WriteFile(configPath, []byte("max_resolve_depth: 42\n"), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	t.Setenv("WIREKIT_MAX_RESOLVE_DEPTH", "7")
	t.Setenv("WIREKIT_LOGGING_LEVEL", "warn")

	cfg, err := Load("orders", WithConfigFile(configPath), WithFileSystem(&mockFS{files: map[string]bool{configPath: true}}))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.MaxResolveDepth != 7 {
		t.Errorf("expected env override 7, got %d", cfg.MaxResolveDepth)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("expected env logging level, got %q", cfg.Logging.Level)
	}
}

func TestLoadInvalidValue(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "wirekit.yml")
	if err := os.WriteFile(configPath, []byte("max_resolve_depth: -5\n"), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	_, err := Load("orders", WithConfigFile(configPath), WithFileSystem(&mockFS{files: map[string]bool{configPath: true}}))
	if !errors.Is(err, errors.ErrCodeInvalidConfig) {
		t.Fatalf("expected INVALID_CONFIG, got %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load("nonexistent-service", WithConfigFile("/nonexistent/path.yml"), WithFileSystem(&mockFS{}))
	if err != nil {
		t.Fatalf("expected Load to succeed with missing file, got %v", err)
	}
	if cfg.MaxResolveDepth != DefaultMaxResolveDepth {
		t.Errorf("expected defaults, got %d", cfg.MaxResolveDepth)
	}
}

func TestResolverWithMockFS(t *testing.T) {
	fs := &mockFS{files: map[string]bool{
		"./cmd/my-svc/wirekit.yml": true,
		"./config/.env":            true,
	}}
	resolver := &Resolver{FileSystem: fs}
	files := resolver.ResolveFiles("my-svc", LoaderConfig{})
	if files.ConfigFile != "./cmd/my-svc/wirekit.yml" {
		t.Errorf("expected config file at ./cmd/my-svc/wirekit.yml, got %q", files.ConfigFile)
	}
	if files.EnvFile != "./config/.env" {
		t.Errorf("expected env file at ./config/.env, got %q", files.EnvFile)
	}
}

func TestResolverPrefersServiceEnvFile(t *testing.T) {
	fs := &mockFS{files: map[string]bool{
		"./.env":        true,
		"./.env.my-svc": true,
	}}
	files := (&Resolver{FileSystem: fs}).ResolveFiles("my-svc", LoaderConfig{})
	if files.EnvFile != "./.env.my-svc" {
		t.Errorf("expected service env file, got %q", files.EnvFile)
	}
}

type mockFS struct {
	files map[string]bool
}

func (m *mockFS) Exists(path string) bool  { return m.files[path] }
func (m *mockFS) LoadEnv(path string) error { return nil }
func (m *mockFS) Getwd() (string, error)    { return "/mock", nil }

func TestGenerateEnvKeyVariants(t *testing.T) {
	variants := generateEnvKeyVariants("OBSERVABILITY_SERVICE_NAME")
	for _, want := range []string{"observability_service_name", "observability.service.name", "observability.service_name"} {
		if !slices.Contains(variants, want) {
			t.Errorf("expected variant %q in %v", want, variants)
		}
	}
	if got := generateEnvKeyVariants("DEBUG"); len(got) != 1 || got[0] != "debug" {
		t.Errorf("single-part key variants = %v", got)
	}
}

func TestLoaderOptions(t *testing.T) {
	var lc LoaderConfig
	fs := &mockFS{}
	WithFileSystem(fs)(&lc)
	WithConfigFile("/path/to/wirekit.yml")(&lc)
	WithEnvFile("/path/to/.env")(&lc)
	if lc.FileSystem == nil {
		t.Error("expected FileSystem to be set")
	}
	if lc.ConfigFile != "/path/to/wirekit.yml" {
		t.Errorf("expected config file path, got %q", lc.ConfigFile)
	}
	if lc.EnvFile != "/path/to/.env" {
		t.Errorf("expected env file path, got %q", lc.EnvFile)
	}
}
