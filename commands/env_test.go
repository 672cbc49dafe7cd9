package commands

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestEnvLoadConfigExplicit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stageground.yaml")
	data := `repo:
  owner: who
  name: smart-anc
  branch: main
  path: ` + dir + `
store:
  backend: memory
`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	env := &Env{ConfigPath: path, LogLevel: "error"}
	cfg, err := env.LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.Repo.Key().String() != "who/smart-anc@main" {
		t.Errorf("unexpected repository key %s", cfg.Repo.Key())
	}
	if cfg.Store.Backend != "memory" {
		t.Errorf("expected memory backend, got %s", cfg.Store.Backend)
	}
	if cfg.Remote.Timeout != 30*time.Second {
		t.Errorf("expected default timeout, got %s", cfg.Remote.Timeout)
	}
	// Defaults survive the merge.
	if !cfg.Validation.IncludeWarnings {
		t.Error("expected default include_warnings to survive merge")
	}
}

func TestEnvLoadConfigMissingFile(t *testing.T) {
	env := &Env{ConfigPath: filepath.Join(t.TempDir(), "absent.yaml")}
	if _, err := env.LoadConfig(); err == nil {
		t.Error("expected error for missing explicit config")
	}
}

func TestOpenRuntimeMemoryBackend(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stageground.yaml")
	data := `repo:
  owner: who
  name: smart-anc
  branch: main
  path: ` + dir + `
store:
  backend: memory
`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	env := &Env{ConfigPath: path, LogLevel: "error"}
	rt, err := env.OpenRuntime(context.Background())
	if err != nil {
		t.Fatalf("OpenRuntime: %v", err)
	}
	defer rt.Close()

	if rt.Controller == nil {
		t.Fatal("expected controller to be wired")
	}
	if rt.Key.String() != "who/smart-anc@main" {
		t.Errorf("unexpected key %s", rt.Key)
	}
}

func TestOpenRuntimeRequiresRepoIdentity(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stageground.yaml")
	data := `repo:
  branch: main
  path: ` + dir + `
store:
  backend: memory
`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	env := &Env{ConfigPath: path, LogLevel: "error"}
	if _, err := env.OpenRuntime(context.Background()); err == nil {
		t.Error("expected error when repo owner/name are unset")
	}
}

func TestRuntimeNATSBackendNeedsURL(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stageground.yaml")
	data := `repo:
  owner: who
  name: smart-anc
  branch: main
  path: ` + dir + `
store:
  backend: nats
`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	env := &Env{ConfigPath: path, LogLevel: "error"}
	if _, err := env.OpenRuntime(context.Background()); err == nil {
		t.Error("expected error for nats backend without nats.url")
	}
}
