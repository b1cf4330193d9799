package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/nilsecker/anthrogate/internal/config"
)

const minimalYAML = `
server:
  host: 127.0.0.1
  port: 9090
providers:
  anthropic:
    base_url: https://api.anthropic.com
    adapter: anthropic-passthrough
    api_key_env: ANTHROPIC_API_KEY
`

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_MinimalFile(t *testing.T) {
	path := writeConfig(t, minimalYAML)
	cfg, err := config.Load(path, nil, func() []string { return nil })
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d, want 9090", cfg.Server.Port)
	}
	p, ok := cfg.Providers["anthropic"]
	if !ok {
		t.Fatal("expected anthropic provider")
	}
	if p.Name != "anthropic" {
		t.Errorf("provider name not back-filled from map key: %q", p.Name)
	}
	if len(cfg.Tools.RestrictedToolNames) == 0 {
		t.Error("expected default tool policy to be applied")
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, minimalYAML)
	environ := func() []string { return []string{"ANTHROGATE_SERVER__PORT=9999"} }
	cfg, err := config.Load(path, nil, environ)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("port = %d, want env override 9999", cfg.Server.Port)
	}
}

func TestLoad_FlagOverridesWinOverEnvAndFile(t *testing.T) {
	path := writeConfig(t, minimalYAML)
	environ := func() []string { return []string{"ANTHROGATE_SERVER__PORT=9999"} }
	flags := map[string]any{"server.port": 7070}
	cfg, err := config.Load(path, flags, environ)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("port = %d, want flag override 7070", cfg.Server.Port)
	}
}

func TestLoad_NoProvidersIsInvalid(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 8089\n")
	if _, err := config.Load(path, nil, func() []string { return nil }); err == nil {
		t.Error("expected error for a config with no providers")
	}
}

func TestLoad_UnknownAdapterIsInvalid(t *testing.T) {
	path := writeConfig(t, `
providers:
  bad:
    base_url: https://example.com
    adapter: not-a-real-adapter
`)
	if _, err := config.Load(path, nil, func() []string { return nil }); err == nil {
		t.Error("expected error for an unknown adapter tag")
	}
}

func TestLoad_OverrideReferencesUnknownProvider(t *testing.T) {
	path := writeConfig(t, minimalYAML+`
overrides:
  - when:
      model_regex: ".*"
    provider: ghost
`)
	if _, err := config.Load(path, nil, func() []string { return nil }); err == nil {
		t.Error("expected error for an override referencing an unconfigured provider")
	}
}

func TestLoad_EmptyClauseFilterPatternIsInvalid(t *testing.T) {
	path := writeConfig(t, minimalYAML+`
system_prompt_filters:
  clause_filters:
    - pattern: ""
`)
	if _, err := config.Load(path, nil, func() []string { return nil }); err == nil {
		t.Error("expected error for an empty clause filter pattern")
	}
}

func TestLoad_MissingBaseURLIsInvalid(t *testing.T) {
	path := writeConfig(t, `
providers:
  broken:
    adapter: anthropic-passthrough
`)
	if _, err := config.Load(path, nil, func() []string { return nil }); err == nil {
		t.Error("expected error for a provider with no base_url")
	}
}

func TestLoad_DefaultsAppliedWhenUnset(t *testing.T) {
	path := writeConfig(t, minimalYAML)
	cfg, err := config.Load(path, nil, func() []string { return nil })
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("log_level = %q, want default info", cfg.LogLevel)
	}
}
