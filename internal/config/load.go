package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// envPrefix is stripped from environment variables during config loading
// (e.g. ANTHROGATE_SERVER__HOST → server.host).
const envPrefix = "ANTHROGATE_"

// Load reads the YAML config at path, layering environment variable and
// CLI-flag overrides on top (file → env → flags → defaults), applies
// defaults, and validates the result. A validation failure returns an
// error and no Config; the caller decides whether that's fatal (startup)
// or merely logged (hot reload) per spec.md §6/§7.
func Load(path string, flagOverrides map[string]any, environFunc func() []string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	envProvider := env.Provider(".", env.Opt{
		Prefix: envPrefix,
		TransformFunc: func(key, value string) (string, any) {
			stripped := strings.TrimPrefix(key, envPrefix)
			nested := strings.ToLower(strings.ReplaceAll(stripped, "__", "."))
			return nested, value
		},
		EnvironFunc: environFunc,
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("loading environment variables: %w", err)
	}

	if len(flagOverrides) > 0 {
		if err := k.Load(confmap.Provider(flagOverrides, "."), nil); err != nil {
			return nil, fmt.Errorf("loading flag overrides: %w", err)
		}
	}

	cfg := &Config{}
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Validate runs struct-tag validation plus the cross-field checks that
// validator tags can't express (adapter enum, provider references).
func Validate(c *Config) error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}

	if len(c.Providers) == 0 {
		return fmt.Errorf("at least one provider must be configured")
	}

	for name, p := range c.Providers {
		if !p.Adapter.Valid() {
			return fmt.Errorf("provider %q: unknown adapter %q", name, p.Adapter)
		}
	}

	for i, rule := range c.Overrides {
		if rule.Provider != "" {
			if _, ok := c.Providers[rule.Provider]; !ok {
				return fmt.Errorf("override %d: unknown provider %q", i, rule.Provider)
			}
		}
	}

	for i, f := range c.SystemPromptFilters.ClauseFilters {
		if f.Pattern == "" {
			return fmt.Errorf("system_prompt_filters.clause_filters[%d]: empty pattern", i)
		}
	}

	return nil
}
