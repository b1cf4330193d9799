// Package config holds the typed, immutable representation of anthrogate's
// routing table: providers, override rules, filters and timeouts.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// AdapterKind names a translation strategy between the inbound Anthropic
// surface and a downstream API shape.
type AdapterKind string

const (
	AdapterAnthropicPassthrough AdapterKind = "anthropic-passthrough"
	AdapterOpenAI               AdapterKind = "openai"
	AdapterOpenAICompatible     AdapterKind = "openai-compatible"
)

// Valid reports whether k is one of the three enumerated adapter tags.
func (k AdapterKind) Valid() bool {
	switch k {
	case AdapterAnthropicPassthrough, AdapterOpenAI, AdapterOpenAICompatible:
		return true
	default:
		return false
	}
}

// TimeoutsConfig bounds connection establishment and the wait for
// response headers on a downstream call. Gaps between body bytes,
// including between streamed events, are not bounded. Never mutated
// after loading.
type TimeoutsConfig struct {
	ConnectMS int `json:"connect_ms" koanf:"connect_ms"`
	ReadMS    int `json:"read_ms" koanf:"read_ms"`
}

// Connect returns the connect timeout as a duration, defaulting to 10s.
func (t TimeoutsConfig) Connect() time.Duration {
	if t.ConnectMS <= 0 {
		return 10 * time.Second
	}
	return time.Duration(t.ConnectMS) * time.Millisecond
}

// Read returns the read timeout, defaulting to 60s. It is applied as the
// transport's response-header timeout only.
func (t TimeoutsConfig) Read() time.Duration {
	if t.ReadMS <= 0 {
		return 60 * time.Second
	}
	return time.Duration(t.ReadMS) * time.Millisecond
}

// ToolPolicyConfig names tools that the filter pipeline strips from an
// outbound request before routing and translation.
type ToolPolicyConfig struct {
	RestrictedToolNames []string `json:"restricted_tool_names" koanf:"restricted_tool_names"`
}

// DefaultToolPolicy is applied when neither a provider nor the global
// config specifies a restriction list.
func DefaultToolPolicy() ToolPolicyConfig {
	return ToolPolicyConfig{RestrictedToolNames: []string{"WebSearch", "WebFetch"}}
}

// ProviderConfig is the immutable, hashable description of one downstream
// model provider. base_url must be syntactically a URL; Adapter must be
// one of the three enumerated tags.
type ProviderConfig struct {
	Name       string            `json:"name" koanf:"name"`
	BaseURL    string            `json:"base_url" koanf:"base_url" validate:"required,url"`
	Adapter    AdapterKind       `json:"adapter" koanf:"adapter"`
	APIKeyEnv  string            `json:"api_key_env,omitempty" koanf:"api_key_env"`
	ToolPolicy *ToolPolicyConfig `json:"tool_policy,omitempty" koanf:"tool_policy"`
	Timeouts   *TimeoutsConfig   `json:"timeouts_ms,omitempty" koanf:"timeouts_ms"`
}

// EffectiveToolPolicy returns the provider's tool policy, falling back to
// the supplied global policy when the provider doesn't declare one.
func (p ProviderConfig) EffectiveToolPolicy(global ToolPolicyConfig) ToolPolicyConfig {
	if p.ToolPolicy != nil {
		return *p.ToolPolicy
	}
	return global
}

// EffectiveTimeouts returns the provider's timeouts, falling back to the
// supplied global timeouts.
func (p ProviderConfig) EffectiveTimeouts(global TimeoutsConfig) TimeoutsConfig {
	if p.Timeouts != nil {
		return *p.Timeouts
	}
	return global
}

// Hash returns a stable content hash of the provider config, used as half
// of the model-client cache key (spec.md §4.6: "the entire provider config
// object, not just base_url").
func (p ProviderConfig) Hash() string {
	// canonical encoding: field order is fixed by the struct, so
	// encoding/json's output is deterministic for a given value.
	b, err := json.Marshal(p)
	if err != nil {
		// ProviderConfig contains no cyclic or unmarshalable fields; this
		// can only happen if that invariant is violated by a future change.
		panic(fmt.Sprintf("config: hash provider %q: %v", p.Name, err))
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// WhenConditionKind names which comparison a WhenCondition performs.
type WhenConditionKind string

const (
	CurrentIn      WhenConditionKind = "current_in"
	CurrentNotIn   WhenConditionKind = "current_not_in"
	CurrentEquals  WhenConditionKind = "current_equals"
	CurrentNEquals WhenConditionKind = "current_not_equals"
)

// WhenCondition gates a single ModelConfigEntry leaf against the current
// value found at that path in the request body. Exactly one of Kind's
// four variants applies; which one is recorded at decode time since a
// bare `any` can't distinguish "absent" from "explicitly null" (itself a
// valid comparison value, per spec.md §3: "null in a list matches absent").
type WhenCondition struct {
	Kind  WhenConditionKind
	List  []any // populated for CurrentIn / CurrentNotIn
	Value any   // populated for CurrentEquals / CurrentNEquals
}

// ModelConfigEntry is either a bare always-applied value, or a value
// gated by a WhenCondition. Entries may be nested (e.g. reasoning.effort);
// nesting only gates that leaf.
type ModelConfigEntry struct {
	Value any
	When  *WhenCondition
}

// ConfigPatch is a mapping of dotted model-parameter path to the entry
// that should be written there. Leaves may themselves be nested maps;
// Leaves walks it.
type ConfigPatch map[string]any

// WhenPredicates is the ANDed predicate set attached to one OverrideRule.
// Absent predicates match anything.
type WhenPredicates struct {
	SystemRegex   string            `json:"system_regex,omitempty" koanf:"system_regex"`
	UserRegex     string            `json:"user_regex,omitempty" koanf:"user_regex"`
	ModelRegex    string            `json:"model_regex,omitempty" koanf:"model_regex"`
	HasTool       string            `json:"has_tool,omitempty" koanf:"has_tool"`
	Headers       map[string]string `json:"header,omitempty" koanf:"header"`
	CaseSensitive bool              `json:"case_sensitive,omitempty" koanf:"case_sensitive"`
}

// OverrideRule is one ordered routing directive. The first rule whose
// When predicates all match determines provider/model/config for the
// request.
type OverrideRule struct {
	When     WhenPredicates `json:"when" koanf:"when"`
	Provider string         `json:"provider,omitempty" koanf:"provider"`
	Model    string         `json:"model,omitempty" koanf:"model"`
	Config   ConfigPatch    `json:"config,omitempty" koanf:"config"`
}

// SystemClauseFilter removes one literal or regex span from the system
// prompt text.
type SystemClauseFilter struct {
	Pattern       string `json:"pattern" koanf:"pattern"`
	IsRegex       bool   `json:"is_regex" koanf:"is_regex"`
	CaseSensitive bool   `json:"case_sensitive" koanf:"case_sensitive"`
}

// SystemPromptFiltersConfig holds the ordered clause-filter list applied
// to every request's system prompt.
type SystemPromptFiltersConfig struct {
	ClauseFilters []SystemClauseFilter `json:"clause_filters" koanf:"clause_filters"`
}

// ServerConfig holds the inbound listen address.
type ServerConfig struct {
	Host string `json:"host" koanf:"host" validate:"omitempty,hostname_rfc1123|ip"`
	Port uint16 `json:"port" koanf:"port"`
}

// Config is the fully-resolved, immutable snapshot produced by the loader.
// A config reload atomically swaps the active *Config reference; no field
// is ever mutated in place after Load returns.
type Config struct {
	LogLevel            string                    `json:"log_level" koanf:"log_level" validate:"omitempty,oneof=debug info warn error"`
	Server              ServerConfig              `json:"server" koanf:"server"`
	Providers           map[string]ProviderConfig `json:"providers" koanf:"providers" validate:"required,dive"`
	Overrides           []OverrideRule            `json:"overrides" koanf:"overrides"`
	Tools               ToolPolicyConfig          `json:"tools" koanf:"tools"`
	SystemPromptFilters SystemPromptFiltersConfig `json:"system_prompt_filters" koanf:"system_prompt_filters"`
	TimeoutsMS          TimeoutsConfig            `json:"timeouts_ms" koanf:"timeouts_ms"`
}

// ApplyDefaults fills unset fields with sensible defaults. Called once,
// right after parsing, before Validate.
func (c *Config) ApplyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Server.Host == "" {
		c.Server.Host = "127.0.0.1"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8089
	}
	if len(c.Tools.RestrictedToolNames) == 0 {
		c.Tools = DefaultToolPolicy()
	}
	for name, p := range c.Providers {
		p.Name = name
		if p.Adapter == "" {
			p.Adapter = AdapterAnthropicPassthrough
		}
		c.Providers[name] = p
	}
}
