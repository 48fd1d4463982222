package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hostline-ai/hostline/internal/dialogue"
)

// ValidProviderNames lists the provider implementations shipped with the
// service, per provider kind. Unknown names produce a warning rather than an
// error so externally registered providers keep working.
var ValidProviderNames = map[string][]string{
	"stt":        {"speechkit"},
	"tts":        {"speechkit"},
	"llm":        {"openai", "anthropic", "gemini", "ollama"},
	"embeddings": {"openai"},
}

// Default returns a configuration with sensible defaults applied.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr: ":8080",
			LogLevel:   LogInfo,
		},
		Agent: AgentConfig{
			Persona: "default",
			Voice:   "alena",
			RAGTopK: 5,
		},
	}
}

// Load reads and validates the YAML configuration at path. ${VAR}
// references in the file are expanded from the environment, so API keys can
// stay out of the file itself.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg, err := LoadFromReader(strings.NewReader(os.ExpandEnv(string(raw))))
	if err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes and validates YAML configuration from r.
// Unknown fields are rejected to catch typos early.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for hard errors and logs warnings for
// suspicious but workable values. All errors are collected and joined.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.ListenAddr == "" {
		errs = append(errs, errors.New("server.listen_addr must not be empty"))
	}
	if tls := c.Server.TLS; tls != nil {
		if tls.CertFile == "" || tls.KeyFile == "" {
			errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
		}
	}

	if c.Agent.SystemPrompt == "" {
		if _, ok := dialogue.SystemPrompt(c.Agent.Persona); !ok {
			errs = append(errs, fmt.Errorf("agent.persona %q is not a known persona (have: %v)",
				c.Agent.Persona, dialogue.PromptNames()))
		}
	}
	if t := c.Agent.Temperature; t < 0 || t > 2 {
		errs = append(errs, fmt.Errorf("agent.temperature %v out of range [0, 2]", t))
	}
	if c.Agent.MaxTokens < 0 {
		errs = append(errs, errors.New("agent.max_tokens must not be negative"))
	}
	if c.Agent.MaxHistoryTurns < 0 {
		errs = append(errs, errors.New("agent.max_history_turns must not be negative"))
	}
	if c.Agent.RAGTopK < 0 {
		errs = append(errs, errors.New("agent.rag_top_k must not be negative"))
	}
	if c.Agent.UseRAG {
		if c.Database.PostgresDSN == "" {
			errs = append(errs, errors.New("agent.use_rag requires database.postgres_dsn"))
		}
		if c.Providers.Embeddings.Name == "" {
			errs = append(errs, errors.New("agent.use_rag requires a providers.embeddings entry"))
		}
	}
	if c.Agent.PersistHistory && c.Database.PostgresDSN == "" {
		errs = append(errs, errors.New("agent.persist_history requires database.postgres_dsn"))
	}

	if c.Calls.DrainTimeoutSeconds < 0 {
		errs = append(errs, errors.New("calls.drain_timeout_seconds must not be negative"))
	}
	if c.Calls.EvictionGraceSeconds < 0 {
		errs = append(errs, errors.New("calls.eviction_grace_seconds must not be negative"))
	}
	if c.Calls.MaxQueuedSegments < 0 {
		errs = append(errs, errors.New("calls.max_queued_segments must not be negative"))
	}

	validateProviderName("stt", c.Providers.STT)
	validateProviderName("tts", c.Providers.TTS)
	validateProviderName("llm", c.Providers.LLM)
	validateProviderName("embeddings", c.Providers.Embeddings)
	for _, entry := range c.Providers.STTFallbacks {
		validateProviderName("stt", entry)
	}
	for _, entry := range c.Providers.TTSFallbacks {
		validateProviderName("tts", entry)
	}

	return errors.Join(errs...)
}

// validateProviderName warns about provider names that are not shipped with
// the service. Empty names are skipped; whether a provider kind is required
// is decided at wiring time.
func validateProviderName(kind string, entry ProviderEntry) {
	if entry.Name == "" {
		return
	}
	if !slices.Contains(ValidProviderNames[kind], entry.Name) {
		slog.Warn("unrecognised provider name; expecting an externally registered provider",
			"kind", kind,
			"name", entry.Name,
			"known", ValidProviderNames[kind])
	}
}
