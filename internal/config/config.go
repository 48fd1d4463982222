// Package config defines the YAML configuration schema for the hostline
// service and the loader that parses and validates it.
package config

import (
	"log/slog"
	"strings"
)

// LogLevel is a string alias for slog levels used in YAML config.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// SlogLevel converts the config log level to a slog.Level.
// Unknown values default to info.
func (l LogLevel) SlogLevel() slog.Level {
	switch LogLevel(strings.ToLower(string(l))) {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Config is the root configuration for the hostline service.
type Config struct {
	// Server configures the HTTP/WebSocket listener.
	Server ServerConfig `yaml:"server"`

	// Providers configures the speech and language providers.
	Providers ProvidersConfig `yaml:"providers"`

	// Agent configures the conversational agent's behaviour.
	Agent AgentConfig `yaml:"agent"`

	// Database configures optional PostgreSQL persistence. Leave the DSN
	// empty to run without conversation history and retrieval.
	Database DatabaseConfig `yaml:"database"`

	// Calls tunes per-call runtime limits.
	Calls CallsConfig `yaml:"calls"`
}

// ServerConfig configures the network listener.
type ServerConfig struct {
	// ListenAddr is the host:port the HTTP server binds to.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel sets the minimum slog level ("debug", "info", "warn", "error").
	LogLevel LogLevel `yaml:"log_level"`

	// TLS enables HTTPS when set.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds the certificate pair for HTTPS.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// ProvidersConfig selects and configures the external providers.
type ProvidersConfig struct {
	// STT configures the speech-to-text provider.
	STT ProviderEntry `yaml:"stt"`

	// TTS configures the text-to-speech provider.
	TTS ProviderEntry `yaml:"tts"`

	// LLM configures the dialogue model backend.
	LLM ProviderEntry `yaml:"llm"`

	// Embeddings configures the embedding provider used for retrieval.
	// Only consulted when agent.use_rag is enabled.
	Embeddings ProviderEntry `yaml:"embeddings"`

	// STTFallbacks lists transcription backends tried, in order, when the
	// primary STT provider fails to open a stream.
	STTFallbacks []ProviderEntry `yaml:"stt_fallbacks"`

	// TTSFallbacks lists synthesis backends tried, in order, when the
	// primary TTS provider fails to start synthesis.
	TTSFallbacks []ProviderEntry `yaml:"tts_fallbacks"`
}

// ProviderEntry configures a single named provider.
type ProviderEntry struct {
	// Name selects the registered provider implementation
	// (e.g., "speechkit", "openai").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider
	// (e.g., "gpt-4o-mini", "general").
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by
	// the standard fields above (e.g., "folder_id" for SpeechKit).
	Options map[string]any `yaml:"options"`
}

// StringOption returns the named option coerced to a string.
func (e ProviderEntry) StringOption(key string) string {
	if s, ok := e.Options[key].(string); ok {
		return s
	}
	return ""
}

// AgentConfig configures the conversational agent.
type AgentConfig struct {
	// Persona selects one of the built-in system prompts
	// ("default", "casual", "formal", "promotional").
	Persona string `yaml:"persona"`

	// SystemPrompt replaces the built-in persona prompt entirely when set.
	SystemPrompt string `yaml:"system_prompt"`

	// Greeting is the phrase spoken when a call goes active.
	// Empty selects the built-in default greeting.
	Greeting string `yaml:"greeting"`

	// Voice is the default synthesis voice identifier (e.g. "alena").
	Voice string `yaml:"voice"`

	// Temperature is the LLM sampling temperature. Zero means provider default.
	Temperature float64 `yaml:"temperature"`

	// MaxTokens caps the LLM response length. Zero means provider default.
	MaxTokens int `yaml:"max_tokens"`

	// MaxHistoryTurns caps the in-memory conversation history per call.
	MaxHistoryTurns int `yaml:"max_history_turns"`

	// UseRAG enables knowledge-base retrieval for responses.
	// Requires database.postgres_dsn and a configured embeddings provider.
	UseRAG bool `yaml:"use_rag"`

	// RAGTopK is the number of knowledge chunks retrieved per query.
	RAGTopK int `yaml:"rag_top_k"`

	// PersistHistory stores conversation transcripts in PostgreSQL.
	PersistHistory bool `yaml:"persist_history"`

	// Vocabulary lists domain terms (venue name, dishes) that final
	// transcripts are snapped to when recognition comes close.
	Vocabulary []string `yaml:"vocabulary"`
}

// DatabaseConfig configures PostgreSQL persistence.
type DatabaseConfig struct {
	// PostgresDSN is a pgx connection string. Empty disables persistence.
	PostgresDSN string `yaml:"postgres_dsn"`
}

// CallsConfig tunes per-call runtime limits.
type CallsConfig struct {
	// DrainTimeoutSeconds bounds how long a graceful end waits for queued
	// playback to finish before forcing teardown. Zero selects the default.
	DrainTimeoutSeconds int `yaml:"drain_timeout_seconds"`

	// EvictionGraceSeconds is how long ended calls stay queryable in the
	// registry before removal. Zero selects the default.
	EvictionGraceSeconds int `yaml:"eviction_grace_seconds"`

	// MaxQueuedSegments caps the playback queue per call.
	// Zero selects the sequencer default.
	MaxQueuedSegments int `yaml:"max_queued_segments"`
}
