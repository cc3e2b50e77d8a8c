// Package config provides the configuration schema, loader, and provider
// registry for the Astra voice session server.
package config

import "time"

// LogLevel controls log verbosity for the Astra server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure for Astra.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Live      ProviderEntry   `yaml:"live"`
	Session   SessionConfig   `yaml:"session"`
	Audio     AudioConfig     `yaml:"audio"`
	Strengths StrengthsConfig `yaml:"strengths"`
}

// ServerConfig holds network and logging settings for the Astra server.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// ProviderEntry selects and configures the live speech provider.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation
	// (e.g., "gemini-live", "openai-realtime").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider
	// (e.g., "gemini-2.5-flash-native-audio-preview-09-2025").
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by the
	// standard fields above. Values may be strings, numbers, booleans, or nested maps.
	Options map[string]any `yaml:"options"`
}

// SessionConfig describes the conversation session defaults.
type SessionConfig struct {
	// Language selects the interface and persona language ("en" or "zh").
	Language string `yaml:"language"`

	// Voice is the provider voice name used for speech output.
	Voice string `yaml:"voice"`

	// ConnectTimeout bounds how long a connection attempt may take,
	// including the provider's setup handshake. Zero means no extra bound
	// beyond the caller's context.
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// AudioConfig selects the audio endpoints for capture and playback.
type AudioConfig struct {
	// InputWAV is the path to a WAV file used as the microphone source.
	InputWAV string `yaml:"input_wav"`

	// InputRate is the sample rate the input file was recorded at. When it
	// differs from the 16kHz capture rate the file is resampled on the fly.
	// Zero means the file already matches the capture rate.
	InputRate int `yaml:"input_rate"`

	// OutputWAV is the path the playback device renders to.
	OutputWAV string `yaml:"output_wav"`
}

// StrengthsConfig holds persistence settings for recorded strengths.
type StrengthsConfig struct {
	// JournalPath is the JSONL file strengths are appended to.
	// When empty, strengths are kept in memory only.
	JournalPath string `yaml:"journal_path"`
}
