package config

import "time"

type Config struct {
	Audio         AudioConfig               `toml:"audio"`
	Buffer        BufferConfig              `toml:"buffer"`
	Recognition   RecognitionConfig         `toml:"recognition"`
	Providers     map[string]ProviderConfig `toml:"providers"`
	Notifications NotificationsConfig       `toml:"notifications"`
	Metrics       MetricsConfig             `toml:"metrics"`
}

// AudioConfig is the audio-session configuration handed to the microphone
// driver on every open.
type AudioConfig struct {
	SampleRate    int    `toml:"sample_rate"`
	Channels      int    `toml:"channels"`
	Format        string `toml:"format"`
	BlockSize     int    `toml:"block_size"`
	Device        string `toml:"device"`
	MediaRole     string `toml:"media_role"`
	MediaCategory string `toml:"media_category"`
	Latency       string `toml:"latency"`
}

type BufferConfig struct {
	Capacity int    `toml:"capacity"`
	Overflow string `toml:"overflow"` // "drop-oldest" or "drop-newest"
}

type RecognitionConfig struct {
	Backend        string        `toml:"backend"` // "websocket" or "openai"
	Locale         string        `toml:"locale"`  // empty = from the environment
	PartialResults bool          `toml:"partial_results"`
	OnDevice       bool          `toml:"on_device"`
	Model          string        `toml:"model"`
	Endpoint       string        `toml:"endpoint"`
	FinalTimeout   time.Duration `toml:"final_timeout"`
	DrainInterval  time.Duration `toml:"drain_interval"`
	OpenTimeout    time.Duration `toml:"open_timeout"`
	DialRetries    int           `toml:"dial_retries"`
	ProbeInterval  time.Duration `toml:"probe_interval"`
	MaxBatchBytes  int           `toml:"max_batch_bytes"` // openai only, 0 = backend default
}

// ProviderConfig holds API key for a provider
type ProviderConfig struct {
	APIKey string `toml:"api_key"`
}

type NotificationsConfig struct {
	Enabled bool   `toml:"enabled"`
	Type    string `toml:"type"` // "desktop", "log", "none"
}

type MetricsConfig struct {
	Listen string `toml:"listen"` // empty disables the /metrics endpoint
}
