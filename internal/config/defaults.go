package config

import (
	"time"

	"github.com/leonardotrapani/livescribe/internal/transcriber"
)

// DefaultConfig returns the configuration used when no file exists yet.
func DefaultConfig() *Config {
	return &Config{
		Audio: AudioConfig{
			SampleRate:    16000,
			Channels:      1,
			Format:        "s16",
			BlockSize:     3200,
			Device:        "",
			MediaRole:     "Communication",
			MediaCategory: "Capture",
			Latency:       "",
		},
		Buffer: BufferConfig{
			Capacity: 64,
			Overflow: "drop-oldest",
		},
		Recognition: RecognitionConfig{
			Backend:        "websocket",
			Locale:         "",
			PartialResults: true,
			OnDevice:       false,
			Endpoint:       "ws://127.0.0.1:2700/v1/recognize",
			FinalTimeout:   5 * time.Second,
			DrainInterval:  20 * time.Millisecond,
			OpenTimeout:    10 * time.Second,
			DialRetries:    2,
			ProbeInterval:  30 * time.Second,
			MaxBatchBytes:  transcriber.DefaultMaxBatchBytes,
		},
		Providers: make(map[string]ProviderConfig),
		Notifications: NotificationsConfig{
			Enabled: true,
			Type:    "desktop",
		},
	}
}
