package config

import (
	"os"

	"github.com/leonardotrapani/livescribe/internal/buffer"
	"github.com/leonardotrapani/livescribe/internal/language"
	"github.com/leonardotrapani/livescribe/internal/recording"
	"github.com/leonardotrapani/livescribe/internal/session"
	"github.com/leonardotrapani/livescribe/internal/transcriber"
)

func (c *Config) ToRecordingConfig() recording.Config {
	return recording.Config{
		SampleRate:    c.Audio.SampleRate,
		Channels:      c.Audio.Channels,
		Format:        c.Audio.Format,
		BlockSize:     c.Audio.BlockSize,
		Device:        c.Audio.Device,
		MediaRole:     c.Audio.MediaRole,
		MediaCategory: c.Audio.MediaCategory,
		Latency:       c.Audio.Latency,
	}
}

func (c *Config) ToBufferConfig() buffer.Config {
	return buffer.Config{
		Capacity: c.Buffer.Capacity,
		Policy:   buffer.OverflowPolicy(c.Buffer.Overflow),
	}
}

func (c *Config) ToTranscriberConfig() transcriber.Config {
	defaults := transcriber.DefaultConfig()
	return transcriber.Config{
		Backend:       c.Recognition.Backend,
		Endpoint:      c.Recognition.Endpoint,
		APIKey:        c.resolveAPIKey(c.Recognition.Backend),
		Model:         c.Recognition.Model,
		OpenTimeout:   c.Recognition.OpenTimeout,
		DialRetries:   c.Recognition.DialRetries,
		HealthPath:    defaults.HealthPath,
		ProbeInterval: c.Recognition.ProbeInterval,
		MaxBatchBytes: c.Recognition.MaxBatchBytes,
	}
}

// ToSessionConfig returns the configuration one recognition session runs with.
func (c *Config) ToSessionConfig() session.Config {
	return session.Config{
		Locale: c.EffectiveLocale(),
		Options: transcriber.Options{
			PartialResults: c.Recognition.PartialResults,
			OnDevice:       c.Recognition.OnDevice,
			Model:          c.Recognition.Model,
		},
		Audio:         c.ToRecordingConfig(),
		Buffer:        c.ToBufferConfig(),
		DrainInterval: c.Recognition.DrainInterval,
		FinalTimeout:  c.Recognition.FinalTimeout,
		OpenTimeout:   c.Recognition.OpenTimeout,
	}
}

// EffectiveLocale returns recognition.locale, or the system locale when unset.
func (c *Config) EffectiveLocale() string {
	if c.Recognition.Locale != "" {
		return c.Recognition.Locale
	}
	return language.Preferred()
}

// NotifierType returns the notifier kind to build, "none" when disabled.
func (c *Config) NotifierType() string {
	if !c.Notifications.Enabled {
		return "none"
	}
	return c.Notifications.Type
}

// resolveAPIKey returns the API key for a backend from config, then environment.
func (c *Config) resolveAPIKey(backend string) string {
	if c.Providers != nil {
		if pc, ok := c.Providers[backend]; ok && pc.APIKey != "" {
			return pc.APIKey
		}
	}

	if backend == "openai" {
		if key := os.Getenv("OPENAI_API_KEY"); key != "" {
			return key
		}
	}
	return os.Getenv("LIVESCRIBE_API_KEY")
}
