package config

import (
	"fmt"
	"net"
	"strings"

	"github.com/leonardotrapani/livescribe/internal/buffer"
	"github.com/leonardotrapani/livescribe/internal/language"
	"github.com/leonardotrapani/livescribe/internal/recording"
)

func (c *Config) Validate() error {
	if c.Audio.SampleRate <= 0 {
		return fmt.Errorf("invalid audio.sample_rate: %d", c.Audio.SampleRate)
	}
	if c.Audio.Channels <= 0 {
		return fmt.Errorf("invalid audio.channels: %d", c.Audio.Channels)
	}
	if c.Audio.Format == "" {
		return fmt.Errorf("invalid audio.format: empty")
	}
	if (recording.Format{Encoding: c.Audio.Format}).BytesPerSample() == 0 {
		return fmt.Errorf("invalid audio.format: %s (use u8, s8, s16, s24, s32, f32 or f64)", c.Audio.Format)
	}
	if c.Audio.BlockSize <= 0 {
		return fmt.Errorf("invalid audio.block_size: %d", c.Audio.BlockSize)
	}

	if c.Buffer.Capacity <= 0 {
		return fmt.Errorf("invalid buffer.capacity: %d", c.Buffer.Capacity)
	}
	if _, err := buffer.ParsePolicy(c.Buffer.Overflow); err != nil {
		return fmt.Errorf("invalid buffer.overflow: %s (%v)", c.Buffer.Overflow, err)
	}

	r := c.Recognition
	switch r.Backend {
	case "websocket":
		if !strings.HasPrefix(r.Endpoint, "ws://") && !strings.HasPrefix(r.Endpoint, "wss://") {
			return fmt.Errorf("invalid recognition.endpoint: %q (websocket backend needs a ws:// or wss:// URL)", r.Endpoint)
		}
	case "openai":
		if r.Endpoint != "" && !strings.HasPrefix(r.Endpoint, "http://") && !strings.HasPrefix(r.Endpoint, "https://") {
			return fmt.Errorf("invalid recognition.endpoint: %q (openai backend needs an http(s) base URL or empty)", r.Endpoint)
		}
		if c.resolveAPIKey("openai") == "" {
			return fmt.Errorf("OpenAI API key required: not found in config (providers.openai.api_key) or environment variable (OPENAI_API_KEY, LIVESCRIBE_API_KEY)")
		}
	case "":
		return fmt.Errorf("invalid recognition.backend: empty")
	default:
		return fmt.Errorf("invalid recognition.backend: %s (must be websocket or openai)", r.Backend)
	}

	if r.Locale != "" && !language.IsSupported(r.Locale) {
		return fmt.Errorf("invalid recognition.locale: %s (use a tag like 'en-US' or empty for the system locale)", r.Locale)
	}
	if r.FinalTimeout <= 0 {
		return fmt.Errorf("invalid recognition.final_timeout: %v", r.FinalTimeout)
	}
	if r.DrainInterval <= 0 {
		return fmt.Errorf("invalid recognition.drain_interval: %v", r.DrainInterval)
	}
	if r.OpenTimeout < 0 {
		return fmt.Errorf("invalid recognition.open_timeout: %v", r.OpenTimeout)
	}
	if r.DialRetries < 0 {
		return fmt.Errorf("invalid recognition.dial_retries: %d", r.DialRetries)
	}
	if r.ProbeInterval < 0 {
		return fmt.Errorf("invalid recognition.probe_interval: %v", r.ProbeInterval)
	}
	if r.MaxBatchBytes < 0 {
		return fmt.Errorf("invalid recognition.max_batch_bytes: %d", r.MaxBatchBytes)
	}

	if c.Notifications.Enabled {
		switch c.Notifications.Type {
		case "desktop", "log", "none":
		default:
			return fmt.Errorf("invalid notifications.type: %s (must be desktop, log or none)", c.Notifications.Type)
		}
	}

	if c.Metrics.Listen != "" {
		if _, _, err := net.SplitHostPort(c.Metrics.Listen); err != nil {
			return fmt.Errorf("invalid metrics.listen: %s (%v)", c.Metrics.Listen, err)
		}
	}

	return nil
}
