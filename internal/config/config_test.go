package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/leonardotrapani/livescribe/internal/buffer"
	"github.com/leonardotrapani/livescribe/internal/transcriber"
)

// createTestConfig returns a valid configuration for testing
func createTestConfig() *Config {
	cfg := DefaultConfig()
	cfg.Recognition.Locale = "en-US"
	cfg.Notifications.Type = "log"
	return cfg
}

func TestConfig_Validate(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("LIVESCRIBE_API_KEY", "")

	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{name: "valid config", modify: func(c *Config) {}},
		{name: "zero sample rate", modify: func(c *Config) { c.Audio.SampleRate = 0 }, wantErr: "invalid audio.sample_rate: 0"},
		{name: "zero channels", modify: func(c *Config) { c.Audio.Channels = 0 }, wantErr: "invalid audio.channels"},
		{name: "empty format", modify: func(c *Config) { c.Audio.Format = "" }, wantErr: "invalid audio.format: empty"},
		{name: "unknown format", modify: func(c *Config) { c.Audio.Format = "mp3" }, wantErr: "invalid audio.format: mp3"},
		{name: "zero block size", modify: func(c *Config) { c.Audio.BlockSize = 0 }, wantErr: "invalid audio.block_size"},
		{name: "zero capacity", modify: func(c *Config) { c.Buffer.Capacity = 0 }, wantErr: "invalid buffer.capacity"},
		{name: "blocking overflow", modify: func(c *Config) { c.Buffer.Overflow = "block" }, wantErr: "invalid buffer.overflow: block"},
		{name: "drop-newest", modify: func(c *Config) { c.Buffer.Overflow = "drop-newest" }},
		{name: "empty backend", modify: func(c *Config) { c.Recognition.Backend = "" }, wantErr: "invalid recognition.backend: empty"},
		{name: "unknown backend", modify: func(c *Config) { c.Recognition.Backend = "sphinx" }, wantErr: "invalid recognition.backend: sphinx"},
		{name: "http endpoint for websocket", modify: func(c *Config) { c.Recognition.Endpoint = "http://localhost" }, wantErr: "invalid recognition.endpoint"},
		{
			name: "openai without key",
			modify: func(c *Config) {
				c.Recognition.Backend = "openai"
				c.Recognition.Endpoint = ""
			},
			wantErr: "OpenAI API key required",
		},
		{
			name: "openai with key",
			modify: func(c *Config) {
				c.Recognition.Backend = "openai"
				c.Recognition.Endpoint = ""
				c.Providers["openai"] = ProviderConfig{APIKey: "sk-test"}
			},
		},
		{
			name: "openai with websocket endpoint",
			modify: func(c *Config) {
				c.Recognition.Backend = "openai"
				c.Providers["openai"] = ProviderConfig{APIKey: "sk-test"}
			},
			wantErr: "invalid recognition.endpoint",
		},
		{name: "unsupported locale", modify: func(c *Config) { c.Recognition.Locale = "tlh-KX" }, wantErr: "invalid recognition.locale: tlh-KX"},
		{name: "system locale", modify: func(c *Config) { c.Recognition.Locale = "" }},
		{name: "zero final timeout", modify: func(c *Config) { c.Recognition.FinalTimeout = 0 }, wantErr: "invalid recognition.final_timeout"},
		{name: "zero drain interval", modify: func(c *Config) { c.Recognition.DrainInterval = 0 }, wantErr: "invalid recognition.drain_interval"},
		{name: "negative open timeout", modify: func(c *Config) { c.Recognition.OpenTimeout = -time.Second }, wantErr: "invalid recognition.open_timeout"},
		{name: "negative retries", modify: func(c *Config) { c.Recognition.DialRetries = -1 }, wantErr: "invalid recognition.dial_retries"},
		{name: "negative batch limit", modify: func(c *Config) { c.Recognition.MaxBatchBytes = -1 }, wantErr: "invalid recognition.max_batch_bytes: -1"},
		{name: "zero batch limit uses backend default", modify: func(c *Config) { c.Recognition.MaxBatchBytes = 0 }},
		{name: "bad notification type", modify: func(c *Config) { c.Notifications.Type = "pager" }, wantErr: "invalid notifications.type: pager"},
		{
			name: "bad notification type when disabled",
			modify: func(c *Config) {
				c.Notifications.Enabled = false
				c.Notifications.Type = "pager"
			},
		},
		{name: "metrics listen", modify: func(c *Config) { c.Metrics.Listen = "127.0.0.1:9464" }},
		{name: "bad metrics listen", modify: func(c *Config) { c.Metrics.Listen = "9464" }, wantErr: "invalid metrics.listen"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := createTestConfig()
			tt.modify(cfg)
			err := cfg.Validate()

			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %q, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestDefaultConfigIsValid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("DefaultConfig() should validate: %v", err)
	}
}

func TestResolveAPIKey(t *testing.T) {
	tests := []struct {
		name       string
		configured string
		openaiEnv  string
		genericEnv string
		backend    string
		want       string
	}{
		{name: "config wins", configured: "from-config", openaiEnv: "from-env", backend: "openai", want: "from-config"},
		{name: "openai env", openaiEnv: "from-env", genericEnv: "generic", backend: "openai", want: "from-env"},
		{name: "generic env", genericEnv: "generic", backend: "openai", want: "generic"},
		{name: "websocket ignores openai env", openaiEnv: "from-env", genericEnv: "generic", backend: "websocket", want: "generic"},
		{name: "nothing", backend: "websocket", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("OPENAI_API_KEY", tt.openaiEnv)
			t.Setenv("LIVESCRIBE_API_KEY", tt.genericEnv)

			cfg := DefaultConfig()
			if tt.configured != "" {
				cfg.Providers[tt.backend] = ProviderConfig{APIKey: tt.configured}
			}
			if got := cfg.resolveAPIKey(tt.backend); got != tt.want {
				t.Errorf("resolveAPIKey() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestToSessionConfig(t *testing.T) {
	cfg := createTestConfig()
	cfg.Recognition.Locale = "ja-JP"
	cfg.Recognition.OnDevice = true
	cfg.Recognition.Model = "large"
	cfg.Audio.MediaRole = "Assistant"
	cfg.Audio.Latency = "256/16000"
	cfg.Buffer = BufferConfig{Capacity: 8, Overflow: "drop-newest"}

	sc := cfg.ToSessionConfig()
	if sc.Locale != "ja-JP" {
		t.Errorf("Locale = %q", sc.Locale)
	}
	if !sc.Options.PartialResults || !sc.Options.OnDevice || sc.Options.Model != "large" {
		t.Errorf("Options = %+v", sc.Options)
	}
	if sc.Audio.MediaRole != "Assistant" || sc.Audio.Latency != "256/16000" || sc.Audio.BlockSize != 3200 {
		t.Errorf("Audio = %+v", sc.Audio)
	}
	if sc.Buffer.Capacity != 8 || sc.Buffer.Policy != buffer.DropNewest {
		t.Errorf("Buffer = %+v", sc.Buffer)
	}
	if sc.FinalTimeout != 5*time.Second || sc.DrainInterval != 20*time.Millisecond {
		t.Errorf("timeouts = %v / %v", sc.FinalTimeout, sc.DrainInterval)
	}
}

func TestEffectiveLocaleFallsBackToEnvironment(t *testing.T) {
	t.Setenv("LC_ALL", "")
	t.Setenv("LC_MESSAGES", "")
	t.Setenv("LANG", "fr_FR.UTF-8")

	cfg := DefaultConfig()
	if got := cfg.EffectiveLocale(); got != "fr-FR" {
		t.Errorf("EffectiveLocale() = %q, want fr-FR", got)
	}
}

func TestToTranscriberConfig(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("LIVESCRIBE_API_KEY", "")

	cfg := createTestConfig()
	cfg.Recognition.Backend = "openai"
	cfg.Recognition.Endpoint = "https://api.example.com/v1"
	cfg.Providers["openai"] = ProviderConfig{APIKey: "sk-test"}

	tc := cfg.ToTranscriberConfig()
	if tc.Backend != "openai" || tc.APIKey != "sk-test" || tc.Endpoint != "https://api.example.com/v1" {
		t.Errorf("ToTranscriberConfig() = %+v", tc)
	}
	if tc.HealthPath == "" {
		t.Error("HealthPath should default")
	}
	if tc.MaxBatchBytes != transcriber.DefaultMaxBatchBytes {
		t.Errorf("MaxBatchBytes = %d, want %d", tc.MaxBatchBytes, transcriber.DefaultMaxBatchBytes)
	}
}

func TestNotifierType(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.NotifierType() != "desktop" {
		t.Errorf("NotifierType() = %q", cfg.NotifierType())
	}
	cfg.Notifications.Enabled = false
	if cfg.NotifierType() != "none" {
		t.Errorf("disabled NotifierType() = %q", cfg.NotifierType())
	}
}

func TestLoadFile(t *testing.T) {
	content := `
[audio]
  sample_rate = 48000
  channels = 2
  media_role = "Assistant"

[buffer]
  overflow = "drop-newest"

[recognition]
  backend = "websocket"
  locale = "de-DE"
  endpoint = "wss://asr.example.com/v1/recognize"
  final_timeout = "3s"

[providers.websocket]
  api_key = "secret"

[notifications]
  enabled = false
`
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error: %v", err)
	}

	if cfg.Audio.SampleRate != 48000 || cfg.Audio.Channels != 2 || cfg.Audio.MediaRole != "Assistant" {
		t.Errorf("audio not decoded: %+v", cfg.Audio)
	}
	if cfg.Audio.Format != "s16" || cfg.Audio.BlockSize != 3200 {
		t.Errorf("missing audio keys should keep defaults: %+v", cfg.Audio)
	}
	if cfg.Buffer.Overflow != "drop-newest" || cfg.Buffer.Capacity != 64 {
		t.Errorf("buffer = %+v", cfg.Buffer)
	}
	if cfg.Recognition.FinalTimeout != 3*time.Second {
		t.Errorf("final_timeout = %v, want 3s", cfg.Recognition.FinalTimeout)
	}
	if cfg.Recognition.DrainInterval != 20*time.Millisecond {
		t.Errorf("drain_interval default lost: %v", cfg.Recognition.DrainInterval)
	}
	if cfg.Providers["websocket"].APIKey != "secret" {
		t.Errorf("providers = %+v", cfg.Providers)
	}
	if cfg.Notifications.Enabled {
		t.Error("notifications should be disabled")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("loaded config should validate: %v", err)
	}
}

func TestLoadFile_Errors(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.toml"))
	if !errors.Is(err, ErrConfigNotFound) {
		t.Errorf("expected ErrConfigNotFound, got %v", err)
	}

	path := filepath.Join(t.TempDir(), "config.toml")
	os.WriteFile(path, []byte("[audio\nsample_rate = "), 0644)
	if _, err := LoadFile(path); err == nil || errors.Is(err, ErrConfigNotFound) {
		t.Errorf("expected parse error, got %v", err)
	}
}

func TestLoadUsesXDGConfigHome(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	path, err := GetConfigPath()
	if err != nil {
		t.Fatalf("GetConfigPath() error: %v", err)
	}
	if want := filepath.Join(dir, "livescribe", "config.toml"); path != want {
		t.Errorf("GetConfigPath() = %q, want %q", path, want)
	}

	if _, err := Load(); !errors.Is(err, ErrConfigNotFound) {
		t.Errorf("Load() without file = %v, want ErrConfigNotFound", err)
	}
	cfg, err := LoadOrDefault()
	if err != nil || cfg.Recognition.Backend != "websocket" {
		t.Errorf("LoadOrDefault() = %+v, %v", cfg, err)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	cfg := createTestConfig()
	cfg.Recognition.FinalTimeout = 7 * time.Second
	cfg.Recognition.Locale = "es-ES"
	cfg.Providers["openai"] = ProviderConfig{APIKey: "sk-roundtrip"}
	cfg.Metrics.Listen = "127.0.0.1:9464"

	if err := Save(cfg); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	path, _ := GetConfigPath()
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat saved config: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("config permissions = %v, want 0600", info.Mode().Perm())
	}

	loaded, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if loaded.Recognition.FinalTimeout != 7*time.Second || loaded.Recognition.Locale != "es-ES" {
		t.Errorf("recognition = %+v", loaded.Recognition)
	}
	if loaded.Providers["openai"].APIKey != "sk-roundtrip" {
		t.Errorf("providers = %+v", loaded.Providers)
	}
	if loaded.Metrics.Listen != "127.0.0.1:9464" {
		t.Errorf("metrics = %+v", loaded.Metrics)
	}
}

func TestManager_GetConfigReturnsCopy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	m, err := NewManagerForFile(path)
	if err != nil {
		t.Fatalf("NewManagerForFile() error: %v", err)
	}

	cfg := m.GetConfig()
	cfg.Audio.SampleRate = 1
	cfg.Providers["openai"] = ProviderConfig{APIKey: "mutated"}

	fresh := m.GetConfig()
	if fresh.Audio.SampleRate != 16000 {
		t.Error("GetConfig() should return a copy")
	}
	if _, ok := fresh.Providers["openai"]; ok {
		t.Error("providers map should be copied")
	}
}

func TestManager_HotReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	m, err := NewManagerForFile(path)
	if err != nil {
		t.Fatalf("NewManagerForFile() error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := m.StartWatching(ctx); err != nil {
		t.Fatalf("StartWatching() error: %v", err)
	}
	defer m.Stop()

	var mu sync.Mutex
	var reloaded []string
	m.OnChange(func(c *Config) {
		mu.Lock()
		reloaded = append(reloaded, c.Recognition.Locale)
		mu.Unlock()
	})

	cfg := createTestConfig()
	cfg.Recognition.Locale = "it-IT"
	if err := SaveFile(path, cfg); err != nil {
		t.Fatalf("SaveFile() error: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for m.GetConfig().Recognition.Locale != "it-IT" {
		if time.Now().After(deadline) {
			t.Fatal("config was not reloaded")
		}
		time.Sleep(20 * time.Millisecond)
	}

	// an invalid file keeps the previous config
	os.WriteFile(path, []byte("[buffer]\noverflow = \"block\"\n"), 0644)
	time.Sleep(200 * time.Millisecond)
	if got := m.GetConfig(); got.Buffer.Overflow != "drop-oldest" || got.Recognition.Locale != "it-IT" {
		t.Errorf("invalid reload should be rejected, got buffer=%+v locale=%s", got.Buffer, got.Recognition.Locale)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(reloaded) == 0 || reloaded[0] != "it-IT" {
		t.Errorf("OnChange callbacks = %v", reloaded)
	}
}

func TestManager_ReloadRunsCallbacksInOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	m, err := NewManagerForFile(path)
	if err != nil {
		t.Fatalf("NewManagerForFile() error: %v", err)
	}

	var calls []string
	m.OnChange(func(c *Config) { calls = append(calls, "first:"+c.Recognition.Locale) })
	m.OnChange(func(c *Config) {
		calls = append(calls, "second:"+c.Recognition.Locale)
		// registered during dispatch, runs from the next reload on
		m.OnChange(func(c *Config) { calls = append(calls, "late:"+c.Recognition.Locale) })
	})

	for _, locale := range []string{"fr-FR", "es-ES"} {
		cfg := createTestConfig()
		cfg.Recognition.Locale = locale
		if err := SaveFile(path, cfg); err != nil {
			t.Fatalf("SaveFile() error: %v", err)
		}
		m.reloadConfig()
		if got := m.GetConfig().Recognition.Locale; got != locale {
			t.Fatalf("locale after reload = %q, want %q", got, locale)
		}
	}

	want := []string{"first:fr-FR", "second:fr-FR", "first:es-ES", "second:es-ES", "late:es-ES"}
	if strings.Join(calls, ",") != strings.Join(want, ",") {
		t.Errorf("callbacks = %v, want %v", calls, want)
	}
}
