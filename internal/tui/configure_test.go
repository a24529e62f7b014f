package tui

import (
	"strings"
	"testing"

	"github.com/leonardotrapani/livescribe/internal/config"
)

func TestValidateEndpoint(t *testing.T) {
	tests := []struct {
		backend  string
		endpoint string
		wantErr  bool
	}{
		{"websocket", "ws://localhost:2700/v1/recognize", false},
		{"websocket", "wss://asr.example.com", false},
		{"websocket", "http://localhost", true},
		{"websocket", "", true},
		{"openai", "", false},
		{"openai", "https://api.example.com/v1", false},
		{"openai", "ws://localhost", true},
	}
	for _, tt := range tests {
		t.Run(tt.backend+" "+tt.endpoint, func(t *testing.T) {
			err := validateEndpoint(tt.backend, tt.endpoint)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateEndpoint(%q, %q) = %v, wantErr %v", tt.backend, tt.endpoint, err, tt.wantErr)
			}
		})
	}
}

func TestFieldValidators(t *testing.T) {
	tests := []struct {
		name    string
		fn      func(string) error
		input   string
		wantErr bool
	}{
		{"empty locale", validateLocale, "", false},
		{"locale", validateLocale, "ja-JP", false},
		{"posix locale", validateLocale, "de_DE.UTF-8", false},
		{"unknown locale", validateLocale, "tlh-KX", true},
		{"capacity", validateCapacity, "64", false},
		{"zero capacity", validateCapacity, "0", true},
		{"text capacity", validateCapacity, "lots", true},
		{"empty listen", validateListen, "", false},
		{"listen", validateListen, "127.0.0.1:9464", false},
		{"listen port only", validateListen, ":9464", false},
		{"listen no port", validateListen, "localhost", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.fn(tt.input); (err != nil) != tt.wantErr {
				t.Errorf("got %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestMenuLabels(t *testing.T) {
	cfg := config.DefaultConfig()

	if got := formatRecognitionLabel(cfg); got != "Recognition (websocket, system locale)" {
		t.Errorf("recognition label = %q", got)
	}
	if got := formatMetricsLabel(cfg); got != "Metrics (off)" {
		t.Errorf("metrics label = %q", got)
	}

	cfg.Recognition.Locale = "fr-FR"
	cfg.Metrics.Listen = ":9464"
	cfg.Notifications.Enabled = false
	cfg.Providers["openai"] = config.ProviderConfig{APIKey: "sk-test"}

	if got := formatRecognitionLabel(cfg); got != "Recognition (websocket, fr-FR)" {
		t.Errorf("recognition label = %q", got)
	}
	if got := formatMetricsLabel(cfg); got != "Metrics (:9464)" {
		t.Errorf("metrics label = %q", got)
	}
	if got := formatNotificationsLabel(cfg); got != "Notifications (off)" {
		t.Errorf("notifications label = %q", got)
	}
	if got := formatProvidersLabel(cfg); got != "Providers (OpenAI key set)" {
		t.Errorf("providers label = %q", got)
	}
}

func TestSummaryLines(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Recognition.Backend = "openai"
	cfg.Recognition.Endpoint = ""

	joined := strings.Join(summaryLines(cfg), "\n")
	for _, want := range []string{"Backend:        openai", "Endpoint:       default", "OpenAI key:     from environment"} {
		if !strings.Contains(joined, want) {
			t.Errorf("summary missing %q:\n%s", want, joined)
		}
	}
}

func TestCloneConfigIsolatesProviders(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Providers["openai"] = config.ProviderConfig{APIKey: "original"}

	c := cloneConfig(cfg)
	c.Providers["openai"] = config.ProviderConfig{APIKey: "edited"}
	c.Recognition.Locale = "ja-JP"

	if cfg.Providers["openai"].APIKey != "original" || cfg.Recognition.Locale != "" {
		t.Error("editing the clone changed the original config")
	}
}

func TestDefaultEndpoint(t *testing.T) {
	if got := defaultEndpoint("websocket"); !strings.HasPrefix(got, "ws://") {
		t.Errorf("websocket default = %q", got)
	}
	if got := defaultEndpoint("openai"); got != "" {
		t.Errorf("openai default = %q", got)
	}
}
