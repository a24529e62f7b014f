package tui

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/leonardotrapani/livescribe/internal/config"
	"github.com/leonardotrapani/livescribe/internal/language"
)

func formatRecognitionLabel(cfg *config.Config) string {
	locale := cfg.Recognition.Locale
	if locale == "" {
		locale = "system locale"
	}
	return fmt.Sprintf("Recognition (%s, %s)", cfg.Recognition.Backend, locale)
}

func formatProvidersLabel(cfg *config.Config) string {
	if cfg.Providers["openai"].APIKey != "" {
		return "Providers (OpenAI key set)"
	}
	return "Providers"
}

func formatAudioLabel(cfg *config.Config) string {
	return fmt.Sprintf("Audio (%d Hz)", cfg.Audio.SampleRate)
}

func formatBufferLabel(cfg *config.Config) string {
	return fmt.Sprintf("Buffer (%d blocks, %s)", cfg.Buffer.Capacity, cfg.Buffer.Overflow)
}

func formatNotificationsLabel(cfg *config.Config) string {
	if !cfg.Notifications.Enabled {
		return "Notifications (off)"
	}
	return fmt.Sprintf("Notifications (%s)", cfg.Notifications.Type)
}

func formatMetricsLabel(cfg *config.Config) string {
	if cfg.Metrics.Listen == "" {
		return "Metrics (off)"
	}
	return fmt.Sprintf("Metrics (%s)", cfg.Metrics.Listen)
}

func defaultEndpoint(backend string) string {
	if backend == "websocket" {
		return config.DefaultConfig().Recognition.Endpoint
	}
	return ""
}

func endpointHint(backend string) string {
	if backend == "openai" {
		return "http(s) base URL for an OpenAI-compatible API; empty uses api.openai.com"
	}
	return "ws:// or wss:// URL of the streaming recognition server"
}

func validateEndpoint(backend, s string) error {
	s = strings.TrimSpace(s)
	switch backend {
	case "websocket":
		if !strings.HasPrefix(s, "ws://") && !strings.HasPrefix(s, "wss://") {
			return fmt.Errorf("must start with ws:// or wss://")
		}
	case "openai":
		if s != "" && !strings.HasPrefix(s, "http://") && !strings.HasPrefix(s, "https://") {
			return fmt.Errorf("must start with http:// or https://, or be empty")
		}
	}
	return nil
}

func validateLocale(s string) error {
	s = strings.TrimSpace(s)
	if s == "" || language.IsSupported(s) {
		return nil
	}
	return fmt.Errorf("unsupported locale %q", s)
}

func validateCapacity(s string) error {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n <= 0 {
		return fmt.Errorf("must be a positive number")
	}
	return nil
}

func validateListen(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if _, _, err := net.SplitHostPort(s); err != nil {
		return fmt.Errorf("must be host:port")
	}
	return nil
}

func summaryLines(cfg *config.Config) []string {
	r := cfg.Recognition
	locale := r.Locale
	if locale == "" {
		locale = "system (" + cfg.EffectiveLocale() + ")"
	}
	lines := []string{
		fmt.Sprintf("Backend:        %s", r.Backend),
		fmt.Sprintf("Endpoint:       %s", valueOr(r.Endpoint, "default")),
		fmt.Sprintf("Locale:         %s", locale),
		fmt.Sprintf("Partial results: %t", r.PartialResults),
		fmt.Sprintf("Audio:          %d Hz, %d ch, %s", cfg.Audio.SampleRate, cfg.Audio.Channels, cfg.Audio.Format),
		fmt.Sprintf("Buffer:         %d blocks, %s", cfg.Buffer.Capacity, cfg.Buffer.Overflow),
		fmt.Sprintf("Notifications:  %s", cfg.NotifierType()),
		fmt.Sprintf("Metrics:        %s", valueOr(cfg.Metrics.Listen, "off")),
	}
	if r.Backend == "openai" {
		key := "from environment"
		if cfg.Providers["openai"].APIKey != "" {
			key = "set"
		}
		lines = append(lines, fmt.Sprintf("OpenAI key:     %s", key))
	}
	return lines
}

func valueOr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

func showSummary(cfg *config.Config) (bool, error) {
	fmt.Println()
	fmt.Println(StyleHeader.Render("Configuration Summary"))
	for _, line := range summaryLines(cfg) {
		fmt.Println("  " + StyleMuted.Render(line))
	}
	fmt.Println()

	save := true
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Save this configuration?").
				Affirmative("Save").
				Negative("Back").
				Value(&save),
		),
	).WithTheme(getTheme())

	if err := form.Run(); err != nil {
		return false, err
	}
	return save, nil
}
