package tui

import (
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/leonardotrapani/livescribe/internal/config"
)

func editRecognition(cfg *config.Config) error {
	r := &cfg.Recognition

	backend := r.Backend
	if err := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Recognition Backend").
				Description("Where audio is sent for recognition").
				Options(
					huh.NewOption("Streaming server (WebSocket, live partial results)", "websocket"),
					huh.NewOption("OpenAI Whisper (transcribed after you stop)", "openai"),
				).
				Value(&backend),
		),
	).WithTheme(getTheme()).Run(); err != nil {
		return err
	}

	endpoint := r.Endpoint
	if backend != r.Backend {
		endpoint = defaultEndpoint(backend)
	}
	locale := r.Locale
	model := r.Model
	partial := r.PartialResults
	onDevice := r.OnDevice

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Endpoint").
				Description(endpointHint(backend)).
				Value(&endpoint).
				Validate(func(s string) error { return validateEndpoint(backend, s) }),
			huh.NewInput().
				Title("Locale").
				Description("BCP 47 tag such as en-US or ja-JP; empty uses the system locale").
				Value(&locale).
				Validate(validateLocale),
			huh.NewInput().
				Title("Model").
				Description("Backend model name; empty uses the backend default").
				Value(&model),
		),
		huh.NewGroup(
			huh.NewConfirm().
				Title("Show partial results while speaking?").
				Value(&partial),
			huh.NewConfirm().
				Title("Prefer on-device recognition?").
				Description("Forwarded to the backend, which decides the routing").
				Value(&onDevice),
		),
	).WithTheme(getTheme())

	if err := form.Run(); err != nil {
		return err
	}

	r.Backend = backend
	r.Endpoint = strings.TrimSpace(endpoint)
	r.Locale = strings.TrimSpace(locale)
	r.Model = strings.TrimSpace(model)
	r.PartialResults = partial
	r.OnDevice = onDevice
	return nil
}

func editProviders(cfg *config.Config) error {
	key := cfg.Providers["openai"].APIKey
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("OpenAI API Key").
				Description("Leave empty to use OPENAI_API_KEY from the environment").
				EchoMode(huh.EchoModePassword).
				Value(&key),
		),
	).WithTheme(getTheme())

	if err := form.Run(); err != nil {
		return err
	}

	key = strings.TrimSpace(key)
	if key == "" {
		delete(cfg.Providers, "openai")
		return nil
	}
	if cfg.Providers == nil {
		cfg.Providers = make(map[string]config.ProviderConfig)
	}
	cfg.Providers["openai"] = config.ProviderConfig{APIKey: key}
	return nil
}

func editAudio(cfg *config.Config) error {
	a := &cfg.Audio
	rate := a.SampleRate
	device := a.Device
	latency := a.Latency

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[int]().
				Title("Sample Rate").
				Options(
					huh.NewOption("16 kHz (speech)", 16000),
					huh.NewOption("8 kHz", 8000),
					huh.NewOption("44.1 kHz", 44100),
					huh.NewOption("48 kHz", 48000),
				).
				Value(&rate),
			huh.NewInput().
				Title("Capture Device").
				Description("PipeWire target node; empty uses the default source").
				Value(&device),
			huh.NewInput().
				Title("Latency").
				Description("Node latency such as 20ms or 1024/16000; empty lets PipeWire decide").
				Value(&latency),
		),
	).WithTheme(getTheme())

	if err := form.Run(); err != nil {
		return err
	}

	a.SampleRate = rate
	a.Device = strings.TrimSpace(device)
	a.Latency = strings.TrimSpace(latency)
	return nil
}

func editBuffer(cfg *config.Config) error {
	capacity := strconv.Itoa(cfg.Buffer.Capacity)
	overflow := cfg.Buffer.Overflow

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Buffer Capacity").
				Description("Audio blocks held while the backend catches up").
				Value(&capacity).
				Validate(validateCapacity),
			huh.NewSelect[string]().
				Title("When the buffer is full").
				Options(
					huh.NewOption("Drop the oldest block", "drop-oldest"),
					huh.NewOption("Drop the incoming block", "drop-newest"),
				).
				Value(&overflow),
		),
	).WithTheme(getTheme())

	if err := form.Run(); err != nil {
		return err
	}

	n, _ := strconv.Atoi(strings.TrimSpace(capacity))
	cfg.Buffer.Capacity = n
	cfg.Buffer.Overflow = overflow
	return nil
}

// editNotifications handles the notifications section edit
func editNotifications(cfg *config.Config) error {
	enabled := cfg.Notifications.Enabled
	notifType := cfg.Notifications.Type
	if notifType == "" {
		notifType = "desktop"
	}

	if err := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Enable notifications?").
				Description("Session start, transcript, errors and availability changes").
				Value(&enabled),
		),
	).WithTheme(getTheme()).Run(); err != nil {
		return err
	}

	cfg.Notifications.Enabled = enabled
	if !enabled {
		return nil
	}

	if err := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Notification Type").
				Options(
					huh.NewOption("Desktop notifications (notify-send)", "desktop"),
					huh.NewOption("Log to console only", "log"),
					huh.NewOption("None (silent)", "none"),
				).
				Value(&notifType),
		),
	).WithTheme(getTheme()).Run(); err != nil {
		return err
	}

	cfg.Notifications.Type = notifType
	return nil
}

func editMetrics(cfg *config.Config) error {
	listen := cfg.Metrics.Listen
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Metrics Listen Address").
				Description("host:port for the Prometheus /metrics endpoint; empty disables it").
				Value(&listen).
				Validate(validateListen),
		),
	).WithTheme(getTheme())

	if err := form.Run(); err != nil {
		return err
	}

	cfg.Metrics.Listen = strings.TrimSpace(listen)
	return nil
}
