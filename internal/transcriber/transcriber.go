package transcriber

import (
	"context"
	"fmt"
	"time"

	"github.com/leonardotrapani/livescribe/internal/recording"
)

// Result is one recognition hypothesis. Within a channel, results are ordered
// and a later Seq supersedes an earlier one.
type Result struct {
	Seq        uint64
	Text       string
	IsFinal    bool
	Confidence *float64
}

// Event is what a channel emits: either a result or a terminal error.
type Event struct {
	Result Result
	Err    error
}

// Options are per-channel flags forwarded to the backend untouched.
type Options struct {
	PartialResults bool
	OnDevice       bool
	Model          string
	Format         recording.Format
}

// Channel is one streaming recognition attempt.
type Channel interface {
	// Send forwards one frame of audio.
	Send(frame recording.AudioFrame) error
	// EndOfAudio tells the backend no more audio follows; a final result is expected.
	EndOfAudio() error
	// Events is closed after the channel terminates.
	Events() <-chan Event
	// Close releases the channel. It is idempotent.
	Close() error
}

// Backend opens recognition channels.
type Backend interface {
	Name() string
	OpenChannel(ctx context.Context, locale string, opts Options) (Channel, error)
	// Availability delivers changes in whether new channels can be opened.
	// Only the latest value is retained for slow readers.
	Availability() <-chan bool
}

type Config struct {
	Backend       string // "websocket" or "openai"
	Endpoint      string
	APIKey        string
	Model         string
	OpenTimeout   time.Duration
	DialRetries   int
	HealthPath    string
	ProbeInterval time.Duration
	MaxBatchBytes int // audio kept for one batch upload, 0 = DefaultMaxBatchBytes
}

// DefaultMaxBatchBytes keeps a batch upload, WAV header included, under the
// Whisper API's 25 MB file limit.
const DefaultMaxBatchBytes = 24 << 20

func DefaultConfig() Config {
	return Config{
		Backend:       "websocket",
		Endpoint:      "ws://127.0.0.1:2700/v1/recognize",
		Model:         "",
		OpenTimeout:   10 * time.Second,
		DialRetries:   2,
		HealthPath:    "/healthz",
		ProbeInterval: 30 * time.Second,
		MaxBatchBytes: DefaultMaxBatchBytes,
	}
}

// New builds the backend selected by cfg.Backend.
func New(cfg Config) (Backend, error) {
	switch cfg.Backend {
	case "websocket":
		if cfg.Endpoint == "" {
			return nil, fmt.Errorf("websocket backend requires an endpoint")
		}
		return NewWebSocketBackend(cfg), nil

	case "openai":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("OpenAI API key required")
		}
		return NewOpenAIBackend(cfg), nil

	default:
		return nil, fmt.Errorf("unsupported backend: %s", cfg.Backend)
	}
}
