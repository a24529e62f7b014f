package transcriber

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/leonardotrapani/livescribe/internal/language"
	"github.com/leonardotrapani/livescribe/internal/recording"
	"github.com/sashabaranov/go-openai"
)

// OpenAIBackend collects the whole utterance and transcribes it with the
// Whisper API once audio ends. It never produces partial results.
type OpenAIBackend struct {
	client   *openai.Client
	model    string
	maxAudio int
	avail    *availability
}

// ErrBatchTooLarge is returned by Send once an utterance outgrows the upload limit.
var ErrBatchTooLarge = errors.New("utterance exceeds batch upload limit")

func NewOpenAIBackend(cfg Config) *OpenAIBackend {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.Endpoint != "" {
		clientCfg.BaseURL = cfg.Endpoint
	}
	model := cfg.Model
	if model == "" {
		model = openai.Whisper1
	}

	maxAudio := cfg.MaxBatchBytes
	if maxAudio <= 0 {
		maxAudio = DefaultMaxBatchBytes
	}

	b := &OpenAIBackend{
		client:   openai.NewClientWithConfig(clientCfg),
		model:    model,
		maxAudio: maxAudio,
		avail:    newAvailability(),
	}
	b.avail.set(cfg.APIKey != "")
	return b
}

func (b *OpenAIBackend) Name() string { return "openai" }

func (b *OpenAIBackend) Availability() <-chan bool { return b.avail.C() }

func (b *OpenAIBackend) OpenChannel(ctx context.Context, locale string, opts Options) (Channel, error) {
	loc, ok := language.Parse(locale)
	if !ok {
		return nil, NewBackendError(Unavailable, fmt.Errorf("locale %q not supported", locale))
	}
	if opts.PartialResults {
		log.Printf("openai-backend: partial results not supported, only the final result will be reported")
	}

	model := b.model
	if opts.Model != "" {
		model = opts.Model
	}

	chCtx, cancel := context.WithCancel(context.Background())
	return &openAIChannel{
		backend:  b,
		model:    model,
		language: loc.Language.Code,
		format:   opts.Format,
		events:   make(chan Event, 1),
		ctx:      chCtx,
		cancel:   cancel,
	}, nil
}

type openAIChannel struct {
	backend  *OpenAIBackend
	model    string
	language string

	mu     sync.Mutex
	format recording.Format
	audio  []byte
	ended  bool
	closed bool

	events chan Event
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func (c *openAIChannel) Send(frame recording.AudioFrame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.ended {
		return fmt.Errorf("channel not accepting audio")
	}
	if c.format.SampleRate == 0 {
		c.format = frame.Format
	}
	if len(c.audio)+len(frame.Data) > c.backend.maxAudio {
		return fmt.Errorf("%w: %d bytes", ErrBatchTooLarge, c.backend.maxAudio)
	}
	c.audio = append(c.audio, frame.Data...)
	return nil
}

func (c *openAIChannel) EndOfAudio() error {
	c.mu.Lock()
	if c.closed || c.ended {
		c.mu.Unlock()
		return nil
	}
	c.ended = true
	audio := c.audio
	c.audio = nil
	format := c.format
	c.wg.Add(1)
	c.mu.Unlock()

	go c.transcribe(audio, format)
	return nil
}

func (c *openAIChannel) transcribe(audio []byte, format recording.Format) {
	defer c.wg.Done()
	defer close(c.events)

	if len(audio) == 0 {
		log.Printf("openai-backend: no audio data to transcribe")
		c.emit(Event{Result: Result{Seq: 1, IsFinal: true}})
		return
	}

	wavData, err := encodeWAV(audio, format)
	if err != nil {
		c.emit(Event{Err: fmt.Errorf("convert to WAV: %w", err)})
		return
	}

	req := openai.AudioRequest{
		Model:    c.model,
		Reader:   bytes.NewReader(wavData),
		FilePath: "audio.wav",
		Language: c.language,
	}

	start := time.Now()
	resp, err := c.backend.client.CreateTranscription(c.ctx, req)
	duration := time.Since(start)

	if err != nil {
		if c.ctx.Err() != nil {
			return
		}
		log.Printf("openai-backend: API call failed after %v: %v", duration, err)
		berr := classify(fmt.Errorf("openai transcription: %w", err), statusOf(err))
		c.backend.avail.observe(berr)
		c.emit(Event{Err: berr})
		return
	}

	c.backend.avail.set(true)
	log.Printf("openai-backend: transcribed %d bytes in %v", len(audio), duration)
	c.emit(Event{Result: Result{Seq: 1, Text: resp.Text, IsFinal: true}})
}

func (c *openAIChannel) emit(ev Event) {
	select {
	case c.events <- ev:
	case <-c.ctx.Done():
	}
}

func (c *openAIChannel) Events() <-chan Event { return c.events }

func (c *openAIChannel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	ended := c.ended
	c.audio = nil
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()
	if !ended {
		close(c.events)
	}
	return nil
}

func statusOf(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}
