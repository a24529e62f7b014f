package transcriber

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/leonardotrapani/livescribe/internal/language"
	"github.com/leonardotrapani/livescribe/internal/recording"
)

// default delays between dial attempts when the server is unreachable
var defaultRetryDelays = []time.Duration{250 * time.Millisecond, 500 * time.Millisecond, 1 * time.Second}

// WebSocket message types (outgoing)
type wsAudioMessage struct {
	Type  string `json:"type"`
	Seq   uint64 `json:"seq"`
	Audio string `json:"audio"`
}

type wsControlMessage struct {
	Type string `json:"type"`
}

// WebSocket message types (incoming)
type wsServerMessage struct {
	Type       string   `json:"type"`
	Seq        uint64   `json:"seq,omitempty"`
	Text       string   `json:"text,omitempty"`
	Confidence *float64 `json:"confidence,omitempty"`
	Code       string   `json:"code,omitempty"`
	Message    string   `json:"message,omitempty"`
}

// WebSocketBackend streams audio to a recognition server speaking a small JSON
// protocol: the client sends "audio" and "end_of_audio" messages, the server
// answers with "partial", "final" and "error" messages.
type WebSocketBackend struct {
	endpoint      string
	apiKey        string
	model         string
	openTimeout   time.Duration
	retryDelays   []time.Duration
	healthPath    string
	probeInterval time.Duration
	dialer        *websocket.Dialer
	httpClient    *http.Client

	avail *availability
}

func NewWebSocketBackend(cfg Config) *WebSocketBackend {
	retries := cfg.DialRetries
	if retries < 0 {
		retries = 0
	}
	delays := make([]time.Duration, retries)
	for i := range delays {
		delays[i] = defaultRetryDelays[min(i, len(defaultRetryDelays)-1)]
	}

	return &WebSocketBackend{
		endpoint:      cfg.Endpoint,
		apiKey:        cfg.APIKey,
		model:         cfg.Model,
		openTimeout:   cfg.OpenTimeout,
		retryDelays:   delays,
		healthPath:    cfg.HealthPath,
		probeInterval: cfg.ProbeInterval,
		dialer:        websocket.DefaultDialer,
		httpClient:    &http.Client{Timeout: 5 * time.Second},
		avail:         newAvailability(),
	}
}

func (b *WebSocketBackend) Name() string { return "websocket" }

func (b *WebSocketBackend) Availability() <-chan bool { return b.avail.C() }

func (b *WebSocketBackend) OpenChannel(ctx context.Context, locale string, opts Options) (Channel, error) {
	loc, ok := language.Parse(locale)
	if !ok {
		return nil, NewBackendError(Unavailable, fmt.Errorf("locale %q not supported", locale))
	}

	wsURL, err := b.buildURL(loc, opts)
	if err != nil {
		return nil, fmt.Errorf("build websocket url: %w", err)
	}

	if b.openTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.openTimeout)
		defer cancel()
	}

	conn, err := b.dial(ctx, wsURL)
	b.avail.observe(err)
	if err != nil {
		return nil, err
	}

	ch := newWSChannel(conn, b.avail)
	log.Printf("websocket-backend: connected, locale=%s model=%s partial=%v", loc.Tag(), b.model, opts.PartialResults)
	return ch, nil
}

// dial connects, retrying while the server is unavailable.
func (b *WebSocketBackend) dial(ctx context.Context, wsURL string) (*websocket.Conn, error) {
	headers := http.Header{}
	if b.apiKey != "" {
		headers.Set("Authorization", "Bearer "+b.apiKey)
	}

	for attempt := 0; ; attempt++ {
		conn, resp, err := b.dialer.DialContext(ctx, wsURL, headers)
		if err == nil {
			return conn, nil
		}

		status := 0
		if resp != nil {
			status = resp.StatusCode
			log.Printf("websocket-backend: dial failed with status %d", status)
		}
		berr := classify(fmt.Errorf("websocket dial: %w", err), status)
		if !IsBackendError(berr, Unavailable) || attempt >= len(b.retryDelays) {
			return nil, berr
		}

		delay := b.retryDelays[attempt]
		log.Printf("websocket-backend: dial attempt %d/%d failed, retrying in %v: %v", attempt+1, len(b.retryDelays)+1, delay, err)
		select {
		case <-ctx.Done():
			return nil, classify(ctx.Err(), 0)
		case <-time.After(delay):
		}
	}
}

func (b *WebSocketBackend) buildURL(loc language.Locale, opts Options) (string, error) {
	u, err := url.Parse(b.endpoint)
	if err != nil {
		return "", fmt.Errorf("parse endpoint: %w", err)
	}

	q := u.Query()
	q.Set("locale", loc.Tag())
	if b.model != "" {
		q.Set("model", b.model)
	}
	if opts.Model != "" {
		q.Set("model", opts.Model)
	}
	if opts.Format.SampleRate > 0 {
		q.Set("sample_rate", strconv.Itoa(opts.Format.SampleRate))
		q.Set("channels", strconv.Itoa(opts.Format.Channels))
		q.Set("encoding", opts.Format.Encoding)
	}
	q.Set("partial_results", strconv.FormatBool(opts.PartialResults))
	q.Set("on_device", strconv.FormatBool(opts.OnDevice))

	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Watch probes the server's health endpoint until ctx is done, publishing
// availability changes.
func (b *WebSocketBackend) Watch(ctx context.Context) {
	if b.probeInterval <= 0 {
		return
	}
	ticker := time.NewTicker(b.probeInterval)
	defer ticker.Stop()

	for {
		b.avail.set(b.Probe(ctx) == nil)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Probe issues one GET against the health endpoint.
func (b *WebSocketBackend) Probe(ctx context.Context) error {
	healthURL, err := b.healthURL()
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, healthURL, nil)
	if err != nil {
		return err
	}
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return classify(err, 0)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return NewBackendError(kindForStatus(resp.StatusCode), fmt.Errorf("health check returned %d", resp.StatusCode))
	}
	return nil
}

func (b *WebSocketBackend) healthURL() (string, error) {
	u, err := url.Parse(b.endpoint)
	if err != nil {
		return "", fmt.Errorf("parse endpoint: %w", err)
	}
	switch u.Scheme {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	}
	u.Path = b.healthPath
	u.RawQuery = ""
	return u.String(), nil
}

type wsChannel struct {
	conn    *websocket.Conn
	avail   *availability
	writeMu sync.Mutex

	events chan Event
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	closed  bool
	ended   bool
	nextSeq uint64
}

func newWSChannel(conn *websocket.Conn, avail *availability) *wsChannel {
	ctx, cancel := context.WithCancel(context.Background())
	c := &wsChannel{
		conn:   conn,
		avail:  avail,
		events: make(chan Event, 64),
		ctx:    ctx,
		cancel: cancel,
	}
	c.wg.Add(1)
	go c.readLoop()
	return c
}

func (c *wsChannel) Send(frame recording.AudioFrame) error {
	c.mu.Lock()
	if c.closed || c.ended {
		c.mu.Unlock()
		return fmt.Errorf("channel not accepting audio")
	}
	c.mu.Unlock()

	msg := wsAudioMessage{
		Type:  "audio",
		Seq:   frame.Seq,
		Audio: base64.StdEncoding.EncodeToString(frame.Data),
	}
	return c.write(msg)
}

func (c *wsChannel) EndOfAudio() error {
	c.mu.Lock()
	if c.closed || c.ended {
		c.mu.Unlock()
		return nil
	}
	c.ended = true
	c.mu.Unlock()

	log.Printf("websocket-backend: sent end_of_audio, waiting for final result")
	return c.write(wsControlMessage{Type: "end_of_audio"})
}

func (c *wsChannel) write(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.WriteJSON(v); err != nil {
		err = NewBackendError(Unavailable, fmt.Errorf("websocket write: %w", err))
		c.avail.observe(err)
		return err
	}
	return nil
}

func (c *wsChannel) Events() <-chan Event { return c.events }

func (c *wsChannel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()

	c.writeMu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()
	err := c.conn.Close()

	c.wg.Wait()
	log.Printf("websocket-backend: closed")
	if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		return err
	}
	return nil
}

func (c *wsChannel) emit(ev Event) bool {
	select {
	case c.events <- ev:
		return true
	case <-c.ctx.Done():
		return false
	}
}

func (c *wsChannel) readLoop() {
	defer c.wg.Done()
	defer close(c.events)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if c.ctx.Err() != nil {
				return
			}
			lost := NewBackendError(Unavailable, fmt.Errorf("websocket read: %w", err))
			c.avail.observe(lost)
			c.emit(Event{Err: lost})
			return
		}

		var msg wsServerMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Printf("websocket-backend: parse error: %v", err)
			continue
		}

		switch msg.Type {
		case "ready":
			log.Printf("websocket-backend: server ready")

		case "partial", "final":
			res := Result{
				Seq:        c.sequence(msg.Seq),
				Text:       msg.Text,
				IsFinal:    msg.Type == "final",
				Confidence: msg.Confidence,
			}
			if !c.emit(Event{Result: res}) {
				return
			}

		case "error":
			text := msg.Message
			if text == "" {
				text = msg.Code
			}
			log.Printf("websocket-backend: error: %s", text)
			serverErr := NewBackendError(kindForCode(msg.Code), errors.New(text))
			c.avail.observe(serverErr)
			c.emit(Event{Err: serverErr})
			return

		default:
			log.Printf("websocket-backend: unknown message type: %s", msg.Type)
		}
	}
}

// sequence keeps server sequence numbers and numbers results itself when the server does not.
func (c *wsChannel) sequence(serverSeq uint64) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if serverSeq == 0 {
		c.nextSeq++
		return c.nextSeq
	}
	if serverSeq > c.nextSeq {
		c.nextSeq = serverSeq
	}
	return serverSeq
}

func kindForCode(code string) BackendErrorKind {
	switch strings.ToLower(code) {
	case "unauthorized", "auth_error", "forbidden":
		return Unauthorized
	case "timeout", "deadline_exceeded":
		return Timeout
	}
	return Unavailable
}
