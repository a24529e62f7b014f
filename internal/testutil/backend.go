package testutil

import (
	"context"
	"errors"
	"sync"

	"github.com/leonardotrapani/livescribe/internal/recording"
	"github.com/leonardotrapani/livescribe/internal/transcriber"
)

// FakeBackend implements transcriber.Backend. Tests drive results through
// the channels it hands out.
type FakeBackend struct {
	mu         sync.Mutex
	openErr    error
	gate       chan struct{}
	finalOnEnd bool
	channels   []*FakeChannel
	avail      chan bool
}

func NewFakeBackend() *FakeBackend {
	return &FakeBackend{avail: make(chan bool, 1)}
}

func (b *FakeBackend) Name() string { return "fake" }

func (b *FakeBackend) Availability() <-chan bool { return b.avail }

// SetAvailable publishes an availability change, replacing an unread one.
func (b *FakeBackend) SetAvailable(v bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	select {
	case <-b.avail:
	default:
	}
	b.avail <- v
}

// FailOpen makes subsequent OpenChannel calls fail with err; nil clears it.
func (b *FakeBackend) FailOpen(err error) {
	b.mu.Lock()
	b.openErr = err
	b.mu.Unlock()
}

// HoldOpen makes OpenChannel block until the returned function is called or
// the open context ends.
func (b *FakeBackend) HoldOpen() (release func()) {
	gate := make(chan struct{})
	b.mu.Lock()
	b.gate = gate
	b.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			if b.gate == gate {
				b.gate = nil
			}
			b.mu.Unlock()
			close(gate)
		})
	}
}

// FinalOnEndOfAudio makes channels answer EndOfAudio with a final result
// repeating the last emitted text.
func (b *FakeBackend) FinalOnEndOfAudio(v bool) {
	b.mu.Lock()
	b.finalOnEnd = v
	b.mu.Unlock()
}

func (b *FakeBackend) OpenChannel(ctx context.Context, locale string, opts transcriber.Options) (transcriber.Channel, error) {
	b.mu.Lock()
	gate := b.gate
	b.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, transcriber.NewBackendError(transcriber.Timeout, ctx.Err())
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.openErr != nil {
		return nil, b.openErr
	}
	ch := &FakeChannel{
		Locale:     locale,
		Options:    opts,
		finalOnEnd: b.finalOnEnd,
		events:     make(chan transcriber.Event, 256),
	}
	b.channels = append(b.channels, ch)
	return ch, nil
}

// Channels returns every channel opened so far.
func (b *FakeBackend) Channels() []*FakeChannel {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*FakeChannel(nil), b.channels...)
}

// Last returns the most recently opened channel, or nil.
func (b *FakeBackend) Last() *FakeChannel {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.channels) == 0 {
		return nil
	}
	return b.channels[len(b.channels)-1]
}

// FakeChannel records what a session sends and emits scripted events.
type FakeChannel struct {
	Locale  string
	Options transcriber.Options

	mu         sync.Mutex
	events     chan transcriber.Event
	sent       []recording.AudioFrame
	lastText   string
	lastSeq    uint64
	finalOnEnd bool
	endCalls   int
	closeCalls int
	closed     bool
}

func (c *FakeChannel) Send(frame recording.AudioFrame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("channel closed")
	}
	frame.Data = append([]byte(nil), frame.Data...)
	c.sent = append(c.sent, frame)
	return nil
}

func (c *FakeChannel) EndOfAudio() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.endCalls++
	if c.finalOnEnd && !c.closed {
		c.push(transcriber.Event{Result: transcriber.Result{Seq: c.lastSeq, Text: c.lastText, IsFinal: true}})
	}
	return nil
}

func (c *FakeChannel) Events() <-chan transcriber.Event { return c.events }

func (c *FakeChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeCalls++
	if !c.closed {
		c.closed = true
		close(c.events)
	}
	return nil
}

// Partial emits a non-final result.
func (c *FakeChannel) Partial(seq uint64, text string) {
	c.Emit(transcriber.Result{Seq: seq, Text: text})
}

// Final emits a final result.
func (c *FakeChannel) Final(seq uint64, text string) {
	c.Emit(transcriber.Result{Seq: seq, Text: text, IsFinal: true})
}

// Emit delivers a result unless the channel is closed.
func (c *FakeChannel) Emit(res transcriber.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.lastText = res.Text
	c.lastSeq = res.Seq
	c.push(transcriber.Event{Result: res})
}

// Fail delivers an error event unless the channel is closed.
func (c *FakeChannel) Fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.push(transcriber.Event{Err: err})
}

// push must be called with c.mu held.
func (c *FakeChannel) push(ev transcriber.Event) {
	select {
	case c.events <- ev:
	default:
	}
}

func (c *FakeChannel) Sent() []recording.AudioFrame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]recording.AudioFrame(nil), c.sent...)
}

func (c *FakeChannel) EndCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.endCalls
}

func (c *FakeChannel) CloseCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeCalls
}
