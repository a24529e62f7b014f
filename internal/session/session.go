package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/leonardotrapani/livescribe/internal/buffer"
	"github.com/leonardotrapani/livescribe/internal/recording"
	"github.com/leonardotrapani/livescribe/internal/transcriber"
)

// ErrCanceled ends a session that was torn down without a graceful stop.
var ErrCanceled = errors.New("session canceled")

type Config struct {
	Locale  string
	Options transcriber.Options
	Audio   recording.Config
	Buffer  buffer.Config

	// DrainInterval is how often buffered audio is forwarded to the backend.
	DrainInterval time.Duration
	// FinalTimeout bounds the wait for a final result after end of audio.
	FinalTimeout time.Duration
	// OpenTimeout bounds opening the backend channel; zero means no bound.
	OpenTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		Locale:        "en-US",
		Options:       transcriber.Options{PartialResults: true},
		Audio:         recording.DefaultConfig(),
		Buffer:        buffer.DefaultConfig(),
		DrainInterval: 20 * time.Millisecond,
		FinalTimeout:  5 * time.Second,
		OpenTimeout:   10 * time.Second,
	}
}

// Update is one state change reported by a session. Updates of one session
// are delivered from its Run goroutine, in order.
type Update struct {
	Session    uint64
	Status     Status
	Err        error
	Transcript string
	Dropped    uint64
	Forwarded  uint64
}

// Session owns one recognition attempt: the microphone source, the
// streaming buffer and the backend channel. It runs once.
type Session struct {
	id      uint64
	cfg     Config
	driver  recording.Driver
	backend transcriber.Backend
	report  func(Update)

	status atomic.Int32

	stopCh     chan struct{}
	stopOnce   sync.Once
	cancelCh   chan struct{}
	cancelOnce sync.Once
	done       chan struct{}

	// Run goroutine only
	source     *recording.Source
	ring       *buffer.Ring
	channel    transcriber.Channel
	frames     []recording.AudioFrame
	transcript string
	lastSeq    uint64
	forwarded  uint64
	dropped    uint64
	lastDropAt time.Time
	released   bool
}

func New(id uint64, cfg Config, driver recording.Driver, backend transcriber.Backend, report func(Update)) *Session {
	if cfg.DrainInterval <= 0 {
		cfg.DrainInterval = 20 * time.Millisecond
	}
	if cfg.FinalTimeout <= 0 {
		cfg.FinalTimeout = 5 * time.Second
	}
	if report == nil {
		report = func(Update) {}
	}
	return &Session{
		id:       id,
		cfg:      cfg,
		driver:   driver,
		backend:  backend,
		report:   report,
		stopCh:   make(chan struct{}),
		cancelCh: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (s *Session) ID() uint64 {
	return s.id
}

func (s *Session) Status() Status {
	return Status(s.status.Load())
}

// Done is closed once Run has released every resource and reported the
// terminal status.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Stop requests graceful termination: remaining audio is flushed and the
// backend gets a bounded time to deliver its final result. A stop requested
// while Starting takes effect as soon as the open completes.
func (s *Session) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// Cancel forces immediate teardown; the session ends Failed with ErrCanceled.
func (s *Session) Cancel() {
	s.cancelOnce.Do(func() { close(s.cancelCh) })
}

// Run drives the session to a terminal status. It blocks until the session
// is over and must be called at most once.
func (s *Session) Run(ctx context.Context) {
	defer close(s.done)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-s.cancelCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	s.setStatus(Starting, nil)
	if err := s.open(ctx); err != nil {
		if ctx.Err() != nil {
			err = ErrCanceled
		}
		log.Printf("Session %d: open failed: %v", s.id, err)
		s.finish(Failed, err)
		return
	}

	select {
	case <-ctx.Done():
		s.finish(Failed, ErrCanceled)
		return
	case <-s.stopCh:
		log.Printf("Session %d: stop requested while starting", s.id)
		s.finish(Completed, nil)
		return
	default:
	}

	s.setStatus(Listening, nil)
	status, err := s.stream(ctx)
	s.finish(status, err)
}

// open acquires the buffer, the microphone and the backend channel, in that
// order, and only then routes captured frames into the buffer.
func (s *Session) open(ctx context.Context) error {
	if ctx.Err() != nil {
		return ErrCanceled
	}

	bufCfg := s.cfg.Buffer
	if bufCfg.FrameBytes == 0 {
		bufCfg.FrameBytes = s.cfg.Audio.BlockSize
	}
	ring, err := buffer.New(bufCfg)
	if err != nil {
		return fmt.Errorf("create buffer: %w", err)
	}
	s.ring = ring
	s.frames = make([]recording.AudioFrame, 0, ring.Cap())

	source := recording.NewSource(s.driver, s.cfg.Audio)
	if err := source.Open(); err != nil {
		return err
	}
	s.source = source

	opts := s.cfg.Options
	opts.Format = source.Format()

	openCtx := ctx
	if s.cfg.OpenTimeout > 0 {
		var cancel context.CancelFunc
		openCtx, cancel = context.WithTimeout(ctx, s.cfg.OpenTimeout)
		defer cancel()
	}
	channel, err := s.backend.OpenChannel(openCtx, s.cfg.Locale, opts)
	if err != nil {
		return err
	}
	s.channel = channel

	source.RegisterFrameCallback(func(frame recording.AudioFrame) {
		ring.Push(frame)
	})
	log.Printf("Session %d: listening, locale=%s backend=%s", s.id, s.cfg.Locale, s.backend.Name())
	return nil
}

func (s *Session) stream(ctx context.Context) (Status, error) {
	ticker := time.NewTicker(s.cfg.DrainInterval)
	defer ticker.Stop()

	events := s.channel.Events()
	interruptions := s.source.Interruptions()

	for {
		select {
		case <-ctx.Done():
			return Failed, ErrCanceled

		case <-s.stopCh:
			return s.drainAndWait(ctx)

		case err := <-interruptions:
			log.Printf("Session %d: audio interrupted: %v", s.id, err)
			return Failed, err

		case ev, ok := <-events:
			if !ok {
				return Failed, transcriber.NewBackendError(transcriber.Unavailable, errors.New("result stream closed"))
			}
			if ev.Err != nil {
				log.Printf("Session %d: backend error: %v", s.id, ev.Err)
				return Failed, ev.Err
			}
			if s.accept(ev.Result) && ev.Result.IsFinal {
				return Completed, nil
			}

		case <-ticker.C:
			if err := s.forward(); err != nil {
				return Failed, err
			}
		}
	}
}

// drainAndWait closes the microphone, flushes what is still buffered, signals
// end of audio and waits a bounded time for the final result.
func (s *Session) drainAndWait(ctx context.Context) (Status, error) {
	s.setStatus(Stopping, nil)

	if err := s.source.Close(); err != nil {
		log.Printf("Session %d: close source: %v", s.id, err)
	}
	if err := s.forward(); err != nil {
		return Failed, err
	}
	if err := s.channel.EndOfAudio(); err != nil {
		return Failed, err
	}

	timer := time.NewTimer(s.cfg.FinalTimeout)
	defer timer.Stop()

	events := s.channel.Events()
	for {
		select {
		case <-ctx.Done():
			return Failed, ErrCanceled

		case <-timer.C:
			log.Printf("Session %d: no final result within %v, completing with last transcript", s.id, s.cfg.FinalTimeout)
			return Completed, nil

		case ev, ok := <-events:
			if !ok {
				return Completed, nil
			}
			if ev.Err != nil {
				log.Printf("Session %d: backend error while stopping: %v", s.id, ev.Err)
				return Failed, ev.Err
			}
			if s.accept(ev.Result) && ev.Result.IsFinal {
				return Completed, nil
			}
		}
	}
}

// accept applies a result unless it is older than the last accepted one.
func (s *Session) accept(res transcriber.Result) bool {
	if res.Seq < s.lastSeq {
		return false
	}
	s.lastSeq = res.Seq
	if res.Text != s.transcript {
		s.transcript = res.Text
		s.send(s.Status(), nil)
	}
	return true
}

func (s *Session) forward() error {
	s.frames = s.ring.Drain(s.frames[:0])
	for _, frame := range s.frames {
		if err := s.channel.Send(frame); err != nil {
			return err
		}
		s.forwarded++
	}
	clear(s.frames)

	if dropped := s.ring.Dropped(); dropped != s.dropped {
		s.dropped = dropped
		if time.Since(s.lastDropAt) >= time.Second {
			s.lastDropAt = time.Now()
			log.Printf("Session %d: buffer overflow, %d frames dropped so far", s.id, dropped)
			s.send(s.Status(), nil)
		}
	}
	return nil
}

// release runs the exit actions once: microphone, callback, channel, buffer.
func (s *Session) release() {
	if s.released {
		return
	}
	s.released = true

	if s.source != nil {
		s.source.RegisterFrameCallback(nil)
		if err := s.source.Close(); err != nil {
			log.Printf("Session %d: close source: %v", s.id, err)
		}
	}
	if s.channel != nil {
		if err := s.channel.Close(); err != nil {
			log.Printf("Session %d: close channel: %v", s.id, err)
		}
	}
	if s.ring != nil {
		s.dropped = s.ring.Dropped()
		s.ring.Release()
	}
}

func (s *Session) finish(status Status, err error) {
	s.release()
	switch {
	case err != nil:
		log.Printf("Session %d: %s: %v", s.id, status, err)
	default:
		log.Printf("Session %d: %s (forwarded=%d dropped=%d)", s.id, status, s.forwarded, s.dropped)
	}
	s.setStatus(status, err)
}

func (s *Session) setStatus(status Status, err error) {
	s.status.Store(int32(status))
	if status == Listening {
		s.transcript = ""
	}
	s.send(status, err)
}

func (s *Session) send(status Status, err error) {
	s.report(Update{
		Session:    s.id,
		Status:     status,
		Err:        err,
		Transcript: s.transcript,
		Dropped:    s.dropped,
		Forwarded:  s.forwarded,
	})
}
