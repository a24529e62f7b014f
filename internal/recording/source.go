package recording

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// Driver opens the platform microphone. Every call receives the full
// audio-session configuration; drivers keep no process-wide session state.
type Driver interface {
	Open(cfg Config) (Capture, error)
}

// Capture is an open microphone handle.
//
// Start begins delivering raw PCM reads to fn from the driver's capture
// goroutine. The slice passed to fn is only valid for the duration of the call.
// Done yields at most one error and is closed once capture has stopped;
// a nil receive means capture stopped without a reported cause.
type Capture interface {
	Start(fn func(data []byte)) error
	Done() <-chan error
	Close() error
}

// FrameCallback receives every frame on the capture goroutine. It must only
// enqueue the frame: no I/O, no blocking. frame.Data is reused for the next
// frame, so a callback that keeps audio must copy it.
type FrameCallback func(AudioFrame)

// Source owns one microphone acquisition. It is not restartable: once closed,
// a new Source must be created.
type Source struct {
	driver Driver
	cfg    Config
	format Format

	mu      sync.Mutex // guards capture, opened and closed
	capture Capture
	opened  bool
	closed  bool

	// gate is read-held while a callback runs so Close can wait out in-flight deliveries.
	gate sync.RWMutex
	cb   FrameCallback
	shut bool

	// capture goroutine only
	start   time.Time
	seq     uint64
	pending []byte

	interruptCh chan error
	wg          sync.WaitGroup
}

func NewSource(driver Driver, cfg Config) *Source {
	return &Source{
		driver:      driver,
		cfg:         cfg,
		format:      cfg.AudioFormat(),
		interruptCh: make(chan error, 1),
	}
}

func (s *Source) Format() Format {
	return s.format
}

// Open acquires the microphone. Any partially acquired handle is released
// before an error is returned.
func (s *Source) Open() (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return NewAudioError(DeviceUnavailable, errors.New("source already closed"))
	}
	if s.opened {
		return fmt.Errorf("source already open")
	}
	if err := s.cfg.validate(); err != nil {
		return err
	}

	capture, err := s.driver.Open(s.cfg)
	if err != nil {
		return asAudioError(err, DeviceUnavailable)
	}
	defer func() {
		if err != nil {
			_ = capture.Close()
		}
	}()

	s.start = time.Now()
	s.pending = make([]byte, 0, s.cfg.BlockSize)
	if err := capture.Start(s.deliver); err != nil {
		return asAudioError(err, DeviceUnavailable)
	}

	s.capture = capture
	s.opened = true
	s.wg.Add(1)
	go s.watch(capture)
	return nil
}

// RegisterFrameCallback installs fn as the frame sink; nil removes it.
// Without a callback, captured audio is discarded.
func (s *Source) RegisterFrameCallback(fn FrameCallback) {
	s.gate.Lock()
	if !s.shut {
		s.cb = fn
	}
	s.gate.Unlock()
}

// Interruptions yields an AudioError when the device is lost mid-stream.
func (s *Source) Interruptions() <-chan error {
	return s.interruptCh
}

// Close releases the microphone. It is idempotent and may be called from any
// goroutine except the frame callback itself; no callback runs after it returns.
func (s *Source) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	capture := s.capture
	s.capture = nil
	s.mu.Unlock()

	s.gate.Lock()
	s.shut = true
	s.cb = nil
	s.gate.Unlock()

	var err error
	if capture != nil {
		err = capture.Close()
	}
	s.wg.Wait()
	return err
}

// deliver slices raw reads into fixed-size frames.
func (s *Source) deliver(data []byte) {
	s.gate.RLock()
	defer s.gate.RUnlock()

	if s.shut || s.cb == nil {
		return
	}

	for len(data) > 0 {
		n := copy(s.pending[len(s.pending):cap(s.pending)], data)
		s.pending = s.pending[:len(s.pending)+n]
		data = data[n:]

		if len(s.pending) < cap(s.pending) {
			continue
		}
		frame := AudioFrame{
			Data:      s.pending,
			Format:    s.format,
			Seq:       s.seq,
			Timestamp: time.Since(s.start),
		}
		s.seq++
		s.pending = s.pending[:0]
		s.cb(frame)
	}
}

func (s *Source) watch(c Capture) {
	defer s.wg.Done()

	err := <-c.Done()

	s.mu.Lock()
	closing := s.closed
	s.mu.Unlock()
	if closing {
		return
	}

	if err == nil {
		err = errors.New("capture ended unexpectedly")
	}
	select {
	case s.interruptCh <- asAudioError(err, DeviceUnavailable):
	default:
	}
}

func asAudioError(err error, kind AudioErrorKind) error {
	if IsAudioError(err, 0) {
		return err
	}
	return NewAudioError(kind, err)
}
