package testutil

import (
	"errors"
	"sync"

	"github.com/leonardotrapani/livescribe/internal/recording"
)

// FakeDriver implements recording.Driver with one exclusive fake microphone.
type FakeDriver struct {
	mu      sync.Mutex
	openErr error
	busy    bool
	current *FakeCapture
	opens   int
	closes  int
	configs []recording.Config
}

func NewFakeDriver() *FakeDriver {
	return &FakeDriver{}
}

// FailOpen makes subsequent opens fail with err; nil clears it.
func (d *FakeDriver) FailOpen(err error) {
	d.mu.Lock()
	d.openErr = err
	d.mu.Unlock()
}

func (d *FakeDriver) Open(cfg recording.Config) (recording.Capture, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.openErr != nil {
		return nil, d.openErr
	}
	if d.busy {
		return nil, recording.NewAudioError(recording.DeviceUnavailable, errors.New("fake microphone busy"))
	}
	d.busy = true
	d.opens++
	d.configs = append(d.configs, cfg)
	d.current = &FakeCapture{driver: d, done: make(chan error, 1)}
	return d.current, nil
}

// Opens returns how many captures were opened.
func (d *FakeDriver) Opens() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opens
}

// Closes returns how many captures were released.
func (d *FakeDriver) Closes() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closes
}

// Busy reports whether the fake microphone is held.
func (d *FakeDriver) Busy() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.busy
}

// LastConfig returns the configuration of the latest open.
func (d *FakeDriver) LastConfig() recording.Config {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.configs) == 0 {
		return recording.Config{}
	}
	return d.configs[len(d.configs)-1]
}

// Emit delivers raw audio to the open capture. It reports false when no
// capture is running.
func (d *FakeDriver) Emit(data []byte) bool {
	d.mu.Lock()
	c := d.current
	d.mu.Unlock()
	if c == nil {
		return false
	}
	return c.emit(data)
}

// Interrupt simulates losing the device mid-stream.
func (d *FakeDriver) Interrupt(err error) {
	d.mu.Lock()
	c := d.current
	d.mu.Unlock()
	if c != nil {
		c.stop(err)
	}
}

func (d *FakeDriver) release(c *FakeCapture) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closes++
	if d.current == c {
		d.current = nil
		d.busy = false
	}
}

// FakeCapture is the handle returned by FakeDriver.Open.
type FakeCapture struct {
	driver *FakeDriver

	mu       sync.Mutex
	fn       func([]byte)
	stopped  bool
	done     chan error
	stopOnce sync.Once
	relOnce  sync.Once
}

func (c *FakeCapture) Start(fn func([]byte)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fn = fn
	return nil
}

func (c *FakeCapture) Done() <-chan error {
	return c.done
}

func (c *FakeCapture) Close() error {
	c.stop(nil)
	c.relOnce.Do(func() { c.driver.release(c) })
	return nil
}

func (c *FakeCapture) emit(data []byte) bool {
	c.mu.Lock()
	fn := c.fn
	stopped := c.stopped
	c.mu.Unlock()
	if stopped || fn == nil {
		return false
	}
	fn(data)
	return true
}

func (c *FakeCapture) stop(err error) {
	c.stopOnce.Do(func() {
		c.mu.Lock()
		c.stopped = true
		c.mu.Unlock()
		if err != nil {
			c.done <- err
		}
		close(c.done)
	})
}
