package recording

import (
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"
)

type fakeCapture struct {
	mu       sync.Mutex
	fn       func([]byte)
	startErr error
	done     chan error
	closes   int
	once     sync.Once
}

func newFakeCapture() *fakeCapture {
	return &fakeCapture{done: make(chan error, 1)}
}

func (c *fakeCapture) Start(fn func([]byte)) error {
	if c.startErr != nil {
		return c.startErr
	}
	c.mu.Lock()
	c.fn = fn
	c.mu.Unlock()
	return nil
}

func (c *fakeCapture) emit(b []byte) {
	c.mu.Lock()
	fn := c.fn
	c.mu.Unlock()
	fn(b)
}

func (c *fakeCapture) Done() <-chan error { return c.done }

func (c *fakeCapture) Close() error {
	c.mu.Lock()
	c.closes++
	c.mu.Unlock()
	c.once.Do(func() { close(c.done) })
	return nil
}

func (c *fakeCapture) closeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closes
}

type fakeDriver struct {
	capture *fakeCapture
	err     error
}

func (d *fakeDriver) Open(cfg Config) (Capture, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d.capture, nil
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.BlockSize = 2000
	return cfg
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.SampleRate != 16000 {
		t.Errorf("default sample rate should be 16000, got %d", config.SampleRate)
	}
	if config.Channels != 1 {
		t.Errorf("default channels should be 1, got %d", config.Channels)
	}
	if config.Format != "s16" {
		t.Errorf("default format should be s16, got %s", config.Format)
	}
	if config.BlockSize != 3200 {
		t.Errorf("default block size should be 3200, got %d", config.BlockSize)
	}
	if config.Device != "" {
		t.Errorf("default device should be empty, got %s", config.Device)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*Config)
		expectError bool
		formatError bool
	}{
		{name: "valid default config", mutate: func(*Config) {}},
		{name: "invalid sample rate", mutate: func(c *Config) { c.SampleRate = 0 }, expectError: true},
		{name: "negative channels", mutate: func(c *Config) { c.Channels = -1 }, expectError: true},
		{name: "invalid block size", mutate: func(c *Config) { c.BlockSize = 0 }, expectError: true},
		{name: "empty format", mutate: func(c *Config) { c.Format = "" }, expectError: true, formatError: true},
		{name: "unknown format", mutate: func(c *Config) { c.Format = "mp3" }, expectError: true, formatError: true},
		{name: "unaligned block size is allowed", mutate: func(c *Config) { c.BlockSize = 3201 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.validate()
			if tt.expectError && err == nil {
				t.Fatal("expected error but got none")
			}
			if !tt.expectError && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.formatError && !IsAudioError(err, FormatUnsupported) {
				t.Errorf("expected FormatUnsupported, got %v", err)
			}
		})
	}
}

func TestFrameDuration(t *testing.T) {
	frame := AudioFrame{
		Data:   make([]byte, 3200),
		Format: Format{SampleRate: 16000, Channels: 1, Encoding: "s16"},
	}
	if got := frame.Duration(); got != 100*time.Millisecond {
		t.Errorf("Duration() = %v, want 100ms", got)
	}

	frame.Format.Encoding = "opus"
	if got := frame.Duration(); got != 0 {
		t.Errorf("Duration() with unknown encoding = %v, want 0", got)
	}
}

func TestBuildPwRecordArgs(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Device = "alsa_input.usb"
	cfg.Latency = "20ms"

	got := buildPwRecordArgs(cfg)
	want := []string{
		"--format", "s16",
		"--rate", "16000",
		"--channels", "1",
		"--target", "alsa_input.usb",
		"--media-role", "Communication",
		"--media-category", "Capture",
		"--latency", "20ms",
		"-",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("buildPwRecordArgs() = %v, want %v", got, want)
	}
}

func TestSourceSlicesFixedSizeFrames(t *testing.T) {
	capture := newFakeCapture()
	src := NewSource(&fakeDriver{capture: capture}, testConfig())
	if err := src.Open(); err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	defer src.Close()

	var frames []AudioFrame
	src.RegisterFrameCallback(func(f AudioFrame) {
		f.Data = append([]byte(nil), f.Data...)
		frames = append(frames, f)
	})

	chunk := make([]byte, 1000)
	for i := 0; i < 5; i++ {
		for j := range chunk {
			chunk[j] = byte(i)
		}
		capture.emit(chunk)
	}

	if len(frames) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(frames))
	}
	for i, f := range frames {
		if len(f.Data) != 2000 {
			t.Errorf("frame %d size = %d, want 2000", i, len(f.Data))
		}
		if f.Seq != uint64(i) {
			t.Errorf("frame %d seq = %d", i, f.Seq)
		}
		if f.Format.SampleRate != 16000 {
			t.Errorf("frame %d format not propagated: %+v", i, f.Format)
		}
	}
	if frames[1].Timestamp < frames[0].Timestamp {
		t.Error("timestamps must be monotonic")
	}
	// copies taken in the callback keep the contents of their own block
	if frames[0].Data[0] != 0 || frames[0].Data[1999] != 1 || frames[1].Data[0] != 2 {
		t.Errorf("unexpected frame contents: %d %d %d", frames[0].Data[0], frames[0].Data[1999], frames[1].Data[0])
	}
}

func TestSourceDeliverDoesNotAllocate(t *testing.T) {
	capture := newFakeCapture()
	src := NewSource(&fakeDriver{capture: capture}, testConfig())
	if err := src.Open(); err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	defer src.Close()

	var delivered int
	src.RegisterFrameCallback(func(f AudioFrame) { delivered += len(f.Data) })

	chunk := make([]byte, 1500)
	allocs := testing.AllocsPerRun(200, func() { capture.emit(chunk) })
	if allocs != 0 {
		t.Errorf("deliver allocated %.1f times per read, want 0", allocs)
	}
	if delivered == 0 {
		t.Error("no frames delivered")
	}
}

func TestSourceCloseIsIdempotentAndStopsCallbacks(t *testing.T) {
	capture := newFakeCapture()
	src := NewSource(&fakeDriver{capture: capture}, testConfig())
	if err := src.Open(); err != nil {
		t.Fatalf("Open() error: %v", err)
	}

	calls := 0
	src.RegisterFrameCallback(func(AudioFrame) { calls++ })
	capture.emit(make([]byte, 2000))

	if err := src.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if err := src.Close(); err != nil {
		t.Fatalf("second Close() error: %v", err)
	}

	capture.emit(make([]byte, 4000))
	if calls != 1 {
		t.Errorf("expected 1 callback, got %d", calls)
	}
	if n := capture.closeCount(); n != 1 {
		t.Errorf("expected capture closed once, got %d", n)
	}
}

func TestSourceOpenFailureReleasesCapture(t *testing.T) {
	capture := newFakeCapture()
	capture.startErr = errors.New("boom")
	src := NewSource(&fakeDriver{capture: capture}, testConfig())

	err := src.Open()
	if !IsAudioError(err, DeviceUnavailable) {
		t.Fatalf("expected DeviceUnavailable, got %v", err)
	}
	if n := capture.closeCount(); n != 1 {
		t.Errorf("expected capture released on failed open, got %d closes", n)
	}
}

func TestSourceOpenPropagatesDriverError(t *testing.T) {
	src := NewSource(&fakeDriver{err: NewAudioError(PermissionDenied, nil)}, testConfig())
	if err := src.Open(); !IsAudioError(err, PermissionDenied) {
		t.Fatalf("expected PermissionDenied, got %v", err)
	}
}

func TestSourceIsNotRestartable(t *testing.T) {
	src := NewSource(&fakeDriver{capture: newFakeCapture()}, testConfig())
	if err := src.Open(); err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	src.Close()
	if err := src.Open(); err == nil {
		t.Fatal("expected error reopening a closed source")
	}
}

func TestSourceReportsInterruption(t *testing.T) {
	capture := newFakeCapture()
	src := NewSource(&fakeDriver{capture: capture}, testConfig())
	if err := src.Open(); err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	defer src.Close()

	capture.done <- errors.New("device unplugged")

	select {
	case err := <-src.Interruptions():
		if !IsAudioError(err, DeviceUnavailable) {
			t.Errorf("expected DeviceUnavailable, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for interruption")
	}
}

func TestClassifyCaptureError(t *testing.T) {
	base := errors.New("exit status 1")
	tests := []struct {
		line string
		kind AudioErrorKind
	}{
		{"error: Permission denied", PermissionDenied},
		{"format S8 not supported", FormatUnsupported},
		{"pw_context_connect() failed: Host is down", DeviceUnavailable},
		{"", DeviceUnavailable},
	}
	for _, tt := range tests {
		err := classifyCaptureError(base, tt.line)
		if !IsAudioError(err, tt.kind) {
			t.Errorf("classifyCaptureError(%q) = %v, want kind %v", tt.line, err, tt.kind)
		}
		if !errors.Is(err, base) {
			t.Errorf("classifyCaptureError(%q) lost the cause", tt.line)
		}
	}
}
