package recording

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"
)

// PipeWire captures from the local PipeWire server through pw-record.
// A device can only be held by one capture at a time.
type PipeWire struct {
	mu   sync.Mutex
	busy map[string]bool
}

func NewPipeWire() *PipeWire {
	return &PipeWire{busy: make(map[string]bool)}
}

func (p *PipeWire) Open(cfg Config) (Capture, error) {
	if _, err := exec.LookPath("pw-record"); err != nil {
		return nil, NewAudioError(DeviceUnavailable, fmt.Errorf("pw-record not found: %w (install pipewire-tools)", err))
	}

	key := cfg.Device
	if key == "" {
		key = "default"
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.busy[key] {
		return nil, NewAudioError(DeviceUnavailable, fmt.Errorf("device %q already in use", key))
	}
	p.busy[key] = true

	return &pwCapture{
		driver: p,
		key:    key,
		cfg:    cfg,
		done:   make(chan error, 1),
	}, nil
}

// Probe checks that a PipeWire server is reachable.
func (p *PipeWire) Probe(ctx context.Context) error {
	if _, err := exec.LookPath("pw-record"); err != nil {
		return fmt.Errorf("pw-record not found: %w (install pipewire-tools)", err)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	checkCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	cmd := exec.CommandContext(checkCtx, "pw-cli", "info")
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("PipeWire not running or accessible: %w", err)
	}
	return nil
}

func (p *PipeWire) release(key string) {
	p.mu.Lock()
	delete(p.busy, key)
	p.mu.Unlock()
}

type pwCapture struct {
	driver *PipeWire
	key    string
	cfg    Config

	mu      sync.Mutex // guards cmd, cancel, closing and lastErr
	cmd     *exec.Cmd
	cancel  context.CancelFunc
	closing bool
	lastErr string

	done        chan error
	wg          sync.WaitGroup
	releaseOnce sync.Once
}

func (c *pwCapture) Start(fn func(data []byte)) error {
	ctx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(ctx, "pw-record", buildPwRecordArgs(c.cfg)...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		cancel()
		return NewAudioError(DeviceUnavailable, fmt.Errorf("start pw-record: %w", err))
	}

	c.mu.Lock()
	c.cmd = cmd
	c.cancel = cancel
	c.mu.Unlock()

	log.Printf("Recording: pw-record started (device=%s rate=%d channels=%d format=%s)",
		c.key, c.cfg.SampleRate, c.cfg.Channels, c.cfg.Format)

	var stderrDone sync.WaitGroup
	stderrDone.Add(1)
	go func() {
		defer stderrDone.Done()
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			line := scanner.Text()
			log.Printf("Recording stderr: %s", line)
			c.mu.Lock()
			c.lastErr = line
			c.mu.Unlock()
		}
	}()

	c.wg.Add(1)
	go c.captureLoop(cmd, stdout, &stderrDone, fn)
	return nil
}

func (c *pwCapture) captureLoop(cmd *exec.Cmd, stdout io.Reader, stderrDone *sync.WaitGroup, fn func([]byte)) {
	defer c.wg.Done()
	defer close(c.done)

	buffer := make([]byte, c.cfg.BlockSize)
	var readErr error
	for {
		n, err := stdout.Read(buffer)
		if n > 0 {
			fn(buffer[:n])
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				readErr = err
			}
			break
		}
	}

	stderrDone.Wait()
	waitErr := cmd.Wait()

	c.mu.Lock()
	closing := c.closing
	lastErr := c.lastErr
	c.mu.Unlock()
	if closing {
		return
	}

	cause := readErr
	if cause == nil {
		cause = waitErr
	}
	if cause == nil {
		cause = errors.New("pw-record exited")
	}
	c.done <- classifyCaptureError(cause, lastErr)
}

func (c *pwCapture) Done() <-chan error {
	return c.done
}

func (c *pwCapture) Close() error {
	c.mu.Lock()
	c.closing = true
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.wg.Wait()

	c.releaseOnce.Do(func() {
		c.driver.release(c.key)
	})
	return nil
}

func classifyCaptureError(err error, stderrLine string) error {
	msg := strings.ToLower(stderrLine)
	switch {
	case strings.Contains(msg, "permission denied"), strings.Contains(msg, "not allowed"):
		return NewAudioError(PermissionDenied, fmt.Errorf("%w: %s", err, stderrLine))
	case strings.Contains(msg, "format") && strings.Contains(msg, "not supported"):
		return NewAudioError(FormatUnsupported, fmt.Errorf("%w: %s", err, stderrLine))
	case stderrLine != "":
		return NewAudioError(DeviceUnavailable, fmt.Errorf("%w: %s", err, stderrLine))
	}
	return NewAudioError(DeviceUnavailable, err)
}

func buildPwRecordArgs(cfg Config) []string {
	args := []string{
		"--format", cfg.Format,
		"--rate", strconv.Itoa(cfg.SampleRate),
		"--channels", strconv.Itoa(cfg.Channels),
	}
	if cfg.Device != "" {
		args = append(args, "--target", cfg.Device)
	}
	if cfg.MediaRole != "" {
		args = append(args, "--media-role", cfg.MediaRole)
	}
	if cfg.MediaCategory != "" {
		args = append(args, "--media-category", cfg.MediaCategory)
	}
	if cfg.Latency != "" {
		args = append(args, "--latency", cfg.Latency)
	}
	return append(args, "-") // stdout
}
