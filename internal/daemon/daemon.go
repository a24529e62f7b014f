// Package daemon serves the session manager over the control socket.
package daemon

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/leonardotrapani/livescribe/internal/bus"
	"github.com/leonardotrapani/livescribe/internal/config"
	"github.com/leonardotrapani/livescribe/internal/deps"
	"github.com/leonardotrapani/livescribe/internal/manager"
	"github.com/leonardotrapani/livescribe/internal/metrics"
	"github.com/leonardotrapani/livescribe/internal/notify"
	"github.com/leonardotrapani/livescribe/internal/recording"
	"github.com/leonardotrapani/livescribe/internal/session"
	"github.com/leonardotrapani/livescribe/internal/transcriber"
	"github.com/prometheus/client_golang/prometheus"
)

// watchBuffer is the per-client snapshot queue for the watch command.
const watchBuffer = 16

// watcher is implemented by backends that probe their own health.
type watcher interface {
	Watch(ctx context.Context)
}

// prober is implemented by microphone drivers that can check their server.
type prober interface {
	Probe(ctx context.Context) error
}

type Daemon struct {
	configMgr *config.Manager
	driver    recording.Driver
	backend   transcriber.Backend
	manager   *manager.Manager
	metrics   *metrics.Metrics

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a daemon from the user's config file: PipeWire capture and the
// configured recognition backend.
func New() (*Daemon, error) {
	configMgr, err := config.NewManager()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize config: %w", err)
	}

	if missing := deps.Missing(deps.CheckAll()); len(missing) > 0 {
		log.Printf("Daemon: warning: %v not found in PATH, sessions will fail to open the microphone", missing)
	}

	cfg := configMgr.GetConfig()
	backend, err := transcriber.New(cfg.ToTranscriberConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create %s backend: %w", cfg.Recognition.Backend, err)
	}

	return NewWithDeps(configMgr, recording.NewPipeWire(), backend, notify.New(cfg.NotifierType())), nil
}

// NewWithDeps wires a daemon around explicit collaborators.
func NewWithDeps(configMgr *config.Manager, driver recording.Driver, backend transcriber.Backend, n notify.Notifier) *Daemon {
	ctx, cancel := context.WithCancel(context.Background())

	sessionConfig := func() session.Config {
		return configMgr.GetConfig().ToSessionConfig()
	}

	mt := metrics.NewMetrics(prometheus.NewRegistry())
	d := &Daemon{
		configMgr: configMgr,
		driver:    driver,
		backend:   backend,
		manager:   manager.New(sessionConfig, driver, backend, n).WithMetrics(mt),
		metrics:   mt,
		ctx:       ctx,
		cancel:    cancel,
	}

	applied := configMgr.GetConfig()
	configMgr.OnChange(func(cfg *config.Config) {
		if cfg.ToTranscriberConfig() != applied.ToTranscriberConfig() {
			log.Printf("Daemon: recognition backend settings changed, restart the daemon to apply them")
		}
		if cfg.Metrics.Listen != applied.Metrics.Listen || cfg.NotifierType() != applied.NotifierType() {
			log.Printf("Daemon: metrics and notification settings apply after restart")
		}
		log.Printf("Daemon: configuration reloaded, next session uses locale %s", cfg.EffectiveLocale())
	})

	return d
}

// Manager exposes the session manager, mostly for tests.
func (d *Daemon) Manager() *manager.Manager {
	return d.manager
}

func (d *Daemon) Run() error {
	if err := bus.CheckExistingDaemon(); err != nil {
		return err
	}

	ln, err := bus.Listen()
	if err != nil {
		return err
	}
	defer ln.Close()

	if err := bus.CreatePidFile(); err != nil {
		return fmt.Errorf("failed to create PID file: %w", err)
	}
	defer bus.RemovePidFile()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case sig := <-sigCh:
			log.Printf("Daemon: received signal %v, shutting down gracefully", sig)
			d.cancel()
		case <-d.ctx.Done():
		}
	}()

	// Close the listener when context is done
	go func() {
		<-d.ctx.Done()
		ln.Close()
	}()

	d.startBackground()
	defer d.shutdown()

	log.Printf("Daemon: started with %s backend, listening on socket", d.backend.Name())

	for {
		c, err := ln.Accept()
		if err != nil {
			if d.ctx.Err() != nil {
				log.Printf("Daemon: shutdown requested")
				return nil
			}
			log.Printf("Daemon: accept error: %v", err)
			return fmt.Errorf("accept failed: %w", err)
		}
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.handle(c)
		}()
	}
}

func (d *Daemon) startBackground() {
	if p, ok := d.driver.(prober); ok {
		if err := p.Probe(d.ctx); err != nil {
			log.Printf("Daemon: warning: audio capture unavailable: %v", err)
		}
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.manager.WatchAvailability(d.ctx)
	}()

	if w, ok := d.backend.(watcher); ok {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			w.Watch(d.ctx)
		}()
	}

	if err := d.configMgr.StartWatching(d.ctx); err != nil {
		log.Printf("Daemon: config hot-reload disabled: %v", err)
	}

	if addr := d.configMgr.GetConfig().Metrics.Listen; addr != "" {
		d.serveMetrics(addr)
	}
}

func (d *Daemon) serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", d.metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	d.wg.Add(2)
	go func() {
		defer d.wg.Done()
		log.Printf("Daemon: serving metrics on %s/metrics", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("Daemon: metrics server failed: %v", err)
		}
	}()
	go func() {
		defer d.wg.Done()
		<-d.ctx.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}()
}

// shutdown forces the current session through its exit actions and waits for
// every client and background goroutine.
func (d *Daemon) shutdown() {
	d.cancel()
	d.manager.Close()
	d.configMgr.Stop()
	d.wg.Wait()
	log.Printf("Daemon: stopped")
}

func (d *Daemon) handle(c net.Conn) {
	defer c.Close()

	r := bufio.NewReader(c)
	line, err := r.ReadString('\n')
	if err != nil {
		log.Printf("Daemon: client read error: %v", err)
		fmt.Fprintf(c, "ERR read_error: %v\n", err)
		return
	}
	if len(line) <= 1 {
		fmt.Fprint(c, "ERR empty\n")
		return
	}
	cmd := line[0]

	switch cmd {
	case bus.CmdStart:
		reply(c, "started", d.manager.Start(d.ctx))
	case bus.CmdStop:
		d.manager.Stop()
		fmt.Fprint(c, "OK stopped\n")
	case bus.CmdToggle:
		reply(c, "toggled", d.manager.Toggle(d.ctx))
	case bus.CmdRestart:
		reply(c, "restarted", d.manager.Restart(d.ctx))
	case bus.CmdStatus:
		fmt.Fprint(c, FormatStatus(d.manager.State()))
	case bus.CmdWatch:
		d.watch(c, r)
	case bus.CmdVersion:
		fmt.Fprintf(c, "STATUS proto=%s\n", bus.ProtoVer)
	case bus.CmdQuit:
		fmt.Fprint(c, "OK quitting\n")
		d.cancel()
	default:
		log.Printf("Daemon: unknown command: %c", cmd)
		fmt.Fprintf(c, "ERR unknown=%q\n", cmd)
	}
}

func reply(c net.Conn, what string, err error) {
	if err != nil {
		fmt.Fprintf(c, "ERR %v\n", err)
		return
	}
	fmt.Fprintf(c, "OK %s\n", what)
}

// FormatStatus renders the single-line status reply.
func FormatStatus(st manager.State) string {
	line := fmt.Sprintf("STATUS status=%s available=%t dropped=%d transcript=%q",
		st.Status, st.Available, st.Dropped, st.Transcript)
	if st.Reason != "" {
		line += fmt.Sprintf(" reason=%q", st.Reason)
	}
	return line + "\n"
}

// watch streams JSON state snapshots until the client hangs up or the
// manager closes.
func (d *Daemon) watch(c net.Conn, r *bufio.Reader) {
	states, unsubscribe := d.manager.Subscribe(watchBuffer)
	defer unsubscribe()

	gone := make(chan struct{})
	go func() {
		defer close(gone)
		_, _ = r.ReadByte() // returns once the client closes its end
	}()

	enc := json.NewEncoder(c)
	for {
		select {
		case <-gone:
			return
		case st, ok := <-states:
			if !ok {
				return
			}
			if err := enc.Encode(st); err != nil {
				log.Printf("Daemon: watch client write failed: %v", err)
				return
			}
		}
	}
}
