// Package manager is the façade over recognition sessions: it keeps at most
// one session alive and publishes immutable State snapshots to subscribers.
package manager

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/leonardotrapani/livescribe/internal/metrics"
	"github.com/leonardotrapani/livescribe/internal/notify"
	"github.com/leonardotrapani/livescribe/internal/recording"
	"github.com/leonardotrapani/livescribe/internal/session"
	"github.com/leonardotrapani/livescribe/internal/transcriber"
)

var ErrClosed = errors.New("manager closed")

// State is the observable snapshot published to subscribers.
type State struct {
	Status     session.Status `json:"status"`
	Reason     string         `json:"reason,omitempty"`
	Transcript string         `json:"transcript"`
	Available  bool           `json:"available"`
	Dropped    uint64         `json:"dropped"`
	Session    uint64         `json:"session"`
}

type Manager struct {
	cfgFn    func() session.Config
	driver   recording.Driver
	backend  transcriber.Backend
	notifier notify.Notifier
	metrics  *metrics.Metrics

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	state     State
	current   *session.Session
	nextID    uint64
	listenAt  time.Time
	forwarded uint64
	dropped   uint64
	subs      map[int]chan State
	nextSub   int
	closed    bool
	wg        sync.WaitGroup
}

// New creates a manager. cfgFn is called on every start so configuration
// reloads apply to the next session.
func New(cfgFn func() session.Config, driver recording.Driver, backend transcriber.Backend, notifier notify.Notifier) *Manager {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		cfgFn:    cfgFn,
		driver:   driver,
		backend:  backend,
		notifier: notifier,
		ctx:      ctx,
		cancel:   cancel,
		state:    State{Status: session.Idle, Available: true},
		subs:     make(map[int]chan State),
	}
}

// WithMetrics records session metrics into m.
func (m *Manager) WithMetrics(mt *metrics.Metrics) *Manager {
	m.mu.Lock()
	m.metrics = mt
	m.mu.Unlock()
	mt.SetBackendAvailable(m.State().Available)
	return m
}

// Start begins a session. It is a no-op while a session is starting or
// listening. A session that is still stopping is canceled and replaced.
func (m *Manager) Start(ctx context.Context) error {
	return m.start(ctx, false)
}

// Restart cancels any current session and starts a new one.
func (m *Manager) Restart(ctx context.Context) error {
	return m.start(ctx, true)
}

func (m *Manager) start(ctx context.Context, force bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if !force && m.current != nil && m.state.Status.Running() {
		log.Printf("Manager: session %d already %s, ignoring start", m.state.Session, m.state.Status)
		m.mu.Unlock()
		return nil
	}

	prev := m.current
	replaced, replacedFor := m.endListening()
	m.nextID++
	s := session.New(m.nextID, m.cfgFn(), m.driver, m.backend, m.report)
	m.current = s
	m.forwarded, m.dropped = 0, 0
	m.publish(State{
		Status:    session.Starting,
		Available: m.state.Available,
		Session:   s.ID(),
	})
	m.wg.Add(1)
	mt := m.metrics
	m.mu.Unlock()

	if replaced {
		mt.RecordSessionFinished("canceled", replacedFor.Seconds())
	}
	if prev != nil {
		log.Printf("Manager: canceling session %d to start session %d", prev.ID(), s.ID())
		prev.Cancel()
	}

	go func() {
		defer m.wg.Done()
		if prev != nil {
			<-prev.Done()
		}
		s.Run(m.ctx)
	}()
	return nil
}

// Stop requests graceful termination of the current session. It is a no-op
// when no session is active.
func (m *Manager) Stop() {
	m.mu.Lock()
	s := m.current
	m.mu.Unlock()

	if s == nil {
		return
	}
	log.Printf("Manager: stopping session %d", s.ID())
	s.Stop()
}

// Toggle stops a running session or starts a new one.
func (m *Manager) Toggle(ctx context.Context) error {
	m.mu.Lock()
	running := m.current != nil && m.state.Status.Running()
	m.mu.Unlock()

	if running {
		m.Stop()
		return nil
	}
	return m.Start(ctx)
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Subscribe returns a channel that receives the current state followed by
// every change. A slow subscriber loses its oldest pending snapshots, never
// the latest. The returned function unsubscribes and closes the channel.
func (m *Manager) Subscribe(buffer int) (<-chan State, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan State, buffer)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		close(ch)
		return ch, func() {}
	}
	id := m.nextSub
	m.nextSub++
	m.subs[id] = ch
	ch <- m.state

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			if _, ok := m.subs[id]; ok {
				delete(m.subs, id)
				close(ch)
			}
		})
	}
}

// WatchAvailability applies backend availability notifications until ctx is
// done or the backend stops publishing.
func (m *Manager) WatchAvailability(ctx context.Context) {
	updates := m.backend.Availability()
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.ctx.Done():
			return
		case available, ok := <-updates:
			if !ok {
				return
			}
			m.setAvailable(available)
		}
	}
}

func (m *Manager) setAvailable(available bool) {
	m.mu.Lock()
	if m.closed || m.state.Available == available {
		m.mu.Unlock()
		return
	}
	st := m.state
	st.Available = available
	m.publish(st)
	mt := m.metrics
	m.mu.Unlock()

	log.Printf("Manager: backend available=%v", available)
	mt.SetBackendAvailable(available)
	m.notifier.AvailabilityChanged(available)
}

// Close cancels the current session, waits for its exit actions and closes
// every subscription.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	s := m.current
	m.mu.Unlock()

	if s != nil {
		s.Cancel()
	}
	m.cancel()
	m.wg.Wait()

	m.mu.Lock()
	for id, ch := range m.subs {
		delete(m.subs, id)
		close(ch)
	}
	m.mu.Unlock()
	log.Printf("Manager: closed")
}

// report applies a session update. Updates from replaced sessions are ignored.
func (m *Manager) report(u session.Update) {
	m.mu.Lock()
	if m.current == nil || m.current.ID() != u.Session {
		m.mu.Unlock()
		return
	}

	prev := m.state
	st := State{
		Status:     u.Status,
		Transcript: u.Transcript,
		Available:  prev.Available,
		Dropped:    u.Dropped,
		Session:    u.Session,
	}
	if u.Err != nil {
		st.Reason = u.Err.Error()
	}
	switch {
	case transcriber.IsBackendError(u.Err, transcriber.Unavailable):
		st.Available = false
	case u.Status == session.Listening:
		// an open channel proves the backend is reachable again
		st.Available = true
	}

	forwarded := u.Forwarded - m.forwarded
	dropped := u.Dropped - m.dropped
	m.forwarded, m.dropped = u.Forwarded, u.Dropped

	var (
		listened bool
		duration time.Duration
	)
	if u.Status == session.Listening && prev.Status != session.Listening {
		m.listenAt = time.Now()
	}
	if u.Status.Terminal() {
		m.current = nil
		listened, duration = m.endListening()
	}
	m.publish(st)
	mt := m.metrics
	m.mu.Unlock()

	mt.RecordFrames(forwarded, dropped)
	if st.Transcript != prev.Transcript && st.Transcript != "" {
		mt.RecordTranscriptUpdate()
	}

	switch {
	case st.Status == session.Listening && prev.Status != session.Listening:
		mt.RecordSessionStarted()
		m.notifier.SessionStarted()

	case st.Status == session.Completed:
		if listened {
			mt.RecordSessionFinished("completed", duration.Seconds())
		}
		m.notifier.SessionCompleted(st.Transcript)

	case st.Status == session.Failed:
		if listened {
			mt.RecordSessionFinished("failed", duration.Seconds())
		}
		if !errors.Is(u.Err, session.ErrCanceled) {
			m.notifier.Error("Recognition failed: " + st.Reason)
		}
	}

	if st.Available != prev.Available {
		mt.SetBackendAvailable(st.Available)
		m.notifier.AvailabilityChanged(st.Available)
	}
}

// endListening clears the listening timestamp and reports how long the
// session listened. m.mu must be held.
func (m *Manager) endListening() (bool, time.Duration) {
	if m.listenAt.IsZero() {
		return false, 0
	}
	d := time.Since(m.listenAt)
	m.listenAt = time.Time{}
	return true, d
}

// publish stores st and fans it out. m.mu must be held, which keeps every
// subscriber's view in the same order.
func (m *Manager) publish(st State) {
	m.state = st
	for _, ch := range m.subs {
		select {
		case ch <- st:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- st:
		default:
		}
	}
}
