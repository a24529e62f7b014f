package transcriber

import "sync"

// availability publishes backend availability changes, keeping only the latest
// unread value so a slow reader never blocks the backend.
type availability struct {
	mu      sync.Mutex
	current bool
	known   bool
	ch      chan bool
}

func newAvailability() *availability {
	return &availability{ch: make(chan bool, 1)}
}

func (a *availability) set(v bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.known && a.current == v {
		return
	}
	a.current = v
	a.known = true

	select {
	case <-a.ch:
	default:
	}
	a.ch <- v
}

func (a *availability) observe(err error) {
	switch {
	case err == nil:
		a.set(true)
	case IsBackendError(err, Unavailable):
		a.set(false)
	}
}

func (a *availability) C() <-chan bool {
	return a.ch
}
