// Package buffer holds audio between the capture goroutine and the session loop.
package buffer

import (
	"fmt"
	"sync/atomic"

	"github.com/leonardotrapani/livescribe/internal/recording"
)

type OverflowPolicy string

const (
	// DropOldest discards the oldest queued frame to make room.
	DropOldest OverflowPolicy = "drop-oldest"
	// DropNewest discards the incoming frame.
	DropNewest OverflowPolicy = "drop-newest"
	// Block is recognised only so it can be rejected: it would stall the capture goroutine.
	Block OverflowPolicy = "block"
)

func ParsePolicy(s string) (OverflowPolicy, error) {
	switch OverflowPolicy(s) {
	case "", DropOldest:
		return DropOldest, nil
	case DropNewest:
		return DropNewest, nil
	case Block:
		return "", fmt.Errorf("overflow policy %q would block the audio thread", s)
	}
	return "", fmt.Errorf("unknown overflow policy %q", s)
}

type Config struct {
	Capacity int
	Policy   OverflowPolicy
	// FrameBytes presizes slot storage; larger frames grow a slot once.
	FrameBytes int
}

func DefaultConfig() Config {
	return Config{Capacity: 64, Policy: DropOldest}
}

// Ring is a bounded single-producer single-consumer frame queue.
// Push never blocks. Exactly one goroutine may Push and exactly one may Drain.
//
// head and tail only grow. Under DropOldest the producer may advance head,
// so the consumer claims a slot with a CAS and retries if it lost the race.
//
// Frame data lives in preallocated slots that circulate between the producer,
// the queue and the consumer, so Push copies into memory it owns and never
// allocates once every slot has been sized.
type Ring struct {
	slots  []atomic.Pointer[slot]
	policy OverflowPolicy

	head    atomic.Uint64 // next index to read
	tail    atomic.Uint64 // next index to write; producer only
	dropped atomic.Uint64

	free freeList // consumer returns slots, producer takes them
	held []*slot  // consumer only: slots backing the last Drain
}

type slot struct {
	frame recording.AudioFrame
	buf   []byte
}

func (s *slot) fill(f recording.AudioFrame) {
	if cap(s.buf) < len(f.Data) {
		s.buf = make([]byte, len(f.Data))
	}
	s.buf = s.buf[:len(f.Data)]
	copy(s.buf, f.Data)
	s.frame = f
	s.frame.Data = s.buf
}

func New(cfg Config) (*Ring, error) {
	if cfg.Capacity <= 0 {
		return nil, fmt.Errorf("invalid buffer capacity: %d", cfg.Capacity)
	}
	policy, err := ParsePolicy(string(cfg.Policy))
	if err != nil {
		return nil, err
	}

	// up to Capacity queued, Capacity held by the consumer and one being filled
	total := 2*cfg.Capacity + 1
	r := &Ring{
		slots:  make([]atomic.Pointer[slot], cfg.Capacity),
		policy: policy,
		free:   freeList{slots: make([]atomic.Pointer[slot], total)},
		held:   make([]*slot, 0, cfg.Capacity),
	}
	for i := 0; i < total; i++ {
		r.free.put(&slot{buf: make([]byte, 0, max(cfg.FrameBytes, 0))})
	}
	return r, nil
}

// Push enqueues a copy of frame. It returns false when the incoming frame
// itself was dropped. frame.Data may be reused by the caller once Push returns.
func (r *Ring) Push(frame recording.AudioFrame) bool {
	capacity := uint64(len(r.slots))
	t := r.tail.Load()

	var s *slot
	for {
		h := r.head.Load()
		if t-h < capacity {
			break
		}
		if r.policy == DropNewest {
			r.dropped.Add(1)
			return false
		}
		if r.head.CompareAndSwap(h, h+1) {
			r.dropped.Add(1)
			// the consumer can no longer claim index h, so its slot is ours
			s = r.slots[h%capacity].Load()
			break
		}
		// consumer freed a slot concurrently
	}

	if s == nil {
		if s = r.free.take(); s == nil {
			r.dropped.Add(1)
			return false
		}
	}
	s.fill(frame)
	r.slots[t%capacity].Store(s)
	r.tail.Store(t + 1)
	return true
}

// Drain appends queued frames to dst in order and returns it. At most Cap
// frames are taken per call. Returned frame data stays valid until the next
// Drain or Release.
func (r *Ring) Drain(dst []recording.AudioFrame) []recording.AudioFrame {
	r.recycle()

	capacity := uint64(len(r.slots))
	for len(r.held) < cap(r.held) {
		h := r.head.Load()
		t := r.tail.Load()
		if h >= t {
			break
		}
		s := r.slots[h%capacity].Load()
		if !r.head.CompareAndSwap(h, h+1) {
			continue // slot was dropped by the producer
		}
		r.held = append(r.held, s)
		dst = append(dst, s.frame)
	}
	return dst
}

func (r *Ring) recycle() {
	for _, s := range r.held {
		r.free.put(s)
	}
	clear(r.held)
	r.held = r.held[:0]
}

// Len returns the number of queued frames.
func (r *Ring) Len() int {
	h := r.head.Load()
	t := r.tail.Load()
	if h >= t {
		return 0
	}
	return int(t - h)
}

func (r *Ring) Cap() int {
	return len(r.slots)
}

// Dropped returns the number of frames lost to overflow. It never decreases.
func (r *Ring) Dropped() uint64 {
	return r.dropped.Load()
}

// Release discards queued frames and invalidates the last Drain. The producer must be stopped.
func (r *Ring) Release() {
	r.recycle()
	capacity := uint64(len(r.slots))
	t := r.tail.Load()
	for h := r.head.Load(); h < t; h++ {
		r.free.put(r.slots[h%capacity].Load())
	}
	for i := range r.slots {
		r.slots[i].Store(nil)
	}
	r.head.Store(t)
}

// freeList is an SPSC queue of spare slots flowing from the consumer back to
// the producer. It is sized to hold every slot, so put never overflows.
type freeList struct {
	slots []atomic.Pointer[slot]
	head  atomic.Uint64 // producer side
	tail  atomic.Uint64 // consumer side
}

func (q *freeList) put(s *slot) {
	t := q.tail.Load()
	q.slots[t%uint64(len(q.slots))].Store(s)
	q.tail.Store(t + 1)
}

func (q *freeList) take() *slot {
	h := q.head.Load()
	if h >= q.tail.Load() {
		return nil
	}
	s := q.slots[h%uint64(len(q.slots))].Load()
	q.head.Store(h + 1)
	return s
}
