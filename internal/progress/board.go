package progress

import (
	"context"
	"sync"
	"sync/atomic"
)

// subscriberBuffer bounds per-subscriber backlog; slow readers lose
// intermediate reports but always see the newest one.
const subscriberBuffer = 16

type entry struct {
	latest atomic.Pointer[Report]
	subs   map[chan Report]struct{}
}

// Board keeps the latest report per job. Reads are lock-free on the
// snapshot itself; the mutex only guards the job and subscriber maps.
type Board struct {
	mu   sync.RWMutex
	jobs map[string]*entry
}

func NewBoard() *Board {
	return &Board{jobs: make(map[string]*entry)}
}

func (b *Board) entry(id string, create bool) *entry {
	b.mu.RLock()
	e := b.jobs[id]
	b.mu.RUnlock()
	if e != nil || !create {
		return e
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if e = b.jobs[id]; e == nil {
		e = &entry{subs: make(map[chan Report]struct{})}
		b.jobs[id] = e
	}
	return e
}

// Publish replaces the job's snapshot and notifies subscribers.
func (b *Board) Publish(_ context.Context, r Report) {
	e := b.entry(r.JobID, true)
	snap := r
	e.latest.Store(&snap)

	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range e.subs {
		offer(ch, r)
		if r.Terminal() {
			delete(e.subs, ch)
			close(ch)
		}
	}
}

// Get returns the latest snapshot for id.
func (b *Board) Get(id string) (Report, bool) {
	e := b.entry(id, false)
	if e == nil {
		return Report{}, false
	}
	p := e.latest.Load()
	if p == nil {
		return Report{}, false
	}
	return *p, true
}

// Subscribe streams reports for id starting with the current snapshot, if any.
// The channel is closed after the terminal report or when cancel is called.
func (b *Board) Subscribe(id string) (<-chan Report, func()) {
	e := b.entry(id, true)
	ch := make(chan Report, subscriberBuffer)

	b.mu.Lock()
	if p := e.latest.Load(); p != nil {
		ch <- *p
		if p.Terminal() {
			close(ch)
			b.mu.Unlock()
			return ch, func() {}
		}
	}
	e.subs[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if _, ok := e.subs[ch]; ok {
				delete(e.subs, ch)
				close(ch)
			}
		})
	}
	return ch, cancel
}

// Forget drops the job's snapshot and closes its subscribers.
func (b *Board) Forget(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e := b.jobs[id]
	if e == nil {
		return
	}
	for ch := range e.subs {
		delete(e.subs, ch)
		close(ch)
	}
	delete(b.jobs, id)
}

// Len is the number of jobs on the board.
func (b *Board) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.jobs)
}

// offer sends r without blocking, discarding the oldest queued report if needed.
func offer(ch chan Report, r Report) {
	select {
	case ch <- r:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- r:
	default:
	}
}
