package mux

import (
	"sync"

	"mini-wsrpc/message"
)

// forwarder hands notifications to the consumer in arrival order without ever
// blocking the dispatch loop. push appends to an in-memory queue; a pump
// goroutine moves items from the queue onto out at the consumer's pace.
//
//	dispatch ──push──→ [queue] ──pump──→ out ──→ consumer
type forwarder struct {
	out   chan *message.Notification
	limit int // 0 = unbounded

	mu         sync.Mutex
	queue      []*message.Notification
	closed     bool // no more pushes, pump drains the queue then closes out
	sinkClosed bool // consumer is gone, queue is discarded

	wake     chan struct{}
	stop     chan struct{}
	stopOnce sync.Once
	exited   chan struct{}
}

func newForwarder(limit int) *forwarder {
	f := &forwarder{
		out:    make(chan *message.Notification),
		limit:  limit,
		wake:   make(chan struct{}, 1),
		stop:   make(chan struct{}),
		exited: make(chan struct{}),
	}
	go f.pump()
	return f
}

// push enqueues n. It fails with ErrSinkClosed after closeSink and with
// errNotificationOverflow when a bounded queue is full.
func (f *forwarder) push(n *message.Notification) error {
	f.mu.Lock()
	switch {
	case f.sinkClosed:
		f.mu.Unlock()
		return ErrSinkClosed
	case f.limit > 0 && len(f.queue) >= f.limit:
		f.mu.Unlock()
		return errNotificationOverflow
	}
	f.queue = append(f.queue, n)
	f.mu.Unlock()

	f.signal()
	return nil
}

// close stops accepting pushes. Whatever is queued is still delivered.
func (f *forwarder) close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	f.signal()
}

// closeSink is called by the consumer; queued items are discarded.
func (f *forwarder) closeSink() {
	f.mu.Lock()
	f.sinkClosed = true
	f.queue = nil
	f.mu.Unlock()
	f.stopOnce.Do(func() { close(f.stop) })
}

func (f *forwarder) signal() {
	select {
	case f.wake <- struct{}{}:
	default:
	}
}

func (f *forwarder) pump() {
	defer close(f.exited)
	defer close(f.out)

	for {
		f.mu.Lock()
		if len(f.queue) == 0 {
			finished := f.closed || f.sinkClosed
			f.mu.Unlock()
			if finished {
				return
			}
			select {
			case <-f.wake:
			case <-f.stop:
			}
			continue
		}
		n := f.queue[0]
		f.queue[0] = nil
		f.queue = f.queue[1:]
		f.mu.Unlock()

		select {
		case f.out <- n:
		case <-f.stop:
			return
		}
	}
}
