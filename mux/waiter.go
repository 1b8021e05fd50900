package mux

import (
	"encoding/json"
	"time"
)

// waiter is the one-shot completion slot of a single request.
// Only the dispatch goroutine resolves it, and only once: the table hands each
// waiter out at most one time.
type waiter struct {
	id     int64
	method string
	start  time.Time

	done   chan struct{}
	result json.RawMessage
	err    error
}

func newWaiter(id int64, method string) *waiter {
	return &waiter{
		id:     id,
		method: method,
		start:  time.Now(),
		done:   make(chan struct{}),
	}
}

// resolve publishes the outcome. Fields are written before done is closed, so
// readers that observed done see them.
func (w *waiter) resolve(result json.RawMessage, err error) {
	w.result = result
	w.err = err
	close(w.done)
}

func (w *waiter) cancel(cause error) {
	w.resolve(nil, &CancelledError{ID: w.id, Cause: cause})
}
