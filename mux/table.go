package mux

import "fmt"

// table maps outstanding request ids to their waiters.
// It is owned by the dispatch goroutine and never locked.
type table struct {
	waiters map[int64]*waiter
}

func newTable() *table {
	return &table{waiters: make(map[int64]*waiter)}
}

func (t *table) insert(w *waiter) error {
	if _, ok := t.waiters[w.id]; ok {
		return fmt.Errorf("duplicate request id %d", w.id)
	}
	t.waiters[w.id] = w
	return nil
}

// take removes and returns the waiter for id.
func (t *table) take(id int64) (*waiter, bool) {
	w, ok := t.waiters[id]
	if ok {
		delete(t.waiters, id)
	}
	return w, ok
}

func (t *table) remove(id int64) bool {
	_, ok := t.take(id)
	return ok
}

// drain empties the table and returns everything that was in it.
func (t *table) drain() []*waiter {
	out := make([]*waiter, 0, len(t.waiters))
	for id, w := range t.waiters {
		out = append(out, w)
		delete(t.waiters, id)
	}
	return out
}

func (t *table) len() int { return len(t.waiters) }
