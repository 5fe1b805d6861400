package conversation

import "sync"

// handlers is an ordered registry of callbacks for one event kind. Add
// returns a zero-argument unregister func. Invocation copies the callback
// list under the lock and runs it outside, so a callback may register,
// unregister or send without deadlocking.
type handlers[T any] struct {
	mu      sync.Mutex
	nextID  int
	entries []handlerEntry[T]
}

type handlerEntry[T any] struct {
	id int
	fn func(T)
}

func (h *handlers[T]) add(fn func(T)) func() {
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.entries = append(h.entries, handlerEntry[T]{id: id, fn: fn})
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { h.remove(id) })
	}
}

func (h *handlers[T]) remove(id int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, e := range h.entries {
		if e.id == id {
			h.entries = append(h.entries[:i], h.entries[i+1:]...)
			return
		}
	}
}

func (h *handlers[T]) invoke(v T) {
	h.mu.Lock()
	fns := make([]func(T), len(h.entries))
	for i, e := range h.entries {
		fns[i] = e.fn
	}
	h.mu.Unlock()

	for _, fn := range fns {
		fn(v)
	}
}

func (h *handlers[T]) registered() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries) > 0
}
