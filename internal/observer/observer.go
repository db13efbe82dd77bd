// Package observer keeps an ordered registry of non-owned observers.
package observer

import (
	"sync"
	"sync/atomic"
)

type entry[T comparable] struct {
	observer T
	removed  atomic.Bool
}

// List is safe for concurrent use. Notify iterates a snapshot, so observers
// may add or remove observers while being notified; a removed observer is
// skipped for the rest of the pass it was removed in, and an added one
// first hears the next pass.
type List[T comparable] struct {
	mu      sync.Mutex
	entries []*entry[T]
}

// Add registers o at the end of the list. Registering twice is a no-op.
func (l *List[T]) Add(o T) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.entries {
		if e.observer == o {
			return
		}
	}
	l.entries = append(l.entries, &entry[T]{observer: o})
}

// Remove unregisters o and reports whether it was registered.
func (l *List[T]) Remove(o T) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, e := range l.entries {
		if e.observer == o {
			e.removed.Store(true)
			l.entries = append(l.entries[:i:i], l.entries[i+1:]...)
			return true
		}
	}
	return false
}

func (l *List[T]) Has(o T) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.entries {
		if e.observer == o {
			return true
		}
	}
	return false
}

func (l *List[T]) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Clear removes every observer.
func (l *List[T]) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.entries {
		e.removed.Store(true)
	}
	l.entries = nil
}

// Notify calls f for every registered observer in registration order.
func (l *List[T]) Notify(f func(T)) {
	l.mu.Lock()
	snapshot := l.entries
	l.mu.Unlock()
	for _, e := range snapshot {
		if e.removed.Load() {
			continue
		}
		f(e.observer)
	}
}
