package safe

import (
	"sync"
)

// Map is a mutex guarded map shared by sockets, the service and the
// diagnostic logger.
type Map[K comparable, V any] struct {
	m  map[K]V
	mu sync.RWMutex
}

func NewMap[K comparable, V any]() *Map[K, V] {
	return &Map[K, V]{m: make(map[K]V)}
}

func (m *Map[K, V]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.m)
}
func (m *Map[K, V]) Set(key K, value V) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.m[key] = value
}
func (m *Map[K, V]) Get(key K) (actual V, loaded bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	actual, loaded = m.m[key]
	return actual, loaded
}

// Range calls f for a snapshot of the entries, so f may modify the map.
func (m *Map[K, V]) Range(f func(key K, value V) bool) {
	m.mu.RLock()
	snapshot := make(map[K]V, len(m.m))
	for k, v := range m.m {
		snapshot[k] = v
	}
	m.mu.RUnlock()
	for k, v := range snapshot {
		if !f(k, v) {
			break
		}
	}
}

// Values returns the current values in no particular order.
func (m *Map[K, V]) Values() []V {
	m.mu.RLock()
	defer m.mu.RUnlock()
	values := make([]V, 0, len(m.m))
	for _, v := range m.m {
		values = append(values, v)
	}
	return values
}
func (m *Map[K, V]) Delete(key K) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, loaded := m.m[key]; loaded {
		delete(m.m, key)
		return true
	}
	return false
}

// Take removes the key and returns the value it held.
func (m *Map[K, V]) Take(key K) (actual V, loaded bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if actual, loaded = m.m[key]; loaded {
		delete(m.m, key)
	}
	return actual, loaded
}

// GetOrSet returns the existing value for the key if present.
// Otherwise, it stores and returns the given value.
// The loaded result is true if the value was loaded, false if stored.
func (m *Map[K, V]) GetOrSet(key K, value V) (actual V, loaded bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if actual, loaded := m.m[key]; loaded {
		return actual, loaded
	}
	m.m[key] = value
	return value, false
}

// DeleteIf removes the key only while it still maps to a value for which
// match reports true.
func (m *Map[K, V]) DeleteIf(key K, match func(V) bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, loaded := m.m[key]; loaded && match(v) {
		delete(m.m, key)
		return true
	}
	return false
}
