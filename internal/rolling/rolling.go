// Package rolling provides fixed-capacity FIFO windows keyed by asset.
package rolling

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// Window is a fixed-capacity FIFO of values, oldest first.
type Window[V any] struct {
	items    []V
	capacity int
}

// NewWindow returns an empty window. Capacities below 1 are raised to 1.
func NewWindow[V any](capacity int) *Window[V] {
	if capacity < 1 {
		capacity = 1
	}
	return &Window[V]{
		items:    make([]V, 0, capacity),
		capacity: capacity,
	}
}

// Append adds v as the newest value, dropping the oldest when full.
func (w *Window[V]) Append(v V) {
	if len(w.items) == w.capacity {
		copy(w.items, w.items[1:])
		w.items = w.items[:w.capacity-1]
	}
	w.items = append(w.items, v)
}

// Replace discards the current contents and keeps the last Cap() of vs.
func (w *Window[V]) Replace(vs []V) {
	if len(vs) > w.capacity {
		vs = vs[len(vs)-w.capacity:]
	}
	w.items = append(w.items[:0], vs...)
}

// Values returns a copy of the window contents, oldest first.
func (w *Window[V]) Values() []V {
	out := make([]V, len(w.items))
	copy(out, w.items)
	return out
}

// Last returns the newest value.
func (w *Window[V]) Last() (V, bool) {
	var zero V
	if len(w.items) == 0 {
		return zero, false
	}
	return w.items[len(w.items)-1], true
}

func (w *Window[V]) Len() int { return len(w.items) }
func (w *Window[V]) Cap() int { return w.capacity }

// Series holds one Window per key, created on first write.
//
// When maxKeys is positive the number of tracked keys is bounded and the
// least recently written or read key is dropped to make room.
type Series[K comparable, V any] struct {
	capacity int
	windows  map[K]*Window[V]
	bounded  *lru.Cache[K, *Window[V]]
}

// NewSeries creates a Series whose windows hold capacity values each.
func NewSeries[K comparable, V any](capacity, maxKeys int) *Series[K, V] {
	s := &Series[K, V]{capacity: capacity}
	if maxKeys > 0 {
		// lru.New only fails on a non-positive size.
		s.bounded, _ = lru.New[K, *Window[V]](maxKeys)
	} else {
		s.windows = make(map[K]*Window[V])
	}
	return s
}

func (s *Series[K, V]) lookup(key K) (*Window[V], bool) {
	if s.bounded != nil {
		return s.bounded.Get(key)
	}
	w, ok := s.windows[key]
	return w, ok
}

func (s *Series[K, V]) getOrCreate(key K) *Window[V] {
	if w, ok := s.lookup(key); ok {
		return w
	}
	w := NewWindow[V](s.capacity)
	if s.bounded != nil {
		s.bounded.Add(key, w)
	} else {
		s.windows[key] = w
	}
	return w
}

// Append inserts value as the newest element of key's window.
func (s *Series[K, V]) Append(key K, value V) {
	s.getOrCreate(key).Append(value)
}

// Replace sets key's window to the last Capacity() values of values.
func (s *Series[K, V]) Replace(key K, values []V) {
	s.getOrCreate(key).Replace(values)
}

// Snapshot returns a copy of key's window, oldest first. Unseen keys yield an
// empty slice.
func (s *Series[K, V]) Snapshot(key K) []V {
	w, ok := s.lookup(key)
	if !ok {
		return []V{}
	}
	return w.Values()
}

// Len returns the number of values held for key.
func (s *Series[K, V]) Len(key K) int {
	w, ok := s.lookup(key)
	if !ok {
		return 0
	}
	return w.Len()
}

// Keys returns the number of tracked keys.
func (s *Series[K, V]) Keys() int {
	if s.bounded != nil {
		return s.bounded.Len()
	}
	return len(s.windows)
}

func (s *Series[K, V]) Capacity() int { return s.capacity }
