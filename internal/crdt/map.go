package crdt

import (
	"sort"

	"github.com/automerge/automerge-go"
)

// Map is a keyed map where concurrent writes to one key resolve to the
// same winner on every replica. Values are JSON-like: nil, bool, int64,
// float64, string, []any and map[string]any. Go integers are stored as
// int64 and slices read back as []any.
type Map struct {
	doc  *Doc
	name string
}

// Name returns the wire name of the map.
func (m *Map) Name() string {
	return m.name
}

func (m *Map) values() map[string]*automerge.Value {
	v := m.doc.value(m.name)
	if v == nil || v.Kind() != automerge.KindMap {
		return nil
	}
	vals, err := v.Map().Values()
	if err != nil {
		return nil
	}
	return vals
}

// Get returns the value stored under key.
func (m *Map) Get(key string) (any, bool) {
	v, err := m.doc.am.Path(m.name, key).Get()
	if err != nil || v.IsVoid() {
		return nil, false
	}
	return v.Interface(), true
}

// Has reports whether key holds a value.
func (m *Map) Has(key string) bool {
	_, ok := m.Get(key)
	return ok
}

// Keys returns the live keys in sorted order.
func (m *Map) Keys() []string {
	vals := m.values()
	keys := make([]string, 0, len(vals))
	for k := range vals {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of live keys.
func (m *Map) Len() int {
	return len(m.values())
}

// ToMap returns a copy of every live entry.
func (m *Map) ToMap() map[string]any {
	vals := m.values()
	out := make(map[string]any, len(vals))
	for k, v := range vals {
		out[k] = v.Interface()
	}
	return out
}

// Set stores value under key. Values automerge cannot hold are logged and
// dropped.
func (m *Map) Set(key string, value any) {
	m.doc.mutate(m.name, func() error {
		return m.doc.am.Path(m.name).Map().Set(key, prepare(value))
	})
}

// SetIfAbsent stores value only when key holds nothing. It reports whether
// it wrote.
func (m *Map) SetIfAbsent(key string, value any) bool {
	var wrote bool
	m.doc.Transact(func() {
		if m.Has(key) {
			return
		}
		m.Set(key, value)
		wrote = true
	})
	return wrote
}

// Delete removes key. Deleting an absent key does nothing.
func (m *Map) Delete(key string) {
	m.doc.Transact(func() {
		if !m.Has(key) {
			return
		}
		m.doc.mutate(m.name, func() error {
			return m.doc.am.Path(m.name).Map().Delete(key)
		})
	})
}

// Observe calls fn after every batch that may have changed the map.
func (m *Map) Observe(fn func(Event)) (cancel func()) {
	return m.doc.observe(m.name, fn)
}

// prepare widens Go integers to int64 so they read back as integers.
func prepare(v any) any {
	switch x := v.(type) {
	case int:
		return int64(x)
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case uint8:
		return int64(x)
	case uint16:
		return int64(x)
	case uint32:
		return int64(x)
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = prepare(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = prepare(e)
		}
		return out
	}
	return v
}
