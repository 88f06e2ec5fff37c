package game

import (
	"encoding/json"
	"fmt"
	"iter"
)

// OrderedMap is a string-keyed map that remembers insertion order.
// It encodes to JSON as a sequence of [key, value] pairs.
type OrderedMap[V any] struct {
	keys   []string
	values map[string]V
}

func (m *OrderedMap[V]) Set(key string, value V) {
	if m.values == nil {
		m.values = make(map[string]V)
	}
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = value
}

func (m OrderedMap[V]) Get(key string) (V, bool) {
	value, ok := m.values[key]
	return value, ok
}

func (m OrderedMap[V]) Has(key string) bool {
	_, ok := m.values[key]
	return ok
}

func (m OrderedMap[V]) Len() int {
	return len(m.keys)
}

// Keys returns a copy of the keys in insertion order.
func (m OrderedMap[V]) Keys() []string {
	out := make([]string, len(m.keys))
	copy(out, m.keys)
	return out
}

func (m *OrderedMap[V]) Delete(key string) {
	if _, ok := m.values[key]; !ok {
		return
	}
	delete(m.values, key)
	for i, k := range m.keys {
		if k == key {
			m.keys = append(m.keys[:i], m.keys[i+1:]...)
			break
		}
	}
}

// All iterates entries in insertion order.
func (m OrderedMap[V]) All() iter.Seq2[string, V] {
	return func(yield func(string, V) bool) {
		for _, key := range m.keys {
			if !yield(key, m.values[key]) {
				return
			}
		}
	}
}

func (m OrderedMap[V]) MarshalJSON() ([]byte, error) {
	pairs := make([][2]any, 0, len(m.keys))
	for _, key := range m.keys {
		pairs = append(pairs, [2]any{key, m.values[key]})
	}
	return json.Marshal(pairs)
}

func (m *OrderedMap[V]) UnmarshalJSON(data []byte) error {
	var pairs [][2]json.RawMessage
	if err := json.Unmarshal(data, &pairs); err != nil {
		return err
	}
	m.keys = nil
	m.values = nil
	for i, pair := range pairs {
		var key string
		if err := json.Unmarshal(pair[0], &key); err != nil {
			return fmt.Errorf("entry %d key: %w", i, err)
		}
		var value V
		if err := json.Unmarshal(pair[1], &value); err != nil {
			return fmt.Errorf("entry %d value: %w", i, err)
		}
		m.Set(key, value)
	}
	return nil
}
