package plmxml

import "strings"

// Attributes is a string map that remembers insertion order.
// Setting an existing key replaces its value in place.
type Attributes struct {
	keys   []string
	values map[string]string
}

// Set stores value under key
func (a *Attributes) Set(key, value string) {
	if a.values == nil {
		a.values = make(map[string]string)
	}
	if _, exists := a.values[key]; !exists {
		a.keys = append(a.keys, key)
	}
	a.values[key] = value
}

// Get returns the value stored under key
func (a Attributes) Get(key string) (string, bool) {
	v, ok := a.values[key]
	return v, ok
}

// Len returns the number of distinct keys
func (a Attributes) Len() int {
	return len(a.keys)
}

// Keys returns the keys in insertion order
func (a Attributes) Keys() []string {
	out := make([]string, len(a.keys))
	copy(out, a.keys)
	return out
}

// Range calls fn for every pair in insertion order until fn returns false
func (a Attributes) Range(fn func(key, value string) bool) {
	for _, k := range a.keys {
		if !fn(k, a.values[k]) {
			return
		}
	}
}

// String renders the attributes as "k=v; k2=v2"
func (a Attributes) String() string {
	var sb strings.Builder
	for i, k := range a.keys {
		if i > 0 {
			sb.WriteString("; ")
		}
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(a.values[k])
	}
	return sb.String()
}
