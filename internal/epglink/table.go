package epglink

import (
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Table maps guide display names to EPG channel identifiers. Iteration order
// is insertion order; re-setting an existing name keeps its position.
type Table struct {
	m *orderedmap.OrderedMap[string, string]
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{m: orderedmap.New[string, string]()}
}

// TableOf builds a table from alternating name, id arguments. An odd trailing
// argument is ignored.
func TableOf(pairs ...string) *Table {
	t := NewTable()
	for i := 0; i+1 < len(pairs); i += 2 {
		t.Set(pairs[i], pairs[i+1])
	}
	return t
}

func (t *Table) lazy() {
	if t.m == nil {
		t.m = orderedmap.New[string, string]()
	}
}

func (t *Table) Set(name, id string) {
	t.lazy()
	t.m.Set(name, id)
}

func (t *Table) Get(name string) (string, bool) {
	if t == nil || t.m == nil {
		return "", false
	}
	return t.m.Get(name)
}

func (t *Table) Len() int {
	if t == nil || t.m == nil {
		return 0
	}
	return t.m.Len()
}

// Each calls fn for every entry in table order.
func (t *Table) Each(fn func(name, id string)) {
	if t == nil || t.m == nil {
		return
	}
	for p := t.m.Oldest(); p != nil; p = p.Next() {
		fn(p.Key, p.Value)
	}
}

// MarshalJSON encodes the table as a JSON object in table order.
func (t *Table) MarshalJSON() ([]byte, error) {
	t.lazy()
	return t.m.MarshalJSON()
}

// UnmarshalJSON decodes a JSON object, keeping the document's key order.
func (t *Table) UnmarshalJSON(data []byte) error {
	t.m = orderedmap.New[string, string]()
	return t.m.UnmarshalJSON(data)
}
