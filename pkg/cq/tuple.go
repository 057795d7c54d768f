package cq

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Tuple is one output row. Values are normalised to int64, float64, string
// or bool; NULLs never reach a Tuple.
type Tuple []any

// TupleKey is the canonical identity of a tuple. Numbers compare by value,
// so 15 and 15.0 are the same tuple.
type TupleKey string

func (t Tuple) Key() TupleKey {
	var b strings.Builder
	for _, v := range t {
		writeValue(&b, v)
	}
	return TupleKey(b.String())
}

func writeValue(b *strings.Builder, v any) {
	switch x := v.(type) {
	case int64:
		b.WriteString("n")
		b.WriteString(strconv.FormatInt(x, 10))
	case int:
		b.WriteString("n")
		b.WriteString(strconv.Itoa(x))
	case float64:
		b.WriteString("n")
		if x == math.Trunc(x) && math.Abs(x) < 1<<62 {
			b.WriteString(strconv.FormatInt(int64(x), 10))
		} else {
			b.WriteString(strconv.FormatFloat(x, 'g', -1, 64))
		}
	case string:
		b.WriteString("s")
		b.WriteString(strconv.Itoa(len(x)))
		b.WriteByte(':')
		b.WriteString(x)
	case bool:
		b.WriteString("b")
		b.WriteString(strconv.FormatBool(x))
	case time.Time:
		s := x.UTC().Format(time.RFC3339Nano)
		b.WriteString("s")
		b.WriteString(strconv.Itoa(len(s)))
		b.WriteByte(':')
		b.WriteString(s)
	default:
		s := fmt.Sprint(x)
		b.WriteString("s")
		b.WriteString(strconv.Itoa(len(s)))
		b.WriteByte(':')
		b.WriteString(s)
	}
	b.WriteByte(';')
}

func (t Tuple) String() string {
	parts := make([]string, len(t))
	for i, v := range t {
		parts[i] = fmt.Sprint(v)
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// IsNumeric reports whether v is a normalised number.
func IsNumeric(v any) bool {
	switch v.(type) {
	case int64, int, float64:
		return true
	default:
		return false
	}
}

type tupleEntry struct {
	tuple   Tuple
	support IDSet
}

// TupleMap maps distinct tuples to the CQs producing them and keeps the
// order in which tuples were first discovered.
type TupleMap struct {
	entries map[TupleKey]*tupleEntry
	order   []TupleKey
}

func NewTupleMap() *TupleMap {
	return &TupleMap{entries: make(map[TupleKey]*tupleEntry)}
}

// Add records that CQ id produces t.
func (m *TupleMap) Add(t Tuple, ids ...int) {
	k := t.Key()
	e, ok := m.entries[k]
	if !ok {
		e = &tupleEntry{tuple: t, support: IDSet{}}
		m.entries[k] = e
		m.order = append(m.order, k)
	}
	e.support.Add(ids...)
}

// Set replaces the support of an already known tuple.
func (m *TupleMap) Set(k TupleKey, support IDSet) {
	if e, ok := m.entries[k]; ok {
		e.support = support.Clone()
	}
}

func (m *TupleMap) Tuple(k TupleKey) (Tuple, bool) {
	e, ok := m.entries[k]
	if !ok {
		return nil, false
	}
	return e.tuple, true
}

// Support returns the CQ ids producing the tuple. The set must not be modified.
func (m *TupleMap) Support(k TupleKey) IDSet {
	if e, ok := m.entries[k]; ok {
		return e.support
	}
	return nil
}

func (m *TupleMap) Delete(k TupleKey) {
	if _, ok := m.entries[k]; !ok {
		return
	}
	delete(m.entries, k)
	m.order = slices.DeleteFunc(m.order, func(o TupleKey) bool { return o == k })
}

func (m *TupleMap) Len() int { return len(m.entries) }

// Keys returns tuple keys in discovery order.
func (m *TupleMap) Keys() []TupleKey {
	return slices.Clone(m.order)
}

// Filter returns the tuples whose support satisfies keep, in discovery order.
func (m *TupleMap) Filter(keep func(k TupleKey, support IDSet) bool) *TupleMap {
	out := NewTupleMap()
	for _, k := range m.order {
		e := m.entries[k]
		if keep(k, e.support) {
			out.Add(e.tuple, e.support.Sorted()...)
		}
	}
	return out
}
