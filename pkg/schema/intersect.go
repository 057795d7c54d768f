package schema

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
)

// IntersectKind tags the variants of Intersect.
type IntersectKind uint8

const (
	KindEmpty IntersectKind = iota
	KindNum
	KindText
	// KindAll means every value of the domain matches.
	KindAll
)

func (k IntersectKind) String() string {
	switch k {
	case KindNum:
		return "num"
	case KindText:
		return "text"
	case KindAll:
		return "all"
	default:
		return "empty"
	}
}

// Intersect describes the values two or more attributes can share.
// Values are immutable; every operation returns a new Intersect.
type Intersect struct {
	kind   IntersectKind
	domain AttrType
	min    float64
	max    float64
	// values is sorted and duplicate free.
	values []string
}

// Empty is the intersect that matches nothing.
func Empty(domain AttrType) Intersect {
	return Intersect{kind: KindEmpty, domain: domain}
}

// All matches every value of the domain.
func All(domain AttrType) Intersect {
	return Intersect{kind: KindAll, domain: domain}
}

// Num is the closed numeric range [lo, hi]. lo > hi yields Empty.
func Num(lo, hi float64) Intersect {
	if lo > hi || math.IsNaN(lo) || math.IsNaN(hi) {
		return Empty(TypeNum)
	}
	return Intersect{kind: KindNum, domain: TypeNum, min: lo, max: hi}
}

// Text is the finite set of shared text values. No values yields Empty.
func Text(values ...string) Intersect {
	if len(values) == 0 {
		return Empty(TypeText)
	}
	vals := slices.Clone(values)
	slices.Sort(vals)
	vals = slices.Compact(vals)
	return Intersect{kind: KindText, domain: TypeText, values: vals}
}

func (i Intersect) Kind() IntersectKind { return i.kind }
func (i Intersect) Domain() AttrType    { return i.domain }
func (i Intersect) IsEmpty() bool       { return i.kind == KindEmpty }
func (i Intersect) IsAll() bool         { return i.kind == KindAll }

// Bounds returns the numeric range. ok is false for non numeric intersects.
func (i Intersect) Bounds() (lo, hi float64, ok bool) {
	if i.kind != KindNum {
		return 0, 0, false
	}
	return i.min, i.max, true
}

// Values returns a copy of the text values.
func (i Intersect) Values() []string {
	return slices.Clone(i.values)
}

// Len is the number of text values, or 0 for other kinds.
func (i Intersect) Len() int {
	return len(i.values)
}

// Union widens i to also cover o.
func (i Intersect) Union(o Intersect) Intersect {
	switch {
	case i.kind == KindEmpty:
		return o
	case o.kind == KindEmpty:
		return i
	case i.kind == KindAll:
		return i
	case o.kind == KindAll:
		return o
	case i.kind == KindNum && o.kind == KindNum:
		return Num(math.Min(i.min, o.min), math.Max(i.max, o.max))
	case i.kind == KindText && o.kind == KindText:
		return Text(append(slices.Clone(i.values), o.values...)...)
	default:
		return All(i.domain)
	}
}

// Meet narrows i to the values also covered by o.
func (i Intersect) Meet(o Intersect) Intersect {
	switch {
	case i.kind == KindEmpty || o.kind == KindEmpty:
		return Empty(i.domain)
	case i.kind == KindAll:
		return o
	case o.kind == KindAll:
		return i
	case i.kind == KindNum && o.kind == KindNum:
		return Num(math.Max(i.min, o.min), math.Min(i.max, o.max))
	case i.kind == KindText && o.kind == KindText:
		var shared []string
		for _, v := range i.values {
			if _, found := slices.BinarySearch(o.values, v); found {
				shared = append(shared, v)
			}
		}
		return Text(shared...)
	default:
		return Empty(i.domain)
	}
}

// Within reports whether every value of i is also covered by o.
func (i Intersect) Within(o Intersect) bool {
	switch {
	case i.kind == KindEmpty:
		return true
	case o.kind == KindAll:
		return true
	case i.kind == KindAll:
		return false
	case i.kind == KindNum && o.kind == KindNum:
		return i.min >= o.min && i.max <= o.max
	case i.kind == KindText && o.kind == KindText:
		for _, v := range i.values {
			if _, found := slices.BinarySearch(o.values, v); !found {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// Contains reports whether a single value lies inside the intersect.
func (i Intersect) Contains(v any) bool {
	switch i.kind {
	case KindAll:
		return true
	case KindNum:
		f, ok := toFloat(v)
		return ok && f >= i.min && f <= i.max
	case KindText:
		s, ok := v.(string)
		if !ok {
			return false
		}
		_, found := slices.BinarySearch(i.values, s)
		return found
	default:
		return false
	}
}

func (i Intersect) Equal(o Intersect) bool {
	return i.kind == o.kind && i.min == o.min && i.max == o.max && slices.Equal(i.values, o.values)
}

func (i Intersect) String() string {
	switch i.kind {
	case KindNum:
		return fmt.Sprintf("num[%g,%g]", i.min, i.max)
	case KindText:
		return fmt.Sprintf("text(%d)", len(i.values))
	case KindAll:
		return fmt.Sprintf("all(%s)", i.domain)
	default:
		return "empty"
	}
}

type intersectJSON struct {
	Kind   string   `json:"kind"`
	Domain AttrType `json:"domain,omitempty"`
	Min    float64  `json:"min,omitempty"`
	Max    float64  `json:"max,omitempty"`
	Values []string `json:"values,omitempty"`
}

func (i Intersect) MarshalJSON() ([]byte, error) {
	return json.Marshal(intersectJSON{
		Kind:   i.kind.String(),
		Domain: i.domain,
		Min:    i.min,
		Max:    i.max,
		Values: i.values,
	})
}

func (i *Intersect) UnmarshalJSON(data []byte) error {
	var raw intersectJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch raw.Kind {
	case "num":
		*i = Num(raw.Min, raw.Max)
	case "text":
		*i = Text(raw.Values...)
	case "all":
		*i = All(raw.Domain)
	case "empty":
		*i = Empty(raw.Domain)
	default:
		return fmt.Errorf("unknown intersect kind %q", raw.Kind)
	}
	return nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	default:
		return 0, false
	}
}
