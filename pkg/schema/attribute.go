package schema

import (
	"fmt"
	"strings"
)

// AttrType is the coarse value domain of a projected column.
type AttrType string

const (
	TypeNum  AttrType = "num"
	TypeText AttrType = "text"
	// TypeAggr marks an aggregate projection such as COUNT(*).
	TypeAggr AttrType = "aggr"
	// TypeOther covers column types that never take part in intersections.
	TypeOther AttrType = "other"
)

// AttrKey identifies an attribute by relation and column name.
type AttrKey struct {
	Relation string `json:"relation"`
	Name     string `json:"name"`
}

func (k AttrKey) String() string {
	return k.Relation + "." + k.Name
}

// Less orders keys by relation, then name.
func (k AttrKey) Less(o AttrKey) bool {
	if k.Relation != o.Relation {
		return k.Relation < o.Relation
	}
	return k.Name < o.Name
}

// Attribute is a single column of a relation.
type Attribute struct {
	Relation   string   `json:"relation"`
	Name       string   `json:"name"`
	Type       AttrType `json:"type"`
	PrimaryKey bool     `json:"primary_key,omitempty"`

	// Min and Max are only set for numeric attributes of non-empty relations.
	Min *float64 `json:"min,omitempty"`
	Max *float64 `json:"max,omitempty"`

	// IndexPrefix is the indexed prefix length used for text temp tables.
	IndexPrefix int `json:"index_prefix,omitempty"`
}

func (a *Attribute) Key() AttrKey {
	return AttrKey{Relation: a.Relation, Name: a.Name}
}

func (a *Attribute) String() string {
	return a.Key().String()
}

// HasRange reports whether the numeric range is known.
func (a *Attribute) HasRange() bool {
	return a.Type == TypeNum && a.Min != nil && a.Max != nil
}

// Range returns the attribute's own range as an intersect. An attribute
// without a range (empty relation) yields Empty.
func (a *Attribute) Range() Intersect {
	switch a.Type {
	case TypeNum:
		if !a.HasRange() {
			return Empty(TypeNum)
		}
		return Num(*a.Min, *a.Max)
	case TypeText:
		return All(TypeText)
	default:
		return Empty(a.Type)
	}
}

// ClassifyColumnType maps an engine column type (MySQL, Postgres or SQLite
// spelling) onto num or text. Anything else is TypeOther.
func ClassifyColumnType(dbType string) AttrType {
	t := strings.ToLower(strings.TrimSpace(dbType))
	if i := strings.IndexByte(t, '('); i >= 0 {
		t = strings.TrimSpace(t[:i])
	}
	t = strings.TrimSuffix(t, " unsigned")

	switch {
	case t == "interval", t == "point":
		return TypeOther
	case strings.HasPrefix(t, "int"), strings.HasSuffix(t, "int"), strings.HasSuffix(t, "integer"),
		strings.HasPrefix(t, "float"), strings.HasPrefix(t, "double"),
		strings.HasPrefix(t, "decimal"), strings.HasPrefix(t, "numeric"),
		t == "real", strings.HasSuffix(t, "serial"):
		return TypeNum
	case t == "text", strings.HasSuffix(t, "text"), strings.HasPrefix(t, "varchar"),
		strings.HasPrefix(t, "char"), strings.HasPrefix(t, "character"),
		strings.HasPrefix(t, "enum"), t == "bpchar", t == "citext", t == "user-defined":
		return TypeText
	default:
		return TypeOther
	}
}

func mustKnownType(t AttrType) error {
	switch t {
	case TypeNum, TypeText, TypeAggr, TypeOther:
		return nil
	default:
		return fmt.Errorf("unknown attribute type %q", t)
	}
}
