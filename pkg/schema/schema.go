package schema

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/umich-dbgroup/litmus/pkg/logger"
)

var (
	ErrUnknownRelation  = errors.New("unknown relation")
	ErrUnknownAttribute = errors.New("unknown attribute")
)

// aliasPattern recovers the relation from generated aliases such as actor_0.
var aliasPattern = regexp.MustCompile(`^([A-Za-z_]+)_[0-9]+$`)

// Relation is a table and its supported attributes.
type Relation struct {
	Name       string                `json:"name"`
	Attributes map[string]*Attribute `json:"attributes"`
}

// Schema is the read-only catalog of one database. It is safe for concurrent
// readers once loaded.
type Schema struct {
	Database  string               `json:"database"`
	Relations map[string]*Relation `json:"relations"`
}

// Column is a column as reported by the engine catalog.
type Column struct {
	Name       string
	Type       string
	PrimaryKey bool
}

// Introspector reads catalog information from a database.
type Introspector interface {
	ListTables(ctx context.Context) ([]string, error)
	DescribeColumns(ctx context.Context, table string) ([]Column, error)
	MinMax(ctx context.Context, table, column string) (lo, hi *float64, err error)
}

type LoadParams struct {
	Database string
	// Ignore lists relations left out of the catalog.
	Ignore []string
	// TextIndexPrefix is copied onto every text attribute.
	TextIndexPrefix int
}

// Load reads relations, attributes and numeric ranges through the introspector.
func Load(ctx context.Context, in Introspector, params LoadParams) (*Schema, error) {
	start := time.Now()
	tables, err := in.ListTables(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}

	s := &Schema{Database: params.Database, Relations: make(map[string]*Relation)}
	for _, table := range tables {
		if slices.Contains(params.Ignore, table) {
			continue
		}
		cols, err := in.DescribeColumns(ctx, table)
		if err != nil {
			return nil, fmt.Errorf("failed to describe %s: %w", table, err)
		}

		rel := &Relation{Name: table, Attributes: make(map[string]*Attribute, len(cols))}
		for _, col := range cols {
			attr := &Attribute{
				Relation:   table,
				Name:       col.Name,
				Type:       ClassifyColumnType(col.Type),
				PrimaryKey: col.PrimaryKey,
			}
			switch attr.Type {
			case TypeNum:
				lo, hi, err := in.MinMax(ctx, table, col.Name)
				if err != nil {
					return nil, fmt.Errorf("failed to read range of %s: %w", attr, err)
				}
				attr.Min, attr.Max = lo, hi
			case TypeText:
				attr.IndexPrefix = params.TextIndexPrefix
			}
			rel.Attributes[col.Name] = attr
		}
		s.Relations[table] = rel
	}

	logger.Info("[Schema] Loaded schema", "database", params.Database, "relations", len(s.Relations), "duration", time.Since(start))
	return s, nil
}

// Attribute returns the attribute for a key.
func (s *Schema) Attribute(k AttrKey) (*Attribute, error) {
	rel, ok := s.Relations[k.Relation]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRelation, k.Relation)
	}
	attr, ok := rel.Attributes[k.Name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAttribute, k)
	}
	return attr, nil
}

// Attributes returns every num or text attribute sorted by key.
func (s *Schema) Attributes() []*Attribute {
	var out []*Attribute
	for _, rel := range s.Relations {
		for _, attr := range rel.Attributes {
			if attr.Type == TypeNum || attr.Type == TypeText {
				out = append(out, attr)
			}
		}
	}
	slices.SortFunc(out, func(a, b *Attribute) int {
		return strings.Compare(a.String(), b.String())
	})
	return out
}

// Lookup resolves a projection fragment such as "actor_0.name" or "a.name".
// aliases maps FROM clause aliases to relation names and may be nil; aliases
// of the form <relation>_<n> are resolved without it.
func (s *Schema) Lookup(fragment string, aliases map[string]string) (*Attribute, error) {
	qualifier, name, ok := strings.Cut(fragment, ".")
	if !ok {
		return s.lookupUnqualified(fragment, aliases)
	}

	rel := qualifier
	if r, ok := aliases[qualifier]; ok {
		rel = r
	} else if m := aliasPattern.FindStringSubmatch(qualifier); m != nil {
		if _, exists := s.Relations[qualifier]; !exists {
			rel = m[1]
		}
	}
	return s.Attribute(AttrKey{Relation: rel, Name: name})
}

func (s *Schema) lookupUnqualified(name string, aliases map[string]string) (*Attribute, error) {
	var found *Attribute
	for _, relName := range aliases {
		rel, ok := s.Relations[relName]
		if !ok {
			continue
		}
		if attr, ok := rel.Attributes[name]; ok {
			if found != nil && found.Relation != attr.Relation {
				return nil, fmt.Errorf("%w: %s is ambiguous", ErrUnknownAttribute, name)
			}
			found = attr
		}
	}
	if found == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAttribute, name)
	}
	return found, nil
}

// Validate checks a schema decoded from a cache snapshot.
func (s *Schema) Validate() error {
	for name, rel := range s.Relations {
		if rel == nil || rel.Name != name {
			return fmt.Errorf("relation %q is inconsistent", name)
		}
		for attrName, attr := range rel.Attributes {
			if attr == nil || attr.Name != attrName || attr.Relation != name {
				return fmt.Errorf("attribute %s.%s is inconsistent", name, attrName)
			}
			if err := mustKnownType(attr.Type); err != nil {
				return err
			}
		}
	}
	return nil
}
