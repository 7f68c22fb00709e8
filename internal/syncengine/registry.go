// Package syncengine replicates POS tables between devices of one company.
//
// Only tables and columns declared in the Registry ever reach SQL; identifiers
// are quoted and never taken from the request.
package syncengine

import (
	"fmt"
	"regexp"
	"sort"
)

// Kind is the storage type of a business column.
type Kind int

const (
	Text Kind = iota
	Int
	Num
	Bool
)

func (k Kind) String() string {
	switch k {
	case Int:
		return "int"
	case Num:
		return "num"
	case Bool:
		return "bool"
	default:
		return "text"
	}
}

// Column is one client-writable column.
type Column struct {
	Name string
	Kind Kind
}

// Table declares a syncable table.
type Table struct {
	Name     string
	IDColumn string
	Columns  []Column

	kinds map[string]Kind
}

// KindOf returns the kind of a business column.
func (t *Table) KindOf(column string) (Kind, bool) {
	k, ok := t.kinds[column]
	return k, ok
}

// Server-managed columns present on every sync table.
const (
	ColCompanyID = "company_id"
	ColIsDeleted = "is_deleted"
	ColCreatedAt = "created_at"
	ColUpdatedAt = "updated_at"
)

var (
	identRe  = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)
	reserved = map[string]bool{ColCompanyID: true, ColIsDeleted: true, ColCreatedAt: true, ColUpdatedAt: true}
)

// Registry is the closed set of syncable tables.
type Registry struct {
	tables []*Table
	byName map[string]*Table
}

// NewRegistry validates tables and builds a Registry.
func NewRegistry(tables []Table) (*Registry, error) {
	r := &Registry{byName: make(map[string]*Table, len(tables))}
	for i := range tables {
		t := tables[i]
		if !identRe.MatchString(t.Name) {
			return nil, fmt.Errorf("sync table %q: invalid name", t.Name)
		}
		if _, dup := r.byName[t.Name]; dup {
			return nil, fmt.Errorf("sync table %q: declared twice", t.Name)
		}
		if t.IDColumn == "" {
			t.IDColumn = "id"
		}
		if !identRe.MatchString(t.IDColumn) || reserved[t.IDColumn] {
			return nil, fmt.Errorf("sync table %q: invalid id column %q", t.Name, t.IDColumn)
		}

		t.kinds = make(map[string]Kind, len(t.Columns))
		for _, c := range t.Columns {
			switch {
			case !identRe.MatchString(c.Name):
				return nil, fmt.Errorf("sync table %q: invalid column %q", t.Name, c.Name)
			case reserved[c.Name] || c.Name == t.IDColumn:
				return nil, fmt.Errorf("sync table %q: column %q is server-managed", t.Name, c.Name)
			}
			if _, dup := t.kinds[c.Name]; dup {
				return nil, fmt.Errorf("sync table %q: column %q declared twice", t.Name, c.Name)
			}
			t.kinds[c.Name] = c.Kind
		}

		r.tables = append(r.tables, &t)
		r.byName[t.Name] = &t
	}
	return r, nil
}

// MustRegistry is NewRegistry that panics on an invalid declaration.
func MustRegistry(tables []Table) *Registry {
	r, err := NewRegistry(tables)
	if err != nil {
		panic(err)
	}
	return r
}

// Table looks up a table by name.
func (r *Registry) Table(name string) (*Table, bool) {
	t, ok := r.byName[name]
	return t, ok
}

// Tables returns the tables in declaration order.
func (r *Registry) Tables() []*Table {
	return r.tables
}

// Names returns the table names sorted alphabetically.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tables))
	for _, t := range r.tables {
		names = append(names, t.Name)
	}
	sort.Strings(names)
	return names
}
