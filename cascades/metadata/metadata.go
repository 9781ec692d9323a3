// Package metadata describes the record types of a store and the indexes
// declared over them. Match candidates are derived from it.
package metadata

import (
	"sort"

	"github.com/cockroachdb/errors"
	"github.com/wbrown/janus-cascades/cascades/query"
)

// RecordType is a named record type with a primary key.
type RecordType struct {
	Name       string
	PrimaryKey []string
}

// IndexKind distinguishes value indexes from aggregate indexes.
type IndexKind int

const (
	// ValueIndex maps (fields..., primary key) to the record.
	ValueIndex IndexKind = iota
	// AggregateIndex keeps one aggregate per distinct value of the fields.
	AggregateIndex
)

func (k IndexKind) String() string {
	if k == AggregateIndex {
		return "aggregate"
	}
	return "value"
}

// Index is an index over one record type. For an aggregate index Fields
// are the grouping fields and Func is applied to AggregateField, which is
// empty for count(*).
type Index struct {
	Name           string
	RecordType     string
	Kind           IndexKind
	Fields         []string
	Func           query.AggregateFunc
	AggregateField string
}

// Aggregate returns the aggregate value the index maintains over rows of
// alias. It is nil for value indexes.
func (ix *Index) Aggregate(field func(string) query.Value) *query.AggregateValue {
	if ix.Kind != AggregateIndex {
		return nil
	}
	if ix.AggregateField == "" {
		return query.CountRows()
	}
	return query.Aggregate(ix.Func, field(ix.AggregateField))
}

// Metadata is the catalog of record types and indexes. It is immutable once
// built and safe for concurrent use.
type Metadata struct {
	types   map[string]*RecordType
	indexes []*Index
	byName  map[string]*Index
}

// Builder assembles Metadata.
type Builder struct {
	md  *Metadata
	err error
}

// NewBuilder starts an empty catalog.
func NewBuilder() *Builder {
	return &Builder{md: &Metadata{
		types:  make(map[string]*RecordType),
		byName: make(map[string]*Index),
	}}
}

// RecordType declares a record type.
func (b *Builder) RecordType(name string, primaryKey ...string) *Builder {
	if b.err != nil {
		return b
	}
	switch {
	case name == "":
		b.err = errors.New("record type without a name")
	case len(primaryKey) == 0:
		b.err = errors.Newf("record type %s has no primary key", name)
	case b.md.types[name] != nil:
		b.err = errors.Newf("record type %s declared twice", name)
	default:
		b.md.types[name] = &RecordType{Name: name, PrimaryKey: primaryKey}
	}
	return b
}

// ValueIndex declares a value index on fields of recordType.
func (b *Builder) ValueIndex(name, recordType string, fields ...string) *Builder {
	return b.Index(&Index{Name: name, RecordType: recordType, Kind: ValueIndex, Fields: fields})
}

// AggregateIndex declares an index maintaining fn(field) grouped by
// grouping. An empty field means count(*).
func (b *Builder) AggregateIndex(name, recordType string, fn query.AggregateFunc, field string, grouping ...string) *Builder {
	return b.Index(&Index{
		Name:           name,
		RecordType:     recordType,
		Kind:           AggregateIndex,
		Fields:         grouping,
		Func:           fn,
		AggregateField: field,
	})
}

// Index declares an index.
func (b *Builder) Index(ix *Index) *Builder {
	if b.err != nil {
		return b
	}
	switch {
	case ix.Name == "":
		b.err = errors.New("index without a name")
	case b.md.byName[ix.Name] != nil:
		b.err = errors.Newf("index %s declared twice", ix.Name)
	case b.md.types[ix.RecordType] == nil:
		b.err = errors.Newf("index %s is on unknown record type %s", ix.Name, ix.RecordType)
	case ix.Kind == ValueIndex && len(ix.Fields) == 0:
		b.err = errors.Newf("value index %s has no fields", ix.Name)
	case ix.Kind == AggregateIndex && ix.Func != query.Count && ix.AggregateField == "":
		b.err = errors.Newf("aggregate index %s needs a field for %s", ix.Name, ix.Func)
	default:
		b.md.indexes = append(b.md.indexes, ix)
		b.md.byName[ix.Name] = ix
	}
	return b
}

// Build returns the catalog or the first declaration error.
func (b *Builder) Build() (*Metadata, error) {
	if b.err != nil {
		return nil, b.err
	}
	return b.md, nil
}

// RecordType returns the named record type.
func (md *Metadata) RecordType(name string) (*RecordType, bool) {
	rt, ok := md.types[name]
	return rt, ok
}

// RecordTypeNames returns every record type name in sorted order.
func (md *Metadata) RecordTypeNames() []string {
	out := make([]string, 0, len(md.types))
	for name := range md.types {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Indexes returns every index in declaration order.
func (md *Metadata) Indexes() []*Index { return md.indexes }

// Index returns the named index.
func (md *Metadata) Index(name string) (*Index, bool) {
	ix, ok := md.byName[name]
	return ix, ok
}

// IndexesOn returns the indexes declared on recordType.
func (md *Metadata) IndexesOn(recordType string) []*Index {
	var out []*Index
	for _, ix := range md.indexes {
		if ix.RecordType == recordType {
			out = append(out, ix)
		}
	}
	return out
}
