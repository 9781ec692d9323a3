// Package cascades holds the core value types shared by the planner, the
// cursor layer and the record store: values, tuples, records, correlation
// identifiers and alias maps.
package cascades

import (
	"fmt"
	"sort"
	"strings"
)

// Value is any scalar flowing through the record layer. Supported scalars are
// nil, int64, float64, string, bool, []byte and time.Time; composite rows are
// *Record and Tuple.
type Value = any

// Tuple is an ordered list of values. Tuples are used for primary keys, index
// keys and the rows produced by aggregation.
type Tuple []Value

// Get returns the value at position i, or nil when i is out of range.
func (t Tuple) Get(i int) Value {
	if i < 0 || i >= len(t) {
		return nil
	}
	return t[i]
}

// Concat returns a new tuple holding t followed by other.
func (t Tuple) Concat(other Tuple) Tuple {
	out := make(Tuple, 0, len(t)+len(other))
	out = append(out, t...)
	return append(out, other...)
}

// Equal reports whether both tuples hold equal values position by position.
func (t Tuple) Equal(other Tuple) bool {
	return CompareTuples(t, other) == 0
}

func (t Tuple) String() string {
	parts := make([]string, len(t))
	for i, v := range t {
		parts[i] = FormatValue(v)
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// Record is a typed record stored in the record store.
type Record struct {
	Type       string
	PrimaryKey Tuple
	Fields     map[string]Value
}

// NewRecord creates a record of the given type. The primary key is derived
// from the named fields in order.
func NewRecord(recordType string, fields map[string]Value, primaryKey ...string) *Record {
	r := &Record{
		Type:   recordType,
		Fields: fields,
	}
	if r.Fields == nil {
		r.Fields = make(map[string]Value)
	}
	r.PrimaryKey = make(Tuple, len(primaryKey))
	for i, name := range primaryKey {
		r.PrimaryKey[i] = r.Fields[name]
	}
	return r
}

// Get returns the named field.
func (r *Record) Get(field string) (Value, bool) {
	if r == nil {
		return nil, false
	}
	v, ok := r.Fields[field]
	return v, ok
}

// FieldNames returns the record's field names in sorted order.
func (r *Record) FieldNames() []string {
	names := make([]string, 0, len(r.Fields))
	for name := range r.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Record) String() string {
	if r == nil {
		return "<nil>"
	}
	var sb strings.Builder
	sb.WriteString(r.Type)
	sb.WriteString(r.PrimaryKey.String())
	sb.WriteString("{")
	for i, name := range r.FieldNames() {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%s: %s", name, FormatValue(r.Fields[name]))
	}
	sb.WriteString("}")
	return sb.String()
}

// IndexEntry is one entry of a value index: the indexed key followed by the
// primary key of the record it points to.
type IndexEntry struct {
	Index            string
	KeyFields        []string
	Key              Tuple
	PrimaryKeyFields []string
	PrimaryKey       Tuple
}

// Get returns a key or primary key field of the entry.
func (e *IndexEntry) Get(field string) (Value, bool) {
	if e == nil {
		return nil, false
	}
	for i, f := range e.KeyFields {
		if f == field {
			return e.Key.Get(i), true
		}
	}
	for i, f := range e.PrimaryKeyFields {
		if f == field {
			return e.PrimaryKey.Get(i), true
		}
	}
	return nil, false
}

func (e *IndexEntry) String() string {
	return e.Index + e.Key.String() + "->" + e.PrimaryKey.String()
}

// FormatValue renders a value for explain output and result tables.
func FormatValue(v Value) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case string:
		return fmt.Sprintf("%q", val)
	case []byte:
		return fmt.Sprintf("0x%x", val)
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprintf("%v", val)
	}
}

// QueriedRecord is a record produced by a query together with the index
// entry it was fetched through. IndexEntry is nil for records read by a
// scan.
type QueriedRecord struct {
	*Record
	IndexEntry *IndexEntry
}

func (q *QueriedRecord) String() string {
	if q.IndexEntry == nil {
		return q.Record.String()
	}
	return q.Record.String() + " via " + q.IndexEntry.Index
}
