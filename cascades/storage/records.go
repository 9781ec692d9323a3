package storage

import (
	"github.com/cockroachdb/errors"
	"github.com/wbrown/janus-cascades/cascades"
	"github.com/wbrown/janus-cascades/cascades/annotations"
	"github.com/wbrown/janus-cascades/cascades/metadata"
	"github.com/wbrown/janus-cascades/cascades/planner"
	"github.com/wbrown/janus-cascades/cascades/query"
)

// commitAttempts bounds the retries of a conflicting write.
const commitAttempts = 5

// RecordStore keeps typed records and maintains the indexes declared in its
// metadata on every write.
type RecordStore struct {
	store     Store
	md        *metadata.Metadata
	collector *annotations.Collector
}

// NewRecordStore layers records over s.
func NewRecordStore(s Store, md *metadata.Metadata) *RecordStore {
	return &RecordStore{store: s, md: md}
}

// WithCollector reports storage failures to c.
func (rs *RecordStore) WithCollector(c *annotations.Collector) *RecordStore {
	rs.collector = c
	return rs
}

// Metadata returns the catalog the store maintains.
func (rs *RecordStore) Metadata() *metadata.Metadata { return rs.md }

// Close closes the underlying engine.
func (rs *RecordStore) Close() error { return rs.store.Close() }

func (rs *RecordStore) recordType(name string) (*metadata.RecordType, error) {
	rt, ok := rs.md.RecordType(name)
	if !ok {
		return nil, errors.Newf("unknown record type %q", name)
	}
	return rt, nil
}

// SaveRecords inserts or replaces records in one transaction.
func (rs *RecordStore) SaveRecords(records ...*cascades.Record) error {
	err := UpdateWithRetry(rs.store, commitAttempts, func(tx Tx) error {
		for _, r := range records {
			if err := rs.save(tx, r); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		rs.collector.AddEvent(annotations.ErrorStorage, map[string]any{"op": "save", "error": err.Error()})
	}
	return err
}

func (rs *RecordStore) save(tx Tx, r *cascades.Record) error {
	rt, err := rs.recordType(r.Type)
	if err != nil {
		return err
	}
	pk := make(cascades.Tuple, len(rt.PrimaryKey))
	for i, f := range rt.PrimaryKey {
		v, ok := r.Get(f)
		if !ok || v == nil {
			return errors.Newf("%s record is missing primary key field %s", r.Type, f)
		}
		pk[i] = v
	}
	stored := &cascades.Record{Type: r.Type, PrimaryKey: pk, Fields: r.Fields}

	old, found, err := rs.load(tx.Get, rt, pk)
	if err != nil {
		return err
	}
	if found {
		if err := rs.unindex(tx, old); err != nil {
			return err
		}
	}

	key, err := subspaceKey(recordSpace, r.Type, pk)
	if err != nil {
		return err
	}
	value, err := encodeFields(r.Fields)
	if err != nil {
		return errors.Wrapf(err, "encoding %s", r)
	}
	if err := tx.Set(key, value); err != nil {
		return err
	}
	return rs.index(tx, old, stored)
}

// DeleteRecord removes a record and its index entries. It reports whether
// the record existed.
func (rs *RecordStore) DeleteRecord(recordType string, pk cascades.Tuple) (bool, error) {
	rt, err := rs.recordType(recordType)
	if err != nil {
		return false, err
	}
	var found bool
	err = UpdateWithRetry(rs.store, commitAttempts, func(tx Tx) error {
		old, ok, err := rs.load(tx.Get, rt, pk)
		if err != nil || !ok {
			found = false
			return err
		}
		found = true
		if err := rs.unindex(tx, old); err != nil {
			return err
		}
		key, err := subspaceKey(recordSpace, recordType, pk)
		if err != nil {
			return err
		}
		if err := tx.Delete(key); err != nil {
			return err
		}
		return rs.refreshAggregates(tx, old, nil)
	})
	return found, err
}

// LoadRecord reads one record by primary key.
func (rs *RecordStore) LoadRecord(recordType string, pk cascades.Tuple) (*cascades.Record, bool, error) {
	rt, err := rs.recordType(recordType)
	if err != nil {
		return nil, false, err
	}
	return rs.load(rs.store.Get, rt, pk)
}

func (rs *RecordStore) load(get func([]byte) ([]byte, bool, error), rt *metadata.RecordType, pk cascades.Tuple) (*cascades.Record, bool, error) {
	key, err := subspaceKey(recordSpace, rt.Name, pk)
	if err != nil {
		return nil, false, err
	}
	value, ok, err := get(key)
	if err != nil || !ok {
		return nil, false, err
	}
	fields, err := decodeFields(value)
	if err != nil {
		return nil, false, errors.Wrapf(err, "decoding %s%s", rt.Name, pk)
	}
	return &cascades.Record{Type: rt.Name, PrimaryKey: pk, Fields: fields}, true, nil
}

func indexKey(ix *metadata.Index, r *cascades.Record) ([]byte, error) {
	return subspaceKey(indexSpace, ix.Name, fieldValues(r, ix.Fields), r.PrimaryKey)
}

func fieldValues(r *cascades.Record, fields []string) cascades.Tuple {
	out := make(cascades.Tuple, len(fields))
	for i, f := range fields {
		out[i], _ = r.Get(f)
	}
	return out
}

// unindex removes the value index entries and aggregate memberships of old.
func (rs *RecordStore) unindex(tx Tx, old *cascades.Record) error {
	for _, ix := range rs.md.IndexesOn(old.Type) {
		var key []byte
		var err error
		if ix.Kind == metadata.ValueIndex {
			key, err = indexKey(ix, old)
		} else {
			key, err = subspaceKey(memberSpace, ix.Name, fieldValues(old, ix.Fields), old.PrimaryKey)
		}
		if err != nil {
			return err
		}
		if err := tx.Delete(key); err != nil {
			return err
		}
	}
	return nil
}

// index writes the entries of r and refreshes the aggregate groups old and
// r belong to.
func (rs *RecordStore) index(tx Tx, old, r *cascades.Record) error {
	for _, ix := range rs.md.IndexesOn(r.Type) {
		if ix.Kind == metadata.ValueIndex {
			key, err := indexKey(ix, r)
			if err != nil {
				return err
			}
			if err := tx.Set(key, nil); err != nil {
				return err
			}
			continue
		}
		key, err := subspaceKey(memberSpace, ix.Name, fieldValues(r, ix.Fields), r.PrimaryKey)
		if err != nil {
			return err
		}
		input := cascades.Value(true)
		if ix.AggregateField != "" {
			input, _ = r.Get(ix.AggregateField)
		}
		value, err := cascades.EncodeTuple(cascades.Tuple{input})
		if err != nil {
			return err
		}
		if err := tx.Set(key, value); err != nil {
			return err
		}
	}
	return rs.refreshAggregates(tx, old, r)
}

// refreshAggregates recomputes the aggregate groups touched by replacing
// old with r. Either may be nil.
func (rs *RecordStore) refreshAggregates(tx Tx, old, r *cascades.Record) error {
	recordType := ""
	switch {
	case r != nil:
		recordType = r.Type
	case old != nil:
		recordType = old.Type
	}
	for _, ix := range rs.md.IndexesOn(recordType) {
		if ix.Kind != metadata.AggregateIndex {
			continue
		}
		var groups []cascades.Tuple
		if r != nil {
			groups = append(groups, fieldValues(r, ix.Fields))
		}
		if old != nil {
			g := fieldValues(old, ix.Fields)
			if len(groups) == 0 || !groups[0].Equal(g) {
				groups = append(groups, g)
			}
		}
		for _, g := range groups {
			if err := rs.refreshGroup(tx, ix, g); err != nil {
				return errors.Wrapf(err, "refreshing %s%s", ix.Name, g)
			}
		}
	}
	return nil
}

func (rs *RecordStore) refreshGroup(tx Tx, ix *metadata.Index, group cascades.Tuple) error {
	prefix, err := subspaceKey(memberSpace, ix.Name, group)
	if err != nil {
		return err
	}
	it, err := tx.Scan(prefix, cascades.PrefixEnd(prefix), false)
	if err != nil {
		return err
	}
	acc := ix.Aggregate(func(string) query.Value { return nil }).NewAccumulator()
	members := 0
	for it.Next() {
		value, err := it.Value()
		if err != nil {
			_ = it.Close()
			return err
		}
		t, err := cascades.DecodeTuple(value)
		if err != nil {
			_ = it.Close()
			return err
		}
		if err := acc.Accumulate(t.Get(0)); err != nil {
			_ = it.Close()
			return err
		}
		members++
	}
	if err := it.Close(); err != nil {
		return err
	}

	key, err := subspaceKey(aggregateSpace, ix.Name, group)
	if err != nil {
		return err
	}
	if members == 0 {
		return tx.Delete(key)
	}
	value, err := cascades.EncodeTuple(cascades.Tuple{acc.Finish()})
	if err != nil {
		return err
	}
	return tx.Set(key, value)
}

// ScanOptions controls a scan.
type ScanOptions struct {
	Reverse bool

	// Continuation is the key of the last entry a previous scan returned.
	// The scan resumes after it.
	Continuation []byte
}

// ScanRecords scans the records of recordTypes in primary key order. A
// single type is scanned in its own key range; several types share the
// record subspace and are filtered.
func (rs *RecordStore) ScanRecords(recordTypes []string, opts ScanOptions) (*Scanner[*cascades.Record], error) {
	prefix := cascades.Tuple{recordSpace}
	if len(recordTypes) == 1 {
		prefix = append(prefix, recordTypes[0])
	}
	start, end, err := ScanRange(prefix, query.ScanComparisons{})
	if err != nil {
		return nil, err
	}
	wanted := make(map[string]bool, len(recordTypes))
	for _, t := range recordTypes {
		if _, err := rs.recordType(t); err != nil {
			return nil, err
		}
		wanted[t] = true
	}
	decode := func(key, value []byte) (*cascades.Record, bool, error) {
		t, err := cascades.DecodeTuple(key)
		if err != nil {
			return nil, false, err
		}
		recordType, _ := t.Get(1).(string)
		if !wanted[recordType] {
			return nil, false, nil
		}
		fields, err := decodeFields(value)
		if err != nil {
			return nil, false, err
		}
		return &cascades.Record{Type: recordType, PrimaryKey: t[2:], Fields: fields}, true, nil
	}
	return scanWith(rs.store, start, end, opts, decode)
}

// ScanIndex scans a value index over the key range sc describes.
func (rs *RecordStore) ScanIndex(ix *metadata.Index, sc query.ScanComparisons, opts ScanOptions) (*Scanner[*cascades.IndexEntry], error) {
	if ix.Kind != metadata.ValueIndex {
		return nil, errors.Newf("%s is not a value index", ix.Name)
	}
	rt, err := rs.recordType(ix.RecordType)
	if err != nil {
		return nil, err
	}
	start, end, err := ScanRange(cascades.Tuple{indexSpace, ix.Name}, sc)
	if err != nil {
		return nil, err
	}
	n := len(ix.Fields)
	decode := func(key, _ []byte) (*cascades.IndexEntry, bool, error) {
		t, err := cascades.DecodeTuple(key)
		if err != nil {
			return nil, false, err
		}
		if len(t) != 2+n+len(rt.PrimaryKey) {
			return nil, false, errors.Newf("malformed %s entry %s", ix.Name, t)
		}
		return &cascades.IndexEntry{
			Index:            ix.Name,
			KeyFields:        ix.Fields,
			Key:              t[2 : 2+n],
			PrimaryKeyFields: rt.PrimaryKey,
			PrimaryKey:       t[2+n:],
		}, true, nil
	}
	return scanWith(rs.store, start, end, opts, decode)
}

// ScanAggregateIndex scans an aggregate index. Rows are the grouping values
// followed by the aggregate.
func (rs *RecordStore) ScanAggregateIndex(ix *metadata.Index, sc query.ScanComparisons, opts ScanOptions) (*Scanner[cascades.Tuple], error) {
	if ix.Kind != metadata.AggregateIndex {
		return nil, errors.Newf("%s is not an aggregate index", ix.Name)
	}
	start, end, err := ScanRange(cascades.Tuple{aggregateSpace, ix.Name}, sc)
	if err != nil {
		return nil, err
	}
	decode := func(key, value []byte) (cascades.Tuple, bool, error) {
		t, err := cascades.DecodeTuple(key)
		if err != nil {
			return nil, false, err
		}
		agg, err := cascades.DecodeTuple(value)
		if err != nil {
			return nil, false, err
		}
		return t[2:].Concat(agg), true, nil
	}
	return scanWith(rs.store, start, end, opts, decode)
}

func scanWith[T any](s Store, start, end []byte, opts ScanOptions, decode func(key, value []byte) (T, bool, error)) (*Scanner[T], error) {
	start, end = resume(start, end, opts.Continuation, opts.Reverse)
	it, err := s.Scan(start, end, opts.Reverse)
	if err != nil {
		return nil, err
	}
	return &Scanner[T]{it: it, decode: decode}, nil
}

// Statistics counts the records of every type.
func (rs *RecordStore) Statistics() (planner.TableStatistics, error) {
	stats := planner.TableStatistics{Records: make(map[string]float64)}
	for _, name := range rs.md.RecordTypeNames() {
		start, end, err := ScanRange(cascades.Tuple{recordSpace, name}, query.ScanComparisons{})
		if err != nil {
			return stats, err
		}
		it, err := rs.store.Scan(start, end, false)
		if err != nil {
			return stats, err
		}
		n := 0
		for it.Next() {
			n++
		}
		if err := it.Close(); err != nil {
			return stats, err
		}
		stats.Records[name] = float64(n)
	}
	return stats, nil
}

// Scanner decodes the entries of a key range.
type Scanner[T any] struct {
	it     Iterator
	decode func(key, value []byte) (T, bool, error)
	item   T
	key    []byte
	err    error
}

// Next advances to the next entry. It returns false at the end of the range
// or on error.
func (s *Scanner[T]) Next() bool {
	if s.err != nil {
		return false
	}
	for s.it.Next() {
		key := s.it.Key()
		value, err := s.it.Value()
		if err != nil {
			s.err = err
			return false
		}
		item, ok, err := s.decode(key, value)
		if err != nil {
			s.err = errors.Wrapf(err, "decoding key %x", key)
			return false
		}
		if ok {
			s.item, s.key = item, key
			return true
		}
	}
	return false
}

// Item returns the current entry.
func (s *Scanner[T]) Item() T { return s.item }

// Key returns the key of the current entry, the continuation to resume
// after it.
func (s *Scanner[T]) Key() []byte { return s.key }

// Err returns the error that stopped the scan.
func (s *Scanner[T]) Err() error { return s.err }

func (s *Scanner[T]) Close() error { return s.it.Close() }
