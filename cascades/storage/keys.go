package storage

import (
	"github.com/cockroachdb/errors"
	"github.com/wbrown/janus-cascades/cascades"
	"github.com/wbrown/janus-cascades/cascades/query"
)

// Subspaces of the record store. Every key is a tuple whose first element
// names its subspace.
const (
	recordSpace    = "r" // (r, type, pk...) -> fields
	indexSpace     = "i" // (i, index, key..., pk...) -> empty
	memberSpace    = "m" // (m, index, grouping..., pk...) -> aggregate input
	aggregateSpace = "a" // (a, index, grouping...) -> aggregate value
)

func subspaceKey(space, name string, rest ...cascades.Tuple) ([]byte, error) {
	t := cascades.Tuple{space, name}
	for _, r := range rest {
		t = t.Concat(r)
	}
	return cascades.EncodeTuple(t)
}

// ScanRange returns the key range of the entries under prefix whose next
// elements satisfy sc: the equalities pin a prefix and the inequality, if
// any, bounds the element after it.
func ScanRange(prefix cascades.Tuple, sc query.ScanComparisons) (start, end []byte, err error) {
	base := prefix.Concat(sc.Equalities)
	baseKey, err := cascades.EncodeTuple(base)
	if err != nil {
		return nil, nil, errors.Wrap(err, "encoding scan prefix")
	}
	start, end = baseKey, cascades.PrefixEnd(baseKey)
	if sc.Inequality.IsEmpty() {
		return start, end, nil
	}

	if low, inclusive, ok := sc.Inequality.Low(); ok {
		k, err := cascades.EncodeTuple(base.Concat(cascades.Tuple{low}))
		if err != nil {
			return nil, nil, errors.Wrap(err, "encoding lower bound")
		}
		if inclusive {
			start = k
		} else {
			start = cascades.PrefixEnd(k)
		}
	}
	if high, inclusive, ok := sc.Inequality.High(); ok {
		k, err := cascades.EncodeTuple(base.Concat(cascades.Tuple{high}))
		if err != nil {
			return nil, nil, errors.Wrap(err, "encoding upper bound")
		}
		if inclusive {
			end = cascades.PrefixEnd(k)
		} else {
			end = k
		}
	}
	return start, end, nil
}

// resume narrows [start, end) to the keys after continuation in scan
// direction.
func resume(start, end, continuation []byte, reverse bool) ([]byte, []byte) {
	if continuation == nil {
		return start, end
	}
	if reverse {
		if end == nil || string(continuation) < string(end) {
			end = continuation
		}
		return start, end
	}
	if next := cascades.KeyAfter(continuation); string(next) > string(start) {
		start = next
	}
	return start, end
}

func encodeFields(fields map[string]cascades.Value) ([]byte, error) {
	r := cascades.Record{Fields: fields}
	t := make(cascades.Tuple, 0, 2*len(fields))
	for _, name := range r.FieldNames() {
		t = append(t, name, fields[name])
	}
	return cascades.EncodeTuple(t)
}

func decodeFields(b []byte) (map[string]cascades.Value, error) {
	t, err := cascades.DecodeTuple(b)
	if err != nil {
		return nil, err
	}
	if len(t)%2 != 0 {
		return nil, errors.Newf("malformed record value of %d elements", len(t))
	}
	fields := make(map[string]cascades.Value, len(t)/2)
	for i := 0; i < len(t); i += 2 {
		name, ok := t[i].(string)
		if !ok {
			return nil, errors.Newf("malformed field name %v", t[i])
		}
		fields[name] = t[i+1]
	}
	return fields, nil
}
