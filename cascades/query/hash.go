package query

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

// hashOf combines a tag with child hashes. Hashes never depend on
// correlation names, so expressions equal modulo an alias map hash equally.
func hashOf(tag string, children ...uint64) uint64 {
	d := xxhash.New()
	_, _ = d.WriteString(tag)
	var b [8]byte
	for _, c := range children {
		binary.LittleEndian.PutUint64(b[:], c)
		_, _ = d.Write(b[:])
	}
	return d.Sum64()
}

// HashValues hashes a list of values in order.
func HashValues(tag string, values []Value) uint64 {
	hashes := make([]uint64, len(values))
	for i, v := range values {
		hashes[i] = v.SemanticHash()
	}
	return hashOf(tag, hashes...)
}

// HashPredicates hashes a list of predicates in order.
func HashPredicates(tag string, preds []Predicate) uint64 {
	hashes := make([]uint64, len(preds))
	for i, p := range preds {
		hashes[i] = p.SemanticHash()
	}
	return hashOf(tag, hashes...)
}

// HashString hashes a plain string.
func HashString(s string) uint64 {
	return xxhash.Sum64String(s)
}
