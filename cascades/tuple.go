package cascades

import (
	"bytes"
	"encoding/binary"
	"math"
	"time"

	"github.com/cockroachdb/errors"
)

// Type codes of the order-preserving tuple encoding. Byte-wise comparison of
// two encoded tuples agrees with CompareTuples for values of the same type.
const (
	codeNil    byte = 0x00
	codeBytes  byte = 0x01
	codeString byte = 0x02
	codeNested byte = 0x05
	codeInt    byte = 0x14
	codeFloat  byte = 0x21
	codeFalse  byte = 0x26
	codeTrue   byte = 0x27
	codeTime   byte = 0x33

	escapeByte byte = 0xff
)

// typeCode returns the encoding code of a value. It doubles as the ordering
// between values of unrelated types.
func typeCode(v Value) byte {
	switch val := v.(type) {
	case nil:
		return codeNil
	case []byte:
		return codeBytes
	case string:
		return codeString
	case Tuple:
		return codeNested
	case int, int64:
		return codeInt
	case float64:
		return codeFloat
	case bool:
		if val {
			return codeTrue
		}
		return codeFalse
	case time.Time:
		return codeTime
	default:
		return 0xfe
	}
}

// EncodeTuple encodes a tuple into bytes whose lexicographic order matches
// the tuple order.
func EncodeTuple(t Tuple) ([]byte, error) {
	var buf bytes.Buffer
	for _, v := range t {
		if err := encodeValue(&buf, v, false); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// MustEncodeTuple is EncodeTuple for tuples known to hold encodable values.
func MustEncodeTuple(t Tuple) []byte {
	b, err := EncodeTuple(t)
	if err != nil {
		panic(err)
	}
	return b
}

func encodeValue(buf *bytes.Buffer, v Value, nested bool) error {
	switch val := v.(type) {
	case nil:
		buf.WriteByte(codeNil)
		if nested {
			buf.WriteByte(escapeByte)
		}
	case []byte:
		buf.WriteByte(codeBytes)
		writeEscaped(buf, val)
	case string:
		buf.WriteByte(codeString)
		writeEscaped(buf, []byte(val))
	case Tuple:
		buf.WriteByte(codeNested)
		for _, child := range val {
			if err := encodeValue(buf, child, true); err != nil {
				return err
			}
		}
		buf.WriteByte(0x00)
	case int:
		writeInt(buf, int64(val))
	case int64:
		writeInt(buf, val)
	case float64:
		buf.WriteByte(codeFloat)
		bits := math.Float64bits(val)
		if bits&(1<<63) != 0 {
			bits = ^bits
		} else {
			bits |= 1 << 63
		}
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], bits)
		buf.Write(b[:])
	case bool:
		if val {
			buf.WriteByte(codeTrue)
		} else {
			buf.WriteByte(codeFalse)
		}
	case time.Time:
		buf.WriteByte(codeTime)
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], uint64(val.UnixNano())^(1<<63))
		buf.Write(b[:])
	default:
		return errors.Wrapf(ErrUnsupported, "cannot encode value of type %T", v)
	}
	return nil
}

func writeInt(buf *bytes.Buffer, v int64) {
	buf.WriteByte(codeInt)
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(v)^(1<<63))
	buf.Write(b[:])
}

// writeEscaped writes b with every 0x00 escaped as 0x00 0xff, followed by a
// 0x00 terminator.
func writeEscaped(buf *bytes.Buffer, b []byte) {
	for _, c := range b {
		buf.WriteByte(c)
		if c == 0x00 {
			buf.WriteByte(escapeByte)
		}
	}
	buf.WriteByte(0x00)
}

// DecodeTuple decodes bytes produced by EncodeTuple.
func DecodeTuple(b []byte) (Tuple, error) {
	var out Tuple
	for len(b) > 0 {
		v, rest, err := decodeValue(b, false)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
		b = rest
	}
	return out, nil
}

func decodeValue(b []byte, nested bool) (Value, []byte, error) {
	code := b[0]
	b = b[1:]
	switch code {
	case codeNil:
		if nested {
			if len(b) == 0 || b[0] != escapeByte {
				return nil, nil, errors.New("malformed nested nil")
			}
			b = b[1:]
		}
		return nil, b, nil
	case codeBytes, codeString:
		raw, rest, err := readEscaped(b)
		if err != nil {
			return nil, nil, err
		}
		if code == codeString {
			return string(raw), rest, nil
		}
		return raw, rest, nil
	case codeNested:
		var t Tuple
		for {
			if len(b) == 0 {
				return nil, nil, errors.New("unterminated nested tuple")
			}
			if b[0] == 0x00 && (len(b) == 1 || b[1] != escapeByte) {
				return t, b[1:], nil
			}
			v, rest, err := decodeValue(b, true)
			if err != nil {
				return nil, nil, err
			}
			t = append(t, v)
			b = rest
		}
	case codeInt, codeTime:
		if len(b) < 8 {
			return nil, nil, errors.Newf("truncated value with code 0x%02x", code)
		}
		n := int64(binary.BigEndian.Uint64(b[:8]) ^ (1 << 63))
		if code == codeTime {
			return time.Unix(0, n).UTC(), b[8:], nil
		}
		return n, b[8:], nil
	case codeFloat:
		if len(b) < 8 {
			return nil, nil, errors.New("truncated float")
		}
		bits := binary.BigEndian.Uint64(b[:8])
		if bits&(1<<63) != 0 {
			bits &^= 1 << 63
		} else {
			bits = ^bits
		}
		return math.Float64frombits(bits), b[8:], nil
	case codeFalse:
		return false, b, nil
	case codeTrue:
		return true, b, nil
	default:
		return nil, nil, errors.Newf("unknown type code 0x%02x", code)
	}
}

func readEscaped(b []byte) ([]byte, []byte, error) {
	var out []byte
	for i := 0; i < len(b); i++ {
		if b[i] != 0x00 {
			out = append(out, b[i])
			continue
		}
		if i+1 < len(b) && b[i+1] == escapeByte {
			out = append(out, 0x00)
			i++
			continue
		}
		if out == nil {
			out = []byte{}
		}
		return out, b[i+1:], nil
	}
	return nil, nil, errors.New("unterminated byte string")
}

// PrefixEnd returns the smallest key greater than every key with the given
// prefix. It returns nil when no such key exists.
func PrefixEnd(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] != 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}

// KeyAfter returns the smallest key strictly greater than key.
func KeyAfter(key []byte) []byte {
	out := make([]byte, len(key)+1)
	copy(out, key)
	return out
}
