package cursor

import (
	"github.com/cockroachdb/errors"
)

// tokenAlphabet is a base85 alphabet in ascending byte order, so tokens of
// equal length sort like the continuations they encode.
const tokenAlphabet = "!$%&()+,-./" +
	"0123456789:;<=>@" +
	"ABCDEFGHIJKLMNOPQRSTUVWXYZ[]_`" +
	"abcdefghijklmnopqrstuvwxyz{}"

// tokenDigits maps a character to its digit plus one; zero marks a
// character outside the alphabet.
var tokenDigits [256]byte

func init() {
	for i := 0; i < len(tokenAlphabet); i++ {
		tokenDigits[tokenAlphabet[i]] = byte(i + 1)
	}
}

// ErrBadToken is returned for text that is not a continuation token.
var ErrBadToken = errors.New("malformed continuation token")

// Token returns c as printable text. Start is the empty token.
func (c Continuation) Token() (string, error) {
	b, err := c.Bytes()
	if err != nil {
		return "", err
	}
	out := make([]byte, 0, (len(b)+3)/4*5)
	for len(b) > 0 {
		var group [4]byte
		n := copy(group[:], b)
		b = b[n:]
		v := uint32(group[0])<<24 | uint32(group[1])<<16 | uint32(group[2])<<8 | uint32(group[3])
		var digits [5]byte
		for i := 4; i >= 0; i-- {
			digits[i] = tokenAlphabet[v%85]
			v /= 85
		}
		// a partial group of n bytes needs only n+1 digits
		out = append(out, digits[:n+1]...)
	}
	return string(out), nil
}

// ParseToken parses text returned by Token.
func ParseToken(s string) (Continuation, error) {
	if s == "" {
		return Start(), nil
	}
	if len(s)%5 == 1 {
		return Continuation{}, errors.Wrapf(ErrBadToken, "length %d", len(s))
	}
	out := make([]byte, 0, len(s)/5*4+3)
	for i := 0; i < len(s); i += 5 {
		end := i + 5
		if end > len(s) {
			end = len(s)
		}
		var v uint64
		for j := i; j < i+5; j++ {
			d := byte(84)
			if j < end {
				if tokenDigits[s[j]] == 0 {
					return Continuation{}, errors.Wrapf(ErrBadToken, "character %q at %d", s[j], j)
				}
				d = tokenDigits[s[j]] - 1
			}
			v = v*85 + uint64(d)
		}
		if v > 0xffffffff {
			return Continuation{}, errors.Wrapf(ErrBadToken, "group at %d overflows", i)
		}
		group := [4]byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
		out = append(out, group[:end-i-1]...)
	}
	return FromBytes(out), nil
}
