package checkpoint

import (
	"strconv"
	"strings"
)

// Token is an opaque, Event Store-defined position marker in the stream of
// committed transactions.
//
// Tokens are totally ordered, but only the Event Store that produced them
// knows how: use the Event Store comparator to order them.
type Token string

// Beginning is the Token denoting the start of the stream of transactions.
const Beginning Token = ""

// IsBeginning returns true if the Token points at the start of the stream.
func (t Token) IsBeginning() bool { return strings.TrimSpace(string(t)) == "" }

// String implements fmt.Stringer.
func (t Token) String() string { return string(t) }

// FromInt64 returns the Token representation of a sequence number,
// for Event Stores using a global sequence number as checkpoint.
func FromInt64(n int64) Token {
	return Token(strconv.FormatInt(n, 10))
}

// Int64 returns the sequence number represented by the Token.
//
// Beginning maps to zero. Tokens that are not sequence numbers
// return false.
func (t Token) Int64() (int64, bool) {
	if t.IsBeginning() {
		return 0, true
	}

	n, err := strconv.ParseInt(strings.TrimSpace(string(t)), 10, 64)
	if err != nil {
		return 0, false
	}

	return n, true
}

// CompareInt64 compares two sequence-numbered Tokens, returning a negative
// number when a < b, zero when a == b and a positive number when a > b.
//
// Beginning is equivalent to sequence number zero, and lower than any positive
// one. Tokens that cannot be parsed sort after every valid one, so that they
// are never considered reached.
func CompareInt64(a, b Token) int {
	an, aok := a.Int64()
	bn, bok := b.Int64()

	switch {
	case !aok && !bok:
		return strings.Compare(string(a), string(b))
	case !aok:
		return 1
	case !bok:
		return -1
	case an < bn:
		return -1
	case an > bn:
		return 1
	default:
		return 0
	}
}
