package searchrunner

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplicerIdentityWithZero(t *testing.T) {
	s := NewBitLabelSplicer()
	assert.Equal(t, uint64(0x13), s.Splice(0x13, 0))
	assert.Equal(t, uint64(0x13), s.Splice(0, 0x13))
}

func TestSplicerComposesDistinctRoutes(t *testing.T) {
	s := NewBitLabelSplicer()
	got := s.Splice(0x13, 0x15)
	assert.NotEqual(t, SplicerSentinel, got)
	// Splicing is not commutative: the outer route's hops land above the
	// inner route's, so swapping the arguments must not yield the same path.
	assert.NotEqual(t, got, s.Splice(0x15, 0x13))
}

func TestSplicerSentinelOnOverflow(t *testing.T) {
	s := NewBitLabelSplicer()
	// Two routes that each use nearly all 64 bits cannot be combined.
	inner := uint64(1)<<63 | 1
	outer := uint64(1)<<62 | 1
	assert.Equal(t, SplicerSentinel, s.Splice(inner, outer))
}
