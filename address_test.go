package searchrunner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mkTarget(b byte) Target {
	var t Target
	t[0] = 0xfc
	t[TargetSize-1] = b
	return t
}

func TestClosest(t *testing.T) {
	target := mkTarget(0x00)
	near := mkTarget(0x01)
	far := mkTarget(0xff)

	assert.Equal(t, -1, Closest(target, near, far))
	assert.Equal(t, 1, Closest(target, far, near))
	assert.Equal(t, 0, Closest(target, near, near))
}

func TestClosestIsAntisymmetric(t *testing.T) {
	target := mkTarget(0x10)
	a := mkTarget(0x20)
	b := mkTarget(0x30)
	require.Equal(t, -Closest(target, a, b), Closest(target, b, a))
}

func TestValidAddress(t *testing.T) {
	assert.True(t, ValidAddress(mkTarget(0x01)))
	var garbage Target
	garbage[0] = 0x01
	assert.False(t, ValidAddress(garbage))
}

func TestPrefixDoesNotForceValidity(t *testing.T) {
	var valid [KeySize]byte
	valid[0] = 0xfc
	assert.True(t, ValidAddress(Prefix(valid)))

	var invalid [KeySize]byte
	invalid[0] = 0x01
	assert.False(t, ValidAddress(Prefix(invalid)))
}

func TestAddressIsZero(t *testing.T) {
	assert.True(t, Address{}.IsZero())
	a := Address{Version: 1}
	assert.False(t, a.IsZero())
}

func TestSameKey(t *testing.T) {
	var k [KeySize]byte
	k[0] = 1
	a := Address{Key: k, Path: 1}
	b := Address{Key: k, Path: 2}
	assert.True(t, a.SameKey(b))

	k2 := k
	k2[1] = 1
	c := Address{Key: k2}
	assert.False(t, a.SameKey(c))
}
