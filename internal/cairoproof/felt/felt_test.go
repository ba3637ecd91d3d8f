package felt

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBias(t *testing.T) {
	require.True(t, Equal(Zero(), Bias(1<<15)))
	require.True(t, Equal(One(), Bias(1<<15+1)))
	// Raw 0 is the most negative offset, -2^15.
	neg := Sub(Zero(), New(1<<15))
	require.True(t, Equal(neg, Bias(0)))
}

func TestLittleEndianRoundTrip(t *testing.T) {
	for _, v := range []uint64{0, 1, 0xffff, Modulus - 1} {
		buf := AppendLE(nil, New(v))
		require.Len(t, buf, 8)
		got, err := FromLE(buf)
		require.NoError(t, err)
		require.True(t, Equal(New(v), got))
	}
}

func TestFromLERejectsNonCanonical(t *testing.T) {
	for _, v := range []uint64{Modulus, Modulus + 1, ^uint64(0)} {
		var buf [8]byte
		for i := 0; i < 8; i++ {
			buf[i] = byte(v >> (8 * uint(i)))
		}
		_, err := FromLE(buf[:])
		require.Error(t, err)
	}
}

func TestInverse(t *testing.T) {
	for _, v := range []uint64{1, 2, 12345, Modulus - 1} {
		inv := Inverse(New(v))
		require.True(t, Equal(One(), Mul(New(v), inv)))
	}
}

func TestFieldArithmeticWraps(t *testing.T) {
	// p - 1 + 2 = 1
	got := Add(New(Modulus-1), New(2))
	require.True(t, Equal(One(), got))
	// 0 - 1 = p - 1
	got = Sub(Zero(), One())
	require.True(t, Equal(New(Modulus-1), got))
}
