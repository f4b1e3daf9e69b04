package comptroller

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

func TestParseMantissa(t *testing.T) {
	cases := []struct {
		in   string
		want *uint256.Int
	}{
		{"0.5", frac(1, 2)},
		{"1.08", frac(108, 100)},
		{"10", e18(10)},
		{".9", frac(9, 10)},
		{"0", u(0)},
		{"0.000000000000000001", u(1)},
	}
	for _, tc := range cases {
		got, err := ParseMantissa(tc.in)
		require.NoError(t, err, tc.in)
		require.Equal(t, tc.want.Dec(), got.Dec(), tc.in)
	}

	for _, bad := range []string{"", "abc", "1.0000000000000000001", "-1", "1e18"} {
		_, err := ParseMantissa(bad)
		require.ErrorIs(t, err, ErrInvalidInput, bad)
	}
}

func TestExpOperationsTruncate(t *testing.T) {
	// 1/3 * 3 = 0.999... after truncation.
	third := frac(1, 3)
	product, err := mulExp(NewExp(third), NewExp(e18(3)))
	require.NoError(t, err)
	require.Equal(t, "999999999999999999", product.Mantissa.Dec())

	ratio, err := divExp(NewExp(e18(2)), NewExp(e18(3)))
	require.NoError(t, err)
	require.Equal(t, "666666666666666666", ratio.Mantissa.Dec())

	truncated, err := mulScalarTruncate(NewExp(frac(1, 2)), u(3))
	require.NoError(t, err)
	require.Equal(t, uint64(1), truncated.Uint64())
}

func TestExpOverflowAndDivisionByZero(t *testing.T) {
	max := new(uint256.Int).SetAllOne()
	_, err := mul(max, u(2))
	require.ErrorIs(t, err, ErrMath)

	_, err = add(max, u(1))
	require.ErrorIs(t, err, ErrMath)

	_, err = sub(u(1), u(2))
	require.ErrorIs(t, err, ErrMath)

	_, err = divExp(NewExp(e18(1)), NewExp(nil))
	require.ErrorIs(t, err, ErrMath)

	ratio, err := fractionScaled(u(10), u(0), RewardScale)
	require.NoError(t, err)
	require.True(t, ratio.IsZero())
}

func TestIndexAndTimestampBounds(t *testing.T) {
	_, err := safe224(new(uint256.Int).Lsh(u(1), 224))
	require.ErrorIs(t, err, ErrMath)

	ok, err := safe224(new(uint256.Int).Set(maxIndex))
	require.NoError(t, err)
	require.True(t, ok.Eq(maxIndex))

	_, err = safe32(1 << 32)
	require.ErrorIs(t, err, ErrMath)

	ts, err := safe32(1<<32 - 1)
	require.NoError(t, err)
	require.Equal(t, uint32(1<<32-1), ts)
}

func TestCodeErrConversion(t *testing.T) {
	require.NoError(t, NoError.Err())
	err := TooMuchRepay.Err()
	require.ErrorIs(t, err, ErrPolicyDenied)
	code, ok := CodeOf(err)
	require.True(t, ok)
	require.Equal(t, TooMuchRepay, code)
	require.Equal(t, "TOO_MUCH_REPAY", code.String())
}
