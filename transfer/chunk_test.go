package transfer

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplit(t *testing.T) {
	require := require.New(t)

	require.Nil(split(nil, 200))
	require.Nil(split([]byte{}, 200))

	one := split([]byte("abc"), 200)
	require.Len(one, 1)
	require.Equal([]byte("abc"), one[0])

	exact := split(bytes.Repeat([]byte{1}, 400), 200)
	require.Len(exact, 2)
	require.Len(exact[0], 200)
	require.Len(exact[1], 200)

	short := split(bytes.Repeat([]byte{2}, 401), 200)
	require.Len(short, 3)
	require.Len(short[2], 1)
}

func TestSplitRoundTrip(t *testing.T) {
	require := require.New(t)

	for _, n := range []int{0, 1, 199, 200, 201, 999, 1000, 1001} {
		data := make([]byte, n)
		for i := range data {
			data[i] = byte(i)
		}

		var joined []byte
		for _, c := range split(data, 200) {
			joined = append(joined, c...)
		}
		require.True(bytes.Equal(data, joined), "n=%d", n)
		require.Len(joined, n)
	}
}
