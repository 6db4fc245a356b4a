package sx126x

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/loradrop/loradrop/transport"
)

func TestAppendAndParseFrame(t *testing.T) {
	require := require.New(t)

	frame := appendHeader(nil, 0x0102, 0x0A0B, 0x12)
	frame = append(frame, []byte{0xDE, 0xAD}...)

	require.Equal([]byte{0x01, 0x02, 0x12, 0x0A, 0x0B, 0x12, 0xDE, 0xAD}, frame)

	dest, src, body, err := parseFrame(frame)
	require.NoError(err)
	require.Equal(uint16(0x0102), dest)
	require.Equal(uint16(0x0A0B), src)
	require.Equal([]byte{0xDE, 0xAD}, body)
}

func TestParseFrameEmptyBody(t *testing.T) {
	require := require.New(t)

	dest, src, body, err := parseFrame(appendHeader(nil, 7, 9, 0))
	require.NoError(err)
	require.Equal(uint16(7), dest)
	require.Equal(uint16(9), src)
	require.Empty(body)
}

func TestParseFrameTooShort(t *testing.T) {
	_, _, _, err := parseFrame([]byte{1, 2, 3})
	require.ErrorIs(t, err, transport.ErrTransport)
}
