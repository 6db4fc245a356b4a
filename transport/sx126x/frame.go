package sx126x

import (
	"encoding/binary"
	"fmt"

	"github.com/loradrop/loradrop/transport"
)

// The SX126x module in fixed transmission mode expects every outbound
// buffer to start with a 6-byte addressing header and echoes the same
// layout on receive:
//
//	dest(2 BE) | channel(1) | src(2 BE) | channel(1) | body...
//
// The channel byte is link configuration passed through opaquely; no
// behavior is built on its value.
const headerSize = 6

func appendHeader(dst []byte, dest, src uint16, channel byte) []byte {
	dst = binary.BigEndian.AppendUint16(dst, dest)
	dst = append(dst, channel)
	dst = binary.BigEndian.AppendUint16(dst, src)
	dst = append(dst, channel)
	return dst
}

// parseFrame splits a received buffer into its addressing fields and
// body. The body slice aliases raw.
func parseFrame(raw []byte) (dest, src uint16, body []byte, err error) {
	if len(raw) < headerSize {
		return 0, 0, nil, fmt.Errorf("%w: frame shorter than addressing header: %d", transport.ErrTransport, len(raw))
	}
	dest = binary.BigEndian.Uint16(raw[0:2])
	src = binary.BigEndian.Uint16(raw[3:5])
	return dest, src, raw[headerSize:], nil
}
