package protocol

// Checksum returns the sum of all payload bytes modulo 256. It is the
// per-chunk integrity check carried in every DATA packet.
func Checksum(data []byte) byte {
	var sum byte
	for _, b := range data {
		sum += b
	}
	return sum
}
