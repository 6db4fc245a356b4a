package transfer

// split slices data into chunks of at most size bytes. Only the last
// chunk may be shorter; empty input yields no chunks. The chunks alias
// data.
func split(data []byte, size int) [][]byte {
	if len(data) == 0 {
		return nil
	}
	chunks := make([][]byte, 0, (len(data)+size-1)/size)
	for start := 0; start < len(data); start += size {
		end := start + size
		if end > len(data) {
			end = len(data)
		}
		chunks = append(chunks, data[start:end])
	}
	return chunks
}
