package kfmt

import "io"

// ringBufferSize defines size of the ring buffer that buffers early Printf
// output. Its default size is selected so it can buffer the contents of a
// standard 80*25 text-mode console. The ring buffer size must always be a
// power of 2.
const ringBufferSize = 2048

// ringBuffer captures the output of Printf before an output sink is attached.
// When full, the oldest bytes are overwritten.
type ringBuffer struct {
	buffer         [ringBufferSize]byte
	rIndex, wIndex int
}

// Write writes len(p) bytes from p to the ringBuffer.
func (rb *ringBuffer) Write(p []byte) (int, error) {
	for _, b := range p {
		rb.buffer[rb.wIndex] = b
		rb.wIndex = (rb.wIndex + 1) & (ringBufferSize - 1)
		if rb.rIndex == rb.wIndex {
			rb.rIndex = (rb.rIndex + 1) & (ringBufferSize - 1)
		}
	}

	return len(p), nil
}

// Read reads up to len(p) bytes into p. It returns the number of bytes read (0
// <= n <= len(p)) and io.EOF once the buffer is drained.
func (rb *ringBuffer) Read(p []byte) (int, error) {
	chunk := rb.chunk()
	if len(chunk) == 0 {
		return 0, io.EOF
	}

	n := copy(p, chunk)
	rb.advance(n)
	return n, nil
}

// WriteTo drains the buffer into w without an intermediate copy.
func (rb *ringBuffer) WriteTo(w io.Writer) (int64, error) {
	var total int64
	for chunk := rb.chunk(); len(chunk) != 0; chunk = rb.chunk() {
		n, err := w.Write(chunk)
		rb.advance(n)
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// chunk returns the longest contiguous run of unread bytes.
func (rb *ringBuffer) chunk() []byte {
	switch {
	case rb.rIndex < rb.wIndex:
		return rb.buffer[rb.rIndex:rb.wIndex]
	case rb.rIndex > rb.wIndex:
		return rb.buffer[rb.rIndex:]
	default:
		return nil
	}
}

func (rb *ringBuffer) advance(n int) {
	rb.rIndex = (rb.rIndex + n) & (ringBufferSize - 1)
}
