package protocol

// ByteStream is a bounded in-memory FIFO of bytes. Bytes are written at one
// end and read from the other; at most Capacity bytes may be buffered at any
// time. Once input has ended it stays ended.
type ByteStream struct {
	buf  []byte // ring storage, len == capacity
	head int    // index of the first unread byte in buf
	size int    // number of buffered bytes

	bytesWritten uint64
	bytesRead    uint64
	inputEnded   bool
	err          bool
}

// NewByteStream returns a stream that buffers at most capacity bytes. It
// panics if capacity is zero.
func NewByteStream(capacity int) *ByteStream {
	if capacity <= 0 {
		panic("protocol: byte stream capacity must be positive")
	}
	return &ByteStream{buf: make([]byte, capacity)}
}

// Capacity returns the maximum number of bytes the stream can buffer.
func (bs *ByteStream) Capacity() int { return len(bs.buf) }

// Write copies as much of data as fits into the stream and returns the number
// of bytes accepted. Writes after EndInput are dropped.
func (bs *ByteStream) Write(data []byte) int {
	if bs.inputEnded {
		return 0
	}
	n := min(len(data), bs.RemainingCapacity())
	capacity := len(bs.buf)
	tail := (bs.head + bs.size) % capacity
	first := copy(bs.buf[tail:], data[:n])
	if first < n {
		// Wrapped past the end of the ring
		copy(bs.buf, data[first:n])
	}
	bs.size += n
	bs.bytesWritten += uint64(n)
	return n
}

// Peek returns a copy of up to n bytes from the front of the stream without
// consuming them.
func (bs *ByteStream) Peek(n int) []byte {
	n = min(n, bs.size)
	out := make([]byte, n)
	first := copy(out, bs.buf[bs.head:])
	if first < n {
		copy(out[first:], bs.buf)
	}
	return out
}

// Pop discards up to n bytes from the front of the stream.
func (bs *ByteStream) Pop(n int) {
	n = min(n, bs.size)
	bs.head = (bs.head + n) % len(bs.buf)
	bs.size -= n
	bs.bytesRead += uint64(n)
	if bs.size == 0 {
		bs.head = 0
	}
}

// Read consumes and returns up to n bytes from the front of the stream.
func (bs *ByteStream) Read(n int) []byte {
	out := bs.Peek(n)
	bs.Pop(len(out))
	return out
}

// EndInput signals that no more bytes will be written.
func (bs *ByteStream) EndInput() { bs.inputEnded = true }

// InputEnded reports whether the writer has ended the input.
func (bs *ByteStream) InputEnded() bool { return bs.inputEnded }

// BufferSize returns the number of bytes currently buffered.
func (bs *ByteStream) BufferSize() int { return bs.size }

// BufferEmpty reports whether no bytes are buffered.
func (bs *ByteStream) BufferEmpty() bool { return bs.size == 0 }

// EOF reports whether input has ended and every byte has been read.
func (bs *ByteStream) EOF() bool { return bs.inputEnded && bs.size == 0 }

// BytesWritten returns the total number of bytes ever written.
func (bs *ByteStream) BytesWritten() uint64 { return bs.bytesWritten }

// BytesRead returns the total number of bytes ever read.
func (bs *ByteStream) BytesRead() uint64 { return bs.bytesRead }

// RemainingCapacity returns how many more bytes can be written right now.
func (bs *ByteStream) RemainingCapacity() int { return len(bs.buf) - bs.size }

// SetError marks the stream as failed, e.g. after the connection was reset.
func (bs *ByteStream) SetError() { bs.err = true }

// Error reports whether the stream has failed.
func (bs *ByteStream) Error() bool { return bs.err }
