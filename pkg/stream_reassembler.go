package protocol

import (
	"github.com/google/btree"
)

// pendingByte is a single byte that arrived ahead of the contiguous prefix of
// the stream.
type pendingByte struct {
	index uint64
	value byte
}

func pendingLess(a, b pendingByte) bool { return a.index < b.index }

// StreamReassembler turns possibly overlapping, out-of-order substrings of a
// stream into an in-order ByteStream.
//
// Bytes are only retained inside the acceptable window
// [FirstUnassembled, FirstUnacceptable), so buffered output plus pending
// bytes never exceed the configured capacity.
type StreamReassembler struct {
	output   *ByteStream
	capacity uint64
	pending  *btree.BTreeG[pendingByte]

	eofIndex uint64
	hasEOF   bool
}

// NewStreamReassembler returns a reassembler whose output stream and
// pending storage share capacity bytes. It panics if capacity is zero.
func NewStreamReassembler(capacity int) *StreamReassembler {
	return &StreamReassembler{
		output:   NewByteStream(capacity),
		capacity: uint64(capacity),
		pending:  btree.NewG(32, pendingLess),
	}
}

// PushSubstring accepts data whose first byte sits at absolute stream index
// index. If eof is set, index+len(data) is the end of the stream.
func (r *StreamReassembler) PushSubstring(data []byte, index uint64, eof bool) {
	if eof {
		r.eofIndex = index + uint64(len(data))
		r.hasEOF = true
	}

	firstUnassembled := r.FirstUnassembled()
	start := max(index, firstUnassembled)
	end := min(index+uint64(len(data)), r.FirstUnacceptable())
	if r.hasEOF {
		end = min(end, r.eofIndex)
	}
	for i := start; i < end; i++ {
		b := pendingByte{index: i, value: data[i-index]}
		// First arrival wins.
		if !r.pending.Has(b) {
			r.pending.ReplaceOrInsert(b)
		}
	}

	var assembled []byte
	r.pending.AscendGreaterOrEqual(pendingByte{index: firstUnassembled}, func(b pendingByte) bool {
		if b.index != firstUnassembled+uint64(len(assembled)) {
			return false
		}
		assembled = append(assembled, b.value)
		return true
	})
	if len(assembled) > 0 {
		n := r.output.Write(assembled)
		for i := 0; i < n; i++ {
			r.pending.Delete(pendingByte{index: firstUnassembled + uint64(i)})
		}
	}

	if r.hasEOF && r.output.BytesWritten() == r.eofIndex {
		r.output.EndInput()
	}
}

// UnassembledBytes returns the number of bytes stored but not yet written to
// the output.
func (r *StreamReassembler) UnassembledBytes() int { return r.pending.Len() }

// Empty reports whether no bytes are waiting for a gap to be filled.
func (r *StreamReassembler) Empty() bool { return r.pending.Len() == 0 }

// FirstUnassembled is the absolute index of the next byte the output expects.
func (r *StreamReassembler) FirstUnassembled() uint64 { return r.output.BytesWritten() }

// FirstUnacceptable is the absolute index of the first byte that does not fit
// in the reassembler's capacity.
func (r *StreamReassembler) FirstUnacceptable() uint64 { return r.output.BytesRead() + r.capacity }

// StreamOut returns the reassembled output stream.
func (r *StreamReassembler) StreamOut() *ByteStream { return r.output }
