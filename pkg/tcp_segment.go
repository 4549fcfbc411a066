package protocol

// TCPSegment is the transport-level view of a segment: header fields the
// core reads or writes plus the payload. Encoding it on the wire is left to
// the caller.
type TCPSegment struct {
	SeqNo SeqNum
	AckNo SeqNum

	Syn bool
	Fin bool
	Ack bool
	Rst bool

	// Window is the advertised receive window in bytes. It is not limited to
	// 16 bits here; the wire encoder decides how to fit it.
	Window uint64

	Payload []byte
}

// LengthInSequenceSpace returns how many sequence numbers the segment
// occupies: one for each of SYN and FIN plus the payload length.
func (seg TCPSegment) LengthInSequenceSpace() uint64 {
	n := uint64(len(seg.Payload))
	if seg.Syn {
		n++
	}
	if seg.Fin {
		n++
	}
	return n
}

// SegmentQueue is a FIFO of segments waiting to be handed to the network.
type SegmentQueue struct {
	segments []TCPSegment
}

// Push appends seg to the back of the queue.
func (q *SegmentQueue) Push(seg TCPSegment) {
	q.segments = append(q.segments, seg)
}

// Pop removes and returns the segment at the front of the queue.
func (q *SegmentQueue) Pop() (TCPSegment, bool) {
	if len(q.segments) == 0 {
		return TCPSegment{}, false
	}
	seg := q.segments[0]
	q.segments[0] = TCPSegment{}
	q.segments = q.segments[1:]
	return seg, true
}

// Front returns a pointer to the segment at the front of the queue, or nil.
func (q *SegmentQueue) Front() *TCPSegment {
	if len(q.segments) == 0 {
		return nil
	}
	return &q.segments[0]
}

// Len returns the number of queued segments.
func (q *SegmentQueue) Len() int { return len(q.segments) }

// Empty reports whether the queue holds no segments.
func (q *SegmentQueue) Empty() bool { return len(q.segments) == 0 }

// Drain removes and returns every queued segment in order.
func (q *SegmentQueue) Drain() []TCPSegment {
	segs := q.segments
	q.segments = nil
	return segs
}
