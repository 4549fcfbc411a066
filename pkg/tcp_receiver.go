package protocol

// ReceiverState is the receiving half's position in the connection lifecycle.
type ReceiverState int

const (
	// LISTEN: no SYN seen yet.
	ReceiverListen ReceiverState = iota
	// SYN_RECEIVED: ISN known, stream still open.
	ReceiverSynReceived
	// FIN_RECEIVED: every byte up to and including the FIN has been assembled.
	ReceiverFinReceived
)

func (s ReceiverState) String() string {
	switch s {
	case ReceiverListen:
		return "LISTEN"
	case ReceiverSynReceived:
		return "SYN_RECEIVED"
	case ReceiverFinReceived:
		return "FIN_RECEIVED"
	}
	return "UNKNOWN"
}

// TCPReceiver consumes inbound segments, feeds their payloads to a
// StreamReassembler and computes the ackno and window to advertise.
type TCPReceiver struct {
	reassembler *StreamReassembler
	state       ReceiverState
	isn         SeqNum
}

// NewTCPReceiver returns a receiver that buffers at most capacity bytes.
func NewTCPReceiver(capacity int) *TCPReceiver {
	return &TCPReceiver{
		reassembler: NewStreamReassembler(capacity),
		state:       ReceiverListen,
	}
}

// SegmentReceived processes one inbound segment. Segments that cannot be
// placed in the stream are ignored.
func (r *TCPReceiver) SegmentReceived(seg TCPSegment) {
	switch r.state {
	case ReceiverListen:
		if !seg.Syn {
			return
		}
		r.isn = seg.SeqNo
		r.state = ReceiverSynReceived
		r.reassembler.PushSubstring(seg.Payload, 0, seg.Fin)
	case ReceiverSynReceived:
		// The SYN occupies absolute sequence number 0, so the first payload
		// byte is absolute 1 and stream index 0.
		abs := Unwrap(seg.SeqNo, r.isn, r.reassembler.FirstUnassembled()+1)
		if abs == 0 {
			return
		}
		r.reassembler.PushSubstring(seg.Payload, abs-1, seg.Fin)
	case ReceiverFinReceived:
		return
	}
	if r.reassembler.StreamOut().InputEnded() {
		r.state = ReceiverFinReceived
	}
}

// AckNo returns the next sequence number the receiver expects. ok is false
// until a SYN has been received.
func (r *TCPReceiver) AckNo() (ackno SeqNum, ok bool) {
	switch r.state {
	case ReceiverSynReceived:
		return Wrap(r.reassembler.FirstUnassembled(), r.isn) + 1, true
	case ReceiverFinReceived:
		return Wrap(r.reassembler.FirstUnassembled(), r.isn) + 2, true
	}
	return 0, false
}

// WindowSize returns the number of bytes the receiver is willing to accept
// beyond AckNo. It may exceed what a 16-bit header field can carry.
func (r *TCPReceiver) WindowSize() uint64 {
	return r.reassembler.FirstUnacceptable() - r.reassembler.FirstUnassembled()
}

// UnassembledBytes returns how many bytes are buffered out of order.
func (r *TCPReceiver) UnassembledBytes() int { return r.reassembler.UnassembledBytes() }

// StreamOut returns the in-order stream the application reads from.
func (r *TCPReceiver) StreamOut() *ByteStream { return r.reassembler.StreamOut() }

// State returns the receiver's lifecycle state.
func (r *TCPReceiver) State() ReceiverState { return r.state }
