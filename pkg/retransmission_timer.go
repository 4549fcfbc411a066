package protocol

import (
	"tcp-sponge/priorityQueue"
)

// RetransmissionTimer owns the sender's unacknowledged segments and the single
// retransmission timer that guards them.
//
// Segments are keyed by the absolute sequence number that acknowledges them
// in full. The timer only runs while at least one segment is outstanding.
type RetransmissionTimer struct {
	inFlight       priorityQueue.PriorityQueue[TCPSegment]
	bytesInFlight  uint64
	initialTimeout uint64
	timeout        uint64
	elapsed        uint64
	retransmits    uint
}

// NewRetransmissionTimer returns a timer whose timeout starts at
// initialTimeout milliseconds. It panics if initialTimeout is zero.
func NewRetransmissionTimer(initialTimeout uint64) *RetransmissionTimer {
	if initialTimeout == 0 {
		panic("protocol: retransmission timeout must be positive")
	}
	return &RetransmissionTimer{
		initialTimeout: initialTimeout,
		timeout:        initialTimeout,
	}
}

// Start begins tracking seg until an ack of at least key arrives.
func (t *RetransmissionTimer) Start(key uint64, seg TCPSegment) {
	if t.inFlight.Len() == 0 {
		t.elapsed = 0
	}
	length := seg.LengthInSequenceSpace()
	t.inFlight.Insert(key, length, seg)
	t.bytesInFlight += length
}

// Stop retires every tracked segment whose key is <= ackKey. If ackKey
// retires nothing, Stop is a no-op; otherwise the timer restarts from the
// initial timeout and the retransmission count is cleared.
func (t *RetransmissionTimer) Stop(ackKey uint64) {
	retired := t.inFlight.PopThrough(ackKey)
	if len(retired) == 0 {
		return
	}
	for _, f := range retired {
		t.bytesInFlight -= f.Length
	}
	t.elapsed = 0
	t.retransmits = 0
	t.timeout = t.initialTimeout
}

// Tick advances the timer by ms milliseconds. On expiry the oldest
// outstanding segment is pushed onto out. The timeout doubles on expiry
// unless the peer's last advertised window was zero.
func (t *RetransmissionTimer) Tick(ms uint64, out *SegmentQueue, windowNonZero bool) {
	oldest := t.inFlight.Peek()
	if oldest == nil {
		return
	}
	t.elapsed += ms
	if t.elapsed < t.timeout {
		return
	}
	out.Push(oldest.Segment)
	t.elapsed = 0
	t.retransmits++
	if windowNonZero {
		t.timeout *= 2
	}
}

// BytesInFlight returns the sequence space occupied by tracked segments.
func (t *RetransmissionTimer) BytesInFlight() uint64 { return t.bytesInFlight }

// ConsecutiveRetransmissions returns the number of expiries since the last
// ack that retired a segment.
func (t *RetransmissionTimer) ConsecutiveRetransmissions() uint { return t.retransmits }

// Timeout returns the current retransmission timeout in milliseconds.
func (t *RetransmissionTimer) Timeout() uint64 { return t.timeout }

// Outstanding reports whether any segment is awaiting acknowledgment.
func (t *RetransmissionTimer) Outstanding() bool { return t.inFlight.Len() > 0 }
