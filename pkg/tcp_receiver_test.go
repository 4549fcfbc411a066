package protocol

import (
	"math"
	"testing"
)

func checkAckNo(t *testing.T, r *TCPReceiver, want SeqNum) {
	t.Helper()
	got, ok := r.AckNo()
	if !ok {
		t.Fatalf("AckNo not known, want %d", want)
	}
	if got != want {
		t.Fatalf("AckNo = %d, want %d", got, want)
	}
}

func TestReceiverListen(t *testing.T) {
	r := NewTCPReceiver(100)
	r.SegmentReceived(TCPSegment{SeqNo: 5, Payload: []byte("early")})
	if _, ok := r.AckNo(); ok {
		t.Error("AckNo known before SYN")
	}
	if r.State() != ReceiverListen {
		t.Errorf("state = %v, want LISTEN", r.State())
	}
	if r.WindowSize() != 100 {
		t.Errorf("WindowSize = %d, want 100", r.WindowSize())
	}
	if r.StreamOut().BytesWritten() != 0 {
		t.Error("accepted data before SYN")
	}
}

func TestReceiverSynThenData(t *testing.T) {
	const isn = SeqNum(12345)
	const capacity = 4000
	r := NewTCPReceiver(capacity)

	r.SegmentReceived(TCPSegment{SeqNo: isn, Syn: true})
	checkAckNo(t, r, isn+1)
	if r.State() != ReceiverSynReceived {
		t.Fatalf("state = %v, want SYN_RECEIVED", r.State())
	}

	r.SegmentReceived(TCPSegment{SeqNo: isn + 1, Payload: []byte("0123456789")})
	checkAckNo(t, r, isn+11)
	// Unread bytes occupy the window until the application reads them.
	if r.WindowSize() != capacity-10 {
		t.Errorf("WindowSize = %d, want %d", r.WindowSize(), capacity-10)
	}
	if got := string(r.StreamOut().Read(10)); got != "0123456789" {
		t.Errorf("read %q", got)
	}
	if r.WindowSize() != capacity {
		t.Errorf("WindowSize after read = %d, want %d", r.WindowSize(), capacity)
	}
}

func TestReceiverReordering(t *testing.T) {
	const isn = SeqNum(0)
	r := NewTCPReceiver(100)
	r.SegmentReceived(TCPSegment{SeqNo: isn, Syn: true})
	r.SegmentReceived(TCPSegment{SeqNo: isn + 3, Payload: []byte("cd")})
	checkAckNo(t, r, isn+1)
	if r.UnassembledBytes() != 2 {
		t.Errorf("UnassembledBytes = %d, want 2", r.UnassembledBytes())
	}
	r.SegmentReceived(TCPSegment{SeqNo: isn + 1, Payload: []byte("ab")})
	checkAckNo(t, r, isn+5)
	if got := string(r.StreamOut().Read(4)); got != "abcd" {
		t.Errorf("read %q, want %q", got, "abcd")
	}
}

func TestReceiverFin(t *testing.T) {
	const isn = SeqNum(77)
	r := NewTCPReceiver(100)
	r.SegmentReceived(TCPSegment{SeqNo: isn, Syn: true})
	r.SegmentReceived(TCPSegment{SeqNo: isn + 1, Payload: []byte("ab"), Fin: true})
	// SYN + 2 bytes + FIN
	checkAckNo(t, r, isn+4)
	if r.State() != ReceiverFinReceived {
		t.Errorf("state = %v, want FIN_RECEIVED", r.State())
	}
	if !r.StreamOut().InputEnded() {
		t.Error("stream should have ended")
	}

	// Everything after the FIN is ignored.
	r.SegmentReceived(TCPSegment{SeqNo: isn + 4, Payload: []byte("late")})
	checkAckNo(t, r, isn+4)
}

func TestReceiverFinBeforeGapFilled(t *testing.T) {
	const isn = SeqNum(1000)
	r := NewTCPReceiver(100)
	r.SegmentReceived(TCPSegment{SeqNo: isn, Syn: true})
	r.SegmentReceived(TCPSegment{SeqNo: isn + 3, Payload: []byte("c"), Fin: true})
	checkAckNo(t, r, isn+1)
	if r.State() != ReceiverSynReceived {
		t.Fatalf("state = %v before the gap was filled", r.State())
	}
	r.SegmentReceived(TCPSegment{SeqNo: isn + 1, Payload: []byte("ab")})
	checkAckNo(t, r, isn+5)
	if r.State() != ReceiverFinReceived {
		t.Errorf("state = %v, want FIN_RECEIVED", r.State())
	}
}

func TestReceiverSynCarriesData(t *testing.T) {
	const isn = SeqNum(9)
	r := NewTCPReceiver(100)
	r.SegmentReceived(TCPSegment{SeqNo: isn, Syn: true, Fin: true, Payload: []byte("x")})
	checkAckNo(t, r, isn+3)
	if got := string(r.StreamOut().Read(1)); got != "x" {
		t.Errorf("read %q, want %q", got, "x")
	}
}

func TestReceiverIgnoresSeqnoOfSyn(t *testing.T) {
	const isn = SeqNum(500)
	r := NewTCPReceiver(100)
	r.SegmentReceived(TCPSegment{SeqNo: isn, Syn: true})
	r.SegmentReceived(TCPSegment{SeqNo: isn, Payload: []byte("zz")})
	checkAckNo(t, r, isn+1)
	if r.StreamOut().BytesWritten() != 0 || r.UnassembledBytes() != 0 {
		t.Error("payload at the SYN's sequence number was accepted")
	}
}

func TestReceiverIsnWraps(t *testing.T) {
	const isn = SeqNum(math.MaxUint32)
	r := NewTCPReceiver(100)
	r.SegmentReceived(TCPSegment{SeqNo: isn, Syn: true})
	checkAckNo(t, r, 0)
	r.SegmentReceived(TCPSegment{SeqNo: 0, Payload: []byte("wrap")})
	checkAckNo(t, r, 4)
}
