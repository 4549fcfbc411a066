package protocol

import (
	"math/rand/v2"
)

// SenderState is the sending half's position in the connection lifecycle.
// States only ever move forward.
type SenderState int

const (
	// CLOSED: nothing sent yet.
	SenderClosed SenderState = iota
	// SYN_SENT: the SYN is the only outstanding data.
	SenderSynSent
	// SYN_ACKED: the SYN was acknowledged and the FIN has not been sent.
	SenderSynAcked
	// FIN_SENT: the FIN has been sent but not acknowledged.
	SenderFinSent
	// FIN_ACKED: everything, including the FIN, has been acknowledged.
	SenderFinAcked
)

func (s SenderState) String() string {
	switch s {
	case SenderClosed:
		return "CLOSED"
	case SenderSynSent:
		return "SYN_SENT"
	case SenderSynAcked:
		return "SYN_ACKED"
	case SenderFinSent:
		return "FIN_SENT"
	case SenderFinAcked:
		return "FIN_ACKED"
	}
	return "UNKNOWN"
}

// TCPSender packages bytes from an outbound stream into segments that fit
// the peer's window, and retransmits them until they are acknowledged.
type TCPSender struct {
	isn            SeqNum
	stream         *ByteStream
	timer          *RetransmissionTimer
	segmentsOut    SegmentQueue
	maxPayloadSize uint64

	nextSeqno uint64
	// windowSize is the peer's advertised window with zero replaced by one,
	// so a zero window still admits a single probe byte.
	windowSize uint64
	// lastWindow is the window exactly as the peer advertised it.
	lastWindow uint64
	elapsed    uint64
	state      SenderState
}

// NewTCPSender returns a sender that reads application bytes from stream.
// The ISN is cfg.FixedISN when set and random otherwise.
func NewTCPSender(stream *ByteStream, cfg TCPConfig) *TCPSender {
	if cfg.MaxPayloadSize <= 0 {
		panic("protocol: max payload size must be positive")
	}
	isn := SeqNum(rand.Uint32())
	if cfg.FixedISN != nil {
		isn = SeqNum(*cfg.FixedISN)
	}
	return &TCPSender{
		isn:            isn,
		stream:         stream,
		timer:          NewRetransmissionTimer(cfg.RTTimeout),
		maxPayloadSize: uint64(cfg.MaxPayloadSize),
		windowSize:     1,
		lastWindow:     1,
		state:          SenderClosed,
	}
}

// FillWindow sends as many new segments as the peer's window and the
// outbound stream allow.
func (s *TCPSender) FillWindow() {
	s.updateState()
	switch s.state {
	case SenderClosed:
		if s.nextSeqno == 0 {
			s.sendSegment(TCPSegment{Syn: true})
		}
		s.updateState()
	case SenderSynAcked:
		s.fillData()
	}
}

func (s *TCPSender) fillData() {
	for {
		inFlight := s.timer.BytesInFlight()
		if s.windowSize <= inFlight {
			return
		}
		usable := s.windowSize - inFlight
		n := min(s.maxPayloadSize, usable, uint64(s.stream.BufferSize()))

		var seg TCPSegment
		if n > 0 {
			seg.Payload = s.stream.Read(int(n))
		}
		// The FIN rides along whenever the stream is drained and one more
		// sequence number fits in the window.
		if s.stream.EOF() && n < usable {
			seg.Fin = true
		}
		if seg.LengthInSequenceSpace() == 0 {
			return
		}
		s.sendSegment(seg)
		if seg.Fin {
			s.state = SenderFinSent
			return
		}
	}
}

// AckReceived records the peer's ackno and window. Acks for sequence space
// that was never sent are ignored.
func (s *TCPSender) AckReceived(ackno SeqNum, window uint64) {
	abs := Unwrap(ackno, s.isn, s.nextSeqno)
	if abs > s.nextSeqno {
		return
	}
	s.lastWindow = window
	s.windowSize = max(window, 1)
	s.timer.Stop(abs)
	s.updateState()
}

// Tick advances time by ms milliseconds and retransmits the oldest
// outstanding segment if its timer expired.
func (s *TCPSender) Tick(ms uint64) {
	s.elapsed += ms
	s.timer.Tick(ms, &s.segmentsOut, s.lastWindow != 0)
}

// SendEmptySegment queues a segment with no payload or flags at the next
// sequence number. It is not tracked for retransmission.
func (s *TCPSender) SendEmptySegment() {
	s.segmentsOut.Push(TCPSegment{SeqNo: s.NextSeqno()})
}

func (s *TCPSender) sendSegment(seg TCPSegment) {
	seg.SeqNo = s.NextSeqno()
	s.nextSeqno += seg.LengthInSequenceSpace()
	s.segmentsOut.Push(seg)
	s.timer.Start(s.nextSeqno, seg)
}

func (s *TCPSender) updateState() {
	inFlight := s.timer.BytesInFlight()
	switch s.state {
	case SenderClosed:
		if s.nextSeqno > 0 && s.nextSeqno == inFlight {
			s.state = SenderSynSent
		}
	case SenderSynSent:
		if inFlight < s.nextSeqno {
			s.state = SenderSynAcked
		}
	case SenderFinSent:
		if inFlight == 0 {
			s.state = SenderFinAcked
		}
	}
}

// BytesInFlight returns the sequence space sent but not yet acknowledged.
func (s *TCPSender) BytesInFlight() uint64 { return s.timer.BytesInFlight() }

// ConsecutiveRetransmissions returns the number of back-to-back
// retransmissions without an intervening useful ack.
func (s *TCPSender) ConsecutiveRetransmissions() uint { return s.timer.ConsecutiveRetransmissions() }

// NextSeqnoAbsolute returns the absolute sequence number of the next byte to
// be sent.
func (s *TCPSender) NextSeqnoAbsolute() uint64 { return s.nextSeqno }

// NextSeqno returns the wire sequence number of the next byte to be sent.
func (s *TCPSender) NextSeqno() SeqNum { return Wrap(s.nextSeqno, s.isn) }

// ISN returns the sender's initial sequence number.
func (s *TCPSender) ISN() SeqNum { return s.isn }

// SegmentsOut returns the queue of segments ready for the network.
func (s *TCPSender) SegmentsOut() *SegmentQueue { return &s.segmentsOut }

// StreamIn returns the outbound stream the application writes to.
func (s *TCPSender) StreamIn() *ByteStream { return s.stream }

// State returns the sender's lifecycle state.
func (s *TCPSender) State() SenderState { return s.state }

// Elapsed returns the total milliseconds passed to Tick.
func (s *TCPSender) Elapsed() uint64 { return s.elapsed }
