package protocol

import (
	"github.com/sirupsen/logrus"
)

// TCPConn combines a TCPSender and a TCPReceiver into one endpoint of a
// connection. Every segment it emits carries the receiver's ackno and window.
//
// TCPConn is not safe for concurrent use; the owner must serialize calls.
type TCPConn struct {
	cfg      TCPConfig
	sender   *TCPSender
	receiver *TCPReceiver

	segmentsOut SegmentQueue

	active bool
	reset  bool
	// linger is cleared when the peer finished its stream before ours, in
	// which case there is no need to wait after both streams are done.
	linger                   bool
	timeSinceLastSegmentRecv uint64

	state string
	log   *logrus.Entry
}

// NewTCPConn builds an idle connection. logger may be nil.
func NewTCPConn(cfg TCPConfig, logger *logrus.Entry) (*TCPConn, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	c := &TCPConn{
		cfg:      cfg,
		sender:   NewTCPSender(NewByteStream(cfg.SendCapacity), cfg),
		receiver: NewTCPReceiver(cfg.RecvCapacity),
		active:   true,
		linger:   true,
		log:      logger,
	}
	c.state = c.State()
	return c, nil
}

// Connect starts an active open by sending a SYN.
func (c *TCPConn) Connect() {
	c.sender.FillWindow()
	c.flush()
}

// Write queues as much of data as the outbound stream can hold and sends
// what the peer's window allows. It returns the number of bytes accepted.
func (c *TCPConn) Write(data []byte) int {
	n := c.sender.StreamIn().Write(data)
	c.sender.FillWindow()
	c.flush()
	return n
}

// EndInputStream closes the outbound stream; a FIN follows the last byte.
func (c *TCPConn) EndInputStream() {
	c.sender.StreamIn().EndInput()
	c.sender.FillWindow()
	c.flush()
}

// SegmentReceived processes one segment from the peer.
func (c *TCPConn) SegmentReceived(seg TCPSegment) {
	if !c.active {
		return
	}
	c.timeSinceLastSegmentRecv = 0
	if seg.Rst {
		c.log.Warn("connection reset by peer")
		c.uncleanShutdown()
		return
	}

	c.receiver.SegmentReceived(seg)
	if seg.Ack {
		c.sender.AckReceived(seg.AckNo, seg.Window)
	}
	// A sender that has not opened yet only answers a SYN (passive open).
	if c.sender.State() != SenderClosed || c.receiver.State() != ReceiverListen {
		c.sender.FillWindow()
	}

	// Anything that occupies sequence space gets acknowledged, as do
	// keep-alive probes sitting one sequence number behind our ackno.
	if ackno, ok := c.receiver.AckNo(); ok && c.sender.SegmentsOut().Empty() {
		if seg.LengthInSequenceSpace() > 0 || seg.SeqNo == ackno-1 {
			c.sender.SendEmptySegment()
		}
	}

	if c.receiver.StreamOut().InputEnded() && !c.sender.StreamIn().EOF() {
		c.linger = false
	}
	c.flush()
	c.checkDone()
}

// Tick advances the connection's clock by ms milliseconds.
func (c *TCPConn) Tick(ms uint64) {
	if !c.active {
		return
	}
	c.timeSinceLastSegmentRecv += ms
	c.sender.Tick(ms)
	if c.sender.ConsecutiveRetransmissions() > c.cfg.MaxRetxAttempts {
		c.log.WithField("retransmissions", c.sender.ConsecutiveRetransmissions()).
			Warn("too many retransmissions, resetting connection")
		c.sender.SegmentsOut().Drain()
		c.segmentsOut.Push(TCPSegment{SeqNo: c.sender.NextSeqno(), Rst: true})
		c.uncleanShutdown()
		return
	}
	c.flush()
	c.checkDone()
}

func (c *TCPConn) flush() {
	for _, seg := range c.sender.SegmentsOut().Drain() {
		if ackno, ok := c.receiver.AckNo(); ok {
			seg.Ack = true
			seg.AckNo = ackno
		}
		seg.Window = c.receiver.WindowSize()
		c.segmentsOut.Push(seg)
	}
	c.logTransition()
}

func (c *TCPConn) uncleanShutdown() {
	c.sender.StreamIn().SetError()
	c.receiver.StreamOut().SetError()
	c.active = false
	c.reset = true
	c.logTransition()
}

func (c *TCPConn) checkDone() {
	inboundDone := c.receiver.State() == ReceiverFinReceived && c.receiver.UnassembledBytes() == 0
	outboundDone := c.sender.StreamIn().EOF() && c.sender.State() == SenderFinAcked
	if !inboundDone || !outboundDone {
		return
	}
	if !c.linger || c.timeSinceLastSegmentRecv >= 10*c.cfg.RTTimeout {
		c.active = false
		c.logTransition()
	}
}

func (c *TCPConn) logTransition() {
	state := c.State()
	if state == c.state {
		return
	}
	c.log.WithFields(logrus.Fields{"from": c.state, "to": state}).Debug("state transition")
	c.state = state
}

// State names the connection's position in the classic TCP state diagram.
func (c *TCPConn) State() string {
	if c.reset {
		return "RESET"
	}
	rs, ss := c.receiver.State(), c.sender.State()
	switch {
	case rs == ReceiverListen && ss == SenderClosed:
		return "LISTEN"
	case rs == ReceiverListen && ss == SenderSynSent:
		return "SYN_SENT"
	case rs == ReceiverSynReceived && ss == SenderSynSent:
		return "SYN_RECEIVED"
	case rs == ReceiverSynReceived && ss == SenderSynAcked:
		return "ESTABLISHED"
	case rs == ReceiverFinReceived && ss == SenderSynAcked:
		return "CLOSE_WAIT"
	case rs == ReceiverFinReceived && ss == SenderFinSent && !c.linger:
		return "LAST_ACK"
	case rs == ReceiverFinReceived && ss == SenderFinSent:
		return "CLOSING"
	case rs == ReceiverSynReceived && ss == SenderFinSent:
		return "FIN_WAIT_1"
	case rs == ReceiverSynReceived && ss == SenderFinAcked:
		return "FIN_WAIT_2"
	case rs == ReceiverFinReceived && ss == SenderFinAcked && c.active:
		return "TIME_WAIT"
	case !c.active:
		return "CLOSED"
	}
	return "UNKNOWN"
}

// SegmentsOut returns the queue of segments ready for the wire.
func (c *TCPConn) SegmentsOut() *SegmentQueue { return &c.segmentsOut }

// InboundStream returns the stream of bytes received from the peer.
func (c *TCPConn) InboundStream() *ByteStream { return c.receiver.StreamOut() }

// OutboundStream returns the stream of bytes queued for the peer.
func (c *TCPConn) OutboundStream() *ByteStream { return c.sender.StreamIn() }

// RemainingOutboundCapacity returns how many more bytes Write can accept.
func (c *TCPConn) RemainingOutboundCapacity() int { return c.sender.StreamIn().RemainingCapacity() }

// BytesInFlight returns the sequence space sent but not acknowledged.
func (c *TCPConn) BytesInFlight() uint64 { return c.sender.BytesInFlight() }

// UnassembledBytes returns how many received bytes wait on a gap.
func (c *TCPConn) UnassembledBytes() int { return c.receiver.UnassembledBytes() }

// TimeSinceLastSegmentReceived returns milliseconds since the peer last sent
// anything.
func (c *TCPConn) TimeSinceLastSegmentReceived() uint64 { return c.timeSinceLastSegmentRecv }

// Active reports whether the connection is still running.
func (c *TCPConn) Active() bool { return c.active }
