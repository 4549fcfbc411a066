package tcp_protocol

import (
	"tcp-sponge/iptcp_utils"
)

// MaxPacketSize bounds a single datagram read from the link.
const MaxPacketSize = 1 << 16

func (stack *TCPStack) readLoop() error {
	buf := make([]byte, MaxPacketSize)
	for {
		n, _, err := stack.conn.ReadFrom(buf)
		if err != nil {
			select {
			case <-stack.done:
				return nil
			default:
				return err
			}
		}
		packet := make([]byte, n)
		copy(packet, buf[:n])
		select {
		case stack.inbound <- packet:
		case <-stack.done:
			return nil
		}
	}
}

// TCPHandler decodes one datagram and hands its segment to the connection.
// Corrupt datagrams and datagrams for another connection are dropped.
func (stack *TCPStack) TCPHandler(packet []byte) {
	seg, ep, err := iptcp_utils.UnmarshalSegment(packet)
	if err != nil {
		stack.log.WithError(err).Debug("dropping packet")
		return
	}
	if ep.Src != stack.Remote || ep.Dst != stack.Local {
		stack.log.WithField("endpoints", ep).Debug("dropping packet for unknown connection")
		return
	}
	stack.tcpConn.SegmentReceived(seg)
}

// sendSegments encodes and transmits everything the connection queued.
func (stack *TCPStack) sendSegments() {
	ep := iptcp_utils.Endpoints{Src: stack.Local, Dst: stack.Remote}
	out := stack.tcpConn.SegmentsOut()
	for !out.Empty() {
		seg, _ := out.Pop()
		packet, err := iptcp_utils.MarshalSegment(seg, ep)
		if err != nil {
			stack.log.WithError(err).Warn("could not encode segment")
			continue
		}
		if _, err := stack.conn.WriteTo(packet, stack.peer); err != nil {
			stack.log.WithError(err).Warn("could not send segment")
		}
	}
}
