// Package iptcp_utils encodes transport segments as IPv4 datagrams carrying a
// TCP header, and decodes them back. It is the only place where the core's
// unbounded window is squeezed into the 16-bit header field.
package iptcp_utils

import (
	"encoding/binary"
	"math"
	"net/netip"

	ipv4header "github.com/brown-csci1680/iptcp-headers"
	"github.com/google/netstack/tcpip/header"
	"github.com/pkg/errors"

	protocol "tcp-sponge/pkg"
)

const (
	TcpHeaderLen       = header.TCPMinimumSize
	TcpPseudoHeaderLen = 12
	IpProtoTcp         = header.TCPProtocolNumber
	DefaultTTL         = 16
)

var (
	ErrTruncated = errors.New("packet truncated")
	ErrChecksum  = errors.New("bad checksum")
	ErrNotTCP    = errors.New("not a tcp packet")
)

// Endpoints names both ends of a segment on the wire.
type Endpoints struct {
	Src netip.AddrPort
	Dst netip.AddrPort
}

// Reverse returns the endpoints as seen by the peer.
func (ep Endpoints) Reverse() Endpoints {
	return Endpoints{Src: ep.Dst, Dst: ep.Src}
}

// ClampWindow fits a window size into the 16-bit header field, saturating
// at the largest value the field can hold.
func ClampWindow(window uint64) uint16 {
	if window > math.MaxUint16 {
		return math.MaxUint16
	}
	return uint16(window)
}

// MarshalSegment builds an IPv4 datagram holding seg between ep.Src and ep.Dst.
func MarshalSegment(seg protocol.TCPSegment, ep Endpoints) ([]byte, error) {
	tcpHdr := header.TCPFields{
		SrcPort:       ep.Src.Port(),
		DstPort:       ep.Dst.Port(),
		SeqNum:        uint32(seg.SeqNo),
		DataOffset:    TcpHeaderLen,
		Flags:         segmentFlags(seg),
		WindowSize:    ClampWindow(seg.Window),
		Checksum:      0,
		UrgentPointer: 0,
	}
	if seg.Ack {
		tcpHdr.AckNum = uint32(seg.AckNo)
	}
	tcpHdr.Checksum = ComputeTCPChecksum(&tcpHdr, ep.Src.Addr(), ep.Dst.Addr(), seg.Payload)
	tcpHeaderBytes := make(header.TCP, TcpHeaderLen)
	tcpHeaderBytes.Encode(&tcpHdr)

	ipHdr := ipv4header.IPv4Header{
		Version:  4,
		Len:      ipv4header.HeaderLen, // no IP options
		TOS:      0,
		TotalLen: ipv4header.HeaderLen + TcpHeaderLen + len(seg.Payload),
		ID:       0,
		FragOff:  0,
		TTL:      DefaultTTL,
		Protocol: int(IpProtoTcp),
		Checksum: 0, // Should be 0 until checksum is computed
		Src:      ep.Src.Addr(),
		Dst:      ep.Dst.Addr(),
		Options:  []byte{},
	}
	headerBytes, err := ipHdr.Marshal()
	if err != nil {
		return nil, errors.Wrap(err, "marshaling ip header")
	}
	ipHdr.Checksum = int(ComputeChecksum(headerBytes))
	headerBytes, err = ipHdr.Marshal()
	if err != nil {
		return nil, errors.Wrap(err, "marshaling ip header")
	}

	packet := make([]byte, 0, ipHdr.TotalLen)
	packet = append(packet, headerBytes...)
	packet = append(packet, tcpHeaderBytes...)
	packet = append(packet, seg.Payload...)
	return packet, nil
}

// UnmarshalSegment parses and verifies an IPv4 datagram carrying a TCP
// segment. The returned payload does not alias b.
func UnmarshalSegment(b []byte) (protocol.TCPSegment, Endpoints, error) {
	ipHdr, err := ipv4header.ParseHeader(b)
	if err != nil {
		return protocol.TCPSegment{}, Endpoints{}, errors.Wrap(err, "parsing ip header")
	}
	if ipHdr.Len < ipv4header.HeaderLen || ipHdr.TotalLen > len(b) || ipHdr.TotalLen < ipHdr.Len {
		return protocol.TCPSegment{}, Endpoints{}, errors.Wrapf(ErrTruncated, "ip total length %d, have %d", ipHdr.TotalLen, len(b))
	}
	headerBytes := make([]byte, ipHdr.Len)
	copy(headerBytes, b[:ipHdr.Len])
	binary.BigEndian.PutUint16(headerBytes[10:12], 0)
	if ComputeChecksum(headerBytes) != uint16(ipHdr.Checksum) {
		return protocol.TCPSegment{}, Endpoints{}, errors.Wrap(ErrChecksum, "ip header")
	}
	if ipHdr.Protocol != int(IpProtoTcp) {
		return protocol.TCPSegment{}, Endpoints{}, errors.Wrapf(ErrNotTCP, "protocol %d", ipHdr.Protocol)
	}

	tcpHeaderAndData := b[ipHdr.Len:ipHdr.TotalLen]
	tcpHdr, err := ParseTCPHeader(tcpHeaderAndData)
	if err != nil {
		return protocol.TCPSegment{}, Endpoints{}, err
	}
	if !ValidTCPChecksum(tcpHeaderAndData, ipHdr.Src, ipHdr.Dst) {
		return protocol.TCPSegment{}, Endpoints{}, errors.Wrap(ErrChecksum, "tcp segment")
	}

	seg := protocol.TCPSegment{
		SeqNo:  protocol.SeqNum(tcpHdr.SeqNum),
		Syn:    tcpHdr.Flags&header.TCPFlagSyn != 0,
		Fin:    tcpHdr.Flags&header.TCPFlagFin != 0,
		Ack:    tcpHdr.Flags&header.TCPFlagAck != 0,
		Rst:    tcpHdr.Flags&header.TCPFlagRst != 0,
		Window: uint64(tcpHdr.WindowSize),
	}
	if seg.Ack {
		seg.AckNo = protocol.SeqNum(tcpHdr.AckNum)
	}
	if payload := tcpHeaderAndData[tcpHdr.DataOffset:]; len(payload) > 0 {
		seg.Payload = append([]byte(nil), payload...)
	}
	ep := Endpoints{
		Src: netip.AddrPortFrom(ipHdr.Src, tcpHdr.SrcPort),
		Dst: netip.AddrPortFrom(ipHdr.Dst, tcpHdr.DstPort),
	}
	return seg, ep, nil
}

// ParseTCPHeader decodes the fixed part of a TCP header.
func ParseTCPHeader(b []byte) (header.TCPFields, error) {
	if len(b) < TcpHeaderLen {
		return header.TCPFields{}, errors.Wrapf(ErrTruncated, "tcp header is %d bytes", len(b))
	}
	td := header.TCP(b)
	fields := header.TCPFields{
		SrcPort:    td.SourcePort(),
		DstPort:    td.DestinationPort(),
		SeqNum:     td.SequenceNumber(),
		AckNum:     td.AckNumber(),
		DataOffset: td.DataOffset(),
		Flags:      td.Flags(),
		WindowSize: td.WindowSize(),
		Checksum:   td.Checksum(),
	}
	if int(fields.DataOffset) < TcpHeaderLen || int(fields.DataOffset) > len(b) {
		return header.TCPFields{}, errors.Wrapf(ErrTruncated, "tcp data offset %d", fields.DataOffset)
	}
	return fields, nil
}

func segmentFlags(seg protocol.TCPSegment) uint8 {
	var flags uint8
	if seg.Syn {
		flags |= header.TCPFlagSyn
	}
	if seg.Fin {
		flags |= header.TCPFlagFin
	}
	if seg.Ack {
		flags |= header.TCPFlagAck
	}
	if seg.Rst {
		flags |= header.TCPFlagRst
	}
	return flags
}
