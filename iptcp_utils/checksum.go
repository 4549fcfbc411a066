package iptcp_utils

import (
	"encoding/binary"
	"net/netip"

	"github.com/google/netstack/tcpip/header"
)

// ComputeChecksum returns the IPv4 header checksum of headerBytes, which must
// have a zeroed checksum field.
func ComputeChecksum(headerBytes []byte) uint16 {
	checksum := header.Checksum(headerBytes, 0)
	checksumInv := checksum ^ 0xffff
	return checksumInv
}

// ComputeTCPChecksum returns the checksum of a TCP segment without options,
// including the IPv4 pseudo-header. tcpHdr.Checksum must be zero.
func ComputeTCPChecksum(tcpHdr *header.TCPFields, sourceIP netip.Addr, destIP netip.Addr, payload []byte) uint16 {
	pseudoHeaderBytes := pseudoHeader(sourceIP, destIP, TcpHeaderLen+len(payload))

	headerBytes := header.TCP(make([]byte, TcpHeaderLen))
	headerBytes.Encode(tcpHdr)

	// Chain the partial sums through netstack's "initial value" argument
	pseudoHeaderChecksum := header.Checksum(pseudoHeaderBytes, 0)
	headerChecksum := header.Checksum(headerBytes, pseudoHeaderChecksum)
	fullChecksum := header.Checksum(payload, headerChecksum)
	return fullChecksum ^ 0xffff
}

// ValidTCPChecksum reports whether the raw segment, checksum field included,
// sums to all ones together with its pseudo-header.
func ValidTCPChecksum(tcpHeaderAndData []byte, sourceIP netip.Addr, destIP netip.Addr) bool {
	pseudoHeaderBytes := pseudoHeader(sourceIP, destIP, len(tcpHeaderAndData))
	sum := header.Checksum(tcpHeaderAndData, header.Checksum(pseudoHeaderBytes, 0))
	return sum == 0xffff
}

func pseudoHeader(sourceIP netip.Addr, destIP netip.Addr, tcpLength int) []byte {
	b := make([]byte, TcpPseudoHeaderLen)
	// Only IPv4 is supported
	copy(b[0:4], sourceIP.AsSlice())
	copy(b[4:8], destIP.AsSlice())
	b[8] = 0
	b[9] = uint8(IpProtoTcp)
	binary.BigEndian.PutUint16(b[10:12], uint16(tcpLength))
	return b
}
