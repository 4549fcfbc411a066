package protocol

import "math"

// SeqNum is a 32-bit TCP sequence number as it appears on the wire. All
// arithmetic on it wraps modulo 2^32.
type SeqNum uint32

// Add returns the sequence number n bytes after s.
func (s SeqNum) Add(n uint32) SeqNum {
	return s + SeqNum(n)
}

// Sub returns the wrapping distance from o to s.
func (s SeqNum) Sub(o SeqNum) int32 {
	return int32(s - o)
}

// LessThan checks if s is before o (modulo 2^32).
func (s SeqNum) LessThan(o SeqNum) bool {
	return s.Sub(o) < 0
}

// LessThanEq checks if s == o or s is before o (modulo 2^32).
func (s SeqNum) LessThanEq(o SeqNum) bool {
	return s == o || s.LessThan(o)
}

// Wrap converts an absolute 64-bit stream index into its wire sequence number
// given the connection's ISN.
func Wrap(n uint64, isn SeqNum) SeqNum {
	return isn + SeqNum(uint32(n))
}

// Unwrap converts a wire sequence number into the absolute stream index that
// wraps to n and lies closest to checkpoint.
//
// When both candidates are exactly 2^31 away from checkpoint, the one inside
// checkpoint's own 2^32 epoch is returned. Candidates that would fall outside
// the uint64 range are never returned.
func Unwrap(n SeqNum, isn SeqNum, checkpoint uint64) uint64 {
	up := uint64(uint32(n - Wrap(checkpoint, isn)))
	if up == 0 {
		return checkpoint
	}
	down := 1<<32 - up

	canUp := checkpoint <= math.MaxUint64-up
	canDown := checkpoint >= down
	switch {
	case !canDown:
		return checkpoint + up
	case !canUp:
		return checkpoint - down
	case up < down:
		return checkpoint + up
	case down < up:
		return checkpoint - down
	}
	// Equidistant.
	if uint32(checkpoint) >= 1<<31 {
		return checkpoint - down
	}
	return checkpoint + up
}
