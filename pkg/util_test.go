package protocol

import (
	"math"
	"math/rand/v2"
	"testing"
)

func TestWrap(t *testing.T) {
	tests := []struct {
		n    uint64
		isn  SeqNum
		want SeqNum
	}{
		{0, 0, 0},
		{3 * (1 << 32), 0, 0},
		{3*(1<<32) + 17, 15, 32},
		{7*(1<<32) - 2, 15, 13},
		{1, math.MaxUint32, 0},
		{math.MaxUint64, 1, 0},
	}
	for _, tt := range tests {
		if got := Wrap(tt.n, tt.isn); got != tt.want {
			t.Errorf("Wrap(%d, %d) = %d, want %d", tt.n, tt.isn, got, tt.want)
		}
	}
}

func TestUnwrap(t *testing.T) {
	tests := []struct {
		name       string
		n, isn     SeqNum
		checkpoint uint64
		want       uint64
	}{
		{"zero", 0, 0, 0, 0},
		{"small", 1, 0, 0, 1},
		{"crosses first wrap", 1, 0, math.MaxUint32, 1<<32 + 1},
		{"behind checkpoint", math.MaxUint32 - 1, 0, 3 * (1 << 32), 3*(1<<32) - 2},
		{"equals isn", 10, 10, 3 * (1 << 32), 3 * (1 << 32)},
		{"just before isn", math.MaxUint32, 10, 3 * (1 << 32), 3*(1<<32) - 11},
		{"half range from zero", 1 << 31, 0, 0, 1 << 31},
		{"nonzero isn", 16, 16, 0, 0},
		{"wrapped isn", 15, 16, 0, math.MaxUint32},
		{"no underflow", math.MaxUint32, 0, 0, math.MaxUint32},
		{"near top", 0xFFFFFFFD, 0, math.MaxUint64 - 10, math.MaxUint64 - 2},
		{"no overflow", 5, 0, math.MaxUint64 - 10, math.MaxUint64 - (1 << 32) + 6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Unwrap(tt.n, tt.isn, tt.checkpoint); got != tt.want {
				t.Errorf("Unwrap(%d, %d, %d) = %d, want %d", tt.n, tt.isn, tt.checkpoint, got, tt.want)
			}
		})
	}
}

func TestUnwrapEquidistant(t *testing.T) {
	// Low half of an epoch: the candidate above stays in the same epoch.
	if got, want := Unwrap(1<<31, 0, 1<<32), uint64(1<<32+1<<31); got != want {
		t.Errorf("low half: got %d, want %d", got, want)
	}
	// High half: the candidate below does.
	if got, want := Unwrap(0, 0, 1<<32+1<<31), uint64(1<<32); got != want {
		t.Errorf("high half: got %d, want %d", got, want)
	}
}

func TestUnwrapClosest(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	for i := 0; i < 10000; i++ {
		isn := SeqNum(rng.Uint32())
		checkpoint := rng.Uint64N(1 << 48)
		n := SeqNum(rng.Uint32())

		got := Unwrap(n, isn, checkpoint)
		if Wrap(got, isn) != n {
			t.Fatalf("Wrap(Unwrap(%d, %d, %d)) = %d", n, isn, checkpoint, Wrap(got, isn))
		}
		dist := got - checkpoint
		if got < checkpoint {
			dist = checkpoint - got
		}
		if dist > 1<<31 {
			t.Fatalf("Unwrap(%d, %d, %d) = %d is %d away from checkpoint", n, isn, checkpoint, got, dist)
		}
	}
}

func TestSeqNumCompare(t *testing.T) {
	if !SeqNum(math.MaxUint32).LessThan(0) {
		t.Error("0xffffffff should be before 0")
	}
	if SeqNum(5).LessThan(5) || !SeqNum(5).LessThanEq(5) {
		t.Error("5 compared wrong to itself")
	}
	if got := SeqNum(math.MaxUint32).Add(3); got != 2 {
		t.Errorf("Add wrapped to %d, want 2", got)
	}
	if got := SeqNum(2).Sub(math.MaxUint32); got != 3 {
		t.Errorf("Sub = %d, want 3", got)
	}
}
