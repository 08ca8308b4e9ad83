package testutil

import (
	"math"
	"testing"
)

func TestDeterministicSine(t *testing.T) {
	s := DeterministicSine(1000, 48000, 1.0, 48)
	if len(s) != 48 {
		t.Fatalf("len = %d, want 48", len(s))
	}
	// First sample of a sine at phase 0 should be 0.
	if math.Abs(s[0]) > 1e-15 {
		t.Fatalf("s[0] = %v, want 0", s[0])
	}
	// All values in [-1, 1].
	for i, v := range s {
		if v < -1 || v > 1 {
			t.Fatalf("s[%d] = %v out of range", i, v)
		}
	}
}

func TestDeterministicSineReproducible(t *testing.T) {
	a := DeterministicSine(440, 44100, 0.5, 100)
	b := DeterministicSine(440, 44100, 0.5, 100)
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("non-deterministic at index %d", i)
		}
	}
}

func TestDeterministicNoise(t *testing.T) {
	a := DeterministicNoise(42, 1.0, 64)
	b := DeterministicNoise(42, 1.0, 64)
	if len(a) != 64 {
		t.Fatalf("len = %d, want 64", len(a))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("noise not deterministic at index %d", i)
		}
	}
}

func TestSine32MatchesFloat64(t *testing.T) {
	a := DeterministicSine(1000, 48000, 0.5, 64)
	b := Sine32(1000, 48000, 0.5, 64)
	for i := range a {
		if math.Abs(a[i]-float64(b[i])) > 1e-7 {
			t.Fatalf("index %d: float64 %v vs float32 %v", i, a[i], b[i])
		}
	}
}

func TestImpulse32(t *testing.T) {
	imp := Impulse32(8, 3, 2.0)
	for i, v := range imp {
		want := float32(0)
		if i == 3 {
			want = 2.0
		}
		if v != want {
			t.Fatalf("imp[%d] = %v, want %v", i, v, want)
		}
	}
}

func TestInterleave32RoundTrip(t *testing.T) {
	left := []float32{1, 2, 3}
	right := []float32{4, 5, 6}

	buf := Interleave32(left, right)
	want := []float32{1, 4, 2, 5, 3, 6}
	for i := range want {
		if buf[i] != want[i] {
			t.Fatalf("buf[%d] = %v, want %v", i, buf[i], want[i])
		}
	}

	split := Deinterleave32(buf, 2)
	for i := range left {
		if split[0][i] != left[i] || split[1][i] != right[i] {
			t.Fatalf("round trip mismatch at frame %d", i)
		}
	}
}
