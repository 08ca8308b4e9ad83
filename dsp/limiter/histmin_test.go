package limiter

import (
	"math/rand"
	"testing"
)

// bruteMin is the O(L) reference: the minimum over the last hlen values,
// padding the warm-up with the initial 1.0 fill.
func bruteMin(stream []float32, t, hlen int) float32 {
	vmin := float32(1)
	for j := t - hlen + 1; j <= t; j++ {
		v := float32(1)
		if j >= 0 {
			v = stream[j]
		}
		if v < vmin {
			vmin = v
		}
	}
	return vmin
}

func TestHistminMatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	for hlen := 1; hlen <= histSize; hlen++ {
		var h histmin
		h.init(hlen)

		stream := make([]float32, 500)
		for i := range stream {
			stream[i] = rng.Float32()
		}

		for i, v := range stream {
			got := h.write(v)
			want := bruteMin(stream, i, hlen)
			if got != want {
				t.Fatalf("hlen=%d step=%d: write() = %v, want %v", hlen, i, got, want)
			}
			if h.current() != got {
				t.Fatalf("hlen=%d step=%d: current() = %v, want %v", hlen, i, h.current(), got)
			}
		}
	}
}

func TestHistminSilentStartReportsUnity(t *testing.T) {
	var h histmin
	h.init(8)

	if h.current() != 1 {
		t.Fatalf("initial minimum = %v, want 1", h.current())
	}

	// Values above 1 never lower the minimum below the initial fill.
	for i := 0; i < 4; i++ {
		if got := h.write(1.5); got != 1 {
			t.Fatalf("write(1.5) = %v, want 1 during warm-up", got)
		}
	}
}

func TestHistminTieRefreshesHold(t *testing.T) {
	var h histmin
	h.init(4)

	// A flat run at the current minimum must keep reporting it without a
	// premature expiry once older copies leave the window.
	for i := 0; i < 12; i++ {
		if got := h.write(0.5); got != 0.5 {
			t.Fatalf("step %d: write(0.5) = %v, want 0.5", i, got)
		}
	}

	// Minimum recovers once 0.5 has fully left the window.
	var got float32
	for i := 0; i < 4; i++ {
		got = h.write(0.9)
	}
	if got != 0.9 {
		t.Fatalf("after expiry: minimum = %v, want 0.9", got)
	}
}

func TestHistminExpiryPicksNextSmallest(t *testing.T) {
	var h histmin
	h.init(3)

	h.write(0.2)
	h.write(0.4)
	h.write(0.6)

	// 0.2 falls out of the 3-wide window here; 0.4 takes over.
	if got := h.write(0.8); got != 0.4 {
		t.Fatalf("minimum after expiry = %v, want 0.4", got)
	}

	if got := h.write(0.9); got != 0.6 {
		t.Fatalf("minimum after second expiry = %v, want 0.6", got)
	}
}
