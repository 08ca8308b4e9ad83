package limiter

import (
	"fmt"
	"math"
)

// UpsamplerLatency is the detector latency of the 4x polyphase bank in
// input samples.
const UpsamplerLatency = 23

// 4x upsampling FIR, cosine windowed sinc, 48 taps per phase. Phase 0 is
// the identity (the current input sample). Phase 2 is symmetric; phases 1
// and 3 are mirror images of each other. The literals must stay exactly
// as listed to keep output bit-identical across implementations.
var upsamplerFIR = [3][48]float32{
	{ // phase 1
		-2.330790e-05, +1.321291e-04, -3.394408e-04, +6.562235e-04,
		-1.094138e-03, +1.665807e-03, -2.385230e-03, +3.268371e-03,
		-4.334012e-03, +5.604985e-03, -7.109989e-03, +8.886314e-03,
		-1.098403e-02, +1.347264e-02, -1.645206e-02, +2.007155e-02,
		-2.456432e-02, +3.031531e-02, -3.800644e-02, +4.896667e-02,
		-6.616853e-02, +9.788141e-02, -1.788607e-01, +9.000753e-01,
		+2.993829e-01, -1.269367e-01, +7.922398e-02, -5.647748e-02,
		+4.295093e-02, -3.385706e-02, +2.724946e-02, -2.218943e-02,
		+1.816976e-02, -1.489313e-02, +1.217411e-02, -9.891211e-03,
		+7.961470e-03, -6.326144e-03, +4.942202e-03, -3.777065e-03,
		+2.805240e-03, -2.006106e-03, +1.362416e-03, -8.592768e-04,
		+4.834383e-04, -2.228007e-04, +6.607267e-05, -2.537056e-06,
	},
	{ // phase 2
		-1.450055e-05, +1.359163e-04, -3.928527e-04, +8.006445e-04,
		-1.375510e-03, +2.134915e-03, -3.098103e-03, +4.286860e-03,
		-5.726614e-03, +7.448018e-03, -9.489286e-03, +1.189966e-02,
		-1.474471e-02, +1.811472e-02, -2.213828e-02, +2.700557e-02,
		-3.301023e-02, +4.062971e-02, -5.069345e-02, +6.477499e-02,
		-8.625619e-02, +1.239454e-01, -2.101678e-01, +6.359382e-01,
		+6.359382e-01, -2.101678e-01, +1.239454e-01, -8.625619e-02,
		+6.477499e-02, -5.069345e-02, +4.062971e-02, -3.301023e-02,
		+2.700557e-02, -2.213828e-02, +1.811472e-02, -1.474471e-02,
		+1.189966e-02, -9.489286e-03, +7.448018e-03, -5.726614e-03,
		+4.286860e-03, -3.098103e-03, +2.134915e-03, -1.375510e-03,
		+8.006445e-04, -3.928527e-04, +1.359163e-04, -1.450055e-05,
	},
	{ // phase 3
		-2.537056e-06, +6.607267e-05, -2.228007e-04, +4.834383e-04,
		-8.592768e-04, +1.362416e-03, -2.006106e-03, +2.805240e-03,
		-3.777065e-03, +4.942202e-03, -6.326144e-03, +7.961470e-03,
		-9.891211e-03, +1.217411e-02, -1.489313e-02, +1.816976e-02,
		-2.218943e-02, +2.724946e-02, -3.385706e-02, +4.295093e-02,
		-5.647748e-02, +7.922398e-02, -1.269367e-01, +2.993829e-01,
		+9.000753e-01, -1.788607e-01, +9.788141e-02, -6.616853e-02,
		+4.896667e-02, -3.800644e-02, +3.031531e-02, -2.456432e-02,
		+2.007155e-02, -1.645206e-02, +1.347264e-02, -1.098403e-02,
		+8.886314e-03, -7.109989e-03, +5.604985e-03, -4.334012e-03,
		+3.268371e-03, -2.385230e-03, +1.665807e-03, -1.094138e-03,
		+6.562235e-04, -3.394408e-04, +1.321291e-04, -2.330790e-05,
	},
}

// Upsampler estimates inter-sample peaks by reconstructing four phases
// per input sample with a 48-tap polyphase FIR. It is detection only:
// callers feed it the same samples that go down the signal path and use
// the returned magnitude instead of the raw sample magnitude.
type Upsampler struct {
	channels int
	hist     [][48]float32
}

// NewUpsampler creates a true-peak detector for the given channel count.
func NewUpsampler(channels int) (*Upsampler, error) {
	if channels <= 0 {
		return nil, fmt.Errorf("upsampler channels must be > 0: %d", channels)
	}

	return &Upsampler{
		channels: channels,
		hist:     make([][48]float32, channels),
	}, nil
}

// Channels returns the configured channel count.
func (u *Upsampler) Channels() int {
	return u.channels
}

// Reset clears all per-channel histories.
func (u *Upsampler) Reset() {
	for c := range u.hist {
		for j := range u.hist[c] {
			u.hist[c][j] = 0
		}
	}
}

// ProcessOne pushes one sample for channel ch and returns the maximum
// magnitude among the four reconstructed sub-sample phases. The maximum
// for an input lags the input by UpsamplerLatency samples.
func (u *Upsampler) ProcessOne(ch int, x float32) float32 {
	r := &u.hist[ch]
	r[47] = x

	u0 := r[47]

	var u1, u2, u3 float32

	for k := 0; k < 48; k++ {
		u1 += r[k] * upsamplerFIR[0][k]
		u2 += r[k] * upsamplerFIR[1][k]
		u3 += r[k] * upsamplerFIR[2][k]
	}

	for k := 0; k < 47; k++ {
		r[k] = r[k+1]
	}

	p1 := maxf32(absf32(u0), absf32(u1))
	p2 := maxf32(absf32(u2), absf32(u3))

	return maxf32(p1, p2)
}

// ProcessBlock folds a block of interleaved frames into a running peak
// value and returns the updated peak.
func (u *Upsampler) ProcessBlock(pk float32, inp []float32) float32 {
	n := len(inp) / u.channels
	for i := 0; i < n; i++ {
		for c := 0; c < u.channels; c++ {
			p := u.ProcessOne(c, inp[c+i*u.channels])
			if p > pk {
				pk = p
			}
		}
	}

	return pk
}

func absf32(v float32) float32 {
	return float32(math.Abs(float64(v)))
}

func maxf32(a, b float32) float32 {
	if a > b {
		return a
	}

	return b
}
