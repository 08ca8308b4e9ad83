package limiter

import (
	"fmt"
	"math"
)

const (
	// MaxChannels is the highest channel count the engine supports.
	// Larger configurations are clamped.
	MaxChannels = 64

	minReleaseS = 1e-3
	maxReleaseS = 1.0

	superDivider = 8
)

// Limiter is a look-ahead digital peak limiter.
//
// The input is delayed by a fixed look-ahead window while a gain envelope
// reacts to peaks before they emerge from the delay line, so output samples
// on the digital-peak path stay at the threshold apart from
// envelope-smoothing transients of a few parts in 1e5. A second, slower
// detector follows the 500 Hz low-passed envelope and extends the hold on
// gain reduction caused by strong low-frequency content, keeping short
// release times usable without waveform distortion.
//
// All methods must be called from a single goroutine; Process is
// allocation-free and lock-free.
type Limiter struct {
	sampleRate float64
	channels   int

	div1  int
	div2  int
	delay int
	dsize int
	dmask int
	delri int
	dbuff [][]float32

	c1, c2 int

	g0, g1, dg float32
	gt, m1, m2 float32
	w1, w2, w3 float32
	wlf        float32
	z1, z2, z3 float32
	zlf        []float32

	hist1 histmin
	hist2 histmin

	up       *Upsampler
	truePeak bool

	rstat bool
	peak  float32
	gmax  float32
	gmin  float32
}

// New creates a limiter for the given sample rate and channel count.
// A channel count of zero yields an inert engine whose Process is a
// no-op; counts above MaxChannels are clamped.
func New(sampleRate float64, channels int) (*Limiter, error) {
	if sampleRate <= 0 || !isFinite(sampleRate) {
		return nil, fmt.Errorf("limiter sample rate must be positive and finite: %f", sampleRate)
	}

	if channels < 0 {
		return nil, fmt.Errorf("limiter channels must be >= 0: %d", channels)
	}

	l := &Limiter{}
	l.configure(sampleRate, channels)

	return l, nil
}

// Configure re-initialises the engine for a new sample rate and channel
// count, rebuilding all owned buffers and resetting every envelope.
// Calling it with the currently configured values is a no-op that
// preserves warm state.
func (l *Limiter) Configure(sampleRate float64, channels int) error {
	if sampleRate <= 0 || !isFinite(sampleRate) {
		return fmt.Errorf("limiter sample rate must be positive and finite: %f", sampleRate)
	}

	if channels < 0 {
		return fmt.Errorf("limiter channels must be >= 0: %d", channels)
	}

	if channels > MaxChannels {
		channels = MaxChannels
	}

	if sampleRate == l.sampleRate && channels == l.channels {
		return nil
	}

	l.configure(sampleRate, channels)

	return nil
}

func (l *Limiter) configure(sampleRate float64, channels int) {
	if channels > MaxChannels {
		channels = MaxChannels
	}

	l.sampleRate = sampleRate
	l.channels = channels

	switch {
	case sampleRate > 130000:
		l.div1 = 32
	case sampleRate > 65000:
		l.div1 = 16
	default:
		l.div1 = 8
	}

	l.div2 = superDivider

	k1 := int(math.Ceil(1.2e-3 * sampleRate / float64(l.div1)))
	l.delay = k1 * l.div1

	for l.dsize = 64; l.dsize < l.delay+l.div1; l.dsize *= 2 {
	}

	l.dmask = l.dsize - 1
	l.delri = 0

	l.dbuff = make([][]float32, channels)
	for i := range l.dbuff {
		l.dbuff[i] = make([]float32, l.dsize)
	}

	l.hist1.init(k1 + 1)
	l.hist2.init(12)

	l.c1 = l.div1
	l.c2 = l.div2
	l.m1 = 0
	l.m2 = 0

	l.wlf = float32(6.28 * 500.0 / sampleRate)
	l.w1 = 10.0 / float32(l.delay)
	l.w2 = l.w1 / float32(l.div2)
	l.w3 = 1.0 / float32(0.01*sampleRate)

	l.zlf = make([]float32, channels)
	l.z1 = 1
	l.z2 = 1
	l.z3 = 1
	l.gt = 1
	l.g0 = 1
	l.g1 = 1
	l.dg = 0
	l.gmax = 1
	l.gmin = 1
	l.peak = 0
	l.rstat = false

	if channels > 0 {
		l.up, _ = NewUpsampler(channels)
	} else {
		l.up = nil
	}
}

// SampleRate returns the configured sample rate in Hz.
func (l *Limiter) SampleRate() float64 { return l.sampleRate }

// Channels returns the configured channel count.
func (l *Limiter) Channels() int { return l.channels }

// SetInputGain sets the input gain in dB. The gain is applied gradually,
// ramped over one super-chunk period per recomputation.
func (l *Limiter) SetInputGain(dB float64) {
	l.g1 = float32(math.Pow(10.0, 0.05*dB))
}

// SetThreshold sets the limiting threshold in dB relative to full scale.
func (l *Limiter) SetThreshold(dB float64) {
	l.gt = float32(math.Pow(10.0, -0.05*dB))
}

// SetRelease sets the release time in seconds, clamped to [1 ms, 1 s].
func (l *Limiter) SetRelease(s float64) {
	if s > maxReleaseS {
		s = maxReleaseS
	}

	if s < minReleaseS {
		s = minReleaseS
	}

	l.w3 = 1.0 / float32(s*l.sampleRate)
}

// SetTruePeak toggles 4x oversampled inter-sample peak detection. A
// change resets the detector histories; the limiter state itself is
// preserved. Enabling true-peak extends Latency by UpsamplerLatency.
func (l *Limiter) SetTruePeak(enabled bool) {
	if l.truePeak == enabled {
		return
	}

	if l.up != nil {
		l.up.Reset()
	}

	l.truePeak = enabled
}

// TruePeak reports whether oversampled detection is active.
func (l *Limiter) TruePeak() bool { return l.truePeak }

// Latency returns the engine latency in samples: the look-ahead delay,
// plus the detector latency while true-peak mode is active. Callers
// align their output by discarding the first Latency() samples and
// flushing the tail with as many zero input frames.
func (l *Limiter) Latency() int {
	if l.truePeak {
		return l.delay + UpsamplerLatency
	}

	return l.delay
}

// Stats returns the peak detector value and the extrema of the applied
// gain observed since the previous Stats call. The reset is armed here
// and consumed at the start of the next Process, so the values always
// reflect whole blocks.
func (l *Limiter) Stats() (peak, gmax, gmin float32) {
	peak = l.peak
	gmax = l.gmax
	gmin = l.gmin
	l.rstat = true

	return peak, gmax, gmin
}

// Process runs the limiter over interleaved frame-major float32 buffers.
// inp and out must be distinct and the same length, a multiple of the
// channel count. All state carries across calls; splits that land on
// coarse-chunk boundaries reproduce a single-call run bit for bit.
func (l *Limiter) Process(inp, out []float32) {
	if l.channels == 0 {
		return
	}

	nframes := len(inp) / l.channels

	ri := l.delri
	wi := (ri + l.delay) & l.dmask
	h1 := l.hist1.current()
	h2 := l.hist2.current()
	m1 := l.m1
	m2 := l.m2
	z1 := l.z1
	z2 := l.z2
	z3 := l.z3

	var pk, t0, t1 float32

	if l.rstat {
		l.rstat = false
		pk = 0
		t0 = l.gmax
		t1 = l.gmin
	} else {
		pk = l.peak
		t0 = l.gmin
		t1 = l.gmax
	}

	k := 0
	for nframes > 0 {
		n := l.c1
		if n > nframes {
			n = nframes
		}

		g := l.g0

		for j := 0; j < l.channels; j++ {
			z := l.zlf[j]
			g = l.g0
			d := l.dg

			for i := 0; i < n; i++ {
				x := g * inp[j+(i+k)*l.channels]
				g += d
				l.dbuff[j][wi+i] = x
				z += l.wlf*(x-z) + 1e-20

				if l.truePeak {
					x = l.up.ProcessOne(j, x)
				} else {
					x = absf32(x)
				}

				if x > m1 {
					m1 = x
				}

				x = absf32(z)
				if x > m2 {
					m2 = x
				}
			}

			l.zlf[j] = z
		}

		l.g0 = g

		l.c1 -= n
		if l.c1 == 0 {
			m1 *= l.gt
			if m1 > pk {
				pk = m1
			}

			h1 = 1.0
			if m1 > 1.0 {
				h1 = 1.0 / m1
			}

			h1 = l.hist1.write(h1)
			m1 = 0
			l.c1 = l.div1

			l.c2--
			if l.c2 == 0 {
				m2 *= l.gt

				h2 = 1.0
				if m2 > 1.0 {
					h2 = 1.0 / m2
				}

				h2 = l.hist2.write(h2)
				m2 = 0
				l.c2 = l.div2

				l.dg = l.g1 - l.g0
				if absf32(l.dg) < 1e-9 {
					l.g0 = l.g1
					l.dg = 0
				} else {
					l.dg /= float32(l.div1 * l.div2)
				}
			}
		}

		for i := 0; i < n; i++ {
			z1 += l.w1 * (h1 - z1)
			z2 += l.w2 * (h2 - z2)

			z := z1
			if z2 < z1 {
				z = z2
			}

			if z < z3 {
				z3 += l.w1 * (z - z3)
			} else {
				z3 += l.w3 * (z - z3)
			}

			if z3 > t1 {
				t1 = z3
			}

			if z3 < t0 {
				t0 = z3
			}

			for j := 0; j < l.channels; j++ {
				out[j+(k+i)*l.channels] = z3 * l.dbuff[j][ri+i]
			}
		}

		wi = (wi + n) & l.dmask
		ri = (ri + n) & l.dmask
		k += n
		nframes -= n
	}

	l.delri = ri
	l.m1 = m1
	l.m2 = m2
	l.z1 = z1
	l.z2 = z2
	l.z3 = z3
	l.peak = pk
	l.gmin = t0
	l.gmax = t1
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
