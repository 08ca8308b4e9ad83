// Package peak measures the peak level of interleaved audio streams.
//
// It backs offline pre-passes such as automatic gain staging: measure the
// source once, derive the gain that lands the loudest point on a target
// level, then process. Digital peak is the highest sample magnitude;
// true peak adds 4x oversampled inter-sample detection using the same
// polyphase bank the limiter uses.
package peak

import (
	"fmt"
	"math"

	"github.com/cwbudde/algo-peaklimit/dsp/limiter"
)

// Result holds the peak measurements accumulated by a Meter.
type Result struct {
	// Digital is the highest sample magnitude seen, linear.
	Digital float64
	// TruePeak is the highest 4x oversampled magnitude seen, linear.
	// Zero when true-peak measurement is disabled.
	TruePeak float64
	// Frames counts the frames measured.
	Frames int64
}

// Level returns the measurement relevant for gain staging: the true peak
// when it was measured, the digital peak otherwise.
func (r Result) Level() float64 {
	if r.TruePeak > 0 {
		return r.TruePeak
	}

	return r.Digital
}

// DB converts a linear level to dB, with a floor guard for silence.
func DB(level float64) float64 {
	if level < 1e-15 {
		return math.Inf(-1)
	}

	return 20.0 * math.Log10(level)
}

// Meter accumulates peak statistics over successive blocks of interleaved
// float64 frames.
type Meter struct {
	channels int
	truePeak bool
	up       *limiter.Upsampler
	res      Result
}

// NewMeter creates a meter for the given channel count. With truePeak
// set, inter-sample peaks are measured as well.
func NewMeter(channels int, truePeak bool) (*Meter, error) {
	if channels <= 0 {
		return nil, fmt.Errorf("peak meter channels must be > 0: %d", channels)
	}

	m := &Meter{
		channels: channels,
		truePeak: truePeak,
	}

	if truePeak {
		up, err := limiter.NewUpsampler(channels)
		if err != nil {
			return nil, err
		}

		m.up = up
	}

	return m, nil
}

// Write folds a block of interleaved frames into the running measurement.
// Partial frames at the end of the slice are ignored.
func (m *Meter) Write(frames []float64) {
	n := len(frames) / m.channels

	for i := 0; i < n; i++ {
		for c := 0; c < m.channels; c++ {
			v := frames[i*m.channels+c]

			a := math.Abs(v)
			if a > m.res.Digital {
				m.res.Digital = a
			}

			if m.truePeak {
				p := float64(m.up.ProcessOne(c, float32(v)))
				if p > m.res.TruePeak {
					m.res.TruePeak = p
				}
			}
		}
	}

	m.res.Frames += int64(n)
}

// Result returns the measurements accumulated so far. The detector keeps
// its state; further Write calls extend the measurement.
func (m *Meter) Result() Result {
	return m.res
}

// Measure is a one-shot helper over a complete interleaved buffer.
func Measure(frames []float64, channels int, truePeak bool) (Result, error) {
	m, err := NewMeter(channels, truePeak)
	if err != nil {
		return Result{}, err
	}

	m.Write(frames)

	if truePeak {
		// Flush the detector so trailing inter-sample peaks are counted.
		m.Write(make([]float64, limiter.UpsamplerLatency*channels))
		m.res.Frames -= limiter.UpsamplerLatency
	}

	return m.Result(), nil
}
