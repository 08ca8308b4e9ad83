package testutil

import (
	"math"
	"math/rand"
)

// DeterministicSine generates a deterministic sine wave.
func DeterministicSine(freqHz, sampleRate, amplitude float64, length int) []float64 {
	out := make([]float64, length)
	step := 2 * math.Pi * freqHz / sampleRate
	for i := range out {
		out[i] = amplitude * math.Sin(step*float64(i))
	}
	return out
}

// DeterministicNoise generates white noise with a fixed seed for reproducibility.
func DeterministicNoise(seed int64, amplitude float64, length int) []float64 {
	out := make([]float64, length)
	rng := rand.New(rand.NewSource(seed))
	for i := range out {
		out[i] = (rng.Float64()*2 - 1) * amplitude
	}
	return out
}

// Sine32 generates a deterministic float32 sine wave.
func Sine32(freqHz, sampleRate, amplitude float64, length int) []float32 {
	out := make([]float32, length)
	step := 2 * math.Pi * freqHz / sampleRate
	for i := range out {
		out[i] = float32(amplitude * math.Sin(step*float64(i)))
	}
	return out
}

// Noise32 generates float32 white noise with a fixed seed for reproducibility.
func Noise32(seed int64, amplitude float64, length int) []float32 {
	out := make([]float32, length)
	rng := rand.New(rand.NewSource(seed))
	for i := range out {
		out[i] = float32((rng.Float64()*2 - 1) * amplitude)
	}
	return out
}

// Impulse32 generates a float32 signal with a single spike of the given
// amplitude at pos.
func Impulse32(length, pos int, amplitude float64) []float32 {
	out := make([]float32, length)
	if pos >= 0 && pos < length {
		out[pos] = float32(amplitude)
	}
	return out
}

// Interleave32 merges per-channel float32 signals into one interleaved
// frame-major buffer. All channels must have the same length.
func Interleave32(channels ...[]float32) []float32 {
	if len(channels) == 0 {
		return nil
	}
	n := len(channels[0])
	out := make([]float32, n*len(channels))
	for i := 0; i < n; i++ {
		for c := range channels {
			out[i*len(channels)+c] = channels[c][i]
		}
	}
	return out
}

// Deinterleave32 splits an interleaved frame-major buffer into the given
// number of per-channel signals.
func Deinterleave32(buf []float32, channels int) [][]float32 {
	n := len(buf) / channels
	out := make([][]float32, channels)
	for c := range out {
		out[c] = make([]float32, n)
		for i := 0; i < n; i++ {
			out[c][i] = buf[i*channels+c]
		}
	}
	return out
}
