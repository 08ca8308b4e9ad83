// Package limiter provides a look-ahead digital peak limiter for
// multi-channel interleaved float32 audio streams.
//
// Included components:
//   - Limiter: The limiter engine. A dual-timescale peak detector coupled
//     to a look-ahead gain envelope through sliding-window minimum
//     filters. Holds output samples at or below the configured threshold
//     on the digital-peak path, apart from envelope-smoothing transients
//     that can exceed it by a few parts in 1e5, with a fixed, reported
//     latency.
//   - Upsampler: 4x polyphase true-peak detector used to estimate
//     inter-sample peaks. Detection only; it never alters the signal
//     path.
//
// The process path is allocation-free and lock-free, intended to run on a
// real-time audio thread. Configuration setters must be called from the
// same goroutine as Process, between blocks.
package limiter
