// Package wavio reads and writes WAV streams for the offline host tools.
//
// Samples cross this boundary as interleaved float64 frames normalised to
// [-1, 1); the PCM word size of the source is preserved on the output
// side. Standard input and output are supported through full in-memory
// buffering, since the WAV container needs seekable ends.
package wavio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/cwbudde/algo-vecmath"
	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// StdioName selects standard input or output instead of a file path.
const StdioName = "-"

const wavFormatPCM = 1

// Info describes the stream properties shared by reader and writer.
type Info struct {
	SampleRate int
	Channels   int
	BitDepth   int
}

// Reader decodes a WAV source block by block.
type Reader struct {
	path   string
	stdin  []byte
	file   *os.File
	dec    *wav.Decoder
	info   Info
	scale  float64
	intBuf *audio.IntBuffer
	f64Buf []float64
}

// OpenReader opens a WAV file, or standard input when path is StdioName.
// Standard input is buffered fully in memory; the container needs to be
// seekable.
func OpenReader(path string) (*Reader, error) {
	r := &Reader{path: path}

	if path == StdioName {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("read standard input: %w", err)
		}

		r.stdin = data
	}

	src, err := r.open()
	if err != nil {
		return nil, err
	}

	dec := wav.NewDecoder(src)
	if !dec.IsValidFile() {
		r.closeFile()
		return nil, fmt.Errorf("%s: not a valid WAV file", path)
	}

	dec.ReadInfo()

	if dec.WavAudioFormat != wavFormatPCM {
		r.closeFile()
		return nil, fmt.Errorf("%s: unsupported WAV format %d (PCM only)", path, dec.WavAudioFormat)
	}

	if dec.NumChans == 0 || dec.SampleRate == 0 {
		r.closeFile()
		return nil, fmt.Errorf("%s: malformed WAV header", path)
	}

	// 8-bit WAV stores unsigned samples; the signed scaling below does
	// not apply to it.
	if dec.BitDepth != 16 && dec.BitDepth != 24 && dec.BitDepth != 32 {
		r.closeFile()
		return nil, fmt.Errorf("%s: unsupported bit depth %d (16, 24 or 32)", path, dec.BitDepth)
	}

	r.dec = dec
	r.info = Info{
		SampleRate: int(dec.SampleRate),
		Channels:   int(dec.NumChans),
		BitDepth:   int(dec.BitDepth),
	}
	r.scale = float64(int64(1) << (r.info.BitDepth - 1))

	return r, nil
}

// open hands out a fresh seekable view of the source.
func (r *Reader) open() (io.ReadSeeker, error) {
	if r.path == StdioName {
		return bytes.NewReader(r.stdin), nil
	}

	f, err := os.Open(r.path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", r.path, err)
	}

	r.closeFile()
	r.file = f

	return f, nil
}

// Info returns the stream properties.
func (r *Reader) Info() Info {
	return r.info
}

// Metadata scans the source for string tags, cue points and sampler
// chunks. It runs on its own decoder pass: the metadata walk drains the
// chunk stream, so it cannot share the PCM decoder.
func (r *Reader) Metadata() (*wav.Metadata, error) {
	var src io.ReadSeeker

	if r.path == StdioName {
		src = bytes.NewReader(r.stdin)
	} else {
		f, err := os.Open(r.path)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", r.path, err)
		}
		defer f.Close()

		src = f
	}

	dec := wav.NewDecoder(src)
	dec.ReadMetadata()

	if err := dec.Err(); err != nil {
		return nil, fmt.Errorf("read metadata: %w", err)
	}

	return dec.Metadata, nil
}

// Reopen restarts decoding from the beginning of the source. Used by
// pre-passes that measure the stream before processing it.
func (r *Reader) Reopen() error {
	src, err := r.open()
	if err != nil {
		return err
	}

	dec := wav.NewDecoder(src)
	if !dec.IsValidFile() {
		return fmt.Errorf("%s: not a valid WAV file", r.path)
	}

	dec.ReadInfo()
	r.dec = dec

	return nil
}

// ReadBlock decodes up to frames frames into dst, which must hold at
// least frames*channels values. It returns the number of frames decoded;
// zero means end of stream.
func (r *Reader) ReadBlock(dst []float64, frames int) (int, error) {
	want := frames * r.info.Channels

	if r.intBuf == nil || cap(r.intBuf.Data) < want {
		r.intBuf = &audio.IntBuffer{Data: make([]int, want)}
		r.f64Buf = make([]float64, want)
	}

	r.intBuf.Data = r.intBuf.Data[:want]

	n, err := r.dec.PCMBuffer(r.intBuf)
	if err != nil && !errors.Is(err, io.EOF) {
		return 0, fmt.Errorf("decode PCM: %w", err)
	}

	if n == 0 {
		return 0, nil
	}

	for i := 0; i < n; i++ {
		r.f64Buf[i] = float64(r.intBuf.Data[i])
	}

	vecmath.ScaleBlock(dst[:n], r.f64Buf[:n], 1.0/r.scale)

	return n / r.info.Channels, nil
}

func (r *Reader) closeFile() {
	if r.file != nil {
		r.file.Close()
		r.file = nil
	}
}

// Close releases the underlying file, if any.
func (r *Reader) Close() error {
	if r.file != nil {
		err := r.file.Close()
		r.file = nil

		return err
	}

	return nil
}

// Writer encodes a WAV stream with the same properties as a source.
type Writer struct {
	file   *os.File
	stdout bool
	buf    *seekBuffer
	enc    *wav.Encoder
	info   Info
	scale  float64
	intBuf *audio.IntBuffer
	f64Buf []float64
	closed bool
}

// NewWriter creates a WAV file, or prepares standard output when path is
// StdioName. The stream is finalised by Close; a failed Close means the
// destination must not be trusted.
func NewWriter(path string, info Info) (*Writer, error) {
	w := &Writer{
		info:  info,
		scale: float64(int64(1) << (info.BitDepth - 1)),
	}

	var dst io.WriteSeeker

	if path == StdioName {
		w.stdout = true
		w.buf = &seekBuffer{}
		dst = w.buf
	} else {
		f, err := os.Create(path)
		if err != nil {
			return nil, fmt.Errorf("create %s: %w", path, err)
		}

		w.file = f
		dst = f
	}

	w.enc = wav.NewEncoder(dst, info.SampleRate, info.BitDepth, info.Channels, wavFormatPCM)

	return w, nil
}

// SetMetadata attaches source metadata to be written on Close. String
// tags, cue points and sampler chunks survive the copy; chunks the
// container library does not model are dropped.
func (w *Writer) SetMetadata(md *wav.Metadata) {
	w.enc.Metadata = md
}

// WriteBlock encodes frames frames from the interleaved src slice.
// Samples beyond full scale are clipped to the PCM word range.
func (w *Writer) WriteBlock(src []float64, frames int) error {
	n := frames * w.info.Channels

	if w.intBuf == nil || cap(w.intBuf.Data) < n {
		w.intBuf = &audio.IntBuffer{
			Format: &audio.Format{
				NumChannels: w.info.Channels,
				SampleRate:  w.info.SampleRate,
			},
			SourceBitDepth: w.info.BitDepth,
			Data:           make([]int, n),
		}
		w.f64Buf = make([]float64, n)
	}

	w.f64Buf = w.f64Buf[:n]
	w.intBuf.Data = w.intBuf.Data[:n]

	vecmath.ScaleBlock(w.f64Buf, src[:n], w.scale)

	limit := int(w.scale)

	for i, v := range w.f64Buf {
		s := int(math.Round(v))
		if s > limit-1 {
			s = limit - 1
		}

		if s < -limit {
			s = -limit
		}

		w.intBuf.Data[i] = s
	}

	if err := w.enc.Write(w.intBuf); err != nil {
		return fmt.Errorf("encode PCM: %w", err)
	}

	return nil
}

// Close finalises the WAV header and flushes buffered output.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}

	w.closed = true

	if err := w.enc.Close(); err != nil {
		return fmt.Errorf("finalise WAV: %w", err)
	}

	if w.stdout {
		if _, err := os.Stdout.Write(w.buf.data); err != nil {
			return fmt.Errorf("write standard output: %w", err)
		}

		return nil
	}

	return w.file.Close()
}

// seekBuffer is an in-memory io.WriteSeeker backing stdout targets, since
// the WAV encoder patches chunk sizes at the front on Close.
type seekBuffer struct {
	data []byte
	pos  int
}

func (b *seekBuffer) Write(p []byte) (int, error) {
	if need := b.pos + len(p); need > len(b.data) {
		if need <= cap(b.data) {
			b.data = b.data[:need]
		} else {
			grown := make([]byte, need, need*2+1024)
			copy(grown, b.data)
			b.data = grown
		}
	}

	copy(b.data[b.pos:], p)
	b.pos += len(p)

	return len(p), nil
}

func (b *seekBuffer) Seek(offset int64, whence int) (int64, error) {
	var pos int64

	switch whence {
	case io.SeekStart:
		pos = offset
	case io.SeekCurrent:
		pos = int64(b.pos) + offset
	case io.SeekEnd:
		pos = int64(len(b.data)) + offset
	default:
		return 0, fmt.Errorf("seek buffer: invalid whence %d", whence)
	}

	if pos < 0 {
		return 0, errors.New("seek buffer: negative position")
	}

	b.pos = int(pos)

	return pos, nil
}
