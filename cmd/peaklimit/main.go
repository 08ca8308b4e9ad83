// Command peaklimit applies a look-ahead digital peak limiter to a WAV
// file.
//
// Usage:
//
//	peaklimit [flags] <src> <dst>
//
// Use '-' as a file name to read from standard input or write to
// standard output.
//
// Examples:
//
//	peaklimit -i 3 -t -1.2 my-music.wav my-louder-music.wav
//	cat file.wav | peaklimit -v - output.wav
//	peaklimit -a -p -t -1 album.wav normalised.wav
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/cwbudde/algo-peaklimit/dsp/limiter"
	"github.com/cwbudde/algo-peaklimit/internal/wavio"
	"github.com/cwbudde/algo-peaklimit/measure/peak"
)

const version = "0.1.0"

const blockSize = 4096

const (
	minInputGainDB = -10.0
	maxInputGainDB = 30.0
	minThresholdDB = -10.0
	maxThresholdDB = 0.0
	minReleaseMs   = 1.0
	maxReleaseMs   = 1000.0
)

// countFlag counts repeated occurrences of a boolean flag, so -v -v
// raises the verbosity level.
type countFlag int

func (c *countFlag) String() string { return strconv.Itoa(int(*c)) }

func (c *countFlag) Set(string) error {
	*c++
	return nil
}

func (c *countFlag) IsBoolFlag() bool { return true }

type options struct {
	inputGain float64
	threshold float64
	releaseMs float64
	truePeak  bool
	autoGain  bool
	verbose   countFlag
	srcPath   string
	dstPath   string
}

func main() {
	opt, err := parseArgs(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v. See --help for usage information.\n", err)
		os.Exit(1)
	}

	if err := run(opt); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func parseArgs(args []string) (*options, error) {
	opt := &options{}

	fs := flag.NewFlagSet("peaklimit", flag.ExitOnError)

	fs.Float64Var(&opt.inputGain, "i", 0, "input gain in dB")
	fs.Float64Var(&opt.inputGain, "input-gain", 0, "input gain in dB")
	fs.Float64Var(&opt.threshold, "t", -1, "threshold in dBFS (dBTP with -p)")
	fs.Float64Var(&opt.threshold, "threshold", -1, "threshold in dBFS (dBTP with -p)")
	fs.Float64Var(&opt.releaseMs, "r", 50, "release time in ms")
	fs.Float64Var(&opt.releaseMs, "release-time", 50, "release time in ms")
	fs.BoolVar(&opt.truePeak, "p", false, "limit true (inter-sample) peaks")
	fs.BoolVar(&opt.truePeak, "true-peak", false, "limit true (inter-sample) peaks")
	fs.BoolVar(&opt.autoGain, "a", false, "pre-pass: derive input gain from the source peak")
	fs.BoolVar(&opt.autoGain, "auto-gain", false, "pre-pass: derive input gain from the source peak")
	fs.Var(&opt.verbose, "v", "show processing information (repeat for per-block stats)")
	fs.Var(&opt.verbose, "verbose", "show processing information (repeat for per-block stats)")
	showVersion := fs.Bool("V", false, "print version information and exit")
	fs.BoolVar(showVersion, "version", false, "print version information and exit")

	fs.Usage = func() { usage(fs) }

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if *showVersion {
		fmt.Printf("peaklimit version %s\n", version)
		os.Exit(0)
	}

	if fs.NArg() < 2 {
		return nil, fmt.Errorf("missing parameter")
	}

	opt.srcPath = fs.Arg(0)
	opt.dstPath = fs.Arg(1)

	if opt.srcPath == opt.dstPath && opt.srcPath != wavio.StdioName {
		return nil, fmt.Errorf("input and output must be distinct files")
	}

	if opt.releaseMs < minReleaseMs || opt.releaseMs > maxReleaseMs {
		return nil, fmt.Errorf("release-time is out of bounds (%g <= r <= %g) [ms]", minReleaseMs, maxReleaseMs)
	}

	if opt.threshold < minThresholdDB || opt.threshold > maxThresholdDB {
		return nil, fmt.Errorf("threshold is out of bounds (%g <= t <= %g) [dBFS]", minThresholdDB, maxThresholdDB)
	}

	if opt.inputGain < minInputGainDB || opt.inputGain > maxInputGainDB {
		return nil, fmt.Errorf("input-gain is out of bounds (%g <= i <= %g) [dB]", minInputGainDB, maxInputGainDB)
	}

	return opt, nil
}

func usage(fs *flag.FlagSet) {
	fmt.Fprintf(os.Stderr, "peaklimit - an audio file digital peak limiter.\n\n")
	fmt.Fprintf(os.Stderr, "Usage: peaklimit [ OPTIONS ] <src> <dst>\n\n")
	fmt.Fprintf(os.Stderr, "Options:\n")
	fmt.Fprintf(os.Stderr, "  -i, --input-gain     input gain in dB (default 0)\n")
	fmt.Fprintf(os.Stderr, "  -t, --threshold      threshold in dBFS, dBTP with -p (default -1)\n")
	fmt.Fprintf(os.Stderr, "  -r, --release-time   release time in ms (default 50)\n")
	fmt.Fprintf(os.Stderr, "  -p, --true-peak      limit true (inter-sample) peaks\n")
	fmt.Fprintf(os.Stderr, "  -a, --auto-gain      pre-pass: derive input gain from the source peak\n")
	fmt.Fprintf(os.Stderr, "  -v, --verbose        show processing information\n")
	fmt.Fprintf(os.Stderr, "  -V, --version        print version information and exit\n")
	fmt.Fprintf(os.Stderr, "  -h, --help           display this help and exit\n\n")
	fmt.Fprintf(os.Stderr, "The target file keeps the sample rate, channel count and bit depth of\n")
	fmt.Fprintf(os.Stderr, "the source, and file metadata is copied. Input and output must be\n")
	fmt.Fprintf(os.Stderr, "distinct files; '-' selects standard input or output.\n\n")
	fmt.Fprintf(os.Stderr, "With --auto-gain the pre-pass measures the source peak and sets the\n")
	fmt.Fprintf(os.Stderr, "input gain so the output normalises to the threshold; the input-gain\n")
	fmt.Fprintf(os.Stderr, "value then acts as extra headroom below the threshold.\n")
}

func run(opt *options) error {
	src, err := wavio.OpenReader(opt.srcPath)
	if err != nil {
		return err
	}
	defer src.Close()

	info := src.Info()

	if info.Channels > limiter.MaxChannels {
		return fmt.Errorf("only up to %d channels are supported", limiter.MaxChannels)
	}

	verboseOut := os.Stdout
	if opt.dstPath == wavio.StdioName {
		verboseOut = os.Stderr
	}

	if opt.verbose > 0 {
		fmt.Fprintf(verboseOut, "Input File  : %s\n", opt.srcPath)
		fmt.Fprintf(verboseOut, "Sample Rate : %d\n", info.SampleRate)
		fmt.Fprintf(verboseOut, "Channels    : %d\n", info.Channels)
	}

	inputGain := opt.inputGain

	if opt.autoGain {
		inputGain, err = autoGain(src, opt, verboseOut)
		if err != nil {
			return err
		}
	}

	dst, err := wavio.NewWriter(opt.dstPath, info)
	if err != nil {
		return err
	}

	md, err := src.Metadata()
	if err == nil && md != nil {
		dst.SetMetadata(md)
	}

	eng, err := limiter.New(float64(info.SampleRate), info.Channels)
	if err != nil {
		return err
	}

	eng.SetInputGain(inputGain)
	eng.SetThreshold(opt.threshold)
	eng.SetRelease(opt.releaseMs / 1000.0)
	eng.SetTruePeak(opt.truePeak)

	if err := process(src, dst, eng, opt, verboseOut); err != nil {
		return err
	}

	if err := dst.Close(); err != nil {
		return err
	}

	if opt.verbose > 0 {
		_, _, gmin := eng.Stats()
		fmt.Fprintf(verboseOut, "Output File     : %s\n", opt.dstPath)
		fmt.Fprintf(verboseOut, "Max-attenuation : %.2f dB\n", peak.DB(float64(gmin)))
	}

	return nil
}

// autoGain measures the source peak and derives the input gain that
// normalises the output to the threshold, less the requested headroom.
func autoGain(src *wavio.Reader, opt *options, verboseOut *os.File) (float64, error) {
	info := src.Info()

	meter, err := peak.NewMeter(info.Channels, opt.truePeak)
	if err != nil {
		return 0, err
	}

	buf := make([]float64, blockSize*info.Channels)

	for {
		n, err := src.ReadBlock(buf, blockSize)
		if err != nil {
			return 0, err
		}

		if n == 0 {
			break
		}

		meter.Write(buf[:n*info.Channels])
	}

	if opt.truePeak {
		// Flush the detector so trailing inter-sample peaks count.
		meter.Write(make([]float64, limiter.UpsamplerLatency*info.Channels))
	}

	if err := src.Reopen(); err != nil {
		return 0, err
	}

	res := meter.Result()
	level := peak.DB(res.Level())

	gain := opt.threshold - opt.inputGain - level
	if gain < minInputGainDB {
		gain = minInputGainDB
	}

	if gain > maxInputGainDB {
		gain = maxInputGainDB
	}

	if opt.verbose > 0 {
		fmt.Fprintf(verboseOut, "Source Peak : %.2f dB\n", level)
		fmt.Fprintf(verboseOut, "Auto Gain   : %.2f dB\n", gain)
	}

	return gain, nil
}

func process(src *wavio.Reader, dst *wavio.Writer, eng *limiter.Limiter, opt *options, verboseOut *os.File) error {
	info := src.Info()
	chans := info.Channels

	inpF64 := make([]float64, blockSize*chans)
	outF64 := make([]float64, blockSize*chans)
	inpF32 := make([]float32, blockSize*chans)
	outF32 := make([]float32, blockSize*chans)

	latency := eng.Latency()

	for {
		n, err := src.ReadBlock(inpF64, blockSize)
		if err != nil {
			return err
		}

		if n == 0 {
			break
		}

		for i := 0; i < n*chans; i++ {
			inpF32[i] = float32(inpF64[i])
		}

		eng.Process(inpF32[:n*chans], outF32[:n*chans])

		for i := 0; i < n*chans; i++ {
			outF64[i] = float64(outF32[i])
		}

		// Drop the first latency frames so the output aligns with the
		// input; the tail is flushed with zero input below.
		if latency > 0 {
			ns := 0
			if n > latency {
				ns = n - latency
			}

			if ns > 0 {
				if err := dst.WriteBlock(outF64[latency*chans:(latency+ns)*chans], ns); err != nil {
					return err
				}
			}

			if n >= latency {
				latency = 0
			} else {
				latency -= n
			}

			continue
		}

		if opt.verbose > 1 {
			pk, gmax, gmin := eng.Stats()
			fmt.Fprintf(verboseOut, "Level below thresh: %6.1fdB, max-gain: %4.1fdB, min-gain: %4.1fdB\n",
				peak.DB(float64(pk)), peak.DB(float64(gmax)), peak.DB(float64(gmin)))
		}

		if err := dst.WriteBlock(outF64[:n*chans], n); err != nil {
			return err
		}
	}

	// Flush the delay line.
	for i := range inpF32 {
		inpF32[i] = 0
	}

	remaining := eng.Latency()
	for remaining > 0 {
		n := remaining
		if n > blockSize {
			n = blockSize
		}

		eng.Process(inpF32[:n*chans], outF32[:n*chans])

		for i := 0; i < n*chans; i++ {
			outF64[i] = float64(outF32[i])
		}

		if err := dst.WriteBlock(outF64[:n*chans], n); err != nil {
			return err
		}

		remaining -= n
	}

	return nil
}
