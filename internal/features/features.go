package features

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
)

// Default extraction parameters (Kaldi/SenseVoice convention at 16kHz).
const (
	DefaultFrameLength = 400 // 25ms
	DefaultFrameShift  = 160 // 10ms
	DefaultNumMels     = 80
	DefaultPreemphasis = 0.97
	DefaultLFRM        = 7
	DefaultLFRN        = 6

	logFloor = 1e-10
)

// Config controls feature extraction parameters. Zero fields take the
// package defaults.
type Config struct {
	SampleRate  int
	FrameLength int     // window length in samples
	FrameShift  int     // hop length in samples
	NumMels     int     // number of mel bins
	Preemphasis float64 // preemphasis coefficient
	LFRM        int     // frames concatenated per LFR output frame
	LFRN        int     // LFR hop in input frames
}

func (c *Config) applyDefaults() {
	if c.FrameLength == 0 {
		c.FrameLength = DefaultFrameLength
	}
	if c.FrameShift == 0 {
		c.FrameShift = DefaultFrameShift
	}
	if c.NumMels == 0 {
		c.NumMels = DefaultNumMels
	}
	if c.Preemphasis == 0 {
		c.Preemphasis = DefaultPreemphasis
	}
	if c.LFRM == 0 {
		c.LFRM = DefaultLFRM
	}
	if c.LFRN == 0 {
		c.LFRN = DefaultLFRN
	}
}

func (c Config) validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %d", c.SampleRate)
	}
	if c.FrameLength <= 0 {
		return fmt.Errorf("frame length must be positive, got %d", c.FrameLength)
	}
	if c.FrameShift <= 0 {
		return fmt.Errorf("frame shift must be positive, got %d", c.FrameShift)
	}
	if c.NumMels <= 0 {
		return fmt.Errorf("number of mel bins must be positive, got %d", c.NumMels)
	}
	if c.LFRM <= 0 || c.LFRN <= 0 {
		return fmt.Errorf("LFR parameters must be positive, got m=%d n=%d", c.LFRM, c.LFRN)
	}
	return nil
}

// Extractor computes log-mel feature matrices from PCM waveforms.
// It is not safe for concurrent use; recognition calls are serialized
// on the control goroutine.
type Extractor struct {
	cfg     Config
	fftSize int
	window  []float64
	melBank [][]float64
	fft     *fourier.FFT

	cmvnMean []float32
	cmvnVar  []float32
}

// New creates an Extractor. Invalid configuration is a construction-time
// error; Extract itself never fails.
func New(cfg Config) (*Extractor, error) {
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid frontend config: %w", err)
	}

	fftSize := nextPowerOfTwo(cfg.FrameLength)
	return &Extractor{
		cfg:     cfg,
		fftSize: fftSize,
		window:  hammingWindow(cfg.FrameLength),
		melBank: melFilterbank(cfg.NumMels, fftSize, cfg.SampleRate),
		fft:     fourier.NewFFT(fftSize),
	}, nil
}

// Dim returns the per-frame feature dimension after LFR stacking.
func (e *Extractor) Dim() int {
	return e.cfg.NumMels * e.cfg.LFRM
}

// Extract computes the feature matrix for a waveform. A waveform shorter
// than one frame yields an empty matrix, not an error.
func (e *Extractor) Extract(waveform []float32) [][]float32 {
	if len(waveform) < e.cfg.FrameLength {
		return nil
	}

	signal := preemphasize(waveform, e.cfg.Preemphasis)
	logMel := e.computeLogMel(signal)
	stacked := applyLFR(logMel, e.cfg.LFRM, e.cfg.LFRN)
	e.applyCMVN(stacked)
	return stacked
}

// preemphasize applies y[i] = x[i] - alpha*x[i-1] from the highest index
// downward so each update reads the still-unfiltered previous sample.
// The first sample is left untouched.
func preemphasize(waveform []float32, alpha float64) []float64 {
	out := make([]float64, len(waveform))
	for i, s := range waveform {
		out[i] = float64(s)
	}
	if alpha <= 0 {
		return out
	}
	for i := len(out) - 1; i > 0; i-- {
		out[i] -= alpha * out[i-1]
	}
	return out
}

// computeLogMel frames the signal, windows and transforms each frame, and
// reduces the power spectrum through the mel filterbank with log
// compression. The final partial frame is zero-padded to full length.
func (e *Extractor) computeLogMel(signal []float64) [][]float32 {
	cfg := e.cfg
	n := len(signal)
	numFrames := (n-cfg.FrameLength+cfg.FrameShift-1)/cfg.FrameShift + 1
	halfFFT := e.fftSize/2 + 1

	features := make([][]float32, numFrames)

	frame := make([]float64, e.fftSize)
	spectrum := make([]complex128, halfFFT)
	power := make([]float64, halfFFT)

	for t := 0; t < numFrames; t++ {
		start := t * cfg.FrameShift

		for i := 0; i < cfg.FrameLength; i++ {
			if start+i < n {
				frame[i] = signal[start+i] * e.window[i]
			} else {
				frame[i] = 0
			}
		}
		for i := cfg.FrameLength; i < e.fftSize; i++ {
			frame[i] = 0
		}

		spectrum = e.fft.Coefficients(spectrum, frame)
		for k, c := range spectrum {
			re, im := real(c), imag(c)
			power[k] = re*re + im*im
		}

		mel := make([]float32, cfg.NumMels)
		for m := 0; m < cfg.NumMels; m++ {
			sum := 0.0
			for k, w := range e.melBank[m] {
				if w != 0 {
					sum += w * power[k]
				}
			}
			mel[m] = float32(math.Log(math.Max(sum, logFloor)))
		}
		features[t] = mel
	}

	return features
}

// applyLFR concatenates m consecutive frames into one wide frame, advancing
// by n input frames. When fewer than m frames remain, the last available
// frame is repeated as padding.
func applyLFR(frames [][]float32, m, n int) [][]float32 {
	if len(frames) == 0 {
		return nil
	}
	dim := len(frames[0])
	last := frames[len(frames)-1]

	var out [][]float32
	for i := 0; i < len(frames); i += n {
		wide := make([]float32, 0, dim*m)
		for j := 0; j < m; j++ {
			if i+j < len(frames) {
				wide = append(wide, frames[i+j]...)
			} else {
				wide = append(wide, last...)
			}
		}
		out = append(out, wide)
	}
	return out
}

// applyCMVN standardizes each dimension in place when statistics are set;
// otherwise frames pass through unchanged.
func (e *Extractor) applyCMVN(frames [][]float32) {
	if e.cmvnMean == nil {
		return
	}
	for _, frame := range frames {
		for d := range frame {
			frame[d] = (frame[d] - e.cmvnMean[d]) / float32(math.Sqrt(float64(e.cmvnVar[d])))
		}
	}
}

func nextPowerOfTwo(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}
