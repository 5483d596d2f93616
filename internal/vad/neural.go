package vad

import (
	"fmt"
	"log/slog"

	"github.com/skypro1111/micasr/internal/inference"
)

// Defaults matching the Silero VAD model contract at 16kHz.
const (
	DefaultWindowSize  = 512 // 32ms at 16kHz
	DefaultContextSize = 64
	DefaultHistorySize = 10
	DefaultNativeRate  = 16000

	// Hidden and cell state are both shaped (2, 1, 128).
	stateLayers = 2
	stateDim    = 128
	stateSize   = stateLayers * 1 * stateDim
)

// Tensor names used with the inference engine.
const (
	tensorInput = "input"
	tensorState = "state"
	tensorCell  = "cell"
	tensorRate  = "sr"
	outputProb  = "output"
	outputState = "stateN"
	outputCell  = "cellN"
)

// NeuralConfig configures the neural detector. Zero fields take defaults.
type NeuralConfig struct {
	InputRate   int // sample rate of incoming frames
	NativeRate  int // sample rate the model expects
	WindowSize  int // samples per model invocation, at NativeRate
	ContextSize int // trailing samples carried between invocations
	HistorySize int // probabilities averaged for smoothing
}

func (c *NeuralConfig) applyDefaults() {
	if c.NativeRate == 0 {
		c.NativeRate = DefaultNativeRate
	}
	if c.InputRate == 0 {
		c.InputRate = c.NativeRate
	}
	if c.WindowSize == 0 {
		c.WindowSize = DefaultWindowSize
	}
	if c.ContextSize == 0 {
		c.ContextSize = DefaultContextSize
	}
	if c.HistorySize == 0 {
		c.HistorySize = DefaultHistorySize
	}
}

// Neural is a stateful detector backed by a recurrent VAD model. It owns
// the model's hidden and cell state, the rolling context window, and the
// probability history, so sessions are independently resettable.
type Neural struct {
	cfg    NeuralConfig
	engine inference.Engine
	logger *slog.Logger

	buf     []float32 // accumulated samples at the native rate
	context []float32 // trailing ContextSize samples of the previous input
	hidden  []float32
	cell    []float32
	history []float32 // bounded FIFO of raw probabilities
}

// NewNeural creates a neural detector using the given inference engine.
func NewNeural(cfg NeuralConfig, engine inference.Engine, logger *slog.Logger) (*Neural, error) {
	cfg.applyDefaults()
	if engine == nil {
		return nil, fmt.Errorf("inference engine is required")
	}
	if cfg.InputRate <= 0 || cfg.NativeRate <= 0 {
		return nil, fmt.Errorf("sample rates must be positive, got input=%d native=%d",
			cfg.InputRate, cfg.NativeRate)
	}
	if cfg.WindowSize <= 0 || cfg.ContextSize <= 0 || cfg.HistorySize <= 0 {
		return nil, fmt.Errorf("window, context and history sizes must be positive")
	}
	if logger == nil {
		logger = slog.Default()
	}

	n := &Neural{cfg: cfg, engine: engine, logger: logger}
	n.Reset()
	return n, nil
}

// Reset zeroes the recurrent state, context, sample buffer and probability
// history. It must run at the start of every capture session; skipping it
// leaks state across sessions and corrupts results.
func (n *Neural) Reset() {
	n.buf = n.buf[:0]
	n.context = make([]float32, n.cfg.ContextSize)
	n.hidden = make([]float32, stateSize)
	n.cell = make([]float32, stateSize)
	n.history = n.history[:0]
}

// Probability feeds one device frame through the model and returns the mean
// of the recent raw probabilities. Until WindowSize samples have
// accumulated it returns 0. An inference failure degrades to 0 for that
// frame; a single silent-substitute frame cannot spuriously stop an
// utterance because stopping requires a sustained silence window.
func (n *Neural) Probability(frame []float32) float32 {
	n.buf = append(n.buf, Resample(frame, n.cfg.InputRate, n.cfg.NativeRate)...)
	if len(n.buf) < n.cfg.WindowSize {
		return 0
	}

	window := n.buf[len(n.buf)-n.cfg.WindowSize:]

	// Keep only recent samples; the buffer must stay bounded inside the
	// audio callback path.
	if len(n.buf) > 2*n.cfg.WindowSize {
		n.buf = append(n.buf[:0], window...)
		window = n.buf
	}

	x := make([]float32, 0, n.cfg.ContextSize+n.cfg.WindowSize)
	x = append(x, n.context...)
	x = append(x, window...)

	prob, err := n.invoke(x)
	if err != nil {
		n.logger.Warn("VAD inference failed, substituting silence",
			slog.String("error", err.Error()),
		)
		return 0
	}

	copy(n.context, x[len(x)-n.cfg.ContextSize:])

	n.history = append(n.history, prob)
	if len(n.history) > n.cfg.HistorySize {
		n.history = n.history[1:]
	}

	var sum float32
	for _, p := range n.history {
		sum += p
	}
	return sum / float32(len(n.history))
}

// invoke runs one model step, replacing the recurrent state on success.
func (n *Neural) invoke(x []float32) (float32, error) {
	inputs := []inference.Tensor{
		{Name: tensorInput, Shape: []int64{1, int64(len(x))}, Floats: x},
		{Name: tensorState, Shape: []int64{stateLayers, 1, stateDim}, Floats: n.hidden},
		{Name: tensorCell, Shape: []int64{stateLayers, 1, stateDim}, Floats: n.cell},
		{Name: tensorRate, Shape: []int64{1}, Ints: []int64{int64(n.cfg.NativeRate)}},
	}

	outputs, err := n.engine.Run(inputs, []string{outputProb, outputState, outputCell})
	if err != nil {
		return 0, err
	}
	if len(outputs) < 3 {
		return 0, fmt.Errorf("VAD model returned %d outputs, expected 3", len(outputs))
	}
	if len(outputs[0].Floats) < 1 {
		return 0, fmt.Errorf("VAD model returned empty probability tensor")
	}
	if len(outputs[1].Floats) != stateSize || len(outputs[2].Floats) != stateSize {
		return 0, fmt.Errorf("VAD model returned state of size %d/%d, expected %d",
			len(outputs[1].Floats), len(outputs[2].Floats), stateSize)
	}

	copy(n.hidden, outputs[1].Floats)
	copy(n.cell, outputs[2].Floats)
	return outputs[0].Floats[0], nil
}

// Resample converts a frame between sample rates using exact-ratio
// decimation when the rates divide evenly and nearest-index mapping
// otherwise. Intentionally not band-limited; swapping in a proper
// resampler would change downstream probabilities.
func Resample(frame []float32, from, to int) []float32 {
	if from == to {
		return frame
	}

	if from > to && from%to == 0 {
		step := from / to
		out := make([]float32, 0, len(frame)/step+1)
		for i := 0; i < len(frame); i += step {
			out = append(out, frame[i])
		}
		return out
	}

	ratio := float64(from) / float64(to)
	n := int(float64(len(frame)) / ratio)
	out := make([]float32, 0, n)
	for i := 0; i < n; i++ {
		src := int(float64(i) * ratio)
		if src < len(frame) {
			out = append(out, frame[src])
		}
	}
	return out
}
