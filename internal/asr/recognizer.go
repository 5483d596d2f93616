package asr

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/skypro1111/micasr/internal/ctc"
	"github.com/skypro1111/micasr/internal/features"
	"github.com/skypro1111/micasr/internal/inference"
	"github.com/skypro1111/micasr/internal/metrics"
)

// Conditioning token ids of the acoustic model. The model is told which
// language to expect and whether to apply inverse text normalization
// through two extra input tensors.
var languageIDs = map[string]int64{
	"auto":     0,
	"zh":       3,
	"en":       4,
	"yue":      7,
	"ja":       11,
	"ko":       12,
	"nospeech": 13,
}

const (
	textnormWithITN    = 14
	textnormWithoutITN = 15
)

// Acoustic model tensor names.
const (
	tensorSpeech        = "speech"
	tensorSpeechLengths = "speech_lengths"
	tensorLanguage      = "language"
	tensorTextnorm      = "textnorm"
	outputLogits        = "ctc_logits"
)

// Tokenizer converts token ids to text. It is external to the recognizer;
// without one the recognizer emits ids only.
type Tokenizer interface {
	Decode(ids []int) string
}

// Config contains recognition parameters.
type Config struct {
	Language string // auto, zh, en, yue, ja, ko, nospeech; empty means auto
	UseITN   bool   // apply inverse text normalization in the model
	BlankID  int    // CTC blank token id
}

// Result is one recognized utterance.
type Result struct {
	UtteranceID string
	TokenIDs    []int
	Text        string // empty without a tokenizer
	Duration    time.Duration
}

// Recognizer runs the full recognition pipeline on a captured waveform.
// It is synchronous and CPU-bound apart from the single engine call.
type Recognizer struct {
	extractor *features.Extractor
	engine    inference.Engine
	tokenizer Tokenizer
	logger    *slog.Logger
	metrics   *metrics.Metrics // nil disables instrumentation

	language int64
	textnorm int64
	blankID  int
}

// New creates a recognizer. The tokenizer and metrics arguments may be nil.
func New(cfg Config, extractor *features.Extractor, engine inference.Engine,
	tokenizer Tokenizer, logger *slog.Logger, m *metrics.Metrics) (*Recognizer, error) {

	if extractor == nil {
		return nil, fmt.Errorf("feature extractor is required")
	}
	if engine == nil {
		return nil, fmt.Errorf("inference engine is required")
	}
	if cfg.BlankID < 0 {
		return nil, fmt.Errorf("blank id must be non-negative, got %d", cfg.BlankID)
	}
	if logger == nil {
		logger = slog.Default()
	}

	lang := cfg.Language
	if lang == "" {
		lang = "auto"
	}
	langID, ok := languageIDs[lang]
	if !ok {
		return nil, fmt.Errorf("unsupported language %q", cfg.Language)
	}

	textnorm := int64(textnormWithoutITN)
	if cfg.UseITN {
		textnorm = textnormWithITN
	}

	return &Recognizer{
		extractor: extractor,
		engine:    engine,
		tokenizer: tokenizer,
		logger:    logger,
		metrics:   m,
		language:  langID,
		textnorm:  textnorm,
		blankID:   cfg.BlankID,
	}, nil
}

// Recognize extracts features from the waveform, runs the acoustic model
// once and decodes the logits. A waveform too short to yield features
// returns an empty result without touching the engine. An engine failure
// produces an empty transcript and the wrapped error, never a panic.
func (r *Recognizer) Recognize(ctx context.Context, waveform []float32, sampleRate int) (Result, error) {
	if sampleRate <= 0 {
		return Result{}, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}

	res := Result{
		UtteranceID: uuid.NewString(),
		Duration:    time.Duration(len(waveform)) * time.Second / time.Duration(sampleRate),
	}

	start := time.Now()

	featStart := time.Now()
	feats := r.extractor.Extract(waveform)
	if r.metrics != nil {
		r.metrics.RecordFeatureExtraction(len(feats), time.Since(featStart).Seconds())
	}
	if len(feats) == 0 {
		r.logger.Info("Waveform too short for recognition",
			slog.String("utterance_id", res.UtteranceID),
			slog.Int("samples", len(waveform)),
		)
		return res, nil
	}

	if err := ctx.Err(); err != nil {
		return res, err
	}

	logits, err := r.runAcousticModel(feats)
	if err != nil {
		if r.metrics != nil {
			r.metrics.RecordRecognition(false, 0, time.Since(start).Seconds())
		}
		return res, fmt.Errorf("acoustic model failed: %w", err)
	}

	ids, err := ctc.GreedyDecode(logits, r.blankID)
	if err != nil {
		if r.metrics != nil {
			r.metrics.RecordRecognition(false, 0, time.Since(start).Seconds())
		}
		return res, fmt.Errorf("failed to decode logits: %w", err)
	}
	res.TokenIDs = ids

	if r.tokenizer != nil {
		res.Text = r.tokenizer.Decode(ids)
	}

	if r.metrics != nil {
		r.metrics.RecordRecognition(true, len(ids), time.Since(start).Seconds())
	}

	r.logger.Info("Utterance recognized",
		slog.String("utterance_id", res.UtteranceID),
		slog.Duration("audio_duration", res.Duration),
		slog.Int("feature_frames", len(feats)),
		slog.Int("tokens", len(ids)),
		slog.Duration("elapsed", time.Since(start)),
	)

	return res, nil
}

// runAcousticModel flattens the feature matrix into the model's input
// tensors and reshapes the returned logits to (frames, vocabulary).
func (r *Recognizer) runAcousticModel(feats [][]float32) ([][]float32, error) {
	frames := len(feats)
	dim := len(feats[0])

	speech := make([]float32, 0, frames*dim)
	for _, frame := range feats {
		speech = append(speech, frame...)
	}

	inputs := []inference.Tensor{
		{Name: tensorSpeech, Shape: []int64{1, int64(frames), int64(dim)}, Floats: speech},
		{Name: tensorSpeechLengths, Shape: []int64{1}, Ints: []int64{int64(frames)}},
		{Name: tensorLanguage, Shape: []int64{1}, Ints: []int64{r.language}},
		{Name: tensorTextnorm, Shape: []int64{1}, Ints: []int64{r.textnorm}},
	}

	outputs, err := r.engine.Run(inputs, []string{outputLogits})
	if err != nil {
		return nil, err
	}
	if len(outputs) < 1 {
		return nil, fmt.Errorf("model returned no outputs")
	}

	logits := outputs[0]
	if len(logits.Shape) != 3 || logits.Shape[0] != 1 {
		return nil, fmt.Errorf("unexpected logits shape %v", logits.Shape)
	}

	steps := int(logits.Shape[1])
	vocab := int(logits.Shape[2])
	if steps*vocab != len(logits.Floats) {
		return nil, fmt.Errorf("logits shape %v does not match %d values",
			logits.Shape, len(logits.Floats))
	}

	out := make([][]float32, steps)
	for t := 0; t < steps; t++ {
		out[t] = logits.Floats[t*vocab : (t+1)*vocab]
	}
	return out, nil
}
