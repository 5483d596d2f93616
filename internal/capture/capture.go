package capture

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/skypro1111/micasr/internal/audio"
	"github.com/skypro1111/micasr/internal/metrics"
	"github.com/skypro1111/micasr/internal/vad"
)

// State is the capture session lifecycle state. Transitions are monotonic:
// Idle to Recording to Stopped, never backwards.
type State int

const (
	StateIdle State = iota
	StateRecording
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// StopReason explains why a session reached Stopped.
type StopReason int

const (
	StopSilence StopReason = iota
	StopMaxDuration
	StopRequested
	StopDeviceError
)

func (r StopReason) String() string {
	switch r {
	case StopSilence:
		return "silence"
	case StopMaxDuration:
		return "max_duration"
	case StopRequested:
		return "requested"
	case StopDeviceError:
		return "device_error"
	default:
		return fmt.Sprintf("unknown(%d)", int(r))
	}
}

// Default session parameters for 16kHz mono capture.
const (
	DefaultSampleRate       = 16000
	DefaultFramesPerBuffer  = 1600 // 100ms at 16kHz
	DefaultTriggerThreshold = 0.5
	DefaultSilenceDuration  = 1 * time.Second
	DefaultMaxRecordTime    = 30 * time.Second
	DefaultPreRollBuffers   = 10
)

// Config contains capture session parameters. Zero fields take defaults.
type Config struct {
	SampleRate       int
	FramesPerBuffer  int
	DeviceIndex      int           // negative selects the default input device
	TriggerThreshold float64       // speech probability that starts recording
	SilenceDuration  time.Duration // continuous silence that stops recording
	MaxRecordTime    time.Duration // hard cap, overrides ongoing speech
	PreRollBuffers   int           // device buffers of pre-speech audio kept while idle
}

func (c *Config) applyDefaults() {
	if c.SampleRate == 0 {
		c.SampleRate = DefaultSampleRate
	}
	if c.FramesPerBuffer == 0 {
		c.FramesPerBuffer = DefaultFramesPerBuffer
	}
	if c.TriggerThreshold == 0 {
		c.TriggerThreshold = DefaultTriggerThreshold
	}
	if c.SilenceDuration == 0 {
		c.SilenceDuration = DefaultSilenceDuration
	}
	if c.MaxRecordTime == 0 {
		c.MaxRecordTime = DefaultMaxRecordTime
	}
	if c.PreRollBuffers == 0 {
		c.PreRollBuffers = DefaultPreRollBuffers
	}
}

func (c *Config) validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %d", c.SampleRate)
	}
	if c.FramesPerBuffer <= 0 {
		return fmt.Errorf("frames per buffer must be positive, got %d", c.FramesPerBuffer)
	}
	if c.TriggerThreshold < 0 || c.TriggerThreshold > 1 {
		return fmt.Errorf("trigger threshold must be between 0 and 1, got %f", c.TriggerThreshold)
	}
	if c.SilenceDuration <= 0 {
		return fmt.Errorf("silence duration must be positive, got %s", c.SilenceDuration)
	}
	if c.MaxRecordTime <= 0 {
		return fmt.Errorf("max record time must be positive, got %s", c.MaxRecordTime)
	}
	if c.PreRollBuffers < 1 {
		return fmt.Errorf("pre-roll buffers must be at least 1, got %d", c.PreRollBuffers)
	}
	return nil
}

// Result is the finished utterance handed to the controller.
type Result struct {
	Samples    []float32
	SampleRate int
	Duration   time.Duration
	Reason     StopReason
}

// Session captures one utterance. The state machine runs inside the device
// callback under a short-held mutex; the controller only requests a stop
// via an atomic flag and reads the buffer after Stopped. Sessions are
// single-use.
type Session struct {
	cfg      Config
	detector vad.Detector
	open     Opener
	logger   *slog.Logger
	metrics  *metrics.Metrics // nil disables instrumentation

	now func() time.Time

	started       atomic.Bool
	stopRequested atomic.Bool
	stream        Stream
	done          chan struct{}

	mu         sync.Mutex
	state      State
	reason     StopReason
	preRoll    *audio.Ring
	recorded   []float32
	recordedAt time.Time // Idle to Recording transition
	lastSpeech time.Time
	deviceErr  error
}

// New creates a capture session. The metrics argument may be nil.
func New(cfg Config, detector vad.Detector, open Opener, logger *slog.Logger, m *metrics.Metrics) (*Session, error) {
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid capture config: %w", err)
	}
	if detector == nil {
		return nil, fmt.Errorf("voice activity detector is required")
	}
	if open == nil {
		return nil, fmt.Errorf("stream opener is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	preRoll, err := audio.NewRing(cfg.PreRollBuffers * cfg.FramesPerBuffer)
	if err != nil {
		return nil, fmt.Errorf("failed to create pre-speech ring: %w", err)
	}

	return &Session{
		cfg:      cfg,
		detector: detector,
		open:     open,
		logger:   logger,
		metrics:  m,
		now:      time.Now,
		done:     make(chan struct{}),
		state:    StateIdle,
		preRoll:  preRoll,
	}, nil
}

// Start opens and starts the input stream. Open or start failure is fatal
// for the session and yields no audio. Starting a session twice is an error.
func (s *Session) Start() error {
	if !s.started.CompareAndSwap(false, true) {
		return fmt.Errorf("capture session is not reusable")
	}

	// Per-session VAD state must not leak in from a previous session.
	s.detector.Reset()

	stream, err := s.open(DeviceConfig{
		SampleRate:      s.cfg.SampleRate,
		FramesPerBuffer: s.cfg.FramesPerBuffer,
		DeviceIndex:     s.cfg.DeviceIndex,
	}, s.handleFrame, s.handleDeviceError)
	if err != nil {
		return fmt.Errorf("failed to open input stream: %w", err)
	}
	s.stream = stream

	if err := stream.Start(); err != nil {
		if closeErr := stream.Close(); closeErr != nil {
			s.logger.Warn("Failed to close input stream after start error",
				slog.String("error", closeErr.Error()),
			)
		}
		return fmt.Errorf("failed to start input stream: %w", err)
	}

	if s.metrics != nil {
		s.metrics.RecordSessionStarted()
	}

	s.logger.Info("Capture session started",
		slog.Int("sample_rate", s.cfg.SampleRate),
		slog.Int("frames_per_buffer", s.cfg.FramesPerBuffer),
		slog.Float64("trigger_threshold", s.cfg.TriggerThreshold),
		slog.Duration("silence_duration", s.cfg.SilenceDuration),
		slog.Duration("max_record_time", s.cfg.MaxRecordTime),
	)

	return nil
}

// Stop requests an immediate stop. Already-accumulated audio is kept. The
// callback acknowledges the flag within one buffer period.
func (s *Session) Stop() {
	s.stopRequested.Store(true)
}

// Result blocks until the machine reaches Stopped, shuts the stream down
// and returns the accumulated waveform. Cancelling the context requests a
// stop and still waits for the callback to acknowledge it. On a device
// error the partial buffer is returned together with the error.
func (s *Session) Result(ctx context.Context) (Result, error) {
	select {
	case <-s.done:
	case <-ctx.Done():
		s.Stop()
		<-s.done
	}

	if s.stream != nil {
		if err := s.stream.Stop(); err != nil {
			s.logger.Warn("Failed to stop input stream", slog.String("error", err.Error()))
		}
		if err := s.stream.Close(); err != nil {
			s.logger.Warn("Failed to close input stream", slog.String("error", err.Error()))
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res := Result{
		Samples:    s.recorded,
		SampleRate: s.cfg.SampleRate,
		Duration:   time.Duration(len(s.recorded)) * time.Second / time.Duration(s.cfg.SampleRate),
		Reason:     s.reason,
	}

	s.logger.Info("Capture session finished",
		slog.String("reason", s.reason.String()),
		slog.Duration("duration", res.Duration),
		slog.Int("samples", len(res.Samples)),
	)

	if s.deviceErr != nil {
		return res, fmt.Errorf("input stream failed: %w", s.deviceErr)
	}
	return res, nil
}

// Record runs a full capture session, blocking the caller until Stopped.
func (s *Session) Record(ctx context.Context) (Result, error) {
	if err := s.Start(); err != nil {
		return Result{}, err
	}
	return s.Result(ctx)
}

// State returns the current machine state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// handleFrame is the device callback. It must stay bounded: one VAD call,
// one bounded append, no waiting on the controller.
func (s *Session) handleFrame(frame []float32) {
	if s.stopRequested.Load() {
		s.finish(StopRequested)
		return
	}

	vadStart := s.now()
	prob := s.detector.Probability(frame)
	speech := float64(prob) > s.cfg.TriggerThreshold
	now := s.now()

	if s.metrics != nil {
		s.metrics.RecordVADFrame(speech, now.Sub(vadStart).Seconds())
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateIdle:
		if !speech {
			s.preRoll.Write(frame)
			return
		}

		s.state = StateRecording
		s.recordedAt = now
		s.lastSpeech = now
		s.recorded = append(s.recorded, s.preRoll.Snapshot()...)
		s.recorded = append(s.recorded, frame...)

		s.logger.Info("Speech detected, recording",
			slog.Float64("probability", float64(prob)),
			slog.Int("pre_roll_samples", len(s.recorded)-len(frame)),
		)

	case StateRecording:
		s.recorded = append(s.recorded, frame...)
		if speech {
			s.lastSpeech = now
		}

		if now.Sub(s.recordedAt) > s.cfg.MaxRecordTime {
			s.finishLocked(StopMaxDuration)
		} else if !speech && now.Sub(s.lastSpeech) > s.cfg.SilenceDuration {
			s.finishLocked(StopSilence)
		}

	case StateStopped:
		// Frames delivered after Stopped are dropped.
	}
}

// handleDeviceError forces Stopped, keeping the partial buffer.
func (s *Session) handleDeviceError(err error) {
	s.logger.Error("Input stream error during capture", slog.String("error", err.Error()))

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deviceErr == nil {
		s.deviceErr = err
	}
	s.finishLocked(StopDeviceError)
}

func (s *Session) finish(reason StopReason) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finishLocked(reason)
}

// finishLocked transitions to Stopped exactly once. Callers hold s.mu.
func (s *Session) finishLocked(reason StopReason) {
	if s.state == StateStopped {
		return
	}
	s.state = StateStopped
	s.reason = reason

	if s.metrics != nil {
		seconds := float64(len(s.recorded)) / float64(s.cfg.SampleRate)
		s.metrics.RecordCaptureStopped(reason.String(), seconds)
	}

	close(s.done)
}
