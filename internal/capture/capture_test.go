package capture

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"
)

// fakeDetector returns a settable probability so tests script the VAD.
type fakeDetector struct {
	prob   float32
	resets int
}

func (d *fakeDetector) Probability(frame []float32) float32 { return d.prob }
func (d *fakeDetector) Reset()                              { d.resets++ }

type fakeStream struct {
	started bool
	stopped bool
	closed  bool
}

func (f *fakeStream) Start() error { f.started = true; return nil }
func (f *fakeStream) Stop() error  { f.stopped = true; return nil }
func (f *fakeStream) Close() error { f.closed = true; return nil }

// harness drives a session with a fake stream and a manual clock.
type harness struct {
	session *Session
	stream  *fakeStream
	det     *fakeDetector
	onFrame FrameFunc
	onErr   ErrFunc
	clock   time.Time
	period  time.Duration
	frame   []float32
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()

	h := &harness{
		stream: &fakeStream{},
		det:    &fakeDetector{},
		clock:  time.Unix(1000, 0),
	}

	open := func(dc DeviceConfig, onFrame FrameFunc, onErr ErrFunc) (Stream, error) {
		h.onFrame = onFrame
		h.onErr = onErr
		return h.stream, nil
	}

	session, err := New(cfg, h.det, open, slog.Default(), nil)
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}
	session.now = func() time.Time { return h.clock }

	h.session = session
	h.period = time.Duration(session.cfg.FramesPerBuffer) * time.Second /
		time.Duration(session.cfg.SampleRate)
	h.frame = make([]float32, session.cfg.FramesPerBuffer)
	return h
}

// deliver advances the clock by one buffer period and pushes one frame with
// the given speech probability.
func (h *harness) deliver(prob float32) {
	h.clock = h.clock.Add(h.period)
	h.det.prob = prob
	h.onFrame(h.frame)
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name      string
		cfg       Config
		expectErr bool
	}{
		{name: "defaults", cfg: Config{}, expectErr: false},
		{name: "negative sample rate", cfg: Config{SampleRate: -1}, expectErr: true},
		{name: "threshold above one", cfg: Config{TriggerThreshold: 1.5}, expectErr: true},
		{name: "negative silence duration", cfg: Config{SilenceDuration: -time.Second}, expectErr: true},
		{name: "negative max record time", cfg: Config{MaxRecordTime: -time.Second}, expectErr: true},
		{name: "negative pre-roll", cfg: Config{PreRollBuffers: -1}, expectErr: true},
	}

	det := &fakeDetector{}
	open := func(DeviceConfig, FrameFunc, ErrFunc) (Stream, error) { return &fakeStream{}, nil }

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg, det, open, slog.Default(), nil)
			if tt.expectErr && err == nil {
				t.Error("Expected error but got none")
			}
			if !tt.expectErr && err != nil {
				t.Errorf("Expected no error but got: %v", err)
			}
		})
	}
}

func TestSilenceStopsRecording(t *testing.T) {
	h := newHarness(t, Config{
		SampleRate:      16000,
		FramesPerBuffer: 160, // 10ms
		SilenceDuration: 30 * time.Millisecond,
		MaxRecordTime:   time.Second,
		PreRollBuffers:  4,
	})

	if err := h.session.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if h.det.resets != 1 {
		t.Errorf("Expected detector reset at session start, got %d resets", h.det.resets)
	}

	// Idle frames fill the pre-speech ring.
	for i := 0; i < 3; i++ {
		h.deliver(0.1)
	}
	if got := h.session.State(); got != StateIdle {
		t.Fatalf("Expected idle state, got %s", got)
	}

	// Speech triggers recording.
	for i := 0; i < 5; i++ {
		h.deliver(0.9)
	}
	if got := h.session.State(); got != StateRecording {
		t.Fatalf("Expected recording state, got %s", got)
	}

	// Silence frames keep accumulating until the timeout trips strictly
	// after silence_duration: 10, 20, 30, then 40ms of silence.
	for i := 0; i < 4; i++ {
		h.deliver(0.1)
	}
	if got := h.session.State(); got != StateStopped {
		t.Fatalf("Expected stopped state, got %s", got)
	}

	res, err := h.session.Result(context.Background())
	if err != nil {
		t.Fatalf("Result failed: %v", err)
	}
	if res.Reason != StopSilence {
		t.Errorf("Expected stop reason %s, got %s", StopSilence, res.Reason)
	}

	// 3 pre-roll buffers + 5 speech + 4 silence frames of 160 samples.
	wantSamples := (3 + 5 + 4) * 160
	if len(res.Samples) != wantSamples {
		t.Errorf("Expected %d accumulated samples, got %d", wantSamples, len(res.Samples))
	}
	if res.Duration != 120*time.Millisecond {
		t.Errorf("Expected 120ms duration, got %s", res.Duration)
	}
	if !h.stream.stopped || !h.stream.closed {
		t.Error("Expected stream to be stopped and closed after Result")
	}
}

func TestMaxRecordTimeOverridesSpeech(t *testing.T) {
	h := newHarness(t, Config{
		SampleRate:      16000,
		FramesPerBuffer: 160,
		SilenceDuration: time.Second,
		MaxRecordTime:   50 * time.Millisecond,
		PreRollBuffers:  1,
	})

	if err := h.session.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Continuous speech; the hard cap must still stop the session. The
	// trigger frame starts the timer, so it trips once a later frame lands
	// strictly past 50ms: 6 more frames of 10ms.
	h.deliver(0.9)
	for i := 0; i < 6; i++ {
		if h.session.State() == StateStopped {
			t.Fatalf("Stopped early after %d frames", i)
		}
		h.deliver(0.9)
	}

	res, err := h.session.Result(context.Background())
	if err != nil {
		t.Fatalf("Result failed: %v", err)
	}
	if res.Reason != StopMaxDuration {
		t.Errorf("Expected stop reason %s, got %s", StopMaxDuration, res.Reason)
	}
	if len(res.Samples) != 7*160 {
		t.Errorf("Expected %d samples, got %d", 7*160, len(res.Samples))
	}
}

func TestExternalStopKeepsAccumulatedAudio(t *testing.T) {
	h := newHarness(t, Config{
		SampleRate:      16000,
		FramesPerBuffer: 160,
		PreRollBuffers:  1,
	})

	if err := h.session.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	h.deliver(0.9)
	h.deliver(0.9)

	h.session.Stop()
	// The flag is acknowledged at the top of the next callback; that frame
	// is not appended.
	h.deliver(0.9)

	res, err := h.session.Result(context.Background())
	if err != nil {
		t.Fatalf("Result failed: %v", err)
	}
	if res.Reason != StopRequested {
		t.Errorf("Expected stop reason %s, got %s", StopRequested, res.Reason)
	}
	if len(res.Samples) != 2*160 {
		t.Errorf("Expected %d samples kept, got %d", 2*160, len(res.Samples))
	}
}

func TestContextCancelRequestsStop(t *testing.T) {
	h := newHarness(t, Config{
		SampleRate:      16000,
		FramesPerBuffer: 160,
		PreRollBuffers:  1,
	})

	if err := h.session.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	h.deliver(0.9)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// The callback keeps running and acknowledges the stop flag.
	go func() {
		for h.session.State() != StateStopped {
			h.onFrame(h.frame)
			time.Sleep(time.Millisecond)
		}
	}()

	res, err := h.session.Result(ctx)
	if err != nil {
		t.Fatalf("Result failed: %v", err)
	}
	if res.Reason != StopRequested {
		t.Errorf("Expected stop reason %s, got %s", StopRequested, res.Reason)
	}
}

func TestDeviceErrorKeepsPartialBuffer(t *testing.T) {
	h := newHarness(t, Config{
		SampleRate:      16000,
		FramesPerBuffer: 160,
		PreRollBuffers:  1,
	})

	if err := h.session.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	h.deliver(0.9)
	h.deliver(0.9)
	h.onErr(errors.New("input overflowed"))

	res, err := h.session.Result(context.Background())
	if err == nil {
		t.Fatal("Expected device error from Result")
	}
	if res.Reason != StopDeviceError {
		t.Errorf("Expected stop reason %s, got %s", StopDeviceError, res.Reason)
	}
	if len(res.Samples) != 2*160 {
		t.Errorf("Expected partial buffer of %d samples, got %d", 2*160, len(res.Samples))
	}
}

func TestPreRollRingIsBounded(t *testing.T) {
	h := newHarness(t, Config{
		SampleRate:      16000,
		FramesPerBuffer: 160,
		PreRollBuffers:  2,
	})

	if err := h.session.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Far more idle audio than the ring holds.
	for i := 0; i < 50; i++ {
		h.deliver(0.1)
	}
	h.deliver(0.9)
	h.session.Stop()
	h.deliver(0.9)

	res, err := h.session.Result(context.Background())
	if err != nil {
		t.Fatalf("Result failed: %v", err)
	}
	// 2 ring buffers of pre-speech audio plus the trigger frame.
	if want := 3 * 160; len(res.Samples) != want {
		t.Errorf("Expected %d samples, got %d", want, len(res.Samples))
	}
}

func TestSessionIsNotReusable(t *testing.T) {
	h := newHarness(t, Config{SampleRate: 16000, FramesPerBuffer: 160})

	if err := h.session.Start(); err != nil {
		t.Fatalf("First start failed: %v", err)
	}
	if err := h.session.Start(); err == nil {
		t.Error("Expected error starting a session twice")
	}
}

func TestOpenFailureIsFatal(t *testing.T) {
	open := func(DeviceConfig, FrameFunc, ErrFunc) (Stream, error) {
		return nil, errors.New("no such device")
	}
	session, err := New(Config{}, &fakeDetector{}, open, slog.Default(), nil)
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}
	if err := session.Start(); err == nil {
		t.Error("Expected open failure to surface from Start")
	}
}
