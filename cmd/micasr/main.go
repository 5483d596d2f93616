package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gordonklaus/portaudio"

	"github.com/skypro1111/micasr/internal/asr"
	"github.com/skypro1111/micasr/internal/audio"
	"github.com/skypro1111/micasr/internal/capture"
	"github.com/skypro1111/micasr/internal/config"
	"github.com/skypro1111/micasr/internal/features"
	"github.com/skypro1111/micasr/internal/inference/ort"
	"github.com/skypro1111/micasr/internal/metrics"
	"github.com/skypro1111/micasr/internal/server"
	"github.com/skypro1111/micasr/internal/vad"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "micasr"
	serviceVersion    = "1.0.0"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	listDevices := flag.Bool("list-devices", false, "List audio input devices and exit")
	flag.Parse()

	if err := portaudio.Initialize(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize audio host: %v\n", err)
		os.Exit(1)
	}
	defer portaudio.Terminate()

	if *listDevices {
		if err := printInputDevices(); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to list devices: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger based on configuration
	logger := initLogger(cfg.Logging)

	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
	)

	logger.Info("Configuration loaded",
		slog.Int("sample_rate", cfg.Audio.SampleRate),
		slog.Int("frames_per_buffer", cfg.Audio.FramesPerBuffer),
		slog.Int("device_index", cfg.Audio.DeviceIndex),
		slog.String("vad_mode", cfg.VAD.Mode),
		slog.Float64("trigger_threshold", cfg.Capture.TriggerThreshold),
		slog.Float64("silence_duration", cfg.Capture.SilenceDuration),
		slog.Float64("max_record_time", cfg.Capture.MaxRecordTime),
		slog.String("model_path", cfg.Model.Path),
		slog.String("language", cfg.Model.Language),
		slog.String("log_level", cfg.Logging.Level),
	)

	if err := run(cfg, logger); err != nil {
		logger.Error("Service failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("Service stopped")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	// Initialize Prometheus metrics
	appMetrics := metrics.NewMetrics()

	// Initialize the inference runtime and load models
	rt, err := ort.NewRuntime(serviceName)
	if err != nil {
		return fmt.Errorf("failed to initialize inference runtime: %w", err)
	}
	defer rt.Close()

	acousticModel, err := rt.LoadModel(cfg.Model.Path)
	if err != nil {
		return fmt.Errorf("failed to load acoustic model: %w", err)
	}
	defer acousticModel.Close()
	logger.Info("Acoustic model loaded", slog.String("path", cfg.Model.Path))

	// Build the voice activity detector
	detector, vadModel, err := newDetector(cfg, rt, logger)
	if err != nil {
		return err
	}
	if vadModel != nil {
		defer vadModel.Close()
	}

	// Build the feature extractor
	extractor, err := features.New(features.Config{
		SampleRate:  cfg.Audio.SampleRate,
		FrameLength: cfg.Features.FrameLength,
		FrameShift:  cfg.Features.FrameShift,
		NumMels:     cfg.Features.NumMels,
		Preemphasis: cfg.Features.Preemphasis,
		LFRM:        cfg.Features.LFRM,
		LFRN:        cfg.Features.LFRN,
	})
	if err != nil {
		return fmt.Errorf("failed to create feature extractor: %w", err)
	}
	if cfg.Features.CMVNPath != "" {
		if err := extractor.LoadCMVN(cfg.Features.CMVNPath); err != nil {
			return fmt.Errorf("failed to load CMVN statistics: %w", err)
		}
		logger.Info("CMVN statistics loaded", slog.String("path", cfg.Features.CMVNPath))
	}

	// Build the recognizer; token-to-text conversion is external, so the
	// demo reports token ids.
	recognizer, err := asr.New(asr.Config{
		Language: cfg.Model.Language,
		UseITN:   cfg.Model.UseITN,
		BlankID:  cfg.Model.BlankID,
	}, extractor, acousticModel, nil, logger, appMetrics)
	if err != nil {
		return fmt.Errorf("failed to create recognizer: %w", err)
	}

	if cfg.Audio.DumpDir != "" {
		if err := os.MkdirAll(cfg.Audio.DumpDir, 0o755); err != nil {
			return fmt.Errorf("failed to create dump directory: %w", err)
		}
	}

	loop := &captureLoop{
		cfg:        cfg,
		logger:     logger,
		metrics:    appMetrics,
		detector:   detector,
		recognizer: recognizer,
	}

	// Start the HTTP monitoring API (if enabled)
	var httpServer *server.HTTPServer
	if cfg.HTTP.Enabled {
		httpServer = server.NewHTTPServer(cfg.HTTP, logger, cfg, loop.status, appMetrics)
		if err := httpServer.Start(); err != nil {
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
	}

	// Graceful shutdown on SIGINT/SIGTERM; also stops an active session.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loop.run(ctx)

	if httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Stop(shutdownCtx); err != nil {
			logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
		}
	}

	return nil
}

// captureLoop owns the interactive capture/recognize cycle and the counters
// exposed on the status endpoint.
type captureLoop struct {
	cfg        *config.Config
	logger     *slog.Logger
	metrics    *metrics.Metrics
	detector   vad.Detector
	recognizer *asr.Recognizer

	session    atomic.Pointer[capture.Session]
	utterances atomic.Uint64
	failures   atomic.Uint64
	lastText   atomic.Pointer[string]
}

// run processes one utterance per Enter keypress until the context ends.
func (l *captureLoop) run(ctx context.Context) {
	enter := make(chan struct{})
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			select {
			case enter <- struct{}{}:
			case <-ctx.Done():
				return
			}
		}
	}()

	fmt.Println("Press Enter to capture an utterance, Ctrl+C to quit.")

	for {
		select {
		case <-ctx.Done():
			return
		case <-enter:
		}

		if err := l.captureOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			l.failures.Add(1)
			l.logger.Error("Capture cycle failed", slog.String("error", err.Error()))
		}

		if ctx.Err() == nil {
			fmt.Println("Press Enter to capture the next utterance, Ctrl+C to quit.")
		}
	}
}

// captureOnce records a single utterance and recognizes it. Sessions are
// single-use; a fresh one is created per cycle and resets the shared
// detector on start.
func (l *captureLoop) captureOnce(ctx context.Context) error {
	session, err := capture.New(capture.Config{
		SampleRate:       l.cfg.Audio.SampleRate,
		FramesPerBuffer:  l.cfg.Audio.FramesPerBuffer,
		DeviceIndex:      l.cfg.Audio.DeviceIndex,
		TriggerThreshold: l.cfg.Capture.TriggerThreshold,
		SilenceDuration:  l.cfg.Capture.GetSilenceDuration(),
		MaxRecordTime:    l.cfg.Capture.GetMaxRecordTime(),
		PreRollBuffers:   l.cfg.Capture.PreRollBuffers,
	}, l.detector, capture.OpenInputStream, l.logger, l.metrics)
	if err != nil {
		return err
	}

	l.session.Store(session)
	defer l.session.Store(nil)

	fmt.Println("Listening...")
	res, err := session.Record(ctx)
	if err != nil {
		return err
	}
	if len(res.Samples) == 0 {
		fmt.Println("No speech captured.")
		return nil
	}

	recognized, err := l.recognizer.Recognize(ctx, res.Samples, res.SampleRate)
	if err != nil {
		return err
	}

	if l.cfg.Audio.DumpDir != "" {
		if err := l.dumpWAV(recognized.UtteranceID, res); err != nil {
			l.logger.Warn("Failed to dump utterance", slog.String("error", err.Error()))
		}
	}

	l.utterances.Add(1)
	text := fmt.Sprintf("%v", recognized.TokenIDs)
	l.lastText.Store(&text)

	fmt.Printf("Captured %.2fs (%s), token ids: %v\n",
		res.Duration.Seconds(), res.Reason, recognized.TokenIDs)
	return nil
}

func (l *captureLoop) dumpWAV(utteranceID string, res capture.Result) error {
	data, err := audio.EncodeWAV(res.Samples, res.SampleRate)
	if err != nil {
		return err
	}

	path := filepath.Join(l.cfg.Audio.DumpDir, utteranceID+".wav")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return err
	}

	l.logger.Info("Utterance dumped",
		slog.String("path", path),
		slog.Duration("duration", res.Duration),
	)
	return nil
}

// status implements server.StatusFunc.
func (l *captureLoop) status() server.Status {
	state := "idle"
	if s := l.session.Load(); s != nil {
		state = s.State().String()
	}

	st := server.Status{
		CaptureState: state,
		Utterances:   l.utterances.Load(),
		Failures:     l.failures.Load(),
	}
	if text := l.lastText.Load(); text != nil {
		st.LastText = *text
	}
	return st
}

// newDetector builds the configured VAD variant. The returned model is
// non-nil only in neural mode and must be closed by the caller.
func newDetector(cfg *config.Config, rt *ort.Runtime, logger *slog.Logger) (vad.Detector, *ort.Model, error) {
	if cfg.VAD.Mode != "neural" {
		detector, err := vad.NewEnergy(cfg.VAD.MinEnergy, cfg.VAD.MaxEnergy)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create energy detector: %w", err)
		}
		return detector, nil, nil
	}

	model, err := rt.LoadModel(cfg.VAD.ModelPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load VAD model: %w", err)
	}
	logger.Info("VAD model loaded", slog.String("path", cfg.VAD.ModelPath))

	detector, err := vad.NewNeural(vad.NeuralConfig{
		InputRate:   cfg.Audio.SampleRate,
		WindowSize:  cfg.VAD.WindowSize,
		HistorySize: cfg.VAD.HistorySize,
	}, model, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create neural detector: %w", err)
	}
	return detector, model, nil
}

func printInputDevices() error {
	devices, err := capture.ListInputDevices()
	if err != nil {
		return err
	}

	if len(devices) == 0 {
		fmt.Println("No input devices found.")
		return nil
	}

	for _, dev := range devices {
		marker := " "
		if dev.Default {
			marker = "*"
		}
		fmt.Printf("%s %3d  %-40s  %d ch  %.0f Hz\n",
			marker, dev.Index, dev.Name, dev.Channels, dev.SampleRate)
	}
	return nil
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var output *os.File
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	case "stdout", "":
		output = os.Stdout
	default:
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stdout\n", cfg.Output, err)
			output = os.Stdout
		} else {
			output = file
		}
	}

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	default:
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}
