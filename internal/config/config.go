package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete service configuration
type Config struct {
	Audio    AudioConfig    `yaml:"audio"`
	Capture  CaptureConfig  `yaml:"capture"`
	VAD      VADConfig      `yaml:"vad"`
	Features FeaturesConfig `yaml:"features"`
	Model    ModelConfig    `yaml:"model"`
	HTTP     HTTPConfig     `yaml:"http"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// AudioConfig contains input device parameters
type AudioConfig struct {
	SampleRate      int    `yaml:"sample_rate"`
	Channels        int    `yaml:"channels"`
	FramesPerBuffer int    `yaml:"frames_per_buffer"`
	DeviceIndex     int    `yaml:"device_index"` // negative selects the default device
	DumpDir         string `yaml:"dump_dir"`     // empty disables WAV dumps
}

// CaptureConfig contains capture session parameters
type CaptureConfig struct {
	TriggerThreshold float64 `yaml:"trigger_threshold"`
	SilenceDuration  float64 `yaml:"silence_duration"` // seconds
	MaxRecordTime    float64 `yaml:"max_record_time"`  // seconds
	PreRollBuffers   int     `yaml:"pre_roll_buffers"`
}

// VADConfig contains Voice Activity Detection configuration
type VADConfig struct {
	Mode        string  `yaml:"mode"`       // energy or neural
	ModelPath   string  `yaml:"model_path"` // neural mode only
	MinEnergy   float64 `yaml:"min_energy"`
	MaxEnergy   float64 `yaml:"max_energy"`
	WindowSize  int     `yaml:"window_size"`
	HistorySize int     `yaml:"history_size"`
}

// FeaturesConfig contains feature extraction parameters
type FeaturesConfig struct {
	NumMels     int     `yaml:"num_mels"`
	FrameLength int     `yaml:"frame_length"`
	FrameShift  int     `yaml:"frame_shift"`
	Preemphasis float64 `yaml:"preemphasis"`
	LFRM        int     `yaml:"lfr_m"`
	LFRN        int     `yaml:"lfr_n"`
	CMVNPath    string  `yaml:"cmvn_path"` // empty disables normalization
}

// ModelConfig contains acoustic model parameters
type ModelConfig struct {
	Path     string `yaml:"path"`
	Language string `yaml:"language"`
	UseITN   bool   `yaml:"use_itn"`
	BlankID  int    `yaml:"blank_id"`
}

// HTTPConfig contains HTTP monitoring API configuration
type HTTPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// applyDefaults fills zero fields with working defaults so a minimal config
// file is usable.
func (c *Config) applyDefaults() {
	if c.Audio.SampleRate == 0 {
		c.Audio.SampleRate = 16000
	}
	if c.Audio.Channels == 0 {
		c.Audio.Channels = 1
	}
	if c.Audio.FramesPerBuffer == 0 {
		c.Audio.FramesPerBuffer = 1600
	}

	if c.Capture.TriggerThreshold == 0 {
		c.Capture.TriggerThreshold = 0.5
	}
	if c.Capture.SilenceDuration == 0 {
		c.Capture.SilenceDuration = 1.0
	}
	if c.Capture.MaxRecordTime == 0 {
		c.Capture.MaxRecordTime = 30.0
	}
	if c.Capture.PreRollBuffers == 0 {
		c.Capture.PreRollBuffers = 10
	}

	if c.VAD.Mode == "" {
		c.VAD.Mode = "energy"
	}
	if c.VAD.MinEnergy == 0 {
		c.VAD.MinEnergy = 0.0001
	}
	if c.VAD.MaxEnergy == 0 {
		c.VAD.MaxEnergy = 0.1
	}
	if c.VAD.WindowSize == 0 {
		c.VAD.WindowSize = 512
	}
	if c.VAD.HistorySize == 0 {
		c.VAD.HistorySize = 10
	}

	if c.Features.NumMels == 0 {
		c.Features.NumMels = 80
	}
	if c.Features.FrameLength == 0 {
		c.Features.FrameLength = 400
	}
	if c.Features.FrameShift == 0 {
		c.Features.FrameShift = 160
	}
	if c.Features.Preemphasis == 0 {
		c.Features.Preemphasis = 0.97
	}
	if c.Features.LFRM == 0 {
		c.Features.LFRM = 7
	}
	if c.Features.LFRN == 0 {
		c.Features.LFRN = 6
	}

	if c.Model.Language == "" {
		c.Model.Language = "auto"
	}

	if c.HTTP.Address == "" {
		c.HTTP.Address = "127.0.0.1"
	}
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 8080
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Logging.Output == "" {
		c.Logging.Output = "stdout"
	}
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}

	if err := c.Capture.Validate(); err != nil {
		return fmt.Errorf("capture config: %w", err)
	}

	if err := c.VAD.Validate(); err != nil {
		return fmt.Errorf("vad config: %w", err)
	}

	if err := c.Features.Validate(); err != nil {
		return fmt.Errorf("features config: %w", err)
	}

	if err := c.Model.Validate(); err != nil {
		return fmt.Errorf("model config: %w", err)
	}

	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates audio configuration
func (a *AudioConfig) Validate() error {
	if a.SampleRate < 8000 {
		return fmt.Errorf("sample_rate must be at least 8000 Hz, got %d", a.SampleRate)
	}

	if a.Channels != 1 {
		return fmt.Errorf("channels must be 1 (mono), got %d", a.Channels)
	}

	if a.FramesPerBuffer < 64 {
		return fmt.Errorf("frames_per_buffer must be at least 64 samples, got %d", a.FramesPerBuffer)
	}

	return nil
}

// Validate validates capture configuration
func (c *CaptureConfig) Validate() error {
	if c.TriggerThreshold < 0 || c.TriggerThreshold > 1 {
		return fmt.Errorf("trigger_threshold must be between 0 and 1, got %f", c.TriggerThreshold)
	}

	if c.SilenceDuration <= 0 {
		return fmt.Errorf("silence_duration must be positive, got %f", c.SilenceDuration)
	}

	if c.MaxRecordTime <= c.SilenceDuration {
		return fmt.Errorf("max_record_time (%f) must be greater than silence_duration (%f)",
			c.MaxRecordTime, c.SilenceDuration)
	}

	if c.PreRollBuffers < 1 {
		return fmt.Errorf("pre_roll_buffers must be at least 1, got %d", c.PreRollBuffers)
	}

	return nil
}

// Validate validates VAD configuration
func (v *VADConfig) Validate() error {
	switch v.Mode {
	case "energy":
	case "neural":
		if v.ModelPath == "" {
			return fmt.Errorf("model_path cannot be empty in neural mode")
		}
	default:
		return fmt.Errorf("mode must be 'energy' or 'neural', got '%s'", v.Mode)
	}

	if v.MinEnergy < 0 || v.MaxEnergy <= v.MinEnergy {
		return fmt.Errorf("energy bounds must satisfy 0 <= min_energy < max_energy, got %f and %f",
			v.MinEnergy, v.MaxEnergy)
	}

	if v.WindowSize < 256 || v.WindowSize > 2048 {
		return fmt.Errorf("window_size must be between 256 and 2048 samples, got %d", v.WindowSize)
	}

	if v.HistorySize < 1 {
		return fmt.Errorf("history_size must be at least 1, got %d", v.HistorySize)
	}

	return nil
}

// Validate validates feature extraction configuration
func (f *FeaturesConfig) Validate() error {
	if f.NumMels < 1 {
		return fmt.Errorf("num_mels must be positive, got %d", f.NumMels)
	}

	if f.FrameLength < 1 {
		return fmt.Errorf("frame_length must be positive, got %d", f.FrameLength)
	}

	if f.FrameShift < 1 || f.FrameShift > f.FrameLength {
		return fmt.Errorf("frame_shift must be between 1 and frame_length (%d), got %d",
			f.FrameLength, f.FrameShift)
	}

	if f.Preemphasis < 0 || f.Preemphasis >= 1 {
		return fmt.Errorf("preemphasis must be in [0, 1), got %f", f.Preemphasis)
	}

	if f.LFRM < 1 || f.LFRN < 1 {
		return fmt.Errorf("lfr_m and lfr_n must be positive, got %d and %d", f.LFRM, f.LFRN)
	}

	return nil
}

// Validate validates acoustic model configuration
func (m *ModelConfig) Validate() error {
	if m.Path == "" {
		return fmt.Errorf("path cannot be empty")
	}

	validLanguages := map[string]bool{
		"auto": true, "zh": true, "en": true, "yue": true,
		"ja": true, "ko": true, "nospeech": true,
	}
	if !validLanguages[m.Language] {
		return fmt.Errorf("unsupported language '%s'", m.Language)
	}

	if m.BlankID < 0 {
		return fmt.Errorf("blank_id cannot be negative, got %d", m.BlankID)
	}

	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Enabled {
		if h.Port < 1 || h.Port > 65535 {
			return fmt.Errorf("port must be between 1 and 65535, got %d", h.Port)
		}

		if h.Address == "" {
			return fmt.Errorf("address cannot be empty when HTTP is enabled")
		}
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	return nil
}

// GetSilenceDuration returns the silence timeout as a time.Duration
func (c *CaptureConfig) GetSilenceDuration() time.Duration {
	return time.Duration(c.SilenceDuration * float64(time.Second))
}

// GetMaxRecordTime returns the hard record cap as a time.Duration
func (c *CaptureConfig) GetMaxRecordTime() time.Duration {
	return time.Duration(c.MaxRecordTime * float64(time.Second))
}
