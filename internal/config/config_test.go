package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	return path
}

const minimalConfig = `
model:
  path: models/asr.onnx
`

func TestLoadMinimalConfigAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Audio.SampleRate != 16000 {
		t.Errorf("Expected default sample rate 16000, got %d", cfg.Audio.SampleRate)
	}
	if cfg.Audio.Channels != 1 {
		t.Errorf("Expected default channels 1, got %d", cfg.Audio.Channels)
	}
	if cfg.Capture.TriggerThreshold != 0.5 {
		t.Errorf("Expected default trigger threshold 0.5, got %f", cfg.Capture.TriggerThreshold)
	}
	if cfg.VAD.Mode != "energy" {
		t.Errorf("Expected default VAD mode energy, got %s", cfg.VAD.Mode)
	}
	if cfg.Features.NumMels != 80 || cfg.Features.LFRM != 7 || cfg.Features.LFRN != 6 {
		t.Errorf("Unexpected feature defaults: mels=%d lfr_m=%d lfr_n=%d",
			cfg.Features.NumMels, cfg.Features.LFRM, cfg.Features.LFRN)
	}
	if cfg.Model.Language != "auto" {
		t.Errorf("Expected default language auto, got %s", cfg.Model.Language)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "text" {
		t.Errorf("Unexpected logging defaults: level=%s format=%s",
			cfg.Logging.Level, cfg.Logging.Format)
	}
}

func TestLoadFullConfig(t *testing.T) {
	content := `
audio:
  sample_rate: 48000
  channels: 1
  frames_per_buffer: 4800
  device_index: 2
  dump_dir: /tmp/utterances
capture:
  trigger_threshold: 0.7
  silence_duration: 0.8
  max_record_time: 15
  pre_roll_buffers: 5
vad:
  mode: neural
  model_path: models/vad.onnx
  window_size: 512
  history_size: 8
features:
  num_mels: 80
model:
  path: models/asr.onnx
  language: en
  use_itn: true
http:
  enabled: true
  address: 0.0.0.0
  port: 9090
logging:
  level: debug
  format: json
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Audio.SampleRate != 48000 || cfg.Audio.DeviceIndex != 2 {
		t.Errorf("Unexpected audio config: %+v", cfg.Audio)
	}
	if cfg.Capture.GetSilenceDuration() != 800*time.Millisecond {
		t.Errorf("Expected 800ms silence duration, got %s", cfg.Capture.GetSilenceDuration())
	}
	if cfg.Capture.GetMaxRecordTime() != 15*time.Second {
		t.Errorf("Expected 15s max record time, got %s", cfg.Capture.GetMaxRecordTime())
	}
	if cfg.VAD.Mode != "neural" || cfg.VAD.ModelPath != "models/vad.onnx" {
		t.Errorf("Unexpected VAD config: %+v", cfg.VAD)
	}
	if !cfg.Model.UseITN || cfg.Model.Language != "en" {
		t.Errorf("Unexpected model config: %+v", cfg.Model)
	}
	if !cfg.HTTP.Enabled || cfg.HTTP.Port != 9090 {
		t.Errorf("Unexpected HTTP config: %+v", cfg.HTTP)
	}
}

func TestLoadInvalidConfigs(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "missing model path",
			content: "audio:\n  sample_rate: 16000\n",
			wantErr: "model config",
		},
		{
			name:    "neural vad without model",
			content: minimalConfig + "vad:\n  mode: neural\n",
			wantErr: "model_path",
		},
		{
			name:    "unknown vad mode",
			content: minimalConfig + "vad:\n  mode: webrtc\n",
			wantErr: "mode",
		},
		{
			name:    "bad trigger threshold",
			content: minimalConfig + "capture:\n  trigger_threshold: 1.5\n",
			wantErr: "trigger_threshold",
		},
		{
			name:    "max record below silence",
			content: minimalConfig + "capture:\n  silence_duration: 10\n  max_record_time: 5\n",
			wantErr: "max_record_time",
		},
		{
			name:    "unsupported language",
			content: "model:\n  path: m.onnx\n  language: fr\n",
			wantErr: "language",
		},
		{
			name:    "frame shift above frame length",
			content: minimalConfig + "features:\n  frame_length: 100\n  frame_shift: 200\n",
			wantErr: "frame_shift",
		},
		{
			name:    "bad logging level",
			content: minimalConfig + "logging:\n  level: verbose\n",
			wantErr: "level",
		},
		{
			name:    "http enabled without valid port",
			content: minimalConfig + "http:\n  enabled: true\n  port: 99999\n",
			wantErr: "port",
		},
		{
			name:    "malformed yaml",
			content: "audio: [unclosed",
			wantErr: "parse",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			if err == nil {
				t.Fatal("Expected error but got none")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got: %v", tt.wantErr, err)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Expected error for missing config file")
	}
}
