package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Audio.SampleRate != 44100 || cfg.Audio.DurationSec != 5 {
		t.Fatalf("audio = %+v", cfg.Audio)
	}
	if cfg.Audio.OutputPath != "voice_recording.wav" {
		t.Fatalf("output path = %q", cfg.Audio.OutputPath)
	}
	if cfg.RecordDuration() != 5*time.Second {
		t.Fatalf("record duration = %v", cfg.RecordDuration())
	}
	if cfg.Classifier.Backend != "http" {
		t.Fatalf("backend = %q", cfg.Classifier.Backend)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "truth.yaml")
	body := `
audio:
  duration_sec: 3
  output_path: out/clip.wav
video:
  fps: 15
history:
  enabled: true
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("TRUTH_AUDIO_SAMPLE_RATE", "16000")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Audio.DurationSec != 3 || cfg.Audio.OutputPath != "out/clip.wav" {
		t.Fatalf("file values not applied: %+v", cfg.Audio)
	}
	if cfg.Audio.SampleRate != 16000 {
		t.Fatalf("env override not applied: %d", cfg.Audio.SampleRate)
	}
	if !cfg.History.Enabled {
		t.Fatal("history.enabled not applied")
	}
	if cfg.FrameInterval() != time.Second/15 {
		t.Fatalf("frame interval = %v", cfg.FrameInterval())
	}
}

func TestLoadEnvWithoutFile(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("TRUTH_CLASSIFIER_BACKEND", "onnx")
	t.Setenv("TRUTH_CLASSIFIER_LIBRARY_PATH", "/opt/ort/libonnxruntime.so")

	c, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if c.Classifier.Backend != "onnx" {
		t.Errorf("backend = %q", c.Classifier.Backend)
	}
	if c.Classifier.LibraryPath != "/opt/ort/libonnxruntime.so" {
		t.Errorf("library path = %q", c.Classifier.LibraryPath)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing explicit config file")
	}
}

func TestValidate(t *testing.T) {
	chdir(t, t.TempDir())
	base, err := Load("")
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		mutate func(c *Root)
		want   string
	}{
		{"zero duration", func(c *Root) { c.Audio.DurationSec = 0 }, "audio.duration_sec"},
		{"negative rate", func(c *Root) { c.Audio.SampleRate = -1 }, "audio.sample_rate"},
		{"stereo", func(c *Root) { c.Audio.Channels = 2 }, "audio.channels"},
		{"no output", func(c *Root) { c.Audio.OutputPath = "" }, "audio.output_path"},
		{"unknown backend", func(c *Root) { c.Classifier.Backend = "magic" }, "classifier.backend"},
		{"onnx without model", func(c *Root) {
			c.Classifier.Backend = "onnx"
			c.Classifier.ModelPath = ""
		}, "classifier.model_path"},
		{"no timeout", func(c *Root) { c.Session.TimeoutSec = 0 }, "session.timeout_sec"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := *base
			tt.mutate(&c)
			err := c.Validate()
			if !errors.Is(err, ErrInvalid) {
				t.Fatalf("err = %v, want ErrInvalid", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("err %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestYAML(t *testing.T) {
	chdir(t, t.TempDir())
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	out, err := cfg.YAML()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(out), "output_path: voice_recording.wav") {
		t.Fatalf("yaml missing output_path:\n%s", out)
	}
}

// chdir changes the working directory for the duration of the test,
// mirroring testing.T.Chdir (Go 1.24+) for older toolchains.
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(old); err != nil {
			t.Fatal(err)
		}
	})
}
