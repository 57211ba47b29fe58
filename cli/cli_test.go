package cli

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/maastricht-university/truth-detector/audio"
)

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestConfigShow(t *testing.T) {
	chdir(t, t.TempDir())
	out, err := run(t, "", "config", "show", "--log-level", "error")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	for _, want := range []string{"duration_sec: 5", "sample_rate: 44100", "output_path: voice_recording.wav"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestAnalyzeWAV(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	const sr = 44100
	samples := make([]int, sr)
	for i := range samples {
		samples[i] = int(12000 * math.Sin(2*math.Pi*150*float64(i)/sr))
	}
	path := filepath.Join(dir, "calm.wav")
	if err := audio.WriteWAV(path, samples, sr); err != nil {
		t.Fatal(err)
	}

	out, err := run(t, "", "analyze-wav", path)
	if err != nil {
		t.Fatalf("analyze-wav: %v", err)
	}
	if !strings.Contains(out, "Detected Emotion: neutral/calm\nEstimated Truth Likelihood: 80.00%") {
		t.Fatalf("output:\n%s", out)
	}
}

func TestVoiceReplay(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	in := filepath.Join(dir, "silence.wav")
	if err := audio.WriteWAV(in, make([]int, 8000), 8000); err != nil {
		t.Fatal(err)
	}
	rec := filepath.Join(dir, "rec", "out.wav")
	t.Setenv("TRUTH_AUDIO_SAMPLE_RATE", "8000")

	out, err := run(t, "", "voice", "--input", in, "--output", rec, "--duration", "1")
	if err != nil {
		t.Fatalf("voice: %v", err)
	}
	if !strings.Contains(out, "Recording for 1 seconds") {
		t.Fatalf("output:\n%s", out)
	}
	if !strings.Contains(out, "Detected Emotion: unknown\nEstimated Truth Likelihood: 50.00%") {
		t.Fatalf("output:\n%s", out)
	}
	if _, err := os.Stat(rec); err != nil {
		t.Fatalf("recording not written: %v", err)
	}
}

func TestFaceCancelFromStdin(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	img := filepath.Join(dir, "still.jpg")
	if err := os.WriteFile(img, []byte{0xff, 0xd8, 0xff, 0xd9}, 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := run(t, "q\n", "face", "--image", img)
	if err != nil {
		t.Fatalf("face: %v", err)
	}
	if !strings.Contains(out, "Capture cancelled.") {
		t.Fatalf("output:\n%s", out)
	}
}

func TestInvalidConfig(t *testing.T) {
	chdir(t, t.TempDir())
	if _, err := run(t, "", "config", "show", "--backend", "magic"); err == nil {
		t.Fatal("expected error for unknown backend")
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
