package device

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/maastricht-university/truth-detector/audio"
	"github.com/maastricht-university/truth-detector/config"
)

// FFmpegRecorder records from an ffmpeg audio input (alsa, pulse,
// avfoundation, dshow).
type FFmpegRecorder struct {
	Format string
	Device string
}

func NewFFmpegRecorder(a config.Audio) *FFmpegRecorder {
	return &FFmpegRecorder{Format: a.Format, Device: a.Device}
}

func (r *FFmpegRecorder) Record(ctx context.Context, d time.Duration, sampleRate int) ([]int, error) {
	secs := strconv.FormatFloat(d.Seconds(), 'f', 3, 64)
	cmd := exec.CommandContext(ctx, FFmpegBin,
		"-hide_banner", "-loglevel", "error",
		"-f", r.Format, "-i", r.Device,
		"-t", secs, "-ac", "1", "-ar", strconv.Itoa(sampleRate),
		"-f", "s16le", "-")
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: recording interrupted: %v", ErrUnavailable, ctx.Err())
		}
		var exit *exec.ExitError
		if errors.As(err, &exit) || errors.Is(err, exec.ErrNotFound) {
			return nil, fmt.Errorf("%w: microphone %s: %s", ErrUnavailable, r.Device, strings.TrimSpace(stderr.String()))
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("%w: microphone %s produced no audio", ErrUnavailable, r.Device)
	}
	return audio.PCM16(stdout.Bytes()), nil
}

// WAVFileRecorder replays an existing recording instead of the microphone.
// The clip is returned whole; its rate must match the requested one.
type WAVFileRecorder struct {
	Path string
}

func (r WAVFileRecorder) Record(ctx context.Context, _ time.Duration, sampleRate int) ([]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	samples, rate, err := audio.ReadWAV(r.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if rate != sampleRate {
		return nil, fmt.Errorf("%w: %s is %d Hz, want %d Hz", ErrUnavailable, r.Path, rate, sampleRate)
	}
	out := make([]int, len(samples))
	for i, s := range samples {
		out[i] = int(math.Round(s * math.MaxInt16))
	}
	return out, nil
}
