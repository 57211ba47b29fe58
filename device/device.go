// Package device provides the camera and microphone used by capture sessions.
// Live devices are driven through ffmpeg; file-backed ones replay media from
// disk for offline runs.
package device

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable marks a device that could not be opened or stopped delivering.
var ErrUnavailable = errors.New("device unavailable")

// Frame is one JPEG-encoded video frame.
type Frame struct {
	Data []byte
	At   time.Time
}

// VideoSource yields frames until closed. Close must be safe to call twice.
type VideoSource interface {
	Read(ctx context.Context) (Frame, error)
	Close() error
}

// Recorder captures a fixed-length mono clip of signed 16-bit samples.
type Recorder interface {
	Record(ctx context.Context, d time.Duration, sampleRate int) ([]int, error)
}

// FFmpegBin is the ffmpeg executable used by live devices.
var FFmpegBin = "ffmpeg"
