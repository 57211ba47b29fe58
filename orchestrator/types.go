package orchestrator

import (
	"errors"
	"time"

	"github.com/maastricht-university/truth-detector/scoring"
)

var ErrBusy = errors.New("another session is in progress")

type Mode string

const (
	ModeFace  Mode = "face"
	ModeVoice Mode = "voice"
)

type Kind string

const (
	KindOK               Kind = "ok"
	KindDetectionFailure Kind = "detection-failure"
	KindDeviceError      Kind = "device-error"
	KindCancelled        Kind = "cancelled"
)

type State string

const (
	Idle       State = "idle"
	Previewing State = "previewing"
	Recording  State = "recording"
	Analyzing  State = "analyzing"
	Terminated State = "terminated"
)

type Trigger int

const (
	Capture Trigger = iota
	Cancel
)

type Outcome struct {
	ID        string                 `json:"id"`
	Mode      Mode                   `json:"mode"`
	Kind      Kind                   `json:"kind"`
	Label     string                 `json:"label,omitempty"`
	Score     float64                `json:"score"`
	Features  *scoring.VoiceFeatures `json:"features,omitempty"`
	Detail    string                 `json:"detail,omitempty"`
	CreatedAt time.Time              `json:"created_at"`

	Err error `json:"-"`
}

func (o Outcome) Message() string {
	switch o.Kind {
	case KindDeviceError:
		return "Error: " + o.Detail
	case KindCancelled:
		return "Capture cancelled."
	default:
		return scoring.Message(o.Label, o.Score)
	}
}

// Hooks let a shell follow a session. Nil fields are skipped.
type Hooks struct {
	Frame func(data []byte)
	State func(State)
}

func (h Hooks) frame(b []byte) {
	if h.Frame != nil {
		h.Frame(b)
	}
}

func (h Hooks) state(s State) {
	if h.State != nil {
		h.State(s)
	}
}
