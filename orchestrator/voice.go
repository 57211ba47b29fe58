package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/maastricht-university/truth-detector/audio"
	"github.com/maastricht-university/truth-detector/device"
	"github.com/maastricht-university/truth-detector/scoring"
)

// RunVoice records a fixed-length clip, writes it to audio.output_path,
// re-reads it and classifies the extracted features.
// Idle -> Recording -> Analyzing -> Idle.
func (p *Pipeline) RunVoice(ctx context.Context, hooks Hooks) Outcome {
	a := p.cfg.Audio
	dur := p.cfg.RecordDuration()

	hooks.state(Recording)
	rctx, cancel := context.WithTimeout(ctx, dur+p.timeout)
	samples, err := guarded(rctx, func(ctx context.Context) ([]int, error) {
		return p.recorder.Record(ctx, dur, a.SampleRate)
	})
	cancel()
	if err != nil {
		if !errors.Is(err, device.ErrUnavailable) {
			err = fmt.Errorf("%w: %v", device.ErrUnavailable, err)
		}
		hooks.state(Idle)
		return p.finish(ctx, Outcome{Mode: ModeVoice, Kind: KindDeviceError, Err: err})
	}
	if err := audio.WriteWAV(a.OutputPath, samples, a.SampleRate); err != nil {
		hooks.state(Idle)
		return p.finish(ctx, Outcome{Mode: ModeVoice, Kind: KindDeviceError, Err: fmt.Errorf("save recording: %w", err)})
	}
	p.log.WithField("path", a.OutputPath).Debug("recording saved")

	hooks.state(Analyzing)
	out := p.AnalyzeWAV(ctx, a.OutputPath)
	hooks.state(Idle)
	return out
}

// AnalyzeWAV extracts pitch and energy from a wav file and classifies them.
// Unreadable files and clips without voiced frames yield unknown/0.50.
func (p *Pipeline) AnalyzeWAV(ctx context.Context, path string) Outcome {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	feat, err := guarded(ctx, func(context.Context) (scoring.VoiceFeatures, error) {
		samples, rate, err := audio.ReadWAV(path)
		if err != nil {
			return scoring.VoiceFeatures{}, err
		}
		return audio.Extract(samples, rate)
	})
	if err != nil {
		label, score := scoring.VoiceFallback()
		return p.finish(ctx, Outcome{Mode: ModeVoice, Kind: KindDetectionFailure, Label: label, Score: score, Err: err})
	}

	label, score := feat.Classify()
	return p.finish(ctx, Outcome{Mode: ModeVoice, Kind: KindOK, Label: label, Score: score, Features: &feat})
}
