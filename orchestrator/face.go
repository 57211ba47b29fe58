package orchestrator

import (
	"context"
	"time"
)

// RunFace drives one camera session:
// Idle -> Previewing -> (Capture) -> Analyzing -> Idle, or
// Previewing -> (Cancel) -> Terminated.
// A frame is pulled on every tick and handed to hooks.Frame. Capture analyses
// the most recent frame. A closed trigger channel counts as Cancel.
func (p *Pipeline) RunFace(ctx context.Context, triggers <-chan Trigger, hooks Hooks) Outcome {
	hooks.state(Idle)
	src, err := p.video(ctx)
	if err != nil {
		hooks.state(Terminated)
		return p.finish(ctx, Outcome{Mode: ModeFace, Kind: KindDeviceError, Err: err})
	}
	defer func() {
		if err := src.Close(); err != nil {
			p.log.WithError(err).Warn("release camera")
		}
	}()

	hooks.state(Previewing)
	interval := p.cfg.FrameInterval()
	if interval <= 0 {
		interval = time.Second / 30
	}
	tick := time.NewTicker(interval)
	defer tick.Stop()

	var latest []byte
	cancelled := func() Outcome {
		hooks.state(Terminated)
		return p.finish(ctx, Outcome{Mode: ModeFace, Kind: KindCancelled})
	}
	lost := func(err error) Outcome {
		hooks.state(Terminated)
		return p.finish(ctx, Outcome{Mode: ModeFace, Kind: KindDeviceError, Err: err})
	}

	for {
		select {
		case <-ctx.Done():
			return cancelled()

		case t, ok := <-triggers:
			if !ok || t == Cancel {
				return cancelled()
			}
			if latest == nil {
				f, err := src.Read(ctx)
				if err != nil {
					if ctx.Err() != nil {
						return cancelled()
					}
					return lost(err)
				}
				latest = f.Data
			}
			hooks.state(Analyzing)
			out := p.AnalyzeFrame(ctx, latest)
			hooks.state(Idle)
			return out

		case <-tick.C:
			f, err := src.Read(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return cancelled()
				}
				return lost(err)
			}
			latest = f.Data
			hooks.frame(f.Data)
		}
	}
}
