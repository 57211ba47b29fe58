package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/maastricht-university/truth-detector/classifier"
	cfg "github.com/maastricht-university/truth-detector/config"
	"github.com/maastricht-university/truth-detector/device"
	"github.com/maastricht-university/truth-detector/history"
	"github.com/maastricht-university/truth-detector/scoring"
)

type VideoOpener func(ctx context.Context) (device.VideoSource, error)

type HistorySink interface {
	Add(ctx context.Context, e history.Entry) error
}

type Pipeline struct {
	cfg      *cfg.Root
	face     classifier.FaceClassifier
	video    VideoOpener
	recorder device.Recorder
	history  HistorySink
	log      logrus.FieldLogger
	timeout  time.Duration

	busy sync.Mutex
}

type Option func(*Pipeline)

func WithVideo(open VideoOpener) Option      { return func(p *Pipeline) { p.video = open } }
func WithRecorder(r device.Recorder) Option  { return func(p *Pipeline) { p.recorder = r } }
func WithHistory(h HistorySink) Option       { return func(p *Pipeline) { p.history = h } }
func WithLogger(l logrus.FieldLogger) Option { return func(p *Pipeline) { p.log = l } }
func WithTimeout(d time.Duration) Option     { return func(p *Pipeline) { p.timeout = d } }

func NewPipeline(c *cfg.Root, face classifier.FaceClassifier, opts ...Option) *Pipeline {
	p := &Pipeline{
		cfg:      c,
		face:     face,
		recorder: device.NewFFmpegRecorder(c.Audio),
		log:      logrus.StandardLogger(),
		timeout:  c.SessionTimeout(),
	}
	p.video = func(ctx context.Context) (device.VideoSource, error) {
		return device.OpenCamera(ctx, c.Video)
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *Pipeline) Acquire() (release func(), err error) {
	if !p.busy.TryLock() {
		return nil, ErrBusy
	}
	return p.busy.Unlock, nil
}

// AnalyzeFrame classifies one image. It never fails: classifier errors,
// timeouts and panics come back as a detection failure labelled Error.
func (p *Pipeline) AnalyzeFrame(ctx context.Context, img []byte) Outcome {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	recs, err := guarded(ctx, func(ctx context.Context) ([]classifier.FaceRecord, error) {
		return p.face.Analyze(ctx, img)
	})
	if err == nil && len(recs) == 0 {
		err = classifier.ErrNoFace
	}
	if err == nil && recs[0].DominantEmotion == "" {
		err = fmt.Errorf("%w: first record has no dominant emotion", classifier.ErrMalformed)
	}
	if err != nil {
		return p.finish(ctx, Outcome{
			Mode:   ModeFace,
			Kind:   KindDetectionFailure,
			Label:  scoring.ErrorLabel,
			Score:  scoring.DefaultScore,
			Detail: err.Error(),
			Err:    err,
		})
	}

	label := recs[0].DominantEmotion
	return p.finish(ctx, Outcome{
		Mode:  ModeFace,
		Kind:  KindOK,
		Label: label,
		Score: scoring.Lookup(label),
	})
}

// guarded runs fn so that a call ignoring ctx cannot outlive it. The
// goroutine is abandoned on timeout.
func guarded[T any](ctx context.Context, fn func(context.Context) (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- result{err: fmt.Errorf("analysis panicked: %v", r)}
			}
		}()
		v, err := fn(ctx)
		ch <- result{v: v, err: err}
	}()
	select {
	case r := <-ch:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// finish stamps, logs and stores an outcome. Storage errors are logged only.
func (p *Pipeline) finish(ctx context.Context, o Outcome) Outcome {
	o.ID = uuid.NewString()
	o.CreatedAt = time.Now().UTC()
	if o.Err != nil && o.Detail == "" {
		o.Detail = o.Err.Error()
	}

	entry := p.log.WithFields(logrus.Fields{
		"session": o.ID,
		"mode":    o.Mode,
		"kind":    o.Kind,
		"label":   o.Label,
		"score":   o.Score,
	})
	switch o.Kind {
	case KindOK, KindCancelled:
		entry.Info("session finished")
	default:
		entry.WithError(o.Err).Warn("session finished with fallback")
	}

	ctx = context.WithoutCancel(ctx)
	if dir := p.cfg.Paths.Outputs; dir != "" {
		if path, err := persist(dir, o); err != nil {
			p.log.WithError(err).Error("persist outcome")
		} else {
			p.log.WithField("path", path).Debug("outcome written")
		}
	}
	if p.history != nil {
		if err := p.history.Add(ctx, toEntry(o)); err != nil {
			p.log.WithError(err).Error("record history")
		}
	}
	return o
}

func toEntry(o Outcome) history.Entry {
	e := history.Entry{
		ID:        o.ID,
		Mode:      string(o.Mode),
		Kind:      string(o.Kind),
		Label:     o.Label,
		Score:     o.Score,
		Detail:    o.Detail,
		CreatedAt: o.CreatedAt,
	}
	if o.Features != nil {
		pitch, energy := o.Features.MeanPitchHz, o.Features.MeanEnergy
		e.MeanPitchHz, e.MeanEnergy = &pitch, &energy
	}
	return e
}
