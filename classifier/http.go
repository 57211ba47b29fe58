package classifier

import (
	"context"

	"github.com/maastricht-university/truth-detector/clients"
	"github.com/maastricht-university/truth-detector/config"
)

// HTTP talks to a DeepFace-compatible analysis service.
type HTTP struct {
	url    string
	client *clients.HTTP
}

func NewHTTP(svc config.Service) *HTTP {
	return &HTTP{url: svc.URL, client: clients.NewHTTP(config.DurSeconds(svc.Timeout))}
}

func (h *HTTP) Analyze(ctx context.Context, image []byte) ([]FaceRecord, error) {
	resp, err := h.client.FaceEmotion(ctx, h.url, image)
	if err != nil {
		return nil, err
	}
	if len(resp.Results) == 0 {
		return nil, ErrNoFace
	}
	out := make([]FaceRecord, 0, len(resp.Results))
	for _, r := range resp.Results {
		out = append(out, FaceRecord{DominantEmotion: r.DominantEmotion, Emotion: r.Emotion})
	}
	return out, nil
}

func (h *HTTP) Close() error { return nil }
