// Package classifier wraps the facial-emotion backends behind one interface.
package classifier

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/maastricht-university/truth-detector/config"
)

// ErrNoFace is returned when a backend produced no records for an image.
var ErrNoFace = errors.New("no face analysed")

var ErrMalformed = errors.New("malformed classifier response")

// FaceRecord is one analysed face: the winning label and per-label scores.
type FaceRecord struct {
	DominantEmotion string             `json:"dominant_emotion"`
	Emotion         map[string]float64 `json:"emotion,omitempty"`
}

// FaceClassifier analyses a JPEG or PNG image. Implementations must not
// require a confidently located face.
type FaceClassifier interface {
	Analyze(ctx context.Context, image []byte) ([]FaceRecord, error)
	Close() error
}

// New builds the backend named by cfg.Classifier.Backend.
func New(cfg *config.Root, log logrus.FieldLogger) (FaceClassifier, error) {
	switch cfg.Classifier.Backend {
	case "http":
		log.WithField("url", cfg.Services.Emotion.URL).Info("using emotion service")
		return NewHTTP(cfg.Services.Emotion), nil
	case "onnx":
		log.WithField("model", cfg.Classifier.ModelPath).Info("loading onnx emotion model")
		return LoadONNX(cfg.Classifier)
	default:
		return nil, fmt.Errorf("unknown classifier backend %q", cfg.Classifier.Backend)
	}
}
