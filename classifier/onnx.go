package classifier

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
	"golang.org/x/image/draw"

	"github.com/maastricht-university/truth-detector/config"
)

// FER+ input side length and output order.
const ferSize = 64

var ferLabels = []string{"neutral", "happy", "surprise", "sad", "angry", "disgust", "fear", "contempt"}

// ONNX runs an FER+ style model locally. The whole frame is scored, which is
// the relaxed-detection behaviour the HTTP service offers.
type ONNX struct {
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
	labels  []string

	mu sync.Mutex
}

func LoadONNX(c config.Classifier) (*ONNX, error) {
	if _, err := os.Stat(c.ModelPath); err != nil {
		return nil, fmt.Errorf("model file missing at %s: %w", c.ModelPath, err)
	}
	lib := c.LibraryPath
	if lib == "" {
		lib = sharedLibraryPath(filepath.Dir(c.ModelPath))
	}
	if lib == "" {
		return nil, errors.New("onnxruntime shared library not found; set classifier.library_path or ONNXRUNTIME_SHARED_LIBRARY_PATH")
	}
	ort.SetSharedLibraryPath(lib)
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("initialize onnxruntime: %w", err)
		}
	}

	input, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 1, ferSize, ferSize))
	if err != nil {
		return nil, fmt.Errorf("allocate input tensor: %w", err)
	}
	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(len(ferLabels))))
	if err != nil {
		input.Destroy()
		return nil, fmt.Errorf("allocate output tensor: %w", err)
	}
	session, err := ort.NewAdvancedSession(
		c.ModelPath,
		[]string{c.InputName},
		[]string{c.OutputName},
		[]ort.Value{input},
		[]ort.Value{output},
		nil,
	)
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, fmt.Errorf("create onnx session: %w", err)
	}
	return &ONNX{session: session, input: input, output: output, labels: ferLabels}, nil
}

// Analyze does not observe ctx once inference has started.
func (m *ONNX) Analyze(ctx context.Context, img []byte) ([]FaceRecord, error) {
	if m == nil || m.session == nil {
		return nil, errors.New("onnx model not initialized")
	}
	pixels, err := grayInput(img, ferSize)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	copy(m.input.GetData(), pixels)
	if err := m.session.Run(); err != nil {
		return nil, fmt.Errorf("onnx run: %w", err)
	}
	return []FaceRecord{recordFromLogits(m.output.GetData(), m.labels)}, nil
}

func (m *ONNX) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var errs []error
	if m.session != nil {
		errs = append(errs, m.session.Destroy())
		m.session = nil
	}
	if m.input != nil {
		errs = append(errs, m.input.Destroy())
		m.input = nil
	}
	if m.output != nil {
		errs = append(errs, m.output.Destroy())
		m.output = nil
	}
	return errors.Join(errs...)
}

// grayInput decodes an image and scales it to a size x size grayscale plane,
// row-major, values 0-255.
func grayInput(img []byte, size int) ([]float32, error) {
	src, _, err := image.Decode(bytes.NewReader(img))
	if err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	dst := image.NewGray(image.Rect(0, 0, size, size))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)

	out := make([]float32, size*size)
	for i, p := range dst.Pix[:size*size] {
		out[i] = float32(p)
	}
	return out, nil
}

// recordFromLogits softmaxes the logits into percentages.
func recordFromLogits(logits []float32, labels []string) FaceRecord {
	n := min(len(logits), len(labels))
	rec := FaceRecord{Emotion: make(map[string]float64, n)}
	if n == 0 {
		return rec
	}
	top := math.Inf(-1)
	for _, l := range logits[:n] {
		top = math.Max(top, float64(l))
	}
	sum := 0.0
	exps := make([]float64, n)
	for i, l := range logits[:n] {
		exps[i] = math.Exp(float64(l) - top)
		sum += exps[i]
	}
	best := 0
	for i := range exps {
		rec.Emotion[labels[i]] = 100 * exps[i] / sum
		if exps[i] > exps[best] {
			best = i
		}
	}
	rec.DominantEmotion = labels[best]
	return rec
}

// sharedLibraryPath probes the usual onnxruntime locations.
func sharedLibraryPath(modelDir string) string {
	if env := strings.TrimSpace(os.Getenv("ONNXRUNTIME_SHARED_LIBRARY_PATH")); env != "" {
		return env
	}
	names := []string{"libonnxruntime.so", "libonnxruntime.dylib", "onnxruntime.dll"}
	dirs := []string{modelDir, filepath.Join(modelDir, "lib"), ".", "/opt/homebrew/lib", "/usr/local/lib", "/usr/lib"}
	for _, dir := range dirs {
		for _, name := range names {
			candidate := filepath.Join(dir, name)
			if _, err := os.Stat(candidate); err == nil {
				return candidate
			}
		}
	}
	return ""
}
