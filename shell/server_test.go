package shell

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/maastricht-university/truth-detector/classifier"
	cfg "github.com/maastricht-university/truth-detector/config"
	"github.com/maastricht-university/truth-detector/device"
	"github.com/maastricht-university/truth-detector/history"
	"github.com/maastricht-university/truth-detector/orchestrator"
)

type stubFace struct {
	label string
	err   error
}

func (f stubFace) Analyze(ctx context.Context, img []byte) ([]classifier.FaceRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []classifier.FaceRecord{{DominantEmotion: f.label}}, nil
}

func (f stubFace) Close() error { return nil }

type stubRecorder struct{ err error }

func (r stubRecorder) Record(ctx context.Context, d time.Duration, sr int) ([]int, error) {
	if r.err != nil {
		return nil, r.err
	}
	return make([]int, sr/10), nil
}

type stillSource struct{}

func (stillSource) Read(ctx context.Context) (device.Frame, error) {
	if err := ctx.Err(); err != nil {
		return device.Frame{}, err
	}
	return device.Frame{Data: []byte{0xff, 0xd8, 0xff, 0xd9}, At: time.Now()}, nil
}

func (stillSource) Close() error { return nil }

func newTestServer(t *testing.T, face classifier.FaceClassifier, rec device.Recorder, hist HistoryReader) (*Server, *orchestrator.Pipeline) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := logrus.New()
	log.SetOutput(io.Discard)

	c := &cfg.Root{}
	c.Audio = cfg.Audio{SampleRate: 8000, Channels: 1, DurationSec: 1, OutputPath: filepath.Join(t.TempDir(), "voice_recording.wav")}
	c.Video.FPS = 50
	c.Session.TimeoutSec = 5

	opts := []orchestrator.Option{
		orchestrator.WithLogger(log),
		orchestrator.WithRecorder(rec),
		orchestrator.WithVideo(func(context.Context) (device.VideoSource, error) { return stillSource{}, nil }),
	}
	if h, ok := hist.(orchestrator.HistorySink); ok {
		opts = append(opts, orchestrator.WithHistory(h))
	}
	p := orchestrator.NewPipeline(c, face, opts...)
	return New(p, hist, log), p
}

func decode(t *testing.T, body *bytes.Buffer) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", body.String(), err)
	}
	return out
}

func TestIndexAndHealth(t *testing.T) {
	s, _ := newTestServer(t, stubFace{label: "happy"}, stubRecorder{}, nil)
	r := s.Router()

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "Analyze Face") || !strings.Contains(w.Body.String(), "Analyze Voice") {
		t.Fatalf("index: %d", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("healthz: %d", w.Code)
	}
}

func TestVoiceHandler(t *testing.T) {
	tests := []struct {
		name     string
		rec      device.Recorder
		wantKind string
		wantMsg  string
	}{
		{
			name:     "silent clip",
			rec:      stubRecorder{},
			wantKind: "detection-failure",
			wantMsg:  "Detected Emotion: unknown\nEstimated Truth Likelihood: 50.00%",
		},
		{
			name:     "no microphone",
			rec:      stubRecorder{err: errors.New("no such device")},
			wantKind: "device-error",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestServer(t, stubFace{}, tt.rec, nil)
			w := httptest.NewRecorder()
			s.Router().ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/voice", nil))
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d", w.Code)
			}
			body := decode(t, w.Body)
			if body["kind"] != tt.wantKind {
				t.Fatalf("kind = %v", body["kind"])
			}
			if tt.wantMsg != "" && body["message"] != tt.wantMsg {
				t.Fatalf("message = %q", body["message"])
			}
			if tt.wantKind == "device-error" && !strings.HasPrefix(body["message"].(string), "Error: ") {
				t.Fatalf("message = %q", body["message"])
			}
		})
	}
}

func TestBusy(t *testing.T) {
	s, p := newTestServer(t, stubFace{label: "happy"}, stubRecorder{}, nil)
	release, err := p.Acquire()
	if err != nil {
		t.Fatal(err)
	}
	defer release()

	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/voice", nil))
	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", w.Code)
	}
}

func TestFaceImageHandler(t *testing.T) {
	tests := []struct {
		name      string
		face      stubFace
		wantLabel string
		wantScore float64
	}{
		{"happy", stubFace{label: "happy"}, "happy", 0.9},
		{"classifier down", stubFace{err: errors.New("connection refused")}, "Error", 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestServer(t, tt.face, stubRecorder{}, nil)

			var buf bytes.Buffer
			mw := multipart.NewWriter(&buf)
			fw, err := mw.CreateFormFile("image", "frame.jpg")
			if err != nil {
				t.Fatal(err)
			}
			_, _ = fw.Write([]byte{0xff, 0xd8, 0xff, 0xd9})
			_ = mw.Close()

			req := httptest.NewRequest(http.MethodPost, "/api/face/image", &buf)
			req.Header.Set("Content-Type", mw.FormDataContentType())
			w := httptest.NewRecorder()
			s.Router().ServeHTTP(w, req)
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d: %s", w.Code, w.Body)
			}
			body := decode(t, w.Body)
			if body["label"] != tt.wantLabel || body["score"] != tt.wantScore {
				t.Fatalf("body = %v", body)
			}
		})
	}

	s, _ := newTestServer(t, stubFace{label: "happy"}, stubRecorder{}, nil)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/face/image", nil))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("missing image status = %d", w.Code)
	}
}

func TestHistoryHandler(t *testing.T) {
	s, _ := newTestServer(t, stubFace{}, stubRecorder{}, nil)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/history", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("disabled history status = %d", w.Code)
	}

	store, err := history.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	s, p := newTestServer(t, stubFace{label: "disgust"}, stubRecorder{}, store)
	p.AnalyzeFrame(context.Background(), []byte{1})

	w = httptest.NewRecorder()
	s.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/history?limit=5", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var body struct {
		Entries []history.Entry `json:"entries"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if len(body.Entries) != 1 || body.Entries[0].Label != "disgust" || body.Entries[0].Score != 0.1 {
		t.Fatalf("entries = %+v", body.Entries)
	}

	w = httptest.NewRecorder()
	s.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/history?limit=abc", nil))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad limit status = %d", w.Code)
	}
}

func TestFaceWebSocket(t *testing.T) {
	s, _ := newTestServer(t, stubFace{label: "surprise"}, stubRecorder{}, nil)
	srv := httptest.NewServer(s.Router())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/face"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	captured := false
	for {
		typ, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if typ == websocket.BinaryMessage {
			if !captured {
				if err := conn.WriteJSON(wsMessage{Type: "capture"}); err != nil {
					t.Fatal(err)
				}
				captured = true
			}
			continue
		}
		var msg wsMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatal(err)
		}
		if msg.Type != "result" {
			continue
		}
		if msg.Result == nil || msg.Result.Label != "surprise" {
			t.Fatalf("result = %+v", msg.Result)
		}
		want := "Detected Emotion: surprise\nEstimated Truth Likelihood: 70.00%"
		if msg.Result.Message != want {
			t.Fatalf("message = %q", msg.Result.Message)
		}
		return
	}
}

func TestFaceWebSocketBusy(t *testing.T) {
	s, p := newTestServer(t, stubFace{label: "happy"}, stubRecorder{}, nil)
	release, err := p.Acquire()
	if err != nil {
		t.Fatal(err)
	}
	defer release()

	srv := httptest.NewServer(s.Router())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/face"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var msg wsMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	if msg.Type != "error" || msg.Error != orchestrator.ErrBusy.Error() {
		t.Fatalf("message = %+v, want busy error", msg)
	}
	_, _, err = conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseTryAgainLater) {
		t.Fatalf("close = %v, want 1013", err)
	}
}
