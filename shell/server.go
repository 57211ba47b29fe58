// Package shell serves the two-button web interface.
package shell

import (
	"context"
	_ "embed"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/maastricht-university/truth-detector/history"
	"github.com/maastricht-university/truth-detector/orchestrator"
)

//go:embed static/index.html
var indexHTML []byte

const maxImageBytes = 10 << 20

type HistoryReader interface {
	Recent(ctx context.Context, n int) ([]history.Entry, error)
}

type Server struct {
	p        *orchestrator.Pipeline
	hist     HistoryReader
	log      logrus.FieldLogger
	upgrader websocket.Upgrader
}

// New builds the shell. hist may be nil when history is disabled.
func New(p *orchestrator.Pipeline, hist HistoryReader, log logrus.FieldLogger) *Server {
	return &Server{
		p:    p,
		hist: hist,
		log:  log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 64 << 10,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

type resultView struct {
	orchestrator.Outcome
	Message string `json:"message"`
}

func view(o orchestrator.Outcome) resultView { return resultView{Outcome: o, Message: o.Message()} }

func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLog())

	r.GET("/", func(c *gin.Context) {
		c.Data(http.StatusOK, "text/html; charset=utf-8", indexHTML)
	})
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	{
		api.POST("/voice", s.handleVoice)
		api.POST("/face/image", s.handleFaceImage)
		api.GET("/history", s.handleHistory)
	}
	r.GET("/ws/face", s.handleFaceWS)
	return r
}

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  c.Writer.Status(),
			"elapsed": time.Since(start).String(),
		}).Debug("request")
	}
}

// acquire answers 409 when a session is already running.
func (s *Server) acquire(c *gin.Context) (func(), bool) {
	release, err := s.p.Acquire()
	if errors.Is(err, orchestrator.ErrBusy) {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return nil, false
	}
	return release, true
}

func (s *Server) handleVoice(c *gin.Context) {
	release, ok := s.acquire(c)
	if !ok {
		return
	}
	defer release()

	out := s.p.RunVoice(c.Request.Context(), orchestrator.Hooks{})
	c.JSON(http.StatusOK, view(out))
}

func (s *Server) handleFaceImage(c *gin.Context) {
	fh, err := c.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "image file is required"})
		return
	}
	if fh.Size > maxImageBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "image too large"})
		return
	}
	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	defer f.Close()
	img, err := io.ReadAll(io.LimitReader(f, maxImageBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	release, ok := s.acquire(c)
	if !ok {
		return
	}
	defer release()

	c.JSON(http.StatusOK, view(s.p.AnalyzeFrame(c.Request.Context(), img)))
}

func (s *Server) handleHistory(c *gin.Context) {
	if s.hist == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "history is disabled"})
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit <= 0 || limit > 500 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 500"})
		return
	}
	entries, err := s.hist.Recent(c.Request.Context(), limit)
	if err != nil {
		s.log.WithError(err).Error("list history")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list history"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

// Run serves until ctx is done.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		s.log.WithField("addr", addr).Info("http server listening")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
