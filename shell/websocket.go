package shell

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/maastricht-university/truth-detector/orchestrator"
)

const writeWait = 10 * time.Second

// wsMessage is the JSON envelope on /ws/face. Preview frames travel as
// binary messages outside it.
type wsMessage struct {
	Type   string             `json:"type"` // capture, cancel | state, result, error
	State  orchestrator.State `json:"state,omitempty"`
	Result *resultView        `json:"result,omitempty"`
	Error  string             `json:"error,omitempty"`
}

// handleFaceWS runs one camera session per connection. A busy pipeline is
// reported in-band as an error message, since browsers hide the status of a
// refused upgrade.
func (s *Server) handleFaceWS(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.WithError(err).Warn("websocket upgrade failed")
		return
	}
	defer conn.Close()

	release, err := s.p.Acquire()
	if err != nil {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		_ = conn.WriteJSON(wsMessage{Type: "error", Error: err.Error()})
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, err.Error()), time.Now().Add(writeWait))
		return
	}
	defer release()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	triggers := make(chan orchestrator.Trigger, 1)
	go readTriggers(conn, triggers, cancel, s)

	write := func(fn func() error) {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := fn(); err != nil {
			cancel()
		}
	}
	hooks := orchestrator.Hooks{
		Frame: func(b []byte) {
			write(func() error { return conn.WriteMessage(websocket.BinaryMessage, b) })
		},
		State: func(st orchestrator.State) {
			write(func() error { return conn.WriteJSON(wsMessage{Type: "state", State: st}) })
		},
	}

	out := s.p.RunFace(ctx, triggers, hooks)
	v := view(out)
	write(func() error { return conn.WriteJSON(wsMessage{Type: "result", Result: &v}) })
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
}

func readTriggers(conn *websocket.Conn, triggers chan<- orchestrator.Trigger, cancel context.CancelFunc, s *Server) {
	defer cancel()
	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.log.WithError(err).Warn("websocket read")
			}
			return
		}
		var t orchestrator.Trigger
		switch msg.Type {
		case "capture":
			t = orchestrator.Capture
		case "cancel":
			t = orchestrator.Cancel
		default:
			s.log.WithField("type", msg.Type).Debug("unknown websocket message")
			continue
		}
		select {
		case triggers <- t:
		default:
		}
	}
}
