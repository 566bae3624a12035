package http

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Bota93/spendesk/internal/core"
	"github.com/Bota93/spendesk/internal/log"
	"github.com/Bota93/spendesk/internal/remote"
	"github.com/Bota93/spendesk/internal/session"
)

const (
	liveWriteWait  = 10 * time.Second
	livePongWait   = 60 * time.Second
	livePingPeriod = (livePongWait * 9) / 10
	liveBuffer     = 8
)

// liveMessage is pushed to the browser whenever its session changes.
type liveMessage struct {
	Type          string `json:"type"`
	Event         string `json:"event"`
	Authenticated bool   `json:"authenticated"`
	Redirect      string `json:"redirect,omitempty"`
}

func newLiveMessage(event string, current *core.Session) liveMessage {
	msg := liveMessage{Type: "session", Event: event, Authenticated: current != nil}
	if current == nil {
		msg.Redirect = session.LoginPath
	}
	return msg
}

// handleLive upgrades to a websocket and pushes the workspace's session
// changes until the browser goes away or the workspace is closed.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request, ws *Workspace) {
	if !ownsSession(r, ws) {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.WarnContext(r.Context(), "WebSocket upgrade failed", log.FieldError, err.Error())
		return
	}
	defer conn.Close()

	logger := s.logger.WithComponent(log.ComponentLive).With(log.FieldWorkspaceID, ws.ID)
	atomic.AddInt64(&s.appMetrics.liveClients, 1)
	defer atomic.AddInt64(&s.appMetrics.liveClients, -1)

	// Session observers run on the publishing goroutine and must not block.
	updates := make(chan liveMessage, liveBuffer)
	unsubscribe := ws.Sessions.OnChange(func(change remote.AuthChange, next *core.Session) {
		select {
		case updates <- newLiveMessage(string(change), next):
		default:
			logger.Warn("Live update dropped", log.FieldEvent, string(change))
		}
	})
	defer unsubscribe()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(livePongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(livePongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	write := func(msg liveMessage) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(liveWriteWait))
		if err := conn.WriteJSON(msg); err != nil {
			logger.Debug("Live write failed", log.FieldError, err.Error())
			return false
		}
		return true
	}

	if !write(newLiveMessage("INITIAL_SESSION", ws.Sessions.Session())) {
		return
	}
	logger.Debug("Live client connected")

	ticker := time.NewTicker(livePingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg := <-updates:
			if !write(msg) {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(liveWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-ws.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "workspace closed"),
				time.Now().Add(liveWriteWait))
			return
		case <-closed:
			logger.Debug("Live client disconnected")
			return
		}
	}
}
