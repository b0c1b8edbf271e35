package newchat

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"

	"tripy/logger"
	"tripy/mq"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// wsConn adapts a gorilla connection to Conn.
type wsConn struct {
	*websocket.Conn
}

// WriteJSON bounds each write; the server's own deadlines do not apply once
// the connection is hijacked.
func (c wsConn) WriteJSON(v any) error {
	_ = c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.Conn.WriteJSON(v)
}

func (c wsConn) Close(code int, reason string) error {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = c.Conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	return c.Conn.Close()
}

// WebSocketHandler serves GET /api/trips/:id/chat. Credentials arrive in the
// first frame, not in headers, so the route is not behind the auth middleware.
func WebSocketHandler(m *Manager, shutdown context.Context) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Get().Warn("websocket upgrade", zap.Error(err))
			return
		}
		conn.SetReadLimit(16 << 10)
		// idle and auth timeouts are enforced by the session
		_ = conn.SetReadDeadline(time.Time{})
		m.Serve(shutdown, wsConn{conn}, ps.ByName("id"))
	}
}

// TripUpdated turns a trip event into a frame for that trip's sessions.
func (h *Hub) TripUpdated(ev mq.TripEvent) {
	h.Broadcast(ev.TripID, Frame{
		Type:    FrameTripUpdated,
		TripID:  ev.TripID,
		Version: ev.Version,
		Content: ev.Summary,
	})
}
