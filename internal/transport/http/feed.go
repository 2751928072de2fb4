package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/xiaot623/carechat/internal/config"
	"github.com/xiaot623/carechat/internal/hub"
	"github.com/xiaot623/carechat/internal/protocol"
)

// Feed serves the live trace feed over WebSocket.
type Feed struct {
	cfg      *config.ServerConfig
	hub      *hub.Hub
	upgrader websocket.Upgrader
	log      zerolog.Logger
}

// NewFeed creates a new trace feed server.
func NewFeed(cfg *config.ServerConfig, h *hub.Hub, logger zerolog.Logger) *Feed {
	return &Feed{
		cfg: cfg,
		hub: h,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		log: logger.With().Str("component", "feed").Logger(),
	}
}

// RegisterRoutes registers the feed route.
func (f *Feed) RegisterRoutes(e *echo.Echo) {
	e.GET("/api/ws/trace", f.HandleWebSocket)
}

// HandleWebSocket upgrades the connection and starts its pumps. The optional
// session_id query parameter binds the watcher before hello.
// GET /api/ws/trace
func (f *Feed) HandleWebSocket(c echo.Context) error {
	ws, err := f.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		f.log.Warn().Err(err).Msg("failed to upgrade websocket")
		return err
	}

	conn := f.hub.NewConnection(ws)
	conn.SessionID = c.QueryParam("session_id")
	f.hub.Register(conn)

	ws.SetReadLimit(f.cfg.MaxMessageSize)

	go f.writePump(conn)
	go f.readPump(conn)

	return nil
}

// readPump reads watcher messages until the socket closes.
func (f *Feed) readPump(conn *hub.Connection) {
	defer func() {
		f.hub.Unregister(conn)
		conn.Close()
	}()

	conn.SetReadDeadline(time.Now().Add(f.cfg.ReadTimeout))
	conn.Conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(f.cfg.ReadTimeout))
		return nil
	})

	for {
		_, message, err := conn.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				f.log.Warn().Err(err).Str("conn_id", conn.ID).Msg("websocket error")
			}
			break
		}

		f.handleMessage(conn, message)
	}
}

// writePump drains the watcher's send queue and keeps the socket alive.
func (f *Feed) writePump(conn *hub.Connection) {
	ticker := time.NewTicker(f.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case message, ok := <-conn.Send:
			conn.SetWriteDeadline(time.Now().Add(f.cfg.WriteTimeout))
			if !ok {
				// Hub closed the channel
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				f.log.Debug().Err(err).Str("conn_id", conn.ID).Msg("failed to write message")
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(f.cfg.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (f *Feed) handleMessage(conn *hub.Connection, data []byte) {
	var baseMsg protocol.BaseMessage
	if err := json.Unmarshal(data, &baseMsg); err != nil {
		f.sendError(conn, protocol.ErrorCodeInvalidMessage, "invalid JSON message")
		return
	}

	switch baseMsg.Type {
	case protocol.TypeHello:
		f.handleHello(conn, data)
	default:
		if conn.SessionID == "" {
			f.sendError(conn, protocol.ErrorCodeHelloRequired, "must send hello first")
			return
		}
		f.sendError(conn, protocol.ErrorCodeInvalidMessage, "unknown message type: "+baseMsg.Type)
	}
}

// handleHello binds the watcher to a session, or to every session when none is given.
func (f *Feed) handleHello(conn *hub.Connection, data []byte) {
	var msg protocol.HelloMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		f.sendError(conn, protocol.ErrorCodeInvalidMessage, "invalid hello message")
		return
	}

	sessionID := msg.SessionID
	if sessionID == "" {
		sessionID = protocol.AllSessions
	}
	f.hub.BindSession(conn, sessionID)

	ack := protocol.HelloAckMessage{
		BaseMessage: protocol.BaseMessage{
			Type:      protocol.TypeHelloAck,
			Ts:        time.Now().UnixMilli(),
			SessionID: sessionID,
		},
	}
	if err := f.hub.SendJSON(conn, ack); err != nil {
		f.log.Warn().Err(err).Str("conn_id", conn.ID).Msg("failed to send hello_ack")
		return
	}

	f.log.Info().Str("conn_id", conn.ID).Str("session_id", sessionID).Str("client", msg.ClientMeta["client"]).Msg("watcher joined")
}

func (f *Feed) sendError(conn *hub.Connection, code, message string) {
	errMsg := protocol.ErrorMessage{
		BaseMessage: protocol.BaseMessage{
			Type:      protocol.TypeError,
			Ts:        time.Now().UnixMilli(),
			SessionID: conn.SessionID,
		},
		Code:    code,
		Message: message,
	}
	if err := f.hub.SendJSON(conn, errMsg); err != nil {
		f.log.Debug().Err(err).Str("conn_id", conn.ID).Msg("failed to send error")
	}
}
