// Package watch follows the server's live trace feed over WebSocket.
package watch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/xiaot623/carechat/internal/protocol"
)

// Path is the trace feed endpoint.
const Path = "/api/ws/trace"

// Message is one decoded feed message. Exactly one of the pointers is set.
type Message struct {
	Type           string
	Trace          *protocol.TraceMessage
	TurnDone       *protocol.TurnDoneMessage
	SessionDeleted *protocol.BaseMessage
	Error          *protocol.ErrorMessage
}

// Client is a connected watcher.
type Client struct {
	conn      *websocket.Conn
	sessionID string
}

// FeedURL converts an http(s) server URL into the feed's ws(s) URL.
func FeedURL(serverURL string) (string, error) {
	u, err := url.Parse(strings.TrimSuffix(serverURL, "/"))
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + Path
	return u.String(), nil
}

// Dial connects to the feed and follows sessionID, or every session when it is empty.
func Dial(ctx context.Context, serverURL, sessionID string) (*Client, error) {
	addr, err := FeedURL(serverURL)
	if err != nil {
		return nil, err
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, addr, nil)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}

	c := &Client{conn: conn}
	if err := c.hello(sessionID); err != nil {
		conn.Close()
		return nil, err
	}
	return c, nil
}

// SessionID is the session the server bound the watcher to.
func (c *Client) SessionID() string {
	return c.sessionID
}

func (c *Client) hello(sessionID string) error {
	msg := protocol.HelloMessage{
		BaseMessage: protocol.BaseMessage{
			Type:      protocol.TypeHello,
			Ts:        time.Now().UnixMilli(),
			SessionID: sessionID,
		},
		ClientMeta: map[string]string{"client": "carechat-cli"},
	}
	if err := c.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("write hello: %w", err)
	}

	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("read hello_ack: %w", err)
	}

	var base protocol.BaseMessage
	if err := json.Unmarshal(data, &base); err != nil {
		return fmt.Errorf("unmarshal hello_ack: %w", err)
	}

	if base.Type == protocol.TypeError {
		var errMsg protocol.ErrorMessage
		_ = json.Unmarshal(data, &errMsg)
		return fmt.Errorf("hello failed: %s - %s", errMsg.Code, errMsg.Message)
	}
	if base.Type != protocol.TypeHelloAck {
		return fmt.Errorf("expected hello_ack, got: %s", base.Type)
	}

	c.sessionID = base.SessionID
	return nil
}

// Run reads the feed until ctx is done or the server closes the connection.
// A normal close returns nil.
func (c *Client) Run(ctx context.Context, handle func(Message)) error {
	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		c.conn.Close()
	})
	defer stop()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}

		msg, err := Decode(data)
		if err != nil {
			continue
		}
		handle(msg)
	}
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// ErrUnknownMessage is returned by Decode for message types it does not know.
var ErrUnknownMessage = errors.New("unknown feed message")

// Decode parses one feed message.
func Decode(data []byte) (Message, error) {
	var base protocol.BaseMessage
	if err := json.Unmarshal(data, &base); err != nil {
		return Message{}, err
	}

	msg := Message{Type: base.Type}
	var target any
	switch base.Type {
	case protocol.TypeTrace:
		msg.Trace = &protocol.TraceMessage{}
		target = msg.Trace
	case protocol.TypeTurnDone:
		msg.TurnDone = &protocol.TurnDoneMessage{}
		target = msg.TurnDone
	case protocol.TypeSessionDeleted:
		msg.SessionDeleted = &protocol.BaseMessage{}
		target = msg.SessionDeleted
	case protocol.TypeError:
		msg.Error = &protocol.ErrorMessage{}
		target = msg.Error
	default:
		return Message{}, fmt.Errorf("%w: %q", ErrUnknownMessage, base.Type)
	}
	if err := json.Unmarshal(data, target); err != nil {
		return Message{}, err
	}
	return msg, nil
}
