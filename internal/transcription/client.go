package transcription

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/interviewly/voicekit/internal/shared"
	"github.com/interviewly/voicekit/internal/wire"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 512 * 1024
)

// Client is a websocket connection to the transcription service. Outbound
// audio goes out as binary frames; inbound JSON envelopes are decoded and
// dispatched to the registered callbacks from a single read loop. The client
// never reconnects on its own.
type Client struct {
	ws  *websocket.Conn
	cb  Callbacks
	log *slog.Logger

	writeMu sync.Mutex
	mu      sync.RWMutex
	open    bool
	closed  bool
}

// BuildURL derives the socket URL from the configured endpoint plus the room
// identifier and percent-encoded speaker identity.
func BuildURL(cfg Config, room, identity string) (string, error) {
	u, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return "", fmt.Errorf("parse endpoint: %w", err)
	}

	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported endpoint scheme %q", u.Scheme)
	}

	if u.Path == "" || u.Path == "/" {
		u.Path = "/ws"
	}

	q := u.Query()
	q.Set("room", room)
	q.Set("identity", identity)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Dial opens the connection and starts the read loop. OnOpen fires before
// Dial returns a connected client.
func Dial(ctx context.Context, cfg Config, room, identity string, cb Callbacks, log *slog.Logger) (*Client, error) {
	if log == nil {
		log = slog.Default()
	}

	target, err := BuildURL(cfg, room, identity)
	if err != nil {
		return nil, err
	}

	ws, _, err := websocket.DefaultDialer.DialContext(ctx, target, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", shared.ErrConnectionError, target, err)
	}

	c := &Client{
		ws:   ws,
		cb:   cb,
		log:  log.With("component", "transcription", "room", room),
		open: true,
	}

	if cb.OnOpen != nil {
		cb.OnOpen()
	}

	go c.readPump()
	return c, nil
}

func (c *Client) IsOpen() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.open
}

// SendAudio forwards one binary audio chunk. Sends against a connection that
// is not open fail with shared.ErrConnectionClosed; the caller decides
// whether that matters.
func (c *Client) SendAudio(data []byte) error {
	c.mu.RLock()
	open := c.open
	c.mu.RUnlock()
	if !open {
		return shared.ErrConnectionClosed
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.ws.WriteMessage(websocket.BinaryMessage, data); err != nil {
		return fmt.Errorf("%w: write audio: %v", shared.ErrConnectionError, err)
	}
	return nil
}

func (c *Client) readPump() {
	defer c.teardown()

	c.ws.SetReadLimit(maxMessageSize)

	for {
		msgType, data, err := c.ws.ReadMessage()
		if err != nil {
			code, reason := closeDetails(err)
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Error("websocket read error", "error", err, "code", code)
				if c.cb.OnError != nil {
					c.cb.OnError(fmt.Errorf("%w: %v", shared.ErrConnectionError, err))
				}
			}
			c.markClosed()
			if c.cb.OnClose != nil {
				c.cb.OnClose(code, reason)
			}
			return
		}

		if msgType != websocket.TextMessage {
			continue
		}

		env, err := wire.Decode(data)
		if err != nil {
			c.log.Warn("dropping malformed message", "error", err)
			continue
		}
		c.dispatch(env)
	}
}

func (c *Client) dispatch(env *wire.Envelope) {
	switch env.Type {
	case wire.MessageTypeRoomInfo:
		if c.cb.OnRoomInfo != nil {
			c.cb.OnRoomInfo(env.RoomName, env.ClientID)
		}
	case wire.MessageTypeCanOpenMic:
		if c.cb.OnMicOpen != nil {
			c.cb.OnMicOpen()
		}
	case wire.MessageTypeTranscript:
		if c.cb.OnTranscript != nil {
			c.cb.OnTranscript(wire.TranscriptLine{Speaker: env.Speaker, Text: env.Text})
		}
	case wire.MessageTypeError:
		if c.cb.OnServerError != nil {
			c.cb.OnServerError(env.Message)
		}
	case wire.MessageTypeParticipantJoin:
		if c.cb.OnParticipantJoined != nil {
			c.cb.OnParticipantJoined(env.Name)
		}
	case wire.MessageTypeParticipantLeft:
		if c.cb.OnParticipantLeft != nil {
			c.cb.OnParticipantLeft(env.Name)
		}
	default:
		c.log.Debug("ignoring unrecognized message kind", "type", string(env.Type))
	}
}

func closeDetails(err error) (int, string) {
	if ce, ok := err.(*websocket.CloseError); ok {
		return ce.Code, ce.Text
	}
	return websocket.CloseAbnormalClosure, err.Error()
}

func (c *Client) markClosed() {
	c.mu.Lock()
	c.open = false
	c.mu.Unlock()
}

func (c *Client) teardown() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.open = false
	c.mu.Unlock()
	_ = c.ws.Close()
}

// Close tears the socket down without waiting for the server. Safe to call
// more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.open = false
	c.mu.Unlock()

	c.writeMu.Lock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	_ = c.ws.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()

	return c.ws.Close()
}
