package roomserver

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/interviewly/voicekit/internal/wire"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512 * 1024
)

// client is one connected participant. Outbound envelopes are queued on a
// buffered channel and flushed by the write pump; a full queue drops the
// message rather than blocking the room.
type client struct {
	ws       *websocket.Conn
	clientID string
	name     string
	role     string
	log      *slog.Logger

	send chan []byte
	once sync.Once
	done chan struct{}
}

func newClient(ws *websocket.Conn, clientID, name, role string, log *slog.Logger) *client {
	return &client{
		ws:       ws,
		clientID: clientID,
		name:     name,
		role:     role,
		log:      log.With("client_id", clientID),
		send:     make(chan []byte, 128),
		done:     make(chan struct{}),
	}
}

func (c *client) sendEnvelope(env *wire.Envelope) {
	data, err := env.Marshal()
	if err != nil {
		c.log.Error("failed to marshal envelope", "error", err)
		return
	}

	select {
	case <-c.done:
	case c.send <- data:
	default:
		c.log.Warn("send buffer full, dropping message", "type", string(env.Type))
	}
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.ws.Close()
	})
}

// readPump delivers inbound binary frames (audio) to the server. Text frames
// are not part of the client-to-server protocol and are ignored.
func (c *client) readPump(s *Server, roomID string) {
	defer c.close()

	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		msgType, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.log.Error("websocket read error", "error", err)
			}
			return
		}

		if msgType == websocket.BinaryMessage {
			s.handleAudio(roomID, c, data)
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case <-c.done:
			return
		case data := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				c.log.Error("websocket write error", "error", err)
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
