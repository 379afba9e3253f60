// Package roomserver is a development stand-in for the external transcription
// service: it speaks the same socket protocol the recording client expects,
// so local runs and integration tests do not need the real backend.
package roomserver

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/interviewly/voicekit/internal/auth"
	"github.com/interviewly/voicekit/internal/shared"
	"github.com/interviewly/voicekit/internal/transcript"
	"github.com/interviewly/voicekit/internal/wire"
	"github.com/labstack/echo/v4"
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type Server struct {
	registry  *registry
	presence  Presence
	engine    Engine
	store     *transcript.Store
	validator *auth.JWTValidator
	log       *slog.Logger
}

type Config struct {
	Presence Presence
	Engine   Engine
	// Store is optional; when set, broadcast transcript lines are persisted.
	Store *transcript.Store
	// Validator is optional; when set, connections must carry a valid access
	// token.
	Validator *auth.JWTValidator
	Logger    *slog.Logger
}

func NewServer(cfg Config) *Server {
	if cfg.Presence == nil {
		cfg.Presence = NewMemoryPresence()
	}
	if cfg.Engine == nil {
		cfg.Engine = NullEngine{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Server{
		registry:  newRegistry(),
		presence:  cfg.Presence,
		engine:    cfg.Engine,
		store:     cfg.Store,
		validator: cfg.Validator,
		log:       cfg.Logger.With("component", "roomserver"),
	}
}

func (s *Server) RegisterRoutes(e *echo.Echo) {
	e.GET("/ws", s.handleWebSocket)
	e.GET("/rooms/:id/participants", s.handleParticipants)
	if s.store != nil {
		e.GET("/rooms/:id/transcript", s.handleTranscript)
	}
}

func (s *Server) handleWebSocket(c echo.Context) error {
	roomID := c.QueryParam("room")
	identity := c.QueryParam("identity")
	if roomID == "" || identity == "" {
		return shared.BadRequest("missing_params", "room and identity are required")
	}

	name, role := splitIdentity(identity)

	if s.validator != nil {
		token := c.QueryParam("token")
		if token == "" {
			token = c.Request().Header.Get("Authorization")
		}
		if _, err := s.validator.Validate(token); err != nil {
			return shared.Unauthorized("invalid_token", "valid access token required")
		}
	}

	ws, err := wsUpgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.log.Error("websocket upgrade failed", "error", err)
		return err
	}

	clientID := uuid.New().String()
	cl := newClient(ws, clientID, name, role, s.log)
	rm := s.registry.getOrCreate(roomID)
	rm.add(cl)

	ctx := c.Request().Context()
	if err := s.presence.Join(ctx, roomID, Participant{
		ClientID: clientID,
		Name:     name,
		Role:     role,
		JoinedAt: time.Now(),
	}); err != nil {
		s.log.Warn("presence join failed", "error", err)
	}

	s.log.Info("participant connected", "room", roomID, "client_id", clientID, "name", name)

	go cl.writePump()

	cl.sendEnvelope(&wire.Envelope{
		Type:     wire.MessageTypeRoomInfo,
		RoomName: roomID,
		ClientID: clientID,
	})
	rm.broadcastExcept(clientID, &wire.Envelope{
		Type: wire.MessageTypeParticipantJoin,
		Name: name,
	})
	cl.sendEnvelope(&wire.Envelope{Type: wire.MessageTypeCanOpenMic})

	cl.readPump(s, roomID)

	s.registry.drop(roomID, clientID)
	if err := s.presence.Leave(context.Background(), roomID, clientID); err != nil {
		s.log.Warn("presence leave failed", "error", err)
	}
	if rm, ok := s.registry.get(roomID); ok {
		rm.broadcast(&wire.Envelope{
			Type: wire.MessageTypeParticipantLeft,
			Name: name,
		})
	}

	s.log.Info("participant disconnected", "room", roomID, "client_id", clientID)
	return nil
}

// handleAudio feeds one binary chunk to the engine and broadcasts any text it
// yields. Engine failures surface to the sending client only.
func (s *Server) handleAudio(roomID string, from *client, chunk []byte) {
	if len(chunk) == 0 {
		return
	}

	ctx := context.Background()
	text, err := s.engine.Transcribe(ctx, roomID, from.name, chunk)
	if err != nil {
		s.log.Error("transcription failed", "room", roomID, "error", err)
		from.sendEnvelope(&wire.Envelope{
			Type:    wire.MessageTypeError,
			Message: "transcription failed",
		})
		return
	}
	if text == "" {
		return
	}

	line := wire.TranscriptLine{Speaker: from.name, Text: text}
	if s.store != nil {
		if err := s.store.Append(ctx, roomID, line); err != nil {
			s.log.Warn("transcript persist failed", "room", roomID, "error", err)
		}
	}

	if rm, ok := s.registry.get(roomID); ok {
		rm.broadcast(&wire.Envelope{
			Type:    wire.MessageTypeTranscript,
			Speaker: line.Speaker,
			Text:    line.Text,
		})
	}
}

func (s *Server) handleParticipants(c echo.Context) error {
	participants, err := s.presence.List(c.Request().Context(), c.Param("id"))
	if err != nil {
		return shared.InternalError("presence_failed", "could not list participants")
	}
	return c.JSON(http.StatusOK, participants)
}

func (s *Server) handleTranscript(c echo.Context) error {
	lines, err := s.store.ListByRoom(c.Request().Context(), c.Param("id"), 0, 0)
	if err != nil {
		return shared.InternalError("transcript_failed", "could not load transcript")
	}
	return c.JSON(http.StatusOK, lines)
}

// Stats reports the number of active rooms and connected participants.
func (s *Server) Stats() (rooms, participants int) {
	s.registry.mu.Lock()
	defer s.registry.mu.Unlock()
	for _, r := range s.registry.rooms {
		r.mu.RLock()
		participants += len(r.clients)
		r.mu.RUnlock()
	}
	return len(s.registry.rooms), participants
}

// splitIdentity parses "Name|role" identities; a missing role defaults to
// candidate.
func splitIdentity(identity string) (name, role string) {
	parts := strings.SplitN(identity, "|", 2)
	name = parts[0]
	role = string(shared.RoleCandidate)
	if len(parts) == 2 && shared.Role(parts[1]).Valid() {
		role = parts[1]
	}
	return name, role
}
