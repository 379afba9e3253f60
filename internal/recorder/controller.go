// Package recorder owns the recording session lifecycle: one microphone, one
// socket to the transcription service, and the user-facing recording status.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/interviewly/voicekit/internal/capture"
	"github.com/interviewly/voicekit/internal/netstatus"
	"github.com/interviewly/voicekit/internal/notify"
	"github.com/interviewly/voicekit/internal/shared"
	"github.com/interviewly/voicekit/internal/transcription"
	"github.com/interviewly/voicekit/internal/wire"
)

type ConnState int

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

const defaultTimeslice = 250 * time.Millisecond

// Encoding preference for capture chunks. Devices that support none of these
// fall back to their platform default.
var defaultMimeTypes = []string{
	"audio/webm;codecs=opus",
	"audio/webm",
	"audio/ogg;codecs=opus",
}

type Config struct {
	// RoomID is externally supplied and immutable for the controller's
	// lifetime.
	RoomID      string
	SpeakerName string
	Role        shared.Role

	Timeslice time.Duration
	MimeTypes []string
}

// TranscriptSink receives transcript lines in arrival order. The controller
// never retains them.
type TranscriptSink func(line wire.TranscriptLine)

type Deps struct {
	Opener      capture.Opener
	Dial        transcription.Dialer
	Net         netstatus.Monitor
	Notifier    notify.Notifier
	Transcripts TranscriptSink
	Logger      *slog.Logger
}

// Controller is the recording session state machine. At most one capture
// device and one connection exist per controller; both handles are owned
// exclusively by it. Every transition runs under the controller mutex, so
// user calls and socket/device/connectivity callbacks serialize the same way
// events do on a single-threaded loop. Methods test current state rather than
// assume prior state, so overlapping events (a close arriving mid-stop, a
// stop with nothing active) degrade to no-ops.
type Controller struct {
	cfg      Config
	opener   capture.Opener
	dial     transcription.Dialer
	net      netstatus.Monitor
	notifier notify.Notifier
	sink     TranscriptSink
	log      *slog.Logger

	mu         sync.Mutex
	busy       bool
	gen        uint64
	device     capture.Device
	conn       transcription.Connection
	connState  ConnState
	micAllowed bool
	recording  bool
	clientID   string
	closed     bool

	unsubNet func()
}

func New(cfg Config, deps Deps) (*Controller, error) {
	if cfg.RoomID == "" {
		return nil, fmt.Errorf("room id required")
	}
	if !cfg.Role.Valid() {
		return nil, fmt.Errorf("invalid speaker role %q", cfg.Role)
	}
	if deps.Opener == nil || deps.Dial == nil || deps.Net == nil {
		return nil, fmt.Errorf("opener, dialer and network monitor required")
	}
	if cfg.Timeslice <= 0 {
		cfg.Timeslice = defaultTimeslice
	}
	if len(cfg.MimeTypes) == 0 {
		cfg.MimeTypes = defaultMimeTypes
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Notifier == nil {
		deps.Notifier = notify.NewLogNotifier(deps.Logger)
	}

	c := &Controller{
		cfg:      cfg,
		opener:   deps.Opener,
		dial:     deps.Dial,
		net:      deps.Net,
		notifier: deps.Notifier,
		sink:     deps.Transcripts,
		log:      deps.Logger.With("component", "recorder", "room", cfg.RoomID),
	}

	c.unsubNet = deps.Net.Subscribe(c.handleConnectivity)
	return c, nil
}

// Start toggles recording on: acquire the microphone, ensure a live
// connection, and wait for the service to open the mic. All failures are
// local: logged, surfaced through the notifier, and resolved by releasing
// whatever was acquired. The busy flag is always cleared on exit.
func (c *Controller) Start(ctx context.Context) {
	c.mu.Lock()
	if c.closed || c.busy {
		c.mu.Unlock()
		return
	}
	if !c.net.Online() {
		c.mu.Unlock()
		c.log.Warn("start refused, network unreachable")
		c.notifier.Notify("Network error",
			"You appear to be offline. Check your connection and try again.",
			notify.SeverityError)
		return
	}
	c.busy = true
	c.gen++
	gen := c.gen
	c.releaseDeviceLocked()
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.busy = false
		c.mu.Unlock()
	}()

	device, err := c.opener.Open(ctx)
	if err != nil {
		c.notifyAcquireFailure(err)
		return
	}

	c.mu.Lock()
	if c.closed || gen != c.gen {
		// Resources were released while we were acquiring; this handle is
		// stale.
		c.mu.Unlock()
		_ = device.Close()
		return
	}
	c.device = device
	alreadyUsable := c.connState == StateConnected && c.micAllowed
	c.mu.Unlock()

	if alreadyUsable {
		c.beginChunking()
		return
	}
	c.connect(ctx, gen)
}

// connect is idempotent: a connection that is already open or opening is left
// alone. Failures release the device acquired for this attempt.
func (c *Controller) connect(ctx context.Context, gen uint64) {
	c.mu.Lock()
	if c.connState != StateDisconnected {
		c.mu.Unlock()
		return
	}
	c.connState = StateConnecting
	c.mu.Unlock()

	identity := fmt.Sprintf("%s|%s", c.cfg.SpeakerName, c.cfg.Role)
	conn, err := c.dial(ctx, c.cfg.RoomID, identity, transcription.Callbacks{
		OnRoomInfo:    c.handleRoomInfo,
		OnMicOpen:     c.handleMicOpen,
		OnTranscript:  c.handleTranscript,
		OnServerError: c.handleServerError,
		OnError:       c.handleConnError,
		OnClose:       c.handleClose,
		// Roster changes are rendered elsewhere; the controller only needs to
		// tolerate them.
		OnParticipantJoined: func(string) {},
		OnParticipantLeft:   func(string) {},
	})
	if err != nil {
		c.mu.Lock()
		c.connState = StateDisconnected
		c.releaseDeviceLocked()
		c.mu.Unlock()
		c.log.Error("connection failed", "error", err)
		c.notifier.Notify("Connection error",
			"Could not reach the transcription service.", notify.SeverityError)
		return
	}

	c.mu.Lock()
	if c.closed || gen != c.gen {
		c.mu.Unlock()
		_ = conn.Close()
		return
	}
	c.conn = conn
	c.connState = StateConnected
	// The mic-open grant can race the dial return; if it already landed,
	// chunking starts here instead of in the callback.
	pending := c.micAllowed && c.device != nil && !c.recording
	c.mu.Unlock()

	if pending {
		c.beginChunking()
	}
}

// Stop toggles recording off. Idempotent and safe with nothing active.
func (c *Controller) Stop() {
	c.mu.Lock()
	c.releaseDeviceLocked()
	c.mu.Unlock()
}

// releaseDeviceLocked halts and releases the capture device, best-effort.
// Capture-stop failures are logged, never propagated. Callers hold c.mu.
func (c *Controller) releaseDeviceLocked() {
	if c.device != nil {
		if err := c.device.Stop(); err != nil {
			c.log.Warn("capture stop failed", "error", err)
		}
		if err := c.device.Close(); err != nil {
			c.log.Warn("capture release failed", "error", err)
		}
		c.device = nil
	}
	c.recording = false
}

// beginChunking configures the held device to emit chunks on the timeslice,
// picking the first supported encoding and falling back to the platform
// default.
func (c *Controller) beginChunking() {
	c.mu.Lock()
	if c.device == nil || c.recording || c.connState != StateConnected {
		c.mu.Unlock()
		return
	}
	device := c.device
	mimeType := capture.SelectMimeType(device, c.cfg.MimeTypes)
	err := device.Start(capture.StartOptions{
		Timeslice: c.cfg.Timeslice,
		MimeType:  mimeType,
	}, c.handleChunk)
	if err != nil {
		c.releaseDeviceLocked()
		c.mu.Unlock()
		c.log.Error("chunking setup failed", "error", err)
		c.notifier.Notify("Recording error",
			"Could not start the microphone.", notify.SeverityError)
		return
	}
	c.recording = true
	c.mu.Unlock()

	c.log.Info("recording started", "mime_type", mimeType)
}

// handleChunk forwards one emitted chunk. Chunks arriving while the
// connection is not open are dropped on the floor: no buffering, no retry.
func (c *Controller) handleChunk(chunk capture.Chunk) {
	c.mu.Lock()
	conn := c.conn
	open := conn != nil && c.connState == StateConnected
	c.mu.Unlock()

	if !open || len(chunk.Data) == 0 {
		return
	}
	if !conn.IsOpen() {
		return
	}
	if err := conn.SendAudio(chunk.Data); err != nil {
		c.log.Debug("audio chunk dropped", "error", err, "bytes", len(chunk.Data))
	}
}

func (c *Controller) handleRoomInfo(roomName, clientID string) {
	c.mu.Lock()
	c.clientID = clientID
	c.mu.Unlock()
	c.log.Info("joined room", "room_name", roomName, "client_id", clientID)
}

func (c *Controller) handleMicOpen() {
	c.mu.Lock()
	c.micAllowed = true
	hasDevice := c.device != nil
	c.mu.Unlock()

	if hasDevice {
		c.beginChunking()
	}
}

func (c *Controller) handleTranscript(line wire.TranscriptLine) {
	text := strings.TrimSpace(line.Text)
	if text == "" {
		return
	}
	if c.sink != nil {
		c.sink(wire.TranscriptLine{Speaker: line.Speaker, Text: text})
	}
}

func (c *Controller) handleServerError(message string) {
	c.log.Error("transcription service reported error", "message", message)
	c.notifier.Notify("Transcription error", message, notify.SeverityError)
}

func (c *Controller) handleConnError(err error) {
	c.log.Error("connection error", "error", err)
}

// handleClose resets connection bookkeeping and, if a recording was active,
// stops it. The device release is idempotent, so a user Stop racing this
// callback cannot double-release tracks.
func (c *Controller) handleClose(code int, reason string) {
	c.mu.Lock()
	c.conn = nil
	c.connState = StateDisconnected
	c.micAllowed = false
	c.clientID = ""
	wasRecording := c.recording
	if wasRecording {
		c.releaseDeviceLocked()
	}
	c.mu.Unlock()

	c.log.Info("connection closed", "code", code, "reason", reason, "was_recording", wasRecording)
}

func (c *Controller) handleConnectivity(online bool) {
	if online {
		// Reachability restored; no auto-resume.
		return
	}

	c.mu.Lock()
	wasRecording := c.recording
	if wasRecording {
		c.releaseDeviceLocked()
	}
	c.mu.Unlock()

	if wasRecording {
		c.log.Warn("network lost while recording")
		c.notifier.Notify("Network lost",
			"Recording stopped because the connection was lost.",
			notify.SeverityWarning)
	}
}

func (c *Controller) Recording() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recording
}

func (c *Controller) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connState
}

func (c *Controller) ClientID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clientID
}

// Close tears everything down regardless of current state.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.gen++
	c.releaseDeviceLocked()
	conn := c.conn
	c.conn = nil
	c.connState = StateDisconnected
	c.micAllowed = false
	c.clientID = ""
	unsub := c.unsubNet
	c.unsubNet = nil
	c.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	if conn != nil {
		if err := conn.Close(); err != nil && !errors.Is(err, shared.ErrConnectionClosed) {
			return err
		}
	}
	return nil
}

func (c *Controller) notifyAcquireFailure(err error) {
	switch {
	case errors.Is(err, shared.ErrPermissionDenied):
		c.log.Warn("microphone permission denied", "error", err)
		c.notifier.Notify("Microphone blocked",
			"Allow microphone access to start recording.", notify.SeverityError)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		c.log.Info("device acquisition canceled", "error", err)
	default:
		c.log.Error("microphone unavailable", "error", err)
		c.notifier.Notify("Microphone error",
			"No usable microphone was found.", notify.SeverityError)
	}
}
