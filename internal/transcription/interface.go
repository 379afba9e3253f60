package transcription

import "context"

// Connection is the live socket to the transcription service as seen by the
// recording controller.
type Connection interface {
	SendAudio(data []byte) error
	IsOpen() bool
	Close() error
}

// Dialer opens a connection for a room and speaker identity. The controller
// depends on this seam so tests can substitute in-memory connections.
type Dialer func(ctx context.Context, room, identity string, cb Callbacks) (Connection, error)
