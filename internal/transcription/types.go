package transcription

import "github.com/interviewly/voicekit/internal/wire"

type Config struct {
	// Endpoint is the base URL of the transcription service, e.g.
	// "https://transcribe.example.com" or "ws://localhost:8080". http(s)
	// schemes are upgraded to ws(s) so transport security always matches the
	// configured origin.
	Endpoint string
}

// Callbacks receive every connection lifecycle event and every recognized
// inbound message kind. Unset callbacks are skipped; unrecognized message
// kinds are logged and ignored, never fatal.
type Callbacks struct {
	OnOpen              func()
	OnRoomInfo          func(roomName, clientID string)
	OnMicOpen           func()
	OnTranscript        func(line wire.TranscriptLine)
	OnServerError       func(message string)
	OnParticipantJoined func(name string)
	OnParticipantLeft   func(name string)
	OnError             func(err error)
	OnClose             func(code int, reason string)
}
