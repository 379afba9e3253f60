// Package wire defines the message envelope spoken between the recording
// client and the transcription room service. Inbound messages are JSON objects
// tagged by a "type" field; outbound audio travels as raw binary frames.
package wire

import "encoding/json"

type MessageType string

const (
	MessageTypeRoomInfo        MessageType = "room-info"
	MessageTypeCanOpenMic      MessageType = "can-open-mic"
	MessageTypeTranscript      MessageType = "transcript-result"
	MessageTypeError           MessageType = "error"
	MessageTypeParticipantJoin MessageType = "participant-joined"
	MessageTypeParticipantLeft MessageType = "participant-left"
)

// Envelope is the superset of all inbound message shapes. Fields are populated
// according to Type; unknown types are tolerated and ignored by consumers.
type Envelope struct {
	Type     MessageType `json:"type"`
	RoomName string      `json:"roomName,omitempty"`
	ClientID string      `json:"clientId,omitempty"`
	Speaker  string      `json:"speaker,omitempty"`
	Text     string      `json:"text,omitempty"`
	Message  string      `json:"message,omitempty"`
	Name     string      `json:"name,omitempty"`
}

func (e *Envelope) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

func Decode(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	return &env, nil
}

// TranscriptLine is a single rendered transcript entry, emitted outward in
// arrival order and never retained by the sender.
type TranscriptLine struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}
