package roomserver

import "context"

// Engine turns audio chunks into transcript text. The production
// transcription backend is an external system; this seam lets the dev server
// plug in anything from a canned script to a local model.
type Engine interface {
	Transcribe(ctx context.Context, roomID, speaker string, chunk []byte) (string, error)
}

// NullEngine accepts audio and produces nothing. Useful when the dev server
// is only exercised for its connection lifecycle.
type NullEngine struct{}

func (NullEngine) Transcribe(context.Context, string, string, []byte) (string, error) {
	return "", nil
}
