// Package capture abstracts local microphone access. A Device is an acquired
// capture handle that emits encoded audio chunks at a fixed interval; an
// Opener performs the (possibly denied) acquisition.
package capture

import (
	"context"
	"time"
)

// Chunk is one interval's worth of encoded audio.
type Chunk struct {
	Data     []byte
	MimeType string
}

type StartOptions struct {
	// Timeslice is the emission interval. Zero means the implementation
	// default.
	Timeslice time.Duration

	// MimeType selects the chunk encoding. Empty means the platform default.
	MimeType string
}

// Device is an exclusive handle on a capture source. Stop halts emission and
// Close releases the underlying tracks; both are idempotent and safe to call
// in either order.
type Device interface {
	Start(opts StartOptions, emit func(Chunk)) error
	Stop() error
	Close() error
	Supports(mimeType string) bool
}

// Opener acquires a microphone. Acquisition failures map onto
// shared.ErrPermissionDenied and shared.ErrDeviceUnavailable.
type Opener interface {
	Open(ctx context.Context) (Device, error)
}

// SelectMimeType returns the first entry of prefs the device supports, or the
// empty string (platform default) when none match.
func SelectMimeType(d Device, prefs []string) string {
	for _, mt := range prefs {
		if d.Supports(mt) {
			return mt
		}
	}
	return ""
}
