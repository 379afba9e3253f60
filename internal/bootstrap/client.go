package bootstrap

import (
	"context"
	"log/slog"
	"os"

	"github.com/interviewly/voicekit/internal/auth"
	"github.com/interviewly/voicekit/internal/capture"
	"github.com/interviewly/voicekit/internal/netstatus"
	"github.com/interviewly/voicekit/internal/notify"
	"github.com/interviewly/voicekit/internal/recorder"
	"github.com/interviewly/voicekit/internal/shared"
	"github.com/interviewly/voicekit/internal/transcription"
)

// ClientSet wires the recording client process: identity, connectivity
// monitoring and recorder construction. Unlike the server it is assembled
// directly; a CLI has no lifecycle graph worth an injector.
type ClientSet struct {
	Auth *auth.Client
	Net  *netstatus.ProbeMonitor
	Log  *slog.Logger

	cfg *Config
}

func NewClientSet(cfg *Config) *ClientSet {
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	}))

	var authClient *auth.Client
	if cfg.AuthBaseURL != "" {
		authClient = auth.NewClient(auth.Config{
			BaseURL: cfg.AuthBaseURL,
			APIKey:  cfg.AuthAPIKey,
			Logger:  log,
		})
	}

	net := netstatus.NewProbeMonitor(netstatus.ProbeConfig{
		Address:  cfg.ProbeAddress,
		Interval: cfg.ProbeInterval,
		Logger:   log,
	})
	net.Start()

	return &ClientSet{
		Auth: authClient,
		Net:  net,
		Log:  log,
		cfg:  cfg,
	}
}

// OAuthProvider returns the configured provider for the given name, or nil
// when its credentials are absent.
func (s *ClientSet) OAuthProvider(name string) auth.Provider {
	switch name {
	case "google":
		if p := auth.NewGoogleProvider(s.cfg.GoogleClientID, s.cfg.GoogleClientSecret, s.cfg.GoogleRedirectURL); p != nil {
			return p
		}
	case "github":
		if p := auth.NewGitHubProvider(s.cfg.GitHubClientID, s.cfg.GitHubClientSecret, s.cfg.GitHubRedirectURL); p != nil {
			return p
		}
	}
	return nil
}

// NewRecorder builds a recording session controller for one room.
func (s *ClientSet) NewRecorder(roomID, speaker string, role shared.Role, sink recorder.TranscriptSink, notifier notify.Notifier) (*recorder.Controller, error) {
	dial := func(ctx context.Context, room, identity string, cb transcription.Callbacks) (transcription.Connection, error) {
		return transcription.Dial(ctx, transcription.Config{Endpoint: s.cfg.TranscriptionURL}, room, identity, cb, s.Log)
	}

	return recorder.New(recorder.Config{
		RoomID:      roomID,
		SpeakerName: speaker,
		Role:        role,
	}, recorder.Deps{
		Opener:      capture.NewMalgoOpener(s.Log),
		Dial:        dial,
		Net:         s.Net,
		Notifier:    notifier,
		Transcripts: sink,
		Logger:      s.Log,
	})
}

func (s *ClientSet) Close() {
	s.Net.Stop()
}
