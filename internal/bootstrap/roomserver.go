package bootstrap

import (
	"log/slog"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"gorm.io/gorm"

	"github.com/interviewly/voicekit/internal/auth"
	"github.com/interviewly/voicekit/internal/roomserver"
	"github.com/interviewly/voicekit/internal/transcript"
)

func ProvideTranscriptStore(db *gorm.DB) (*transcript.Store, error) {
	store := transcript.NewStore(db)
	if err := store.Migrate(); err != nil {
		return nil, err
	}
	return store, nil
}

func ProvidePresence(redisClient *redis.Client) roomserver.Presence {
	if redisClient != nil {
		return roomserver.NewRedisPresence(redisClient)
	}
	return roomserver.NewMemoryPresence()
}

// ProvideJWTValidator returns nil when no signing key is configured, which
// leaves the socket endpoint open. Development only.
func ProvideJWTValidator(cfg *Config) *auth.JWTValidator {
	if len(cfg.HMACKey) == 0 {
		return nil
	}
	return auth.NewJWTValidator(cfg.HMACKey)
}

func ProvideRoomServer(
	presence roomserver.Presence,
	store *transcript.Store,
	validator *auth.JWTValidator,
	logger *slog.Logger,
) *roomserver.Server {
	return roomserver.NewServer(roomserver.Config{
		Presence:  presence,
		Store:     store,
		Validator: validator,
		Logger:    logger,
	})
}

func RegisterRoomRoutes(e *echo.Echo, s *roomserver.Server) {
	s.RegisterRoutes(e)
}

var RoomServerModule = fx.Options(
	fx.Provide(
		ProvideTranscriptStore,
		ProvidePresence,
		ProvideJWTValidator,
		ProvideRoomServer,
	),
	fx.Invoke(RegisterRoomRoutes),
)
