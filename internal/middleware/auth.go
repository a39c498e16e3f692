package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/openclaw/wager-server-go/internal/audit"
	apperrors "github.com/openclaw/wager-server-go/internal/errors"
	"github.com/openclaw/wager-server-go/internal/model"
)

type contextKey string

const PlayerContextKey contextKey = "player"

func GetPlayer(ctx context.Context) *model.Player {
	if player, ok := ctx.Value(PlayerContextKey).(*model.Player); ok {
		return player
	}
	return nil
}

// WithPlayer stores the authenticated player on ctx.
func WithPlayer(ctx context.Context, player *model.Player) context.Context {
	return context.WithValue(ctx, PlayerContextKey, player)
}

// Authenticator resolves a bearer token to its player.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*model.Player, error)
}

type AuthMiddleware struct {
	auth Authenticator
}

func NewAuthMiddleware(auth Authenticator) *AuthMiddleware {
	return &AuthMiddleware{auth: auth}
}

func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractToken(r)
		if token == "" {
			writeError(w, apperrors.Unauthorized("Missing authentication token"))
			return
		}

		player, err := m.auth.Authenticate(r.Context(), token)
		if err != nil {
			if apperrors.Is(err, apperrors.ErrCodeUnauthorized) {
				audit.LogFromRequest(r, audit.Event{Type: audit.EventAuthFailure})
				writeError(w, err)
				return
			}
			log.Error().Err(err).Msg("auth middleware: database error")
			writeError(w, apperrors.Internal("Authentication failed"))
			return
		}

		ctx := WithPlayer(r.Context(), player)
		ctx = log.Ctx(ctx).With().Str("player_id", player.ID).Logger().WithContext(ctx)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// extractToken reads the bearer token. The query form exists for
// EventSource and websocket clients that cannot set headers.
func extractToken(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}

	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}

	return ""
}
