package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openclaw/wager-server-go/internal/audit"
	apperrors "github.com/openclaw/wager-server-go/internal/errors"
)

const playerRateLimitWindow = time.Minute

// Limiter is a sliding window counter keyed by scope and id.
type Limiter interface {
	Allow(ctx context.Context, scope, id string, limit int, window time.Duration) (allowed bool, remaining int, resetAt time.Time)
}

// RateLimitMiddleware limits authenticated players to a fixed number of
// requests per minute. Requests without a player pass through.
type RateLimitMiddleware struct {
	limiter Limiter
	limit   int
}

func NewRateLimitMiddleware(limiter Limiter, limit int) *RateLimitMiddleware {
	return &RateLimitMiddleware{limiter: limiter, limit: limit}
}

func (m *RateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		player := GetPlayer(r.Context())
		if player == nil {
			next.ServeHTTP(w, r)
			return
		}

		allowed, remaining, resetAt := m.limiter.Allow(r.Context(), "player", player.ID, m.limit, playerRateLimitWindow)

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(m.limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))

		if !allowed {
			log.Warn().Str("player_id", player.ID).Msg("rate limit exceeded")
			audit.LogFromRequest(r, audit.Event{Type: audit.EventRateLimitExceed, PlayerID: player.ID})
			tooManyRequests(w, resetAt)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// IPRateLimitMiddleware limits unauthenticated routes by client address.
type IPRateLimitMiddleware struct {
	limiter Limiter
	limit   int
	window  time.Duration
	scope   string
}

func NewIPRateLimitMiddleware(limiter Limiter, limit int, window time.Duration, scope string) *IPRateLimitMiddleware {
	return &IPRateLimitMiddleware{
		limiter: limiter,
		limit:   limit,
		window:  window,
		scope:   scope,
	}
}

func (m *IPRateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed, _, resetAt := m.limiter.Allow(r.Context(), "ip:"+m.scope, r.RemoteAddr, m.limit, m.window)
		if !allowed {
			audit.LogFromRequest(r, audit.Event{
				Type:    audit.EventRateLimitExceed,
				Details: map[string]interface{}{"scope": m.scope},
			})
			tooManyRequests(w, resetAt)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func tooManyRequests(w http.ResponseWriter, resetAt time.Time) {
	secondsLeft := int(time.Until(resetAt).Seconds()) + 1
	if secondsLeft < 1 {
		secondsLeft = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(secondsLeft))
	writeError(w, apperrors.RateLimitExceeded())
}
