// Package audit emits structured audit lines for value movements and
// security-relevant requests.
package audit

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Category string

const (
	CategoryFunds    Category = "funds"
	CategorySecurity Category = "security"
)

type EventType string

const (
	EventDeposit    EventType = "deposit"
	EventCredit     EventType = "credit"
	EventRefund     EventType = "refund"
	EventWithdrawal EventType = "withdrawal"
	EventWalletFund EventType = "wallet_fund"

	EventPlayerRegister  EventType = "player_register"
	EventAuthFailure     EventType = "auth_failure"
	EventAdminFailure    EventType = "admin_auth_failure"
	EventRateLimitExceed EventType = "rate_limit_exceeded"
	EventInvalidReveal   EventType = "invalid_reveal"
)

type Event struct {
	Category  Category
	Type      EventType
	PlayerID  string
	SessionID string
	Amount    int64
	IP        string
	UserAgent string
	Details   map[string]interface{}
}

func Log(ctx context.Context, event Event) {
	category := event.Category
	if category == "" {
		category = CategorySecurity
	}

	logger := log.Ctx(ctx)
	if logger.GetLevel() == zerolog.Disabled {
		logger = &log.Logger
	}

	ctxLogger := logger.With().
		Str("audit", string(category)).
		Str("event_type", string(event.Type)).
		Time("timestamp", time.Now()).
		Logger()

	logEvent := ctxLogger.Info()
	if event.PlayerID != "" {
		logEvent = logEvent.Str("player_id", event.PlayerID)
	}
	if event.SessionID != "" {
		logEvent = logEvent.Str("session_id", event.SessionID)
	}
	if event.Amount != 0 {
		logEvent = logEvent.Int64("amount", event.Amount)
	}
	if event.IP != "" {
		logEvent = logEvent.Str("ip", event.IP)
	}
	if event.UserAgent != "" {
		logEvent = logEvent.Str("user_agent", event.UserAgent)
	}
	for k, v := range event.Details {
		logEvent = addField(logEvent, k, v)
	}
	logEvent.Msg(string(category) + " audit event")
}

// Funds records a value movement.
func Funds(ctx context.Context, kind EventType, playerID, sessionID string, amount int64) {
	Log(ctx, Event{
		Category:  CategoryFunds,
		Type:      kind,
		PlayerID:  playerID,
		SessionID: sessionID,
		Amount:    amount,
	})
}

func LogFromRequest(r *http.Request, event Event) {
	event.IP = getClientIP(r)
	event.UserAgent = r.UserAgent()
	Log(r.Context(), event)
}

func getClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return forwarded
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	return r.RemoteAddr
}

func addField(e *zerolog.Event, key string, value interface{}) *zerolog.Event {
	switch v := value.(type) {
	case string:
		return e.Str(key, v)
	case int:
		return e.Int(key, v)
	case int64:
		return e.Int64(key, v)
	case bool:
		return e.Bool(key, v)
	default:
		return e.Interface(key, v)
	}
}
