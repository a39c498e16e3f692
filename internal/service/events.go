package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openclaw/wager-server-go/internal/model"
	"github.com/openclaw/wager-server-go/internal/sse"
)

// Session event types delivered to participants.
const (
	EventSessionJoined      = "session_joined"
	EventChoiceCommitted    = "choice_committed"
	EventRevealPhaseStarted = "reveal_phase_started"
	EventChoiceRevealed     = "choice_revealed"
	EventSessionResolved    = "session_resolved"
	EventSessionCancelled   = "session_cancelled"
)

// EventPublisher delivers an event to every stream of one player.
type EventPublisher interface {
	Publish(ctx context.Context, playerID string, event sse.Event) error
}

type sessionEvent struct {
	SessionID      string       `json:"sessionId"`
	Phase          model.Phase  `json:"phase"`
	Result         model.Result `json:"result,omitempty"`
	Player         string       `json:"player,omitempty"`
	Choice         model.Choice `json:"choice,omitempty"`
	CommitDeadline *time.Time   `json:"commitDeadline,omitempty"`
	RevealDeadline *time.Time   `json:"revealDeadline,omitempty"`
	Credits        []payoutView `json:"credits,omitempty"`
}

type payoutView struct {
	Account string          `json:"account"`
	Amount  int64           `json:"amount"`
	Kind    model.EntryKind `json:"kind"`
}

// notify publishes to every participant. Failures are logged only; the state
// change they describe is already committed.
func notify(ctx context.Context, pub EventPublisher, g *model.GameSession, eventType string, payload sessionEvent) {
	if pub == nil {
		return
	}

	payload.SessionID = g.ID
	payload.Phase = g.Phase
	data, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Str("eventType", eventType).Msg("marshal session event")
		return
	}

	for _, player := range g.Participants() {
		if err := pub.Publish(ctx, player, sse.Event{Type: eventType, Data: data}); err != nil {
			log.Warn().
				Err(err).
				Str("sessionId", g.ID).
				Str("playerId", player).
				Str("eventType", eventType).
				Msg("failed to publish session event")
		}
	}
}
