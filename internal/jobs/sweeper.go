package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openclaw/wager-server-go/internal/config"
	apperrors "github.com/openclaw/wager-server-go/internal/errors"
	"github.com/openclaw/wager-server-go/internal/model"
)

// Resolver is the part of the game service the sweeper drives.
type Resolver interface {
	ListExpired(ctx context.Context, now time.Time, limit int) ([]model.GameSession, error)
	ResolveExpiredSession(ctx context.Context, caller, sessionID string) (*model.GameSession, error)
}

// Sweeper periodically settles sessions whose commit or reveal window has
// closed, acting as the keeper account. Players may sweep the same sessions
// themselves; losing that race is expected and only logged at debug.
type Sweeper struct {
	resolver Resolver
	now      func() time.Time
	interval time.Duration
	batch    int
	done     chan struct{}
	wg       sync.WaitGroup
}

func NewSweeper(resolver Resolver, interval time.Duration, batch int, now func() time.Time) *Sweeper {
	if now == nil {
		now = time.Now
	}
	return &Sweeper{
		resolver: resolver,
		now:      now,
		interval: interval,
		batch:    batch,
		done:     make(chan struct{}),
	}
}

func (j *Sweeper) Start() {
	j.wg.Add(1)
	go j.run()
	log.Info().Dur("interval", j.interval).Int("batch", j.batch).Msg("sweeper started")
}

// Stop ends the loop and waits for an in-flight pass to finish.
func (j *Sweeper) Stop() {
	close(j.done)
	j.wg.Wait()
	log.Info().Msg("sweeper stopped")
}

func (j *Sweeper) run() {
	defer j.wg.Done()

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.pass()

	for {
		select {
		case <-j.done:
			return
		case <-ticker.C:
			j.pass()
		}
	}
}

func (j *Sweeper) pass() {
	ctx, cancel := context.WithTimeout(context.Background(), config.SweepPassTimeout)
	defer cancel()

	resolved, err := j.Sweep(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to sweep expired sessions")
		return
	}
	if resolved > 0 {
		log.Info().Int("count", resolved).Msg("swept expired sessions")
	}
}

// Sweep resolves one batch of expired sessions and reports how many it
// settled.
func (j *Sweeper) Sweep(ctx context.Context) (int, error) {
	sessions, err := j.resolver.ListExpired(ctx, j.now(), j.batch)
	if err != nil {
		return 0, err
	}

	resolved := 0
	for _, g := range sessions {
		if ctx.Err() != nil {
			return resolved, ctx.Err()
		}

		_, err := j.resolver.ResolveExpiredSession(ctx, config.KeeperAccount, g.ID)
		switch {
		case err == nil:
			resolved++
		case apperrors.Is(err, apperrors.ErrCodeState), apperrors.Is(err, apperrors.ErrCodeExpiry):
			log.Debug().Err(err).Str("sessionId", g.ID).Msg("session no longer sweepable")
		default:
			log.Warn().Err(err).Str("sessionId", g.ID).Msg("failed to resolve expired session")
		}
	}
	return resolved, nil
}
