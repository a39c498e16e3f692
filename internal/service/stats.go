package service

import (
	"context"
	"fmt"

	"github.com/openclaw/wager-server-go/internal/model"
	"github.com/openclaw/wager-server-go/internal/repository"
)

type Stats struct {
	Players             int                       `json:"players"`
	SessionsByPhase     map[model.Phase]int       `json:"sessionsByPhase"`
	EntryTotals         map[model.EntryKind]int64 `json:"entryTotals"`
	OutstandingBalances int64                     `json:"outstandingBalances"`
	// Escrowed is deposits not yet paid back out as credits or refunds.
	Escrowed int64 `json:"escrowed"`
}

type StatsService struct {
	players  repository.PlayerRepository
	games    repository.GameRepository
	balances repository.BalanceRepository
	entries  repository.EntryRepository
}

func NewStatsService(
	players repository.PlayerRepository,
	games repository.GameRepository,
	balances repository.BalanceRepository,
	entries repository.EntryRepository,
) *StatsService {
	return &StatsService{players: players, games: games, balances: balances, entries: entries}
}

func (s *StatsService) Get(ctx context.Context) (*Stats, error) {
	players, err := s.players.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count players: %w", err)
	}
	phases, err := s.games.CountByPhase(ctx)
	if err != nil {
		return nil, fmt.Errorf("count sessions: %w", err)
	}
	totals, err := s.entries.SumByKind(ctx)
	if err != nil {
		return nil, fmt.Errorf("sum entries: %w", err)
	}
	outstanding, err := s.balances.Total(ctx)
	if err != nil {
		return nil, fmt.Errorf("total balances: %w", err)
	}

	return &Stats{
		Players:             players,
		SessionsByPhase:     phases,
		EntryTotals:         totals,
		OutstandingBalances: outstanding,
		Escrowed:            totals[model.EntryDeposit] - totals[model.EntryCredit] - totals[model.EntryRefund],
	}, nil
}
