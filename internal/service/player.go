package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/openclaw/wager-server-go/internal/audit"
	"github.com/openclaw/wager-server-go/internal/database"
	apperrors "github.com/openclaw/wager-server-go/internal/errors"
	"github.com/openclaw/wager-server-go/internal/ledger"
	"github.com/openclaw/wager-server-go/internal/model"
	"github.com/openclaw/wager-server-go/internal/repository"
	"github.com/openclaw/wager-server-go/internal/util"
)

// Wallets is the value ledger view PlayerService needs for funding.
type Wallets interface {
	ledger.ValueLedger
	Fund(ctx context.Context, account string, amount int64) error
	Funds(ctx context.Context, account string) (int64, error)
}

type PlayerService struct {
	db            *database.DB
	players       repository.PlayerRepository
	wallets       Wallets
	startingFunds int64
	clock         Clock
}

func NewPlayerService(
	db *database.DB,
	players repository.PlayerRepository,
	wallets Wallets,
	startingFunds int64,
	clock Clock,
) *PlayerService {
	if clock == nil {
		clock = SystemClock{}
	}
	return &PlayerService{
		db:            db,
		players:       players,
		wallets:       wallets,
		startingFunds: startingFunds,
		clock:         clock,
	}
}

// Register creates a player and returns its bearer token. Only the token's
// hash is stored, so the token cannot be shown again.
func (s *PlayerService) Register(ctx context.Context, name string) (*model.Player, string, error) {
	name, ok := util.NormalizeName(name)
	if !ok {
		return nil, "", apperrors.InvalidInput("name", fmt.Sprintf("must be 1-%d printable characters", util.MaxPlayerNameLength))
	}

	token, err := util.GenerateToken()
	if err != nil {
		return nil, "", fmt.Errorf("generate token: %w", err)
	}

	var player *model.Player
	err = s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		created, err := s.players.WithTx(tx).Create(ctx, model.CreatePlayerParams{
			ID:        uuid.NewString(),
			Name:      name,
			TokenHash: util.HashToken(token),
			CreatedAt: s.clock.Now(),
		})
		if err != nil {
			return fmt.Errorf("create player: %w", err)
		}
		player = created

		if s.startingFunds > 0 && s.wallets != nil {
			if err := ledger.Bind(s.wallets, tx).Transfer(ctx, created.ID, s.startingFunds); err != nil {
				return fmt.Errorf("grant starting funds: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, "", err
	}

	audit.Log(ctx, audit.Event{Type: audit.EventPlayerRegister, PlayerID: player.ID})
	log.Info().
		Str("player", player.ID).
		Str("name", player.Name).
		Msg("player registered")

	return player, token, nil
}

func (s *PlayerService) Authenticate(ctx context.Context, token string) (*model.Player, error) {
	if token == "" {
		return nil, apperrors.Unauthorized("missing token")
	}
	player, err := s.players.FindByTokenHash(ctx, util.HashToken(token))
	if err != nil {
		return nil, fmt.Errorf("find player: %w", err)
	}
	if player == nil {
		return nil, apperrors.Unauthorized("invalid token")
	}
	return player, nil
}

func (s *PlayerService) GetPlayer(ctx context.Context, id string) (*model.Player, error) {
	player, err := s.players.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("find player: %w", err)
	}
	if player == nil {
		return nil, apperrors.NotFound("player")
	}
	return player, nil
}

// FundWallet credits a registered player's wallet outside of any game.
func (s *PlayerService) FundWallet(ctx context.Context, account string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, apperrors.InvalidInput("amount", "must be positive")
	}
	if s.wallets == nil {
		return 0, apperrors.State("wallet funding is not available")
	}
	if _, err := s.GetPlayer(ctx, account); err != nil {
		return 0, err
	}

	if err := s.wallets.Fund(ctx, account, amount); err != nil {
		return 0, ledgerError(err)
	}
	audit.Funds(ctx, audit.EventWalletFund, account, "", amount)

	return s.WalletBalance(ctx, account)
}

func (s *PlayerService) WalletBalance(ctx context.Context, account string) (int64, error) {
	if s.wallets == nil {
		return 0, nil
	}
	funds, err := s.wallets.Funds(ctx, account)
	if err != nil {
		return 0, ledgerError(err)
	}
	return funds, nil
}
