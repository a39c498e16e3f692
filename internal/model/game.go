package model

import "time"

// GameSession is one two-party wager. It is created once, mutated only by the
// game service, and frozen once Completed is set.
type GameSession struct {
	ID               string     `json:"id"`
	Player1          string     `json:"player1"`
	Player2          *string    `json:"player2,omitempty"`
	Stake            int64      `json:"stake"`
	Commitment1      *string    `json:"commitment1,omitempty"`
	Commitment2      *string    `json:"commitment2,omitempty"`
	Choice1          Choice     `json:"choice1,omitempty"`
	Choice2          Choice     `json:"choice2,omitempty"`
	Revealed1        bool       `json:"revealed1"`
	Revealed2        bool       `json:"revealed2"`
	CommitDeadline   *time.Time `json:"commitDeadline,omitempty"`
	RevealDeadline   *time.Time `json:"revealDeadline,omitempty"`
	Seed             *string    `json:"seed,omitempty"`
	Phase            Phase      `json:"phase"`
	Result           Result     `json:"result"`
	Completed        bool       `json:"completed"`
	FundsDistributed bool       `json:"fundsDistributed"`
	Version          int64      `json:"version"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
	CompletedAt      *time.Time `json:"completedAt,omitempty"`
}

// Seat returns 1 or 2 for a participant and 0 for anyone else.
func (g *GameSession) Seat(account string) int {
	switch {
	case account == "":
		return 0
	case g.Player1 == account:
		return 1
	case g.Player2 != nil && *g.Player2 == account:
		return 2
	default:
		return 0
	}
}

func (g *GameSession) Opponent(seat int) string {
	if seat == 1 {
		if g.Player2 == nil {
			return ""
		}
		return *g.Player2
	}
	return g.Player1
}

func (g *GameSession) PlayerAt(seat int) string {
	if seat == 1 {
		return g.Player1
	}
	return g.Opponent(1)
}

func (g *GameSession) CommitmentAt(seat int) *string {
	if seat == 1 {
		return g.Commitment1
	}
	return g.Commitment2
}

func (g *GameSession) SetCommitment(seat int, commitment string) {
	if seat == 1 {
		g.Commitment1 = &commitment
		return
	}
	g.Commitment2 = &commitment
}

func (g *GameSession) RevealedAt(seat int) bool {
	if seat == 1 {
		return g.Revealed1
	}
	return g.Revealed2
}

func (g *GameSession) SetReveal(seat int, choice Choice) {
	if seat == 1 {
		g.Choice1, g.Revealed1 = choice, true
		return
	}
	g.Choice2, g.Revealed2 = choice, true
}

func (g *GameSession) BothCommitted() bool {
	return g.Commitment1 != nil && g.Commitment2 != nil
}

func (g *GameSession) BothRevealed() bool {
	return g.Revealed1 && g.Revealed2
}

// Participants lists the seated accounts in seat order.
func (g *GameSession) Participants() []string {
	if g.Player2 == nil {
		return []string{g.Player1}
	}
	return []string{g.Player1, *g.Player2}
}

// Pot is the total escrowed value: one stake per seated player.
func (g *GameSession) Pot() int64 {
	return g.Stake * int64(len(g.Participants()))
}

type CreateGameSessionParams struct {
	ID        string
	Player1   string
	Stake     int64
	CreatedAt time.Time
}
