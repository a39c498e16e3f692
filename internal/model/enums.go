package model

import (
	"fmt"
	"strings"
)

// Choice is a hidden move. The zero value means "not revealed".
type Choice uint8

const (
	ChoiceNone     Choice = 0
	ChoiceRock     Choice = 1
	ChoicePaper    Choice = 2
	ChoiceScissors Choice = 3
)

func (c Choice) Valid() bool {
	return c == ChoiceRock || c == ChoicePaper || c == ChoiceScissors
}

func (c Choice) String() string {
	switch c {
	case ChoiceRock:
		return "rock"
	case ChoicePaper:
		return "paper"
	case ChoiceScissors:
		return "scissors"
	default:
		return ""
	}
}

// ParseChoice accepts the lowercase name (any case) or the numeric byte value.
func ParseChoice(s string) (Choice, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "rock", "1":
		return ChoiceRock, nil
	case "paper", "2":
		return ChoicePaper, nil
	case "scissors", "3":
		return ChoiceScissors, nil
	default:
		return ChoiceNone, fmt.Errorf("unknown choice %q", s)
	}
}

func (c Choice) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Choice) UnmarshalText(b []byte) error {
	parsed, err := ParseChoice(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

type Result string

const (
	ResultPending     Result = "pending"
	ResultPlayer1Wins Result = "player1_wins"
	ResultPlayer2Wins Result = "player2_wins"
	ResultDraw        Result = "draw"
	ResultExpired     Result = "expired"
)

// Phase tracks where a session is in its lifecycle. Joining opens the commit
// window immediately, so a joined session is already in PhaseCommitting.
type Phase string

const (
	PhaseCreated    Phase = "created"
	PhaseCommitting Phase = "committing"
	PhaseRevealing  Phase = "revealing"
	PhaseResolved   Phase = "resolved"
	PhaseForfeited  Phase = "forfeited"
	PhaseExpired    Phase = "expired"
)

func (p Phase) Terminal() bool {
	return p == PhaseResolved || p == PhaseForfeited || p == PhaseExpired
}

type EntryKind string

const (
	EntryDeposit    EntryKind = "deposit"
	EntryCredit     EntryKind = "credit"
	EntryRefund     EntryKind = "refund"
	EntryWithdrawal EntryKind = "withdrawal"
)
