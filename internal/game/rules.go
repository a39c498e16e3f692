// Package game holds the pure rules of the wager: who beats whom, how the pot
// is split, and the commitment function binding a hidden choice to a player.
package game

import (
	"github.com/openclaw/wager-server-go/internal/model"
)

// beats reports whether a defeats b under cyclic dominance.
func beats(a, b model.Choice) bool {
	switch a {
	case model.ChoiceRock:
		return b == model.ChoiceScissors
	case model.ChoicePaper:
		return b == model.ChoiceRock
	case model.ChoiceScissors:
		return b == model.ChoicePaper
	}
	return false
}

// Decide returns the outcome of two revealed choices.
func Decide(c1, c2 model.Choice) model.Result {
	switch {
	case c1 == c2:
		return model.ResultDraw
	case beats(c1, c2):
		return model.ResultPlayer1Wins
	default:
		return model.ResultPlayer2Wins
	}
}

// Payout is a single credit produced by resolving a session.
type Payout struct {
	Account string
	Amount  int64
	Kind    model.EntryKind
}

// Split divides the pot of a two-player session for the given result. Every
// split sums to exactly twice the stake. Losers receive no entry.
func Split(g *model.GameSession, result model.Result) []Payout {
	p1, p2 := g.PlayerAt(1), g.PlayerAt(2)
	pot := 2 * g.Stake

	switch result {
	case model.ResultPlayer1Wins:
		return []Payout{{Account: p1, Amount: pot, Kind: model.EntryCredit}}
	case model.ResultPlayer2Wins:
		return []Payout{{Account: p2, Amount: pot, Kind: model.EntryCredit}}
	case model.ResultDraw:
		return []Payout{
			{Account: p1, Amount: g.Stake, Kind: model.EntryCredit},
			{Account: p2, Amount: g.Stake, Kind: model.EntryCredit},
		}
	case model.ResultExpired:
		return []Payout{
			{Account: p1, Amount: g.Stake, Kind: model.EntryRefund},
			{Account: p2, Amount: g.Stake, Kind: model.EntryRefund},
		}
	}
	return nil
}

// ForfeitResult names the winner when only the given seat acted in time.
func ForfeitResult(actingSeat int) model.Result {
	if actingSeat == 1 {
		return model.ResultPlayer1Wins
	}
	return model.ResultPlayer2Wins
}

// Total sums payout amounts.
func Total(payouts []Payout) int64 {
	var sum int64
	for _, p := range payouts {
		sum += p.Amount
	}
	return sum
}
