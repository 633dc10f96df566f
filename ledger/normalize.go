package ledger

import (
	"errors"

	"github.com/shopspring/decimal"
)

// ErrSelfDebt is returned when both sides of a debt are the same user
var ErrSelfDebt = errors.New("a user cannot owe themselves")

// Pair is the canonical storage key of a debt: Low < High always.
type Pair struct {
	Low  int `json:"low_user_id"`
	High int `json:"high_user_id"`
}

// Adjustment is a signed change to the record keyed by (Pair, Group), already
// expressed in the stored sign convention.
type Adjustment struct {
	Pair
	Group  Group           `json:"group_id"`
	Amount decimal.Decimal `json:"amount"`
}

// Reverse returns the adjustment that undoes a.
func (a Adjustment) Reverse() Adjustment {
	a.Amount = a.Amount.Neg()
	return a
}

// Normalize maps "a's balance against b changes by amount" (positive means a
// is owed by b) onto the canonical pair and the stored adjustment. Every path
// that touches the ledger goes through here.
func Normalize(a, b int, amount decimal.Decimal, group Group) (Adjustment, error) {
	switch {
	case a == b:
		return Adjustment{}, ErrSelfDebt
	case a < b:
		return Adjustment{Pair: Pair{Low: a, High: b}, Group: group, Amount: amount}, nil
	default:
		return Adjustment{Pair: Pair{Low: b, High: a}, Group: group, Amount: amount.Neg()}, nil
	}
}

// PairOf returns the canonical pair for two distinct users.
func PairOf(a, b int) (Pair, error) {
	adj, err := Normalize(a, b, decimal.Zero, NoGroup)
	return adj.Pair, err
}

// ExpenseAdjustments returns the adjustments an expense applies: for every
// split whose participant is not the payer, the payer is owed the share by the
// participant. Payer splits produce nothing.
func ExpenseAdjustments(payerID int, splits []Split, group Group) []Adjustment {
	adjustments := make([]Adjustment, 0, len(splits))
	for _, s := range splits {
		if s.UserID == payerID {
			continue
		}

		// Cannot fail, self splits were skipped above
		adj, _ := Normalize(payerID, s.UserID, s.Share, group)
		adjustments = append(adjustments, adj)
	}
	return adjustments
}

// SettlementAdjustment returns the adjustment for payerID handing amount to
// payeeID. Paying raises the payer's balance against the payee: what the payer
// owed shrinks, or what the payee owes the payer grows.
func SettlementAdjustment(payerID, payeeID int, amount decimal.Decimal, group Group) (Adjustment, error) {
	return Normalize(payerID, payeeID, amount, group)
}
