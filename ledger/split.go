package ledger

import (
	"errors"

	"github.com/shopspring/decimal"
)

// ErrNoParticipants is returned when an equal split has nobody to split between
var ErrNoParticipants = errors.New("at least one split participant is required")

// ErrDuplicateParticipant is returned when a user appears twice in a split
var ErrDuplicateParticipant = errors.New("duplicate participant in split")

// EqualSplits divides total equally between participants, rounded to places
// decimal digits (the currency's minor unit). Minor units left over by the
// rounding go one each to the first participants, so the shares always sum to
// exactly total.
func EqualSplits(total decimal.Decimal, participants []int, places int32) ([]Split, error) {
	n := len(participants)
	if n == 0 {
		return nil, ErrNoParticipants
	}
	if err := checkUnique(participants); err != nil {
		return nil, err
	}

	count := decimal.NewFromInt(int64(n))
	share := total.Shift(places).Div(count).Floor().Shift(-places)
	unit := decimal.New(1, -places)

	splits := make([]Split, n)
	remainder := total.Sub(share.Mul(count))
	for i, userID := range participants {
		s := share
		if remainder.GreaterThanOrEqual(unit) {
			s = s.Add(unit)
			remainder = remainder.Sub(unit)
		}
		splits[i] = Split{UserID: userID, Share: s}
	}

	// Sub-unit dust only exists when total has more digits than the currency
	if !remainder.IsZero() {
		splits[0].Share = splits[0].Share.Add(remainder)
	}

	return splits, nil
}

// SplitsTotal sums the shares of splits.
func SplitsTotal(splits []Split) decimal.Decimal {
	total := decimal.Zero
	for _, s := range splits {
		total = total.Add(s.Share)
	}
	return total
}

// SplitUsers returns the participant ids of splits, in order.
func SplitUsers(splits []Split) []int {
	users := make([]int, len(splits))
	for i, s := range splits {
		users[i] = s.UserID
	}
	return users
}

// checkUnique returns ErrDuplicateParticipant if a user id repeats
func checkUnique(userIDs []int) error {
	seen := make(map[int]bool, len(userIDs))
	for _, id := range userIDs {
		if seen[id] {
			return ErrDuplicateParticipant
		}
		seen[id] = true
	}
	return nil
}

// CheckSplits validates explicit splits: at least one entry, no repeated
// participant, no negative share.
func CheckSplits(splits []Split) error {
	if len(splits) == 0 {
		return ErrNoParticipants
	}
	if err := checkUnique(SplitUsers(splits)); err != nil {
		return err
	}
	for _, s := range splits {
		if s.Share.IsNegative() {
			return ErrNegativeShare
		}
	}
	return nil
}

// ErrNegativeShare is returned when a split carries a negative owed share
var ErrNegativeShare = errors.New("owed share must not be negative")
