package ledger

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Direction says which way a debt points from the viewing user's side.
type Direction string

const (
	DirectionOwed    Direction = "owed"    // the counterpart owes the viewer
	DirectionOwe     Direction = "owe"     // the viewer owes the counterpart
	DirectionSettled Direction = "settled" // nothing outstanding
)

// Debt is a DebtRecord seen from one user's perspective. Amount is never
// negative; Direction carries the sign.
type Debt struct {
	Counterpart int             `json:"counterpart_id"`
	Group       Group           `json:"group_id"`
	Direction   Direction       `json:"direction"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
}

// Summary is a user's position over a set of debt records.
type Summary struct {
	TotalOwed  decimal.Decimal `json:"total_owed"`  // what the user owes others
	TotalOwing decimal.Decimal `json:"total_owing"` // what others owe the user
	NetBalance decimal.Decimal `json:"net_balance"` // positive when the user is owed overall
}

// FriendBalance is the net between a user and one counterpart over every group
// context, per currency.
type FriendBalance struct {
	UserID   int             `json:"user_id"`
	Currency string          `json:"currency"`
	Balance  decimal.Decimal `json:"balance"`
}

// GroupBalance is a user's net inside one group context, per currency.
type GroupBalance struct {
	Group    Group           `json:"group_id"`
	Currency string          `json:"currency"`
	Balance  decimal.Decimal `json:"balance"`
}

// Summarize re-orients each record involving viewer and accumulates the
// viewer's totals. Zero records are visited but add nothing.
func Summarize(viewer int, records []DebtRecord) Summary {
	owed, owing := decimal.Zero, decimal.Zero
	for _, r := range records {
		if !r.Involves(viewer) {
			continue
		}

		_, balance := r.For(viewer)
		if balance.IsNegative() {
			owed = owed.Add(balance.Abs())
		} else {
			owing = owing.Add(balance)
		}
	}

	return Summary{TotalOwed: owed, TotalOwing: owing, NetBalance: owing.Sub(owed)}
}

// DebtsFor lists the records involving viewer from the viewer's side, ordered
// by counterpart then group.
func DebtsFor(viewer int, records []DebtRecord) []Debt {
	debts := make([]Debt, 0, len(records))
	for _, r := range records {
		if !r.Involves(viewer) {
			continue
		}

		counterpart, balance := r.For(viewer)
		direction := DirectionSettled
		switch {
		case balance.IsPositive():
			direction = DirectionOwed
		case balance.IsNegative():
			direction = DirectionOwe
		}

		debts = append(debts, Debt{
			Counterpart: counterpart,
			Group:       r.Group,
			Direction:   direction,
			Amount:      balance.Abs(),
			Currency:    r.Currency,
		})
	}

	sort.SliceStable(debts, func(i, j int) bool {
		if debts[i].Counterpart != debts[j].Counterpart {
			return debts[i].Counterpart < debts[j].Counterpart
		}
		return debts[i].Group < debts[j].Group
	})
	return debts
}

// ByCounterpart folds the records involving viewer into one net per
// counterpart and currency.
func ByCounterpart(viewer int, records []DebtRecord) []FriendBalance {
	type key struct {
		user     int
		currency string
	}
	nets := make(map[key]decimal.Decimal)
	for _, r := range records {
		if !r.Involves(viewer) {
			continue
		}
		counterpart, balance := r.For(viewer)
		k := key{counterpart, r.Currency}
		nets[k] = nets[k].Add(balance)
	}

	friends := make([]FriendBalance, 0, len(nets))
	for k, v := range nets {
		friends = append(friends, FriendBalance{UserID: k.user, Currency: k.currency, Balance: v})
	}
	sortFriends(friends)
	return friends
}

// WithZeroBalances adds a zero balance in currency for every user in users
// that friends has no entry for. The result is ordered like ByCounterpart's.
func WithZeroBalances(friends []FriendBalance, users []int, currency string) []FriendBalance {
	known := make(map[int]bool, len(friends))
	for _, f := range friends {
		known[f.UserID] = true
	}

	out := append([]FriendBalance(nil), friends...)
	for _, id := range users {
		if !known[id] {
			known[id] = true
			out = append(out, FriendBalance{UserID: id, Currency: currency, Balance: decimal.Zero})
		}
	}
	sortFriends(out)
	return out
}

func sortFriends(friends []FriendBalance) {
	sort.Slice(friends, func(i, j int) bool {
		if friends[i].UserID != friends[j].UserID {
			return friends[i].UserID < friends[j].UserID
		}
		return friends[i].Currency < friends[j].Currency
	})
}

// ByGroup folds the records involving viewer into one net per group context
// and currency.
func ByGroup(viewer int, records []DebtRecord) []GroupBalance {
	type key struct {
		group    Group
		currency string
	}
	nets := make(map[key]decimal.Decimal)
	for _, r := range records {
		if !r.Involves(viewer) {
			continue
		}
		_, balance := r.For(viewer)
		k := key{r.Group, r.Currency}
		nets[k] = nets[k].Add(balance)
	}

	groups := make([]GroupBalance, 0, len(nets))
	for k, v := range nets {
		groups = append(groups, GroupBalance{Group: k.group, Currency: k.currency, Balance: v})
	}
	sort.Slice(groups, func(i, j int) bool {
		if groups[i].Group != groups[j].Group {
			return groups[i].Group < groups[j].Group
		}
		return groups[i].Currency < groups[j].Currency
	})
	return groups
}
