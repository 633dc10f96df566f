package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// Group identifies the context a debt pair is tracked under. NoGroup is the
// personal (direct, ad-hoc) context. It is a real key value, so personal debts
// obey the same one-record-per-pair rule as group debts.
type Group int

// NoGroup is the "no group" sentinel.
const NoGroup Group = 0

// Split is a participant's owed share of one expense.
type Split struct {
	UserID int             `json:"user_id"`
	Share  decimal.Decimal `json:"owed_share"`
}

// Expense is an amount paid by one user and shared by the users in Splits. The
// payer may have a split of their own, which never produces a debt. A
// settlement is an expense with no splits, flagged IsSettlement, paid to PayeeID.
type Expense struct {
	ID           int             `json:"id"`
	Group        Group           `json:"group_id"`
	PayerID      int             `json:"payer_id"`
	PayeeID      int             `json:"payee_id,omitempty"` // settlements only
	Amount       decimal.Decimal `json:"amount"`
	Currency     string          `json:"currency"`
	Description  string          `json:"description"`
	Date         time.Time       `json:"date"`
	Category     string          `json:"category"`
	IsSettlement bool            `json:"is_settlement"`
	Splits       []Split         `json:"splits"`
	CreatedAt    time.Time       `json:"created_at"`
}

// ExpensePatch lists the fields of an expense that may change after creation.
// A nil field is left untouched. Amount, payer and splits can't be patched;
// their debts would have to be reversed and reapplied.
type ExpensePatch struct {
	Description *string    `json:"description,omitempty"`
	Category    *string    `json:"category,omitempty"`
	Date        *time.Time `json:"date,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p ExpensePatch) Empty() bool {
	return p.Description == nil && p.Category == nil && p.Date == nil
}

// Apply returns a copy of e with the patch applied.
func (p ExpensePatch) Apply(e Expense) Expense {
	if p.Description != nil {
		e.Description = *p.Description
	}
	if p.Category != nil {
		e.Category = *p.Category
	}
	if p.Date != nil {
		e.Date = *p.Date
	}
	return e
}

// DebtRecord is the single stored net balance between two users within one
// group context. A positive Amount means Low is owed money by High, a negative
// Amount means Low owes High. Zero means settled.
type DebtRecord struct {
	Pair
	Group    Group           `json:"group_id"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

// Involves reports whether userID is one side of the record.
func (r DebtRecord) Involves(userID int) bool {
	return r.Low == userID || r.High == userID
}

// For re-orients the record to viewer's perspective. It returns the other
// side of the pair and the viewer's signed balance against them: positive when
// the viewer is owed, negative when the viewer owes.
func (r DebtRecord) For(viewer int) (counterpart int, balance decimal.Decimal) {
	if viewer == r.Low {
		return r.High, r.Amount
	}
	return r.Low, r.Amount.Neg()
}
