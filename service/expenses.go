package service

import (
	"context"
	"strings"
	"time"

	"github.com/freewilll/splitledger/currency"
	"github.com/freewilll/splitledger/database"
	"github.com/freewilll/splitledger/ledger"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// NewExpense is a request to record an expense. Give either Participants, to
// split Amount equally, or explicit Splits, never both. A zero Date means today
// and an empty Category means "General".
type NewExpense struct {
	PayerID      int             `json:"payer_id" validate:"required,gt=0"`
	Amount       decimal.Decimal `json:"amount"`
	Currency     string          `json:"currency" validate:"required"`
	Group        ledger.Group    `json:"group_id" validate:"gte=0"`
	Description  string          `json:"description" validate:"required"`
	Date         time.Time       `json:"date"`
	Category     string          `json:"category"`
	Participants []int           `json:"participants"`
	Splits       []ledger.Split  `json:"splits"`
}

// expense validates n and computes its splits
func (s *Service) expense(n NewExpense) (ledger.Expense, error) {
	n.Description = strings.TrimSpace(n.Description)
	n.Category = strings.TrimSpace(n.Category)
	if err := s.validate.Struct(n); err != nil {
		return ledger.Expense{}, validationErrors(err)
	}
	if err := checkAmount("amount", n.Amount); err != nil {
		return ledger.Expense{}, err
	}

	code, err := currency.Normalize(n.Currency)
	if err != nil {
		return ledger.Expense{}, invalid("currency", "%q is not a supported currency", n.Currency)
	}

	e := ledger.Expense{
		Group:       n.Group,
		PayerID:     n.PayerID,
		Amount:      n.Amount,
		Currency:    code,
		Description: n.Description,
		Date:        n.Date,
		Category:    n.Category,
	}
	if e.Date.IsZero() {
		e.Date = s.today()
	}
	if e.Category == "" {
		e.Category = defaultCategory
	}

	switch {
	case len(n.Participants) > 0 && len(n.Splits) > 0:
		return ledger.Expense{}, invalid("splits", "give either participants or splits, not both")
	case len(n.Splits) > 0:
		e.Splits, err = explicitSplits(n.Amount, n.Splits)
	default:
		e.Splits, err = equalSplits(n.Amount, code, n.Participants)
	}
	return e, err
}

// explicitSplits checks caller supplied shares against the expense total
func explicitSplits(total decimal.Decimal, splits []ledger.Split) ([]ledger.Split, error) {
	if err := ledger.CheckSplits(splits); err != nil {
		return nil, invalid("splits", err.Error())
	}
	for _, sp := range splits {
		if !sp.Share.Equal(sp.Share.Truncate(MaxPlaces)) {
			return nil, invalid("splits", "owed shares must have at most %d decimal places", MaxPlaces)
		}
	}
	if sum := ledger.SplitsTotal(splits); !sum.Equal(total) {
		return nil, invalid("splits", "owed shares sum to %s, expected %s", sum, total)
	}
	return append([]ledger.Split(nil), splits...), nil
}

// equalSplits divides total between participants in the currency's minor unit
func equalSplits(total decimal.Decimal, code string, participants []int) ([]ledger.Split, error) {
	places, err := currency.Fraction(code)
	if err != nil {
		return nil, invalid("currency", err.Error())
	}
	if places > MaxPlaces {
		places = MaxPlaces
	}

	splits, err := ledger.EqualSplits(total, participants, places)
	if err != nil {
		return nil, invalid("participants", err.Error())
	}
	return splits, nil
}

// CreateExpense records an expense and applies a debt adjustment for every
// participant other than the payer: the payer is owed the participant's
// share. Each such participant gets a notification.
func (s *Service) CreateExpense(ctx context.Context, n NewExpense) (ledger.Expense, error) {
	e, err := s.expense(n)
	if err != nil {
		return ledger.Expense{}, err
	}

	var created ledger.Expense
	err = s.inTx(ctx, func(tx database.Tx) error {
		if err := checkUsers(ctx, tx, append([]int{e.PayerID}, ledger.SplitUsers(e.Splits)...)...); err != nil {
			return err
		}
		if err := checkGroup(ctx, tx, e.Group); err != nil {
			return err
		}

		if created, err = tx.CreateExpense(ctx, e); err != nil {
			return err
		}
		if err := applyAll(ctx, tx, ledger.ExpenseAdjustments(created.PayerID, created.Splits, created.Group), created.Currency); err != nil {
			return err
		}

		for _, sp := range created.Splits {
			if sp.UserID == created.PayerID {
				continue
			}
			err := tx.AddNotification(ctx, database.Notification{
				UserID:    sp.UserID,
				ActorID:   created.PayerID,
				Kind:      database.NotifyExpenseAdded,
				RelatedID: created.ID,
				Amount:    sp.Share,
				Currency:  created.Currency,
			})
			if err != nil {
				return err
			}
		}

		return tx.AddActivity(ctx, database.Activity{
			UserID:     created.PayerID,
			Action:     database.ActionCreate,
			TargetType: "expense",
			TargetID:   created.ID,
			Group:      created.Group,
			Amount:     created.Amount,
			Currency:   created.Currency,
		})
	})
	if err != nil {
		return ledger.Expense{}, err
	}

	s.invalidate(ctx, involved(created)...)
	s.log.WithFields(logrus.Fields{
		"func":       "CreateExpense",
		"expense_id": created.ID,
		"payer_id":   created.PayerID,
		"group_id":   created.Group,
		"amount":     created.Amount.String(),
		"currency":   created.Currency,
	}).Info("Expense created")

	return created, nil
}

// DeleteExpense removes an expense, or a settlement, and applies the exact
// negation of every debt adjustment it made. actorID must be one of the users
// involved; to anyone else the expense doesn't exist.
func (s *Service) DeleteExpense(ctx context.Context, expenseID, actorID int) error {
	var deleted ledger.Expense
	err := s.inTx(ctx, func(tx database.Tx) (err error) {
		if deleted, err = tx.GetExpense(ctx, expenseID); err != nil {
			return notFound(err, "expense", expenseID)
		}
		if !isInvolved(deleted, actorID) {
			return &NotFoundError{Kind: "expense", ID: expenseID}
		}

		adjs, err := adjustments(deleted)
		if err != nil {
			return err
		}
		for i := range adjs {
			adjs[i] = adjs[i].Reverse()
		}
		if err := applyAll(ctx, tx, adjs, deleted.Currency); err != nil {
			return err
		}

		if err := tx.DeleteExpense(ctx, expenseID); err != nil {
			return notFound(err, "expense", expenseID)
		}

		return tx.AddActivity(ctx, database.Activity{
			UserID:     actorID,
			Action:     database.ActionDelete,
			TargetType: targetType(deleted),
			TargetID:   deleted.ID,
			Group:      deleted.Group,
			Amount:     deleted.Amount,
			Currency:   deleted.Currency,
		})
	})
	if err != nil {
		return err
	}

	s.invalidate(ctx, involved(deleted)...)
	s.log.WithFields(logrus.Fields{
		"func":       "DeleteExpense",
		"expense_id": expenseID,
		"actor_id":   actorID,
	}).Info("Expense deleted")

	return nil
}

// UpdateExpense changes the descriptive fields of an expense. Debts are not
// touched, so no summary is invalidated.
func (s *Service) UpdateExpense(ctx context.Context, expenseID, actorID int, patch ledger.ExpensePatch) (ledger.Expense, error) {
	if patch.Empty() {
		return ledger.Expense{}, invalid("", "nothing to update")
	}
	if patch.Description != nil {
		description := strings.TrimSpace(*patch.Description)
		if description == "" {
			return ledger.Expense{}, invalid("description", "must not be empty")
		}
		patch.Description = &description
	}
	if patch.Category != nil {
		category := strings.TrimSpace(*patch.Category)
		if category == "" {
			category = defaultCategory
		}
		patch.Category = &category
	}

	var updated ledger.Expense
	err := s.inTx(ctx, func(tx database.Tx) error {
		e, err := tx.GetExpense(ctx, expenseID)
		if err != nil {
			return notFound(err, "expense", expenseID)
		}
		if !isInvolved(e, actorID) {
			return &NotFoundError{Kind: "expense", ID: expenseID}
		}

		if err := tx.UpdateExpense(ctx, expenseID, patch); err != nil {
			return notFound(err, "expense", expenseID)
		}
		updated = patch.Apply(e)

		return tx.AddActivity(ctx, database.Activity{
			UserID:     actorID,
			Action:     database.ActionUpdate,
			TargetType: targetType(e),
			TargetID:   e.ID,
			Group:      e.Group,
			Amount:     e.Amount,
			Currency:   e.Currency,
		})
	})
	if err != nil {
		return ledger.Expense{}, err
	}
	return updated, nil
}

// GetExpense returns one expense if viewerID is involved in it
func (s *Service) GetExpense(ctx context.Context, expenseID, viewerID int) (ledger.Expense, error) {
	e, err := s.db.GetExpense(ctx, expenseID)
	if err != nil {
		return ledger.Expense{}, notFound(err, "expense", expenseID)
	}
	if !isInvolved(e, viewerID) {
		return ledger.Expense{}, &NotFoundError{Kind: "expense", ID: expenseID}
	}
	return e, nil
}

// ListExpenses returns the expenses and settlements userID is involved in,
// newest first
func (s *Service) ListExpenses(ctx context.Context, userID int, group *ledger.Group, limit int) ([]ledger.Expense, error) {
	expenses, err := s.db.GetExpenses(ctx, database.ExpenseFilter{UserID: userID, Group: group, Limit: limit})
	return expenses, storeError(err)
}

// targetType names what an activity entry about e refers to
func targetType(e ledger.Expense) string {
	if e.IsSettlement {
		return "settlement"
	}
	return "expense"
}
