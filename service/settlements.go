package service

import (
	"context"
	"time"

	"github.com/freewilll/splitledger/currency"
	"github.com/freewilll/splitledger/database"
	"github.com/freewilll/splitledger/ledger"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// NewSettlement is a request to record PayerID paying Amount to PayeeID.
type NewSettlement struct {
	PayerID  int             `json:"payer_id" validate:"required,gt=0"`
	PayeeID  int             `json:"payee_id" validate:"required,gt=0"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency" validate:"required"`
	Group    ledger.Group    `json:"group_id" validate:"gte=0"`
	Date     time.Time       `json:"date"`
}

// RecordSettlement records a payment. It is stored as a split-less expense
// flagged as a settlement and makes exactly one direct adjustment to the pair:
// the payer's balance against the payee rises by the amount.
func (s *Service) RecordSettlement(ctx context.Context, n NewSettlement) (ledger.Expense, error) {
	if err := s.validate.Struct(n); err != nil {
		return ledger.Expense{}, validationErrors(err)
	}
	if err := checkAmount("amount", n.Amount); err != nil {
		return ledger.Expense{}, err
	}
	adj, err := ledger.SettlementAdjustment(n.PayerID, n.PayeeID, n.Amount, n.Group)
	if err != nil {
		return ledger.Expense{}, invalid("payee_id", "cannot settle with yourself")
	}
	code, err := currency.Normalize(n.Currency)
	if err != nil {
		return ledger.Expense{}, invalid("currency", "%q is not a supported currency", n.Currency)
	}

	e := ledger.Expense{
		Group:        n.Group,
		PayerID:      n.PayerID,
		PayeeID:      n.PayeeID,
		Amount:       n.Amount,
		Currency:     code,
		Description:  settlementDescription,
		Date:         n.Date,
		Category:     settlementCategory,
		IsSettlement: true,
	}
	if e.Date.IsZero() {
		e.Date = s.today()
	}

	var created ledger.Expense
	err = s.inTx(ctx, func(tx database.Tx) error {
		if err := checkUsers(ctx, tx, e.PayerID, e.PayeeID); err != nil {
			return err
		}
		if err := checkGroup(ctx, tx, e.Group); err != nil {
			return err
		}

		if created, err = tx.CreateExpense(ctx, e); err != nil {
			return err
		}
		if err := tx.ApplyAdjustment(ctx, adj, created.Currency); err != nil {
			return err
		}

		err := tx.AddNotification(ctx, database.Notification{
			UserID:    created.PayeeID,
			ActorID:   created.PayerID,
			Kind:      database.NotifySettlement,
			RelatedID: created.ID,
			Amount:    created.Amount,
			Currency:  created.Currency,
		})
		if err != nil {
			return err
		}

		return tx.AddActivity(ctx, database.Activity{
			UserID:     created.PayerID,
			Action:     database.ActionSettle,
			TargetType: "settlement",
			TargetID:   created.ID,
			Group:      created.Group,
			Amount:     created.Amount,
			Currency:   created.Currency,
		})
	})
	if err != nil {
		return ledger.Expense{}, err
	}

	s.invalidate(ctx, created.PayerID, created.PayeeID)
	s.log.WithFields(logrus.Fields{
		"func":          "RecordSettlement",
		"settlement_id": created.ID,
		"payer_id":      created.PayerID,
		"payee_id":      created.PayeeID,
		"amount":        created.Amount.String(),
		"currency":      created.Currency,
	}).Info("Settlement recorded")

	return created, nil
}
