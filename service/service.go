// Package service is the ledger engine's public surface. Every mutation runs
// in one store transaction: the expense rows, every debt adjustment, and the
// notification and activity rows commit together or not at all.
package service

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"time"

	"github.com/freewilll/splitledger/cache"
	"github.com/freewilll/splitledger/database"
	"github.com/freewilll/splitledger/ledger"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// MaxPlaces is the number of decimal places an amount may carry. It matches the
// NUMERIC(20,4) columns in the store.
const MaxPlaces = 4

const (
	defaultCategory       = "General"
	settlementCategory    = "Settlement"
	settlementDescription = "Payment"
)

// Service runs ledger operations against a database handle and keeps the
// summary cache in step with them
type Service struct {
	db       database.Handle
	cache    cache.Cache
	log      logrus.FieldLogger
	validate *validator.Validate
	now      func() time.Time
}

// Option configures a Service
type Option func(*Service)

// WithClock replaces time.Now, used for default expense dates and created_at
// stamps the service itself decides
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// New makes a Service
func New(db database.Handle, c cache.Cache, log logrus.FieldLogger, opts ...Option) *Service {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	s := &Service{
		db:       db,
		cache:    c,
		log:      log.WithField("module", "service"),
		validate: v,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// inTx runs fn in a transaction and maps store errors onto the service's
// error types
func (s *Service) inTx(ctx context.Context, fn func(database.Tx) error) error {
	return storeError(s.db.InTx(ctx, fn))
}

// invalidate drops the cached summaries of userIDs. A cache failure never
// fails the mutation that caused it; the entries expire on their own.
func (s *Service) invalidate(ctx context.Context, userIDs ...int) {
	if err := s.cache.Invalidate(ctx, userIDs...); err != nil {
		s.log.WithFields(logrus.Fields{"func": "invalidate", "users": userIDs}).WithError(err).Warn("Unable to invalidate cached summaries")
	}
}

// today is the default expense date: the current UTC day
func (s *Service) today() time.Time {
	return s.now().UTC().Truncate(24 * time.Hour)
}

// checkAmount requires a positive amount with at most MaxPlaces decimals
func checkAmount(field string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return invalid(field, "must be greater than zero")
	}
	if !amount.Equal(amount.Truncate(MaxPlaces)) {
		return invalid(field, "must have at most %d decimal places", MaxPlaces)
	}
	return nil
}

// checkUsers returns a NotFoundError for the first id that isn't a user
func checkUsers(ctx context.Context, tx database.Reader, userIDs ...int) error {
	for _, id := range userIDs {
		if _, err := tx.GetUser(ctx, id); err != nil {
			return notFound(err, "user", id)
		}
	}
	return nil
}

// checkGroup returns a NotFoundError if g is a group context that doesn't exist
func checkGroup(ctx context.Context, tx database.Reader, g ledger.Group) error {
	if g == ledger.NoGroup {
		return nil
	}
	if _, err := tx.GetGroup(ctx, g); err != nil {
		return notFound(err, "group", int(g))
	}
	return nil
}

// involved returns every user whose balances or feed an expense touches
func involved(e ledger.Expense) []int {
	users := []int{e.PayerID}
	if e.PayeeID != 0 {
		users = append(users, e.PayeeID)
	}
	for _, s := range e.Splits {
		if s.UserID != e.PayerID {
			users = append(users, s.UserID)
		}
	}
	return users
}

// isInvolved reports whether userID is payer, payee or participant of e
func isInvolved(e ledger.Expense, userID int) bool {
	for _, id := range involved(e) {
		if id == userID {
			return true
		}
	}
	return false
}

// adjustments returns the debt adjustments e applied when it was recorded
func adjustments(e ledger.Expense) ([]ledger.Adjustment, error) {
	if !e.IsSettlement {
		return ledger.ExpenseAdjustments(e.PayerID, e.Splits, e.Group), nil
	}

	adj, err := ledger.SettlementAdjustment(e.PayerID, e.PayeeID, e.Amount, e.Group)
	if err != nil {
		return nil, err
	}
	return []ledger.Adjustment{adj}, nil
}

// applyAll applies every adjustment in currency
func applyAll(ctx context.Context, tx database.Tx, adjs []ledger.Adjustment, currency string) error {
	for _, adj := range adjs {
		if err := tx.ApplyAdjustment(ctx, adj, currency); err != nil {
			return err
		}
	}
	return nil
}

// BalanceOf returns userID's signed balance against counterpartID in group:
// positive when userID is owed. A pair with no record has a zero balance.
func (s *Service) BalanceOf(ctx context.Context, userID, counterpartID int, group ledger.Group) (decimal.Decimal, error) {
	pair, err := ledger.PairOf(userID, counterpartID)
	if err != nil {
		return decimal.Zero, invalid("counterpart_id", "must differ from the user")
	}

	record, err := s.db.GetDebt(ctx, pair, group)
	switch {
	case errors.Is(err, database.ErrNotFound):
		return decimal.Zero, nil
	case err != nil:
		return decimal.Zero, storeError(err)
	}

	_, balance := record.For(userID)
	return balance, nil
}

// SummaryFor returns userID's totals over every group context, or over one
// when group is non-nil. Summaries are read through the cache.
func (s *Service) SummaryFor(ctx context.Context, userID int, group *ledger.Group) (ledger.Summary, error) {
	log := s.log.WithFields(logrus.Fields{"func": "SummaryFor", "user_id": userID})

	summary, ok, err := s.cache.GetSummary(ctx, userID, group)
	if err != nil {
		log.WithError(err).Warn("Unable to read cached summary")
	} else if ok {
		return summary, nil
	}

	// The generation must be read before the store: a mutation that commits
	// after this point bumps it and the write below is dropped
	gen, genErr := s.cache.Generation(ctx, userID)
	if genErr != nil {
		log.WithError(genErr).Warn("Unable to read cache generation")
	}

	records, err := s.db.GetDebts(ctx, database.DebtFilter{UserID: userID, Group: group})
	if err != nil {
		return ledger.Summary{}, storeError(err)
	}

	summary = ledger.Summarize(userID, records)
	if genErr == nil {
		if err := s.cache.SetSummary(ctx, userID, group, gen, summary); err != nil {
			log.WithError(err).Warn("Unable to cache summary")
		}
	}
	return summary, nil
}

// DebtsFor lists userID's debts pair by pair, from userID's perspective
func (s *Service) DebtsFor(ctx context.Context, userID int, group *ledger.Group) ([]ledger.Debt, error) {
	records, err := s.db.GetDebts(ctx, database.DebtFilter{UserID: userID, Group: group})
	if err != nil {
		return nil, storeError(err)
	}
	return ledger.DebtsFor(userID, records), nil
}

// FriendBalances returns userID's net against each counterpart over every
// group context. Members of userID's groups who share no debt record with
// userID yet are listed at zero in userID's default currency.
func (s *Service) FriendBalances(ctx context.Context, userID int) ([]ledger.FriendBalance, error) {
	user, err := s.db.GetUser(ctx, userID)
	if err != nil {
		return nil, notFound(err, "user", userID)
	}
	records, err := s.db.GetDebts(ctx, database.DebtFilter{UserID: userID})
	if err != nil {
		return nil, storeError(err)
	}
	groups, err := s.db.GetGroups(ctx, userID)
	if err != nil {
		return nil, storeError(err)
	}

	var members []int
	for _, g := range groups {
		for _, id := range g.Members {
			if id != userID {
				members = append(members, id)
			}
		}
	}
	return ledger.WithZeroBalances(ledger.ByCounterpart(userID, records), members, user.DefaultCurrency), nil
}

// GroupBalances returns userID's net inside each group context, the personal
// context included
func (s *Service) GroupBalances(ctx context.Context, userID int) ([]ledger.GroupBalance, error) {
	records, err := s.db.GetDebts(ctx, database.DebtFilter{UserID: userID})
	if err != nil {
		return nil, storeError(err)
	}
	return ledger.ByGroup(userID, records), nil
}

// Activity returns the feed userID sees, newest first: userID's own entries
// and those of everyone sharing a group with userID
func (s *Service) Activity(ctx context.Context, userID, limit int) ([]database.Activity, error) {
	activity, err := s.db.GetActivity(ctx, userID, limit)
	return activity, storeError(err)
}
