package database

import (
	"context"
	"errors"
	"time"

	"github.com/freewilll/splitledger/ledger"
	"github.com/shopspring/decimal"
)

// ErrDuplicate is returned when create request fails due to a duplicate entry
var ErrDuplicate = errors.New("duplicate")

// ErrNotFound is returned when an entry could not be found
var ErrNotFound = errors.New("not found")

// ErrPasswordMismatch is returned when authentication fails due to a bad password
var ErrPasswordMismatch = errors.New("password mismatch")

// ErrConflict is returned when the store rejected a write it should have
// accepted (serialization failure, deadlock, unexpected constraint). Nothing of
// the transaction was committed, so the whole operation can be retried.
var ErrConflict = errors.New("conflicting concurrent write")

// ErrCurrencyMismatch is returned when an adjustment's currency differs from the
// currency of the debt record it would accumulate into
var ErrCurrencyMismatch = errors.New("currency differs from existing debt record")

// User represents a user present in the database
type User struct {
	ID              int    `json:"id"`
	Email           string `json:"email"`
	Name            string `json:"name"`
	DefaultCurrency string `json:"default_currency"`
}

// UserPatch lists the optional user fields an update may change
type UserPatch struct {
	Name            *string
	Email           *string
	DefaultCurrency *string
}

// Group is a named set of members sharing expenses
type Group struct {
	ID        ledger.Group `json:"id"`
	Name      string       `json:"name"`
	CreatedBy int          `json:"created_by"`
	Members   []int        `json:"members"`
	CreatedAt time.Time    `json:"created_at"`
}

// NotificationKind says what a notification is about
type NotificationKind string

const (
	NotifyExpenseAdded NotificationKind = "expense_added"
	NotifySettlement   NotificationKind = "settlement"
	NotifyAddedToGroup NotificationKind = "added_to_group"
)

// Notification is a structured message for one user. Rendering it as text is
// left to the presentation layer.
type Notification struct {
	ID        int              `json:"id"`
	UserID    int              `json:"user_id"`
	ActorID   int              `json:"actor_id"`
	Kind      NotificationKind `json:"kind"`
	RelatedID int              `json:"related_id"`
	Amount    decimal.Decimal  `json:"amount"`
	Currency  string           `json:"currency"`
	IsRead    bool             `json:"is_read"`
	CreatedAt time.Time        `json:"created_at"`
}

// Action names what an activity entry records
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
	ActionSettle Action = "settle"
)

// Activity is one entry of the activity feed
type Activity struct {
	ID         int             `json:"id"`
	UserID     int             `json:"user_id"`
	Action     Action          `json:"action"`
	TargetType string          `json:"target_type"`
	TargetID   int             `json:"target_id"`
	Group      ledger.Group    `json:"group_id"`
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency"`
	CreatedAt  time.Time       `json:"created_at"`
}

// DebtFilter selects debt records. UserID zero means any user, a nil Group
// means every group context.
type DebtFilter struct {
	UserID int
	Group  *ledger.Group
}

// matches reports whether r passes the filter
func (f DebtFilter) matches(r ledger.DebtRecord) bool {
	if f.UserID != 0 && !r.Involves(f.UserID) {
		return false
	}
	return f.Group == nil || *f.Group == r.Group
}

// ExpenseFilter selects expenses. UserID zero means any user, a nil Group
// means every group context, Limit zero means DefaultLimit.
type ExpenseFilter struct {
	UserID int
	Group  *ledger.Group
	Limit  int
}

// DefaultLimit caps list queries that don't ask for a limit
const DefaultLimit = 50

// limit returns the effective limit
func limit(n int) int {
	if n <= 0 {
		return DefaultLimit
	}
	return n
}

// Database is an interface that does nothing more than return a database handle
// It is used to configure different types of databases
type Database interface {
	Connect(ctx context.Context) (Handle, error)
}

// Reader contains the queries available both on a handle and inside a
// transaction
type Reader interface {
	GetUser(ctx context.Context, id int) (User, error)                                     // Get one user
	GetUsers(ctx context.Context) ([]User, error)                                          // Get a slice of all users
	GetGroup(ctx context.Context, id ledger.Group) (Group, error)                          // Get a group and its members
	GetGroups(ctx context.Context, userID int) ([]Group, error)                            // Get the groups userID is a member of
	GetExpense(ctx context.Context, id int) (ledger.Expense, error)                        // Get an expense and its splits
	GetExpenses(ctx context.Context, f ExpenseFilter) ([]ledger.Expense, error)            // Get expenses, newest first
	GetDebt(ctx context.Context, p ledger.Pair, g ledger.Group) (ledger.DebtRecord, error) // Get one debt record
	GetDebts(ctx context.Context, f DebtFilter) ([]ledger.DebtRecord, error)               // Get debt records
	GetActivity(ctx context.Context, userID int, limit int) ([]Activity, error)            // Get the activity feed a user can see
	GetNotifications(ctx context.Context, userID int, limit int) ([]Notification, error)   // Get a user's notifications
	CountUnreadNotifications(ctx context.Context, userID int) (int, error)                 // Count a user's unread notifications
}

// Tx is a transaction. Every write made through it commits together or not
// at all.
type Tx interface {
	Reader
	ApplyAdjustment(ctx context.Context, adj ledger.Adjustment, currency string) error // Insert or accumulate a debt record
	CreateExpense(ctx context.Context, e ledger.Expense) (ledger.Expense, error)       // Create an expense and its splits
	UpdateExpense(ctx context.Context, id int, patch ledger.ExpensePatch) error        // Change descriptive expense fields
	DeleteExpense(ctx context.Context, id int) error                                   // Delete an expense and its splits
	CreateGroup(ctx context.Context, name string, createdBy int) (ledger.Group, error) // Create an empty group
	RenameGroup(ctx context.Context, g ledger.Group, name string) error                // Rename a group
	AddGroupMember(ctx context.Context, g ledger.Group, userID int) error              // Add a member to a group
	AddNotification(ctx context.Context, n Notification) error                         // Queue a notification
	AddActivity(ctx context.Context, a Activity) error                                 // Log an activity entry
}

// Handle is an interface containing methods to manage a database handle
// and perform user, ledger and expenses queries on it.
type Handle interface {
	Reader
	Close()                                                                              // Close the database handle
	CreateSchema(ctx context.Context) error                                              // Create the database schema
	CreateUser(ctx context.Context, email, name, password, currency string) (int, error) // Create a user
	AuthenticateUser(ctx context.Context, email string, password string) (int, error)    // Authenticate a user
	UpdateUser(ctx context.Context, id int, patch UserPatch) error                       // Change optional user fields
	MarkNotificationRead(ctx context.Context, userID, id int) error                      // Mark one of a user's notifications read
	MarkAllNotificationsRead(ctx context.Context, userID int) error                      // Mark every notification of a user read
	InTx(ctx context.Context, fn func(Tx) error) error                                   // Run fn in a transaction
}
