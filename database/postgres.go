package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/freewilll/splitledger/ledger"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

// Database schema, to be run once. The "no group" context is stored as
// group_id 0 rather than NULL so the debts primary key dedupes it as well.
const schema = `
CREATE TABLE IF NOT EXISTS users (
	id 					SERIAL PRIMARY KEY,
	email 				TEXT NOT NULL UNIQUE,
	name 				TEXT NOT NULL,
	password 			TEXT NOT NULL,
	default_currency 	TEXT NOT NULL DEFAULT 'GBP' CHECK (length(default_currency) = 3),
	created_at 			TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS groups (
	id 			SERIAL PRIMARY KEY,
	name 		TEXT NOT NULL,
	created_by 	INT NOT NULL REFERENCES users,
	created_at 	TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS group_members (
	group_id 	INT NOT NULL REFERENCES groups ON DELETE CASCADE,
	user_id 	INT NOT NULL REFERENCES users,
	joined_at 	TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (group_id, user_id)
);

CREATE TABLE IF NOT EXISTS expenses (
	id 				SERIAL PRIMARY KEY,
	group_id 		INT NOT NULL DEFAULT 0,
	payer_id 		INT NOT NULL REFERENCES users,
	payee_id 		INT NOT NULL DEFAULT 0,
	amount 			NUMERIC(20,4) NOT NULL CHECK (amount > 0),
	currency 		TEXT NOT NULL,
	description 	TEXT NOT NULL,
	date 			DATE NOT NULL,
	category 		TEXT NOT NULL DEFAULT 'General',
	is_settlement 	BOOLEAN NOT NULL DEFAULT false,
	created_at 		TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS expenses_group_id ON expenses(group_id);
CREATE INDEX IF NOT EXISTS expenses_payer_id ON expenses(payer_id);

CREATE TABLE IF NOT EXISTS expense_splits (
	expense_id 	INT NOT NULL REFERENCES expenses ON DELETE CASCADE,
	user_id 	INT NOT NULL REFERENCES users,
	owed_share 	NUMERIC(20,4) NOT NULL CHECK (owed_share >= 0),
	PRIMARY KEY (expense_id, user_id)
);

CREATE INDEX IF NOT EXISTS expense_splits_user_id ON expense_splits(user_id);

CREATE TABLE IF NOT EXISTS debts (
	low_user_id 	INT NOT NULL REFERENCES users,
	high_user_id 	INT NOT NULL REFERENCES users,
	group_id 		INT NOT NULL DEFAULT 0,
	amount 			NUMERIC(20,4) NOT NULL DEFAULT 0,
	currency 		TEXT NOT NULL,
	updated_at 		TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (low_user_id, high_user_id, group_id),
	CHECK (low_user_id < high_user_id)
);

CREATE INDEX IF NOT EXISTS debts_high_user_id ON debts(high_user_id);
CREATE INDEX IF NOT EXISTS debts_group_id ON debts(group_id);

CREATE TABLE IF NOT EXISTS notifications (
	id 			SERIAL PRIMARY KEY,
	user_id 	INT NOT NULL REFERENCES users,
	actor_id 	INT NOT NULL REFERENCES users,
	kind 		TEXT NOT NULL,
	related_id 	INT NOT NULL,
	amount 		NUMERIC(20,4) NOT NULL DEFAULT 0,
	currency 	TEXT NOT NULL DEFAULT '',
	is_read 	BOOLEAN NOT NULL DEFAULT false,
	created_at 	TIMESTAMPTZ NOT NULL DEFAULT now()
);

ALTER TABLE notifications ADD COLUMN IF NOT EXISTS is_read BOOLEAN NOT NULL DEFAULT false;

CREATE INDEX IF NOT EXISTS notifications_user_id ON notifications(user_id);

CREATE TABLE IF NOT EXISTS activity_log (
	id 				SERIAL PRIMARY KEY,
	user_id 		INT NOT NULL REFERENCES users,
	action 			TEXT NOT NULL,
	target_type 	TEXT NOT NULL,
	target_id 		INT NOT NULL,
	group_id 		INT NOT NULL DEFAULT 0,
	amount 			NUMERIC(20,4) NOT NULL DEFAULT 0,
	currency 		TEXT NOT NULL DEFAULT '',
	created_at 		TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS activity_log_user_id ON activity_log(user_id);
`

// upsertDebt accumulates into the (low, high, group) record in one statement.
// The WHERE clause refuses to mix currencies: no row is affected on mismatch.
const upsertDebt = `
	INSERT INTO debts (low_user_id, high_user_id, group_id, amount, currency)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (low_user_id, high_user_id, group_id)
	DO UPDATE SET amount = debts.amount + EXCLUDED.amount, updated_at = now()
	WHERE debts.currency = EXCLUDED.currency
`

// Config holds the configuration for the postgresql database
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
}

// DSN returns the lib/pq connection string for c
func (c Config) DSN() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, sslMode)
}

// PgDatabase implements the Database interface for postgresql
type PgDatabase struct {
	config Config
	log    logrus.FieldLogger
}

// PgHandle implements the Handle interface for postgresql
type PgHandle struct {
	pgReader
	db  *sql.DB
	log logrus.FieldLogger
}

// pgTx implements the Tx interface for postgresql
type pgTx struct {
	pgReader
	tx *sql.Tx
}

// queryer is satisfied by both *sql.DB and *sql.Tx
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// pgReader runs the read queries on a handle or a transaction. Inside a
// transaction expense reads take a row lock so concurrent deletes of the same
// expense serialize instead of reversing twice.
type pgReader struct {
	q         queryer
	forUpdate bool
}

// NewPgDatabase creates an instance of PgDatabase
func NewPgDatabase(config Config, log logrus.FieldLogger) PgDatabase {
	return PgDatabase{config: config, log: log.WithField("module", "database")}
}

// Connect creates a connection to the postgres database
func (d PgDatabase) Connect(ctx context.Context) (Handle, error) {
	db, err := sql.Open("postgres", d.config.DSN())
	if err != nil {
		return nil, err
	}

	if err = db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return &PgHandle{pgReader: pgReader{q: db}, db: db, log: d.log}, nil
}

// Close closes the database handle
func (p *PgHandle) Close() {
	p.db.Close()
}

// CreateSchema runs SQL to create the schema. This is required to bootstrap
// the database.
func (p *PgHandle) CreateSchema(ctx context.Context) error {
	p.log.Info("Creating database schema")
	_, err := p.db.ExecContext(ctx, schema)
	return err
}

// translate maps lib/pq errors onto the package's sentinel errors
func translate(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}

	switch pqErr.Code.Name() {
	case "unique_violation":
		return ErrDuplicate
	case "foreign_key_violation":
		return fmt.Errorf("%w: %s", ErrNotFound, pqErr.Detail)
	case "serialization_failure", "deadlock_detected":
		return fmt.Errorf("%w: %s", ErrConflict, pqErr.Message)
	default:
		return err
	}
}

// InTx runs fn inside a transaction. The transaction is committed when fn
// returns nil and rolled back otherwise, including when fn panics.
func (p *PgHandle) InTx(ctx context.Context, fn func(Tx) error) (err error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	if err = fn(&pgTx{pgReader: pgReader{q: tx, forUpdate: true}, tx: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			p.log.WithError(rbErr).Error("Rollback failed")
		}
		return err
	}

	return translate(tx.Commit())
}

// CreateUser inserts a new user into the database. ErrDuplicate is returned
// if another user with the same email already exists.
func (p *PgHandle) CreateUser(ctx context.Context, email, name, password, currency string) (int, error) {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), 8)
	if err != nil {
		return 0, err
	}

	var id int
	err = p.db.QueryRowContext(ctx, `
        INSERT INTO users (email, name, password, default_currency)
        VALUES($1, $2, $3, $4)
        RETURNING id
    `, email, name, hashedPassword, currency).Scan(&id)
	if err != nil {
		return 0, translate(err)
	}

	return id, nil
}

// AuthenticateUser checks if the user with email/password exists in the database
// and the password matches. ErrNotFound if the user doesn't exist. ErrPasswordMismatch
// is returned if the password mismatches.
func (p *PgHandle) AuthenticateUser(ctx context.Context, email string, password string) (int, error) {
	var dbID int
	var dbPassword string
	err := p.db.QueryRowContext(ctx, "SELECT id, password FROM users WHERE email=$1", email).Scan(&dbID, &dbPassword)
	if errors.Is(err, sql.ErrNoRows) {
		p.log.WithField("email", email).Info("Unknown user")
		return 0, ErrNotFound
	} else if err != nil {
		return 0, err
	}

	if err = bcrypt.CompareHashAndPassword([]byte(dbPassword), []byte(password)); err != nil {
		return 0, ErrPasswordMismatch
	}

	return dbID, nil
}

// UpdateUser applies patch in a single parameterized statement. Absent fields
// keep their current value. ErrDuplicate if the new email is taken.
func (p *PgHandle) UpdateUser(ctx context.Context, id int, patch UserPatch) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE users
		SET name = COALESCE($2, name),
			email = COALESCE($3, email),
			default_currency = COALESCE($4, default_currency)
		WHERE id = $1
	`, id, nullString(patch.Name), nullString(patch.Email), nullString(patch.DefaultCurrency))
	if err != nil {
		return translate(err)
	}
	return expectRow(res)
}

// MarkNotificationRead marks notification id read. ErrNotFound unless it
// belongs to userID.
func (p *PgHandle) MarkNotificationRead(ctx context.Context, userID, id int) error {
	res, err := p.db.ExecContext(ctx,
		"UPDATE notifications SET is_read = true WHERE id = $1 AND user_id = $2", id, userID)
	if err != nil {
		return err
	}
	return expectRow(res)
}

// MarkAllNotificationsRead marks every notification of userID read
func (p *PgHandle) MarkAllNotificationsRead(ctx context.Context, userID int) error {
	_, err := p.db.ExecContext(ctx,
		"UPDATE notifications SET is_read = true WHERE user_id = $1 AND NOT is_read", userID)
	return err
}

// nullString turns an optional string into a nullable parameter
func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// expectRow returns ErrNotFound if the statement affected no rows
func expectRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetUser returns one user
func (r pgReader) GetUser(ctx context.Context, id int) (User, error) {
	var u User
	err := r.q.QueryRowContext(ctx,
		"SELECT id, email, name, default_currency FROM users WHERE id=$1", id,
	).Scan(&u.ID, &u.Email, &u.Name, &u.DefaultCurrency)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	return u, err
}

// GetUsers returns all users in the database, ordered by email
func (r pgReader) GetUsers(ctx context.Context) ([]User, error) {
	rows, err := r.q.QueryContext(ctx, "SELECT id, email, name, default_currency FROM users ORDER BY email")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]User, 0)
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Email, &u.Name, &u.DefaultCurrency); err != nil {
			return nil, err
		}
		users = append(users, u)
	}

	return users, rows.Err()
}

// GetGroup returns a group with its members ordered by user id
func (r pgReader) GetGroup(ctx context.Context, id ledger.Group) (Group, error) {
	g := Group{ID: id}
	err := r.q.QueryRowContext(ctx,
		"SELECT name, created_by, created_at FROM groups WHERE id=$1", id,
	).Scan(&g.Name, &g.CreatedBy, &g.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Group{}, ErrNotFound
	} else if err != nil {
		return Group{}, err
	}

	rows, err := r.q.QueryContext(ctx, "SELECT user_id FROM group_members WHERE group_id=$1 ORDER BY user_id", id)
	if err != nil {
		return Group{}, err
	}
	defer rows.Close()

	g.Members = make([]int, 0)
	for rows.Next() {
		var userID int
		if err := rows.Scan(&userID); err != nil {
			return Group{}, err
		}
		g.Members = append(g.Members, userID)
	}

	return g, rows.Err()
}

// GetGroups returns the groups userID belongs to, newest first
func (r pgReader) GetGroups(ctx context.Context, userID int) ([]Group, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT g.id FROM groups g JOIN group_members gm ON (g.id = gm.group_id)
		WHERE gm.user_id = $1
		ORDER BY g.created_at DESC, g.id DESC
	`, userID)
	if err != nil {
		return nil, err
	}

	ids := make([]ledger.Group, 0)
	for rows.Next() {
		var id ledger.Group
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	groups := make([]Group, 0, len(ids))
	for _, id := range ids {
		g, err := r.GetGroup(ctx, id)
		if err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, nil
}

// expenseColumns is the column list scanned by scanExpense
const expenseColumns = "e.id, e.group_id, e.payer_id, e.payee_id, e.amount, e.currency, e.description, e.date, e.category, e.is_settlement, e.created_at"

// scanner is satisfied by *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

// scanExpense scans expenseColumns into an Expense
func scanExpense(s scanner) (ledger.Expense, error) {
	var e ledger.Expense
	err := s.Scan(&e.ID, &e.Group, &e.PayerID, &e.PayeeID, &e.Amount, &e.Currency, &e.Description,
		&e.Date, &e.Category, &e.IsSettlement, &e.CreatedAt)
	return e, err
}

// splits returns the splits of an expense ordered by user id
func (r pgReader) splits(ctx context.Context, expenseID int) ([]ledger.Split, error) {
	rows, err := r.q.QueryContext(ctx,
		"SELECT user_id, owed_share FROM expense_splits WHERE expense_id=$1 ORDER BY user_id", expenseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	splits := make([]ledger.Split, 0)
	for rows.Next() {
		var s ledger.Split
		if err := rows.Scan(&s.UserID, &s.Share); err != nil {
			return nil, err
		}
		splits = append(splits, s)
	}
	return splits, rows.Err()
}

// GetExpense returns an expense with its splits
func (r pgReader) GetExpense(ctx context.Context, id int) (ledger.Expense, error) {
	query := "SELECT " + expenseColumns + " FROM expenses e WHERE e.id=$1"
	if r.forUpdate {
		query += " FOR UPDATE"
	}

	e, err := scanExpense(r.q.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Expense{}, ErrNotFound
	} else if err != nil {
		return ledger.Expense{}, err
	}

	e.Splits, err = r.splits(ctx, id)
	return e, err
}

// GetExpenses returns the expenses matching f, newest first
func (r pgReader) GetExpenses(ctx context.Context, f ExpenseFilter) ([]ledger.Expense, error) {
	conditions := []string{"TRUE"}
	args := []interface{}{}
	if f.UserID != 0 {
		args = append(args, f.UserID)
		conditions = append(conditions, fmt.Sprintf(
			"(e.payer_id = $%[1]d OR e.payee_id = $%[1]d OR EXISTS (SELECT 1 FROM expense_splits es WHERE es.expense_id = e.id AND es.user_id = $%[1]d))",
			len(args)))
	}
	if f.Group != nil {
		args = append(args, *f.Group)
		conditions = append(conditions, fmt.Sprintf("e.group_id = $%d", len(args)))
	}
	args = append(args, limit(f.Limit))

	rows, err := r.q.QueryContext(ctx, fmt.Sprintf(`
		SELECT %s FROM expenses e
		WHERE %s
		ORDER BY e.date DESC, e.id DESC
		LIMIT $%d
	`, expenseColumns, strings.Join(conditions, " AND "), len(args)), args...)
	if err != nil {
		return nil, err
	}

	expenses := make([]ledger.Expense, 0)
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		expenses = append(expenses, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range expenses {
		if expenses[i].Splits, err = r.splits(ctx, expenses[i].ID); err != nil {
			return nil, err
		}
	}
	return expenses, nil
}

// GetDebt returns the record for pair p in group g, ErrNotFound if it has
// never been adjusted
func (r pgReader) GetDebt(ctx context.Context, p ledger.Pair, g ledger.Group) (ledger.DebtRecord, error) {
	rec := ledger.DebtRecord{Pair: p, Group: g}
	err := r.q.QueryRowContext(ctx, `
		SELECT amount, currency FROM debts
		WHERE low_user_id=$1 AND high_user_id=$2 AND group_id=$3
	`, p.Low, p.High, g).Scan(&rec.Amount, &rec.Currency)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.DebtRecord{}, ErrNotFound
	}
	return rec, err
}

// GetDebts returns the debt records matching f, zero records included
func (r pgReader) GetDebts(ctx context.Context, f DebtFilter) ([]ledger.DebtRecord, error) {
	conditions := []string{"TRUE"}
	args := []interface{}{}
	if f.UserID != 0 {
		args = append(args, f.UserID)
		conditions = append(conditions, fmt.Sprintf("(low_user_id = $%d OR high_user_id = $%d)", len(args), len(args)))
	}
	if f.Group != nil {
		args = append(args, *f.Group)
		conditions = append(conditions, fmt.Sprintf("group_id = $%d", len(args)))
	}

	rows, err := r.q.QueryContext(ctx, `
		SELECT low_user_id, high_user_id, group_id, amount, currency FROM debts
		WHERE `+strings.Join(conditions, " AND ")+`
		ORDER BY low_user_id, high_user_id, group_id
	`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]ledger.DebtRecord, 0)
	for rows.Next() {
		var rec ledger.DebtRecord
		if err := rows.Scan(&rec.Low, &rec.High, &rec.Group, &rec.Amount, &rec.Currency); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// GetActivity returns the activity entries of userID and of everyone sharing a
// group with userID, newest first
func (r pgReader) GetActivity(ctx context.Context, userID int, n int) ([]Activity, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, user_id, action, target_type, target_id, group_id, amount, currency, created_at
		FROM activity_log
		WHERE user_id = $1 OR user_id IN (
			SELECT gm2.user_id FROM group_members gm1
			JOIN group_members gm2 ON (gm1.group_id = gm2.group_id)
			WHERE gm1.user_id = $1
		)
		ORDER BY id DESC LIMIT $2
	`, userID, limit(n))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]Activity, 0)
	for rows.Next() {
		var a Activity
		if err := rows.Scan(&a.ID, &a.UserID, &a.Action, &a.TargetType, &a.TargetID, &a.Group,
			&a.Amount, &a.Currency, &a.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, a)
	}
	return entries, rows.Err()
}

// GetNotifications returns the notifications of userID, newest first
func (r pgReader) GetNotifications(ctx context.Context, userID int, n int) ([]Notification, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, user_id, actor_id, kind, related_id, amount, currency, is_read, created_at
		FROM notifications WHERE user_id=$1
		ORDER BY id DESC LIMIT $2
	`, userID, limit(n))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	notifications := make([]Notification, 0)
	for rows.Next() {
		var m Notification
		if err := rows.Scan(&m.ID, &m.UserID, &m.ActorID, &m.Kind, &m.RelatedID, &m.Amount,
			&m.Currency, &m.IsRead, &m.CreatedAt); err != nil {
			return nil, err
		}
		notifications = append(notifications, m)
	}
	return notifications, rows.Err()
}

// CountUnreadNotifications counts the notifications of userID not yet read
func (r pgReader) CountUnreadNotifications(ctx context.Context, userID int) (int, error) {
	var n int
	err := r.q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM notifications WHERE user_id=$1 AND NOT is_read", userID,
	).Scan(&n)
	return n, err
}

// ApplyAdjustment inserts the record for adj or adds adj.Amount to it, as one
// atomic statement. A record is never removed when it reaches zero.
func (t *pgTx) ApplyAdjustment(ctx context.Context, adj ledger.Adjustment, currency string) error {
	res, err := t.tx.ExecContext(ctx, upsertDebt, adj.Low, adj.High, adj.Group, adj.Amount, currency)
	if err != nil {
		err = translate(err)
		if errors.Is(err, ErrDuplicate) {
			// The upsert resolves its own key; a unique violation here is unexpected
			return fmt.Errorf("%w: debt upsert", ErrConflict)
		}
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrCurrencyMismatch
	}
	return nil
}

// CreateExpense creates entries in the expenses and expense_splits tables and
// returns the expense with its new id
func (t *pgTx) CreateExpense(ctx context.Context, e ledger.Expense) (ledger.Expense, error) {
	err := t.tx.QueryRowContext(ctx, `
		INSERT INTO expenses (group_id, payer_id, payee_id, amount, currency, description, date, category, is_settlement)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at
	`, e.Group, e.PayerID, e.PayeeID, e.Amount, e.Currency, e.Description, e.Date, e.Category, e.IsSettlement,
	).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return ledger.Expense{}, translate(err)
	}

	stmt, err := t.tx.PrepareContext(ctx, `
		INSERT INTO expense_splits (expense_id, user_id, owed_share)
		VALUES ($1, $2, $3)
	`)
	if err != nil {
		return ledger.Expense{}, err
	}
	defer stmt.Close()

	for _, s := range e.Splits {
		if _, err = stmt.ExecContext(ctx, e.ID, s.UserID, s.Share); err != nil {
			return ledger.Expense{}, translate(err)
		}
	}

	return e, nil
}

// UpdateExpense applies patch in a single parameterized statement
func (t *pgTx) UpdateExpense(ctx context.Context, id int, patch ledger.ExpensePatch) error {
	var date sql.NullTime
	if patch.Date != nil {
		date = sql.NullTime{Time: *patch.Date, Valid: true}
	}

	res, err := t.tx.ExecContext(ctx, `
		UPDATE expenses
		SET description = COALESCE($2, description),
			category = COALESCE($3, category),
			date = COALESCE($4, date)
		WHERE id = $1
	`, id, nullString(patch.Description), nullString(patch.Category), date)
	if err != nil {
		return translate(err)
	}
	return expectRow(res)
}

// DeleteExpense deletes an expense; its splits go with it by cascade
func (t *pgTx) DeleteExpense(ctx context.Context, id int) error {
	res, err := t.tx.ExecContext(ctx, "DELETE FROM expenses WHERE id=$1", id)
	if err != nil {
		return translate(err)
	}
	return expectRow(res)
}

// CreateGroup inserts a group with no members
func (t *pgTx) CreateGroup(ctx context.Context, name string, createdBy int) (ledger.Group, error) {
	var id ledger.Group
	err := t.tx.QueryRowContext(ctx,
		"INSERT INTO groups (name, created_by) VALUES ($1, $2) RETURNING id", name, createdBy,
	).Scan(&id)
	return id, translate(err)
}

// RenameGroup renames group g
func (t *pgTx) RenameGroup(ctx context.Context, g ledger.Group, name string) error {
	res, err := t.tx.ExecContext(ctx, "UPDATE groups SET name = $2 WHERE id = $1", g, name)
	if err != nil {
		return translate(err)
	}
	return expectRow(res)
}

// AddGroupMember adds userID to group g. ErrDuplicate if already a member.
func (t *pgTx) AddGroupMember(ctx context.Context, g ledger.Group, userID int) error {
	_, err := t.tx.ExecContext(ctx,
		"INSERT INTO group_members (group_id, user_id) VALUES ($1, $2)", g, userID)
	return translate(err)
}

// AddNotification inserts a notification
func (t *pgTx) AddNotification(ctx context.Context, n Notification) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO notifications (user_id, actor_id, kind, related_id, amount, currency)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, n.UserID, n.ActorID, n.Kind, n.RelatedID, n.Amount, n.Currency)
	return translate(err)
}

// AddActivity inserts an activity entry
func (t *pgTx) AddActivity(ctx context.Context, a Activity) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO activity_log (user_id, action, target_type, target_id, group_id, amount, currency)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, a.UserID, a.Action, a.TargetType, a.TargetID, a.Group, a.Amount, a.Currency)
	return translate(err)
}
