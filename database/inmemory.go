package database

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/freewilll/splitledger/ledger"
	"golang.org/x/crypto/bcrypt"
)

// userWithPassword is a database entry for a user
type userWithPassword struct {
	User
	Password []byte
}

// memState is everything the in memory database stores. It is copied whole at
// the start of a transaction so a failed transaction can be undone.
type memState struct {
	users         []userWithPassword
	groups        map[ledger.Group]Group
	expenses      map[int]ledger.Expense
	debts         map[debtKey]ledger.DebtRecord
	notifications []Notification
	activity      []Activity
	nextGroup     ledger.Group
	nextExpense   int
}

// debtKey is the unique key of a debt record
type debtKey struct {
	pair  ledger.Pair
	group ledger.Group
}

// InMemoryDatabase implements the Database interface for an in memory database
type InMemoryDatabase struct {
	mu    sync.Mutex
	state *memState
	now   func() time.Time
}

// InMemoryHandle implements the Handle interface for an in memory database
type InMemoryHandle struct {
	db *InMemoryDatabase
}

// inMemoryTx implements the Tx interface. The database lock is held for the
// lifetime of the transaction.
type inMemoryTx struct {
	*memState
	now func() time.Time
}

// NewInMemoryDatabase creates an instance of InMemoryDatabase
func NewInMemoryDatabase() *InMemoryDatabase {
	return &InMemoryDatabase{
		state: &memState{
			groups:   make(map[ledger.Group]Group),
			expenses: make(map[int]ledger.Expense),
			debts:    make(map[debtKey]ledger.DebtRecord),
		},
		now: time.Now,
	}
}

// Connect creates a handle for the in memory database
func (d *InMemoryDatabase) Connect(_ context.Context) (Handle, error) {
	return &InMemoryHandle{db: d}, nil
}

// clone makes a copy of s that shares nothing mutable with it
func (s *memState) clone() *memState {
	c := *s
	c.users = append([]userWithPassword(nil), s.users...)
	c.groups = make(map[ledger.Group]Group, len(s.groups))
	for k, g := range s.groups {
		g.Members = append([]int(nil), g.Members...)
		c.groups[k] = g
	}
	c.expenses = make(map[int]ledger.Expense, len(s.expenses))
	for k, e := range s.expenses {
		e.Splits = append([]ledger.Split(nil), e.Splits...)
		c.expenses[k] = e
	}
	c.debts = make(map[debtKey]ledger.DebtRecord, len(s.debts))
	for k, r := range s.debts {
		c.debts[k] = r
	}
	c.notifications = append([]Notification(nil), s.notifications...)
	c.activity = append([]Activity(nil), s.activity...)
	return &c
}

// Close is a noop
func (h *InMemoryHandle) Close() {}

// CreateSchema is a noop
func (h *InMemoryHandle) CreateSchema(_ context.Context) error { return nil }

// InTx runs fn with the database locked. If fn fails or panics every write it
// made is discarded.
func (h *InMemoryHandle) InTx(ctx context.Context, fn func(Tx) error) error {
	h.db.mu.Lock()
	defer h.db.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	snapshot := h.db.state
	work := snapshot.clone()
	committed := false
	defer func() {
		if !committed {
			h.db.state = snapshot
		}
	}()

	h.db.state = work
	if err := fn(&inMemoryTx{memState: work, now: h.db.now}); err != nil {
		return err
	}
	committed = true
	return nil
}

// read runs fn on the current state with the database locked
func (h *InMemoryHandle) read(fn func(s *memState)) {
	h.db.mu.Lock()
	defer h.db.mu.Unlock()
	fn(h.db.state)
}

// CreateUser adds a user
func (h *InMemoryHandle) CreateUser(_ context.Context, email, name, password, currency string) (int, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return 0, err
	}

	h.db.mu.Lock()
	defer h.db.mu.Unlock()

	for _, u := range h.db.state.users {
		if u.Email == email {
			return 0, ErrDuplicate
		}
	}

	userID := len(h.db.state.users) + 1
	h.db.state.users = append(h.db.state.users, userWithPassword{
		User:     User{ID: userID, Email: email, Name: name, DefaultCurrency: currency},
		Password: hashed,
	})
	return userID, nil
}

// AuthenticateUser checks email and password against the stored bcrypt hash
func (h *InMemoryHandle) AuthenticateUser(_ context.Context, email string, password string) (int, error) {
	var found *userWithPassword
	h.read(func(s *memState) {
		for i := range s.users {
			if s.users[i].Email == email {
				u := s.users[i]
				found = &u
			}
		}
	})

	if found == nil {
		return 0, ErrNotFound
	}
	if bcrypt.CompareHashAndPassword(found.Password, []byte(password)) != nil {
		return 0, ErrPasswordMismatch
	}
	return found.ID, nil
}

// UpdateUser applies patch to a user
func (h *InMemoryHandle) UpdateUser(_ context.Context, id int, patch UserPatch) error {
	h.db.mu.Lock()
	defer h.db.mu.Unlock()

	if id < 1 || id > len(h.db.state.users) {
		return ErrNotFound
	}
	if patch.Email != nil {
		for _, other := range h.db.state.users {
			if other.ID != id && other.Email == *patch.Email {
				return ErrDuplicate
			}
		}
	}

	u := &h.db.state.users[id-1]
	if patch.Email != nil {
		u.Email = *patch.Email
	}
	if patch.Name != nil {
		u.Name = *patch.Name
	}
	if patch.DefaultCurrency != nil {
		u.DefaultCurrency = *patch.DefaultCurrency
	}
	return nil
}

// GetUser returns one user
func (h *InMemoryHandle) GetUser(ctx context.Context, id int) (u User, err error) {
	h.read(func(s *memState) { u, err = s.GetUser(ctx, id) })
	return u, err
}

// GetUsers returns a list of all users
func (h *InMemoryHandle) GetUsers(ctx context.Context) (users []User, err error) {
	h.read(func(s *memState) { users, err = s.GetUsers(ctx) })
	return users, err
}

// GetGroup returns a group
func (h *InMemoryHandle) GetGroup(ctx context.Context, id ledger.Group) (g Group, err error) {
	h.read(func(s *memState) { g, err = s.GetGroup(ctx, id) })
	return g, err
}

// GetGroups returns the groups of a user
func (h *InMemoryHandle) GetGroups(ctx context.Context, userID int) (groups []Group, err error) {
	h.read(func(s *memState) { groups, err = s.GetGroups(ctx, userID) })
	return groups, err
}

// GetExpense returns an expense
func (h *InMemoryHandle) GetExpense(ctx context.Context, id int) (e ledger.Expense, err error) {
	h.read(func(s *memState) { e, err = s.GetExpense(ctx, id) })
	return e, err
}

// GetExpenses returns a list of expenses
func (h *InMemoryHandle) GetExpenses(ctx context.Context, f ExpenseFilter) (expenses []ledger.Expense, err error) {
	h.read(func(s *memState) { expenses, err = s.GetExpenses(ctx, f) })
	return expenses, err
}

// GetDebt returns a debt record
func (h *InMemoryHandle) GetDebt(ctx context.Context, p ledger.Pair, g ledger.Group) (r ledger.DebtRecord, err error) {
	h.read(func(s *memState) { r, err = s.GetDebt(ctx, p, g) })
	return r, err
}

// GetDebts returns a list of debt records
func (h *InMemoryHandle) GetDebts(ctx context.Context, f DebtFilter) (records []ledger.DebtRecord, err error) {
	h.read(func(s *memState) { records, err = s.GetDebts(ctx, f) })
	return records, err
}

// GetActivity returns a user's activity feed
func (h *InMemoryHandle) GetActivity(ctx context.Context, userID int, n int) (entries []Activity, err error) {
	h.read(func(s *memState) { entries, err = s.GetActivity(ctx, userID, n) })
	return entries, err
}

// GetNotifications returns a user's notifications
func (h *InMemoryHandle) GetNotifications(ctx context.Context, userID int, n int) (notifications []Notification, err error) {
	h.read(func(s *memState) { notifications, err = s.GetNotifications(ctx, userID, n) })
	return notifications, err
}

// CountUnreadNotifications counts a user's unread notifications
func (h *InMemoryHandle) CountUnreadNotifications(ctx context.Context, userID int) (n int, err error) {
	h.read(func(s *memState) { n, err = s.CountUnreadNotifications(ctx, userID) })
	return n, err
}

// MarkNotificationRead marks notification id read. ErrNotFound unless it
// belongs to userID.
func (h *InMemoryHandle) MarkNotificationRead(_ context.Context, userID, id int) error {
	h.db.mu.Lock()
	defer h.db.mu.Unlock()

	for i := range h.db.state.notifications {
		n := &h.db.state.notifications[i]
		if n.ID == id && n.UserID == userID {
			n.IsRead = true
			return nil
		}
	}
	return ErrNotFound
}

// MarkAllNotificationsRead marks every notification of userID read
func (h *InMemoryHandle) MarkAllNotificationsRead(_ context.Context, userID int) error {
	h.db.mu.Lock()
	defer h.db.mu.Unlock()

	for i := range h.db.state.notifications {
		if h.db.state.notifications[i].UserID == userID {
			h.db.state.notifications[i].IsRead = true
		}
	}
	return nil
}

// The memState methods below assume the caller holds the database lock.

func (s *memState) GetUser(_ context.Context, id int) (User, error) {
	if id < 1 || id > len(s.users) {
		return User{}, ErrNotFound
	}
	return s.users[id-1].User, nil
}

func (s *memState) GetUsers(_ context.Context) ([]User, error) {
	users := make([]User, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, u.User)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Email < users[j].Email })
	return users, nil
}

func (s *memState) GetGroup(_ context.Context, id ledger.Group) (Group, error) {
	g, ok := s.groups[id]
	if !ok {
		return Group{}, ErrNotFound
	}
	g.Members = append([]int{}, g.Members...)
	sort.Ints(g.Members)
	return g, nil
}

func (s *memState) GetGroups(ctx context.Context, userID int) ([]Group, error) {
	groups := make([]Group, 0)
	for id, g := range s.groups {
		if containsInt(g.Members, userID) {
			g, _ := s.GetGroup(ctx, id)
			groups = append(groups, g)
		}
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].ID > groups[j].ID })
	return groups, nil
}

func (s *memState) GetExpense(_ context.Context, id int) (ledger.Expense, error) {
	e, ok := s.expenses[id]
	if !ok {
		return ledger.Expense{}, ErrNotFound
	}
	e.Splits = append([]ledger.Split{}, e.Splits...)
	return e, nil
}

func (s *memState) GetExpenses(ctx context.Context, f ExpenseFilter) ([]ledger.Expense, error) {
	expenses := make([]ledger.Expense, 0)
	for id, e := range s.expenses {
		if f.Group != nil && e.Group != *f.Group {
			continue
		}
		if f.UserID != 0 && e.PayerID != f.UserID && e.PayeeID != f.UserID && !hasSplit(e, f.UserID) {
			continue
		}
		e, _ = s.GetExpense(ctx, id)
		expenses = append(expenses, e)
	}

	sort.Slice(expenses, func(i, j int) bool {
		if !expenses[i].Date.Equal(expenses[j].Date) {
			return expenses[i].Date.After(expenses[j].Date)
		}
		return expenses[i].ID > expenses[j].ID
	})
	if n := limit(f.Limit); len(expenses) > n {
		expenses = expenses[:n]
	}
	return expenses, nil
}

// hasSplit reports whether userID has a split in e
func hasSplit(e ledger.Expense, userID int) bool {
	for _, sp := range e.Splits {
		if sp.UserID == userID {
			return true
		}
	}
	return false
}

func (s *memState) GetDebt(_ context.Context, p ledger.Pair, g ledger.Group) (ledger.DebtRecord, error) {
	r, ok := s.debts[debtKey{p, g}]
	if !ok {
		return ledger.DebtRecord{}, ErrNotFound
	}
	return r, nil
}

func (s *memState) GetDebts(_ context.Context, f DebtFilter) ([]ledger.DebtRecord, error) {
	records := make([]ledger.DebtRecord, 0)
	for _, r := range s.debts {
		if f.matches(r) {
			records = append(records, r)
		}
	}
	sort.Slice(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if a.Low != b.Low {
			return a.Low < b.Low
		}
		if a.High != b.High {
			return a.High < b.High
		}
		return a.Group < b.Group
	})
	return records, nil
}

func (s *memState) GetActivity(_ context.Context, userID int, n int) ([]Activity, error) {
	visible := map[int]bool{userID: true}
	for _, g := range s.groups {
		if containsInt(g.Members, userID) {
			for _, m := range g.Members {
				visible[m] = true
			}
		}
	}

	entries := make([]Activity, 0)
	for i := len(s.activity) - 1; i >= 0 && len(entries) < limit(n); i-- {
		if visible[s.activity[i].UserID] {
			entries = append(entries, s.activity[i])
		}
	}
	return entries, nil
}

func containsInt(ids []int, id int) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func (s *memState) GetNotifications(_ context.Context, userID int, n int) ([]Notification, error) {
	notifications := make([]Notification, 0)
	for i := len(s.notifications) - 1; i >= 0 && len(notifications) < limit(n); i-- {
		if s.notifications[i].UserID == userID {
			notifications = append(notifications, s.notifications[i])
		}
	}
	return notifications, nil
}

func (s *memState) CountUnreadNotifications(_ context.Context, userID int) (int, error) {
	n := 0
	for _, m := range s.notifications {
		if m.UserID == userID && !m.IsRead {
			n++
		}
	}
	return n, nil
}

// userExists returns ErrNotFound unless id is a known user
func (s *memState) userExists(id int) error {
	if id < 1 || id > len(s.users) {
		return ErrNotFound
	}
	return nil
}

// ApplyAdjustment inserts the record for adj or accumulates into it
func (t *inMemoryTx) ApplyAdjustment(_ context.Context, adj ledger.Adjustment, currency string) error {
	if adj.Low >= adj.High {
		return ErrConflict
	}
	if err := t.userExists(adj.Low); err != nil {
		return err
	}
	if err := t.userExists(adj.High); err != nil {
		return err
	}

	key := debtKey{adj.Pair, adj.Group}
	r, ok := t.debts[key]
	if !ok {
		t.debts[key] = ledger.DebtRecord{Pair: adj.Pair, Group: adj.Group, Amount: adj.Amount, Currency: currency}
		return nil
	}
	if r.Currency != currency {
		return ErrCurrencyMismatch
	}
	r.Amount = r.Amount.Add(adj.Amount)
	t.debts[key] = r
	return nil
}

// CreateExpense creates an expense
func (t *inMemoryTx) CreateExpense(_ context.Context, e ledger.Expense) (ledger.Expense, error) {
	if err := t.userExists(e.PayerID); err != nil {
		return ledger.Expense{}, err
	}
	if e.PayeeID != 0 {
		if err := t.userExists(e.PayeeID); err != nil {
			return ledger.Expense{}, err
		}
	}
	seen := make(map[int]bool, len(e.Splits))
	for _, s := range e.Splits {
		if err := t.userExists(s.UserID); err != nil {
			return ledger.Expense{}, err
		}
		if seen[s.UserID] {
			return ledger.Expense{}, ErrDuplicate
		}
		seen[s.UserID] = true
	}

	t.nextExpense++
	e.ID = t.nextExpense
	e.CreatedAt = t.now()
	e.Splits = append([]ledger.Split{}, e.Splits...)
	t.expenses[e.ID] = e
	return e, nil
}

// UpdateExpense applies patch to an expense
func (t *inMemoryTx) UpdateExpense(_ context.Context, id int, patch ledger.ExpensePatch) error {
	e, ok := t.expenses[id]
	if !ok {
		return ErrNotFound
	}
	t.expenses[id] = patch.Apply(e)
	return nil
}

// DeleteExpense deletes an expense together with its splits
func (t *inMemoryTx) DeleteExpense(_ context.Context, id int) error {
	if _, ok := t.expenses[id]; !ok {
		return ErrNotFound
	}
	delete(t.expenses, id)
	return nil
}

// CreateGroup creates an empty group
func (t *inMemoryTx) CreateGroup(_ context.Context, name string, createdBy int) (ledger.Group, error) {
	if err := t.userExists(createdBy); err != nil {
		return 0, err
	}
	t.nextGroup++
	t.groups[t.nextGroup] = Group{ID: t.nextGroup, Name: name, CreatedBy: createdBy, Members: []int{}, CreatedAt: t.now()}
	return t.nextGroup, nil
}

// RenameGroup renames a group
func (t *inMemoryTx) RenameGroup(_ context.Context, id ledger.Group, name string) error {
	g, ok := t.groups[id]
	if !ok {
		return ErrNotFound
	}
	g.Name = name
	t.groups[id] = g
	return nil
}

// AddGroupMember adds a member to a group
func (t *inMemoryTx) AddGroupMember(_ context.Context, id ledger.Group, userID int) error {
	g, ok := t.groups[id]
	if !ok {
		return ErrNotFound
	}
	if err := t.userExists(userID); err != nil {
		return err
	}
	if containsInt(g.Members, userID) {
		return ErrDuplicate
	}
	g.Members = append(g.Members, userID)
	t.groups[id] = g
	return nil
}

// AddNotification queues a notification
func (t *inMemoryTx) AddNotification(_ context.Context, n Notification) error {
	n.ID = len(t.notifications) + 1
	n.CreatedAt = t.now()
	t.notifications = append(t.notifications, n)
	return nil
}

// AddActivity logs an activity entry
func (t *inMemoryTx) AddActivity(_ context.Context, a Activity) error {
	a.ID = len(t.activity) + 1
	a.CreatedAt = t.now()
	t.activity = append(t.activity, a)
	return nil
}
