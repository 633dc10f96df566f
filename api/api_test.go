package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/freewilll/splitledger/cache"
	"github.com/freewilll/splitledger/currency"
	"github.com/freewilll/splitledger/database"
	"github.com/freewilll/splitledger/jwt"
	"github.com/freewilll/splitledger/ledger"
	"github.com/freewilll/splitledger/service"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixedRates serves a constant table
type fixedRates struct{}

func (fixedRates) Fetch(_ context.Context, base string) (currency.Rates, error) {
	return currency.Rates{Base: base, Values: map[string]decimal.Decimal{
		"USD": decimal.NewFromInt(1),
		"GBP": decimal.RequireFromString("0.5"),
		"EUR": decimal.RequireFromString("0.8"),
	}}, nil
}

func newTestHandler(t *testing.T) http.Handler {
	t.Helper()
	db, err := database.NewInMemoryDatabase().Connect(context.Background())
	require.NoError(t, err)
	log, _ := test.NewNullLogger()

	svc := service.New(db, cache.NewInMemoryCache(), log)
	rates := currency.NewRateCache(fixedRates{}, "USD", time.Hour, nil, log)
	return NewAPI(svc, jwt.NewSigner([]byte("test-key"), time.Hour), rates, log).Handler()
}

// do sends a request with an optional JSON body and auth cookie
func do(t *testing.T, h http.Handler, method, target string, body interface{}, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	request := httptest.NewRequest(method, target, &buf)
	request.Header.Set("Content-Type", "application/json")
	if cookie != nil {
		request.AddCookie(cookie)
	}
	response := httptest.NewRecorder()
	h.ServeHTTP(response, request)
	return response
}

func decodeBody(t *testing.T, response *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(response.Body).Decode(v), "body: %s", response.Body.String())
}

// register creates a user and signs them in
func register(t *testing.T, h http.Handler, email string) (int, *http.Cookie) {
	t.Helper()
	response := do(t, h, http.MethodPost, "/users", map[string]string{"email": email, "name": email, "password": "secret"}, nil)
	require.Equal(t, http.StatusCreated, response.Code, response.Body.String())
	var u userResponse
	decodeBody(t, response, &u)

	response = do(t, h, http.MethodPost, "/signin", authRequest{Email: email, Password: "secret"}, nil)
	require.Equal(t, http.StatusOK, response.Code, response.Body.String())
	for _, c := range response.Result().Cookies() {
		if c.Name == jwtCookieName {
			return u.ID, c
		}
	}
	t.Fatalf("no %s cookie in signin response", jwtCookieName)
	return 0, nil
}

func TestUsersAndSignin(t *testing.T) {
	h := newTestHandler(t)

	response := do(t, h, http.MethodGet, "/users", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, response.Code)

	id1, cookie := register(t, h, "test1@example.com")
	id2, _ := register(t, h, "test2@example.com")

	response = do(t, h, http.MethodPost, "/users", map[string]string{"email": "test1@example.com", "name": "x", "password": "secret"}, nil)
	assert.Equal(t, http.StatusBadRequest, response.Code, "duplicate email")

	response = do(t, h, http.MethodPost, "/users", map[string]string{"email": "nope", "name": "x", "password": "secret"}, nil)
	assert.Equal(t, http.StatusBadRequest, response.Code, "bad email")

	response = do(t, h, http.MethodPost, "/signin", authRequest{Email: "test1@example.com", Password: "wrong"}, nil)
	assert.Equal(t, http.StatusUnauthorized, response.Code)

	response = do(t, h, http.MethodGet, "/users", nil, &http.Cookie{Name: jwtCookieName, Value: "forged"})
	assert.Equal(t, http.StatusUnauthorized, response.Code)

	response = do(t, h, http.MethodGet, "/users", nil, cookie)
	require.Equal(t, http.StatusOK, response.Code)
	var users usersResponse
	decodeBody(t, response, &users)
	require.Len(t, users.Users, 2)
	assert.Equal(t, id1, users.Users[0].ID)
	assert.Equal(t, id2, users.Users[1].ID)
	assert.Equal(t, "GBP", users.Users[0].DefaultCurrency)

	response = do(t, h, http.MethodPatch, "/users", map[string]string{"default_currency": "usd"}, cookie)
	require.Equal(t, http.StatusOK, response.Code, response.Body.String())
	var u userResponse
	decodeBody(t, response, &u)
	assert.Equal(t, "USD", u.DefaultCurrency)

	response = do(t, h, http.MethodPatch, "/users", map[string]string{"email": "test2@example.com"}, cookie)
	assert.Equal(t, http.StatusBadRequest, response.Code, "email taken")

	response = do(t, h, http.MethodPatch, "/users", map[string]string{"email": "Renamed@example.com"}, cookie)
	require.Equal(t, http.StatusOK, response.Code, response.Body.String())
	decodeBody(t, response, &u)
	assert.Equal(t, "renamed@example.com", u.Email)

	response = do(t, h, http.MethodPost, "/signin", authRequest{Email: "renamed@example.com", Password: "secret"}, nil)
	assert.Equal(t, http.StatusOK, response.Code)
}

func TestExpenseLifecycle(t *testing.T) {
	h := newTestHandler(t)
	id1, cookie1 := register(t, h, "u1@example.com")
	id2, cookie2 := register(t, h, "u2@example.com")
	id3, _ := register(t, h, "u3@example.com")

	response := do(t, h, http.MethodPost, "/groups", createGroupRequest{Name: "Flat", Members: []int{id2, id3}}, cookie1)
	require.Equal(t, http.StatusCreated, response.Code, response.Body.String())
	var group database.Group
	decodeBody(t, response, &group)

	response = do(t, h, http.MethodPost, "/expenses", map[string]interface{}{
		"amount":       "120",
		"currency":     "GBP",
		"group_id":     group.ID,
		"description":  "Groceries",
		"date":         "2024-03-01",
		"participants": []int{id1, id2, id3},
	}, cookie1)
	require.Equal(t, http.StatusCreated, response.Code, response.Body.String())
	var expense ledger.Expense
	decodeBody(t, response, &expense)
	assert.Equal(t, id1, expense.PayerID)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), expense.Date.UTC())

	response = do(t, h, http.MethodGet, fmt.Sprintf("/summary?group_id=%d", group.ID), nil, cookie1)
	require.Equal(t, http.StatusOK, response.Code)
	var summary ledger.Summary
	decodeBody(t, response, &summary)
	assert.True(t, summary.TotalOwed.IsZero())
	assert.Equal(t, "80", summary.TotalOwing.String())
	assert.Equal(t, "80", summary.NetBalance.String())

	response = do(t, h, http.MethodGet, fmt.Sprintf("/balance?counterpart_id=%d&group_id=%d", id1, group.ID), nil, cookie2)
	require.Equal(t, http.StatusOK, response.Code)
	var balance balanceResponse
	decodeBody(t, response, &balance)
	assert.Equal(t, "-40", balance.Balance.String())

	response = do(t, h, http.MethodGet, "/debts", nil, cookie1)
	require.Equal(t, http.StatusOK, response.Code)
	var debts debtsResponse
	decodeBody(t, response, &debts)
	require.Len(t, debts.Debts, 2)
	assert.Equal(t, ledger.DirectionOwed, debts.Debts[0].Direction)

	response = do(t, h, http.MethodGet, "/expenses", nil, cookie2)
	require.Equal(t, http.StatusOK, response.Code)
	var expenses expensesResponse
	decodeBody(t, response, &expenses)
	require.Len(t, expenses.Expenses, 1)

	response = do(t, h, http.MethodPatch, fmt.Sprintf("/expenses?id=%d", expense.ID), map[string]string{"category": "Food"}, cookie2)
	require.Equal(t, http.StatusOK, response.Code, response.Body.String())
	decodeBody(t, response, &expense)
	assert.Equal(t, "Food", expense.Category)

	response = do(t, h, http.MethodDelete, fmt.Sprintf("/expenses?id=%d", expense.ID), nil, cookie1)
	require.Equal(t, http.StatusNoContent, response.Code)

	response = do(t, h, http.MethodGet, "/summary", nil, cookie1)
	require.Equal(t, http.StatusOK, response.Code)
	decodeBody(t, response, &summary)
	assert.True(t, summary.NetBalance.IsZero())

	response = do(t, h, http.MethodGet, "/activity", nil, cookie1)
	require.Equal(t, http.StatusOK, response.Code)
	var activity activityResponse
	decodeBody(t, response, &activity)
	require.NotEmpty(t, activity.Activity)
	assert.Equal(t, database.ActionDelete, activity.Activity[0].Action)
}

func TestSettlement(t *testing.T) {
	h := newTestHandler(t)
	id1, cookie1 := register(t, h, "u1@example.com")
	id2, cookie2 := register(t, h, "u2@example.com")

	response := do(t, h, http.MethodPost, "/expenses", map[string]interface{}{
		"amount":      40,
		"currency":    "GBP",
		"description": "Tickets",
		"splits":      []map[string]interface{}{{"user_id": id2, "owed_share": "40"}},
	}, cookie1)
	require.Equal(t, http.StatusCreated, response.Code, response.Body.String())

	response = do(t, h, http.MethodPost, "/settlements", map[string]interface{}{"payee_id": id2, "amount": "40", "currency": "GBP"}, cookie2)
	assert.Equal(t, http.StatusBadRequest, response.Code, "cannot pay yourself")

	response = do(t, h, http.MethodPost, "/settlements", map[string]interface{}{"payee_id": id1, "amount": "40", "currency": "GBP"}, cookie2)
	require.Equal(t, http.StatusCreated, response.Code, response.Body.String())

	response = do(t, h, http.MethodGet, fmt.Sprintf("/balance?counterpart_id=%d", id2), nil, cookie1)
	require.Equal(t, http.StatusOK, response.Code)
	var balance balanceResponse
	decodeBody(t, response, &balance)
	assert.True(t, balance.Balance.IsZero(), "got %s", balance.Balance)

	response = do(t, h, http.MethodGet, "/notifications", nil, cookie1)
	require.Equal(t, http.StatusOK, response.Code)
	var notifications notificationsResponse
	decodeBody(t, response, &notifications)
	require.Len(t, notifications.Notifications, 1)
	assert.Equal(t, database.NotifySettlement, notifications.Notifications[0].Kind)
	assert.Equal(t, 1, notifications.UnreadCount)

	response = do(t, h, http.MethodPut, "/notifications", map[string]interface{}{}, cookie1)
	assert.Equal(t, http.StatusBadRequest, response.Code, "nothing to mark")

	response = do(t, h, http.MethodPut, "/notifications", markReadRequest{NotificationID: notifications.Notifications[0].ID}, cookie2)
	assert.Equal(t, http.StatusNotFound, response.Code, "someone else's notification")

	response = do(t, h, http.MethodPut, "/notifications", markReadRequest{MarkAllRead: true}, cookie1)
	require.Equal(t, http.StatusOK, response.Code, response.Body.String())
	var unread unreadResponse
	decodeBody(t, response, &unread)
	assert.Zero(t, unread.UnreadCount)

	response = do(t, h, http.MethodGet, "/friends", nil, cookie1)
	require.Equal(t, http.StatusOK, response.Code)
	var friends friendsResponse
	decodeBody(t, response, &friends)
	require.Len(t, friends.Friends, 1)
	assert.True(t, friends.Friends[0].Balance.IsZero())
}

func TestGroups(t *testing.T) {
	h := newTestHandler(t)
	_, cookie1 := register(t, h, "u1@example.com")
	id2, _ := register(t, h, "u2@example.com")
	_, cookie3 := register(t, h, "u3@example.com")

	response := do(t, h, http.MethodPost, "/groups", createGroupRequest{Name: "Flat", Members: []int{id2}}, cookie1)
	require.Equal(t, http.StatusCreated, response.Code, response.Body.String())
	var group database.Group
	decodeBody(t, response, &group)

	response = do(t, h, http.MethodPatch, "/groups", renameGroupRequest{GroupID: group.ID, Name: "Old flat"}, cookie1)
	require.Equal(t, http.StatusOK, response.Code, response.Body.String())
	decodeBody(t, response, &group)
	assert.Equal(t, "Old flat", group.Name)

	response = do(t, h, http.MethodPatch, "/groups", renameGroupRequest{GroupID: group.ID, Name: "Mine"}, cookie3)
	assert.Equal(t, http.StatusNotFound, response.Code, "not a member")

	response = do(t, h, http.MethodGet, "/friends", nil, cookie1)
	require.Equal(t, http.StatusOK, response.Code)
	var friends friendsResponse
	decodeBody(t, response, &friends)
	require.Len(t, friends.Friends, 1, "co-members are friends before any expense")
	assert.Equal(t, id2, friends.Friends[0].UserID)
	assert.True(t, friends.Friends[0].Balance.IsZero())
}

func TestErrorStatuses(t *testing.T) {
	h := newTestHandler(t)
	_, cookie := register(t, h, "u1@example.com")

	tests := []struct {
		name   string
		method string
		target string
		body   interface{}
		want   int
	}{
		{"non-positive amount", http.MethodPost, "/expenses",
			map[string]interface{}{"amount": "0", "currency": "GBP", "description": "x", "participants": []int{1}}, http.StatusBadRequest},
		{"unknown participant", http.MethodPost, "/expenses",
			map[string]interface{}{"amount": "10", "currency": "GBP", "description": "x", "participants": []int{1, 99}}, http.StatusNotFound},
		{"unknown group", http.MethodPost, "/expenses",
			map[string]interface{}{"amount": "10", "currency": "GBP", "description": "x", "participants": []int{1}, "group_id": 7}, http.StatusNotFound},
		{"bad date", http.MethodPost, "/expenses",
			map[string]interface{}{"amount": "10", "currency": "GBP", "description": "x", "participants": []int{1}, "date": "soon"}, http.StatusBadRequest},
		{"bad json", http.MethodPost, "/expenses", "not an object", http.StatusBadRequest},
		{"delete without id", http.MethodDelete, "/expenses", nil, http.StatusBadRequest},
		{"delete unknown", http.MethodDelete, "/expenses?id=5", nil, http.StatusNotFound},
		{"bad group filter", http.MethodGet, "/summary?group_id=x", nil, http.StatusBadRequest},
		{"balance without counterpart", http.MethodGet, "/balance", nil, http.StatusBadRequest},
		{"balance with self", http.MethodGet, "/balance?counterpart_id=1", nil, http.StatusBadRequest},
		{"wrong method", http.MethodPut, "/expenses", nil, http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			response := do(t, h, tt.method, tt.target, tt.body, cookie)
			assert.Equal(t, tt.want, response.Code, response.Body.String())
			if tt.want != http.StatusMethodNotAllowed {
				var e errorResponse
				decodeBody(t, response, &e)
				assert.NotEmpty(t, e.Error)
			}
		})
	}
}

func TestCurrencies(t *testing.T) {
	h := newTestHandler(t)

	response := do(t, h, http.MethodGet, "/currencies", nil, nil)
	require.Equal(t, http.StatusOK, response.Code)
	var currencies currenciesResponse
	decodeBody(t, response, &currencies)
	require.NotEmpty(t, currencies.Currencies)
	assert.Equal(t, "GBP", currencies.Currencies[0].Code)

	response = do(t, h, http.MethodGet, "/convert?amount=100&from=usd&to=GBP", nil, nil)
	require.Equal(t, http.StatusOK, response.Code, response.Body.String())
	var converted convertResponse
	decodeBody(t, response, &converted)
	assert.Equal(t, "50", converted.Result.String())
	assert.Equal(t, "£50.00", converted.Formatted)

	response = do(t, h, http.MethodGet, "/convert?amount=100&from=USD&to=ZZZ", nil, nil)
	assert.Equal(t, http.StatusBadRequest, response.Code)

	response = do(t, h, http.MethodGet, "/convert?amount=lots&from=USD&to=GBP", nil, nil)
	assert.Equal(t, http.StatusBadRequest, response.Code)

	response = do(t, h, http.MethodGet, "/convert?amount=1&from=USD&to=JPY", nil, nil)
	assert.Equal(t, http.StatusBadRequest, response.Code, "no rate for JPY in the table")
}

func TestRequestID(t *testing.T) {
	h := newTestHandler(t)

	response := do(t, h, http.MethodGet, "/currencies", nil, nil)
	assert.NotEmpty(t, response.Header().Get(requestIDHeader))

	request := httptest.NewRequest(http.MethodGet, "/currencies", nil)
	request.Header.Set(requestIDHeader, "abc-123")
	recorder := httptest.NewRecorder()
	h.ServeHTTP(recorder, request)
	assert.Equal(t, "abc-123", recorder.Header().Get(requestIDHeader))
}
