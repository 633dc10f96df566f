package api

import (
	"net/http"

	"github.com/freewilll/splitledger/currency"
	"github.com/freewilll/splitledger/database"
	"github.com/freewilll/splitledger/ledger"
	"github.com/freewilll/splitledger/service"
	"github.com/shopspring/decimal"
)

type balanceResponse struct {
	UserID      int             `json:"user_id"`
	Counterpart int             `json:"counterpart_id"`
	Group       ledger.Group    `json:"group_id"`
	Balance     decimal.Decimal `json:"balance"`
}

type debtsResponse struct {
	Debts []ledger.Debt `json:"debts"`
}

type friendsResponse struct {
	Friends []ledger.FriendBalance `json:"friends"`
}

type activityResponse struct {
	Activity []database.Activity `json:"activity"`
}

type notificationsResponse struct {
	Notifications []database.Notification `json:"notifications"`
	UnreadCount   int                     `json:"unread_count"`
}

type markReadRequest struct {
	NotificationID int  `json:"notification_id"`
	MarkAllRead    bool `json:"mark_all_read"`
}

type unreadResponse struct {
	UnreadCount int `json:"unread_count"`
}

type currenciesResponse struct {
	Currencies []currency.Info `json:"currencies"`
}

type convertResponse struct {
	Amount    decimal.Decimal `json:"amount"`
	From      string          `json:"from"`
	To        string          `json:"to"`
	Result    decimal.Decimal `json:"result"`
	Formatted string          `json:"formatted"`
}

// getBalance returns the user's signed balance against counterpart_id in
// group_id (the personal context when absent)
func (api *API) getBalance(w http.ResponseWriter, r *http.Request, userID int) {
	counterpart, ok, err := queryInt(r, "counterpart_id")
	if err == nil && !ok {
		err = &service.ValidationError{Field: "counterpart_id", Reason: "is required"}
	}
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	group, err := queryGroup(r)
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	g := ledger.NoGroup
	if group != nil {
		g = *group
	}

	balance, err := api.service.BalanceOf(r.Context(), userID, counterpart, g)
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse{UserID: userID, Counterpart: counterpart, Group: g, Balance: balance})
}

// getSummary returns the user's totals, over every context or one group_id
func (api *API) getSummary(w http.ResponseWriter, r *http.Request, userID int) {
	group, err := queryGroup(r)
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}

	summary, err := api.service.SummaryFor(r.Context(), userID, group)
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// getDebts lists the user's debts pair by pair
func (api *API) getDebts(w http.ResponseWriter, r *http.Request, userID int) {
	group, err := queryGroup(r)
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}

	debts, err := api.service.DebtsFor(r.Context(), userID, group)
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, debtsResponse{Debts: debts})
}

// getFriends returns the user's net against each counterpart
func (api *API) getFriends(w http.ResponseWriter, r *http.Request, userID int) {
	friends, err := api.service.FriendBalances(r.Context(), userID)
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, friendsResponse{Friends: friends})
}

func (api *API) getActivity(w http.ResponseWriter, r *http.Request, userID int) {
	limit, _, err := queryInt(r, "limit")
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	activity, err := api.service.Activity(r.Context(), userID, limit)
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, activityResponse{Activity: activity})
}

func (api *API) getNotifications(w http.ResponseWriter, r *http.Request, userID int) {
	limit, _, err := queryInt(r, "limit")
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	notifications, err := api.service.Notifications(r.Context(), userID, limit)
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	unread, err := api.service.UnreadCount(r.Context(), userID)
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, notificationsResponse{Notifications: notifications, UnreadCount: unread})
}

// putNotifications marks one notification, or with mark_all_read every
// notification of the user, as read
func (api *API) putNotifications(w http.ResponseWriter, r *http.Request, userID int) {
	var m markReadRequest
	if !api.decode(w, r, &m) {
		return
	}

	var err error
	switch {
	case m.MarkAllRead:
		err = api.service.MarkAllNotificationsRead(r.Context(), userID)
	case m.NotificationID > 0:
		err = api.service.MarkNotificationRead(r.Context(), userID, m.NotificationID)
	default:
		err = &service.ValidationError{Field: "notification_id", Reason: "is required unless mark_all_read is set"}
	}
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}

	unread, err := api.service.UnreadCount(r.Context(), userID)
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, unreadResponse{UnreadCount: unread})
}

// getCurrencies lists the currencies users may pick
func (api *API) getCurrencies(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, currenciesResponse{Currencies: currency.Supported()})
}

// getConvert converts amount between two currencies for display. Ledger
// amounts are never converted.
func (api *API) getConvert(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	amount, err := decimal.NewFromString(q.Get("amount"))
	if err != nil {
		api.writeServiceError(w, r, &service.ValidationError{Field: "amount", Reason: "must be a number"})
		return
	}
	from, err := currency.Normalize(q.Get("from"))
	if err != nil {
		api.writeServiceError(w, r, &service.ValidationError{Field: "from", Reason: err.Error()})
		return
	}
	to, err := currency.Normalize(q.Get("to"))
	if err != nil {
		api.writeServiceError(w, r, &service.ValidationError{Field: "to", Reason: err.Error()})
		return
	}

	result, err := api.rates.Rates(r.Context()).Convert(amount, from, to)
	if err != nil {
		api.writeServiceError(w, r, &service.ValidationError{Field: "to", Reason: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, convertResponse{
		Amount:    amount,
		From:      from,
		To:        to,
		Result:    result,
		Formatted: currency.Format(result, to),
	})
}
