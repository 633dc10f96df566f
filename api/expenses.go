package api

import (
	"net/http"

	"github.com/freewilll/splitledger/ledger"
	"github.com/freewilll/splitledger/service"
	"github.com/shopspring/decimal"
)

type createExpenseRequest struct {
	PaidBy       int             `json:"paid_by"`
	Amount       decimal.Decimal `json:"amount"`
	Currency     string          `json:"currency"`
	GroupID      ledger.Group    `json:"group_id"`
	Description  string          `json:"description"`
	Date         string          `json:"date"`
	Category     string          `json:"category"`
	Participants []int           `json:"participants"`
	Splits       []ledger.Split  `json:"splits"`
}

type patchExpenseRequest struct {
	Description *string `json:"description"`
	Category    *string `json:"category"`
	Date        *string `json:"date"`
}

type createSettlementRequest struct {
	PayeeID  int             `json:"payee_id"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
	GroupID  ledger.Group    `json:"group_id"`
	Date     string          `json:"date"`
}

type expensesResponse struct {
	Expenses []ledger.Expense `json:"expenses"`
}

// expenseID reads the required id query parameter
func expenseID(r *http.Request) (int, error) {
	id, ok, err := queryInt(r, "id")
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, &service.ValidationError{Field: "id", Reason: "is required"}
	}
	return id, nil
}

// postExpenses adds an expense. The signed in user pays unless paid_by names
// someone else, in which case the signed in user must be a participant.
func (api *API) postExpenses(w http.ResponseWriter, r *http.Request, userID int) {
	var e createExpenseRequest
	if !api.decode(w, r, &e) {
		return
	}

	date, err := parseDate(e.Date)
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}

	payer := e.PaidBy
	if payer == 0 {
		payer = userID
	}
	if payer != userID && !contains(e.Participants, userID) && !contains(ledger.SplitUsers(e.Splits), userID) {
		api.writeServiceError(w, r, &service.ValidationError{Field: "paid_by", Reason: "you must pay for or share in the expense"})
		return
	}

	expense, err := api.service.CreateExpense(r.Context(), service.NewExpense{
		PayerID:      payer,
		Amount:       e.Amount,
		Currency:     e.Currency,
		Group:        e.GroupID,
		Description:  e.Description,
		Date:         date,
		Category:     e.Category,
		Participants: e.Participants,
		Splits:       e.Splits,
	})
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, expense)
}

// getExpenses returns one expense when id is given, else the user's
// expenses, optionally in one group context
func (api *API) getExpenses(w http.ResponseWriter, r *http.Request, userID int) {
	if r.URL.Query().Get("id") != "" {
		id, err := expenseID(r)
		if err != nil {
			api.writeServiceError(w, r, err)
			return
		}
		expense, err := api.service.GetExpense(r.Context(), id, userID)
		if err != nil {
			api.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, expense)
		return
	}

	group, err := queryGroup(r)
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	limit, _, err := queryInt(r, "limit")
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}

	expenses, err := api.service.ListExpenses(r.Context(), userID, group, limit)
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, expensesResponse{Expenses: expenses})
}

// patchExpenses changes an expense's description, category or date
func (api *API) patchExpenses(w http.ResponseWriter, r *http.Request, userID int) {
	id, err := expenseID(r)
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	var p patchExpenseRequest
	if !api.decode(w, r, &p) {
		return
	}

	patch := ledger.ExpensePatch{Description: p.Description, Category: p.Category}
	if p.Date != nil {
		date, err := parseDate(*p.Date)
		if err != nil || date.IsZero() {
			api.writeServiceError(w, r, &service.ValidationError{Field: "date", Reason: "must be YYYY-MM-DD or RFC 3339"})
			return
		}
		patch.Date = &date
	}

	expense, err := api.service.UpdateExpense(r.Context(), id, userID, patch)
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, expense)
}

// deleteExpenses deletes an expense or settlement and reverses its debts
func (api *API) deleteExpenses(w http.ResponseWriter, r *http.Request, userID int) {
	id, err := expenseID(r)
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	if err := api.service.DeleteExpense(r.Context(), id, userID); err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// postSettlements records the signed in user paying payee_id
func (api *API) postSettlements(w http.ResponseWriter, r *http.Request, userID int) {
	var s createSettlementRequest
	if !api.decode(w, r, &s) {
		return
	}
	date, err := parseDate(s.Date)
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}

	settlement, err := api.service.RecordSettlement(r.Context(), service.NewSettlement{
		PayerID:  userID,
		PayeeID:  s.PayeeID,
		Amount:   s.Amount,
		Currency: s.Currency,
		Group:    s.GroupID,
		Date:     date,
	})
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, settlement)
}

func contains(ids []int, id int) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
