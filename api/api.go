package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/freewilll/splitledger/currency"
	"github.com/freewilll/splitledger/jwt"
	"github.com/freewilll/splitledger/ledger"
	"github.com/freewilll/splitledger/service"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const jwtCookieName = "jwt-token"

const requestIDHeader = "X-Request-ID"

type handler func(w http.ResponseWriter, r *http.Request)
type authenticatedHandler func(w http.ResponseWriter, r *http.Request, userID int)

type errorResponse struct {
	Error string `json:"error"`
}

// API holds the config and functionality for HTTP REST/JSON API for the application
type API struct {
	service *service.Service    // Ledger operations
	signer  *jwt.Signer         // Issues and checks auth cookies
	rates   *currency.RateCache // Exchange rates for display conversion
	log     logrus.FieldLogger
}

// NewAPI Creates a new instance of the HTTP REST/JSON API for the application
func NewAPI(svc *service.Service, signer *jwt.Signer, rates *currency.RateCache, log logrus.FieldLogger) *API {
	return &API{service: svc, signer: signer, rates: rates, log: log.WithField("module", "api")}
}

type loggerKey struct{}

// logger returns the request scoped logger set up by withRequestID
func (api *API) logger(r *http.Request) logrus.FieldLogger {
	if log, ok := r.Context().Value(loggerKey{}).(logrus.FieldLogger); ok {
		return log
	}
	return api.log
}

// withRequestID tags every request with an id, taken from the X-Request-ID
// header when the client sent one, and logs it with the request's outcome
func (api *API) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)

		log := api.log.WithFields(logrus.Fields{
			"request_id": id,
			"method":     r.Method,
			"path":       r.URL.Path,
		})
		start := time.Now()
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), loggerKey{}, log)))
		log.WithField("duration", time.Since(start).String()).Debug("Request handled")
	})
}

// writeJSON marshalls data into a response with content-type application/json
func writeJSON(w http.ResponseWriter, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logrus.WithError(err).Error("Unable to write response")
	}
}

// writeError writes a status code and error message
func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, errorResponse{message})
}

// writeServiceError maps a service error onto a status code
func (api *API) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		invalid  *service.ValidationError
		missing  *service.NotFoundError
		conflict *service.ConflictError
	)
	log := api.logger(r).WithError(err)

	switch {
	case errors.As(err, &invalid):
		log.Info("Invalid request")
		writeError(w, http.StatusBadRequest, invalid.Error())
	case errors.As(err, &missing):
		log.Info("Not found")
		writeError(w, http.StatusNotFound, missing.Error())
	case errors.As(err, &conflict):
		log.Warn("Conflicting write")
		writeError(w, http.StatusConflict, "conflicting concurrent update, please retry")
	case errors.Is(err, service.ErrInvalidCredentials):
		log.Info("Authentication failed")
		writeError(w, http.StatusUnauthorized, "authorization failed")
	default:
		log.Error("Request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// decode parses a JSON body into v, writing a 400 on failure
func (api *API) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		api.logger(r).WithError(err).Info("Unable to decode and parse json")
		writeError(w, http.StatusBadRequest, "unable to decode and parse json")
		return false
	}
	return true
}

// queryInt parses an optional integer query parameter
func queryInt(r *http.Request, name string) (int, bool, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, false, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false, &service.ValidationError{Field: name, Reason: "must be an integer"}
	}
	return n, true, nil
}

// queryGroup parses the optional group_id query parameter. Absent means every
// group context, 0 means the personal one.
func queryGroup(r *http.Request) (*ledger.Group, error) {
	n, ok, err := queryInt(r, "group_id")
	if err != nil || !ok {
		return nil, err
	}
	g := ledger.Group(n)
	return &g, nil
}

// parseDate accepts a calendar date or an RFC 3339 timestamp. Empty means
// the zero time, which the service replaces with today.
func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, &service.ValidationError{Field: "date", Reason: "must be YYYY-MM-DD or RFC 3339"}
	}
	return t, nil
}

// methods dispatches on the request method
func methods(routes map[string]handler) handler {
	return func(w http.ResponseWriter, r *http.Request) {
		h, ok := routes[r.Method]
		if !ok {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		h(w, r)
	}
}

// requireAuth is a handler wrapper to ensures a user is authenticated. The userID
// is passed on to the next handler in the chain.
func (api *API) requireAuth(pass authenticatedHandler) handler {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie(jwtCookieName)
		if err != nil {
			api.logger(r).Info("Missing jwt cookie")
			writeError(w, http.StatusUnauthorized, "authorization failed")
			return
		}

		userID, err := api.signer.VerifyToken(c.Value)
		if err != nil {
			api.logger(r).WithError(err).Info("Rejected jwt cookie")
			writeError(w, http.StatusUnauthorized, "authorization failed")
			return
		}

		// Greetings, Professor Falken.
		pass(w, r, userID)
	}
}

// Handler returns the API's routes
func (api *API) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/signin", methods(map[string]handler{http.MethodPost: api.signin}))
	mux.HandleFunc("/users", methods(map[string]handler{
		http.MethodGet:   api.requireAuth(api.getUsers),
		http.MethodPost:  api.postUsers,
		http.MethodPatch: api.requireAuth(api.patchUsers),
	}))
	mux.HandleFunc("/groups", methods(map[string]handler{
		http.MethodGet:   api.requireAuth(api.getGroups),
		http.MethodPost:  api.requireAuth(api.postGroups),
		http.MethodPatch: api.requireAuth(api.patchGroups),
	}))
	mux.HandleFunc("/groups/members", methods(map[string]handler{
		http.MethodPost: api.requireAuth(api.postGroupMembers),
	}))
	mux.HandleFunc("/expenses", methods(map[string]handler{
		http.MethodGet:    api.requireAuth(api.getExpenses),
		http.MethodPost:   api.requireAuth(api.postExpenses),
		http.MethodPatch:  api.requireAuth(api.patchExpenses),
		http.MethodDelete: api.requireAuth(api.deleteExpenses),
	}))
	mux.HandleFunc("/settlements", methods(map[string]handler{http.MethodPost: api.requireAuth(api.postSettlements)}))
	mux.HandleFunc("/balance", methods(map[string]handler{http.MethodGet: api.requireAuth(api.getBalance)}))
	mux.HandleFunc("/summary", methods(map[string]handler{http.MethodGet: api.requireAuth(api.getSummary)}))
	mux.HandleFunc("/debts", methods(map[string]handler{http.MethodGet: api.requireAuth(api.getDebts)}))
	mux.HandleFunc("/friends", methods(map[string]handler{http.MethodGet: api.requireAuth(api.getFriends)}))
	mux.HandleFunc("/activity", methods(map[string]handler{http.MethodGet: api.requireAuth(api.getActivity)}))
	mux.HandleFunc("/notifications", methods(map[string]handler{
		http.MethodGet: api.requireAuth(api.getNotifications),
		http.MethodPut: api.requireAuth(api.putNotifications),
	}))
	mux.HandleFunc("/currencies", methods(map[string]handler{http.MethodGet: api.getCurrencies}))
	mux.HandleFunc("/convert", methods(map[string]handler{http.MethodGet: api.getConvert}))
	return api.withRequestID(mux)
}

// Serve starts up the API on port and blocks until ctx is done
func (api *API) Serve(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	api.log.WithField("port", port).Info("Listening")

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdown)
	}
}
