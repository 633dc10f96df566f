package api

import (
	"net/http"

	"github.com/freewilll/splitledger/database"
	"github.com/freewilll/splitledger/service"
)

type userResponse struct {
	ID              int    `json:"id"`
	Email           string `json:"email"`
	Name            string `json:"name"`
	DefaultCurrency string `json:"default_currency"`
}

type usersResponse struct {
	Users []userResponse `json:"users"`
}

type authRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type patchUserRequest struct {
	Name            *string `json:"name"`
	Email           *string `json:"email"`
	DefaultCurrency *string `json:"default_currency"`
}

func newUserResponse(u database.User) userResponse {
	return userResponse{ID: u.ID, Email: u.Email, Name: u.Name, DefaultCurrency: u.DefaultCurrency}
}

// signin handles user authentication with POST requests to the signin endpoint
// If the user authenticates successfully, a JWT token is set in a cookie
func (api *API) signin(w http.ResponseWriter, r *http.Request) {
	var a authRequest
	if !api.decode(w, r, &a) {
		return
	}

	id, err := api.service.Authenticate(r.Context(), a.Email, a.Password)
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}

	cookie, err := api.signer.CreateCookie(id, jwtCookieName)
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	http.SetCookie(w, &cookie)

	u, err := api.service.User(r.Context(), id)
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	api.logger(r).WithField("user_id", id).Info("Signed in")
	writeJSON(w, http.StatusOK, newUserResponse(u))
}

// getUsers returns all users in the database
func (api *API) getUsers(w http.ResponseWriter, r *http.Request, userID int) {
	dbUsers, err := api.service.Users(r.Context())
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}

	users := usersResponse{Users: make([]userResponse, len(dbUsers))}
	for i, u := range dbUsers {
		users.Users[i] = newUserResponse(u)
	}
	writeJSON(w, http.StatusOK, users)
}

// postUsers is the user registration endpoint. A 400 is returned if the
// email is malformed or already taken.
func (api *API) postUsers(w http.ResponseWriter, r *http.Request) {
	var n service.NewUser
	if !api.decode(w, r, &n) {
		return
	}

	id, err := api.service.Register(r.Context(), n)
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}

	u, err := api.service.User(r.Context(), id)
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newUserResponse(u))
}

// patchUsers changes the signed in user's name, email or default currency
func (api *API) patchUsers(w http.ResponseWriter, r *http.Request, userID int) {
	var p patchUserRequest
	if !api.decode(w, r, &p) {
		return
	}

	u, err := api.service.UpdateUser(r.Context(), userID, database.UserPatch{Name: p.Name, Email: p.Email, DefaultCurrency: p.DefaultCurrency})
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newUserResponse(u))
}
