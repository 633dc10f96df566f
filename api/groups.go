package api

import (
	"net/http"

	"github.com/freewilll/splitledger/database"
	"github.com/freewilll/splitledger/ledger"
)

type createGroupRequest struct {
	Name    string `json:"name"`
	Members []int  `json:"members"`
}

type renameGroupRequest struct {
	GroupID ledger.Group `json:"group_id"`
	Name    string       `json:"name"`
}

type addMemberRequest struct {
	GroupID ledger.Group `json:"group_id"`
	UserID  int          `json:"user_id"`
}

type groupsResponse struct {
	Groups   []database.Group      `json:"groups"`
	Balances []ledger.GroupBalance `json:"balances"`
}

// getGroups returns the user's groups and the user's net in each context
func (api *API) getGroups(w http.ResponseWriter, r *http.Request, userID int) {
	groups, err := api.service.GroupsFor(r.Context(), userID)
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	balances, err := api.service.GroupBalances(r.Context(), userID)
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, groupsResponse{Groups: groups, Balances: balances})
}

// postGroups creates a group with the user in it
func (api *API) postGroups(w http.ResponseWriter, r *http.Request, userID int) {
	var g createGroupRequest
	if !api.decode(w, r, &g) {
		return
	}

	group, err := api.service.CreateGroup(r.Context(), g.Name, userID, g.Members)
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, group)
}

// patchGroups renames one of the user's groups
func (api *API) patchGroups(w http.ResponseWriter, r *http.Request, userID int) {
	var g renameGroupRequest
	if !api.decode(w, r, &g) {
		return
	}

	group, err := api.service.RenameGroup(r.Context(), g.GroupID, userID, g.Name)
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, group)
}

// postGroupMembers adds a user to one of the user's groups
func (api *API) postGroupMembers(w http.ResponseWriter, r *http.Request, userID int) {
	var m addMemberRequest
	if !api.decode(w, r, &m) {
		return
	}

	if err := api.service.AddGroupMember(r.Context(), m.GroupID, userID, m.UserID); err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	group, err := api.service.GetGroup(r.Context(), m.GroupID, userID)
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, group)
}
