package httpapi

import (
	"net/http"
)

type createUserRequest struct {
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	Password string `json:"password"`
}

type assignRolesRequest struct {
	Roles []string `json:"roles"`
}

func (a *API) handleUsers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.createUser(w, r)
	case http.MethodGet:
		a.listUsers(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) createUser(w http.ResponseWriter, r *http.Request) {
	p, ok := a.principal(w, r)
	if !ok {
		return
	}
	var req createUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	user, err := a.svc.Auth.CreateUser(r.Context(), p, req.Email, req.FullName, req.Password)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	locationHeader(w, "/users/%s", user.ID)
	writeJSON(w, http.StatusCreated, user)
}

func (a *API) listUsers(w http.ResponseWriter, r *http.Request) {
	p, ok := a.principal(w, r)
	if !ok {
		return
	}
	users, err := a.svc.Auth.ListUsers(r.Context(), p)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (a *API) handleUserScoped(w http.ResponseWriter, r *http.Request) {
	parts := pathSegment(r, "/users/")
	if len(parts) != 2 || parts[1] != "roles" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	p, ok := a.principal(w, r)
	if !ok {
		return
	}
	var req assignRolesRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	summary, err := a.svc.Auth.AssignRoles(r.Context(), p, parts[0], req.Roles)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
