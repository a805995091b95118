package httpapi

import (
	"net/http"
	"strconv"

	"grcore.org/internal/auth"
	"grcore.org/internal/compliance"
	"grcore.org/internal/risk"
)

type createAccessRequestBody struct {
	Resource      string `json:"resource"`
	RequestedRole string `json:"requested_role"`
}

func (a *API) handleAccessRequests(w http.ResponseWriter, r *http.Request) {
	p, ok := a.principal(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodPost:
		var req createAccessRequestBody
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		created, err := a.svc.Access.Create(r.Context(), p, req.Resource, req.RequestedRole)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		locationHeader(w, "/access-requests/%s", created.ID)
		writeJSON(w, http.StatusCreated, created)
	case http.MethodGet:
		list, err := a.svc.Access.List(r.Context(), p)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleAccessRequestScoped(w http.ResponseWriter, r *http.Request) {
	parts := pathSegment(r, "/access-requests/")
	if len(parts) != 2 {
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
	id := parts[0]
	switch parts[1] {
	case "approve":
		decided, err := a.svc.Access.Approve(r.Context(), p, id)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, decided)
	case "deny":
		decided, err := a.svc.Access.Deny(r.Context(), p, id)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, decided)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

type createRiskBody struct {
	Title          string `json:"title"`
	Description    string `json:"description"`
	Likelihood     int    `json:"likelihood"`
	Impact         int    `json:"impact"`
	OwnerID        string `json:"owner_id"`
	MitigationPlan string `json:"mitigation_plan"`
}

type updateRiskBody struct {
	Title          *string `json:"title"`
	Description    *string `json:"description"`
	Likelihood     *int    `json:"likelihood"`
	Impact         *int    `json:"impact"`
	OwnerID        *string `json:"owner_id"`
	MitigationPlan *string `json:"mitigation_plan"`
}

func (a *API) handleRisks(w http.ResponseWriter, r *http.Request) {
	p, ok := a.principal(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodPost:
		var req createRiskBody
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		created, err := a.svc.Risks.Create(r.Context(), p, risk.CreateInput{
			Title:          req.Title,
			Description:    req.Description,
			Likelihood:     req.Likelihood,
			Impact:         req.Impact,
			OwnerID:        req.OwnerID,
			MitigationPlan: req.MitigationPlan,
		})
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		locationHeader(w, "/risks/%s", created.ID)
		writeJSON(w, http.StatusCreated, created)
	case http.MethodGet:
		list, err := a.svc.Risks.List(r.Context(), p)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleRiskScoped(w http.ResponseWriter, r *http.Request) {
	parts := pathSegment(r, "/risks/")
	if len(parts) != 1 {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodPatch {
		methodNotAllowed(w, r, http.MethodPatch)
		return
	}
	p, ok := a.principal(w, r)
	if !ok {
		return
	}
	var req updateRiskBody
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	updated, err := a.svc.Risks.Update(r.Context(), p, parts[0], risk.Update{
		Title:          req.Title,
		Description:    req.Description,
		Likelihood:     req.Likelihood,
		Impact:         req.Impact,
		OwnerID:        req.OwnerID,
		MitigationPlan: req.MitigationPlan,
	})
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

type createFrameworkBody struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type createControlBody struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type createMappingBody struct {
	ControlID   string `json:"control_id"`
	FrameworkID string `json:"framework_id"`
	Status      string `json:"status"`
	Notes       string `json:"notes"`
}

func (a *API) handleFrameworks(w http.ResponseWriter, r *http.Request) {
	p, ok := a.principal(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodPost:
		var req createFrameworkBody
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		created, err := a.svc.Compliance.CreateFramework(r.Context(), p, req.Name, req.Description)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	case http.MethodGet:
		list, err := a.svc.Compliance.ListFrameworks(r.Context(), p)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleControls(w http.ResponseWriter, r *http.Request) {
	p, ok := a.principal(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodPost:
		var req createControlBody
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		created, err := a.svc.Compliance.CreateControl(r.Context(), p, req.Name, req.Description)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	case http.MethodGet:
		list, err := a.svc.Compliance.ListControls(r.Context(), p)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleMappings(w http.ResponseWriter, r *http.Request) {
	p, ok := a.principal(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodPost:
		var req createMappingBody
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		created, err := a.svc.Compliance.CreateMapping(r.Context(), p,
			req.ControlID, req.FrameworkID, compliance.MappingStatus(req.Status), req.Notes)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	case http.MethodGet:
		list, err := a.svc.Compliance.ListMappings(r.Context(), p)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleAuditLog(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	p, ok := a.principal(w, r)
	if !ok {
		return
	}
	// The audit package sits below auth, so the permission gate lives
	// here instead of on the recorder.
	if err := auth.Require(p, auth.PermAuditRead); err != nil {
		handleDomainError(w, r, err)
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "limit must be an integer")
			return
		}
		limit = n
	}
	entries, err := a.svc.Audit.List(r.Context(), limit)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}
