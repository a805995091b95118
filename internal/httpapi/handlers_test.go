package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"grcore.org/internal/access"
	"grcore.org/internal/audit"
	"grcore.org/internal/auth"
	"grcore.org/internal/compliance"
	"grcore.org/internal/report"
	"grcore.org/internal/risk"
	"grcore.org/internal/seed"
	"grcore.org/internal/store/memory"
)

type apiClient struct {
	baseURL string
	client  *http.Client
	t       *testing.T
}

func newTestAPI(t *testing.T) *apiClient {
	t.Helper()

	store := memory.New()
	spec := seed.Default()
	spec.Users = append(spec.Users,
		seed.UserSpec{Email: "manager@test", Password: "pw", Roles: []string{"Manager"}},
		seed.UserSpec{Email: "employee@test", Password: "pw", Roles: []string{"Employee"}},
	)
	if err := seed.New(store, store.Compliance()).Apply(context.Background(), spec); err != nil {
		t.Fatalf("seed: %v", err)
	}

	authSvc, err := auth.NewService(store, "test-secret")
	if err != nil {
		t.Fatalf("auth service: %v", err)
	}
	api := New(Services{
		Auth:       authSvc,
		Access:     access.NewService(store.AccessRequests()),
		Risks:      risk.NewService(store.Risks()),
		Compliance: compliance.NewService(store.Compliance()),
		Reports:    report.NewService(store.AccessRequests(), store.Risks(), store.Compliance()),
		Audit:      audit.NewRecorder(store.Audit()),
	}, ReadyProbe{}, "test")

	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	return &apiClient{baseURL: srv.URL, client: srv.Client(), t: t}
}

func (c *apiClient) do(method, path string, body any, headers map[string]string) *http.Response {
	c.t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			c.t.Fatalf("marshal body: %v", err)
		}
	}
	req, err := http.NewRequest(method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("do request: %v", err)
	}
	return resp
}

func (c *apiClient) post(path string, body any, headers map[string]string) *http.Response {
	return c.do(http.MethodPost, path, body, headers)
}

func (c *apiClient) get(path string, headers map[string]string) *http.Response {
	return c.do(http.MethodGet, path, nil, headers)
}

func (c *apiClient) patch(path string, body any, headers map[string]string) *http.Response {
	return c.do(http.MethodPatch, path, body, headers)
}

func (c *apiClient) login(email, password string) map[string]string {
	c.t.Helper()
	resp := c.post("/auth/login", map[string]string{"email": email, "password": password}, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		c.t.Fatalf("login %s: status %d", email, resp.StatusCode)
	}
	var token struct {
		AccessToken string `json:"access_token"`
	}
	decode(c.t, resp.Body, &token)
	return map[string]string{"Authorization": "Bearer " + token.AccessToken}
}

func decode(t *testing.T, r io.Reader, dst any) {
	t.Helper()
	if err := json.NewDecoder(r).Decode(dst); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestHealthzIsPublic(t *testing.T) {
	c := newTestAPI(t)
	resp := c.get("/healthz", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
}

func TestUnauthenticatedRequestsAreRejected(t *testing.T) {
	c := newTestAPI(t)
	for _, path := range []string{"/auth/me", "/users", "/risks", "/audit"} {
		resp := c.get(path, nil)
		resp.Body.Close()
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", path, resp.StatusCode)
		}
	}
}

func TestLoginFailureIsGeneric(t *testing.T) {
	c := newTestAPI(t)
	for _, attempt := range []map[string]string{
		{"email": "admin@grcore.local", "password": "wrong"},
		{"email": "ghost@test", "password": "pw"},
	} {
		resp := c.post("/auth/login", attempt, nil)
		var body map[string]any
		decode(t, resp.Body, &body)
		resp.Body.Close()
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", resp.StatusCode)
		}
		if body["error"] != "authentication required" {
			t.Fatalf("error message leaks cause: %v", body["error"])
		}
	}
}

func TestMeReturnsResolvedPrincipal(t *testing.T) {
	c := newTestAPI(t)
	hdr := c.login("employee@test", "pw")

	resp := c.get("/auth/me", hdr)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	var me struct {
		Email       string   `json:"email"`
		Roles       []string `json:"roles"`
		Permissions []string `json:"permissions"`
	}
	decode(t, resp.Body, &me)
	if me.Email != "employee@test" {
		t.Fatalf("wrong identity: %+v", me)
	}
	if len(me.Roles) != 1 || me.Roles[0] != "Employee" {
		t.Fatalf("wrong roles: %v", me.Roles)
	}
	want := []string{"access:read", "compliance:read", "risk:read"}
	if len(me.Permissions) != len(want) {
		t.Fatalf("wrong permissions: %v", me.Permissions)
	}
	for i, p := range want {
		if me.Permissions[i] != p {
			t.Fatalf("permissions not sorted as expected: %v", me.Permissions)
		}
	}
}

func TestUserManagement(t *testing.T) {
	c := newTestAPI(t)
	admin := c.login("admin@grcore.local", "change-me-now")
	employee := c.login("employee@test", "pw")

	resp := c.post("/users", map[string]string{
		"email": "new@test", "full_name": "New User", "password": "pw",
	}, admin)
	var created struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	}
	decode(t, resp.Body, &created)
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create: status %d", resp.StatusCode)
	}

	// Duplicate email conflicts.
	resp = c.post("/users", map[string]string{"email": "new@test", "password": "pw"}, admin)
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate: expected 409, got %d", resp.StatusCode)
	}

	// Missing permission names the codes.
	resp = c.post("/users", map[string]string{"email": "x@test", "password": "pw"}, employee)
	var denied struct {
		Missing []string `json:"missing_permissions"`
	}
	decode(t, resp.Body, &denied)
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
	if len(denied.Missing) != 1 || denied.Missing[0] != "user:write" {
		t.Fatalf("expected missing [user:write], got %v", denied.Missing)
	}

	// Unknown role names are a validation failure.
	resp = c.post("/users/"+created.ID+"/roles", map[string][]string{"roles": {"Admin", "Wizard"}}, admin)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("unknown role: expected 400, got %d", resp.StatusCode)
	}

	resp = c.post("/users/"+created.ID+"/roles", map[string][]string{"roles": {"Auditor"}}, admin)
	var summary struct {
		Roles []string `json:"roles"`
	}
	decode(t, resp.Body, &summary)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || len(summary.Roles) != 1 || summary.Roles[0] != "Auditor" {
		t.Fatalf("assign roles: status %d, roles %v", resp.StatusCode, summary.Roles)
	}
}

func TestAccessRequestWorkflow(t *testing.T) {
	c := newTestAPI(t)
	employee := c.login("employee@test", "pw")
	manager := c.login("manager@test", "pw")

	resp := c.post("/access-requests", map[string]string{
		"resource": "prod-db", "requested_role": "reader",
	}, employee)
	var req struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	decode(t, resp.Body, &req)
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated || req.Status != "PENDING" {
		t.Fatalf("create: status %d, state %s", resp.StatusCode, req.Status)
	}

	// Filing a request grants no say in its outcome.
	resp = c.post("/access-requests/"+req.ID+"/approve", nil, employee)
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("self approve: expected 403, got %d", resp.StatusCode)
	}

	resp = c.post("/access-requests/"+req.ID+"/approve", nil, manager)
	var decided struct {
		Status     string `json:"status"`
		ApprovedBy string `json:"approved_by"`
		DecidedAt  string `json:"decided_at"`
	}
	decode(t, resp.Body, &decided)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || decided.Status != "APPROVED" {
		t.Fatalf("approve: status %d, state %s", resp.StatusCode, decided.Status)
	}
	if decided.ApprovedBy == "" || decided.DecidedAt == "" {
		t.Fatalf("decision fields missing: %+v", decided)
	}

	// Re-deciding is an invalid state transition.
	resp = c.post("/access-requests/"+req.ID+"/deny", nil, manager)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("re-decide: expected 400, got %d", resp.StatusCode)
	}

	resp = c.post("/access-requests/missing/approve", nil, manager)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("missing request: expected 404, got %d", resp.StatusCode)
	}
}

func TestRiskEndpoints(t *testing.T) {
	c := newTestAPI(t)
	manager := c.login("manager@test", "pw")
	employee := c.login("employee@test", "pw")

	resp := c.post("/risks", map[string]any{
		"title": "Unpatched servers", "likelihood": 2, "impact": 3,
	}, manager)
	var created struct {
		ID    string `json:"id"`
		Score int    `json:"score"`
	}
	decode(t, resp.Body, &created)
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated || created.Score != 6 {
		t.Fatalf("create: status %d, score %d", resp.StatusCode, created.Score)
	}

	resp = c.post("/risks", map[string]any{"title": "bad", "likelihood": 0, "impact": 2}, manager)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("out of range: expected 400, got %d", resp.StatusCode)
	}

	resp = c.patch("/risks/"+created.ID, map[string]any{"impact": 1}, manager)
	var updated struct {
		Score int `json:"score"`
	}
	decode(t, resp.Body, &updated)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || updated.Score != 2 {
		t.Fatalf("patch: status %d, score %d", resp.StatusCode, updated.Score)
	}

	// Employees can read but not write.
	resp = c.get("/risks", employee)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("employee list: expected 200, got %d", resp.StatusCode)
	}
	resp = c.patch("/risks/"+created.ID, map[string]any{"impact": 2}, employee)
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("employee patch: expected 403, got %d", resp.StatusCode)
	}
}

func TestMappingConflictOverHTTP(t *testing.T) {
	c := newTestAPI(t)
	admin := c.login("admin@grcore.local", "change-me-now")

	resp := c.post("/compliance/frameworks", map[string]string{"name": "NIST CSF"}, admin)
	var fw struct {
		ID string `json:"id"`
	}
	decode(t, resp.Body, &fw)
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("framework: status %d", resp.StatusCode)
	}

	resp = c.post("/compliance/controls", map[string]string{"name": "Patching"}, admin)
	var ctl struct {
		ID string `json:"id"`
	}
	decode(t, resp.Body, &ctl)
	resp.Body.Close()

	body := map[string]string{"control_id": ctl.ID, "framework_id": fw.ID, "status": "COMPLIANT"}
	resp = c.post("/compliance/mappings", body, admin)
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("mapping: status %d", resp.StatusCode)
	}
	resp = c.post("/compliance/mappings", body, admin)
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate mapping: expected 409, got %d", resp.StatusCode)
	}

	resp = c.post("/compliance/mappings", map[string]string{
		"control_id": "nope", "framework_id": fw.ID,
	}, admin)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("unknown control: expected 400, got %d", resp.StatusCode)
	}
}

func TestReportDownload(t *testing.T) {
	c := newTestAPI(t)
	manager := c.login("manager@test", "pw")
	employee := c.login("employee@test", "pw")

	resp := c.get("/reports/risk-summary", manager)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Fatalf("content type %q", ct)
	}
	if cd := resp.Header.Get("Content-Disposition"); !strings.Contains(cd, "risk_summary.csv") {
		t.Fatalf("content disposition %q", cd)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.HasPrefix(string(raw), "id,title,likelihood") {
		t.Fatalf("unexpected CSV head: %q", string(raw[:min(len(raw), 40)]))
	}

	denied := c.get("/reports/risk-summary", employee)
	denied.Body.Close()
	if denied.StatusCode != http.StatusForbidden {
		t.Fatalf("employee export: expected 403, got %d", denied.StatusCode)
	}
}

func TestAuditTrailEndpoint(t *testing.T) {
	c := newTestAPI(t)
	admin := c.login("admin@grcore.local", "change-me-now")
	employee := c.login("employee@test", "pw")

	resp := c.post("/risks", map[string]any{"title": "first", "likelihood": 1, "impact": 1}, admin)
	resp.Body.Close()
	resp = c.post("/risks", map[string]any{"title": "second", "likelihood": 2, "impact": 2}, admin)
	resp.Body.Close()

	resp = c.get("/audit", admin)
	var entries []struct {
		Action  string `json:"action"`
		Details string `json:"details"`
	}
	decode(t, resp.Body, &entries)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Details != "score=4" {
		t.Fatalf("expected newest first, got %+v", entries)
	}

	denied := c.get("/audit", employee)
	denied.Body.Close()
	if denied.StatusCode != http.StatusForbidden {
		t.Fatalf("employee audit read: expected 403, got %d", denied.StatusCode)
	}

	// Query param must be numeric.
	resp = c.get("/audit?limit=abc", admin)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad limit: expected 400, got %d", resp.StatusCode)
	}
}

func TestRequestIDPropagation(t *testing.T) {
	c := newTestAPI(t)
	resp := c.get("/healthz", map[string]string{"X-Request-Id": "req-123"})
	defer resp.Body.Close()
	if got := resp.Header.Get("X-Request-Id"); got != "req-123" {
		t.Fatalf("expected inbound id echoed, got %q", got)
	}
}
