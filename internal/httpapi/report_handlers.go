package httpapi

import (
	"bytes"
	"context"
	"fmt"
	"net/http"

	"grcore.org/internal/auth"
	"grcore.org/internal/report"
)

func (a *API) handleAccessReviewsReport(w http.ResponseWriter, r *http.Request) {
	a.serveCSV(w, r, a.svc.Reports.AccessReviews)
}

func (a *API) handleRiskSummaryReport(w http.ResponseWriter, r *http.Request) {
	a.serveCSV(w, r, a.svc.Reports.RiskSummary)
}

func (a *API) handleComplianceGapReport(w http.ResponseWriter, r *http.Request) {
	a.serveCSV(w, r, a.svc.Reports.ComplianceGap)
}

// serveCSV renders an export into memory before writing, so a failed
// export never emits a truncated download.
func (a *API) serveCSV(w http.ResponseWriter, r *http.Request, build func(context.Context, auth.Principal) (report.Export, error)) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	p, ok := a.principal(w, r)
	if !ok {
		return
	}
	export, err := build(r.Context(), p)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	var buf bytes.Buffer
	if err := export.WriteCSV(&buf); err != nil {
		handleDomainError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.Filename))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}
