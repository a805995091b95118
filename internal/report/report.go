// Package report projects already-validated entities into tabular
// exports. No workflow rules live here.
package report

import (
	"context"
	"encoding/csv"
	"io"
	"sort"
	"strconv"
	"time"

	"grcore.org/internal/access"
	"grcore.org/internal/auth"
	"grcore.org/internal/compliance"
	"grcore.org/internal/risk"
)

// Export is one tabular report ready for CSV encoding.
type Export struct {
	Filename string
	Header   []string
	Rows     [][]string
}

// WriteCSV encodes the export onto w.
func (e Export) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(e.Header); err != nil {
		return err
	}
	for _, row := range e.Rows {
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Service builds exports from the domain stores. Every report requires
// report:export.
type Service struct {
	access     access.Store
	risks      risk.Store
	compliance compliance.Store
}

// NewService constructs a Service.
func NewService(accessStore access.Store, riskStore risk.Store, complianceStore compliance.Store) *Service {
	return &Service{access: accessStore, risks: riskStore, compliance: complianceStore}
}

// AccessReviews exports all access requests, newest first.
func (s *Service) AccessReviews(ctx context.Context, actor auth.Principal) (Export, error) {
	if err := auth.Require(actor, auth.PermReportExport); err != nil {
		return Export{}, err
	}
	requests, err := s.access.List(ctx)
	if err != nil {
		return Export{}, err
	}
	ex := Export{
		Filename: "access_reviews.csv",
		Header:   []string{"id", "resource", "requested_role", "status", "requested_by", "approved_by", "created_at", "decided_at"},
	}
	for _, r := range requests {
		decided := ""
		if r.DecidedAt != nil {
			decided = r.DecidedAt.UTC().Format(time.RFC3339)
		}
		ex.Rows = append(ex.Rows, []string{
			r.ID, r.Resource, r.RequestedRole, string(r.Status),
			r.RequestedBy, r.ApprovedBy,
			r.CreatedAt.UTC().Format(time.RFC3339), decided,
		})
	}
	return ex, nil
}

// RiskSummary exports the register ordered by score, then recency.
func (s *Service) RiskSummary(ctx context.Context, actor auth.Principal) (Export, error) {
	if err := auth.Require(actor, auth.PermReportExport); err != nil {
		return Export{}, err
	}
	risks, err := s.risks.List(ctx)
	if err != nil {
		return Export{}, err
	}
	ex := Export{
		Filename: "risk_summary.csv",
		Header:   []string{"id", "title", "likelihood", "impact", "score", "owner_id", "updated_at"},
	}
	for _, r := range risks {
		ex.Rows = append(ex.Rows, []string{
			r.ID, r.Title,
			strconv.Itoa(r.Likelihood), strconv.Itoa(r.Impact), strconv.Itoa(r.Score),
			r.OwnerID, r.UpdatedAt.UTC().Format(time.RFC3339),
		})
	}
	return ex, nil
}

// ComplianceGap exports mappings joined with control and framework
// names, ordered by framework then control.
func (s *Service) ComplianceGap(ctx context.Context, actor auth.Principal) (Export, error) {
	if err := auth.Require(actor, auth.PermReportExport); err != nil {
		return Export{}, err
	}
	mappings, err := s.compliance.ListMappings(ctx)
	if err != nil {
		return Export{}, err
	}
	controls, err := s.compliance.ListControls(ctx)
	if err != nil {
		return Export{}, err
	}
	frameworks, err := s.compliance.ListFrameworks(ctx)
	if err != nil {
		return Export{}, err
	}
	controlNames := make(map[string]string, len(controls))
	for _, c := range controls {
		controlNames[c.ID] = c.Name
	}
	frameworkNames := make(map[string]string, len(frameworks))
	for _, f := range frameworks {
		frameworkNames[f.ID] = f.Name
	}

	type row struct {
		framework, control, status, notes string
	}
	rows := make([]row, 0, len(mappings))
	for _, m := range mappings {
		rows = append(rows, row{
			framework: frameworkNames[m.FrameworkID],
			control:   controlNames[m.ControlID],
			status:    string(m.Status),
			notes:     m.Notes,
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].framework != rows[j].framework {
			return rows[i].framework < rows[j].framework
		}
		return rows[i].control < rows[j].control
	})

	ex := Export{
		Filename: "compliance_gap.csv",
		Header:   []string{"framework", "control", "status", "notes"},
	}
	for _, r := range rows {
		ex.Rows = append(ex.Rows, []string{r.framework, r.control, r.status, r.notes})
	}
	return ex, nil
}
