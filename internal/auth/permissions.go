package auth

// Permission codes form a fixed, flat vocabulary with no hierarchy.
const (
	PermUserRead        = "user:read"
	PermUserWrite       = "user:write"
	PermAccessRead      = "access:read"
	PermAccessApprove   = "access:approve"
	PermRiskRead        = "risk:read"
	PermRiskWrite       = "risk:write"
	PermComplianceRead  = "compliance:read"
	PermComplianceWrite = "compliance:write"
	PermAuditRead       = "audit:read"
	PermReportExport    = "report:export"
)

// BuiltinPermissions is the complete authorization vocabulary.
var BuiltinPermissions = []string{
	PermUserRead,
	PermUserWrite,
	PermAccessRead,
	PermAccessApprove,
	PermRiskRead,
	PermRiskWrite,
	PermComplianceRead,
	PermComplianceWrite,
	PermAuditRead,
	PermReportExport,
}
