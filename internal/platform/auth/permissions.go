package auth

// Permission keys. Each HTTP operation is guarded by exactly one key.
const (
	PermAll = "*"

	PermPatientsManage   = "ed.patients.manage"
	PermPatientsSearch   = "ed.patients.search"
	PermRegisterCreate   = "ed.register.create"
	PermEncounterView    = "ed.encounter.view"
	PermEncounterEdit    = "ed.encounter.edit"
	PermTriageEdit       = "ed.triage.edit"
	PermDispositionApply = "ed.disposition.apply"
	PermNotesEdit        = "ed.notes.edit"
	PermStaffAssign      = "ed.staff.assign"
	PermBoardView        = "ed.board.view"
	PermBedsManage       = "ed.beds.manage"
	PermBedsAssign       = "ed.beds.assign"
	PermAuditView        = "ed.audit.view"
)
