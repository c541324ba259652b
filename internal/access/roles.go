package access

// Role is a principal's relationship to one client, taken from assignment labels.
type Role string

const (
	RolePrimaryClinician Role = "primary_clinician"
	RoleClinician        Role = "clinician"
	RoleSocialWorker     Role = "social_worker"
	RoleSupervisor       Role = "supervisor"
	RoleIntern           Role = "intern"
)

// rolePrecedence ranks labels; higher wins. Labels not listed rank 0, below intern.
var rolePrecedence = map[Role]int{
	RolePrimaryClinician: 5,
	RoleClinician:        4,
	RoleSocialWorker:     3,
	RoleSupervisor:       2,
	RoleIntern:           1,
}

// Outranks reports whether r takes precedence over other. Ties between two
// unknown labels break lexically so resolution stays deterministic.
func (r Role) Outranks(other Role) bool {
	a, b := rolePrecedence[r], rolePrecedence[other]
	if a != b {
		return a > b
	}
	return r < other
}

// Permission names a client-scoped operation.
type Permission string

const (
	PermAccess             Permission = "access"
	PermViewClinicalNotes  Permission = "view_clinical_notes"
	PermCreateClinicalNote Permission = "create_clinical_notes"
	PermEditDemographics   Permission = "edit_demographics"
)
