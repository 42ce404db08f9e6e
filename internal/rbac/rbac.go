package rbac

type Role string
type Action string

const (
	RolePipeline Role = "pipeline"
	RoleEditor   Role = "editor"
	RoleMember   Role = "member"
	RoleAdmin    Role = "admin"
	RoleSystem   Role = "system"
)

const (
	ActionRead    Action = "read"
	// ActionSeed covers pipeline ingestion of claims, questions and findings.
	ActionSeed    Action = "seed"
	ActionEdit    Action = "edit"
	ActionDispute Action = "dispute"
	ActionDecide  Action = "decide"
	ActionAdmin   Action = "admin"
)

func Can(role Role, action Action) bool {
	switch role {
	case RoleAdmin:
		return true
	case RoleSystem:
		return action == ActionRead || action == ActionSeed || action == ActionAdmin
	case RoleEditor:
		return action == ActionRead || action == ActionSeed || action == ActionEdit || action == ActionDispute || action == ActionDecide
	case RolePipeline:
		return action == ActionRead || action == ActionSeed
	case RoleMember:
		return action == ActionRead || action == ActionDispute
	default:
		return false
	}
}

// Normalize maps unknown role strings to the least privileged role.
func Normalize(role string) Role {
	switch Role(role) {
	case RolePipeline, RoleEditor, RoleMember, RoleAdmin, RoleSystem:
		return Role(role)
	default:
		return RoleMember
	}
}
