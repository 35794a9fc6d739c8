// Package auth - roles.go maps each portal action to the roles allowed to perform it.
// Every mutator and protected view asks Authorize instead of comparing roles inline.
package auth

import "github.com/gdg-portal/permission-portal/internal/db/models"

// Action is something a signed-in user may try to do
type Action string

const (
	// Member actions
	ActionSubmitRequest Action = "requests:submit"
	ActionListOwn       Action = "requests:list_own"
	ActionSetPosition   Action = "profile:set_position"

	// Privileged actions
	ActionReviewRequests    Action = "requests:review"
	ActionTransitionRequest Action = "requests:transition"
	ActionReadAudit         Action = "audit:read"
)

// privilegedActions are reserved for admins and organizers.
var privilegedActions = map[Action]bool{
	ActionReviewRequests:    true,
	ActionTransitionRequest: true,
	ActionReadAudit:         true,
}

// memberActions are open to every known role.
var memberActions = map[Action]bool{
	ActionSubmitRequest: true,
	ActionListOwn:       true,
	ActionSetPosition:   true,
}

// IsPrivileged reports whether role may review and transition requests.
// Admin and organizer are equivalent.
func IsPrivileged(role models.Role) bool {
	return role == models.RoleAdmin || role == models.RoleOrganizer
}

// Authorize reports whether role may perform action. Unknown roles and unknown
// actions are always denied.
func Authorize(role models.Role, action Action) bool {
	if !role.IsValid() {
		return false
	}
	if memberActions[action] {
		return true
	}
	if privilegedActions[action] {
		return IsPrivileged(role)
	}
	return false
}
