package auth

import "github.com/sitewatch/backend/internal/errs"

// Action names the policy-relevant operations. Every surface (HTTP routes
// and socket commands) funnels through Allow with one of these, so role
// rules live in exactly one place.
type Action string

const (
	// ActionRead — view a resource owned by some user.
	ActionRead Action = "read"
	// ActionAcknowledge — acknowledge an alert.
	ActionAcknowledge Action = "acknowledge"
	// ActionResolve — resolve an alert. Supervisor only.
	ActionResolve Action = "resolve"
	// ActionAdminister — destructive or policy operations: retention
	// cleanups, attendance overrides and sweeps, compliance mutations.
	// Supervisor only.
	ActionAdminister Action = "administer"
)

// Allow decides whether actor may perform action on a resource owned by
// ownerID. It returns ErrForbidden without leaking whether the target
// exists. ownerID is ignored for supervisor-only actions.
func Allow(action Action, actor Identity, ownerID int64) error {
	switch action {
	case ActionRead, ActionAcknowledge:
		if actor.IsSupervisor() || actor.UserID == ownerID {
			return nil
		}
		return errs.ErrForbidden
	case ActionResolve, ActionAdminister:
		if actor.IsSupervisor() {
			return nil
		}
		return errs.ErrForbidden
	default:
		return errs.ErrForbidden
	}
}

// ScopeUser resolves the effective user scope for list queries. Employees
// are always pinned to themselves regardless of what they requested;
// supervisors get the requested scope (nil meaning all users).
func ScopeUser(actor Identity, requested *int64) (*int64, error) {
	if actor.IsSupervisor() {
		return requested, nil
	}
	if requested != nil && *requested != actor.UserID {
		return nil, errs.ErrForbidden
	}
	self := actor.UserID
	return &self, nil
}
