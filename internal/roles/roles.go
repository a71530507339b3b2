// Package roles is the permission collaborator consumed by the question
// service: an opaque predicate over user capabilities, backed by the role
// stored per user.
package roles

import "context"

type Role string

const (
	RoleViewer       Role = "viewer"
	RoleEditor       Role = "editor"
	RoleTopicManager Role = "topic_manager"
	RoleAdmin        Role = "admin"
)

type Action string

const (
	ActionChangeStatus Action = "change_status"
	ActionManageTopics Action = "manage_topics"
	ActionAdmin        Action = "admin"
)

// Can reports whether a role grants an action.
func Can(role Role, action Action) bool {
	switch role {
	case RoleAdmin:
		return true
	case RoleTopicManager:
		return action == ActionChangeStatus || action == ActionManageTopics
	case RoleEditor, RoleViewer:
		return false
	default:
		return false
	}
}

// Normalize maps unknown role strings to viewer.
func Normalize(role string) Role {
	switch Role(role) {
	case RoleViewer, RoleEditor, RoleTopicManager, RoleAdmin:
		return Role(role)
	default:
		return RoleViewer
	}
}

type userStore interface {
	GetUserRole(ctx context.Context, userID string) (string, error)
}

// Checker answers capability questions for a user id by looking up the
// user's role.
type Checker struct {
	store userStore
}

func NewChecker(store userStore) *Checker {
	return &Checker{store: store}
}

func (c *Checker) HasStatusChangeCapability(ctx context.Context, userID string) (bool, error) {
	role, err := c.store.GetUserRole(ctx, userID)
	if err != nil {
		return false, err
	}
	return Can(Normalize(role), ActionChangeStatus), nil
}

func (c *Checker) IsAdmin(ctx context.Context, userID string) (bool, error) {
	role, err := c.store.GetUserRole(ctx, userID)
	if err != nil {
		return false, err
	}
	return Normalize(role) == RoleAdmin, nil
}

func (c *Checker) IsTopicManager(ctx context.Context, userID string) (bool, error) {
	role, err := c.store.GetUserRole(ctx, userID)
	if err != nil {
		return false, err
	}
	return Normalize(role) == RoleTopicManager, nil
}
