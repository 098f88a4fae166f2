// Package store owns the authoritative persisted message log and group
// directory. The rest of the core consumes the narrow Adapter and
// Directory interfaces so deployments can swap the pebble default for a
// remote store.
package store

import (
	"context"

	"chatrelay/pkg/models"
)

// Adapter is the narrow persistence interface consumed by the gateway.
// Implementations own id/timestamp assignment; ids must sort in creation
// order within a group.
type Adapter interface {
	// AppendMessage persists m, assigning ID and TS, and returns the
	// persisted message.
	AppendMessage(ctx context.Context, m models.Message) (models.Message, error)
	// GetMessage returns the message or models.ErrNotFound.
	GetMessage(ctx context.Context, groupID, msgID string) (models.Message, error)
	// ListMessages returns up to limit most recent messages in creation
	// order. limit <= 0 means no limit.
	ListMessages(ctx context.Context, groupID string, limit int) ([]models.Message, error)
	// UpdateReactions replaces the reaction mapping of a message.
	UpdateReactions(ctx context.Context, groupID, msgID string, reactions map[string][]string) error
	// IncrementReplyCount adjusts the parent's reply counter by delta.
	IncrementReplyCount(ctx context.Context, groupID, parentID string, delta int) error
}

// Directory is the group/membership collaborator interface. Membership is
// append-mostly; revocation is routed through the registry's
// OnMembershipRevoked hook by the caller.
type Directory interface {
	SaveGroup(ctx context.Context, g models.Group) (models.Group, error)
	// GetGroup returns the group or models.ErrNotFound.
	GetGroup(ctx context.Context, groupID string) (models.Group, error)
	ListGroupsForUser(ctx context.Context, userID string) ([]models.Group, error)
	AddMember(ctx context.Context, groupID, userID string) (models.Group, error)
	RemoveMember(ctx context.Context, groupID, userID string) (models.Group, error)
}
