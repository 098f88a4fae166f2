// Package gateway is the public entry point of the messaging core. It
// validates inbound events against group membership, persists the
// authoritative ones through the store adapter and hands them to the
// dispatcher. Persistence is authoritative; delivery is best-effort.
package gateway

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"

	"chatrelay/pkg/logger"
	"chatrelay/pkg/models"
	"chatrelay/pkg/presence"
	"chatrelay/pkg/store"
	"chatrelay/pkg/validation"
)

// Dispatcher is the fan-out half the gateway depends on. Dispatch must
// not block the caller; failures stay local to the dispatcher.
type Dispatcher interface {
	Dispatch(groupID, evType string, payload any) error
}

// Gateway orchestrates submit operations. Safe for concurrent use.
type Gateway struct {
	store      store.Adapter
	groups     store.Directory
	dispatcher Dispatcher
	presence   *presence.Tracker
	// msgLocks serializes read-modify-write reaction updates per message
	// id. Striped so unrelated messages never contend.
	msgLocks [64]sync.Mutex
}

// New wires a gateway from its collaborators.
func New(st store.Adapter, groups store.Directory, d Dispatcher, p *presence.Tracker) *Gateway {
	return &Gateway{store: st, groups: groups, dispatcher: d, presence: p}
}

// checkMember returns ErrNotFound for an unknown group and ErrForbidden
// for a non-member.
func (g *Gateway) checkMember(ctx context.Context, userID, groupID string) error {
	grp, err := g.groups.GetGroup(ctx, groupID)
	if err != nil {
		return err
	}
	if !grp.HasMember(userID) {
		return fmt.Errorf("user %s is not a member of group %s: %w", userID, groupID, models.ErrForbidden)
	}
	return nil
}

// SubmitMessage persists a new message and forwards it for fan-out.
// The persisted message is returned regardless of fan-out outcome.
func (g *Gateway) SubmitMessage(ctx context.Context, userID, groupID, content string, attachments []models.Attachment, parentID string) (models.Message, error) {
	if err := g.checkMember(ctx, userID, groupID); err != nil {
		return models.Message{}, err
	}
	if err := validation.ValidateContent(content, len(attachments)); err != nil {
		return models.Message{}, fmt.Errorf("%v: %w", err, models.ErrInvalid)
	}
	if parentID != "" {
		// parent must exist in the same group; keys are group-scoped so a
		// cross-group parent id simply does not resolve
		if _, err := g.store.GetMessage(ctx, groupID, parentID); err != nil {
			return models.Message{}, err
		}
	}

	m := models.Message{
		GroupID:     groupID,
		UserID:      userID,
		Content:     content,
		Attachments: attachments,
		ParentID:    parentID,
	}
	persisted, err := g.store.AppendMessage(ctx, m)
	if err != nil {
		logger.Error("append_message_failed", "group", groupID, "user", userID, "error", err)
		return models.Message{}, fmt.Errorf("persist message: %w", err)
	}

	if parentID != "" {
		// reply counts converge eventually; a failed increment is logged,
		// never surfaced
		if err := g.store.IncrementReplyCount(ctx, groupID, parentID, 1); err != nil {
			logger.Warn("reply_count_increment_failed", "group", groupID, "parent", parentID, "error", err)
		}
	}

	if err := g.dispatcher.Dispatch(groupID, models.EventMessage, persisted); err != nil {
		logger.Warn("message_dispatch_failed", "group", groupID, "msg_id", persisted.ID, "error", err)
	}
	return persisted, nil
}

// SubmitReaction applies an idempotent add/remove of (kind, userID) on a
// message's reaction mapping, persists it and fans out a reaction-changed
// event when the set actually changed. Returns the resulting mapping.
func (g *Gateway) SubmitReaction(ctx context.Context, userID, groupID, msgID, kind string, add bool) (map[string][]string, error) {
	if err := g.checkMember(ctx, userID, groupID); err != nil {
		return nil, err
	}
	if err := validation.ValidateReactionKind(kind); err != nil {
		return nil, fmt.Errorf("%v: %w", err, models.ErrInvalid)
	}

	lock := &g.msgLocks[stripe(groupID, msgID)]
	lock.Lock()
	m, err := g.store.GetMessage(ctx, groupID, msgID)
	if err != nil {
		lock.Unlock()
		return nil, err
	}
	var changed bool
	if add {
		changed = m.AddReaction(kind, userID)
	} else {
		changed = m.RemoveReaction(kind, userID)
	}
	if changed {
		if err := g.store.UpdateReactions(ctx, groupID, msgID, m.Reactions); err != nil {
			lock.Unlock()
			logger.Error("update_reactions_failed", "group", groupID, "msg_id", msgID, "error", err)
			return nil, fmt.Errorf("persist reactions: %w", err)
		}
	}
	lock.Unlock()

	if changed {
		upd := models.ReactionUpdate{MessageID: msgID, Reactions: m.Reactions}
		if err := g.dispatcher.Dispatch(groupID, models.EventReaction, upd); err != nil {
			logger.Warn("reaction_dispatch_failed", "group", groupID, "msg_id", msgID, "error", err)
		}
	}
	return m.Reactions, nil
}

// SubmitTyping records a typing signal and fans it out. Never persisted.
func (g *Gateway) SubmitTyping(ctx context.Context, userID, groupID, displayName string) error {
	if err := g.checkMember(ctx, userID, groupID); err != nil {
		return err
	}
	g.presence.MarkTyping(groupID, userID, displayName)
	sig := models.TypingSignal{GroupID: groupID, UserID: userID, DisplayName: displayName}
	if err := g.dispatcher.Dispatch(groupID, models.EventTyping, sig); err != nil {
		logger.Warn("typing_dispatch_failed", "group", groupID, "user", userID, "error", err)
	}
	return nil
}

// History returns the persisted tail of a group's log for a member. This
// is the catch-up read used by clients after reconnect.
func (g *Gateway) History(ctx context.Context, userID, groupID string, limit int) ([]models.Message, error) {
	if err := g.checkMember(ctx, userID, groupID); err != nil {
		return nil, err
	}
	return g.store.ListMessages(ctx, groupID, limit)
}

// CurrentTypers exposes the presence tracker's view for a group.
func (g *Gateway) CurrentTypers(groupID string) []presence.Typer {
	return g.presence.CurrentTypers(groupID)
}

func stripe(groupID, msgID string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(groupID))
	h.Write([]byte{':'})
	h.Write([]byte(msgID))
	return h.Sum32() % 64
}
