package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/pebble"

	"chatrelay/pkg/logger"
	"chatrelay/pkg/models"
)

var groupSeq uint64

// SaveGroup persists the group, assigning an id and timestamps when
// missing, and maintains the per-user group index.
func (s *Store) SaveGroup(ctx context.Context, g models.Group) (models.Group, error) {
	now := time.Now().UTC().UnixNano()
	if g.ID == "" {
		g.ID = fmt.Sprintf("g-%d-%d", now, atomic.AddUint64(&groupSeq, 1))
		g.CreatedTS = now
	}
	if g.Type == "" {
		g.Type = models.GroupTypeGroup
	}
	g.UpdatedTS = now
	data, err := json.Marshal(g)
	if err != nil {
		return models.Group{}, fmt.Errorf("failed to marshal group: %w", err)
	}
	if err := s.db.Set(groupKey(g.ID), data, pebble.Sync); err != nil {
		logger.Error("save_group_failed", "group", g.ID, "error", err)
		return models.Group{}, err
	}
	for _, uid := range g.Members {
		if err := s.db.Set(userGroupKey(uid, g.ID), nil, pebble.Sync); err != nil {
			return models.Group{}, err
		}
	}
	logger.Debug("group_saved", "group", g.ID, "members", len(g.Members))
	return g, nil
}

// GetGroup returns the group or models.ErrNotFound.
func (s *Store) GetGroup(ctx context.Context, groupID string) (models.Group, error) {
	v, closer, err := s.db.Get(groupKey(groupID))
	if err == pebble.ErrNotFound {
		return models.Group{}, models.ErrNotFound
	}
	if err != nil {
		return models.Group{}, err
	}
	defer closer.Close()
	var g models.Group
	if err := json.Unmarshal(v, &g); err != nil {
		return models.Group{}, fmt.Errorf("invalid group JSON: %w", err)
	}
	return g, nil
}

// ListGroupsForUser returns every group whose member set includes userID.
func (s *Store) ListGroupsForUser(ctx context.Context, userID string) ([]models.Group, error) {
	prefix := []byte("usergroup:" + userID + ":")
	iter, err := s.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []models.Group
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		gid := string(iter.Key()[len(prefix):])
		g, err := s.GetGroup(ctx, gid)
		if err == models.ErrNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, nil
}

// AddMember appends userID to the member set. Idempotent.
func (s *Store) AddMember(ctx context.Context, groupID, userID string) (models.Group, error) {
	g, err := s.GetGroup(ctx, groupID)
	if err != nil {
		return models.Group{}, err
	}
	if g.HasMember(userID) {
		return g, nil
	}
	g.Members = append(g.Members, userID)
	return s.SaveGroup(ctx, g)
}

// RemoveMember removes userID from the member set and drops the user
// index entry. Callers must also invoke the registry's revocation hook so
// live connections lose their subscription.
func (s *Store) RemoveMember(ctx context.Context, groupID, userID string) (models.Group, error) {
	g, err := s.GetGroup(ctx, groupID)
	if err != nil {
		return models.Group{}, err
	}
	kept := g.Members[:0]
	for _, m := range g.Members {
		if m != userID {
			kept = append(kept, m)
		}
	}
	g.Members = kept
	if err := s.db.Delete(userGroupKey(userID, groupID), pebble.Sync); err != nil {
		return models.Group{}, err
	}
	return s.SaveGroup(ctx, g)
}
