// Package registry tracks live client connections and their group
// subscriptions. It is the only component permitted to mutate the
// connection set; the dispatcher reads group-scoped snapshots from it.
package registry

import (
	"context"
	"fmt"
	"sync"

	"chatrelay/pkg/logger"
	"chatrelay/pkg/metrics"
	"chatrelay/pkg/models"
)

// Sender is the transport-side send half of a connection. Send must not
// block: implementations buffer writes and fail fast when the buffer is
// full or the connection is gone. Close must be safe to call more than
// once.
type Sender interface {
	Send(payload []byte) error
	Close()
}

// GroupResolver is the slice of the group collaborator the registry needs
// for membership checks.
type GroupResolver interface {
	GetGroup(ctx context.Context, groupID string) (models.Group, error)
}

// Conn is a snapshot of a registered connection handed to the dispatcher.
type Conn struct {
	ID     string
	UserID string
	Sender Sender
}

type connState struct {
	id     string
	userID string
	sender Sender
	subs   map[string]struct{}
}

// Registry maps connection ids to subscription state, with a secondary
// index from user id to that user's connections (multi-device) and from
// group id to subscribed connections (fan-out read path). A single
// RWMutex guards all three maps; subscribe/unsubscribe and group-scoped
// reads are linearizable with respect to each other.
type Registry struct {
	mu      sync.RWMutex
	conns   map[string]*connState
	byUser  map[string]map[string]struct{}
	byGroup map[string]map[string]struct{}
	groups  GroupResolver
}

// New creates an empty registry that checks subscriptions against groups.
func New(groups GroupResolver) *Registry {
	return &Registry{
		conns:   make(map[string]*connState),
		byUser:  make(map[string]map[string]struct{}),
		byGroup: make(map[string]map[string]struct{}),
		groups:  groups,
	}
}

// Register creates a connection with an empty subscription set. Re-using
// a live connection id is an error.
func (r *Registry) Register(connID, userID string, sender Sender) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conns[connID]; ok {
		return fmt.Errorf("connection %s already registered", connID)
	}
	r.conns[connID] = &connState{id: connID, userID: userID, sender: sender, subs: make(map[string]struct{})}
	if r.byUser[userID] == nil {
		r.byUser[userID] = make(map[string]struct{})
	}
	r.byUser[userID][connID] = struct{}{}
	metrics.Connections.Inc()
	logger.Info("connection_registered", "conn", connID, "user", userID, "total", len(r.conns))
	return nil
}

// Subscribe adds groupID to the connection's subscription set after
// checking the connection's user against the group's member set.
// Idempotent. The membership lookup happens before the registry lock is
// taken so a slow group store never stalls dispatch reads.
func (r *Registry) Subscribe(ctx context.Context, connID, groupID string) error {
	r.mu.RLock()
	c, ok := r.conns[connID]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("unknown connection %s: %w", connID, models.ErrNotFound)
	}

	g, err := r.groups.GetGroup(ctx, groupID)
	if err != nil {
		return err
	}
	if !g.HasMember(c.userID) {
		logger.Warn("subscribe_rejected", "conn", connID, "user", c.userID, "group", groupID)
		return fmt.Errorf("user %s is not a member of group %s: %w", c.userID, groupID, models.ErrForbidden)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok = r.conns[connID]
	if !ok {
		// connection went away during the membership lookup
		return fmt.Errorf("unknown connection %s: %w", connID, models.ErrNotFound)
	}
	if _, ok := c.subs[groupID]; ok {
		return nil
	}
	c.subs[groupID] = struct{}{}
	if r.byGroup[groupID] == nil {
		r.byGroup[groupID] = make(map[string]struct{})
	}
	r.byGroup[groupID][connID] = struct{}{}
	metrics.Subscriptions.Inc()
	logger.Debug("subscribed", "conn", connID, "group", groupID)
	return nil
}

// Unsubscribe removes groupID from the connection. Idempotent.
func (r *Registry) Unsubscribe(connID, groupID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unsubscribeLocked(connID, groupID)
}

func (r *Registry) unsubscribeLocked(connID, groupID string) {
	c, ok := r.conns[connID]
	if !ok {
		return
	}
	if _, ok := c.subs[groupID]; !ok {
		return
	}
	delete(c.subs, groupID)
	if m := r.byGroup[groupID]; m != nil {
		delete(m, connID)
		if len(m) == 0 {
			delete(r.byGroup, groupID)
		}
	}
	metrics.Subscriptions.Dec()
}

// Unregister removes the connection and all its subscriptions, then
// closes its sender. Safe to call multiple times.
func (r *Registry) Unregister(connID string) {
	r.mu.Lock()
	c, ok := r.conns[connID]
	if !ok {
		r.mu.Unlock()
		return
	}
	for gid := range c.subs {
		r.unsubscribeLocked(connID, gid)
	}
	delete(r.conns, connID)
	if m := r.byUser[c.userID]; m != nil {
		delete(m, connID)
		if len(m) == 0 {
			delete(r.byUser, c.userID)
		}
	}
	total := len(r.conns)
	r.mu.Unlock()

	metrics.Connections.Dec()
	// close outside the lock; senders may block briefly on transport close
	c.sender.Close()
	logger.Info("connection_unregistered", "conn", connID, "user", c.userID, "total", total)
}

// ConnectionsForGroup returns a snapshot of the connections currently
// subscribed to groupID.
func (r *Registry) ConnectionsForGroup(groupID string) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := r.byGroup[groupID]
	out := make([]Conn, 0, len(ids))
	for id := range ids {
		if c, ok := r.conns[id]; ok {
			out = append(out, Conn{ID: c.id, UserID: c.userID, Sender: c.sender})
		}
	}
	return out
}

// OnMembershipRevoked force-unsubscribes every live connection of userID
// from groupID. Called by the group collaborator as part of member
// removal.
func (r *Registry) OnMembershipRevoked(groupID, userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for connID := range r.byUser[userID] {
		r.unsubscribeLocked(connID, groupID)
	}
	logger.Info("membership_revoked", "group", groupID, "user", userID)
}

// CloseAll unregisters every connection. Used during shutdown.
func (r *Registry) CloseAll() {
	r.mu.RLock()
	ids := make([]string, 0, len(r.conns))
	for id := range r.conns {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	for _, id := range ids {
		r.Unregister(id)
	}
}

// Len returns the number of live connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
