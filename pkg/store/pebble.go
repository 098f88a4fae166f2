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

// Key layout:
//   group:<gid>:meta                      -> Group JSON
//   group:<gid>:msg:<unix_nano_padded>-<seq> -> Message JSON
//   usergroup:<uid>:<gid>                 -> ""
// Message ids are the sortable <unix_nano_padded>-<seq> suffix, so by-id
// lookups are direct key reads and log iteration yields creation order.

// Store is a pebble-backed implementation of Adapter and Directory.
type Store struct {
	db *pebble.DB
	// seq reduces key collisions when multiple messages share the same
	// nanosecond timestamp.
	seq uint64
}

var _ Adapter = (*Store)(nil)
var _ Directory = (*Store)(nil)

// Open opens (or creates) a pebble database at the given path.
func Open(path string) (*Store, error) {
	logger.Info("opening_pebble_db", "path", path)
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		logger.Error("pebble_open_failed", "path", path, "error", err)
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the underlying pebble DB.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	logger.Info("pebble_closed")
	return err
}

func msgKey(groupID, msgID string) []byte {
	return []byte("group:" + groupID + ":msg:" + msgID)
}

func groupKey(groupID string) []byte {
	return []byte("group:" + groupID + ":meta")
}

func userGroupKey(userID, groupID string) []byte {
	return []byte("usergroup:" + userID + ":" + groupID)
}

// newMsgID returns a sortable id from the current time plus a process-wide
// sequence tiebreak.
func (s *Store) newMsgID() (string, int64) {
	ts := time.Now().UTC().UnixNano()
	n := atomic.AddUint64(&s.seq, 1)
	return fmt.Sprintf("%020d-%06d", ts, n), ts
}

// AppendMessage persists the message under a sortable key and returns it
// with ID and TS assigned.
func (s *Store) AppendMessage(ctx context.Context, m models.Message) (models.Message, error) {
	id, ts := s.newMsgID()
	m.ID = id
	m.TS = ts
	data, err := json.Marshal(m)
	if err != nil {
		return models.Message{}, fmt.Errorf("failed to marshal message: %w", err)
	}
	key := msgKey(m.GroupID, m.ID)
	if err := s.db.Set(key, data, pebble.Sync); err != nil {
		logger.Error("save_message_failed", "group", m.GroupID, "key", string(key), "error", err)
		return models.Message{}, err
	}
	logger.Debug("message_saved", "group", m.GroupID, "msg_id", m.ID)
	return m, nil
}

// GetMessage returns the message or models.ErrNotFound.
func (s *Store) GetMessage(ctx context.Context, groupID, msgID string) (models.Message, error) {
	v, closer, err := s.db.Get(msgKey(groupID, msgID))
	if err == pebble.ErrNotFound {
		return models.Message{}, models.ErrNotFound
	}
	if err != nil {
		return models.Message{}, err
	}
	defer closer.Close()
	var m models.Message
	if err := json.Unmarshal(v, &m); err != nil {
		return models.Message{}, fmt.Errorf("invalid message JSON: %w", err)
	}
	return m, nil
}

// ListMessages returns up to limit most recent messages in creation order.
func (s *Store) ListMessages(ctx context.Context, groupID string, limit int) ([]models.Message, error) {
	prefix := []byte("group:" + groupID + ":msg:")
	iter, err := s.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []models.Message
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		var m models.Message
		if err := json.Unmarshal(iter.Value(), &m); err != nil {
			return nil, fmt.Errorf("invalid message JSON at %s: %w", iter.Key(), err)
		}
		out = append(out, m)
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

// ListReplies returns the persisted children of parentID in creation order.
func (s *Store) ListReplies(ctx context.Context, groupID, parentID string) ([]models.Message, error) {
	all, err := s.ListMessages(ctx, groupID, 0)
	if err != nil {
		return nil, err
	}
	var out []models.Message
	for _, m := range all {
		if m.ParentID == parentID {
			out = append(out, m)
		}
	}
	return out, nil
}

// UpdateReactions replaces the reaction mapping of a message. Callers are
// responsible for serializing updates per message id.
func (s *Store) UpdateReactions(ctx context.Context, groupID, msgID string, reactions map[string][]string) error {
	m, err := s.GetMessage(ctx, groupID, msgID)
	if err != nil {
		return err
	}
	m.Reactions = reactions
	return s.putMessage(m)
}

// IncrementReplyCount adjusts the parent's reply counter by delta.
func (s *Store) IncrementReplyCount(ctx context.Context, groupID, parentID string, delta int) error {
	m, err := s.GetMessage(ctx, groupID, parentID)
	if err != nil {
		return err
	}
	m.ReplyCount += delta
	if m.ReplyCount < 0 {
		m.ReplyCount = 0
	}
	return s.putMessage(m)
}

func (s *Store) putMessage(m models.Message) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	return s.db.Set(msgKey(m.GroupID, m.ID), data, pebble.Sync)
}

// PurgeMessagesBefore deletes messages older than cutoff (ns) across all
// groups, at most batchSize per call. Returns the number deleted (or that
// would be deleted when dryRun is set).
func (s *Store) PurgeMessagesBefore(ctx context.Context, cutoff int64, batchSize int, dryRun bool) (int, error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return 0, err
	}
	defer iter.Close()
	prefix := []byte("group:")
	var victims [][]byte
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		if !bytes.Contains(iter.Key(), []byte(":msg:")) {
			continue
		}
		var m models.Message
		if err := json.Unmarshal(iter.Value(), &m); err != nil {
			continue
		}
		if m.TS >= cutoff {
			continue
		}
		victims = append(victims, append([]byte(nil), iter.Key()...))
		if batchSize > 0 && len(victims) >= batchSize {
			break
		}
	}
	if dryRun {
		return len(victims), nil
	}
	for _, k := range victims {
		if err := s.db.Delete(k, pebble.Sync); err != nil {
			return 0, err
		}
	}
	if len(victims) > 0 {
		logger.Info("messages_purged", "count", len(victims), "cutoff", cutoff)
	}
	return len(victims), nil
}
