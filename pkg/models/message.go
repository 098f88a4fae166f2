package models

// Attachment is a reference to an externally stored file. The core never
// touches attachment bytes; it only carries references.
type Attachment struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
	URL  string `json:"url"`
}

// Message is a persisted chat message. IDs are assigned by the store and
// sort lexicographically in creation order within a group.
type Message struct {
	ID      string `json:"id"`
	GroupID string `json:"group_id"`
	UserID  string `json:"user_id"`
	Content string `json:"content"`
	// TS is the server-assigned creation timestamp (ns).
	TS int64 `json:"ts"`
	// Reactions maps a reaction kind to the ordered set of user ids that
	// added it.
	Reactions   map[string][]string `json:"reactions,omitempty"`
	Attachments []Attachment        `json:"attachments,omitempty"`
	// ParentID links a threaded reply to its parent in the same group.
	ParentID   string `json:"parent_id,omitempty"`
	ReplyCount int    `json:"reply_count"`
	// Replies is lazily populated on history reads; never persisted inline.
	Replies []Message `json:"replies,omitempty"`
}

// AddReaction records userID under kind. Adding the same user twice under
// the same kind is a no-op. Reports whether the set changed.
func (m *Message) AddReaction(kind, userID string) bool {
	for _, u := range m.Reactions[kind] {
		if u == userID {
			return false
		}
	}
	if m.Reactions == nil {
		m.Reactions = make(map[string][]string)
	}
	m.Reactions[kind] = append(m.Reactions[kind], userID)
	return true
}

// RemoveReaction removes userID from kind. Removing an absent user is a
// no-op. Reports whether the set changed.
func (m *Message) RemoveReaction(kind, userID string) bool {
	users := m.Reactions[kind]
	for i, u := range users {
		if u == userID {
			users = append(users[:i], users[i+1:]...)
			if len(users) == 0 {
				delete(m.Reactions, kind)
			} else {
				m.Reactions[kind] = users
			}
			return true
		}
	}
	return false
}
