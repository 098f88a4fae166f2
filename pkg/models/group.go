package models

// Group types. Direct-message groups are ordinary groups with exactly two
// members; the distinction only matters to clients.
const (
	GroupTypeGroup  = "group"
	GroupTypeDirect = "dm"
)

// Group is a conversation and its member set. Ownership of the member set
// lies with the group collaborator; the core reads it for membership
// checks and never mutates it in place.
type Group struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Type      string   `json:"type"`
	Private   bool     `json:"private,omitempty"`
	Members   []string `json:"members"`
	CreatorID string   `json:"creator_id"`
	CreatedTS int64    `json:"created_ts,omitempty"`
	UpdatedTS int64    `json:"updated_ts,omitempty"`
}

// HasMember reports whether userID belongs to the group.
func (g *Group) HasMember(userID string) bool {
	for _, m := range g.Members {
		if m == userID {
			return true
		}
	}
	return false
}
