package models

// User is the identity supplied by the auth collaborator. Immutable once
// fetched for a session.
type User struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}
