package models

import "testing"

// TestAddReactionIdempotent verifies that adding the same (kind, user)
// pair twice changes the mapping only once.
func TestAddReactionIdempotent(t *testing.T) {
	var m Message
	if !m.AddReaction("thumbs_up", "u1") {
		t.Fatalf("first add should report a change")
	}
	if m.AddReaction("thumbs_up", "u1") {
		t.Fatalf("second add should be a no-op")
	}
	if got := m.Reactions["thumbs_up"]; len(got) != 1 || got[0] != "u1" {
		t.Fatalf("unexpected reaction set: %v", got)
	}
}

// TestRemoveReaction verifies removal drops the user and deletes the kind
// when its set becomes empty.
func TestRemoveReaction(t *testing.T) {
	var m Message
	m.AddReaction("heart", "u1")
	m.AddReaction("heart", "u2")

	if !m.RemoveReaction("heart", "u1") {
		t.Fatalf("remove of present user should report a change")
	}
	if got := m.Reactions["heart"]; len(got) != 1 || got[0] != "u2" {
		t.Fatalf("unexpected reaction set after remove: %v", got)
	}

	if m.RemoveReaction("heart", "u1") {
		t.Fatalf("remove of absent user should be a no-op")
	}

	if !m.RemoveReaction("heart", "u2") {
		t.Fatalf("remove of last user should report a change")
	}
	if _, ok := m.Reactions["heart"]; ok {
		t.Fatalf("empty kind should be deleted from the mapping")
	}
}

// TestRemoveReactionUnknownKind verifies removal on a message with no
// reactions at all is a safe no-op.
func TestRemoveReactionUnknownKind(t *testing.T) {
	var m Message
	if m.RemoveReaction("wave", "u1") {
		t.Fatalf("remove on empty mapping should be a no-op")
	}
}

// TestGroupHasMember covers the membership predicate.
func TestGroupHasMember(t *testing.T) {
	g := Group{ID: "g1", Members: []string{"u1", "u2"}}
	if !g.HasMember("u1") {
		t.Fatalf("u1 should be a member")
	}
	if g.HasMember("u3") {
		t.Fatalf("u3 should not be a member")
	}
}
