package validation

import (
	"strings"
	"testing"
)

// TestValidateContent covers the empty / oversized / UTF-8 rules.
func TestValidateContent(t *testing.T) {
	if err := ValidateContent("hello", 0); err != nil {
		t.Fatalf("plain content should pass: %v", err)
	}
	if err := ValidateContent("", 0); err == nil {
		t.Fatalf("empty content with no attachments should fail")
	}
	if err := ValidateContent("   \t", 0); err == nil {
		t.Fatalf("whitespace-only content should fail")
	}
	// attachment-only messages are allowed
	if err := ValidateContent("", 1); err != nil {
		t.Fatalf("attachment-only message should pass: %v", err)
	}
	if err := ValidateContent(strings.Repeat("a", 16*1024+1), 0); err == nil {
		t.Fatalf("oversized content should fail")
	}
	if err := ValidateContent(string([]byte{0xff, 0xfe}), 0); err == nil {
		t.Fatalf("invalid UTF-8 should fail")
	}
	if err := ValidateContent("ok", 11); err == nil {
		t.Fatalf("too many attachments should fail")
	}
}

// TestValidateReactionKind covers empty and oversized kinds.
func TestValidateReactionKind(t *testing.T) {
	if err := ValidateReactionKind("thumbs_up"); err != nil {
		t.Fatalf("plain kind should pass: %v", err)
	}
	if err := ValidateReactionKind(""); err == nil {
		t.Fatalf("empty kind should fail")
	}
	if err := ValidateReactionKind(strings.Repeat("x", 65)); err == nil {
		t.Fatalf("oversized kind should fail")
	}
}
