// Package validation checks inbound submissions before they reach the
// store. Limits are installed once at startup.
package validation

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Limits bounds inbound message submissions.
type Limits struct {
	MaxContentBytes int
	MaxAttachments  int
	MaxReactionKind int
}

var limits = Limits{MaxContentBytes: 16 * 1024, MaxAttachments: 10, MaxReactionKind: 64}

// SetLimits installs the limits used by the running server. Zero fields
// keep their defaults.
func SetLimits(l Limits) {
	if l.MaxContentBytes > 0 {
		limits.MaxContentBytes = l.MaxContentBytes
	}
	if l.MaxAttachments > 0 {
		limits.MaxAttachments = l.MaxAttachments
	}
	if l.MaxReactionKind > 0 {
		limits.MaxReactionKind = l.MaxReactionKind
	}
}

// ValidateContent rejects empty, oversized or non-UTF-8 message content.
func ValidateContent(content string, attachments int) error {
	var errs []string
	if strings.TrimSpace(content) == "" && attachments == 0 {
		errs = append(errs, "content is required")
	}
	if len(content) > limits.MaxContentBytes {
		errs = append(errs, fmt.Sprintf("content exceeds %d bytes", limits.MaxContentBytes))
	}
	if !utf8.ValidString(content) {
		errs = append(errs, "content is not valid UTF-8")
	}
	if attachments > limits.MaxAttachments {
		errs = append(errs, fmt.Sprintf("more than %d attachments", limits.MaxAttachments))
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// ValidateReactionKind rejects empty or oversized reaction kinds.
func ValidateReactionKind(kind string) error {
	if strings.TrimSpace(kind) == "" {
		return errors.New("reaction kind is required")
	}
	if len(kind) > limits.MaxReactionKind {
		return fmt.Errorf("reaction kind exceeds %d bytes", limits.MaxReactionKind)
	}
	return nil
}
