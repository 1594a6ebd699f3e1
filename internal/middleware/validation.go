package middleware

import (
	"errors"
	"unicode/utf8"

	"github.com/google/uuid"
)

// ValidateMessageContent validates message content.
func ValidateMessageContent(content string) error {
	if len(content) == 0 {
		return errors.New("content cannot be empty")
	}
	if len(content) > 100000 { // ~100KB limit
		return errors.New("content exceeds maximum length")
	}
	if !utf8.ValidString(content) {
		return errors.New("content must be valid UTF-8")
	}
	return nil
}

// ValidateConversationID validates a conversation ID.
func ValidateConversationID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return errors.New("invalid conversation ID format")
	}
	return nil
}

// ValidateCustomerID validates a customer ID.
func ValidateCustomerID(id string) error {
	if len(id) == 0 {
		return errors.New("customer ID cannot be empty")
	}
	if len(id) > 64 {
		return errors.New("customer ID exceeds maximum length")
	}
	return nil
}

// ValidateSubject validates a conversation subject.
func ValidateSubject(subject string) error {
	if len(subject) > 256 {
		return errors.New("subject exceeds maximum length")
	}
	if !utf8.ValidString(subject) {
		return errors.New("subject must be valid UTF-8")
	}
	return nil
}
