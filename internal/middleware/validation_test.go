package middleware

import (
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestValidateMessageContent(t *testing.T) {
	if err := ValidateMessageContent("hello"); err != nil {
		t.Fatalf("valid content rejected: %v", err)
	}
	if err := ValidateMessageContent(""); err == nil {
		t.Fatal("empty content accepted")
	}
	if err := ValidateMessageContent(strings.Repeat("a", 100001)); err == nil {
		t.Fatal("oversized content accepted")
	}
	if err := ValidateMessageContent(string([]byte{0xff, 0xfe})); err == nil {
		t.Fatal("invalid UTF-8 accepted")
	}
}

func TestValidateConversationID(t *testing.T) {
	if err := ValidateConversationID(uuid.New().String()); err != nil {
		t.Fatalf("valid id rejected: %v", err)
	}
	if err := ValidateConversationID("not-a-uuid"); err == nil {
		t.Fatal("malformed id accepted")
	}
}

func TestValidateSubject(t *testing.T) {
	if err := ValidateSubject("Card question"); err != nil {
		t.Fatalf("valid subject rejected: %v", err)
	}
	if err := ValidateSubject(strings.Repeat("s", 257)); err == nil {
		t.Fatal("oversized subject accepted")
	}
}
