package message

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	DefaultMaxMessageLength  = 1000
	DefaultMaxResponseLength = 10000

	TruncationMarker = "... [truncated]"
)

// ValidationError rejects input before anything is persisted.
type ValidationError struct {
	Code Code
	Msg  string
}

func (e *ValidationError) Error() string { return e.Msg }

// Validate checks the submitter and message and returns the trimmed text.
// Length is counted in characters (runes), not bytes.
func Validate(userID, raw string, maxLen int) (string, *ValidationError) {
	if strings.TrimSpace(userID) == "" {
		return "", &ValidationError{Code: CodeAuthRequired, Msg: "User not authenticated."}
	}
	text := strings.TrimSpace(raw)
	if text == "" {
		return "", &ValidationError{Code: CodeEmptyMessage, Msg: "Message cannot be empty."}
	}
	if maxLen <= 0 {
		maxLen = DefaultMaxMessageLength
	}
	if utf8.RuneCountInString(text) > maxLen {
		return "", &ValidationError{
			Code: CodeMessageTooLong,
			Msg:  fmt.Sprintf("Message is too long (max %d characters).", maxLen),
		}
	}
	return text, nil
}

// Truncate caps s at max characters, appending TruncationMarker when cut.
func Truncate(s string, max int) (string, bool) {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s, false
	}
	r := []rune(s)
	return string(r[:max]) + TruncationMarker, true
}
