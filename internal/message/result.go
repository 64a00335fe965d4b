package message

import "github.com/suPer8Hu/chatform/internal/ai"

// Code identifies the outcome of a pipeline invocation. Generation failures
// reuse the ai.Kind names.
type Code string

const (
	CodeOK Code = "ok"

	CodeAuthRequired   Code = "AuthRequired"
	CodeEmptyMessage   Code = "EmptyMessage"
	CodeMessageTooLong Code = "MessageTooLong"

	CodeStoreWriteFailure Code = "StoreWriteFailure"
	CodeQueueFailure      Code = "QueueFailure"
	CodeFinalizeFailure   Code = "FinalizeFailure"
	CodeAlreadyFinalized  Code = "AlreadyFinalized"

	CodeMissingCredential Code = Code(ai.KindMissingCredential)
	CodeBlockedContent    Code = Code(ai.KindBlockedContent)
	CodeMalformedResponse Code = Code(ai.KindMalformedResponse)
	CodeTimeout           Code = Code(ai.KindTimeout)
	CodeNetworkError      Code = Code(ai.KindNetwork)
)

// IsValidation reports whether the code rejects input before any side effect.
func (c Code) IsValidation() bool {
	return c == CodeAuthRequired || c == CodeEmptyMessage || c == CodeMessageTooLong
}

// IsGeneration reports whether the code is a classified generation failure.
func (c Code) IsGeneration() bool {
	switch c {
	case CodeMissingCredential, CodeBlockedContent, CodeMalformedResponse, CodeTimeout, CodeNetworkError:
		return true
	}
	return false
}

// Result is what a caller sees after an invocation.
type Result struct {
	Success bool
	Code    Code
	Error   string

	// ID is empty when validation or intake failed.
	ID           string
	Status       Status
	ResponseText string
	Truncated    bool
}
