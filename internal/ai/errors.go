package ai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

// Kind classifies a failed generation call.
type Kind string

const (
	KindMissingCredential Kind = "MissingCredential"
	KindBlockedContent    Kind = "BlockedContent"
	KindMalformedResponse Kind = "MalformedResponse"
	KindTimeout           Kind = "Timeout"
	KindNetwork           Kind = "NetworkError"
)

// Error is returned by every Provider on failure.
type Error struct {
	Kind     Kind
	Provider string
	Msg      string

	// Reason is the provider's stated block reason (BlockedContent only).
	Reason string

	// StatusCode and Body are set for NetworkError when the transport got a response.
	StatusCode int
	Body       string

	Err error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	b.WriteString(": ")
	if e.Provider != "" {
		b.WriteString(e.Provider)
		b.WriteString(": ")
	}
	msg := e.Msg
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	b.WriteString(msg)
	if e.Reason != "" {
		fmt.Fprintf(&b, " (reason: %s)", e.Reason)
	}
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if e.Body != "" {
		fmt.Fprintf(&b, " response: %s", e.Body)
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf reports the Kind of err if it is (or wraps) an *Error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

func missingCredential(provider string) *Error {
	return &Error{Kind: KindMissingCredential, Provider: provider, Msg: "API key is not configured"}
}

func malformed(provider, msg string) *Error {
	return &Error{Kind: KindMalformedResponse, Provider: provider, Msg: msg}
}

func blocked(provider, reason, msg string) *Error {
	if msg == "" {
		msg = "content blocked by provider policy"
	}
	return &Error{Kind: KindBlockedContent, Provider: provider, Msg: msg, Reason: reason}
}

// transportError maps an error from the HTTP round trip. callCtx is the
// context carrying the generation deadline.
func transportError(callCtx context.Context, provider string, timeout time.Duration, err error) *Error {
	if errors.Is(callCtx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return &Error{
			Kind:     KindTimeout,
			Provider: provider,
			Msg:      fmt.Sprintf("no response within %s", timeout),
			Err:      err,
		}
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return &Error{
			Kind:     KindTimeout,
			Provider: provider,
			Msg:      fmt.Sprintf("no response within %s", timeout),
			Err:      err,
		}
	}
	return &Error{Kind: KindNetwork, Provider: provider, Msg: "request failed: " + err.Error(), Err: err}
}

func statusError(provider string, status int, body string) *Error {
	return &Error{
		Kind:       KindNetwork,
		Provider:   provider,
		Msg:        "unexpected response status",
		StatusCode: status,
		Body:       clip(body, 4*1024),
	}
}

func clip(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n]
}
