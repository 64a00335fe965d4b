package ai

import (
	"context"
	"time"
)

// Provider is a single-turn text generation backend.
//
// Generate returns the generated text unmodified; any failure is an *Error.
// Implementations never retry.
type Provider interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

const defaultTimeout = 25 * time.Second
