package handlers

import (
	"context"

	"go.uber.org/zap"

	"github.com/suPer8Hu/chatform/internal/flows"
	"github.com/suPer8Hu/chatform/internal/message"
)

type Pipeline interface {
	Submit(ctx context.Context, userID, raw string) message.Result
	SubmitAsync(ctx context.Context, userID, raw string) message.Result
}

type Records interface {
	Get(ctx context.Context, id string) (*message.Record, error)
	ListByUser(ctx context.Context, userID string, limit int, beforeID string) ([]message.Record, error)
}

type Idempotency interface {
	Claim(ctx context.Context, userID, key string) (existingID string, claimed bool, err error)
	Complete(ctx context.Context, userID, key, messageID string) error
	Release(ctx context.Context, userID, key string) error
}

type Flows interface {
	Summarize(ctx context.Context, userID, raw string) (string, error)
	SuggestEdits(ctx context.Context, userID, raw string) (flows.Edits, error)
}

type Handler struct {
	Pipeline    Pipeline
	Records     Records
	Flows       Flows
	Idempotency Idempotency // optional
	Log         *zap.Logger
}

func NewHandler(p Pipeline, records Records, f Flows, idem Idempotency, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{Pipeline: p, Records: records, Flows: f, Idempotency: idem, Log: log}
}
