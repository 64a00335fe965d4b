package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/suPer8Hu/chatform/internal/message"
	"github.com/suPer8Hu/chatform/internal/store/rabbitmq"
)

type Processor interface {
	ProcessByID(ctx context.Context, id string) (message.Result, error)
}

// MessageCreatedHandler runs the pipeline for one event. Only a failure to
// load the record is reported back for retry; every pipeline outcome is final.
func MessageCreatedHandler(p Processor, log *zap.Logger) rabbitmq.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return func(ctx context.Context, id string) error {
		start := time.Now()
		// a started record runs to a terminal state even during shutdown
		res, err := p.ProcessByID(context.WithoutCancel(ctx), id)
		if errors.Is(err, message.ErrNotFound) {
			return fmt.Errorf("message %s: %w", id, rabbitmq.ErrDrop)
		}
		if err != nil {
			return fmt.Errorf("load message %s: %w", id, err)
		}

		cost := time.Since(start)
		if cost > 2*time.Second {
			log.Info("message_timing",
				zap.String("message_id", id),
				zap.String("code", string(res.Code)),
				zap.Duration("total", cost),
			)
		}
		return nil
	}
}
