package message

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/suPer8Hu/chatform/internal/ai"
	"github.com/suPer8Hu/chatform/internal/metrics"
)

// Store is the durability boundary the pipeline writes through.
type Store interface {
	Create(ctx context.Context, rec *Record) error
	Get(ctx context.Context, id string) (*Record, error)
	MarkProcessing(ctx context.Context, id string) error
	Complete(ctx context.Context, id string, response string) error
	Fail(ctx context.Context, id string, errMsg string) error
}

// Publisher announces a freshly created record to the reactive trigger.
type Publisher interface {
	PublishMessageCreated(ctx context.Context, messageID string) error
}

type Options struct {
	MaxMessageLength  int
	MaxResponseLength int

	Logger    *zap.Logger
	Metrics   *metrics.Metrics
	Publisher Publisher
}

type Pipeline struct {
	store   Store
	gen     ai.Provider
	pub     Publisher
	log     *zap.Logger
	metrics *metrics.Metrics

	maxMessage  int
	maxResponse int
}

func NewPipeline(store Store, gen ai.Provider, opts Options) *Pipeline {
	p := &Pipeline{
		store:       store,
		gen:         gen,
		pub:         opts.Publisher,
		log:         opts.Logger,
		metrics:     opts.Metrics,
		maxMessage:  opts.MaxMessageLength,
		maxResponse: opts.MaxResponseLength,
	}
	if p.log == nil {
		p.log = zap.NewNop()
	}
	if p.maxMessage <= 0 {
		p.maxMessage = DefaultMaxMessageLength
	}
	if p.maxResponse <= 0 {
		p.maxResponse = DefaultMaxResponseLength
	}
	return p
}

// Submit validates and records the message, then runs generation to a
// terminal state before returning.
func (p *Pipeline) Submit(ctx context.Context, userID, raw string) Result {
	rec, res, ok := p.intake(ctx, userID, raw)
	if !ok {
		return p.done(res)
	}
	// the record exists now: the caller can no longer abort the run
	return p.Process(context.WithoutCancel(ctx), rec)
}

// SubmitAsync validates and records the message, then hands it to the
// reactive trigger. The returned result carries the record id.
func (p *Pipeline) SubmitAsync(ctx context.Context, userID, raw string) Result {
	rec, res, ok := p.intake(ctx, userID, raw)
	if !ok {
		return p.done(res)
	}
	ctx = context.WithoutCancel(ctx)
	log := p.recordLogger(rec)

	if p.pub == nil {
		log.Error("no publisher configured for async submission")
		return p.finalizeError(ctx, rec, CodeQueueFailure, "Failed to queue message for processing.")
	}
	if err := p.pub.PublishMessageCreated(ctx, rec.ID); err != nil {
		log.Error("publish message created failed", zap.Error(err))
		return p.finalizeError(ctx, rec, CodeQueueFailure, "Failed to queue message for processing.")
	}

	log.Info("message queued")
	return p.done(Result{Success: true, Code: CodeOK, ID: rec.ID, Status: rec.Status})
}

// ProcessByID loads a record created elsewhere and processes it. The error is
// non-nil only when the record could not be loaded.
func (p *Pipeline) ProcessByID(ctx context.Context, id string) (Result, error) {
	rec, err := p.store.Get(ctx, id)
	if err != nil {
		return Result{}, err
	}
	return p.Process(ctx, rec), nil
}

// Process drives an existing record to a terminal state. Records that are
// already terminal are reported as they are and not touched.
func (p *Pipeline) Process(ctx context.Context, rec *Record) Result {
	log := p.recordLogger(rec)

	if rec.Status.Terminal() {
		log.Info("record already finalized, skipping", zap.String("status", string(rec.Status)))
		return p.done(terminalResult(rec))
	}

	text, verr := Validate(rec.UserID, rec.MessageText, p.maxMessage)
	if verr != nil {
		log.Warn("stored record failed validation", zap.String("code", string(verr.Code)))
		return p.finalizeError(ctx, rec, verr.Code, verr.Msg)
	}

	if rec.Status == StatusPending {
		if err := p.store.MarkProcessing(ctx, rec.ID); err != nil {
			// status signal only, generation still runs
			log.Warn("mark processing failed", zap.Error(err))
		} else {
			rec.Status = StatusProcessing
		}
	}

	start := time.Now()
	reply, err := p.gen.Generate(ctx, text)
	p.metrics.ObserveGeneration(time.Since(start))
	if err != nil {
		code, msg := describeGenerationError(err)
		log.Warn("generation failed", zap.String("kind", string(code)), zap.Error(err))
		return p.finalizeError(ctx, rec, code, msg)
	}

	response, truncated := Truncate(reply, p.maxResponse)
	if truncated {
		log.Warn("response truncated",
			zap.Int("max_chars", p.maxResponse),
			zap.Int("original_bytes", len(reply)),
		)
		p.metrics.Truncated()
	}

	if err := p.store.Complete(ctx, rec.ID, response); err != nil {
		return p.finalizeFailed(ctx, rec, StatusCompleted, CodeOK, err)
	}
	rec.Status = StatusCompleted
	rec.ResponseText = &response
	rec.ErrorMessage = nil

	log.Info("message completed", zap.Duration("generation", time.Since(start)))
	return p.done(Result{
		Success:      true,
		Code:         CodeOK,
		ID:           rec.ID,
		Status:       StatusCompleted,
		ResponseText: response,
		Truncated:    truncated,
	})
}

func (p *Pipeline) intake(ctx context.Context, userID, raw string) (*Record, Result, bool) {
	text, verr := Validate(userID, raw, p.maxMessage)
	if verr != nil {
		return nil, Result{Code: verr.Code, Error: verr.Msg}, false
	}

	rec := &Record{
		UserID:      strings.TrimSpace(userID),
		MessageText: text,
		Status:      StatusPending,
	}
	if err := p.store.Create(ctx, rec); err != nil {
		p.log.Error("intake write failed",
			zap.String("user_id", rec.UserID),
			zap.Error(err),
		)
		return nil, Result{Code: CodeStoreWriteFailure, Error: "Failed to save message: " + err.Error()}, false
	}
	p.recordLogger(rec).Info("message recorded")
	return rec, Result{}, true
}

func (p *Pipeline) finalizeError(ctx context.Context, rec *Record, code Code, msg string) Result {
	if err := p.store.Fail(ctx, rec.ID, msg); err != nil {
		return p.finalizeFailed(ctx, rec, StatusError, code, err)
	}
	rec.Status = StatusError
	rec.ErrorMessage = &msg
	rec.ResponseText = nil

	return p.done(Result{Code: code, Error: msg, ID: rec.ID, Status: StatusError})
}

// finalizeFailed handles a terminal write that did not apply. A record another
// invocation already finalized is reported as it is stored; anything else is
// critical.
func (p *Pipeline) finalizeFailed(ctx context.Context, rec *Record, intended Status, outcome Code, err error) Result {
	if !errors.Is(err, ErrAlreadyFinalized) {
		return p.critical(rec, intended, outcome, err)
	}
	cur, gerr := p.store.Get(ctx, rec.ID)
	if gerr != nil {
		return p.critical(rec, intended, outcome, fmt.Errorf("%w; reload: %v", err, gerr))
	}
	p.recordLogger(rec).Warn("record finalized by another invocation, result discarded",
		zap.String("intended_status", string(intended)),
		zap.String("stored_status", string(cur.Status)),
	)
	*rec = *cur
	return p.done(terminalResult(cur))
}

// critical reports a failed terminal write. The record is stuck in a
// non-terminal state and nothing at this layer can repair it. That state is
// usually processing, but pending when the processing mark also failed.
func (p *Pipeline) critical(rec *Record, intended Status, outcome Code, err error) Result {
	p.recordLogger(rec).Error("CRITICAL: failed to write terminal state, record left non-terminal",
		zap.Bool("critical", true),
		zap.String("intended_status", string(intended)),
		zap.String("outcome", string(outcome)),
		zap.String("current_status", string(rec.Status)),
		zap.Error(err),
	)
	p.metrics.FinalizeFailed()

	return p.done(Result{
		Code:   CodeFinalizeFailure,
		Error:  "Failed to record the outcome of your message.",
		ID:     rec.ID,
		Status: rec.Status,
	})
}

func (p *Pipeline) done(res Result) Result {
	p.metrics.Outcome(string(res.Code))
	return res
}

func (p *Pipeline) recordLogger(rec *Record) *zap.Logger {
	return p.log.With(zap.String("message_id", rec.ID), zap.String("user_id", rec.UserID))
}

func describeGenerationError(err error) (Code, string) {
	var gerr *ai.Error
	if errors.As(err, &gerr) {
		return Code(gerr.Kind), "Failed to get AI response. Details: " + gerr.Error()
	}
	return CodeNetworkError, "Failed to get AI response. Details: " + string(ai.KindNetwork) + ": " + err.Error()
}

func terminalResult(rec *Record) Result {
	res := Result{ID: rec.ID, Status: rec.Status, Code: CodeAlreadyFinalized}
	if rec.Status == StatusCompleted {
		res.Success = true
		if rec.ResponseText != nil {
			res.ResponseText = *rec.ResponseText
		}
		return res
	}
	if rec.ErrorMessage != nil {
		res.Error = *rec.ErrorMessage
	}
	return res
}
