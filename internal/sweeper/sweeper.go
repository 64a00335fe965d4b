package sweeper

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/suPer8Hu/chatform/internal/message"
	"github.com/suPer8Hu/chatform/internal/metrics"
)

type StaleLister interface {
	ListStale(ctx context.Context, olderThan time.Time, limit int) ([]message.Record, error)
}

// Sweeper periodically reports records stuck in pending/processing. It never
// changes them: a stuck record needs an operator.
type Sweeper struct {
	repo    StaleLister
	after   time.Duration
	log     *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
}

func New(repo StaleLister, after time.Duration, log *zap.Logger, m *metrics.Metrics) *Sweeper {
	if after <= 0 {
		after = 5 * time.Minute
	}
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Sweeper{
		repo:    repo,
		after:   after,
		log:     log,
		metrics: m,
		now:     time.Now,
		cron:    cron.New(cron.WithLocation(time.UTC)),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Sweep runs one pass and returns how many stale records it found.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	stale, err := s.repo.ListStale(ctx, s.now().Add(-s.after), 100)
	if err != nil {
		return 0, err
	}
	for _, rec := range stale {
		s.log.Error("CRITICAL: message record stuck in non-terminal state",
			zap.Bool("critical", true),
			zap.String("message_id", rec.ID),
			zap.String("user_id", rec.UserID),
			zap.String("status", string(rec.Status)),
			zap.Time("updated_at", rec.UpdatedAt),
		)
	}
	s.metrics.SetStale(len(stale))
	return len(stale), nil
}

// Start schedules Sweep on spec (standard cron syntax or @every).
func (s *Sweeper) Start(spec string) error {
	_, err := s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(s.ctx, 30*time.Second)
		defer cancel()
		if _, err := s.Sweep(ctx); err != nil {
			s.log.Warn("stale sweep failed", zap.Error(err))
		}
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	s.log.Info("stale sweeper started", zap.String("spec", spec), zap.Duration("stale_after", s.after))
	return nil
}

func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
	s.cancel()
}
