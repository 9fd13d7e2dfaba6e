package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-assistant/internal/domain"
	"github.com/spec-kit/ticket-assistant/internal/observability"
	"github.com/spec-kit/ticket-assistant/internal/repository"
)

// reconcileLockKey identifies the reconciler's Postgres advisory lock.
const reconcileLockKey int64 = 7_310_415

// Locker grants a cluster-wide exclusive run. release must be called when ok is true.
type Locker interface {
	TryLock(ctx context.Context, key int64) (release func(), ok bool, err error)
}

// Emitter re-sends the creation event for a stored ticket.
type Emitter interface {
	EmitCreated(ctx context.Context, ticket *domain.Ticket) error
}

// ReconcilerConfig controls schedule and batch shape.
type ReconcilerConfig struct {
	Schedule string
	Grace    time.Duration
	Batch    int
	Timeout  time.Duration
}

// ReconcilerDependencies bundles collaborators for the reconciler.
type ReconcilerDependencies struct {
	Tickets repository.TicketRepository
	Emitter Emitter
	Locker  Locker
	Metrics *observability.Metrics
	Logger  *zap.Logger
	Now     func() time.Time
}

// Reconciler periodically re-emits ticket/created for tickets whose handoff
// never succeeded.
type Reconciler struct {
	cfg     ReconcilerConfig
	tickets repository.TicketRepository
	emitter Emitter
	locker  Locker
	metrics *observability.Metrics
	logger  *zap.Logger
	now     func() time.Time
	c       *cron.Cron
}

// NewReconciler validates the schedule and registers the job. Start runs it.
func NewReconciler(cfg ReconcilerConfig, deps ReconcilerDependencies) (*Reconciler, error) {
	if cfg.Batch <= 0 {
		cfg.Batch = 100
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}
	r := &Reconciler{
		cfg:     cfg,
		tickets: deps.Tickets,
		emitter: deps.Emitter,
		locker:  deps.Locker,
		metrics: deps.Metrics,
		logger:  deps.Logger,
		now:     deps.Now,
	}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}
	if r.now == nil {
		r.now = time.Now
	}

	r.c = cron.New(cron.WithParser(cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)))
	if _, err := r.c.AddFunc(cfg.Schedule, r.tick); err != nil {
		return nil, fmt.Errorf("invalid reconcile schedule %q: %w", cfg.Schedule, err)
	}
	return r, nil
}

func (r *Reconciler) Start() { r.c.Start() }

// Stop halts scheduling and waits for a running pass to finish.
func (r *Reconciler) Stop() {
	<-r.c.Stop().Done()
}

func (r *Reconciler) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.Timeout)
	defer cancel()

	if r.locker != nil {
		release, ok, err := r.locker.TryLock(ctx, reconcileLockKey)
		if err != nil {
			r.logger.Error("reconciler: lock error", zap.Error(err))
			return
		}
		if !ok {
			r.logger.Info("reconciler: already running elsewhere")
			return
		}
		defer release()
	}

	if _, err := r.RunOnce(ctx); err != nil {
		r.logger.Error("reconciler: pass failed", zap.Error(err))
	}
}

// RunOnce re-emits one batch of pending tickets older than the grace period
// and returns how many were handed off.
func (r *Reconciler) RunOnce(ctx context.Context) (int, error) {
	cutoff := r.now().Add(-r.cfg.Grace)
	pending, err := r.tickets.List(ctx, repository.TicketFilter{
		PendingTriage: true,
		CreatedBefore: &cutoff,
		Limit:         r.cfg.Batch,
	})
	if err != nil {
		return 0, fmt.Errorf("list pending tickets: %w", err)
	}
	if len(pending) == 0 {
		return 0, nil
	}

	sent := 0
	for i := range pending {
		if err := ctx.Err(); err != nil {
			return sent, err
		}
		if err := r.emitter.EmitCreated(ctx, &pending[i]); err != nil {
			continue
		}
		r.metrics.RecordRedelivery()
		sent++
	}
	r.logger.Info("reconciler: pass complete",
		zap.Int("pending", len(pending)),
		zap.Int("redelivered", sent))
	return sent, nil
}
