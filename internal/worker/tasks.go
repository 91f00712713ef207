package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"rentals/internal/utils"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

const (
	TypeOutboxDrain = "outbox:drain"
	QueueOutbox     = "outbox"

	// maxBatchesPerTask bounds one task run so a flood of events cannot starve the queue.
	maxBatchesPerTask = 20
)

// NewDrainTask builds the drain task. Failed runs are not retried by asynq; the schedule covers them.
func NewDrainTask() *asynq.Task {
	return asynq.NewTask(TypeOutboxDrain, nil, asynq.Queue(QueueOutbox), asynq.MaxRetry(0))
}

// HandleDrain drains batches until one comes back short or the task budget is spent.
func HandleDrain(d Drainer) asynq.HandlerFunc {
	return func(ctx context.Context, _ *asynq.Task) error {
		for i := 0; i < maxBatchesPerTask; i++ {
			stats, err := d.Drain(ctx)
			if err != nil {
				utils.LogWarn(ctx, "worker", "drain", "outbox drain failed", err)
				return err
			}
			if stats.Leased < d.batchSize() {
				return nil
			}
		}
		return nil
	}
}

// Queue is the services' Kicker: each write enqueues a drain task.
type Queue struct {
	Client    *asynq.Client
	UniqueFor time.Duration
}

func (q Queue) Kick(ctx context.Context) {
	if q.Client == nil {
		return
	}
	unique := q.UniqueFor
	if unique <= 0 {
		unique = time.Second
	}
	_, err := q.Client.EnqueueContext(ctx, NewDrainTask(), asynq.Unique(unique))
	if err != nil && !errors.Is(err, asynq.ErrDuplicateTask) {
		utils.LogWarn(ctx, "worker", "kick", "enqueue drain task failed, schedule will pick it up", err)
	}
}

type RunnerConfig struct {
	Concurrency   int
	DrainInterval time.Duration
}

// Runner owns the asynq server that handles drain tasks and the scheduler that enqueues them periodically.
type Runner struct {
	server    *asynq.Server
	scheduler *asynq.Scheduler
	mux       *asynq.ServeMux
}

func NewRunner(redis asynq.RedisClientOpt, cfg RunnerConfig, d Drainer) (*Runner, error) {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	interval := cfg.DrainInterval
	if interval <= 0 {
		interval = 15 * time.Second
	}
	logger := utils.GetLogger().Sugar().With(zap.String("module", "asynq"))

	srv := asynq.NewServer(redis, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			QueueOutbox: 1,
		},
		Logger: logger,
	})
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeOutboxDrain, HandleDrain(d))

	scheduler := asynq.NewScheduler(redis, &asynq.SchedulerOpts{Logger: logger, Location: time.UTC})
	spec := fmt.Sprintf("@every %s", interval)
	if _, err := scheduler.Register(spec, NewDrainTask(), asynq.Unique(interval)); err != nil {
		return nil, fmt.Errorf("register drain schedule: %w", err)
	}
	return &Runner{server: srv, scheduler: scheduler, mux: mux}, nil
}

func (r *Runner) Start() error {
	if err := r.server.Start(r.mux); err != nil {
		return fmt.Errorf("start asynq server: %w", err)
	}
	if err := r.scheduler.Start(); err != nil {
		r.server.Shutdown()
		return fmt.Errorf("start asynq scheduler: %w", err)
	}
	utils.LogEvent(context.Background(), "worker", "start", "outbox worker started")
	return nil
}

func (r *Runner) Shutdown() {
	r.scheduler.Shutdown()
	r.server.Shutdown()
}
