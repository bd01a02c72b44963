package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"planloom/internal/generator"
)

// HandlerFunc is the function signature for job handlers.
type HandlerFunc func(ctx context.Context, job *Job) (any, error)

// Daemon is a long-running loop that claims and executes background jobs.
type Daemon struct {
	Store        *Store
	Handlers     map[string]HandlerFunc
	Logger       *zap.Logger
	LeaseOwner   string
	LeaseFor     time.Duration
	PollInterval time.Duration
}

// Config holds daemon configuration.
type Config struct {
	Store        *Store
	Generator    *generator.Generator
	Logger       *zap.Logger
	LeaseOwner   string
	LeaseFor     time.Duration
	PollInterval time.Duration
}

// New creates a daemon wired to the generation handlers.
func New(cfg Config) *Daemon {
	if cfg.LeaseOwner == "" {
		hostname, _ := os.Hostname()
		cfg.LeaseOwner = fmt.Sprintf("daemon-%s-%d", hostname, os.Getpid())
	}
	if cfg.LeaseFor == 0 {
		cfg.LeaseFor = 5 * time.Minute
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 1 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Daemon{
		Store:        cfg.Store,
		Handlers:     DefaultHandlers(cfg.Generator),
		Logger:       cfg.Logger,
		LeaseOwner:   cfg.LeaseOwner,
		LeaseFor:     cfg.LeaseFor,
		PollInterval: cfg.PollInterval,
	}
}

// DefaultHandlers returns the built-in job handlers.
func DefaultHandlers(gen *generator.Generator) map[string]HandlerFunc {
	return map[string]HandlerFunc{
		JobPlanGenerate: func(ctx context.Context, job *Job) (any, error) {
			payload, err := parsePayload(job)
			if err != nil {
				return nil, err
			}
			if err := gen.Generate(ctx, payload.PlanID, payload.UserID); err != nil {
				return nil, err
			}
			return map[string]any{"plan_id": payload.PlanID}, nil
		},
		JobPlanAdjust: func(ctx context.Context, job *Job) (any, error) {
			payload, err := parsePayload(job)
			if err != nil {
				return nil, err
			}
			if err := gen.Adjust(ctx, payload.PlanID, payload.UserID, payload.Instruction); err != nil {
				return nil, err
			}
			return map[string]any{"plan_id": payload.PlanID}, nil
		},
	}
}

func parsePayload(job *Job) (Payload, error) {
	var payload Payload
	if job.PayloadJSON == "" {
		return payload, fmt.Errorf("job %s has no payload", job.ID)
	}
	if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
		return payload, fmt.Errorf("parse payload: %w", err)
	}
	if payload.PlanID == "" || payload.UserID == "" {
		return payload, fmt.Errorf("payload requires plan_id and user_id")
	}
	return payload, nil
}

// RegisterHandler registers a handler for a job type.
func (d *Daemon) RegisterHandler(jobType string, handler HandlerFunc) {
	d.Handlers[jobType] = handler
}

// Run starts the poll loop. It returns when ctx is cancelled.
func (d *Daemon) Run(ctx context.Context) error {
	d.Logger.Info("daemon started",
		zap.String("lease_owner", d.LeaseOwner),
		zap.Duration("lease_for", d.LeaseFor),
		zap.Duration("poll_interval", d.PollInterval),
	)

	ticker := time.NewTicker(d.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.Logger.Info("daemon stopped")
			return nil

		case <-ticker.C:
			requeued, failed, err := d.Store.ReapExpired(time.Now())
			if err != nil {
				d.Logger.Warn("lease reap failed", zap.Error(err))
			} else if requeued > 0 || failed > 0 {
				d.Logger.Info("reaped expired leases",
					zap.Int("requeued", requeued),
					zap.Int("failed", failed),
				)
			}

			if err := d.claimAndExecute(ctx); err != nil {
				d.Logger.Warn("job execution failed", zap.Error(err))
			}
		}
	}
}

func (d *Daemon) claimAndExecute(ctx context.Context) error {
	job, err := d.Store.ClaimNext(time.Now(), d.LeaseOwner, d.LeaseFor)
	if err != nil {
		return fmt.Errorf("claim job: %w", err)
	}
	if job == nil {
		return nil
	}

	log := d.Logger.With(
		zap.String("job_id", job.ID),
		zap.String("job_type", job.Type),
		zap.String("plan_id", job.PlanID),
	)
	log.Info("job started")

	handler, ok := d.Handlers[job.Type]
	if !ok {
		err := fmt.Errorf("no handler for job type: %s", job.Type)
		_ = d.Store.Fail(job.ID, err)
		return err
	}

	result, execErr := handler(ctx, job)
	if execErr != nil {
		_ = d.Store.Fail(job.ID, execErr)
		log.Warn("job failed", zap.Error(execErr))
		return execErr
	}

	if err := d.Store.Succeed(job.ID, result); err != nil {
		return fmt.Errorf("mark job succeeded: %w", err)
	}
	log.Info("job succeeded")
	return nil
}
