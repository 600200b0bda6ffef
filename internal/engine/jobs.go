package engine

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/riskd/risk-engine/internal/estimator"
	"github.com/riskd/risk-engine/pkg/utils/errors"
	"github.com/riskd/risk-engine/pkg/utils/logger"
)

// JobStatus is the lifecycle state of an asynchronous job.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// CalibrationRequest asks for an offline recalibration of a model's factor
// covariance matrix, validated for positive semi-definiteness.
type CalibrationRequest struct {
	ModelID  string `json:"model_id"`
	Lookback int    `json:"lookback,omitempty"`
}

// Job is the polled view of one submitted job.
type Job struct {
	ID          string     `json:"id"`
	Status      JobStatus  `json:"status"`
	ModelID     string     `json:"model_id"`
	SubmittedAt time.Time  `json:"submitted_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Error       string     `json:"error,omitempty"`
}

const (
	jobQueueDepth = 64
	jobWorkers    = 2
)

// jobRunner executes calibration jobs on a bounded worker pool. Queue
// saturation rejects the submission instead of growing unbounded.
type jobRunner struct {
	engine *Engine
	queue  chan string

	mu   sync.RWMutex
	jobs map[string]*Job

	log *logger.Logger
}

func newJobRunner(e *Engine) *jobRunner {
	return &jobRunner{
		engine: e,
		queue:  make(chan string, jobQueueDepth),
		jobs:   make(map[string]*Job),
		log:    logger.GetLogger("engine.jobs"),
	}
}

// StartJobs launches the job workers. They drain until the context is
// canceled.
func (e *Engine) StartJobs(ctx context.Context) {
	for w := 0; w < jobWorkers; w++ {
		go e.jobs.work(ctx)
	}
}

// SubmitCalibrationJob enqueues a calibration run and returns its job id
// immediately.
func (e *Engine) SubmitCalibrationJob(ctx context.Context, req CalibrationRequest) (Job, error) {
	if req.ModelID == "" {
		return Job{}, errors.InvalidArgument("calibration job requires a model id")
	}
	// Fail fast on unknown models; the queue only carries resolvable work.
	if _, err := e.registry.GetModel(ctx, req.ModelID); err != nil {
		return Job{}, err
	}
	return e.jobs.submit(req)
}

// JobStatus returns the current state of a submitted job.
func (e *Engine) JobStatus(id string) (Job, error) {
	return e.jobs.status(id)
}

func (r *jobRunner) submit(req CalibrationRequest) (Job, error) {
	job := &Job{
		ID:          uuid.NewString(),
		Status:      JobStatusQueued,
		ModelID:     req.ModelID,
		SubmittedAt: time.Now(),
	}

	r.mu.Lock()
	r.jobs[job.ID] = job
	r.mu.Unlock()

	select {
	case r.queue <- job.ID:
	default:
		r.mu.Lock()
		delete(r.jobs, job.ID)
		r.mu.Unlock()
		return Job{}, errors.Internal("calibration queue is full")
	}

	r.log.Infof("queued calibration job %s for model %s", job.ID, req.ModelID)
	return *job, nil
}

func (r *jobRunner) status(id string) (Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	job, ok := r.jobs[id]
	if !ok {
		return Job{}, errors.NotFound("job not found: %s", id)
	}
	return *job, nil
}

func (r *jobRunner) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-r.queue:
			r.run(ctx, id)
		}
	}
}

func (r *jobRunner) run(ctx context.Context, id string) {
	r.mu.Lock()
	job, ok := r.jobs[id]
	if !ok {
		r.mu.Unlock()
		return
	}
	now := time.Now()
	job.Status = JobStatusRunning
	job.StartedAt = &now
	r.mu.Unlock()

	err := r.calibrate(ctx, job.ModelID)

	r.mu.Lock()
	done := time.Now()
	job.CompletedAt = &done
	if err != nil {
		job.Status = JobStatusFailed
		job.Error = err.Error()
		r.log.Errorf("calibration job %s failed: %v", id, err)
	} else {
		job.Status = JobStatusCompleted
		r.log.Infof("calibration job %s completed", id)
	}
	r.mu.Unlock()
}

// calibrate re-estimates the model's factor covariance and verifies it still
// factorizes. A model with no factors has nothing to calibrate.
func (r *jobRunner) calibrate(ctx context.Context, modelID string) error {
	model, err := r.engine.registry.GetModel(ctx, modelID)
	if err != nil {
		return err
	}
	if len(model.Parameters.Factors) == 0 {
		return errors.InvalidArgument("model %s has no factors to calibrate", modelID)
	}

	cov, err := r.engine.covariance.Covariance(ctx, model.Parameters.Factors, model.Parameters.LookbackWindow, estimator.Spec{
		Method:     model.Parameters.CovMethod,
		EwmaLambda: model.Parameters.EwmaLambda,
	})
	if err != nil {
		return err
	}
	return estimator.ValidatePSD(cov)
}
