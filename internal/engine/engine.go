// Package engine wires the store, event bus, scheduler, inference
// registry, executor, and artifact store into one running instance, and
// exposes the system's external operations as methods. It is the single
// entry point both cmd/tileschedctl and any future transport layer call
// through.
package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/wsiflow/tilesched/internal/artifact"
	"github.com/wsiflow/tilesched/internal/config"
	"github.com/wsiflow/tilesched/internal/eventbus"
	"github.com/wsiflow/tilesched/internal/executor"
	"github.com/wsiflow/tilesched/internal/inference"
	"github.com/wsiflow/tilesched/internal/scheduler"
	"github.com/wsiflow/tilesched/internal/store"
	"github.com/wsiflow/tilesched/pkg/model"
)

// dispatchProxy lets the Scheduler and Executor be constructed in either
// order despite each needing a reference to the other: the Scheduler is
// built first against a proxy, and the proxy's target is filled in once
// the Executor exists.
type dispatchProxy struct {
	exec *executor.Executor
}

func (p *dispatchProxy) Dispatch(job *model.Job) {
	p.exec.Dispatch(job)
}

// Engine owns every component's lifecycle.
type Engine struct {
	cfg       config.Config
	logger    *slog.Logger
	store     store.Store
	bus       *eventbus.Bus
	scheduler *scheduler.Scheduler
	executor  *executor.Executor
	artifacts artifact.Store
}

// New wires every component per cfg. The returned Engine is ready to
// accept CreateWorkflow/CreateJob calls; call Start to begin admission.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Engine, error) {
	bus := eventbus.New(logger)
	st := store.New(bus, cfg.MaxJobsPerWorkflow, logger)

	artifacts, err := artifact.New(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("create artifact store: %w", err)
	}

	reg := inference.NewRegistry(logger)
	reg.Register(string(model.JobTypeSegmentCells), inference.SegmentCells)
	reg.Register(string(model.JobTypeTissueMask), inference.TissueMask)

	proxy := &dispatchProxy{}
	sched := scheduler.New(st, proxy, scheduler.Config{
		MaxWorkers:     cfg.MaxWorkers,
		MaxActiveUsers: cfg.MaxActiveUsers,
	}, logger)

	exec := executor.New(st, reg, artifacts, sched, cfg, logger)
	proxy.exec = exec

	return &Engine{
		cfg:       cfg,
		logger:    logger.With("component", "engine"),
		store:     st,
		bus:       bus,
		scheduler: sched,
		executor:  exec,
		artifacts: artifacts,
	}, nil
}

// Start begins the admission loop. Blocks until ctx is canceled or Stop is
// called, so callers typically run it on its own goroutine.
func (e *Engine) Start(ctx context.Context) error {
	e.logger.Info("engine started")
	return e.scheduler.Start(ctx)
}

// Stop gracefully shuts the admission loop down.
func (e *Engine) Stop() error {
	return e.scheduler.Stop()
}

// CreateWorkflow creates a new workflow for tenantID.
func (e *Engine) CreateWorkflow(ctx context.Context, tenantID, name string) (*model.Workflow, error) {
	return e.store.CreateWorkflow(ctx, tenantID, name)
}

// CreateJob submits a new job under workflowID, PENDING until admitted.
func (e *Engine) CreateJob(ctx context.Context, tenantID, workflowID, fileRef string, jobType model.JobType, branch string) (*model.Job, error) {
	job, err := e.store.CreateJob(ctx, tenantID, workflowID, store.CreateJobParams{
		FileRef: fileRef,
		JobType: jobType,
		Branch:  branch,
	})
	if err != nil {
		return nil, err
	}
	e.scheduler.Wake()
	return job, nil
}

// StartJob requests an immediate admission scan rather than waiting for
// the next automatic wake. It does not guarantee jobID itself is admitted
// this scan — only that the queue gets a prompt look.
func (e *Engine) StartJob(ctx context.Context, tenantID, jobID string) error {
	if _, err := e.store.GetJob(ctx, tenantID, jobID); err != nil {
		return err
	}
	e.scheduler.Wake()
	return nil
}

// CancelJob cancels a PENDING job. Once a job is RUNNING it can no longer
// be canceled.
func (e *Engine) CancelJob(ctx context.Context, tenantID, jobID string) (*model.Job, error) {
	if _, err := e.store.GetJob(ctx, tenantID, jobID); err != nil {
		return nil, err
	}
	return e.store.Transition(ctx, jobID, []model.JobState{model.JobStatePending}, model.JobStateCanceled, nil)
}

// RetryJob re-enqueues a terminal job at the FIFO tail.
func (e *Engine) RetryJob(ctx context.Context, tenantID, jobID string) (*model.Job, error) {
	if _, err := e.store.GetJob(ctx, tenantID, jobID); err != nil {
		return nil, err
	}
	job, err := e.store.Transition(ctx, jobID,
		[]model.JobState{model.JobStateSucceeded, model.JobStateFailed, model.JobStateCanceled},
		model.JobStatePending, nil)
	if err != nil {
		return nil, err
	}
	e.scheduler.Wake()
	return job, nil
}

// GetJob returns jobID, scoped to tenantID.
func (e *Engine) GetJob(ctx context.Context, tenantID, jobID string) (*model.Job, error) {
	return e.store.GetJob(ctx, tenantID, jobID)
}

// GetWorkflow returns workflowID and its derived aggregate, scoped to
// tenantID.
func (e *Engine) GetWorkflow(ctx context.Context, tenantID, workflowID string) (*model.Workflow, model.Aggregate, error) {
	return e.store.GetWorkflow(ctx, tenantID, workflowID)
}

// ListWorkflowJobs lists workflowID's jobs, scoped to tenantID.
func (e *Engine) ListWorkflowJobs(ctx context.Context, tenantID, workflowID string) ([]*model.Job, error) {
	return e.store.ListWorkflowJobs(ctx, tenantID, workflowID)
}

// QueueStatus reports why jobID is or isn't admissible right now.
func (e *Engine) QueueStatus(ctx context.Context, tenantID, jobID string) (model.QueueStatus, error) {
	job, err := e.store.GetJob(ctx, tenantID, jobID)
	if err != nil {
		return model.QueueStatus{}, err
	}
	return e.scheduler.QueueStatus(job), nil
}

// Subscribe returns a live event feed for a job or workflow, scoped to
// tenantID (ownership is checked before the subscription is created).
func (e *Engine) Subscribe(ctx context.Context, tenantID string, kind model.EntityKind, entityID string) (*store.Subscriber, error) {
	switch kind {
	case model.EntityJob:
		if _, err := e.store.GetJob(ctx, tenantID, entityID); err != nil {
			return nil, err
		}
	case model.EntityWorkflow:
		if _, _, err := e.store.GetWorkflow(ctx, tenantID, entityID); err != nil {
			return nil, err
		}
	default:
		return nil, model.NewInvalidError(fmt.Sprintf("unknown entity kind %q", kind))
	}
	return e.store.Subscribe(ctx, kind, entityID, e.cfg.EventBufferSize)
}

// FetchManifest returns a succeeded job's manifest.
func (e *Engine) FetchManifest(ctx context.Context, tenantID, jobID string) (*model.Manifest, error) {
	job, err := e.store.GetJob(ctx, tenantID, jobID)
	if err != nil {
		return nil, err
	}
	if job.Manifest == nil {
		return nil, model.NewConflictError(fmt.Sprintf("job %q has no manifest yet (state %s)", jobID, job.State))
	}
	return job.Manifest, nil
}

// FetchPreview streams a succeeded job's composited preview image.
func (e *Engine) FetchPreview(ctx context.Context, tenantID, jobID string) (io.ReadCloser, error) {
	if _, err := e.requireManifest(ctx, tenantID, jobID); err != nil {
		return nil, err
	}
	return e.artifacts.ReadFile(ctx, jobID, "preview.png")
}

// FetchArtifacts streams a succeeded job's zipped artifact bundle.
func (e *Engine) FetchArtifacts(ctx context.Context, tenantID, jobID string) (io.ReadCloser, error) {
	if _, err := e.requireManifest(ctx, tenantID, jobID); err != nil {
		return nil, err
	}
	return e.artifacts.ReadFile(ctx, jobID, "artifacts.zip")
}

func (e *Engine) requireManifest(ctx context.Context, tenantID, jobID string) (*model.Manifest, error) {
	return e.FetchManifest(ctx, tenantID, jobID)
}
