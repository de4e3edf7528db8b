// Package store holds the exclusive, in-memory owner of Workflow and Job
// records. Every mutation is funneled through a small set of methods
// serialized by a single coarse lock; the lock is always released before
// any event is published, so a slow subscriber can never block a mutation.
package store

import (
	"context"

	"github.com/wsiflow/tilesched/pkg/model"
)

// CreateJobParams carries the caller-supplied fields for a new job. The
// owning tenant is passed as CreateJob's explicit tenantID argument, not a
// field here, since it comes from request auth rather than the request body.
type CreateJobParams struct {
	FileRef string
	JobType model.JobType
	Branch  string
}

// Mutator is applied to a job under the store's lock during a Transition
// call, after the from-state check has passed and before the to-state is
// committed. It lets callers set state-specific fields (progress, error,
// manifest, timestamps) atomically with the transition itself.
type Mutator func(j *model.Job)

// Store is the exclusive owner of Workflow and Job state. All methods are
// safe for concurrent use.
type Store interface {
	CreateWorkflow(ctx context.Context, tenantID, name string) (*model.Workflow, error)
	GetWorkflow(ctx context.Context, tenantID, id string) (*model.Workflow, model.Aggregate, error)

	CreateJob(ctx context.Context, tenantID, workflowID string, p CreateJobParams) (*model.Job, error)
	GetJob(ctx context.Context, tenantID, id string) (*model.Job, error)
	ListWorkflowJobs(ctx context.Context, tenantID, workflowID string) ([]*model.Job, error)

	// Transition atomically moves a job from one of `from` states to `to`,
	// running mutator (if non-nil) on the job before committing. It fails
	// with CONFLICT if the job's current state is not in `from`, leaving
	// the job untouched. On success it publishes exactly one event on the
	// job's feed, followed by a recomputed aggregate event on its
	// workflow's feed.
	Transition(ctx context.Context, jobID string, from []model.JobState, to model.JobState, mutate Mutator) (*model.Job, error)

	// UpdateProgress sets a RUNNING job's tile counters and derived
	// progress, and publishes a progress event. It does not change state.
	UpdateProgress(ctx context.Context, jobID string, done, total int) (*model.Job, error)

	// Subscribe returns a live feed of events for one job or workflow id.
	// entityID may name either a job or a workflow; the caller knows which
	// because it asked for it.
	Subscribe(ctx context.Context, kind model.EntityKind, entityID string, bufferSize int) (*Subscriber, error)

	// jobByIDUnlocked-style internal lookups used by the scheduler to read
	// job snapshots without going through tenant checks (the scheduler is
	// trusted, in-process code, not an external caller).
	GetJobInternal(ctx context.Context, id string) (*model.Job, error)
	ListJobsByState(ctx context.Context, state model.JobState) ([]*model.Job, error)
}
