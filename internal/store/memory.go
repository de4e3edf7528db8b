package store

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wsiflow/tilesched/internal/eventbus"
	"github.com/wsiflow/tilesched/pkg/model"
)

// MemoryStore is the exclusive, in-process owner of Workflow and Job
// records. A single mutex serializes every mutation; it is always released
// before events are published to the bus, so a lagging subscriber can
// never stall a mutation.
type MemoryStore struct {
	logger *slog.Logger
	bus    *eventbus.Bus

	maxJobsPerWorkflow int

	mu        sync.Mutex
	workflows map[string]*model.Workflow
	jobs      map[string]*model.Job
	byWF      map[string][]string // workflowID -> job IDs, insertion order
	allIDs    []string            // every job id, global insertion (submission) order
}

// New creates an empty MemoryStore publishing through bus.
func New(bus *eventbus.Bus, maxJobsPerWorkflow int, logger *slog.Logger) *MemoryStore {
	return &MemoryStore{
		logger:             logger.With("component", "store"),
		bus:                bus,
		maxJobsPerWorkflow: maxJobsPerWorkflow,
		workflows:          make(map[string]*model.Workflow),
		jobs:               make(map[string]*model.Job),
		byWF:               make(map[string][]string),
		allIDs:             nil,
	}
}

func (s *MemoryStore) CreateWorkflow(_ context.Context, tenantID, name string) (*model.Workflow, error) {
	s.mu.Lock()
	wf := &model.Workflow{
		ID:        "wf_" + uuid.New().String(),
		TenantID:  tenantID,
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
	s.workflows[wf.ID] = wf
	s.mu.Unlock()

	s.logger.Info("workflow created", "workflow_id", wf.ID, "tenant_id", tenantID)
	return wf, nil
}

func (s *MemoryStore) GetWorkflow(_ context.Context, tenantID, id string) (*model.Workflow, model.Aggregate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	wf, ok := s.workflows[id]
	if !ok {
		return nil, model.Aggregate{}, model.NewNotFoundError("workflow", id)
	}
	if wf.TenantID != tenantID {
		return nil, model.Aggregate{}, model.NewForbiddenError("workflow", id)
	}

	jobs := s.jobsForWorkflowLocked(id)
	return wf, model.ComputeAggregate(jobs), nil
}

func (s *MemoryStore) CreateJob(_ context.Context, tenantID, workflowID string, p CreateJobParams) (*model.Job, error) {
	if !p.JobType.Valid() {
		return nil, model.NewInvalidError(fmt.Sprintf("unknown job type %q", p.JobType))
	}

	s.mu.Lock()

	wf, ok := s.workflows[workflowID]
	if !ok {
		s.mu.Unlock()
		return nil, model.NewNotFoundError("workflow", workflowID)
	}
	if wf.TenantID != tenantID {
		s.mu.Unlock()
		return nil, model.NewForbiddenError("workflow", workflowID)
	}
	if len(s.byWF[workflowID]) >= s.maxJobsPerWorkflow {
		s.mu.Unlock()
		return nil, model.NewLimitExceededError(fmt.Sprintf("workflow %q already has %d jobs", workflowID, s.maxJobsPerWorkflow))
	}

	now := time.Now().UTC()
	job := &model.Job{
		ID:          "job_" + uuid.New().String(),
		WorkflowID:  workflowID,
		TenantID:    tenantID,
		FileRef:     p.FileRef,
		JobType:     p.JobType,
		Branch:      p.Branch,
		State:       model.JobStatePending,
		SubmittedBy: tenantID,
		CreatedAt:   now,
		PendingAt:   now,
	}
	s.jobs[job.ID] = job
	s.byWF[workflowID] = append(s.byWF[workflowID], job.ID)
	s.allIDs = append(s.allIDs, job.ID)
	s.mu.Unlock()

	s.logger.Info("job created", "job_id", job.ID, "workflow_id", workflowID, "branch", p.Branch, "job_type", p.JobType)
	s.publishJobAndWorkflow(job)
	return job, nil
}

func (s *MemoryStore) GetJob(_ context.Context, tenantID, id string) (*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, model.NewNotFoundError("job", id)
	}
	if job.TenantID != tenantID {
		return nil, model.NewForbiddenError("job", id)
	}
	cp := *job
	return &cp, nil
}

func (s *MemoryStore) GetJobInternal(_ context.Context, id string) (*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, model.NewNotFoundError("job", id)
	}
	cp := *job
	return &cp, nil
}

func (s *MemoryStore) ListWorkflowJobs(_ context.Context, tenantID, workflowID string) ([]*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	wf, ok := s.workflows[workflowID]
	if !ok {
		return nil, model.NewNotFoundError("workflow", workflowID)
	}
	if wf.TenantID != tenantID {
		return nil, model.NewForbiddenError("workflow", workflowID)
	}
	return s.jobsForWorkflowLocked(workflowID), nil
}

// ListJobsByState returns every job currently in state, ordered by
// PendingAt (the time the job most recently became eligible to run) with
// ties broken by global submission order. The scheduler relies on this
// order for its admission scan: a retry resets PendingAt to the retry
// time, so a retried job is ordered after every job already PENDING at
// that moment, i.e. it lands at the FIFO tail rather than keeping its
// original submission slot.
func (s *MemoryStore) ListJobsByState(_ context.Context, state model.JobState) ([]*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*model.Job
	for _, id := range s.allIDs {
		j := s.jobs[id]
		if j.State == state {
			cp := *j
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, k int) bool {
		return out[i].PendingAt.Before(out[k].PendingAt)
	})
	return out, nil
}

// jobsForWorkflowLocked returns copies of a workflow's jobs in creation
// order. Caller must hold s.mu.
func (s *MemoryStore) jobsForWorkflowLocked(workflowID string) []*model.Job {
	ids := s.byWF[workflowID]
	out := make([]*model.Job, 0, len(ids))
	for _, id := range ids {
		cp := *s.jobs[id]
		out = append(out, &cp)
	}
	return out
}

func (s *MemoryStore) Transition(_ context.Context, jobID string, from []model.JobState, to model.JobState, mutate Mutator) (*model.Job, error) {
	s.mu.Lock()

	job, ok := s.jobs[jobID]
	if !ok {
		s.mu.Unlock()
		return nil, model.NewNotFoundError("job", jobID)
	}

	if !stateIn(job.State, from) || !job.State.CanTransitionTo(to) {
		s.mu.Unlock()
		return nil, &model.InvalidTransitionError{Entity: "Job", ID: jobID, From: string(job.State), To: string(to)}
	}

	if mutate != nil {
		mutate(job)
	}

	now := time.Now().UTC()
	job.State = to
	switch to {
	case model.JobStateRunning:
		job.RunningAt = &now
		job.TerminalAt = nil
	case model.JobStatePending:
		// RETRY: reset progress/error/tile counters regardless of the
		// state retried from (including CANCELED).
		job.Progress = 0
		job.Error = ""
		job.TilesDone = 0
		job.TilesTotal = 0
		job.Manifest = nil
		job.PendingAt = now
		job.RunningAt = nil
		job.TerminalAt = nil
	default:
		if to.IsTerminal() {
			job.TerminalAt = &now
		}
	}

	cp := *job
	s.mu.Unlock()

	s.logger.Info("job transitioned", "job_id", jobID, "from", from, "to", to)
	s.publishJobAndWorkflow(&cp)
	return &cp, nil
}

func (s *MemoryStore) UpdateProgress(_ context.Context, jobID string, done, total int) (*model.Job, error) {
	s.mu.Lock()

	job, ok := s.jobs[jobID]
	if !ok {
		s.mu.Unlock()
		return nil, model.NewNotFoundError("job", jobID)
	}
	if job.State != model.JobStateRunning {
		s.mu.Unlock()
		return nil, model.NewConflictError(fmt.Sprintf("job %q is not RUNNING", jobID))
	}

	job.TilesDone = done
	job.TilesTotal = total
	if total > 0 {
		progress := float64(done) / float64(total)
		if progress > job.Progress {
			job.Progress = progress
		}
	}

	cp := *job
	s.mu.Unlock()

	s.publishJobAndWorkflow(&cp)
	return &cp, nil
}

func (s *MemoryStore) Subscribe(ctx context.Context, kind model.EntityKind, entityID string, bufferSize int) (*Subscriber, error) {
	s.mu.Lock()
	switch kind {
	case model.EntityJob:
		if _, ok := s.jobs[entityID]; !ok {
			s.mu.Unlock()
			return nil, model.NewNotFoundError("job", entityID)
		}
	case model.EntityWorkflow:
		if _, ok := s.workflows[entityID]; !ok {
			s.mu.Unlock()
			return nil, model.NewNotFoundError("workflow", entityID)
		}
	}
	s.mu.Unlock()

	sub := s.bus.Subscribe(ctx, entityID, bufferSize)
	return sub, nil
}

// publishJobAndWorkflow emits the job's own transition event, then
// recomputes and emits its owning workflow's aggregate as a second event.
// Both go out after the lock is released.
func (s *MemoryStore) publishJobAndWorkflow(job *model.Job) {
	s.bus.Publish(job.ID, model.Event{
		EntityKind: model.EntityJob,
		EntityID:   job.ID,
		State:      string(job.State),
		Progress:   job.Progress,
		TilesDone:  job.TilesDone,
		TilesTotal: job.TilesTotal,
		Reason:     job.Error,
		At:         time.Now().UTC(),
	})

	s.mu.Lock()
	jobs := s.jobsForWorkflowLocked(job.WorkflowID)
	s.mu.Unlock()
	agg := model.ComputeAggregate(jobs)

	s.bus.Publish(job.WorkflowID, model.Event{
		EntityKind: model.EntityWorkflow,
		EntityID:   job.WorkflowID,
		State:      string(agg.State),
		Progress:   agg.PercentComplete,
		At:         time.Now().UTC(),
	})
}

func stateIn(s model.JobState, set []model.JobState) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}

// Subscriber is re-exported from eventbus so callers only import store.
type Subscriber = eventbus.Subscriber
