// Package scheduler admits PENDING jobs into RUNNING under three
// simultaneous constraints: a global worker-slot cap, one running job per
// (workflow, branch) at a time, and a hard cap on the number of distinct
// tenants with at least one RUNNING job.
//
// Admission scans the full PENDING queue in FIFO order (by the time each
// job most recently became PENDING, so a retried job sits at the tail) on
// every wake, rather than dequeuing a single head-of-line job: a job stuck
// behind a busy branch must never block an otherwise-admissible job behind
// it. This replaces a ticker-polled loop with a dedicated goroutine reading
// a buffered wake channel — the loop only does work when something could
// plausibly have changed (a submission, a start or retry request, a
// terminal transition), instead of re-scanning on a fixed interval
// regardless of activity.
package scheduler

import (
	"context"
	"log/slog"
	"sync"

	"github.com/wsiflow/tilesched/internal/store"
	"github.com/wsiflow/tilesched/pkg/model"
)

// Dispatcher hands an admitted job off to the execution driver. Dispatch
// must not block the caller; the scheduler invokes it synchronously during
// a scan and expects the real work to happen on the dispatcher's own
// goroutine.
type Dispatcher interface {
	Dispatch(job *model.Job)
}

// Config holds the scheduler's admission limits.
type Config struct {
	MaxWorkers     int
	MaxActiveUsers int
}

type admission struct {
	branch   model.Branch
	tenantID string
}

// Scheduler is the admission loop described in the package doc. All
// exported methods are safe for concurrent use.
type Scheduler struct {
	store      store.Store
	dispatcher Dispatcher
	config     Config
	logger     *slog.Logger

	wake   chan struct{}
	stopCh chan struct{}
	doneCh chan struct{}

	mu              sync.Mutex
	activeWorkers   int
	runningByBranch map[model.Branch]string // branch -> job id holding the lock
	runningByTenant map[string]int          // tenantID -> count of its currently RUNNING jobs
	admitted        map[string]admission    // jobID -> resources it holds, for Release
}

// New creates a Scheduler. Call Start to begin admitting.
func New(st store.Store, dispatcher Dispatcher, cfg Config, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		store:           st,
		dispatcher:      dispatcher,
		config:          cfg,
		logger:          logger.With("component", "scheduler"),
		wake:            make(chan struct{}, 1),
		stopCh:          make(chan struct{}),
		doneCh:          make(chan struct{}),
		runningByBranch: make(map[model.Branch]string),
		runningByTenant: make(map[string]int),
		admitted:        make(map[string]admission),
	}
}

// Start runs the admission loop until ctx is canceled or Stop is called. It
// performs one scan immediately, then again on every subsequent wake.
func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.Info("scheduler started", "max_workers", s.config.MaxWorkers, "max_active_users", s.config.MaxActiveUsers)

	if err := s.Tick(ctx); err != nil {
		s.logger.Error("initial scan failed", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopping (context canceled)")
			close(s.doneCh)
			return ctx.Err()
		case <-s.stopCh:
			s.logger.Info("scheduler stopping (stop called)")
			close(s.doneCh)
			return nil
		case <-s.wake:
			if err := s.Tick(ctx); err != nil {
				s.logger.Error("admission scan failed", "error", err)
			}
		}
	}
}

// Stop signals the loop to exit and waits for it to do so.
func (s *Scheduler) Stop() error {
	close(s.stopCh)
	<-s.doneCh
	return nil
}

// Wake requests a re-scan. Safe to call from any goroutine, any number of
// times; redundant wakes while one is already pending are coalesced.
func (s *Scheduler) Wake() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Tick performs one full admission scan. Exported for tests that want to
// drive the scheduler synchronously instead of through Start's loop.
func (s *Scheduler) Tick(ctx context.Context) error {
	pending, err := s.store.ListJobsByState(ctx, model.JobStatePending)
	if err != nil {
		return err
	}

	for _, job := range pending {
		s.tryAdmit(ctx, job)
	}
	return nil
}

// tryAdmit attempts to admit a single job, reserving its resources
// optimistically and rolling back if the store transition loses a race
// (e.g., the job was canceled between the scan and the admit attempt).
func (s *Scheduler) tryAdmit(ctx context.Context, job *model.Job) {
	branch := model.BranchOf(job)

	s.mu.Lock()
	if s.activeWorkers >= s.config.MaxWorkers {
		s.mu.Unlock()
		return
	}
	if _, busy := s.runningByBranch[branch]; busy {
		s.mu.Unlock()
		return
	}
	if _, tenantActive := s.runningByTenant[job.TenantID]; !tenantActive {
		if len(s.runningByTenant) >= s.config.MaxActiveUsers {
			s.mu.Unlock()
			return
		}
	}

	s.activeWorkers++
	s.runningByBranch[branch] = job.ID
	s.runningByTenant[job.TenantID]++
	s.admitted[job.ID] = admission{branch: branch, tenantID: job.TenantID}
	s.mu.Unlock()

	running, err := s.store.Transition(ctx, job.ID, []model.JobState{model.JobStatePending}, model.JobStateRunning, nil)
	if err != nil {
		s.releaseLocked(job.ID)
		s.logger.Debug("admission lost race", "job_id", job.ID, "error", err)
		return
	}

	s.logger.Info("job admitted", "job_id", job.ID, "branch", branch.Label, "workflow_id", branch.WorkflowID)
	s.dispatcher.Dispatch(running)
}

// Release returns a RUNNING job's reserved resources once it reaches a
// terminal state (or is about to retry), and wakes the loop so any job that
// was waiting on this branch, tenant slot, or worker slot gets a chance.
// It is a no-op if jobID holds no reservation (e.g., double release).
func (s *Scheduler) Release(jobID string) {
	if s.releaseLocked(jobID) {
		s.Wake()
	}
}

func (s *Scheduler) releaseLocked(jobID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, ok := s.admitted[jobID]
	if !ok {
		return false
	}
	delete(s.admitted, jobID)
	delete(s.runningByBranch, info.branch)
	s.runningByTenant[info.tenantID]--
	if s.runningByTenant[info.tenantID] <= 0 {
		delete(s.runningByTenant, info.tenantID)
	}
	s.activeWorkers--
	return true
}

// QueueStatus reports why job is or isn't admissible right now.
func (s *Scheduler) QueueStatus(job *model.Job) model.QueueStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := model.QueueStatus{
		ActiveUsers:    len(s.runningByTenant),
		MaxActiveUsers: s.config.MaxActiveUsers,
		ActiveWorkers:  s.activeWorkers,
		MaxWorkers:     s.config.MaxWorkers,
	}
	if job.State != model.JobStatePending {
		return status
	}
	status.Queued = true

	if s.activeWorkers >= s.config.MaxWorkers {
		status.WaitingFor = append(status.WaitingFor, model.WaitWorker)
	}
	if _, busy := s.runningByBranch[model.BranchOf(job)]; busy {
		status.WaitingFor = append(status.WaitingFor, model.WaitBranch)
	}
	if _, tenantActive := s.runningByTenant[job.TenantID]; !tenantActive {
		if len(s.runningByTenant) >= s.config.MaxActiveUsers {
			status.WaitingFor = append(status.WaitingFor, model.WaitUserSlot)
		}
	}
	return status
}
