package model

import "time"

// Workflow groups a tenant's jobs. Its tenant never changes once created;
// its job set grows monotonically up to MaxJobsPerWorkflow.
type Workflow struct {
	ID        string            `json:"id"`
	TenantID  string            `json:"tenant_id"`
	Name      string            `json:"name"`
	Labels    map[string]string `json:"labels,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// Aggregate is the derived, on-demand rollup of a workflow's jobs. It is
// never stored: Store.GetWorkflow recomputes it from the current job set
// each call.
type Aggregate struct {
	State           WorkflowState `json:"state"`
	PercentComplete float64       `json:"percent_complete"`
	JobCount        int           `json:"job_count"`
	ByState         map[JobState]int `json:"by_state"`
}

// ComputeAggregate derives a workflow's state and percent-complete from its
// current job set: percent-complete is the mean of job progress
// over non-canceled jobs (SUCCEEDED counts as 1.0, FAILED as its last
// observed progress); state is RUNNING if any job is RUNNING, else
// SUCCEEDED if every non-canceled job is SUCCEEDED, else FAILED if any job
// is FAILED, else PENDING.
func ComputeAggregate(jobs []*Job) Aggregate {
	agg := Aggregate{ByState: make(map[JobState]int)}
	agg.JobCount = len(jobs)

	var sum float64
	var counted int
	anyRunning, anyFailed, allSucceeded := false, false, true

	for _, j := range jobs {
		agg.ByState[j.State]++
		switch j.State {
		case JobStateCanceled:
			continue
		case JobStateRunning:
			anyRunning = true
			allSucceeded = false
			sum += j.Progress
			counted++
		case JobStateSucceeded:
			sum += 1.0
			counted++
		case JobStateFailed:
			anyFailed = true
			allSucceeded = false
			sum += j.Progress
			counted++
		default: // PENDING
			allSucceeded = false
			sum += j.Progress
			counted++
		}
	}

	if counted > 0 {
		agg.PercentComplete = sum / float64(counted)
	}

	switch {
	case anyRunning:
		agg.State = WorkflowStateRunning
	case allSucceeded && counted > 0:
		agg.State = WorkflowStateSucceeded
	case anyFailed:
		agg.State = WorkflowStateFailed
	default:
		agg.State = WorkflowStatePending
	}

	return agg
}
