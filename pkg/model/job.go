package model

import "time"

// Job is one tile-inference run over a file, scoped to a workflow, tenant,
// and branch. Branch label is free-form; the empty string is a legal,
// distinct branch.
type Job struct {
	ID           string    `json:"id"`
	WorkflowID   string    `json:"workflow_id"`
	TenantID     string    `json:"tenant_id"` // copied from the owning workflow, immutable
	FileRef      string    `json:"file_ref"`  // opaque reference to the input file
	JobType      JobType   `json:"job_type"`
	Branch       string    `json:"branch"`
	State        JobState  `json:"state"`
	Progress     float64   `json:"progress"` // in [0,1], monotonic within a RUNNING episode
	TilesDone    int       `json:"tiles_done"`
	TilesTotal   int       `json:"tiles_total"`
	Error        string    `json:"error,omitempty"`
	SubmittedBy  string    `json:"submitted_by,omitempty"`
	Manifest     *Manifest `json:"manifest,omitempty"` // populated on SUCCEEDED

	CreatedAt   time.Time  `json:"created_at"`
	PendingAt   time.Time  `json:"pending_at"`
	RunningAt   *time.Time `json:"running_at,omitempty"`
	TerminalAt  *time.Time `json:"terminal_at,omitempty"`
}

// Branch is the compound key (workflow, branch label) that forms the unit
// of FIFO serialization. Branches of different workflows are independent
// even if they share a label.
type Branch struct {
	WorkflowID string
	Label      string
}

// BranchOf returns the branch identity for a job.
func BranchOf(j *Job) Branch {
	return Branch{WorkflowID: j.WorkflowID, Label: j.Branch}
}

// Manifest lists a SUCCEEDED job's artifacts and metadata. Its existence
// signals completion atomicity: a manifest is written only after every
// artifact it lists has been durably persisted.
type Manifest struct {
	JobID      string             `json:"job_id"`
	WorkflowID string             `json:"workflow_id"`
	TenantID   string             `json:"tenant_id"`
	JobType    JobType            `json:"job_type"`
	Branch     string             `json:"branch"`
	TileCount  int                `json:"tile_count"`
	Artifacts  []ArtifactEntry    `json:"artifacts"`
	CreatedAt  time.Time          `json:"created_at"`
	StartedAt  time.Time          `json:"started_at"`
	FinishedAt time.Time          `json:"finished_at"`
}

// ArtifactEntry describes one artifact file within a job's manifest.
type ArtifactEntry struct {
	Path string `json:"path"` // relative to the job's artifact directory
	Size int64  `json:"size"`
}
