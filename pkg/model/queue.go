package model

// WaitReason names one of the three admission constraints currently
// blocking a PENDING job.
type WaitReason string

const (
	WaitWorker   WaitReason = "WORKER"
	WaitBranch   WaitReason = "BRANCH"
	WaitUserSlot WaitReason = "USER_SLOT"
)

// QueueStatus reports why a job is or isn't admissible right now.
type QueueStatus struct {
	Queued        bool         `json:"queued"`
	WaitingFor    []WaitReason `json:"waiting_for,omitempty"`
	ActiveUsers   int          `json:"active_users"`
	MaxActiveUsers int         `json:"max_active_users"`
	ActiveWorkers int          `json:"active_workers"`
	MaxWorkers    int          `json:"max_workers"`
}
