package model

import "testing"

func TestAPIError_Error(t *testing.T) {
	err := &APIError{Code: ErrNotFound, Message: `Workflow "wf_123" not found`}
	want := `NOT_FOUND: Workflow "wf_123" not found`
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestNewNotFoundError(t *testing.T) {
	err := NewNotFoundError("Job", "job_abc")
	if err.Code != ErrNotFound {
		t.Errorf("Code = %q, want %q", err.Code, ErrNotFound)
	}
	want := `Job "job_abc" not found`
	if err.Message != want {
		t.Errorf("Message = %q, want %q", err.Message, want)
	}
}

func TestNewForbiddenError(t *testing.T) {
	err := NewForbiddenError("Job", "job_abc")
	if err.Code != ErrForbidden {
		t.Errorf("Code = %q, want %q", err.Code, ErrForbidden)
	}
}

func TestNewLimitExceededError(t *testing.T) {
	err := NewLimitExceededError("workflow has reached its job cap")
	if err.Code != ErrLimitExceeded {
		t.Errorf("Code = %q, want %q", err.Code, ErrLimitExceeded)
	}
}

func TestInvalidTransitionError(t *testing.T) {
	err := &InvalidTransitionError{
		Entity: "Job",
		ID:     "job_123",
		From:   "SUCCEEDED",
		To:     "RUNNING",
	}
	want := "invalid Job state transition: SUCCEEDED → RUNNING (entity job_123)"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}
