package domain

import "time"

// BuildStatus captures the lifecycle of one image build run.
type BuildStatus string

const (
	BuildPending   BuildStatus = "pending"
	BuildRunning   BuildStatus = "running"
	BuildSucceeded BuildStatus = "succeeded"
	BuildFailed    BuildStatus = "failed"
)

// Build records one attempt to produce an image from an AppSpec. A failed
// build never yields a usable ImageRef.
type Build struct {
	ID         string      `json:"id"`
	Spec       AppSpec     `json:"spec"`
	RepoURL    string      `json:"repo_url,omitempty"`
	ImageRef   string      `json:"image_ref,omitempty"`
	Status     BuildStatus `json:"status"`
	Error      string      `json:"error,omitempty"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt time.Time   `json:"finished_at,omitempty"`
}
