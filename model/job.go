package model

import "time"

// JobState is the lifecycle state of a separation job.
type JobState string

const (
	JobIdle      JobState = "idle"
	JobAdmitted  JobState = "admitted"
	JobRunning   JobState = "running"
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
	JobCancelled JobState = "cancelled"
)

// Terminal reports whether the state permits no further transitions.
func (s JobState) Terminal() bool {
	return s == JobCompleted || s == JobFailed || s == JobCancelled
}

// Active reports whether the job may still make progress.
func (s JobState) Active() bool {
	return s == JobAdmitted || s == JobRunning
}

// Job is one attempt to process a submitted asset into separated stems.
// ResultTracks is non-empty only in the completed state.
type Job struct {
	ID              string    `json:"id"`
	SourceAssetRef  string    `json:"sourceAssetRef"`
	SourceAssetName string    `json:"sourceAssetName"`
	State           JobState  `json:"state"`
	Progress        float64   `json:"progress"` // 0..100
	Error           string    `json:"error,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
	ResultTracks    []Track   `json:"resultTracks,omitempty"`
}

// JobUpdate is the progress notification pushed to observers while a job
// runs.
type JobUpdate struct {
	JobID    string   `json:"jobId"`
	State    JobState `json:"state"`
	Progress float64  `json:"progress"`
	Error    string   `json:"error,omitempty"`
}
