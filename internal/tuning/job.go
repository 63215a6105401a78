// Package tuning tracks fine-tuning jobs and drives the external trainer
// microservice. Jobs are queued over RabbitMQ and executed by the worker
// binary.
package tuning

import "time"

type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
)

type Job struct {
	ID string `gorm:"primaryKey;size:26" json:"id"` // ULID length

	ProjectUID string `gorm:"type:varchar(36);index;not null" json:"projectUid"`

	// Model is the name the tuned model is produced under.
	Model         string `gorm:"type:varchar(64);not null" json:"model"`
	BaseModelPath string `gorm:"type:varchar(512);not null" json:"baseModelPath"`
	OutputPath    string `gorm:"type:varchar(512);not null" json:"outputPath"`

	Status   JobStatus `gorm:"type:varchar(16);index;not null" json:"status"`
	Progress float64   `gorm:"not null;default:0" json:"progress"`

	// Filled when succeeded
	TrainedModelDir *string `gorm:"type:varchar(512)" json:"trainedModelDir,omitempty"`

	// Filled when failed
	Error *string `gorm:"type:text" json:"error,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (Job) TableName() string { return "jobs" }
