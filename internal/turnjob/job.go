// Package turnjob queues chat turns for the worker and tracks their outcome.
package turnjob

import "time"

type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

type Job struct {
	ID string `gorm:"primaryKey;size:26" json:"id"` // ULID length

	// RequesterID 0 is a guest.
	RequesterID     uint64 `gorm:"not null;index:uniq_job_idempo,unique,priority:1" json:"-"`
	ConversationID  string `gorm:"size:26;index;not null" json:"conversation_id"`
	Message         string `gorm:"type:text;not null" json:"-"`
	ModelPreference string `gorm:"type:varchar(64);not null;default:''" json:"-"`

	IdempotencyKey *string `gorm:"type:varchar(128);index:uniq_job_idempo,unique,priority:2" json:"-"`

	Status Status `gorm:"type:varchar(16);index;not null" json:"status"`

	// filled when succeeded
	Response  *string `gorm:"type:text" json:"response,omitempty"`
	ModelUsed *string `gorm:"type:varchar(64)" json:"model_used,omitempty"`
	Degraded  bool    `gorm:"not null;default:false" json:"degraded"`

	// filled when failed
	Error *string `gorm:"type:text" json:"error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Job) TableName() string { return "turn_jobs" }

func (j *Job) Done() bool {
	return j.Status == StatusSucceeded || j.Status == StatusFailed
}
