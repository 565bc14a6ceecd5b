package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TargetKind selects how a queued request carries its benchmark target.
type TargetKind string

const (
	TargetSource TargetKind = "SOURCE"
	TargetURL    TargetKind = "URL"
)

// RunStatus is the lifecycle state of a queued run request.
type RunStatus string

const (
	RunPending   RunStatus = "PENDING"
	RunRunning   RunStatus = "RUNNING"
	RunSucceeded RunStatus = "SUCCEEDED"
	RunEmpty     RunStatus = "EMPTY"   // target declared nothing to run
	RunInvalid   RunStatus = "INVALID" // declaration error, never retried
	RunFailed    RunStatus = "FAILED"  // infrastructure failure, retryable
)

// Args is a run argument list stored as JSONB.
type Args []string

func (a *Args) Scan(value interface{}) error {
	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}
	return json.Unmarshal(bytes, a)
}

func (a Args) Value() (driver.Value, error) {
	return json.Marshal(a)
}

// RunRequest is a benchmark run submitted through the API or the scheduler and
// executed by a worker.
type RunRequest struct {
	ID          uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey"`
	ScheduleID  *uuid.UUID `json:"schedule_id,omitempty" gorm:"type:uuid;index"`
	Kind        TargetKind `json:"kind" gorm:"type:varchar(10);not null"`
	Source      string     `json:"source,omitempty" gorm:"type:text"`
	URL         string     `json:"url,omitempty"`
	Args        Args       `json:"args" gorm:"type:jsonb"`
	Status      RunStatus  `json:"status" gorm:"type:varchar(20);default:'PENDING';index"`
	Attempt     int        `json:"attempt" gorm:"default:1"`
	MaxAttempts int        `json:"max_attempts" gorm:"default:1"`
	Retried     bool       `json:"retried" gorm:"default:false"` // a follow-up attempt was created
	NodeID      *string    `json:"node_id"`
	Message     string     `json:"message"`
	SummaryID   *uuid.UUID `json:"summary_id,omitempty" gorm:"type:uuid"`
	ScheduledAt time.Time  `json:"scheduled_at" gorm:"not null"`
	StartedAt   *time.Time `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at"`
	CreatedAt   time.Time  `json:"created_at"`
}

func (r *RunRequest) BeforeCreate(tx *gorm.DB) (err error) {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return
}

// ScheduleStatus represents the state of a recurring benchmark schedule.
type ScheduleStatus string

const (
	ScheduleActive   ScheduleStatus = "ACTIVE"
	SchedulePaused   ScheduleStatus = "PAUSED"
	ScheduleArchived ScheduleStatus = "ARCHIVED"
)

// Schedule runs a benchmark target on a cron expression.
type Schedule struct {
	ID          uuid.UUID      `json:"id" gorm:"type:uuid;primaryKey"`
	Name        string         `json:"name" gorm:"not null"`
	Cron        string         `json:"cron" gorm:"not null"`
	Kind        TargetKind     `json:"kind" gorm:"type:varchar(10);not null"`
	Source      string         `json:"source,omitempty" gorm:"type:text"`
	URL         string         `json:"url,omitempty"`
	Args        Args           `json:"args" gorm:"type:jsonb"`
	MaxAttempts int            `json:"max_attempts" gorm:"default:1"`
	OwnerID     string         `json:"owner_id"`
	Status      ScheduleStatus `json:"status" gorm:"type:varchar(20);default:'ACTIVE'"`
	NextRunAt   *time.Time     `json:"next_run_at" gorm:"index"` // Index for fast polling
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `json:"-" gorm:"index"`
}

func (s *Schedule) BeforeCreate(tx *gorm.DB) (err error) {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return
}
