package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Report holds the measurements of one benchmark.
type Report struct {
	Benchmark   string  `json:"benchmark"`
	N           int     `json:"n"`
	NsPerOp     float64 `json:"ns_per_op"`
	BytesPerOp  uint64  `json:"bytes_per_op"`
	AllocsPerOp uint64  `json:"allocs_per_op"`
}

// Reports is stored as JSONB.
type Reports []Report

func (r *Reports) Scan(value interface{}) error {
	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}
	return json.Unmarshal(bytes, r)
}

func (r Reports) Value() (driver.Value, error) {
	return json.Marshal(r)
}

// Summary is the outcome of running one RunDescriptor, or a placeholder when
// nothing could be run.
type Summary struct {
	ID                  uuid.UUID     `json:"id" gorm:"type:uuid;primaryKey"`
	RequestID           *uuid.UUID    `json:"request_id,omitempty" gorm:"type:uuid;index"`
	Title               string        `json:"title" gorm:"not null"`
	ResultsDirectory    string        `json:"results_directory"`
	LogFilePath         string        `json:"log_file_path"`
	HostEnvironmentInfo string        `json:"host_environment_info"`
	Reports             Reports       `json:"reports" gorm:"type:jsonb"`
	TotalTime           time.Duration `json:"total_time"`
	ReportURI           string        `json:"report_uri"`
	CreatedAt           time.Time     `json:"created_at"`
}

// NothingToRun returns the placeholder summary used when a target could not be
// run. The message becomes the title.
func NothingToRun(message, resultsDirectory, logFilePath string) *Summary {
	return &Summary{
		ID:               uuid.New(),
		Title:            message,
		ResultsDirectory: resultsDirectory,
		LogFilePath:      logFilePath,
	}
}

// IsPlaceholder reports whether the summary carries no measurements and no
// identifying paths.
func (s *Summary) IsPlaceholder() bool {
	return s != nil && len(s.Reports) == 0 && s.ResultsDirectory == "" && s.LogFilePath == ""
}

func (s *Summary) BeforeCreate(tx *gorm.DB) (err error) {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return
}
