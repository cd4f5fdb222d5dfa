package mediastore

import (
	"time"
)

// Status is the lifecycle position of a media entry
type Status string

const (
	// StatusPending means the destination was handed out and nothing has been written yet
	StatusPending Status = "pending"
	// StatusComplete means the device reported the final location
	StatusComplete Status = "complete"
	// StatusFailed means the capture or recording failed
	StatusFailed Status = "failed"
)

// Media is one photo or video in the index
type Media struct {
	ID          string `gorm:"primaryKey;size:36"`
	Kind        string `gorm:"index;size:8;not null"`
	DisplayName string `gorm:"index;not null"`
	ContentType string `gorm:"size:64;not null"`
	Path        string `gorm:"uniqueIndex;not null"`
	Location    string
	Status      Status `gorm:"index;size:16;not null"`
	Error       string
	Bytes       int64
	DurationMs  int64
	CreatedAt   time.Time `gorm:"index"`
	UpdatedAt   time.Time
}

// TableName keeps the table name stable
func (Media) TableName() string {
	return "media"
}
