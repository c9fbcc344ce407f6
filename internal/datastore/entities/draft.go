// Package entities contains GORM models that map directly to database tables.
// These are persistence-layer structures separate from the domain model.
package entities

import "time"

// DraftEntity holds the single staged observation of a user.
// Maps to the 'drafts' table; user_id is the primary key, so a user can
// never have more than one row.
type DraftEntity struct {
	UserID          string    `gorm:"primaryKey;size:191"`
	ImageRef        string    `gorm:"size:512;not null"`
	ObservationText string    `gorm:"type:text"`
	Title           string    `gorm:"size:255"`
	Source          string    `gorm:"size:16"`
	CapturedAt      time.Time `gorm:"not null"`
	Latitude        *float64
	Longitude       *float64
	// Fingerprint identifies the capture; guarded deletes compare against it.
	Fingerprint string `gorm:"size:600;not null"`
	UpdatedAt   time.Time
}

// TableName ensures GORM uses the expected table name.
func (DraftEntity) TableName() string {
	return "drafts"
}
