package entities

import "time"

// LogEntryEntity is a confirmed observation.
// Maps to the 'log_entries' table.
type LogEntryEntity struct {
	ID             string    `gorm:"primaryKey;size:36"`
	UserID         string    `gorm:"size:191;not null;index:idx_log_user_category,priority:1"`
	Category       string    `gorm:"size:16;not null;index:idx_log_user_category,priority:2"`
	CommonName     string    `gorm:"size:255;not null"`
	ScientificName string    `gorm:"size:191;not null"`
	FieldNotes     string    `gorm:"type:text"`
	PhotoRef       string    `gorm:"size:512"`
	PhotoAuthor    string    `gorm:"size:191"`
	Timestamp      time.Time `gorm:"not null;index"`
	Latitude       float64
	Longitude      float64
	Status         string `gorm:"size:32;not null;index:idx_log_status_created,priority:1"`
	// DraftToken is the fingerprint of the draft being promoted; set only
	// while Status is committing.
	DraftToken string    `gorm:"size:600"`
	CreatedAt  time.Time `gorm:"index:idx_log_status_created,priority:2"`
	UpdatedAt  time.Time
}

// TableName ensures GORM uses the expected table name.
func (LogEntryEntity) TableName() string {
	return "log_entries"
}
