package entities

import "time"

// ActiveSightingEntity is a short-lived map marker.
// Maps to the 'active_sightings' table.
type ActiveSightingEntity struct {
	EntryID    string `gorm:"primaryKey;size:36"`
	UserID     string `gorm:"size:191;not null"`
	Category   string `gorm:"size:16;not null"`
	CommonName string `gorm:"size:255"`
	PhotoRef   string `gorm:"size:512"`
	Latitude   float64
	Longitude  float64
	CreatedAt  time.Time
	DecayAt    time.Time `gorm:"not null;index"`
}

// TableName ensures GORM uses the expected table name.
func (ActiveSightingEntity) TableName() string {
	return "active_sightings"
}
