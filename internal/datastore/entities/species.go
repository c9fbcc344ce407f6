package entities

// SpeciesEntity is a read-only catalog record.
// Maps to the 'species_records' table. Position preserves insertion order
// within a category.
type SpeciesEntity struct {
	ID             uint   `gorm:"primaryKey"`
	Category       string `gorm:"size:16;not null;index:idx_species_category_position,priority:1;uniqueIndex:idx_species_category_sciname,priority:1"`
	Position       int    `gorm:"not null;index:idx_species_category_position,priority:2"`
	CommonName     string `gorm:"size:255;not null"`
	ScientificName string `gorm:"size:191;not null;uniqueIndex:idx_species_category_sciname,priority:2"`
	ImageURL       string `gorm:"size:1024"`
}

// TableName ensures GORM uses the expected table name.
func (SpeciesEntity) TableName() string {
	return "species_records"
}
