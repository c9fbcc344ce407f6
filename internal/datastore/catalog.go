package datastore

import (
	"context"
	"strings"

	"github.com/tphakala/fieldlog/internal/datastore/entities"
	"github.com/tphakala/fieldlog/internal/datastore/mapper"
	"github.com/tphakala/fieldlog/internal/errors"
	"github.com/tphakala/fieldlog/internal/observation"
	"gorm.io/gorm"
)

// GetCatalog returns the species of category ordered by position.
func (ds *DataStore) GetCatalog(ctx context.Context, category observation.Category) ([]observation.SpeciesRecord, error) {
	db, err := ds.db(ctx)
	if err != nil {
		return nil, err
	}

	var rows []entities.SpeciesEntity
	if err := db.Where("category = ?", string(category)).Order("position ASC").Find(&rows).Error; err != nil {
		return nil, dbError(err, "get_catalog", errors.PriorityMedium, "category", string(category))
	}

	records := make([]observation.SpeciesRecord, 0, len(rows))
	for i := range rows {
		records = append(records, mapper.EntityToSpecies(&rows[i]))
	}
	return records, nil
}

// FindSpecies looks up one species by scientific name, ignoring case.
func (ds *DataStore) FindSpecies(ctx context.Context, category observation.Category, scientificName string) (observation.SpeciesRecord, error) {
	db, err := ds.db(ctx)
	if err != nil {
		return observation.SpeciesRecord{}, err
	}

	var row entities.SpeciesEntity
	err = db.Where("category = ? AND LOWER(scientific_name) = ?", string(category), strings.ToLower(strings.TrimSpace(scientificName))).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return observation.SpeciesRecord{}, errors.New(observation.ErrSpeciesNotFound).
			Component("datastore").
			Category(errors.CategoryNotFound).
			Context("category", string(category)).
			Context("scientific_name", scientificName).
			Build()
	}
	if err != nil {
		return observation.SpeciesRecord{}, dbError(err, "find_species", errors.PriorityMedium, "category", string(category))
	}
	return mapper.EntityToSpecies(&row), nil
}

// SeedCatalog loads reference records in one transaction.
func (ds *DataStore) SeedCatalog(ctx context.Context, records []observation.SpeciesRecord) (int, error) {
	db, err := ds.db(ctx)
	if err != nil {
		return 0, err
	}

	for _, r := range records {
		if !r.Category.Valid() {
			return 0, validationError("invalid species category", "category", r.Category)
		}
		if strings.TrimSpace(r.CommonName) == "" || strings.TrimSpace(r.ScientificName) == "" {
			return 0, validationError("species requires common and scientific name", "scientific_name", r.ScientificName)
		}
	}

	added := 0
	err = db.Transaction(func(tx *gorm.DB) error {
		next := make(map[observation.Category]int)
		for _, r := range records {
			if _, ok := next[r.Category]; !ok {
				var maxPos int
				if err := tx.Model(&entities.SpeciesEntity{}).
					Where("category = ?", string(r.Category)).
					Select("COALESCE(MAX(position), 0)").
					Scan(&maxPos).Error; err != nil {
					return err
				}
				next[r.Category] = maxPos
			}

			var existing entities.SpeciesEntity
			err := tx.Where("category = ? AND scientific_name = ?", string(r.Category), r.ScientificName).Take(&existing).Error
			switch {
			case err == nil:
				if err := tx.Model(&existing).Updates(map[string]any{
					"common_name": r.CommonName,
					"image_url":   r.ImageURL,
				}).Error; err != nil {
					return err
				}
			case errors.Is(err, gorm.ErrRecordNotFound):
				next[r.Category]++
				row := entities.SpeciesEntity{
					Category:       string(r.Category),
					Position:       next[r.Category],
					CommonName:     r.CommonName,
					ScientificName: r.ScientificName,
					ImageURL:       r.ImageURL,
				}
				if err := tx.Create(&row).Error; err != nil {
					return err
				}
				added++
			default:
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, dbError(err, "seed_catalog", errors.PriorityMedium, "records", len(records))
	}
	return added, nil
}
