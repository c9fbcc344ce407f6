// Package observation defines the records that move through the fieldlog
// pipeline: the per-user Draft, the read-only SpeciesRecord and the permanent
// LogEntry, together with the error kinds shared by every stage.
package observation

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Category is the fixed enumeration species and log entries are filed under.
type Category string

const (
	CategoryFlora Category = "Flora"
	CategoryFauna Category = "Fauna"
)

// Categories lists every known category in display order.
var Categories = []Category{CategoryFlora, CategoryFauna}

// ParseCategory accepts a category token in any letter case.
func ParseCategory(s string) (Category, error) {
	for _, c := range Categories {
		if strings.EqualFold(strings.TrimSpace(s), string(c)) {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: unknown category %q", ErrInvalidCategory, s)
}

// Valid reports whether c is one of Categories.
func (c Category) Valid() bool {
	return c == CategoryFlora || c == CategoryFauna
}

// Location is a WGS84 coordinate.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Valid reports whether the coordinate is finite and within range.
func (l Location) Valid() bool {
	if math.IsNaN(l.Latitude) || math.IsNaN(l.Longitude) {
		return false
	}
	return l.Latitude >= -90 && l.Latitude <= 90 && l.Longitude >= -180 && l.Longitude <= 180
}

func (l Location) String() string {
	return fmt.Sprintf("(%.5f,%.5f)", l.Latitude, l.Longitude)
}

// Source records which trigger produced a Draft's image.
type Source string

const (
	SourceCamera  Source = "camera"
	SourceGallery Source = "gallery"
)

// Draft is the single staged observation a user may hold.
type Draft struct {
	ImageRef        string    `json:"image_ref"`
	ObservationText string    `json:"observation_text"`
	Title           string    `json:"title,omitempty"`
	Source          Source    `json:"source,omitempty"`
	CapturedAt      time.Time `json:"captured_at"`
	Location        *Location `json:"location,omitempty"`
}

// HasLocation reports whether a location was attached at capture time.
func (d Draft) HasLocation() bool {
	return d.Location != nil
}

// Eligible reports whether d can be promoted into a LogEntry.
func (d Draft) Eligible() bool {
	return d.ImageRef != "" && d.HasLocation()
}

// Normalize returns d with CapturedAt in UTC at millisecond precision, the
// precision every supported store keeps. Fingerprints are only comparable
// between normalized drafts.
func (d Draft) Normalize() Draft {
	d.CapturedAt = d.CapturedAt.UTC().Truncate(time.Millisecond)
	return d
}

// Fingerprint identifies this particular capture. A re-capture always yields a
// different fingerprint, even for the same image.
func (d Draft) Fingerprint() string {
	return d.ImageRef + "@" + d.CapturedAt.UTC().Format(time.RFC3339Nano)
}

// DraftKey renders the document path of a user's draft slot.
func DraftKey(userID string) string {
	return "drafts/" + userID
}

// SpeciesRecord is a read-only catalog entry.
type SpeciesRecord struct {
	CommonName     string   `json:"common_name" yaml:"common_name"`
	ScientificName string   `json:"scientific_name" yaml:"scientific_name"`
	ImageURL       string   `json:"image_url,omitempty" yaml:"image_url"`
	Category       Category `json:"category" yaml:"category"`
}

// IsZero reports whether no species was selected.
func (s SpeciesRecord) IsZero() bool {
	return s.CommonName == "" && s.ScientificName == ""
}

// Same reports whether s and other name the same species in the same category.
func (s SpeciesRecord) Same(other SpeciesRecord) bool {
	return s.Category == other.Category && strings.EqualFold(s.ScientificName, other.ScientificName)
}

// CatalogKey renders the document path of a category's catalog.
func CatalogKey(c Category) string {
	return "catalog/" + string(c)
}

// Status is a LogEntry lifecycle tag.
type Status string

const (
	StatusMapVisible    Status = "map-visible"
	StatusPendingReview Status = "pending-review"
	// StatusCommitting marks an entry written by the first phase of a
	// two-phase commit. It is never returned to users.
	StatusCommitting Status = "committing"
)

// LogEntry is a confirmed, permanent observation.
type LogEntry struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	Category       Category  `json:"category"`
	CommonName     string    `json:"common_name"`
	ScientificName string    `json:"scientific_name"`
	FieldNotes     string    `json:"field_notes"`
	PhotoRef       string    `json:"photo_ref"`
	PhotoAuthor    string    `json:"photo_author"`
	Timestamp      time.Time `json:"timestamp"`
	Location       Location  `json:"location"`
	Status         Status    `json:"status"`
	DraftToken     string    `json:"-"`
	CreatedAt      time.Time `json:"created_at"`
}

// Key renders the document path logs/{userId}/{category}/{entryId}.
func (e LogEntry) Key() string {
	return fmt.Sprintf("logs/%s/%s/%s", e.UserID, e.Category, e.ID)
}

// NewLogEntry combines a draft with the chosen species. The draft must carry a
// location.
func NewLogEntry(id, userID string, category Category, draft Draft, species SpeciesRecord, now time.Time) (LogEntry, error) {
	if !draft.Eligible() {
		return LogEntry{}, ErrNoActiveDraft
	}

	return LogEntry{
		ID:             id,
		UserID:         userID,
		Category:       category,
		CommonName:     species.CommonName,
		ScientificName: species.ScientificName,
		FieldNotes:     fieldNotes(draft),
		PhotoRef:       draft.ImageRef,
		PhotoAuthor:    userID,
		Timestamp:      draft.CapturedAt,
		Location:       *draft.Location,
		Status:         StatusMapVisible,
		CreatedAt:      now,
	}, nil
}

// fieldNotes prefixes the observation text with the draft title, if any.
func fieldNotes(d Draft) string {
	title := strings.TrimSpace(d.Title)
	if title == "" {
		return d.ObservationText
	}
	if d.ObservationText == "" {
		return title
	}
	return title + "\n\n" + d.ObservationText
}

// ActiveSighting is a short-lived map marker created with each confirmation.
type ActiveSighting struct {
	EntryID    string    `json:"entry_id"`
	UserID     string    `json:"user_id"`
	Category   Category  `json:"category"`
	CommonName string    `json:"common_name"`
	PhotoRef   string    `json:"photo_ref"`
	Location   Location  `json:"location"`
	CreatedAt  time.Time `json:"created_at"`
	DecayAt    time.Time `json:"decay_at"`
}

// NewActiveSighting derives the map marker for entry, expiring after decay.
func NewActiveSighting(entry LogEntry, now time.Time, decay time.Duration) ActiveSighting {
	return ActiveSighting{
		EntryID:    entry.ID,
		UserID:     entry.UserID,
		Category:   entry.Category,
		CommonName: entry.CommonName,
		PhotoRef:   entry.PhotoRef,
		Location:   entry.Location,
		CreatedAt:  now,
		DecayAt:    now.Add(decay),
	}
}

// Active reports whether the sighting has not decayed at now.
func (s ActiveSighting) Active(now time.Time) bool {
	return s.DecayAt.After(now)
}
