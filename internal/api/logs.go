package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/tphakala/fieldlog/internal/observation"
)

// ConfirmRequest names the species a draft is confirmed as.
type ConfirmRequest struct {
	Category       string `json:"category"`
	CommonName     string `json:"common_name"`
	ScientificName string `json:"scientific_name"`
}

func (r ConfirmRequest) species(category observation.Category) observation.SpeciesRecord {
	return observation.SpeciesRecord{
		CommonName:     strings.TrimSpace(r.CommonName),
		ScientificName: strings.TrimSpace(r.ScientificName),
		Category:       category,
	}
}

// Confirm handles POST /confirm.
func (c *Controller) Confirm(ctx echo.Context) error {
	var req ConfirmRequest
	if err := ctx.Bind(&req); err != nil {
		return c.HandleError(ctx, err, "invalid request body", http.StatusBadRequest)
	}
	category, err := observation.ParseCategory(req.Category)
	if err != nil {
		return c.HandleError(ctx, err, "unknown category", http.StatusBadRequest)
	}

	userID := currentUser(ctx)
	entry, err := c.Committer.Confirm(ctx.Request().Context(), userID, category, req.species(category))
	if err != nil {
		return c.HandlePipelineError(ctx, err, "confirmation failed")
	}

	// The draft the session was built on is gone.
	c.Sessions.Drop(userID)
	return ctx.JSON(http.StatusCreated, entry)
}

// ListLogs handles GET /logs/:category.
func (c *Controller) ListLogs(ctx echo.Context) error {
	category, err := observation.ParseCategory(ctx.Param("category"))
	if err != nil {
		return c.HandleError(ctx, err, "unknown category", http.StatusBadRequest)
	}

	entries, err := c.DS.ListEntries(ctx.Request().Context(), currentUser(ctx), category)
	if err != nil {
		return c.HandleError(ctx, err, "failed to list log entries", http.StatusInternalServerError)
	}
	if entries == nil {
		entries = []observation.LogEntry{}
	}
	return ctx.JSON(http.StatusOK, entries)
}

// ActiveSightings handles GET /sightings/active.
func (c *Controller) ActiveSightings(ctx echo.Context) error {
	sightings, err := c.DS.ActiveSightings(ctx.Request().Context(), time.Now())
	if err != nil {
		return c.HandleError(ctx, err, "failed to list active sightings", http.StatusInternalServerError)
	}
	if sightings == nil {
		sightings = []observation.ActiveSighting{}
	}
	return ctx.JSON(http.StatusOK, sightings)
}
