package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/tphakala/fieldlog/internal/catalog"
	"github.com/tphakala/fieldlog/internal/observation"
)

// CatalogResponse lists the species of one category.
type CatalogResponse struct {
	Category observation.Category        `json:"category"`
	Query    string                      `json:"query,omitempty"`
	Species  []observation.SpeciesRecord `json:"species"`
}

// GetCatalog handles GET /catalog/:category?q=.
func (c *Controller) GetCatalog(ctx echo.Context) error {
	category, err := observation.ParseCategory(ctx.Param("category"))
	if err != nil {
		return c.HandleError(ctx, err, "unknown category", http.StatusBadRequest)
	}

	result := c.Catalog.Fetch(ctx.Request().Context(), category)
	if !result.Ok() {
		return c.HandlePipelineError(ctx, result.Err(), "catalog unavailable")
	}

	query := ctx.QueryParam("q")
	return ctx.JSON(http.StatusOK, CatalogResponse{
		Category: category,
		Query:    query,
		Species:  catalog.Filter(result.Records(), query),
	})
}
