package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// GetDraft handles GET /draft.
func (c *Controller) GetDraft(ctx echo.Context) error {
	draft, found, err := c.Drafts.Read(ctx.Request().Context(), currentUser(ctx))
	if err != nil {
		return c.HandlePipelineError(ctx, err, "failed to read draft")
	}
	if !found {
		return c.HandleError(ctx, nil, "no staged draft", http.StatusNotFound)
	}
	return ctx.JSON(http.StatusOK, draft)
}

// DeleteDraft handles DELETE /draft. It discards the staged draft and the
// pipeline session built on it.
func (c *Controller) DeleteDraft(ctx echo.Context) error {
	userID := currentUser(ctx)
	if err := c.Drafts.Clear(ctx.Request().Context(), userID); err != nil {
		return c.HandlePipelineError(ctx, err, "failed to clear draft")
	}
	c.Sessions.Drop(userID)
	return ctx.NoContent(http.StatusNoContent)
}
