package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/tphakala/fieldlog/internal/observation"
	"github.com/tphakala/fieldlog/internal/pipeline"
)

// Event types accepted by POST /pipeline/events.
const (
	EventChooseCategory = "choose_category"
	EventTapSpecies     = "tap_species"
	EventConfirm        = "confirm"
	EventCancel         = "cancel"
	EventBack           = "back"
)

// EventRequest is a user interaction to dispatch to the pipeline session.
type EventRequest struct {
	Type           string `json:"type"`
	Category       string `json:"category,omitempty"`
	CommonName     string `json:"common_name,omitempty"`
	ScientificName string `json:"scientific_name,omitempty"`
}

// StateResponse is the JSON rendering of a pipeline state.
type StateResponse struct {
	State        string                      `json:"state"`
	Draft        *observation.Draft          `json:"draft,omitempty"`
	Category     observation.Category        `json:"category,omitempty"`
	Loading      bool                        `json:"loading,omitempty"`
	Catalog      []observation.SpeciesRecord `json:"catalog,omitempty"`
	CatalogError string                      `json:"catalog_error,omitempty"`
	Species      *observation.SpeciesRecord  `json:"species,omitempty"`
	LastError    string                      `json:"last_error,omitempty"`
	Entry        *observation.LogEntry       `json:"entry,omitempty"`
}

// NewStateResponse renders s.
func NewStateResponse(s pipeline.State) StateResponse {
	resp := StateResponse{State: s.Name()}

	selected := func(cs pipeline.CategorySelected) {
		resp.Draft = &cs.Draft
		resp.Category = cs.Category
		resp.Loading = cs.Loading
		if cs.Loading {
			return
		}
		if cs.Catalog.Ok() {
			resp.Catalog = cs.Catalog.Records()
		} else if err := cs.Catalog.Err(); err != nil {
			resp.CatalogError = err.Error()
		}
	}

	switch st := s.(type) {
	case pipeline.Reviewing:
		resp.Draft = &st.Draft
	case pipeline.CategorySelected:
		selected(st)
	case pipeline.SpeciesPicked:
		selected(st.CategorySelected)
		resp.Species = &st.Species
		if st.LastError != nil {
			resp.LastError = st.LastError.Error()
		}
	case pipeline.Confirmed:
		resp.Entry = &st.Entry
	}
	return resp
}

// GetPipeline handles GET /pipeline.
func (c *Controller) GetPipeline(ctx echo.Context) error {
	session, err := c.Sessions.Session(ctx.Request().Context(), currentUser(ctx))
	if err != nil {
		return c.HandlePipelineError(ctx, err, "failed to load pipeline session")
	}
	return ctx.JSON(http.StatusOK, NewStateResponse(session.State()))
}

// DispatchEvent handles POST /pipeline/events. Confirmation failures are
// reported with their status; the session keeps the selection so the client
// can retry.
func (c *Controller) DispatchEvent(ctx echo.Context) error {
	var req EventRequest
	if err := ctx.Bind(&req); err != nil {
		return c.HandleError(ctx, err, "invalid request body", http.StatusBadRequest)
	}

	ev, err := req.event()
	if err != nil {
		return c.HandleError(ctx, err, "invalid event", http.StatusBadRequest)
	}

	reqCtx := ctx.Request().Context()
	userID := currentUser(ctx)
	session, err := c.Sessions.Session(reqCtx, userID)
	if err != nil {
		return c.HandlePipelineError(ctx, err, "failed to load pipeline session")
	}

	state, err := session.Dispatch(reqCtx, ev)
	if err != nil {
		return c.HandlePipelineError(ctx, err, "event rejected")
	}
	if _, done := state.(pipeline.Confirmed); done {
		c.Sessions.Drop(userID)
	}
	return ctx.JSON(http.StatusOK, NewStateResponse(state))
}

func (r EventRequest) event() (pipeline.Event, error) {
	switch strings.ToLower(strings.TrimSpace(r.Type)) {
	case EventChooseCategory:
		category, err := observation.ParseCategory(r.Category)
		if err != nil {
			return nil, err
		}
		return pipeline.CategoryChosen{Category: category}, nil
	case EventTapSpecies:
		if strings.TrimSpace(r.ScientificName) == "" {
			return nil, fmt.Errorf("scientific_name is required")
		}
		var category observation.Category
		if r.Category != "" {
			c, err := observation.ParseCategory(r.Category)
			if err != nil {
				return nil, err
			}
			category = c
		}
		return pipeline.SpeciesTapped{Species: observation.SpeciesRecord{
			CommonName:     strings.TrimSpace(r.CommonName),
			ScientificName: strings.TrimSpace(r.ScientificName),
			Category:       category,
		}}, nil
	case EventConfirm:
		return pipeline.ConfirmPressed{}, nil
	case EventCancel:
		return pipeline.CancelPressed{}, nil
	case EventBack:
		return pipeline.BackPressed{}, nil
	default:
		return nil, fmt.Errorf("unknown event type %q", r.Type)
	}
}
