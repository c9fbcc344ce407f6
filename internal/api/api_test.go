package api

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tphakala/fieldlog/internal/catalog"
	"github.com/tphakala/fieldlog/internal/committer"
	"github.com/tphakala/fieldlog/internal/conf"
	"github.com/tphakala/fieldlog/internal/datastore"
	"github.com/tphakala/fieldlog/internal/drafts"
	"github.com/tphakala/fieldlog/internal/logger"
	"github.com/tphakala/fieldlog/internal/observability"
	"github.com/tphakala/fieldlog/internal/observation"
	"github.com/tphakala/fieldlog/internal/photostore"
	"github.com/tphakala/fieldlog/internal/pipeline"
)

var quiet = logger.NewSlogLogger(io.Discard, logger.LogLevelError, time.UTC)

var (
	redFox    = observation.SpeciesRecord{CommonName: "Red Fox", ScientificName: "Vulpes vulpes", Category: observation.CategoryFauna}
	badger    = observation.SpeciesRecord{CommonName: "American Badger", ScientificName: "Taxidea taxus", Category: observation.CategoryFauna}
	dandelion = observation.SpeciesRecord{CommonName: "Common Dandelion", ScientificName: "Taraxacum officinale", Category: observation.CategoryFlora}
)

type testServer struct {
	echo   *echo.Echo
	store  *datastore.SQLiteStore
	photos *photostore.Memory
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	store := datastore.NewSQLiteStore(filepath.Join(t.TempDir(), "fieldlog.db"), quiet)
	require.NoError(t, store.Open())
	t.Cleanup(func() { _ = store.Close() })
	_, err := store.SeedCatalog(t.Context(), []observation.SpeciesRecord{redFox, badger, dandelion})
	require.NoError(t, err)

	settings := &conf.Settings{}
	settings.Metrics.Enabled = true

	m, err := observability.NewMetrics()
	require.NoError(t, err)

	locks := drafts.NewKeyLock()
	draftStore := drafts.New(store, drafts.WithKeyLock(locks), drafts.WithLogger(quiet))
	lookup := catalog.New(store, catalog.WithLogger(quiet), catalog.WithRecorder(m.Pipeline))
	confirmer := committer.New(store, lookup,
		committer.WithKeyLock(locks),
		committer.WithLogger(quiet),
		committer.WithRecorder(m.Pipeline))
	sessions := pipeline.NewManager(lookup, confirmer, draftStore, pipeline.WithLogger(quiet))
	t.Cleanup(sessions.Close)

	photos := photostore.NewMemory()
	e := echo.New()
	New(e, settings, Deps{
		DS:        store,
		Drafts:    draftStore,
		Catalog:   lookup,
		Committer: confirmer,
		Sessions:  sessions,
		Photos:    photos,
	}, WithLogger(quiet), WithMetrics(m))

	return &testServer{echo: e, store: store, photos: photos}
}

func (s *testServer) do(t *testing.T, method, target, userID string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	if contentType != "" {
		req.Header.Set(echo.HeaderContentType, contentType)
	}
	if userID != "" {
		req.Header.Set(DefaultIdentityHeader, userID)
	}
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) doJSON(t *testing.T, method, target, userID string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(data)
	}
	return s.do(t, method, target, userID, body, echo.MIMEApplicationJSON)
}

// capture posts a multipart capture; fields may include latitude,
// longitude, location_denied, source, notes and title.
func (s *testServer) capture(t *testing.T, userID, filename, image string, fields map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if filename != "" {
		part, err := w.CreateFormFile("image", filename)
		require.NoError(t, err)
		_, err = part.Write([]byte(image))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return s.do(t, http.MethodPost, "/api/v1/captures", userID, buf, w.FormDataContentType())
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

var madison = map[string]string{"latitude": "43.0731", "longitude": "-89.4012", "notes": "crossing the trail at dusk"}

func TestHealthNeedsNoIdentity(t *testing.T) {
	t.Parallel()
	t.Attr("component", "api")

	s := newTestServer(t)
	rec := s.do(t, http.MethodGet, "/api/v1/health", "", nil, "")

	require.Equal(t, http.StatusOK, rec.Code)
	health := decode[HealthResponse](t, rec)
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, conf.CommitModeTransaction, health.CommitMode)
	assert.Equal(t, "memory", health.Photos)
}

func TestRequestsWithoutIdentityAreRejected(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)
	rec := s.do(t, http.MethodGet, "/api/v1/draft", "", nil, "")

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	resp := decode[ErrorResponse](t, rec)
	assert.Equal(t, KindUnauthorized, resp.Kind)
	assert.Len(t, resp.CorrelationID, 8)
}

func TestCaptureConfirmFlow(t *testing.T) {
	t.Parallel()
	t.Attr("component", "api")

	s := newTestServer(t)

	rec := s.capture(t, "u-1", "fox.jpg", "\xff\xd8\xff fox", madison)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	captured := decode[CaptureResponse](t, rec)
	assert.False(t, captured.LocationUnavailable)
	require.True(t, captured.Draft.HasLocation())
	assert.Equal(t, 1, s.photos.Len())

	rec = s.do(t, http.MethodGet, "/api/v1/draft", "u-1", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, captured.Draft.ImageRef, decode[observation.Draft](t, rec).ImageRef)

	rec = s.do(t, http.MethodGet, "/api/v1/catalog/fauna?q=FOX", "u-1", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []observation.SpeciesRecord{redFox}, decode[CatalogResponse](t, rec).Species)

	rec = s.doJSON(t, http.MethodPost, "/api/v1/confirm", "u-1", ConfirmRequest{
		Category:       "Fauna",
		CommonName:     "Red Fox",
		ScientificName: "Vulpes vulpes",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	entry := decode[observation.LogEntry](t, rec)
	assert.Equal(t, "Red Fox", entry.CommonName)
	assert.Equal(t, observation.StatusMapVisible, entry.Status)
	assert.Equal(t, "crossing the trail at dusk", entry.FieldNotes)

	rec = s.do(t, http.MethodGet, "/api/v1/draft", "u-1", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/logs/Fauna", "u-1", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	logs := decode[[]observation.LogEntry](t, rec)
	require.Len(t, logs, 1)
	assert.Equal(t, entry.ID, logs[0].ID)

	rec = s.do(t, http.MethodGet, "/api/v1/logs/Flora", "u-1", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())

	rec = s.do(t, http.MethodGet, "/api/v1/sightings/active", "u-2", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	sightings := decode[[]observation.ActiveSighting](t, rec)
	require.Len(t, sightings, 1)
	assert.Equal(t, entry.ID, sightings[0].EntryID)

	photoPath := "/api/v1/" + entry.PhotoRef
	rec = s.do(t, http.MethodGet, photoPath, "u-2", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "\xff\xd8\xff fox", rec.Body.String())
	assert.Equal(t, "image/jpeg", rec.Header().Get(echo.HeaderContentType))

	rec = s.do(t, http.MethodGet, "/metrics", "", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "fieldlog_operations_total")
}

func TestConfirmErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		capture  map[string]string // nil skips the capture
		request  ConfirmRequest
		wantCode int
		wantKind string
	}{
		{
			name:     "no draft",
			request:  ConfirmRequest{Category: "Fauna", CommonName: "Red Fox", ScientificName: "Vulpes vulpes"},
			wantCode: http.StatusConflict,
			wantKind: KindNoActiveDraft,
		},
		{
			name:     "draft without location",
			capture:  map[string]string{"location_denied": "true"},
			request:  ConfirmRequest{Category: "Fauna", CommonName: "Red Fox", ScientificName: "Vulpes vulpes"},
			wantCode: http.StatusConflict,
			wantKind: KindNoActiveDraft,
		},
		{
			name:     "species not in catalog",
			capture:  madison,
			request:  ConfirmRequest{Category: "Fauna", CommonName: "Snow Leopard", ScientificName: "Panthera uncia"},
			wantCode: http.StatusBadRequest,
			wantKind: KindValidation,
		},
		{
			name:     "species from another category",
			capture:  madison,
			request:  ConfirmRequest{Category: "Flora", CommonName: "Red Fox", ScientificName: "Vulpes vulpes"},
			wantCode: http.StatusBadRequest,
			wantKind: KindValidation,
		},
		{
			name:     "unknown category",
			capture:  madison,
			request:  ConfirmRequest{Category: "Fungi", CommonName: "Fly Agaric", ScientificName: "Amanita muscaria"},
			wantCode: http.StatusBadRequest,
			wantKind: KindValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := newTestServer(t)

			if tt.capture != nil {
				rec := s.capture(t, "u-1", "fox.jpg", "fox", tt.capture)
				require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
			}

			rec := s.doJSON(t, http.MethodPost, "/api/v1/confirm", "u-1", tt.request)
			require.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			assert.Equal(t, tt.wantKind, decode[ErrorResponse](t, rec).Kind)

			if tt.capture != nil {
				rec = s.do(t, http.MethodGet, "/api/v1/draft", "u-1", nil, "")
				assert.Equal(t, http.StatusOK, rec.Code, "draft must survive a failed confirmation")
			}
		})
	}
}

func TestCaptureWithoutLocationIsStagedWithWarning(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)
	rec := s.capture(t, "u-1", "dandelion.png", "png", map[string]string{"source": "gallery"})

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	resp := decode[CaptureResponse](t, rec)
	assert.True(t, resp.LocationUnavailable)
	assert.NotEmpty(t, resp.Warning)
	assert.False(t, resp.Draft.HasLocation())
	assert.Equal(t, observation.SourceGallery, resp.Draft.Source)
}

func TestCaptureRejectsBadInput(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		filename string
		fields   map[string]string
	}{
		{"no image", "", madison},
		{"not an image", "notes.txt", madison},
		{"bad latitude", "fox.jpg", map[string]string{"latitude": "north"}},
		{"unknown source", "fox.jpg", map[string]string{"source": "scanner"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := newTestServer(t)

			rec := s.capture(t, "u-1", tt.filename, "data", tt.fields)
			require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			assert.Zero(t, s.photos.Len())
		})
	}
}

func TestRecaptureReplacesDraft(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)
	first := decode[CaptureResponse](t, s.capture(t, "u-1", "a.jpg", "first", madison))
	second := decode[CaptureResponse](t, s.capture(t, "u-1", "b.jpg", "second", map[string]string{"notes": "second look"}))

	rec := s.do(t, http.MethodGet, "/api/v1/draft", "u-1", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	draft := decode[observation.Draft](t, rec)
	assert.NotEqual(t, first.Draft.ImageRef, draft.ImageRef)
	assert.Equal(t, second.Draft.ImageRef, draft.ImageRef)
	assert.Equal(t, "second look", draft.ObservationText)
	assert.False(t, draft.HasLocation())
}

func TestDeleteDraft(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)
	require.Equal(t, http.StatusCreated, s.capture(t, "u-1", "fox.jpg", "fox", madison).Code)

	rec := s.do(t, http.MethodDelete, "/api/v1/draft", "u-1", nil, "")
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(t, http.MethodDelete, "/api/v1/draft", "u-1", nil, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/pipeline", "u-1", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "capturing", decode[StateResponse](t, rec).State)
}

func TestCatalogEndpointErrors(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)
	rec := s.do(t, http.MethodGet, "/api/v1/catalog/fungi", "u-1", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/catalog/flora", "u-1", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []observation.SpeciesRecord{dandelion}, decode[CatalogResponse](t, rec).Species)
}

func TestPipelineEvents(t *testing.T) {
	t.Parallel()
	t.Attr("component", "api")

	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/v1/pipeline", "u-1", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "capturing", decode[StateResponse](t, rec).State)

	rec = s.doJSON(t, http.MethodPost, "/api/v1/pipeline/events", "u-1", EventRequest{Type: EventConfirm})
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, KindInvalidTransition, decode[ErrorResponse](t, rec).Kind)

	require.Equal(t, http.StatusCreated, s.capture(t, "u-1", "fox.jpg", "fox", madison).Code)

	rec = s.doJSON(t, http.MethodPost, "/api/v1/pipeline/events", "u-1", EventRequest{Type: EventChooseCategory, Category: "fauna"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "category_selected", decode[StateResponse](t, rec).State)

	assert.Eventually(t, func() bool {
		rec := s.do(t, http.MethodGet, "/api/v1/pipeline", "u-1", nil, "")
		st := decode[StateResponse](t, rec)
		return !st.Loading && len(st.Catalog) == 2
	}, 5*time.Second, 10*time.Millisecond)

	rec = s.doJSON(t, http.MethodPost, "/api/v1/pipeline/events", "u-1", EventRequest{Type: EventTapSpecies, ScientificName: "taxidea taxus"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	picked := decode[StateResponse](t, rec)
	assert.Equal(t, "species_picked", picked.State)
	require.NotNil(t, picked.Species)
	assert.Equal(t, badger, *picked.Species)

	rec = s.doJSON(t, http.MethodPost, "/api/v1/pipeline/events", "u-1", EventRequest{Type: EventConfirm})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	confirmed := decode[StateResponse](t, rec)
	assert.Equal(t, "confirmed", confirmed.State)
	require.NotNil(t, confirmed.Entry)
	assert.Equal(t, "American Badger", confirmed.Entry.CommonName)

	rec = s.do(t, http.MethodGet, "/api/v1/pipeline", "u-1", nil, "")
	assert.Equal(t, "capturing", decode[StateResponse](t, rec).State)
}

func TestPipelineEventValidation(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)
	for _, ev := range []EventRequest{
		{Type: "dance"},
		{Type: EventChooseCategory, Category: "fungi"},
		{Type: EventTapSpecies},
	} {
		rec := s.doJSON(t, http.MethodPost, "/api/v1/pipeline/events", "u-1", ev)
		assert.Equal(t, http.StatusBadRequest, rec.Code, ev.Type)
	}
}

func TestPhotoNotFound(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)
	rec := s.do(t, http.MethodGet, "/api/v1/photos/u-1/missing.jpg", "u-1", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDraftPhotoIsPrivate(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)
	rec := s.capture(t, "u-1", "fox.jpg", "\xff\xd8\xff fox", madison)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	photoPath := "/api/v1/" + decode[CaptureResponse](t, rec).Draft.ImageRef

	rec = s.do(t, http.MethodGet, photoPath, "u-2", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodGet, photoPath, "u-1", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "\xff\xd8\xff fox", rec.Body.String())
}

func TestStatusFor(t *testing.T) {
	t.Parallel()

	wrap := func(outer, inner error) error {
		return &wrapped{outer: outer, inner: inner}
	}

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"partial commit", observation.ErrPartialCommit, http.StatusInternalServerError},
		{"write failed", observation.ErrWriteFailed, http.StatusInternalServerError},
		{"write timed out", wrap(observation.ErrWriteFailed, observation.ErrTimedOut), http.StatusGatewayTimeout},
		{"partial commit after timeout", wrap(observation.ErrPartialCommit, observation.ErrTimedOut), http.StatusInternalServerError},
		{"no draft", observation.ErrNoActiveDraft, http.StatusConflict},
		{"invalid transition", observation.ErrInvalidTransition, http.StatusConflict},
		{"species not found", observation.ErrSpeciesNotFound, http.StatusBadRequest},
		{"catalog fetch", observation.ErrCatalogFetchFailed, http.StatusBadGateway},
		{"capture", observation.ErrCaptureUnavailable, http.StatusServiceUnavailable},
		{"photo missing", photostore.ErrNotFound, http.StatusNotFound},
		{"unknown", assert.AnError, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}

	assert.Equal(t, KindPartialCommit, NewErrorResponse(observation.ErrPartialCommit, "x", 500).Kind)
	assert.Equal(t, KindWriteFailed, NewErrorResponse(observation.ErrWriteFailed, "x", 500).Kind)
}

type wrapped struct{ outer, inner error }

func (w *wrapped) Error() string   { return w.outer.Error() + ": " + w.inner.Error() }
func (w *wrapped) Unwrap() []error { return []error{w.outer, w.inner} }

func TestIdentityHeaderIsConfigurable(t *testing.T) {
	t.Parallel()

	settings := &conf.Settings{}
	settings.WebServer.IdentityHeader = "X-Field-User"
	e := echo.New()
	c := New(e, settings, Deps{}, WithLogger(quiet))

	var seen string
	c.Group.GET("/whoami", func(ctx echo.Context) error {
		seen = currentUser(ctx)
		return ctx.NoContent(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/whoami", strings.NewReader(""))
	req.Header.Set("X-Field-User", "ranger-7")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ranger-7", seen)
}
