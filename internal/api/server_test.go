package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/david/grantmate/internal/ai"
	"github.com/david/grantmate/internal/auth"
	"github.com/david/grantmate/internal/drafting"
	"github.com/david/grantmate/internal/grants"
	"github.com/david/grantmate/internal/models"
)

type harness struct {
	srv     *Server
	store   *memStore
	finder  *fakeFinder
	drafter *fakeDrafter
	tokens  *auth.Service
	userID  uuid.UUID
	token   string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	tokens := auth.NewService(nil, []byte("test-secret"))
	h := &harness{
		store: newMemStore(),
		finder: &fakeFinder{res: &grants.SearchResult{
			Grants:  []grants.GrantRecord{{Title: "Climate Fund", MoreInfoURL: "https://example.org/cf"}},
			Skipped: 1,
		}},
		drafter: &fakeDrafter{},
		tokens:  tokens,
		userID:  uuid.New(),
	}
	var err error
	h.token, err = tokens.GenerateToken(h.userID)
	require.NoError(t, err)

	h.srv = NewServer(Deps{
		Store:       h.store,
		Auth:        &fakeAuth{Service: tokens},
		Finder:      h.finder,
		Drafter:     h.drafter,
		Links:       &fakeLinks{},
		Embedder:    fakeEmbedder{},
		AdminSecret: []byte("admin-secret"),
		CORSOrigins: []string{"http://localhost:5173"},
	})
	return h
}

func (h *harness) do(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.srv.Echo.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (h *harness) createClient(t *testing.T) models.Client {
	t.Helper()
	rec := h.do(t, http.MethodPost, "/api/v1/clients", map[string]any{
		"name":                "Eastside Learning Alliance",
		"industry_focus_area": "Education",
		"mission_statement":   "Every child reads.",
		"tags":                []string{"STEM", "Rural"},
	}, h.token)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[models.Client](t, rec)
}

func TestHealthAndMetrics(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodGet, "/health", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(t, http.MethodGet, "/metrics", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestSearch_Anonymous(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodPost, "/api/v1/grants/search", map[string]any{
		"search_term": "climate grants",
		"location":    "New York",
	}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decode[map[string]any](t, rec)
	assert.Equal(t, false, body["needs_clarification"])
	assert.Len(t, body["grants"], 1)
	assert.Equal(t, "New York", h.finder.calls[0].Location)
	assert.Zero(t, h.store.runCount())
}

func TestSearch_EmptyTerm(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodPost, "/api/v1/grants/search", map[string]any{"search_term": "   "}, h.token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode[map[string]string](t, rec)["error"], "search term")
	assert.Zero(t, h.store.runCount())
}

func TestSearch_CompletionFailureIsBadGateway(t *testing.T) {
	h := newHarness(t)
	h.finder.res = nil
	h.finder.err = &grants.CompletionFailure{Err: ai.ErrEmptyCompletion}

	rec := h.do(t, http.MethodPost, "/api/v1/grants/search", map[string]any{"search_term": "arts"}, h.token)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "failed to find grants: completion returned no content", decode[map[string]string](t, rec)["error"])

	require.Equal(t, 1, h.store.runCount())
	assert.Equal(t, models.OutcomeFailed, h.store.runs[0].Outcome)
}

func TestSearch_AuthenticatedIsRecorded(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodPost, "/api/v1/grants/search", map[string]any{"search_term": "arts", "is_refinement": true}, h.token)
	require.Equal(t, http.StatusOK, rec.Code)

	require.Equal(t, 1, h.store.runCount())
	run := h.store.runs[0]
	assert.Equal(t, h.userID, *run.UserID)
	assert.Equal(t, models.OutcomeResults, run.Outcome)
	assert.Equal(t, 1, run.GrantsFound)
	assert.Equal(t, 1, run.SectionsSkipped)
	assert.True(t, run.IsRefinement)
	assert.Equal(t, "Can you help me find grants for arts?", run.Prompt)
	require.NotNil(t, run.CompletedAt)

	rec = h.do(t, http.MethodGet, "/api/v1/searches", nil, h.token)
	assert.Len(t, decode[[]models.SearchRun](t, rec), 1)

	h.finder.res = &grants.SearchResult{Clarification: &grants.Clarification{Message: "Which state?"}}
	rec = h.do(t, http.MethodPost, "/api/v1/grants/search", map[string]any{"search_term": "arts"}, h.token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Which state?", decode[map[string]any](t, rec)["message"])
	assert.Equal(t, models.OutcomeClarification, h.store.runs[1].Outcome)
}

func TestSearch_BadTokenRejected(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodPost, "/api/v1/grants/search", map[string]any{"search_term": "arts"}, "garbage")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodGet, "/api/v1/clients", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Missing Authorization header", decode[map[string]string](t, rec)["error"])
}

func TestClientLifecycle(t *testing.T) {
	h := newHarness(t)
	client := h.createClient(t)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, h.store.embedded[client.ID])

	rec := h.do(t, http.MethodGet, "/api/v1/clients/"+client.ID.String(), nil, h.token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Eastside Learning Alliance", decode[models.Client](t, rec).Name)

	other, err := h.tokens.GenerateToken(uuid.New())
	require.NoError(t, err)
	rec = h.do(t, http.MethodGet, "/api/v1/clients/"+client.ID.String(), nil, other)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Client not found", decode[map[string]string](t, rec)["error"])

	rec = h.do(t, http.MethodGet, "/api/v1/clients/not-a-uuid", nil, h.token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodPut, "/api/v1/clients/"+client.ID.String(), map[string]any{"name": "ELA", "mission_statement": "Every child reads."}, h.token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ELA", decode[models.Client](t, rec).Name)

	rec = h.do(t, http.MethodPost, "/api/v1/clients", map[string]any{"name": " "}, h.token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodDelete, "/api/v1/clients/"+client.ID.String(), nil, h.token)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = h.do(t, http.MethodDelete, "/api/v1/clients/"+client.ID.String(), nil, h.token)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSuggestions(t *testing.T) {
	h := newHarness(t)
	client := h.createClient(t)

	rec := h.do(t, http.MethodPost, "/api/v1/clients/"+client.ID.String()+"/suggestions", nil, h.token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	q := h.finder.calls[0]
	assert.Equal(t, "Education, STEM, Rural", q.SearchTerm)
	assert.Equal(t, q.SearchTerm, q.FocusArea)
	assert.Equal(t, "Eastside Learning Alliance", q.Organization)
}

func TestSavedGrants(t *testing.T) {
	h := newHarness(t)
	client := h.createClient(t)
	base := "/api/v1/clients/" + client.ID.String() + "/saved-grants"

	rec := h.do(t, http.MethodPost, base, grants.GrantRecord{Title: "Climate Fund", ApplicationLink: "https://example.org/apply"}, h.token)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	saved := decode[models.SavedGrant](t, rec)
	assert.Equal(t, "https://example.org/apply", h.store.links[saved.ID])

	rec = h.do(t, http.MethodPost, base, grants.GrantRecord{}, h.token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodGet, base, nil, h.token)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]models.SavedGrant](t, rec)
	require.Len(t, list, 1)
	var rec0 grants.GrantRecord
	require.NoError(t, json.Unmarshal(list[0].Record, &rec0))
	assert.Equal(t, "Climate Fund", rec0.Title)

	rec = h.do(t, http.MethodDelete, base+"/"+saved.ID.String(), nil, h.token)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func createApplication(t *testing.T, h *harness, client models.Client, generate bool) applicationResponse {
	t.Helper()
	rec := h.do(t, http.MethodPost, "/api/v1/applications", map[string]any{
		"application_title": "Reading Futures",
		"client_id":         client.ID.String(),
		"grant_opportunity": "Literacy Now",
		"project_title":     "Literacy labs",
		"deadline":          "2026-12-01",
		"generate":          generate,
	}, h.token)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp struct {
		models.Application
		GenerationError string `json:"generation_error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return applicationResponse{Application: &resp.Application, GenerationError: resp.GenerationError}
}

func TestCreateApplication(t *testing.T) {
	h := newHarness(t)
	client := h.createClient(t)

	app := createApplication(t, h, client, true)
	assert.Equal(t, "Reading Futures", app.Title)
	assert.Equal(t, "Literacy Now", app.GrantTitle)
	require.NotNil(t, app.Deadline)
	assert.Len(t, app.Sections, len(drafting.Sections))
	assert.Empty(t, app.GenerationError)
	assert.Equal(t, "problem-statement for Literacy labs by Eastside Learning Alliance", app.Sections[0].Content)

	rec := h.do(t, http.MethodPost, "/api/v1/applications", map[string]any{"client_id": client.ID.String()}, h.token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode[map[string]string](t, rec)["error"], "application_title")

	rec = h.do(t, http.MethodPost, "/api/v1/applications", map[string]any{
		"application_title": "x", "project_title": "y", "client_id": uuid.NewString(),
	}, h.token)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateApplication_PartialDraft(t *testing.T) {
	h := newHarness(t)
	h.drafter.failAt = "evaluation"
	h.drafter.err = errors.New("failed to generate evaluation: rate limited")
	client := h.createClient(t)

	app := createApplication(t, h, client, true)
	assert.Len(t, app.Sections, 3)
	assert.Contains(t, app.GenerationError, "evaluation")
}

func TestSectionEndpoints(t *testing.T) {
	h := newHarness(t)
	client := h.createClient(t)
	app := createApplication(t, h, client, false)
	base := "/api/v1/applications/" + app.ID.String()

	rec := h.do(t, http.MethodPut, base+"/sections/budget-narrative", map[string]string{"content": "Personnel: $80,000."}, h.token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 4, decode[models.DraftSection](t, rec).Position)

	rec = h.do(t, http.MethodPut, base+"/sections/appendix", map[string]string{"content": "x"}, h.token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodPost, base+"/sections/methodology/generate", nil, h.token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "methodology for Literacy labs by Eastside Learning Alliance", decode[models.DraftSection](t, rec).Content)

	rec = h.do(t, http.MethodPost, base+"/sections/budget-narrative/regenerate", map[string]string{"instructions": "shorter"}, h.token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Personnel: $80,000. [budget-narrative: shorter]", decode[models.DraftSection](t, rec).Content)

	rec = h.do(t, http.MethodPost, base+"/sections/evaluation/regenerate", nil, h.token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	h.drafter.failAt, h.drafter.err = "evaluation", errors.New("upstream timeout")
	rec = h.do(t, http.MethodPost, base+"/sections/evaluation/generate", nil, h.token)
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	rec = h.do(t, http.MethodPatch, base+"/status", map[string]string{"status": "submitted"}, h.token)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = h.do(t, http.MethodPatch, base+"/status", map[string]string{"status": "archived"}, h.token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodGet, base+"/export?format=text", nil, h.token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get(echo.HeaderContentType), "text/plain"))
	assert.Contains(t, rec.Body.String(), "Budget Narrative\nPersonnel: $80,000. [budget-narrative: shorter]")

	rec = h.do(t, http.MethodGet, base+"/export?format=docx", nil, h.token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodGet, "/api/v1/clients/"+client.ID.String()+"/applications", nil, h.token)
	assert.Len(t, decode[[]models.Application](t, rec), 1)

	rec = h.do(t, http.MethodGet, "/api/v1/dashboard", nil, h.token)
	stats := decode[models.DashboardStats](t, rec)
	assert.Equal(t, 1, stats.TotalClients)
	assert.Equal(t, 1, stats.CompletedApplications)
}

func TestUploadRFP_RejectsNonPDF(t *testing.T) {
	h := newHarness(t)
	client := h.createClient(t)
	app := createApplication(t, h, client, false)

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", "rfp.pdf")
	require.NoError(t, err)
	_, _ = part.Write([]byte("not really a pdf"))
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/applications/"+app.ID.String()+"/rfp", &buf)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+h.token)
	rec := httptest.NewRecorder()
	h.srv.Echo.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = h.do(t, http.MethodPost, "/api/v1/applications/"+app.ID.String()+"/rfp", nil, h.token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestVerifyLink(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodPost, "/api/v1/grants/verify-link", map[string]string{"url": "https://example.org"}, h.token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode[map[string]any](t, rec)["ok"])

	rec = h.do(t, http.MethodPost, "/api/v1/grants/verify-link", map[string]string{}, h.token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSignupAndLoginErrors(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodPost, "/api/v1/auth/signup", auth.SignupRequest{Email: "a@b.org", Password: "longenough"}, "")
	assert.Equal(t, http.StatusCreated, rec.Code)

	h.srv.auth.(*fakeAuth).signupErr = auth.ErrUserExists
	rec = h.do(t, http.MethodPost, "/api/v1/auth/signup", auth.SignupRequest{Email: "a@b.org", Password: "longenough"}, "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	h.srv.auth.(*fakeAuth).signupErr = auth.ErrInvalidInput
	rec = h.do(t, http.MethodPost, "/api/v1/auth/signup", auth.SignupRequest{Email: "x"}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodPost, "/api/v1/auth/login", auth.LoginRequest{Email: "a@b.org", Password: "wrong"}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminRoutes(t *testing.T) {
	h := newHarness(t)
	client := h.createClient(t)
	rec := h.do(t, http.MethodPost, "/api/v1/clients/"+client.ID.String()+"/saved-grants",
		grants.GrantRecord{Title: "Climate Fund", MoreInfoURL: "https://example.org/cf"}, h.token)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = h.do(t, http.MethodGet, "/api/v1/admin/search-runs", nil, h.token)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = h.do(t, http.MethodGet, "/api/v1/admin/search-runs", nil, "admin-secret")
	assert.Equal(t, http.StatusOK, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/verify-saved-links", nil)
	req.Header.Set("X-Admin-Secret", "admin-secret")
	rec = httptest.NewRecorder()
	h.srv.Echo.ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code)
	jobID := decode[map[string]string](t, rec)["job_id"]
	require.NotEmpty(t, jobID)

	require.Eventually(t, func() bool {
		rec := h.do(t, http.MethodGet, "/api/v1/admin/job/"+jobID, nil, "admin-secret")
		return rec.Code == http.StatusOK && decode[map[string]any](t, rec)["status"] == "completed"
	}, 2*time.Second, 10*time.Millisecond)

	rec = h.do(t, http.MethodGet, "/api/v1/admin/job/nope", nil, "admin-secret")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
