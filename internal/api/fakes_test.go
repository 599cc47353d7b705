package api

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/david/grantmate/internal/auth"
	"github.com/david/grantmate/internal/db"
	"github.com/david/grantmate/internal/drafting"
	"github.com/david/grantmate/internal/grants"
	"github.com/david/grantmate/internal/linkcheck"
	"github.com/david/grantmate/internal/models"
)

type memStore struct {
	mu       sync.Mutex
	clients  map[uuid.UUID]*models.Client
	apps     map[uuid.UUID]*models.Application
	sections map[uuid.UUID][]models.DraftSection
	saved    map[uuid.UUID]*models.SavedGrant
	links    map[uuid.UUID]string
	runs     []models.SearchRun
	embedded map[uuid.UUID][]float32
}

func newMemStore() *memStore {
	return &memStore{
		clients:  map[uuid.UUID]*models.Client{},
		apps:     map[uuid.UUID]*models.Application{},
		sections: map[uuid.UUID][]models.DraftSection{},
		saved:    map[uuid.UUID]*models.SavedGrant{},
		links:    map[uuid.UUID]string{},
		embedded: map[uuid.UUID][]float32{},
	}
}

func (m *memStore) CreateClient(_ context.Context, c *models.Client, emb []float32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c.ID = uuid.New()
	c.CreatedAt, c.UpdatedAt = time.Now(), time.Now()
	cp := *c
	m.clients[c.ID] = &cp
	if emb != nil {
		m.embedded[c.ID] = emb
	}
	return nil
}

func (m *memStore) UpdateClient(_ context.Context, c *models.Client, emb []float32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	old, ok := m.clients[c.ID]
	if !ok || old.UserID != c.UserID {
		return db.ErrNotFound
	}
	cp := *c
	m.clients[c.ID] = &cp
	if emb != nil {
		m.embedded[c.ID] = emb
	}
	return nil
}

func (m *memStore) GetClient(_ context.Context, userID, id uuid.UUID) (*models.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.clients[id]
	if !ok || c.UserID != userID {
		return nil, db.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *memStore) GetClientEmbedding(ctx context.Context, userID, id uuid.UUID) ([]float32, error) {
	if _, err := m.GetClient(ctx, userID, id); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.embedded[id], nil
}

func (m *memStore) ListClients(_ context.Context, userID uuid.UUID) ([]models.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Client{}
	for _, c := range m.clients {
		if c.UserID == userID {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (m *memStore) DeleteClient(_ context.Context, userID, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.clients[id]
	if !ok || c.UserID != userID {
		return db.ErrNotFound
	}
	delete(m.clients, id)
	return nil
}

func (m *memStore) CreateApplication(_ context.Context, a *models.Application) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.clients[a.ClientID]
	if !ok || c.UserID != a.UserID {
		return db.ErrNotFound
	}
	a.ID = uuid.New()
	if a.Status == "" {
		a.Status = models.StatusDraft
	}
	cp := *a
	m.apps[a.ID] = &cp
	return nil
}

func (m *memStore) GetApplication(_ context.Context, userID, id uuid.UUID) (*models.Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.apps[id]
	if !ok || a.UserID != userID {
		return nil, db.ErrNotFound
	}
	cp := *a
	cp.Sections = append([]models.DraftSection(nil), m.sections[id]...)
	sort.Slice(cp.Sections, func(i, j int) bool { return cp.Sections[i].Position < cp.Sections[j].Position })
	return &cp, nil
}

func (m *memStore) ListApplications(_ context.Context, userID, clientID uuid.UUID) ([]models.Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Application{}
	for _, a := range m.apps {
		if a.UserID == userID && a.ClientID == clientID {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (m *memStore) UpdateApplicationStatus(_ context.Context, userID, id uuid.UUID, status models.ApplicationStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.apps[id]
	if !ok || a.UserID != userID {
		return db.ErrNotFound
	}
	a.Status = status
	return nil
}

func (m *memStore) SetFunderGuidance(_ context.Context, userID, id uuid.UUID, guidance string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.apps[id]
	if !ok || a.UserID != userID {
		return db.ErrNotFound
	}
	a.FunderGuidance = guidance
	return nil
}

func (m *memStore) UpsertSection(_ context.Context, appID uuid.UUID, sectionType, content string, position int) (*models.DraftSection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	secs := m.sections[appID]
	for i := range secs {
		if secs[i].SectionType == sectionType {
			secs[i].Content = content
			d := secs[i]
			return &d, nil
		}
	}
	d := models.DraftSection{ID: uuid.New(), ApplicationID: appID, SectionType: sectionType, Content: content, Position: position}
	m.sections[appID] = append(secs, d)
	if a := m.apps[appID]; a != nil && a.Status == models.StatusDraft {
		a.Status = models.StatusInProgress
	}
	return &d, nil
}

func (m *memStore) SaveGrant(_ context.Context, g *models.SavedGrant, linkURL string, _ []float32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.clients[g.ClientID]
	if !ok || c.UserID != g.UserID {
		return db.ErrNotFound
	}
	g.ID = uuid.New()
	g.LinkStatus = "unchecked"
	cp := *g
	m.saved[g.ID] = &cp
	m.links[g.ID] = linkURL
	return nil
}

func (m *memStore) ListSavedGrants(_ context.Context, userID, clientID uuid.UUID, _ []float32) ([]models.SavedGrant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.SavedGrant{}
	for _, g := range m.saved {
		if g.UserID == userID && g.ClientID == clientID {
			out = append(out, *g)
		}
	}
	return out, nil
}

func (m *memStore) DeleteSavedGrant(_ context.Context, userID, clientID, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.saved[id]
	if !ok || g.UserID != userID || g.ClientID != clientID {
		return db.ErrNotFound
	}
	delete(m.saved, id)
	return nil
}

func (m *memStore) ListGrantLinks(context.Context, int) ([]models.GrantLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.GrantLink
	for id, u := range m.links {
		if u != "" {
			out = append(out, models.GrantLink{ID: id, URL: u})
		}
	}
	return out, nil
}

func (m *memStore) UpdateLinkStatus(_ context.Context, id uuid.UUID, status string, checkedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if g := m.saved[id]; g != nil {
		g.LinkStatus = status
		g.LinkCheckedAt = &checkedAt
	}
	return nil
}

func (m *memStore) RecordSearchRun(_ context.Context, r *models.SearchRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r.ID = uuid.New()
	m.runs = append(m.runs, *r)
	return nil
}

func (m *memStore) ListSearchRuns(_ context.Context, userID *uuid.UUID, _ int) ([]models.SearchRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.SearchRun{}
	for _, r := range m.runs {
		if userID == nil || (r.UserID != nil && *r.UserID == *userID) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memStore) GetDashboardStats(_ context.Context, userID uuid.UUID) (*models.DashboardStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var st models.DashboardStats
	for _, c := range m.clients {
		if c.UserID == userID {
			st.TotalClients++
		}
	}
	for _, a := range m.apps {
		if a.UserID != userID {
			continue
		}
		switch a.Status {
		case models.StatusDraft, models.StatusInProgress:
			st.ActiveDrafts++
		case models.StatusSubmitted, models.StatusApproved:
			st.CompletedApplications++
		}
	}
	return &st, nil
}

func (m *memStore) runCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.runs)
}

// fakeAuth keeps the real token middleware and replaces the account store.
type fakeAuth struct {
	*auth.Service
	signupErr error
}

func (f *fakeAuth) Signup(_ context.Context, req auth.SignupRequest) (*auth.AuthResponse, error) {
	if f.signupErr != nil {
		return nil, f.signupErr
	}
	return &auth.AuthResponse{Token: "token", User: models.User{ID: uuid.New(), Email: req.Email}}, nil
}

func (f *fakeAuth) Login(context.Context, auth.LoginRequest) (*auth.AuthResponse, error) {
	return nil, auth.ErrInvalidCreds
}

type fakeFinder struct {
	mu    sync.Mutex
	res   *grants.SearchResult
	err   error
	calls []grants.SearchQuery
}

func (f *fakeFinder) Search(_ context.Context, q grants.SearchQuery) (*grants.SearchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, q)
	if err := q.Validate(); err != nil {
		return nil, err
	}
	return f.res, f.err
}

type fakeDrafter struct {
	failAt string
	err    error
}

func (f *fakeDrafter) GenerateSection(_ context.Context, in drafting.WizardInput, client models.Client, sectionID, guidance string) (string, error) {
	if sectionID == f.failAt {
		return "", f.err
	}
	text := sectionID + " for " + in.ProjectTitle + " by " + client.Name
	if guidance != "" {
		text += " (guided)"
	}
	return text, nil
}

func (f *fakeDrafter) GenerateDraft(ctx context.Context, in drafting.WizardInput, client models.Client, guidance string) ([]drafting.GeneratedSection, error) {
	var out []drafting.GeneratedSection
	for i, s := range drafting.Sections {
		content, err := f.GenerateSection(ctx, in, client, s.ID, guidance)
		if err != nil {
			return out, err
		}
		out = append(out, drafting.GeneratedSection{Section: s, Position: i, Content: content})
	}
	return out, nil
}

func (f *fakeDrafter) Regenerate(_ context.Context, sectionID, current, instructions, _ string) (string, error) {
	return current + " [" + sectionID + ": " + instructions + "]", nil
}

type fakeLinks struct {
	summary linkcheck.Summary
}

func (f *fakeLinks) Check(_ context.Context, url string) linkcheck.Result {
	return linkcheck.Result{URL: url, StatusCode: 200, OK: true, PageTitle: "Grant page"}
}

func (f *fakeLinks) VerifySaved(ctx context.Context, store linkcheck.LinkStore, _ int) (linkcheck.Summary, error) {
	links, err := store.ListGrantLinks(ctx, 0)
	if err != nil {
		return f.summary, err
	}
	for _, l := range links {
		_ = store.UpdateLinkStatus(ctx, l.ID, linkcheck.StatusOK, time.Now())
	}
	f.summary.Checked = len(links)
	f.summary.Updated = len(links)
	return f.summary, nil
}

type fakeEmbedder struct{}

func (fakeEmbedder) GenerateEmbedding(context.Context, string) ([]float32, error) {
	return []float32{0.1, 0.2, 0.3}, nil
}
