package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/david/grantmate/internal/models"
)

// ErrNotFound is returned when a row does not exist or belongs to another user.
var ErrNotFound = errors.New("not found")

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func vectorArg(v []float32) any {
	if len(v) == 0 {
		return nil
	}
	return pgvector.NewVector(v)
}

func sanitizeStringSlice(values []string) []string {
	clean := make([]string, 0, len(values))
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			clean = append(clean, trimmed)
		}
	}
	return clean
}

func clampLimit(limit, def, max int) int {
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}

// Clients

const clientCols = `id, user_id, name, industry_focus_area, mission_statement,
	contact_person, contact_info, tags, created_at, updated_at`

func scanClient(scan func(dest ...any) error) (models.Client, error) {
	var c models.Client
	err := scan(&c.ID, &c.UserID, &c.Name, &c.IndustryFocusArea, &c.MissionStatement,
		&c.ContactPerson, &c.ContactInfo, &c.Tags, &c.CreatedAt, &c.UpdatedAt)
	if c.Tags == nil {
		c.Tags = []string{}
	}
	return c, err
}

// CreateClient inserts c and fills its ID and timestamps. missionEmbedding
// may be nil.
func (s *Store) CreateClient(ctx context.Context, c *models.Client, missionEmbedding []float32) error {
	c.Tags = sanitizeStringSlice(c.Tags)
	err := s.pool.QueryRow(ctx, `
		INSERT INTO clients (user_id, name, industry_focus_area, mission_statement,
			contact_person, contact_info, tags, mission_embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at
	`, c.UserID, c.Name, c.IndustryFocusArea, c.MissionStatement,
		c.ContactPerson, c.ContactInfo, c.Tags, vectorArg(missionEmbedding),
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert client failed: %w", err)
	}
	return nil
}

// UpdateClient overwrites the editable fields of c. A nil missionEmbedding
// keeps the stored one.
func (s *Store) UpdateClient(ctx context.Context, c *models.Client, missionEmbedding []float32) error {
	c.Tags = sanitizeStringSlice(c.Tags)
	err := s.pool.QueryRow(ctx, `
		UPDATE clients
		SET name = $3, industry_focus_area = $4, mission_statement = $5,
			contact_person = $6, contact_info = $7, tags = $8,
			mission_embedding = COALESCE($9::vector, mission_embedding),
			updated_at = NOW()
		WHERE id = $1 AND user_id = $2
		RETURNING created_at, updated_at
	`, c.ID, c.UserID, c.Name, c.IndustryFocusArea, c.MissionStatement,
		c.ContactPerson, c.ContactInfo, c.Tags, vectorArg(missionEmbedding),
	).Scan(&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return notFound(err)
	}
	return nil
}

func (s *Store) GetClient(ctx context.Context, userID, id uuid.UUID) (*models.Client, error) {
	row := s.pool.QueryRow(ctx, "SELECT "+clientCols+" FROM clients WHERE id = $1 AND user_id = $2", id, userID)
	c, err := scanClient(row.Scan)
	if err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

// GetClientEmbedding returns nil when the client has no stored embedding.
func (s *Store) GetClientEmbedding(ctx context.Context, userID, id uuid.UUID) ([]float32, error) {
	var v *pgvector.Vector
	err := s.pool.QueryRow(ctx, "SELECT mission_embedding FROM clients WHERE id = $1 AND user_id = $2", id, userID).Scan(&v)
	if err != nil {
		return nil, notFound(err)
	}
	if v == nil {
		return nil, nil
	}
	return v.Slice(), nil
}

func (s *Store) ListClients(ctx context.Context, userID uuid.UUID) ([]models.Client, error) {
	rows, err := s.pool.Query(ctx, "SELECT "+clientCols+" FROM clients WHERE user_id = $1 ORDER BY created_at DESC", userID)
	if err != nil {
		return nil, fmt.Errorf("query clients failed: %w", err)
	}
	defer rows.Close()

	clients := []models.Client{}
	for rows.Next() {
		c, err := scanClient(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		clients = append(clients, c)
	}
	return clients, rows.Err()
}

func (s *Store) DeleteClient(ctx context.Context, userID, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, "DELETE FROM clients WHERE id = $1 AND user_id = $2", id, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Applications

const applicationCols = `id, client_id, user_id, title, grant_title, status::text,
	deadline, wizard, funder_guidance, created_at, updated_at`

func scanApplication(scan func(dest ...any) error) (models.Application, error) {
	var a models.Application
	var status string
	var wizard []byte
	err := scan(&a.ID, &a.ClientID, &a.UserID, &a.Title, &a.GrantTitle, &status,
		&a.Deadline, &wizard, &a.FunderGuidance, &a.CreatedAt, &a.UpdatedAt)
	a.Status = models.ApplicationStatus(status)
	if len(wizard) > 0 {
		a.Wizard = wizard
	}
	return a, err
}

// CreateApplication inserts a and fills its ID and timestamps. The client
// must belong to a.UserID.
func (s *Store) CreateApplication(ctx context.Context, a *models.Application) error {
	if a.Status == "" {
		a.Status = models.StatusDraft
	}
	wizard := []byte(a.Wizard)
	if len(wizard) == 0 {
		wizard = []byte("{}")
	}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO applications (client_id, user_id, title, grant_title, status, deadline, wizard)
		SELECT c.id, c.user_id, $3, $4, $5::application_status, $6::date, $7::jsonb
		FROM clients c
		WHERE c.id = $1 AND c.user_id = $2
		RETURNING id, created_at, updated_at
	`, a.ClientID, a.UserID, a.Title, a.GrantTitle, string(a.Status), a.Deadline, wizard,
	).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return notFound(err)
	}
	return nil
}

// GetApplication returns the application with its sections in order.
func (s *Store) GetApplication(ctx context.Context, userID, id uuid.UUID) (*models.Application, error) {
	row := s.pool.QueryRow(ctx, "SELECT "+applicationCols+" FROM applications WHERE id = $1 AND user_id = $2", id, userID)
	a, err := scanApplication(row.Scan)
	if err != nil {
		return nil, notFound(err)
	}
	a.Sections, err = s.ListSections(ctx, a.ID)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *Store) ListApplications(ctx context.Context, userID, clientID uuid.UUID) ([]models.Application, error) {
	rows, err := s.pool.Query(ctx, "SELECT "+applicationCols+" FROM applications WHERE client_id = $1 AND user_id = $2 ORDER BY created_at DESC", clientID, userID)
	if err != nil {
		return nil, fmt.Errorf("query applications failed: %w", err)
	}
	defer rows.Close()

	apps := []models.Application{}
	for rows.Next() {
		a, err := scanApplication(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		apps = append(apps, a)
	}
	return apps, rows.Err()
}

func (s *Store) UpdateApplicationStatus(ctx context.Context, userID, id uuid.UUID, status models.ApplicationStatus) error {
	if !status.Valid() {
		return fmt.Errorf("invalid application status %q", status)
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE applications SET status = $3::application_status, updated_at = NOW()
		WHERE id = $1 AND user_id = $2
	`, id, userID, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) SetFunderGuidance(ctx context.Context, userID, id uuid.UUID, guidance string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE applications SET funder_guidance = $3, updated_at = NOW()
		WHERE id = $1 AND user_id = $2
	`, id, userID, guidance)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Draft sections

// UpsertSection stores the content of one section. Callers check that the
// application belongs to the user first.
func (s *Store) UpsertSection(ctx context.Context, applicationID uuid.UUID, sectionType, content string, position int) (*models.DraftSection, error) {
	d := models.DraftSection{ApplicationID: applicationID, SectionType: sectionType, Content: content, Position: position}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO draft_sections (application_id, section_type, content, position)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (application_id, section_type)
		DO UPDATE SET content = EXCLUDED.content, position = EXCLUDED.position, updated_at = NOW()
		RETURNING id, created_at, updated_at
	`, applicationID, sectionType, content, position).Scan(&d.ID, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("upsert section failed: %w", err)
	}
	if _, err := s.pool.Exec(ctx, `
		UPDATE applications SET updated_at = NOW(),
			status = CASE WHEN status = 'draft' THEN 'in_progress'::application_status ELSE status END
		WHERE id = $1
	`, applicationID); err != nil {
		return nil, fmt.Errorf("touch application failed: %w", err)
	}
	return &d, nil
}

func (s *Store) ListSections(ctx context.Context, applicationID uuid.UUID) ([]models.DraftSection, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, application_id, section_type, content, position, created_at, updated_at
		FROM draft_sections WHERE application_id = $1
		ORDER BY position, section_type
	`, applicationID)
	if err != nil {
		return nil, fmt.Errorf("query sections failed: %w", err)
	}
	defer rows.Close()

	sections := []models.DraftSection{}
	for rows.Next() {
		var d models.DraftSection
		if err := rows.Scan(&d.ID, &d.ApplicationID, &d.SectionType, &d.Content, &d.Position, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		sections = append(sections, d)
	}
	return sections, rows.Err()
}

// Saved grants

// SaveGrant attaches a grant record to a client. linkURL is the address the
// link verifier will check; embedding may be nil.
func (s *Store) SaveGrant(ctx context.Context, g *models.SavedGrant, linkURL string, embedding []float32) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO saved_grants (client_id, user_id, record, title, opportunity_number, link_url, deadline_at, embedding)
		SELECT c.id, c.user_id, $3::jsonb, $4, $5, $6, $7::timestamptz, $8::vector
		FROM clients c
		WHERE c.id = $1 AND c.user_id = $2
		RETURNING id, link_status, saved_at
	`, g.ClientID, g.UserID, []byte(g.Record), g.Title, g.OpportunityNumber, linkURL, g.DeadlineAt, vectorArg(embedding),
	).Scan(&g.ID, &g.LinkStatus, &g.SavedAt)
	if err != nil {
		return notFound(err)
	}
	return nil
}

// savedGrantsQuery orders by cosine similarity to the mission embedding when
// one is given. Grants without a comparable embedding sort last.
func savedGrantsQuery(withEmbedding bool) string {
	q := `SELECT id, client_id, user_id, title, opportunity_number, deadline_at, record,
		link_status, link_checked_at, saved_at`
	if withEmbedding {
		q += `,
		CASE WHEN embedding IS NOT NULL AND vector_dims(embedding) = vector_dims($3::vector)
			THEN 1 - (embedding <=> $3::vector) END AS similarity`
	} else {
		q += `, NULL::float8 AS similarity`
	}
	q += `
		FROM saved_grants
		WHERE client_id = $1 AND user_id = $2`
	if withEmbedding {
		q += `
		ORDER BY similarity DESC NULLS LAST, saved_at DESC`
	} else {
		q += `
		ORDER BY saved_at DESC`
	}
	return q
}

func (s *Store) ListSavedGrants(ctx context.Context, userID, clientID uuid.UUID, missionEmbedding []float32) ([]models.SavedGrant, error) {
	args := []any{clientID, userID}
	withEmbedding := len(missionEmbedding) > 0
	if withEmbedding {
		args = append(args, pgvector.NewVector(missionEmbedding))
	}

	rows, err := s.pool.Query(ctx, savedGrantsQuery(withEmbedding), args...)
	if err != nil {
		return nil, fmt.Errorf("query saved grants failed: %w", err)
	}
	defer rows.Close()

	grants := []models.SavedGrant{}
	for rows.Next() {
		var g models.SavedGrant
		var record []byte
		if err := rows.Scan(&g.ID, &g.ClientID, &g.UserID, &g.Title, &g.OpportunityNumber, &g.DeadlineAt,
			&record, &g.LinkStatus, &g.LinkCheckedAt, &g.SavedAt, &g.Similarity); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		g.Record = record
		grants = append(grants, g)
	}
	return grants, rows.Err()
}

func (s *Store) DeleteSavedGrant(ctx context.Context, userID, clientID, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, "DELETE FROM saved_grants WHERE id = $1 AND client_id = $2 AND user_id = $3", id, clientID, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListGrantLinks returns saved grants that have a link, least recently
// checked first.
func (s *Store) ListGrantLinks(ctx context.Context, limit int) ([]models.GrantLink, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, link_url FROM saved_grants
		WHERE link_url <> ''
		ORDER BY link_checked_at ASC NULLS FIRST
		LIMIT $1
	`, clampLimit(limit, 500, 5000))
	if err != nil {
		return nil, fmt.Errorf("query grant links failed: %w", err)
	}
	defer rows.Close()

	var links []models.GrantLink
	for rows.Next() {
		var l models.GrantLink
		if err := rows.Scan(&l.ID, &l.URL); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		links = append(links, l)
	}
	return links, rows.Err()
}

func (s *Store) UpdateLinkStatus(ctx context.Context, id uuid.UUID, status string, checkedAt time.Time) error {
	_, err := s.pool.Exec(ctx, "UPDATE saved_grants SET link_status = $2, link_checked_at = $3 WHERE id = $1", id, status, checkedAt)
	return err
}

// Search history

func (s *Store) RecordSearchRun(ctx context.Context, r *models.SearchRun) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO search_runs (user_id, search_term, prompt, outcome, grants_found,
			sections_skipped, is_refinement, error, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`, r.UserID, r.SearchTerm, r.Prompt, string(r.Outcome), r.GrantsFound,
		r.SectionsSkipped, r.IsRefinement, r.Error, r.StartedAt, r.CompletedAt,
	).Scan(&r.ID)
	if err != nil {
		return fmt.Errorf("insert search run failed: %w", err)
	}
	return nil
}

// ListSearchRuns returns the most recent runs, for one user or, with a nil
// userID, for everyone.
func (s *Store) ListSearchRuns(ctx context.Context, userID *uuid.UUID, limit int) ([]models.SearchRun, error) {
	q := `SELECT id, user_id, search_term, prompt, outcome, grants_found, sections_skipped,
		is_refinement, error, started_at, completed_at FROM search_runs`
	args := []any{clampLimit(limit, 20, 200)}
	if userID != nil {
		q += " WHERE user_id = $2"
		args = append(args, *userID)
	}
	q += " ORDER BY started_at DESC LIMIT $1"

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query search runs failed: %w", err)
	}
	defer rows.Close()

	runs := []models.SearchRun{}
	for rows.Next() {
		var r models.SearchRun
		var outcome string
		if err := rows.Scan(&r.ID, &r.UserID, &r.SearchTerm, &r.Prompt, &outcome, &r.GrantsFound,
			&r.SectionsSkipped, &r.IsRefinement, &r.Error, &r.StartedAt, &r.CompletedAt); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		r.Outcome = models.SearchOutcome(outcome)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Dashboard

const upcomingDeadlineDays = 30

func (s *Store) GetDashboardStats(ctx context.Context, userID uuid.UUID) (*models.DashboardStats, error) {
	var st models.DashboardStats
	err := s.pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM clients WHERE user_id = $1),
			COUNT(*) FILTER (WHERE status IN ('draft', 'in_progress')),
			COUNT(*) FILTER (WHERE status IN ('submitted', 'approved')),
			COUNT(*) FILTER (WHERE status IN ('draft', 'in_progress')
				AND deadline >= CURRENT_DATE AND deadline <= CURRENT_DATE + $2::int)
		FROM applications
		WHERE user_id = $1
	`, userID, upcomingDeadlineDays).Scan(&st.TotalClients, &st.ActiveDrafts, &st.CompletedApplications, &st.UpcomingDeadlines)
	if err != nil {
		return nil, fmt.Errorf("dashboard stats failed: %w", err)
	}
	return &st, nil
}
