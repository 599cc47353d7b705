package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	FullName     string    `json:"full_name"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Client is an organization the user writes grant applications for.
type Client struct {
	ID                uuid.UUID `json:"id"`
	UserID            uuid.UUID `json:"user_id"`
	Name              string    `json:"name"`
	IndustryFocusArea string    `json:"industry_focus_area"`
	MissionStatement  string    `json:"mission_statement"`
	ContactPerson     string    `json:"contact_person"`
	ContactInfo       string    `json:"contact_info"`
	Tags              []string  `json:"tags"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// FocusAreas is the list used to suggest grants for the client: the
// industry focus area followed by its tags.
func (c Client) FocusAreas() []string {
	var out []string
	if c.IndustryFocusArea != "" {
		out = append(out, c.IndustryFocusArea)
	}
	for _, t := range c.Tags {
		if t != "" && t != c.IndustryFocusArea {
			out = append(out, t)
		}
	}
	return out
}

type ApplicationStatus string

const (
	StatusDraft      ApplicationStatus = "draft"
	StatusInProgress ApplicationStatus = "in_progress"
	StatusSubmitted  ApplicationStatus = "submitted"
	StatusApproved   ApplicationStatus = "approved"
	StatusRejected   ApplicationStatus = "rejected"
)

func (s ApplicationStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusInProgress, StatusSubmitted, StatusApproved, StatusRejected:
		return true
	}
	return false
}

type Application struct {
	ID             uuid.UUID         `json:"id"`
	ClientID       uuid.UUID         `json:"client_id"`
	UserID         uuid.UUID         `json:"user_id"`
	Title          string            `json:"title"`
	GrantTitle     string            `json:"grant_title"`
	Status         ApplicationStatus `json:"status"`
	Deadline       *time.Time        `json:"deadline"`
	Wizard         json.RawMessage   `json:"wizard,omitempty"`
	FunderGuidance string            `json:"funder_guidance,omitempty"`
	Sections       []DraftSection    `json:"sections,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

type DraftSection struct {
	ID            uuid.UUID `json:"id"`
	ApplicationID uuid.UUID `json:"application_id"`
	SectionType   string    `json:"section_type"`
	Content       string    `json:"content"`
	Position      int       `json:"position"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// SavedGrant is a search result the user attached to a client. Record holds
// the grant as it was extracted, encoded as JSON.
type SavedGrant struct {
	ID                uuid.UUID       `json:"id"`
	ClientID          uuid.UUID       `json:"client_id"`
	UserID            uuid.UUID       `json:"user_id"`
	Title             string          `json:"title"`
	OpportunityNumber string          `json:"opportunity_number"`
	DeadlineAt        *time.Time      `json:"deadline_at"`
	Record            json.RawMessage `json:"record"`
	LinkStatus        string          `json:"link_status"`
	LinkCheckedAt     *time.Time      `json:"link_checked_at"`
	Similarity        *float64        `json:"similarity,omitempty"`
	SavedAt           time.Time       `json:"saved_at"`
}

// GrantLink is the minimal view the link verifier works on.
type GrantLink struct {
	ID  uuid.UUID
	URL string
}

type SearchOutcome string

const (
	OutcomeResults       SearchOutcome = "results"
	OutcomeClarification SearchOutcome = "clarification"
	OutcomeFailed        SearchOutcome = "failed"
)

type SearchRun struct {
	ID              uuid.UUID     `json:"id"`
	UserID          *uuid.UUID    `json:"user_id"`
	SearchTerm      string        `json:"search_term"`
	Prompt          string        `json:"prompt"`
	Outcome         SearchOutcome `json:"outcome"`
	GrantsFound     int           `json:"grants_found"`
	SectionsSkipped int           `json:"sections_skipped"`
	IsRefinement    bool          `json:"is_refinement"`
	Error           string        `json:"error,omitempty"`
	StartedAt       time.Time     `json:"started_at"`
	CompletedAt     *time.Time    `json:"completed_at"`
}

type DashboardStats struct {
	TotalClients          int `json:"total_clients"`
	ActiveDrafts          int `json:"active_drafts"`
	CompletedApplications int `json:"completed_applications"`
	UpcomingDeadlines     int `json:"upcoming_deadlines"`
}
