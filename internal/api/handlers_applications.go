package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/david/grantmate/internal/drafting"
	"github.com/david/grantmate/internal/models"
)

const maxRFPBytes = 10 << 20

type createApplicationRequest struct {
	drafting.WizardInput
	Deadline string `json:"deadline"` // YYYY-MM-DD
	Generate bool   `json:"generate"`
}

type applicationResponse struct {
	*models.Application
	GenerationError string `json:"generation_error,omitempty"`
}

func (s *Server) handleCreateApplication(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	var req createApplicationRequest
	if err := c.Bind(&req); err != nil {
		return jsonError(c, http.StatusBadRequest, "Invalid request body")
	}
	if err := req.Validate(); err != nil {
		return jsonError(c, http.StatusBadRequest, err.Error())
	}
	clientID, err := uuid.Parse(strings.TrimSpace(req.ClientID))
	if err != nil {
		return jsonError(c, http.StatusBadRequest, "Invalid client ID")
	}

	app := models.Application{
		ClientID:   clientID,
		UserID:     uid,
		Title:      strings.TrimSpace(req.ApplicationTitle),
		GrantTitle: strings.TrimSpace(req.GrantOpportunity),
	}
	if req.Deadline != "" {
		d, err := time.Parse("2006-01-02", req.Deadline)
		if err != nil {
			return jsonError(c, http.StatusBadRequest, "deadline must be YYYY-MM-DD")
		}
		app.Deadline = &d
	}
	if app.Wizard, err = json.Marshal(req.WizardInput); err != nil {
		return jsonError(c, http.StatusBadRequest, "Invalid wizard input")
	}

	ctx := c.Request().Context()
	client, err := s.store.GetClient(ctx, uid, clientID)
	if err != nil {
		return s.storeError(c, err, "Client")
	}
	if err := s.store.CreateApplication(ctx, &app); err != nil {
		return s.storeError(c, err, "Client")
	}

	resp := applicationResponse{Application: &app}
	if req.Generate || c.QueryParam("generate") == "true" {
		sections, genErr := s.drafter.GenerateDraft(ctx, req.WizardInput, *client, "")
		for _, gs := range sections {
			saved, err := s.store.UpsertSection(ctx, app.ID, gs.ID, gs.Content, gs.Position)
			if err != nil {
				return s.storeError(c, err, "Application")
			}
			app.Sections = append(app.Sections, *saved)
		}
		if genErr != nil {
			s.logger.Warn("draft generation stopped", zap.String("application_id", app.ID.String()), zap.Error(genErr))
			resp.GenerationError = genErr.Error()
		}
	}
	return c.JSON(http.StatusCreated, resp)
}

func (s *Server) loadApplication(c echo.Context) (uuid.UUID, *models.Application, error) {
	uid, err := userID(c)
	if err != nil {
		return uuid.Nil, nil, err
	}
	id, err := pathUUID(c, "id", "application")
	if err != nil {
		return uuid.Nil, nil, err
	}
	app, err := s.store.GetApplication(c.Request().Context(), uid, id)
	if err != nil {
		return uuid.Nil, nil, s.storeError(c, err, "Application")
	}
	return uid, app, nil
}

func (s *Server) handleGetApplication(c echo.Context) error {
	_, app, err := s.loadApplication(c)
	if err != nil || app == nil {
		return err
	}
	return c.JSON(http.StatusOK, app)
}

func (s *Server) handleListApplications(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	clientID, err := pathUUID(c, "id", "client")
	if err != nil {
		return err
	}
	apps, err := s.store.ListApplications(c.Request().Context(), uid, clientID)
	if err != nil {
		return s.storeError(c, err, "Applications")
	}
	return c.JSON(http.StatusOK, apps)
}

type statusRequest struct {
	Status models.ApplicationStatus `json:"status"`
}

func (s *Server) handleUpdateApplicationStatus(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	id, err := pathUUID(c, "id", "application")
	if err != nil {
		return err
	}
	var req statusRequest
	if err := c.Bind(&req); err != nil {
		return jsonError(c, http.StatusBadRequest, "Invalid request body")
	}
	if !req.Status.Valid() {
		return jsonError(c, http.StatusBadRequest, "Invalid application status")
	}
	if err := s.store.UpdateApplicationStatus(c.Request().Context(), uid, id, req.Status); err != nil {
		return s.storeError(c, err, "Application")
	}
	return c.JSON(http.StatusOK, map[string]string{"status": string(req.Status)})
}

func sectionParam(c echo.Context) (drafting.Section, int, error) {
	sec, pos, err := drafting.LookupSection(c.Param("section"))
	if err != nil {
		return sec, pos, echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return sec, pos, nil
}

func currentContent(app *models.Application, sectionID string) string {
	for _, sec := range app.Sections {
		if sec.SectionType == sectionID {
			return sec.Content
		}
	}
	return ""
}

type sectionRequest struct {
	Content      string `json:"content"`
	Instructions string `json:"instructions"`
}

func (s *Server) handleSaveSection(c echo.Context) error {
	_, app, err := s.loadApplication(c)
	if err != nil || app == nil {
		return err
	}
	sec, pos, err := sectionParam(c)
	if err != nil {
		return err
	}
	var req sectionRequest
	if err := c.Bind(&req); err != nil {
		return jsonError(c, http.StatusBadRequest, "Invalid request body")
	}
	saved, err := s.store.UpsertSection(c.Request().Context(), app.ID, sec.ID, req.Content, pos)
	if err != nil {
		return s.storeError(c, err, "Application")
	}
	return c.JSON(http.StatusOK, saved)
}

// generationError answers drafting failures as a bad gateway.
func (s *Server) generationError(c echo.Context, err error) error {
	if errors.Is(err, drafting.ErrUnknownSection) {
		return jsonError(c, http.StatusBadRequest, err.Error())
	}
	s.logger.Warn("section generation failed", zap.Error(err))
	return jsonError(c, http.StatusBadGateway, err.Error())
}

func (s *Server) handleGenerateSection(c echo.Context) error {
	uid, app, err := s.loadApplication(c)
	if err != nil || app == nil {
		return err
	}
	sec, pos, err := sectionParam(c)
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	var in drafting.WizardInput
	if len(app.Wizard) > 0 {
		if err := json.Unmarshal(app.Wizard, &in); err != nil {
			return jsonError(c, http.StatusUnprocessableEntity, "Stored wizard input is unreadable")
		}
	}
	client, err := s.store.GetClient(ctx, uid, app.ClientID)
	if err != nil {
		return s.storeError(c, err, "Client")
	}

	content, err := s.drafter.GenerateSection(ctx, in, *client, sec.ID, app.FunderGuidance)
	if err != nil {
		return s.generationError(c, err)
	}
	saved, err := s.store.UpsertSection(ctx, app.ID, sec.ID, content, pos)
	if err != nil {
		return s.storeError(c, err, "Application")
	}
	return c.JSON(http.StatusOK, saved)
}

func (s *Server) handleRegenerateSection(c echo.Context) error {
	_, app, err := s.loadApplication(c)
	if err != nil || app == nil {
		return err
	}
	sec, pos, err := sectionParam(c)
	if err != nil {
		return err
	}
	var req sectionRequest
	if err := c.Bind(&req); err != nil {
		return jsonError(c, http.StatusBadRequest, "Invalid request body")
	}

	current := req.Content
	if strings.TrimSpace(current) == "" {
		current = currentContent(app, sec.ID)
	}
	if strings.TrimSpace(current) == "" {
		return jsonError(c, http.StatusBadRequest, "Section has no content to regenerate")
	}

	ctx := c.Request().Context()
	content, err := s.drafter.Regenerate(ctx, sec.ID, current, req.Instructions, app.FunderGuidance)
	if err != nil {
		return s.generationError(c, err)
	}
	saved, err := s.store.UpsertSection(ctx, app.ID, sec.ID, content, pos)
	if err != nil {
		return s.storeError(c, err, "Application")
	}
	return c.JSON(http.StatusOK, saved)
}

func (s *Server) handleUploadRFP(c echo.Context) error {
	uid, app, err := s.loadApplication(c)
	if err != nil || app == nil {
		return err
	}

	fh, err := c.FormFile("file")
	if err != nil {
		return jsonError(c, http.StatusBadRequest, "A PDF file is required in the 'file' field")
	}
	if fh.Size > maxRFPBytes {
		return jsonError(c, http.StatusRequestEntityTooLarge, "RFP must be 10 MB or smaller")
	}
	f, err := fh.Open()
	if err != nil {
		return jsonError(c, http.StatusBadRequest, "Could not read upload")
	}
	defer f.Close()
	content, err := io.ReadAll(io.LimitReader(f, maxRFPBytes+1))
	if err != nil {
		return jsonError(c, http.StatusBadRequest, "Could not read upload")
	}

	text, err := drafting.ExtractPDFText(content)
	if err != nil {
		return jsonError(c, http.StatusUnprocessableEntity, "Could not read PDF: "+err.Error())
	}
	guidance, err := drafting.FunderGuidance(text)
	if err != nil {
		return jsonError(c, http.StatusUnprocessableEntity, err.Error())
	}

	if err := s.store.SetFunderGuidance(c.Request().Context(), uid, app.ID, guidance); err != nil {
		return s.storeError(c, err, "Application")
	}
	return c.JSON(http.StatusOK, map[string]any{
		"characters": len([]rune(guidance)),
		"words":      drafting.WordCount(guidance),
	})
}

func (s *Server) handleExportApplication(c echo.Context) error {
	_, app, err := s.loadApplication(c)
	if err != nil || app == nil {
		return err
	}
	body, contentType, err := drafting.Export(*app, drafting.ExportFormat(c.QueryParam("format")))
	if err != nil {
		return jsonError(c, http.StatusBadRequest, err.Error())
	}
	return c.Blob(http.StatusOK, contentType, []byte(body))
}
