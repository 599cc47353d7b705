package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/david/grantmate/internal/grants"
	"github.com/david/grantmate/internal/models"
)

type clientRequest struct {
	Name              string   `json:"name"`
	IndustryFocusArea string   `json:"industry_focus_area"`
	MissionStatement  string   `json:"mission_statement"`
	ContactPerson     string   `json:"contact_person"`
	ContactInfo       string   `json:"contact_info"`
	Tags              []string `json:"tags"`
}

func (r clientRequest) apply(c *models.Client) {
	c.Name = strings.TrimSpace(r.Name)
	c.IndustryFocusArea = strings.TrimSpace(r.IndustryFocusArea)
	c.MissionStatement = strings.TrimSpace(r.MissionStatement)
	c.ContactPerson = strings.TrimSpace(r.ContactPerson)
	c.ContactInfo = strings.TrimSpace(r.ContactInfo)
	c.Tags = r.Tags
}

func (s *Server) handleListClients(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	clients, err := s.store.ListClients(c.Request().Context(), uid)
	if err != nil {
		return s.storeError(c, err, "Clients")
	}
	return c.JSON(http.StatusOK, clients)
}

func (s *Server) handleCreateClient(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	var req clientRequest
	if err := c.Bind(&req); err != nil {
		return jsonError(c, http.StatusBadRequest, "Invalid request body")
	}

	client := models.Client{UserID: uid}
	req.apply(&client)
	if client.Name == "" {
		return jsonError(c, http.StatusBadRequest, "name is required")
	}

	ctx := c.Request().Context()
	if err := s.store.CreateClient(ctx, &client, s.embed(ctx, client.MissionStatement)); err != nil {
		return s.storeError(c, err, "Client")
	}
	return c.JSON(http.StatusCreated, client)
}

func (s *Server) handleGetClient(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	id, err := pathUUID(c, "id", "client")
	if err != nil {
		return err
	}
	client, err := s.store.GetClient(c.Request().Context(), uid, id)
	if err != nil {
		return s.storeError(c, err, "Client")
	}
	return c.JSON(http.StatusOK, client)
}

func (s *Server) handleUpdateClient(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	id, err := pathUUID(c, "id", "client")
	if err != nil {
		return err
	}
	var req clientRequest
	if err := c.Bind(&req); err != nil {
		return jsonError(c, http.StatusBadRequest, "Invalid request body")
	}

	ctx := c.Request().Context()
	client, err := s.store.GetClient(ctx, uid, id)
	if err != nil {
		return s.storeError(c, err, "Client")
	}
	previousMission := client.MissionStatement
	req.apply(client)
	if client.Name == "" {
		return jsonError(c, http.StatusBadRequest, "name is required")
	}

	// nil keeps the stored embedding
	var emb []float32
	if client.MissionStatement != previousMission {
		emb = s.embed(ctx, client.MissionStatement)
	}
	if err := s.store.UpdateClient(ctx, client, emb); err != nil {
		return s.storeError(c, err, "Client")
	}
	return c.JSON(http.StatusOK, client)
}

func (s *Server) handleDeleteClient(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	id, err := pathUUID(c, "id", "client")
	if err != nil {
		return err
	}
	if err := s.store.DeleteClient(c.Request().Context(), uid, id); err != nil {
		return s.storeError(c, err, "Client")
	}
	return c.NoContent(http.StatusNoContent)
}

// handleSuggestions searches for grants that fit a client's profile.
func (s *Server) handleSuggestions(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	id, err := pathUUID(c, "id", "client")
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	client, err := s.store.GetClient(ctx, uid, id)
	if err != nil {
		return s.storeError(c, err, "Client")
	}

	q := grants.BuildSuggestionQuery(client.Name, client.MissionStatement, client.FocusAreas())
	res, status, err := s.search(ctx, &uid, q, false)
	if err != nil {
		if status == http.StatusBadRequest {
			return jsonError(c, status, "Client has no focus areas to search for")
		}
		return jsonError(c, status, err.Error())
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) handleListSavedGrants(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	clientID, err := pathUUID(c, "id", "client")
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	emb, err := s.store.GetClientEmbedding(ctx, uid, clientID)
	if err != nil {
		return s.storeError(c, err, "Client")
	}
	saved, err := s.store.ListSavedGrants(ctx, uid, clientID, emb)
	if err != nil {
		return s.storeError(c, err, "Saved grants")
	}
	return c.JSON(http.StatusOK, saved)
}

func grantLink(g grants.GrantRecord) string {
	if g.MoreInfoURL != "" {
		return g.MoreInfoURL
	}
	return g.ApplicationLink
}

func (s *Server) handleSaveGrant(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	clientID, err := pathUUID(c, "id", "client")
	if err != nil {
		return err
	}

	var rec grants.GrantRecord
	if err := c.Bind(&rec); err != nil {
		return jsonError(c, http.StatusBadRequest, "Invalid request body")
	}
	if strings.TrimSpace(rec.Title) == "" {
		return jsonError(c, http.StatusBadRequest, "title is required")
	}

	raw, err := json.Marshal(rec)
	if err != nil {
		return jsonError(c, http.StatusBadRequest, "Invalid grant record")
	}

	ctx := c.Request().Context()
	saved := models.SavedGrant{
		ClientID:          clientID,
		UserID:            uid,
		Title:             rec.Title,
		OpportunityNumber: rec.OpportunityNumber,
		DeadlineAt:        rec.DeadlineAt,
		Record:            raw,
	}
	emb := s.embed(ctx, rec.Title+"\n"+rec.Description)
	if err := s.store.SaveGrant(ctx, &saved, grantLink(rec), emb); err != nil {
		return s.storeError(c, err, "Client")
	}
	return c.JSON(http.StatusCreated, saved)
}

func (s *Server) handleDeleteSavedGrant(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	clientID, err := pathUUID(c, "id", "client")
	if err != nil {
		return err
	}
	grantID, err := pathUUID(c, "grantID", "saved grant")
	if err != nil {
		return err
	}
	if err := s.store.DeleteSavedGrant(c.Request().Context(), uid, clientID, grantID); err != nil {
		return s.storeError(c, err, "Saved grant")
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleDashboard(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	stats, err := s.store.GetDashboardStats(c.Request().Context(), uid)
	if err != nil {
		return s.storeError(c, err, "Dashboard")
	}
	return c.JSON(http.StatusOK, stats)
}
