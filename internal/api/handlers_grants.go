package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/david/grantmate/internal/auth"
	"github.com/david/grantmate/internal/grants"
	"github.com/david/grantmate/internal/models"
)

type searchRequest struct {
	grants.SearchQuery
	IsRefinement bool `json:"is_refinement"`
}

func (s *Server) handleSearch(c echo.Context) error {
	var req searchRequest
	if err := c.Bind(&req); err != nil {
		return jsonError(c, http.StatusBadRequest, "Invalid request body")
	}

	var uid *uuid.UUID
	if id, err := auth.GetUserIDFromContext(c); err == nil {
		uid = &id
	}

	res, status, err := s.search(c.Request().Context(), uid, req.SearchQuery, req.IsRefinement)
	if err != nil {
		return jsonError(c, status, err.Error())
	}
	return c.JSON(http.StatusOK, res)
}

// search runs one query and records it for signed-in users. On failure it
// returns the HTTP status to answer with.
func (s *Server) search(ctx context.Context, uid *uuid.UUID, q grants.SearchQuery, refinement bool) (*grants.SearchResult, int, error) {
	run := models.SearchRun{
		UserID:       uid,
		SearchTerm:   q.SearchTerm,
		IsRefinement: refinement,
		StartedAt:    time.Now().UTC(),
	}

	res, err := s.finder.Search(ctx, q)
	if errors.Is(err, grants.ErrEmptySearchTerm) {
		return nil, http.StatusBadRequest, err
	}

	run.Prompt = grants.BuildPrompt(q)
	var failure *grants.CompletionFailure
	switch {
	case errors.As(err, &failure):
		run.Outcome = models.OutcomeFailed
		run.Error = failure.Error()
	case err != nil:
		run.Outcome = models.OutcomeFailed
		run.Error = err.Error()
	case res.NeedsClarification():
		run.Outcome = models.OutcomeClarification
	default:
		run.Outcome = models.OutcomeResults
		run.GrantsFound = len(res.Grants)
		run.SectionsSkipped = res.Skipped
	}
	s.recordRun(ctx, &run)

	if failure != nil {
		s.logger.Warn("grant search failed", zap.String("search_term", q.SearchTerm), zap.Error(err))
		return nil, http.StatusBadGateway, failure
	}
	if err != nil {
		s.logger.Error("grant search error", zap.Error(err))
		return nil, http.StatusInternalServerError, errors.New("Internal server error")
	}
	return res, http.StatusOK, nil
}

func (s *Server) recordRun(ctx context.Context, run *models.SearchRun) {
	if run.UserID == nil {
		return
	}
	now := time.Now().UTC()
	run.CompletedAt = &now
	if err := s.store.RecordSearchRun(ctx, run); err != nil {
		s.logger.Warn("failed to record search run", zap.Error(err))
	}
}

type verifyLinkRequest struct {
	URL string `json:"url"`
}

func (s *Server) handleVerifyLink(c echo.Context) error {
	var req verifyLinkRequest
	if err := c.Bind(&req); err != nil || req.URL == "" {
		return jsonError(c, http.StatusBadRequest, "url is required")
	}
	return c.JSON(http.StatusOK, s.links.Check(c.Request().Context(), req.URL))
}

func queryLimit(c echo.Context) int {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	return limit
}

func (s *Server) handleListSearches(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	runs, err := s.store.ListSearchRuns(c.Request().Context(), &uid, queryLimit(c))
	if err != nil {
		return s.storeError(c, err, "Search history")
	}
	return c.JSON(http.StatusOK, runs)
}

func (s *Server) handleAdminSearchRuns(c echo.Context) error {
	runs, err := s.store.ListSearchRuns(c.Request().Context(), nil, queryLimit(c))
	if err != nil {
		return s.storeError(c, err, "Search history")
	}
	return c.JSON(http.StatusOK, runs)
}

func (s *Server) handleVerifySavedLinks(c echo.Context) error {
	s.jobMu.Lock()
	if s.runningJob != nil && s.runningJob.Status == "running" {
		job := s.runningJob
		s.jobMu.Unlock()
		return c.JSON(http.StatusConflict, map[string]string{
			"error":  "A link verification job is already running",
			"job_id": job.ID,
		})
	}

	limit := queryLimit(c)
	jobCtx, jobCancel := context.WithTimeout(context.Background(), s.jobTimeout)
	jobID := uuid.New().String()[:8]
	job := &backgroundJob{
		ID:        jobID,
		Kind:      "verify-saved-links",
		Status:    "running",
		StartedAt: time.Now(),
		Cancel:    jobCancel,
	}
	s.runningJob = job
	s.jobMu.Unlock()

	go func() {
		defer jobCancel()
		sum, err := s.links.VerifySaved(jobCtx, s.store, limit)

		s.jobMu.Lock()
		defer s.jobMu.Unlock()
		job.EndedAt = time.Now()
		job.Result = sum
		if err != nil {
			job.Status = "failed"
			job.Error = err.Error()
			s.logger.Warn("link verification job failed", zap.String("job_id", jobID), zap.Error(err))
			return
		}
		job.Status = "completed"
		s.logger.Info("link verification job completed",
			zap.String("job_id", jobID),
			zap.Int("checked", sum.Checked),
			zap.Int("updated", sum.Updated),
		)
	}()

	return c.JSON(http.StatusAccepted, map[string]string{
		"message": "Link verification job started",
		"job_id":  jobID,
		"poll":    fmt.Sprintf("/api/v1/admin/job/%s", jobID),
	})
}

func (s *Server) handleJobStatus(c echo.Context) error {
	queried := c.Param("id")
	s.jobMu.Lock()
	defer s.jobMu.Unlock()

	job := s.runningJob
	if job == nil || job.ID != queried {
		return jsonError(c, http.StatusNotFound, "job not found")
	}

	resp := map[string]any{
		"id":         job.ID,
		"kind":       job.Kind,
		"status":     job.Status,
		"started_at": job.StartedAt,
	}
	if !job.EndedAt.IsZero() {
		resp["ended_at"] = job.EndedAt
		resp["duration"] = job.EndedAt.Sub(job.StartedAt).String()
	}
	if job.Result != nil {
		resp["result"] = job.Result
	}
	if job.Error != "" {
		resp["error"] = job.Error
	}
	return c.JSON(http.StatusOK, resp)
}
