package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"benchrun/pkg/models"
	"benchrun/pkg/runconfig"
	"benchrun/pkg/storage"
)

const maxAttemptsLimit = 10

// RunTarget is the benchmark target shared by runs and schedules.
type RunTarget struct {
	Kind   models.TargetKind `json:"kind" binding:"required"`
	Source string            `json:"source"`
	URL    string            `json:"url"`
	Args   []string          `json:"args"`
}

// CreateRunRequest is the payload for queuing a run.
type CreateRunRequest struct {
	RunTarget
	MaxAttempts int `json:"max_attempts"`
}

// RunResponse is a run request with the summaries it produced.
type RunResponse struct {
	models.RunRequest
	Summaries []models.Summary `json:"summaries"`
}

func (s *Server) validateTarget(t RunTarget) error {
	if err := s.validator.ValidateTarget(t.Kind, t.Source, t.URL); err != nil {
		return err
	}
	return s.validator.ValidateArgs(t.Args)
}

func clampAttempts(n int) int {
	switch {
	case n < 1:
		return 1
	case n > maxAttemptsLimit:
		return maxAttemptsLimit
	}
	return n
}

// createRun handles POST /api/v1/runs
func (s *Server) createRun(c *gin.Context) {
	var body CreateRunRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.validateTarget(body.RunTarget); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	req := &models.RunRequest{
		ID:          uuid.New(),
		Kind:        body.Kind,
		Source:      body.Source,
		URL:         body.URL,
		Args:        models.Args(body.Args),
		Status:      models.RunPending,
		Attempt:     1,
		MaxAttempts: clampAttempts(body.MaxAttempts),
		ScheduledAt: time.Now(),
	}
	if !s.enqueue(c, req) {
		return
	}
	c.JSON(http.StatusAccepted, req)
}

// enqueue stores req and pushes it to the queue, answering 500 on failure.
func (s *Server) enqueue(c *gin.Context, req *models.RunRequest) bool {
	ctx := c.Request.Context()
	if err := s.requests.CreateRequest(ctx, req); err != nil {
		s.log.Error("Failed to create run request", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create run request"})
		return false
	}
	if err := s.queue.Push(ctx, req); err != nil {
		s.log.Error("Failed to queue run request", zap.String("request_id", req.ID.String()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to queue run request"})
		return false
	}
	return true
}

// runSync handles POST /api/v1/runs/sync. The run happens in this process and
// the response carries the summary.
func (s *Server) runSync(c *gin.Context) {
	if s.facade == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "synchronous runs are disabled"})
		return
	}

	var body RunTarget
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.validateTarget(body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.syncTimeout)
	defer cancel()

	cfg := &runconfig.Config{ArtifactsPath: s.artifactsPath}
	var (
		summary *models.Summary
		err     error
	)
	if body.Kind == models.TargetURL {
		summary, err = s.facade.RunURL(ctx, body.URL, cfg, body.Args...)
	} else {
		summary, err = s.facade.RunSource(ctx, body.Source, cfg, body.Args...)
	}

	switch {
	case errors.Is(err, models.ErrUnsupported):
		c.JSON(http.StatusNotImplemented, gin.H{"error": err.Error()})
	case err != nil:
		s.log.Error("Synchronous run failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	case summary == nil:
		c.JSON(http.StatusOK, gin.H{"status": models.RunEmpty, "summary": nil})
	case summary.IsPlaceholder():
		c.JSON(http.StatusUnprocessableEntity, gin.H{"status": models.RunInvalid, "error": summary.Title})
	default:
		c.JSON(http.StatusOK, gin.H{"status": models.RunSucceeded, "summary": summary})
	}
}

// listRuns handles GET /api/v1/runs
func (s *Server) listRuns(c *gin.Context) {
	limit, offset := pagination(c)
	reqs, err := s.requests.ListRequests(c.Request.Context(), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list runs: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": reqs, "count": len(reqs)})
}

// getRun handles GET /api/v1/runs/:id
func (s *Server) getRun(c *gin.Context) {
	id, ok := parseID(c, "run")
	if !ok {
		return
	}
	req, err := s.requests.GetRequest(c.Request.Context(), id)
	if err != nil {
		storeError(c, err, "run")
		return
	}
	summaries, err := s.summaries.ListSummaries(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list summaries: " + err.Error()})
		return
	}
	if summaries == nil {
		summaries = []models.Summary{}
	}
	c.JSON(http.StatusOK, RunResponse{RunRequest: *req, Summaries: summaries})
}

// getSummary handles GET /api/v1/summaries/:id
func (s *Server) getSummary(c *gin.Context) {
	id, ok := parseID(c, "summary")
	if !ok {
		return
	}
	sum, err := s.summaries.GetSummary(c.Request.Context(), id)
	if err != nil {
		storeError(c, err, "summary")
		return
	}
	c.JSON(http.StatusOK, sum)
}

// getSummaryReport handles GET /api/v1/summaries/:id/report and returns the
// archived JSON report.
func (s *Server) getSummaryReport(c *gin.Context) {
	if s.reports == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "report archive is not configured"})
		return
	}
	id, ok := parseID(c, "summary")
	if !ok {
		return
	}
	sum, err := s.summaries.GetSummary(c.Request.Context(), id)
	if err != nil {
		storeError(c, err, "summary")
		return
	}
	if sum.ReportURI == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "summary has no archived report"})
		return
	}
	data, err := s.reports.Retrieve(c.Request.Context(), sum.ReportURI)
	if err != nil {
		storeError(c, err, "report")
		return
	}
	c.Data(http.StatusOK, "application/json", data)
}

func parseID(c *gin.Context, what string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + what + " ID"})
		return uuid.Nil, false
	}
	return id, true
}

func storeError(c *gin.Context, err error, what string) {
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": what + " not found"})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load " + what + ": " + err.Error()})
}

// pagination reads limit (default 50, max 200) and offset.
func pagination(c *gin.Context) (int, int) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit < 1 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		offset = 0
	}
	return limit, offset
}
