package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"benchrun/pkg/api/middleware"
	"benchrun/pkg/models"
	"benchrun/pkg/scheduler"
)

// CreateScheduleRequest is the payload for creating a schedule.
type CreateScheduleRequest struct {
	RunTarget
	Name        string `json:"name" binding:"required"`
	Cron        string `json:"cron" binding:"required"`
	MaxAttempts int    `json:"max_attempts"`
	OwnerID     string `json:"owner_id"`
}

// UpdateScheduleRequest is the payload for updating a schedule.
type UpdateScheduleRequest struct {
	Name        *string                `json:"name"`
	Cron        *string                `json:"cron"`
	Args        *[]string              `json:"args"`
	MaxAttempts *int                   `json:"max_attempts"`
	Status      *models.ScheduleStatus `json:"status"`
}

func nextRun(expr string) (time.Time, error) {
	sched, err := scheduler.CronParser.Parse(expr)
	if err != nil {
		return time.Time{}, err
	}
	return sched.Next(time.Now()), nil
}

// createSchedule handles POST /api/v1/schedules
func (s *Server) createSchedule(c *gin.Context) {
	var body CreateScheduleRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.validator.ValidateName(body.Name); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.validateTarget(body.RunTarget); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	next, err := nextRun(body.Cron)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid cron schedule: " + err.Error()})
		return
	}

	owner := body.OwnerID
	if claims, ok := middleware.GetUserFromContext(c); ok {
		owner = claims.UserID
	}

	sched := &models.Schedule{
		ID:          uuid.New(),
		Name:        body.Name,
		Cron:        body.Cron,
		Kind:        body.Kind,
		Source:      body.Source,
		URL:         body.URL,
		Args:        models.Args(body.Args),
		MaxAttempts: clampAttempts(body.MaxAttempts),
		OwnerID:     owner,
		Status:      models.ScheduleActive,
		NextRunAt:   &next,
	}
	if err := s.schedules.CreateSchedule(c.Request.Context(), sched); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create schedule: " + err.Error()})
		return
	}
	c.JSON(http.StatusCreated, sched)
}

// listSchedules handles GET /api/v1/schedules
func (s *Server) listSchedules(c *gin.Context) {
	limit, offset := pagination(c)
	scheds, err := s.schedules.ListSchedules(c.Request.Context(), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list schedules: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"schedules": scheds, "count": len(scheds)})
}

func (s *Server) loadSchedule(c *gin.Context) (*models.Schedule, bool) {
	id, ok := parseID(c, "schedule")
	if !ok {
		return nil, false
	}
	sched, err := s.schedules.GetSchedule(c.Request.Context(), id)
	if err != nil {
		storeError(c, err, "schedule")
		return nil, false
	}
	return sched, true
}

// getSchedule handles GET /api/v1/schedules/:id
func (s *Server) getSchedule(c *gin.Context) {
	sched, ok := s.loadSchedule(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, sched)
}

// updateSchedule handles PATCH /api/v1/schedules/:id
func (s *Server) updateSchedule(c *gin.Context) {
	var body UpdateScheduleRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sched, ok := s.loadSchedule(c)
	if !ok {
		return
	}
	if !middleware.CanModify(c, sched.OwnerID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "you do not own this schedule"})
		return
	}

	if body.Name != nil {
		if err := s.validator.ValidateName(*body.Name); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		sched.Name = *body.Name
	}
	if body.Args != nil {
		if err := s.validator.ValidateArgs(*body.Args); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		sched.Args = models.Args(*body.Args)
	}
	if body.MaxAttempts != nil {
		sched.MaxAttempts = clampAttempts(*body.MaxAttempts)
	}
	if body.Status != nil {
		switch *body.Status {
		case models.ScheduleActive, models.SchedulePaused:
			sched.Status = *body.Status
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "status must be ACTIVE or PAUSED"})
			return
		}
	}
	if body.Cron != nil {
		next, err := nextRun(*body.Cron)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid cron schedule: " + err.Error()})
			return
		}
		sched.Cron = *body.Cron
		sched.NextRunAt = &next
	}

	if err := s.schedules.UpdateSchedule(c.Request.Context(), sched); err != nil {
		storeError(c, err, "schedule")
		return
	}
	c.JSON(http.StatusOK, sched)
}

// deleteSchedule handles DELETE /api/v1/schedules/:id
func (s *Server) deleteSchedule(c *gin.Context) {
	sched, ok := s.loadSchedule(c)
	if !ok {
		return
	}
	if !middleware.CanModify(c, sched.OwnerID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "you do not own this schedule"})
		return
	}
	if err := s.schedules.DeleteSchedule(c.Request.Context(), sched.ID); err != nil {
		storeError(c, err, "schedule")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "schedule deleted", "id": sched.ID})
}

// triggerSchedule handles POST /api/v1/schedules/:id/trigger. The schedule's
// next fire time is left alone.
func (s *Server) triggerSchedule(c *gin.Context) {
	sched, ok := s.loadSchedule(c)
	if !ok {
		return
	}

	scheduleID := sched.ID
	req := &models.RunRequest{
		ID:          uuid.New(),
		ScheduleID:  &scheduleID,
		Kind:        sched.Kind,
		Source:      sched.Source,
		URL:         sched.URL,
		Args:        sched.Args,
		Status:      models.RunPending,
		Attempt:     1,
		MaxAttempts: clampAttempts(sched.MaxAttempts),
		ScheduledAt: time.Now(),
	}
	if !s.enqueue(c, req) {
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"message": "schedule triggered", "request_id": req.ID})
}
