package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"benchrun/pkg/auth"
	"benchrun/pkg/coordination"
)

// listNodes handles GET /api/v1/cluster/nodes
func (s *Server) listNodes(c *gin.Context) {
	nodes, err := s.coordinator.GetActiveNodes(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get nodes: " + err.Error()})
		return
	}
	if nodes == nil {
		nodes = []string{}
	}
	c.JSON(http.StatusOK, gin.H{
		"nodes": nodes,
		"count": len(nodes),
	})
}

// getLeader handles GET /api/v1/cluster/leader
func (s *Server) getLeader(c *gin.Context) {
	if s.election == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "leader election is not configured"})
		return
	}
	leader, err := s.election.Leader(c.Request.Context())
	if errors.Is(err, coordination.ErrNoLeader) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no scheduler holds leadership"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get leader: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"leader": leader})
}

// CreateAPIKeyRequest is the payload for issuing an API key.
type CreateAPIKeyRequest struct {
	Name      string    `json:"name" binding:"required"`
	OwnerID   string    `json:"owner_id" binding:"required"`
	Role      auth.Role `json:"role" binding:"required"`
	ExpiresAt int64     `json:"expires_at"`
}

// createAPIKey handles POST /api/v1/apikeys. The plaintext key is only
// returned here.
func (s *Server) createAPIKey(c *gin.Context) {
	if s.apiKeys == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "API keys are not configured"})
		return
	}
	var body CreateAPIKeyRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !body.Role.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown role"})
		return
	}

	key, err := s.apiKeys.CreateKey(c.Request.Context(), auth.APIKeyInfo{
		Name:      body.Name,
		OwnerID:   body.OwnerID,
		Role:      body.Role,
		ExpiresAt: body.ExpiresAt,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create key: " + err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"key": key})
}

// listAPIKeys handles GET /api/v1/apikeys?owner_id=
func (s *Server) listAPIKeys(c *gin.Context) {
	if s.apiKeys == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "API keys are not configured"})
		return
	}
	owner := c.Query("owner_id")
	if owner == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "owner_id is required"})
		return
	}
	keys, err := s.apiKeys.ListKeys(c.Request.Context(), owner)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list keys: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"keys": keys, "count": len(keys)})
}

// revokeAPIKey handles DELETE /api/v1/apikeys/:id
func (s *Server) revokeAPIKey(c *gin.Context) {
	if s.apiKeys == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "API keys are not configured"})
		return
	}
	err := s.apiKeys.RevokeKey(c.Request.Context(), c.Param("id"))
	if errors.Is(err, auth.ErrInvalidToken) {
		c.JSON(http.StatusNotFound, gin.H{"error": "key not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to revoke key: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "key revoked", "id": c.Param("id")})
}
