package server

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/roach88/teamtask/internal/analytics"
	"github.com/roach88/teamtask/internal/auth"
	"github.com/roach88/teamtask/internal/coordinator"
	"github.com/roach88/teamtask/internal/domain"
	"github.com/roach88/teamtask/internal/store"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken string      `json:"access_token"`
	User        domain.User `json:"user"`
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"cache":       s.deps.Metrics.Available(c.Request.Context()),
		"connections": s.deps.Hub.ConnectedCount(),
	})
}

// handleLogin checks credentials and issues a token. Every failure looks
// the same to the caller and is recorded as a failed login.
func (s *Server) handleLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Email == "" || req.Password == "" {
		abortJSON(c, http.StatusBadRequest, string(coordinator.ErrCodeValidation), "email and password are required")
		return
	}
	ctx := c.Request.Context()
	email := strings.ToLower(strings.TrimSpace(req.Email))

	user, err := s.deps.Users.FindUserByEmail(ctx, email)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		slog.Error("directory lookup failed", "error", err)
		abortJSON(c, http.StatusServiceUnavailable, string(coordinator.ErrCodeUnavailable), "directory unavailable")
		return
	}
	if err != nil || !user.IsActive || auth.CheckPassword(user.PasswordHash, req.Password) != nil {
		s.deps.Tasks.RecordEvent(ctx, domain.EventSecurityFailedLogin, domain.EventData{
			"email":          email,
			analytics.DataIP: c.ClientIP(),
		}, "")
		abortJSON(c, http.StatusUnauthorized, "UNAUTHORIZED", "invalid credentials")
		return
	}

	token, err := s.deps.Tokens.Issue(user)
	if err != nil {
		slog.Error("token issue failed", "user_id", user.ID, "error", err)
		abortJSON(c, http.StatusInternalServerError, "INTERNAL", "could not issue token")
		return
	}

	s.deps.Tasks.RecordEvent(ctx, domain.EventUserLogin, domain.EventData{"email": email}, user.ID)
	slog.Info("user logged in", "user_id", user.ID, "role", user.Role)

	c.JSON(http.StatusOK, loginResponse{AccessToken: token, User: user})
}

func (s *Server) handleCreateTask(c *gin.Context) {
	var draft domain.TaskDraft
	if err := c.ShouldBindJSON(&draft); err != nil {
		abortJSON(c, http.StatusBadRequest, string(coordinator.ErrCodeValidation), "invalid request body")
		return
	}
	task, err := s.deps.Tasks.Create(c.Request.Context(), actorFrom(c), draft)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, task)
}

func (s *Server) handleGetTask(c *gin.Context) {
	task, err := s.deps.Tasks.Get(c.Request.Context(), actorFrom(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

// handleUpdateTask binds a partial update. Fields absent from the body are
// left unchanged; is_personal is not updatable and is ignored.
func (s *Server) handleUpdateTask(c *gin.Context) {
	var patch domain.TaskPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		abortJSON(c, http.StatusBadRequest, string(coordinator.ErrCodeValidation), "invalid request body")
		return
	}
	task, err := s.deps.Tasks.Update(c.Request.Context(), actorFrom(c), c.Param("id"), patch)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (s *Server) handleDeleteTask(c *gin.Context) {
	if err := s.deps.Tasks.Delete(c.Request.Context(), actorFrom(c), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleListTasks(c *gin.Context) {
	q := domain.TaskQuery{
		View:       domain.TaskView(c.Query("view")),
		Status:     domain.Status(strings.ToUpper(c.Query("status"))),
		Priority:   domain.Priority(strings.ToUpper(c.Query("priority"))),
		AssignedTo: c.Query("assigned_to"),
	}
	if raw, ok := c.GetQuery("is_personal"); ok {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			abortJSON(c, http.StatusBadRequest, string(coordinator.ErrCodeValidation), "is_personal must be true or false")
			return
		}
		q.IsPersonal = &v
	}

	tasks, err := s.deps.Tasks.List(c.Request.Context(), actorFrom(c), q)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tasks": tasks, "count": len(tasks)})
}

func (s *Server) handleRealtime(c *gin.Context) {
	c.JSON(http.StatusOK, s.deps.Metrics.Snapshot(c.Request.Context()))
}

// writeError maps coordinator errors to HTTP statuses. Denial reasons are
// logged, never returned.
func writeError(c *gin.Context, err error) {
	var ce *coordinator.Error
	if !errors.As(err, &ce) {
		slog.Error("request failed", "path", c.Request.URL.Path, "error", err)
		abortJSON(c, http.StatusInternalServerError, "INTERNAL", "internal error")
		return
	}

	switch ce.Code {
	case coordinator.ErrCodeValidation:
		abortJSON(c, http.StatusBadRequest, string(ce.Code), ce.Message)
	case coordinator.ErrCodeInvalidTransition:
		abortJSON(c, http.StatusBadRequest, string(ce.Code), ce.Error())
	case coordinator.ErrCodeNotFound:
		abortJSON(c, http.StatusNotFound, string(ce.Code), ce.Entity+" not found")
	case coordinator.ErrCodeDenied:
		actor := actorFrom(c)
		slog.Warn("access denied",
			"user_id", actor.UserID(),
			"role", actor.Role(),
			"path", c.Request.URL.Path,
			"reason", ce.Message)
		abortJSON(c, http.StatusForbidden, string(ce.Code), "access denied")
	case coordinator.ErrCodeUnavailable:
		slog.Error("dependency unavailable", "path", c.Request.URL.Path, "error", err)
		abortJSON(c, http.StatusServiceUnavailable, string(ce.Code), "service temporarily unavailable")
	default:
		slog.Error("request failed", "path", c.Request.URL.Path, "error", err)
		abortJSON(c, http.StatusInternalServerError, "INTERNAL", "internal error")
	}
}
