package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/alem-hub/learning-progress/internal/application/command"
	"github.com/alem-hub/learning-progress/internal/application/query"
	"github.com/alem-hub/learning-progress/internal/application/saga"
	"github.com/alem-hub/learning-progress/internal/domain/progress"
	"github.com/alem-hub/learning-progress/internal/domain/shared"
	"github.com/alem-hub/learning-progress/internal/domain/user"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH & STATUS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleHealth handles the liveness endpoint.
func (s *Server) handleHealth(c *gin.Context) {
	writeJSON(c, http.StatusOK, gin.H{
		"status": "healthy",
		"uptime": s.Uptime().Round(time.Second).String(),
	})
}

// handleReady runs the registered dependency checks.
func (s *Server) handleReady(c *gin.Context) {
	status := s.deps.HealthChecker.Check(c.Request.Context())
	if !status.Ready {
		c.JSON(http.StatusServiceUnavailable, JSONResponse{
			Success:   false,
			Data:      status,
			Error:     &APIError{Code: "not_ready", Message: status.Message},
			RequestID: requestID(c),
		})
		return
	}
	writeJSON(c, http.StatusOK, status)
}

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleGetProgress handles GET /api/progress/:userId
func (s *Server) handleGetProgress(c *gin.Context) {
	userID, ok := s.userIDParam(c)
	if !ok {
		return
	}

	dto, err := s.deps.GetProgress.Handle(c.Request.Context(), query.GetProgressQuery{UserID: userID})
	if err != nil {
		s.respondError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, dto)
}

// replaceProgressRequest is the body of the bulk update endpoint.
type replaceProgressRequest struct {
	LessonsCompleted *int `json:"lessonsCompleted" binding:"required"`
	StudyStreak      *int `json:"studyStreak" binding:"required"`
	TotalStudyTime   *int `json:"totalStudyTime" binding:"required"`
}

// handleReplaceProgress handles POST /api/progress/update/:userId
func (s *Server) handleReplaceProgress(c *gin.Context) {
	userID, ok := s.userIDParam(c)
	if !ok {
		return
	}

	var req replaceProgressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "lessonsCompleted, studyStreak and totalStudyTime are required", err)
		return
	}

	rec, err := s.deps.Tracker.ReplaceProgress(c.Request.Context(), command.ReplaceProgressCommand{
		UserID: userID,
		Values: progress.Snapshot{
			LessonsCompleted: *req.LessonsCompleted,
			StudyStreak:      *req.StudyStreak,
			TotalStudyTime:   *req.TotalStudyTime,
		},
		CorrelationID: requestID(c),
	})
	s.respondProgress(c, rec, err)
}

type completeLessonRequest struct {
	LessonID string `json:"lessonId"`
}

// handleCompleteLesson handles POST /api/progress/complete-lesson/:userId
func (s *Server) handleCompleteLesson(c *gin.Context) {
	userID, ok := s.userIDParam(c)
	if !ok {
		return
	}

	var req completeLessonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "request body must be a JSON object with lessonId", err)
		return
	}

	rec, err := s.deps.Tracker.CompleteLesson(c.Request.Context(), command.CompleteLessonCommand{
		UserID:        userID,
		LessonID:      req.LessonID,
		CorrelationID: requestID(c),
	})
	s.respondProgress(c, rec, err)
}

// handleAddStudyTime handles POST /api/progress/add-study-time/:userId
// The body is a bare JSON integer; null or an empty body add nothing.
func (s *Server) handleAddStudyTime(c *gin.Context) {
	userID, ok := s.userIDParam(c)
	if !ok {
		return
	}

	minutes, err := decodeMinutes(c.Request.Body)
	if err != nil {
		respondBadRequest(c, "request body must be an integer number of minutes or null", err)
		return
	}

	rec, err := s.deps.Tracker.AddStudyTime(c.Request.Context(), command.AddStudyTimeCommand{
		UserID:        userID,
		Minutes:       minutes,
		CorrelationID: requestID(c),
	})
	s.respondProgress(c, rec, err)
}

// handleUpdateStreak handles POST /api/progress/update-streak/:userId
func (s *Server) handleUpdateStreak(c *gin.Context) {
	userID, ok := s.userIDParam(c)
	if !ok {
		return
	}

	rec, err := s.deps.Tracker.UpdateStreak(c.Request.Context(), command.UpdateStreakCommand{
		UserID:        userID,
		CorrelationID: requestID(c),
	})
	s.respondProgress(c, rec, err)
}

func (s *Server) respondProgress(c *gin.Context, rec *progress.Record, err error) {
	if err != nil {
		s.respondError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, query.NewProgressDTO(rec))
}

// ══════════════════════════════════════════════════════════════════════════════
// ACHIEVEMENT HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleListCatalog handles GET /api/achievements
func (s *Server) handleListCatalog(c *gin.Context) {
	items := s.deps.ListCatalog.Handle(c.Request.Context())
	writeJSONWithMeta(c, http.StatusOK, items, &ResponseMeta{TotalCount: len(items)})
}

// handleGetUnlocked handles GET /api/achievements/:userId
func (s *Server) handleGetUnlocked(c *gin.Context) {
	userID, ok := s.userIDParam(c)
	if !ok {
		return
	}

	items, err := s.deps.GetUnlocked.Handle(c.Request.Context(), query.GetUnlockedAchievementsQuery{UserID: userID})
	if err != nil {
		s.respondError(c, err)
		return
	}
	writeJSONWithMeta(c, http.StatusOK, items, &ResponseMeta{TotalCount: len(items)})
}

// EvaluationDTO is the response of the achievement check.
type EvaluationDTO struct {
	UserID        int64                  `json:"userId"`
	Unlocked      []query.AchievementDTO `json:"unlocked"`
	NewlyUnlocked []query.AchievementDTO `json:"newlyUnlocked"`
	EvaluatedAt   time.Time              `json:"evaluatedAt"`
}

// handleCheckAchievements handles POST /api/achievements/check/:userId
func (s *Server) handleCheckAchievements(c *gin.Context) {
	userID, ok := s.userIDParam(c)
	if !ok {
		return
	}

	res, err := s.deps.Engine.Evaluate(c.Request.Context(), saga.EvaluateInput{
		UserID:        userID,
		CorrelationID: requestID(c),
	})
	if err != nil {
		s.respondError(c, err)
		return
	}

	writeJSON(c, http.StatusOK, EvaluationDTO{
		UserID:        res.UserID,
		Unlocked:      query.NewAchievementDTOs(res.Unlocked),
		NewlyUnlocked: query.NewAchievementDTOs(res.NewlyUnlocked),
		EvaluatedAt:   res.EvaluatedAt,
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// USER HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

type createUserRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Bio   string `json:"bio"`
}

// handleCreateUser handles POST /api/users
func (s *Server) handleCreateUser(c *gin.Context) {
	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "request body must be a JSON object with name and email", err)
		return
	}

	u, err := s.deps.CreateUser.Handle(c.Request.Context(), command.CreateUserCommand{
		Name:          req.Name,
		Email:         req.Email,
		Bio:           req.Bio,
		CorrelationID: requestID(c),
	})
	s.respondUser(c, http.StatusCreated, u, err)
}

// handleGetUser handles GET /api/users/:userId
func (s *Server) handleGetUser(c *gin.Context) {
	userID, ok := s.userIDParam(c)
	if !ok {
		return
	}

	u, err := s.deps.GetUser.Handle(c.Request.Context(), query.GetUserQuery{UserID: userID})
	s.respondUser(c, http.StatusOK, u, err)
}

type updateUserRequest struct {
	Name string `json:"name"`
	Bio  string `json:"bio"`
}

// handleUpdateUser handles PUT /api/users/:userId
func (s *Server) handleUpdateUser(c *gin.Context) {
	userID, ok := s.userIDParam(c)
	if !ok {
		return
	}

	var req updateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "request body must be a JSON object with name and bio", err)
		return
	}

	u, err := s.deps.UpdateUser.Handle(c.Request.Context(), command.UpdateUserCommand{
		UserID:        userID,
		Name:          req.Name,
		Bio:           req.Bio,
		CorrelationID: requestID(c),
	})
	s.respondUser(c, http.StatusOK, u, err)
}

// handleDeleteUser handles DELETE /api/users/:userId
func (s *Server) handleDeleteUser(c *gin.Context) {
	userID, ok := s.userIDParam(c)
	if !ok {
		return
	}

	err := s.deps.DeleteUser.Handle(c.Request.Context(), command.DeleteUserCommand{
		UserID:        userID,
		CorrelationID: requestID(c),
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) respondUser(c *gin.Context, status int, u *user.User, err error) {
	if err != nil {
		s.respondError(c, err)
		return
	}
	writeJSON(c, status, u)
}

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// userIDParam parses the :userId path parameter. On failure it writes the
// error response and returns false.
func (s *Server) userIDParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("userId"), 10, 64)
	if err != nil || id <= 0 {
		s.respondError(c, shared.ErrInvalidUserID)
		return 0, false
	}
	return id, true
}

// maxMinutesBody bounds the add-study-time body.
const maxMinutesBody = 1 << 10

var errBodyTooLarge = errors.New("request body too large")

// decodeMinutes reads a bare JSON integer. Empty bodies and null decode to nil.
// Bodies longer than maxMinutesBody are rejected rather than truncated.
func decodeMinutes(body io.Reader) (*int, error) {
	raw, err := io.ReadAll(io.LimitReader(body, maxMinutesBody+1))
	if err != nil {
		return nil, err
	}
	if len(raw) > maxMinutesBody {
		return nil, errBodyTooLarge
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, nil
	}

	var minutes *int
	if err := json.Unmarshal(raw, &minutes); err != nil {
		return nil, err
	}
	return minutes, nil
}
