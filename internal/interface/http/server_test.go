package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/learning-progress/internal/application/command"
	"github.com/alem-hub/learning-progress/internal/application/query"
	"github.com/alem-hub/learning-progress/internal/application/saga"
	"github.com/alem-hub/learning-progress/internal/domain/achievement"
	"github.com/alem-hub/learning-progress/internal/domain/user"
	"github.com/alem-hub/learning-progress/internal/infrastructure/persistence/memory"
	"github.com/alem-hub/learning-progress/internal/interface/http/handlers"
	"github.com/alem-hub/learning-progress/pkg/timeutil"
)

type envelope struct {
	Success   bool            `json:"success"`
	Data      json.RawMessage `json:"data"`
	Error     *APIError       `json:"error"`
	Meta      *ResponseMeta   `json:"meta"`
	RequestID string          `json:"request_id"`
}

type serverFixture struct {
	t      *testing.T
	server *Server
	arena  *memory.Arena
	clock  *timeutil.FixedClock
	userID int64
	health *handlers.CompositeHealthChecker
}

func newServerFixture(t *testing.T) *serverFixture {
	t.Helper()

	arena := memory.NewArena()
	u, err := arena.Users().Create(context.Background(), &user.User{Name: "Learner", Email: "learner@example.com"})
	require.NoError(t, err)

	clock := timeutil.NewFixedClock(time.Date(2024, time.March, 10, 9, 0, 0, 0, time.UTC))
	locker := memory.NewKeyedLocker()
	tracker := command.NewProgressTracker(command.ProgressTrackerDeps{
		Users:  arena.Users(),
		Store:  arena.Progress(),
		Locker: locker,
		Clock:  clock,
	}, command.ProgressTrackerConfig{})

	engine, err := saga.NewAchievementEngineBuilder().
		WithCatalog(achievement.DefaultCatalog()).
		WithProgress(tracker).
		WithUsers(arena.Users()).
		WithUnlockedStore(arena.Unlocked()).
		WithLocker(locker).
		WithClock(clock).
		Build()
	require.NoError(t, err)

	health := handlers.NewCompositeHealthChecker("test")

	cfg := DefaultConfig()
	cfg.Mode = gin.TestMode
	server, err := NewServer(cfg, Dependencies{
		Tracker:       tracker,
		Engine:        engine,
		CreateUser:    command.NewCreateUserHandler(arena.Users(), clock, nil, nil),
		UpdateUser:    command.NewUpdateUserHandler(arena.Users(), clock, nil, nil),
		DeleteUser:    command.NewDeleteUserHandler(command.DeleteUserDeps{Users: arena.Users(), Locker: locker, Clock: clock}),
		GetUser:       query.NewGetUserHandler(arena.Users()),
		HealthChecker: health,
	})
	require.NoError(t, err)

	return &serverFixture{t: t, server: server, arena: arena, clock: clock, userID: u.ID, health: health}
}

func (f *serverFixture) do(method, path, body string) (*httptest.ResponseRecorder, envelope) {
	f.t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)

	var env envelope
	require.NoError(f.t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec, env
}

func (f *serverFixture) path(format string) string {
	return strings.ReplaceAll(format, "{id}", formatID(f.userID))
}

func formatID(id int64) string {
	b, _ := json.Marshal(id)
	return string(b)
}

func decodeProgress(t *testing.T, env envelope) query.ProgressDTO {
	t.Helper()
	var dto query.ProgressDTO
	require.NoError(t, json.Unmarshal(env.Data, &dto))
	return dto
}

func TestNewServer_RequiresDependencies(t *testing.T) {
	_, err := NewServer(DefaultConfig(), Dependencies{})
	assert.Error(t, err)
}

func TestGetProgress_CreatesEmptyRecord(t *testing.T) {
	f := newServerFixture(t)

	rec, env := f.do(http.MethodGet, f.path("/api/progress/{id}"), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Success)
	assert.NotEmpty(t, env.RequestID)
	assert.Equal(t, env.RequestID, rec.Header().Get(headerRequestID))

	dto := decodeProgress(t, env)
	assert.Equal(t, f.userID, dto.UserID)
	assert.Zero(t, dto.LessonsCompleted)
	assert.Empty(t, dto.CompletedLessons)
	assert.Nil(t, dto.LastStudiedDate)
}

func TestGetProgress_Errors(t *testing.T) {
	f := newServerFixture(t)

	rec, env := f.do(http.MethodGet, "/api/progress/abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", env.Error.Code)

	rec, env = f.do(http.MethodGet, "/api/progress/9999", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.False(t, env.Success)
	assert.Equal(t, "not_found", env.Error.Code)
}

func TestCompleteLesson(t *testing.T) {
	f := newServerFixture(t)

	rec, env := f.do(http.MethodPost, f.path("/api/progress/complete-lesson/{id}"), `{"lessonId":"go-101"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	dto := decodeProgress(t, env)
	assert.Equal(t, 1, dto.LessonsCompleted)
	assert.Equal(t, 1, dto.StudyStreak)
	assert.Equal(t, []string{"go-101"}, dto.CompletedLessons)
	require.NotNil(t, dto.LastStudiedDate)
	assert.Equal(t, "2024-03-10", dto.LastStudiedDate.String())

	// resubmitting does not double count
	_, env = f.do(http.MethodPost, f.path("/api/progress/complete-lesson/{id}"), `{"lessonId":"go-101"}`)
	assert.Equal(t, 1, decodeProgress(t, env).LessonsCompleted)

	rec, env = f.do(http.MethodPost, f.path("/api/progress/complete-lesson/{id}"), `{"lessonId":"  "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", env.Error.Code)

	rec, env = f.do(http.MethodPost, f.path("/api/progress/complete-lesson/{id}"), `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "bad_request", env.Error.Code)
}

func TestAddStudyTime(t *testing.T) {
	f := newServerFixture(t)
	url := f.path("/api/progress/add-study-time/{id}")

	_, env := f.do(http.MethodPost, url, `125`)
	dto := decodeProgress(t, env)
	assert.Equal(t, 125, dto.TotalStudyTime)
	assert.Equal(t, "2h 5m", dto.StudyTimeFormatted)

	for _, body := range []string{`null`, ``, `0`, `-30`} {
		rec, env := f.do(http.MethodPost, url, body)
		require.Equal(t, http.StatusOK, rec.Code, body)
		assert.Equal(t, 125, decodeProgress(t, env).TotalStudyTime, body)
	}

	rec, env := f.do(http.MethodPost, url, `"ten"`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "bad_request", env.Error.Code)
}

func TestAddStudyTime_BodyLimits(t *testing.T) {
	f := newServerFixture(t)
	url := f.path("/api/progress/add-study-time/{id}")

	rec, env := f.do(http.MethodPost, url, strings.Repeat(" ", 70)+"30\n")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 30, decodeProgress(t, env).TotalStudyTime)

	rec, env = f.do(http.MethodPost, url, strings.Repeat(" ", maxMinutesBody)+"30")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "bad_request", env.Error.Code)

	rec, env = f.do(http.MethodPost, url, "2147483647")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", env.Error.Code)

	_, env = f.do(http.MethodGet, f.path("/api/progress/{id}"), "")
	assert.Equal(t, 30, decodeProgress(t, env).TotalStudyTime)
}

func TestDecodeMinutes(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    *int
		wantErr bool
	}{
		{"empty", "", nil, false},
		{"null", " null ", nil, false},
		{"integer", "45", intPtr(45), false},
		{"leading whitespace", strings.Repeat("\t", 100) + "12", intPtr(12), false},
		{"string", `"12"`, nil, true},
		{"fraction", "1.5", nil, true},
		{"oversized", strings.Repeat(" ", maxMinutesBody+1), nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeMinutes(strings.NewReader(tt.body))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func intPtr(v int) *int { return &v }

func TestUpdateStreak(t *testing.T) {
	f := newServerFixture(t)
	url := f.path("/api/progress/update-streak/{id}")

	_, env := f.do(http.MethodPost, url, "")
	assert.Equal(t, 1, decodeProgress(t, env).StudyStreak)

	f.clock.AdvanceDays(1)
	_, env = f.do(http.MethodPost, url, "")
	assert.Equal(t, 2, decodeProgress(t, env).StudyStreak)

	f.clock.AdvanceDays(3)
	_, env = f.do(http.MethodPost, url, "")
	assert.Equal(t, 1, decodeProgress(t, env).StudyStreak)
}

func TestReplaceProgress(t *testing.T) {
	f := newServerFixture(t)
	url := f.path("/api/progress/update/{id}")

	rec, env := f.do(http.MethodPost, url, `{"lessonsCompleted":7,"studyStreak":2,"totalStudyTime":61}`)
	require.Equal(t, http.StatusOK, rec.Code)
	dto := decodeProgress(t, env)
	assert.Equal(t, 7, dto.LessonsCompleted)
	assert.Equal(t, 2, dto.StudyStreak)
	assert.Equal(t, 61, dto.TotalStudyTime)

	rec, _ = f.do(http.MethodPost, url, `{"lessonsCompleted":7}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, env = f.do(http.MethodPost, url, `{"lessonsCompleted":-1,"studyStreak":0,"totalStudyTime":0}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", env.Error.Code)
}

func TestAchievements(t *testing.T) {
	f := newServerFixture(t)

	rec, env := f.do(http.MethodGet, "/api/achievements", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var catalog []query.AchievementDTO
	require.NoError(t, json.Unmarshal(env.Data, &catalog))
	require.Len(t, catalog, 3)
	assert.Equal(t, "fa-shoe-prints", catalog[0].Icon)
	assert.Equal(t, 3, env.Meta.TotalCount)

	_, env = f.do(http.MethodGet, f.path("/api/achievements/{id}"), "")
	var unlocked []query.AchievementDTO
	require.NoError(t, json.Unmarshal(env.Data, &unlocked))
	assert.Empty(t, unlocked)

	f.do(http.MethodPost, f.path("/api/progress/complete-lesson/{id}"), `{"lessonId":"go-101"}`)

	rec, env = f.do(http.MethodPost, f.path("/api/achievements/check/{id}"), "")
	require.Equal(t, http.StatusOK, rec.Code)
	var result EvaluationDTO
	require.NoError(t, json.Unmarshal(env.Data, &result))
	require.Len(t, result.NewlyUnlocked, 1)
	assert.Equal(t, achievement.FirstSteps, result.NewlyUnlocked[0].ID)

	_, env = f.do(http.MethodPost, f.path("/api/achievements/check/{id}"), "")
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.Len(t, result.Unlocked, 1)
	assert.Empty(t, result.NewlyUnlocked)

	rec, _ = f.do(http.MethodGet, "/api/achievements/9999", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec, _ = f.do(http.MethodPost, "/api/achievements/check/9999", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUsers(t *testing.T) {
	f := newServerFixture(t)

	rec, env := f.do(http.MethodPost, "/api/users", `{"name":"Ada","email":"ada@example.com"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var created user.User
	require.NoError(t, json.Unmarshal(env.Data, &created))
	assert.Positive(t, created.ID)
	assert.Equal(t, "Ada", created.Name)

	rec, env = f.do(http.MethodPost, "/api/users", `{"name":"Ada again","email":"ada@example.com"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "already_exists", env.Error.Code)

	rec, _ = f.do(http.MethodPost, "/api/users", `{"name":"","email":"nobody@example.com"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, env = f.do(http.MethodGet, "/api/users/"+formatID(created.ID), "")
	require.Equal(t, http.StatusOK, rec.Code)
	var fetched user.User
	require.NoError(t, json.Unmarshal(env.Data, &fetched))
	assert.Equal(t, "ada@example.com", fetched.Email)

	rec, _ = f.do(http.MethodGet, "/api/users/9999", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateUser(t *testing.T) {
	f := newServerFixture(t)

	rec, env := f.do(http.MethodPut, f.path("/api/users/{id}"), `{"name":"Grace","bio":"compilers"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var updated user.User
	require.NoError(t, json.Unmarshal(env.Data, &updated))
	assert.Equal(t, "Grace", updated.Name)
	assert.Equal(t, "compilers", updated.Bio)
	assert.Equal(t, "learner@example.com", updated.Email)

	rec, env = f.do(http.MethodPut, f.path("/api/users/{id}"), `{"name":"  ","bio":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", env.Error.Code)

	rec, _ = f.do(http.MethodPut, f.path("/api/users/{id}"), `[1,2]`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, env = f.do(http.MethodPut, "/api/users/9999", `{"name":"Nobody"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", env.Error.Code)
}

func TestDeleteUser(t *testing.T) {
	f := newServerFixture(t)

	rec, _ := f.do(http.MethodPost, f.path("/api/progress/complete-lesson/{id}"), `{"lessonId":"intro"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	req := httptest.NewRequest(http.MethodDelete, f.path("/api/users/{id}"), nil)
	raw := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(raw, req)
	require.Equal(t, http.StatusNoContent, raw.Code)
	assert.Empty(t, raw.Body.Bytes())

	rec, _ = f.do(http.MethodGet, f.path("/api/users/{id}"), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, env := f.do(http.MethodGet, f.path("/api/progress/{id}"), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", env.Error.Code)

	rec, _ = f.do(http.MethodDelete, f.path("/api/users/{id}"), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = f.do(http.MethodDelete, "/api/users/abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthAndReady(t *testing.T) {
	f := newServerFixture(t)

	rec, env := f.do(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Success)

	rec, _ = f.do(http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	f.health.AddCheck("postgres", func(context.Context) error { return errors.New("connection refused") })
	rec, env = f.do(http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "not_ready", env.Error.Code)
}

func TestRequestIDIsPropagated(t *testing.T) {
	f := newServerFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(headerRequestID, "req-42")
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, "req-42", rec.Header().Get(headerRequestID))
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Equal(t, "req-42", env.RequestID)
}

func TestUnknownRoute(t *testing.T) {
	f := newServerFixture(t)

	rec, env := f.do(http.MethodGet, "/api/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", env.Error.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newServerFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "learning_progress_")
}
