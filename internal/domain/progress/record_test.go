package progress

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/learning-progress/internal/domain/shared"
	"github.com/alem-hub/learning-progress/pkg/timeutil"
)

func TestNewRecord(t *testing.T) {
	rec, err := NewRecord(42)
	require.NoError(t, err)
	assert.Equal(t, int64(42), rec.UserID)
	assert.Zero(t, rec.LessonsCompleted)
	assert.Zero(t, rec.StudyStreak)
	assert.Zero(t, rec.TotalStudyTime)
	assert.Nil(t, rec.LastStudiedDate)
	assert.Empty(t, rec.CompletedLessons)

	_, err = NewRecord(0)
	assert.ErrorIs(t, err, shared.ErrInvalidUserID)
}

func TestRecord_CompleteLessonKeepsCountInSync(t *testing.T) {
	rec, _ := NewRecord(1)

	for _, id := range []string{"a", "b", "a", "c", "b", "a"} {
		_, err := rec.CompleteLesson(id)
		require.NoError(t, err)
		assert.True(t, rec.Consistent())
	}

	assert.Equal(t, 3, rec.LessonsCompleted)
	assert.Equal(t, []string{"a", "b", "c"}, rec.CompletedLessons.Sorted())
}

func TestRecord_CompleteLessonReportsNewness(t *testing.T) {
	rec, _ := NewRecord(1)

	added, err := rec.CompleteLesson("greetings")
	require.NoError(t, err)
	assert.True(t, added)

	added, err = rec.CompleteLesson("  greetings ")
	require.NoError(t, err)
	assert.False(t, added)

	_, err = rec.CompleteLesson("   ")
	assert.ErrorIs(t, err, shared.ErrEmptyLessonID)
	assert.True(t, shared.IsValidation(err))
}

func TestRecord_AddStudyTime(t *testing.T) {
	rec, _ := NewRecord(1)

	for _, tc := range []struct {
		minutes int
		added   bool
	}{
		{30, true},
		{0, false},
		{-10, false},
		{15, true},
	} {
		added, err := rec.AddStudyTime(tc.minutes)
		require.NoError(t, err)
		assert.Equal(t, tc.added, added, "minutes=%d", tc.minutes)
	}

	assert.Equal(t, 45, rec.TotalStudyTime)
}

func TestRecord_AddStudyTimeRejectsOverflow(t *testing.T) {
	rec, _ := NewRecord(1)

	added, err := rec.AddStudyTime(MaxCounter)
	require.NoError(t, err)
	assert.True(t, added)

	added, err = rec.AddStudyTime(1)
	assert.ErrorIs(t, err, shared.ErrCounterOverflow)
	assert.True(t, shared.IsValidation(err))
	assert.False(t, added)
	assert.Equal(t, MaxCounter, rec.TotalStudyTime)
}

func TestSnapshot_Validate(t *testing.T) {
	tests := []struct {
		name string
		snap Snapshot
		want error
	}{
		{"zero", Snapshot{}, nil},
		{"at maximum", Snapshot{LessonsCompleted: MaxCounter, StudyStreak: MaxCounter, TotalStudyTime: MaxCounter}, nil},
		{"negative streak", Snapshot{StudyStreak: -1}, shared.ErrNegativeSnapshot},
		{"lessons over maximum", Snapshot{LessonsCompleted: MaxCounter + 1}, shared.ErrCounterOverflow},
		{"time over maximum", Snapshot{TotalStudyTime: MaxCounter + 1}, shared.ErrCounterOverflow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.snap.Validate()
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestRecord_RecordStudyDay(t *testing.T) {
	rec, _ := NewRecord(1)
	d := timeutil.NewDate(2024, time.April, 1)

	res := rec.RecordStudyDay(d)
	assert.Equal(t, StreakStarted, res.Outcome)
	assert.Equal(t, 1, rec.StudyStreak)
	require.NotNil(t, rec.LastStudiedDate)
	assert.Equal(t, d, *rec.LastStudiedDate)

	rec.RecordStudyDay(d.AddDays(1))
	rec.RecordStudyDay(d.AddDays(2))
	assert.Equal(t, 3, rec.StudyStreak)

	rec.RecordStudyDay(d.AddDays(6))
	assert.Equal(t, 0, rec.StudyStreak)
	assert.Equal(t, d.AddDays(6), *rec.LastStudiedDate)
}

func TestRecord_ReplaceLeavesSetAndDate(t *testing.T) {
	rec, _ := NewRecord(1)
	_, _ = rec.CompleteLesson("a")
	rec.RecordStudyDay(timeutil.NewDate(2024, time.April, 1))

	require.NoError(t, rec.Replace(Snapshot{LessonsCompleted: 10, StudyStreak: 4, TotalStudyTime: 200}))

	assert.Equal(t, 10, rec.LessonsCompleted)
	assert.Equal(t, 4, rec.StudyStreak)
	assert.Equal(t, 200, rec.TotalStudyTime)
	assert.Equal(t, []string{"a"}, rec.CompletedLessons.Sorted())
	assert.Equal(t, timeutil.NewDate(2024, time.April, 1), *rec.LastStudiedDate)
	assert.False(t, rec.Consistent())

	err := rec.Replace(Snapshot{LessonsCompleted: -1})
	assert.ErrorIs(t, err, shared.ErrNegativeValue)
	assert.Equal(t, 10, rec.LessonsCompleted)
}

func TestRecord_CloneIsIndependent(t *testing.T) {
	rec, _ := NewRecord(1)
	_, _ = rec.CompleteLesson("a")
	rec.RecordStudyDay(timeutil.NewDate(2024, time.April, 1))

	c := rec.Clone()
	_, _ = c.CompleteLesson("b")
	c.RecordStudyDay(timeutil.NewDate(2024, time.April, 2))

	assert.Equal(t, 1, rec.LessonsCompleted)
	assert.False(t, rec.CompletedLessons.Contains("b"))
	assert.Equal(t, timeutil.NewDate(2024, time.April, 1), *rec.LastStudiedDate)
	assert.Equal(t, 2, c.StudyStreak)
}

func TestRecord_JSON(t *testing.T) {
	rec, _ := NewRecord(9)
	_, _ = rec.CompleteLesson("b")
	_, _ = rec.CompleteLesson("a")
	rec.RecordStudyDay(timeutil.NewDate(2024, time.April, 1))

	data, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"completedLessons":["a","b"]`)
	assert.Contains(t, string(data), `"lastStudiedDate":"2024-04-01"`)

	empty, _ := NewRecord(10)
	data, err = json.Marshal(empty)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"lastStudiedDate":null`)
	assert.Contains(t, string(data), `"completedLessons":[]`)
}

func TestLockKey(t *testing.T) {
	assert.Equal(t, "progress:17", LockKey(17))
}
