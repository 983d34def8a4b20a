// Package observability exposes prometheus metrics for progress tracking.
package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/alem-hub/learning-progress/internal/domain/shared"
)

const namespace = "learning_progress"

var (
	lessonsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "progress",
		Name:      "lessons_completed_total",
		Help:      "Lesson completions, split by whether the lesson was new for the user.",
	}, []string{"new"})

	studyMinutesCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "progress",
		Name:      "study_minutes_total",
		Help:      "Study minutes added across all users.",
	})

	streakCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "progress",
		Name:      "streak_updates_total",
		Help:      "Streak recalculations by outcome.",
	}, []string{"outcome"})

	replacedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "progress",
		Name:      "bulk_replacements_total",
		Help:      "Administrative progress overwrites.",
	})

	achievementsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "achievements",
		Name:      "unlocked_total",
		Help:      "Achievements unlocked, by achievement id.",
	}, []string{"achievement_id"})

	usersCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "users",
		Name:      "created_total",
		Help:      "Users registered.",
	})

	usersDeletedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "users",
		Name:      "deleted_total",
		Help:      "Users deleted together with their progress.",
	})

	httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by route, method and status code.",
	}, []string{"route", "method", "status"})

	httpLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route", "method"})
)

func init() {
	prometheus.MustRegister(
		lessonsCounter,
		studyMinutesCounter,
		streakCounter,
		replacedCounter,
		achievementsCounter,
		usersCounter,
		usersDeletedCounter,
		httpRequests,
		httpLatency,
	)
}

// Subscribe records domain metrics from events published on bus.
func Subscribe(bus shared.EventSubscriber) error {
	return bus.SubscribeAll(RecordEvent)
}

// RecordEvent updates the counters matching event. It never fails.
func RecordEvent(event shared.Event) error {
	switch e := event.(type) {
	case shared.LessonCompletedEvent:
		lessonsCounter.WithLabelValues(strconv.FormatBool(e.NewLesson)).Inc()
	case shared.StudyTimeAddedEvent:
		studyMinutesCounter.Add(float64(e.Minutes))
	case shared.StreakUpdatedEvent:
		streakCounter.WithLabelValues(e.Outcome).Inc()
	case shared.ProgressReplacedEvent:
		replacedCounter.Inc()
	case shared.AchievementUnlockedEvent:
		achievementsCounter.WithLabelValues(strconv.FormatInt(e.AchievementID, 10)).Inc()
	case shared.UserCreatedEvent:
		usersCounter.Inc()
	case shared.UserDeletedEvent:
		usersDeletedCounter.Inc()
	}
	return nil
}

// RecordHTTPRequest records one served request.
func RecordHTTPRequest(route, method string, status int, latency time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	httpLatency.WithLabelValues(route, method).Observe(latency.Seconds())
}
