package analytics_test

import (
	"taskflow/internal/analytics"
	"taskflow/internal/models/session"
	"taskflow/internal/models/task"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day1 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func closed(taskID uuid.UUID, start time.Time, seconds int64) session.TimeSession {
	s := session.TimeSession{ID: uuid.New(), TaskID: taskID, StartTime: start}
	s.Close(start.Add(time.Duration(seconds) * time.Second))
	return s
}

func TestCalculate(t *testing.T) {
	work := &task.Task{ID: uuid.New(), Title: "report", Category: []string{"work"}, Status: task.StatusCompleted}
	home := &task.Task{ID: uuid.New(), Title: "garden", Category: []string{"home", "weekend"}, Status: task.StatusTodo}
	gone := uuid.New()

	open := session.TimeSession{ID: uuid.New(), TaskID: work.ID, StartTime: day1}
	sessions := []session.TimeSession{
		closed(work.ID, day1, 3600),
		closed(home.ID, day1.Add(2*time.Hour), 1800),
		closed(home.ID, day1.Add(24*time.Hour), 600),
		closed(gone, day1.Add(25*time.Hour), 600),
		open,
	}

	stats := analytics.Calculate(sessions, []*task.Task{work, home})

	assert.Equal(t, int64(6600), stats.TotalTracked)
	assert.Equal(t, 4, stats.Sessions)
	assert.Equal(t, int64(1650), stats.AverageSession)
	assert.Equal(t, int64(3300), stats.DailyAverage)
	require.NotNil(t, stats.MostProductiveDay)
	assert.Equal(t, "2026-03-01", stats.MostProductiveDay.Date)
	assert.Equal(t, int64(5400), stats.MostProductiveDay.Seconds)
	assert.Equal(t, int64(3600), stats.CompletedTime)
	assert.Equal(t, int64(2400), stats.PendingTime)
	assert.Equal(t, 1, stats.TasksCompleted)
	assert.Equal(t, 2, stats.TasksTotal)

	require.Len(t, stats.Categories, 3)
	assert.Equal(t, "work", stats.Categories[0].Category)
	assert.InDelta(t, 54.54, stats.Categories[0].Percentage, 0.01)
	assert.Equal(t, "home", stats.Categories[1].Category)
	assert.Equal(t, int64(2400), stats.Categories[1].Seconds)
	assert.Equal(t, task.DefaultCategory, stats.Categories[2].Category)
}

func TestCalculate_Empty(t *testing.T) {
	stats := analytics.Calculate(nil, nil)
	assert.Zero(t, stats.TotalTracked)
	assert.Zero(t, stats.DailyAverage)
	assert.Nil(t, stats.MostProductiveDay)
	assert.Empty(t, stats.Categories)
}

func TestGroupByTask(t *testing.T) {
	a := &task.Task{ID: uuid.New(), Title: "a"}
	b := &task.Task{ID: uuid.New(), Title: "b"}

	sessions := []session.TimeSession{
		closed(a.ID, day1, 60),
		closed(b.ID, day1.Add(time.Hour), 120),
		closed(a.ID, day1.Add(2*time.Hour), 30),
		{ID: uuid.New(), TaskID: b.ID, StartTime: day1.Add(3 * time.Hour)},
	}

	logs := analytics.GroupByTask(sessions, []*task.Task{a, b})
	require.Len(t, logs, 2)

	assert.Equal(t, "a", logs[0].Title)
	assert.Equal(t, int64(90), logs[0].Total)
	require.Len(t, logs[0].Sessions, 2)
	assert.Equal(t, int64(30), logs[0].Sessions[0].Duration)
	assert.Equal(t, day1.Add(2*time.Hour), logs[0].LastActive)

	assert.Equal(t, "b", logs[1].Title)
	assert.Len(t, logs[1].Sessions, 1)
}
