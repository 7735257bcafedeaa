// Package analytics считает статистику продуктивности по закрытым сессиям.
package analytics

import (
	"cmp"
	"slices"
	"taskflow/internal/models/session"
	"taskflow/internal/models/task"
	"time"

	"github.com/google/uuid"
)

const dayLayout = "2006-01-02"

type Day struct {
	Date    string `json:"date"`
	Seconds int64  `json:"seconds"`
}

type CategoryShare struct {
	Category   string  `json:"category"`
	Seconds    int64   `json:"seconds"`
	Percentage float64 `json:"percentage"`
}

type Stats struct {
	TotalTracked      int64           `json:"total_tracked"`
	DailyAverage      int64           `json:"daily_average"`
	AverageSession    int64           `json:"average_session"`
	Sessions          int             `json:"sessions"`
	MostProductiveDay *Day            `json:"most_productive_day,omitempty"`
	Categories        []CategoryShare `json:"categories"`
	CompletedTime     int64           `json:"completed_time"`
	PendingTime       int64           `json:"pending_time"`
	TasksCompleted    int             `json:"tasks_completed"`
	TasksTotal        int             `json:"tasks_total"`
}

// Calculate строит сводку. Открытые сессии не учитываются.
// Время сессии относится к первой категории задачи; сессии удалённых задач
// попадают в категорию по умолчанию.
func Calculate(sessions []session.TimeSession, tasks []*task.Task) Stats {
	byID := index(tasks)
	stats := Stats{Categories: []CategoryShare{}, TasksTotal: len(tasks)}
	for _, t := range tasks {
		if t.IsCompleted() {
			stats.TasksCompleted++
		}
	}

	daily := map[string]int64{}
	categories := map[string]int64{}

	for _, s := range sessions {
		if s.IsOpen() {
			continue
		}
		stats.Sessions++
		stats.TotalTracked += s.Duration
		daily[s.StartTime.UTC().Format(dayLayout)] += s.Duration

		category := task.DefaultCategory
		if t, ok := byID[s.TaskID]; ok {
			if len(t.Category) > 0 {
				category = t.Category[0]
			}
			if t.IsCompleted() {
				stats.CompletedTime += s.Duration
			} else {
				stats.PendingTime += s.Duration
			}
		}
		categories[category] += s.Duration
	}

	if stats.Sessions == 0 {
		return stats
	}
	stats.AverageSession = stats.TotalTracked / int64(stats.Sessions)
	stats.DailyAverage = stats.TotalTracked / int64(len(daily))

	for date, seconds := range daily {
		best := stats.MostProductiveDay
		// при равенстве выигрывает более ранний день
		if best == nil || seconds > best.Seconds || (seconds == best.Seconds && date < best.Date) {
			stats.MostProductiveDay = &Day{Date: date, Seconds: seconds}
		}
	}

	for name, seconds := range categories {
		share := CategoryShare{Category: name, Seconds: seconds}
		if stats.TotalTracked > 0 {
			share.Percentage = float64(seconds) * 100 / float64(stats.TotalTracked)
		}
		stats.Categories = append(stats.Categories, share)
	}
	slices.SortFunc(stats.Categories, func(a, b CategoryShare) int {
		if c := cmp.Compare(b.Seconds, a.Seconds); c != 0 {
			return c
		}
		return cmp.Compare(a.Category, b.Category)
	})
	return stats
}

// TaskLog - сессии одной задачи, новые первыми
type TaskLog struct {
	TaskID     uuid.UUID             `json:"task_id"`
	Title      string                `json:"title"`
	Total      int64                 `json:"total"`
	LastActive time.Time             `json:"last_active"`
	Sessions   []session.TimeSession `json:"sessions"`
}

// GroupByTask группирует закрытые сессии по задачам. Группы отсортированы
// по последней сессии, самая свежая первой.
func GroupByTask(sessions []session.TimeSession, tasks []*task.Task) []TaskLog {
	byID := index(tasks)
	groups := map[uuid.UUID]*TaskLog{}

	for _, s := range sessions {
		if s.IsOpen() {
			continue
		}
		g, ok := groups[s.TaskID]
		if !ok {
			g = &TaskLog{TaskID: s.TaskID}
			if t, ok := byID[s.TaskID]; ok {
				g.Title = t.Title
			}
			groups[s.TaskID] = g
		}
		g.Total += s.Duration
		g.Sessions = append(g.Sessions, s)
		if s.StartTime.After(g.LastActive) {
			g.LastActive = s.StartTime
		}
	}

	res := make([]TaskLog, 0, len(groups))
	for _, g := range groups {
		slices.SortFunc(g.Sessions, func(a, b session.TimeSession) int {
			return b.StartTime.Compare(a.StartTime)
		})
		res = append(res, *g)
	}
	slices.SortFunc(res, func(a, b TaskLog) int {
		if c := b.LastActive.Compare(a.LastActive); c != 0 {
			return c
		}
		return cmp.Compare(a.TaskID.String(), b.TaskID.String())
	})
	return res
}

func index(tasks []*task.Task) map[uuid.UUID]*task.Task {
	m := make(map[uuid.UUID]*task.Task, len(tasks))
	for _, t := range tasks {
		m[t.ID] = t
	}
	return m
}
