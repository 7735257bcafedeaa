package session

import (
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	TypeWork  Type = "work"
	TypeBreak Type = "break"
	TypeFocus Type = "focus"
)

// TimeSession - непрерывный интервал работы над одной задачей.
// ID назначается удалённым хранилищем при создании и дальше не меняется.
type TimeSession struct {
	ID        uuid.UUID  `json:"id" db:"id"`
	TaskID    uuid.UUID  `json:"task_id" db:"task_id"`
	UserID    uuid.UUID  `json:"user_id" db:"user_id"`
	StartTime time.Time  `json:"start_time" db:"start_time"`
	EndTime   *time.Time `json:"end_time,omitempty" db:"end_time"`
	Duration  int64      `json:"duration" db:"duration"`
	Note      string     `json:"note,omitempty" db:"note"`
	Type      Type       `json:"session_type,omitempty" db:"session_type"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
}

func (s TimeSession) IsOpen() bool {
	return s.EndTime == nil
}

// Elapsed - длительность в секундах. Для открытой сессии считается от now.
func (s TimeSession) Elapsed(now time.Time) int64 {
	if s.EndTime != nil {
		return s.Duration
	}
	return secondsBetween(s.StartTime, now)
}

// Close закрывает сессию в момент end
func (s *TimeSession) Close(end time.Time) {
	s.EndTime = &end
	s.Duration = secondsBetween(s.StartTime, end)
	s.UpdatedAt = end
}

// Source отдаёт снимок открытой сессии с актуальной длительностью
type Source func() (TimeSession, bool)

type FocusSession struct {
	TaskID        uuid.UUID  `json:"task_id"`
	StartTime     time.Time  `json:"start_time"`
	EndTime       *time.Time `json:"end_time,omitempty"`
	Duration      int64      `json:"duration"`
	Interruptions int        `json:"interruptions"`
}

func (f FocusSession) IsOpen() bool {
	return f.EndTime == nil
}

func (f *FocusSession) Close(end time.Time) {
	f.EndTime = &end
	f.Duration = secondsBetween(f.StartTime, end)
}

func secondsBetween(from, to time.Time) int64 {
	d := to.Sub(from)
	if d < 0 {
		return 0
	}
	return int64(d / time.Second)
}
