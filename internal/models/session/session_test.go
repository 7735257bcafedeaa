package session_test

import (
	"taskflow/internal/models/session"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimeSession_Elapsed(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	s := session.TimeSession{ID: uuid.New(), TaskID: uuid.New(), StartTime: start}

	assert.True(t, s.IsOpen())
	assert.Equal(t, int64(0), s.Elapsed(start))
	assert.Equal(t, int64(90), s.Elapsed(start.Add(90*time.Second+400*time.Millisecond)))
	assert.Equal(t, int64(0), s.Elapsed(start.Add(-time.Minute)))

	s.Close(start.Add(65 * time.Second))
	require.False(t, s.IsOpen())
	assert.Equal(t, int64(65), s.Duration)
	// закрытая сессия больше не зависит от now
	assert.Equal(t, int64(65), s.Elapsed(start.Add(time.Hour)))
}
