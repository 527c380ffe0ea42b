package drought

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPreviousWeekDate(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	tests := []struct {
		name string
		now  time.Time
		want string
	}{
		{"monday after publication", time.Date(2024, 1, 15, 12, 0, 0, 0, ny), "20240109"},
		{"tuesday before publication", time.Date(2024, 1, 9, 12, 0, 0, 0, ny), "20240102"},
		{"thursday before cutoff", time.Date(2024, 1, 11, 8, 29, 0, 0, ny), "20240102"},
		{"thursday at cutoff", time.Date(2024, 1, 11, 8, 30, 0, 0, ny), "20240109"},
		{"across year boundary", time.Date(2024, 1, 2, 12, 0, 0, 0, ny), "20231226"},
		{"utc input is read in local time", time.Date(2024, 1, 11, 13, 29, 0, 0, time.UTC), "20240102"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PreviousWeekDate(tt.now, ny))
		})
	}
}
