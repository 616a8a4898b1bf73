package database

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPointsWindow(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

	tests := map[string]struct {
		from, to           *time.Time
		wantStart, wantEnd time.Time
	}{
		"both":      {from: &from, to: &to, wantStart: from, wantEnd: to},
		"neither":   {wantStart: now.Add(-48 * time.Hour), wantEnd: now},
		"only from": {from: &from, wantStart: from, wantEnd: now},
		"only to":   {to: &to, wantStart: to.Add(-48 * time.Hour), wantEnd: to},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			start, end := pointsWindow(tc.from, tc.to, now)
			assert.Equal(t, tc.wantStart, start)
			assert.Equal(t, tc.wantEnd, end)
		})
	}
}
