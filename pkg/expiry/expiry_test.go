package expiry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRFC3339(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	at, err := Parse("2026-09-01T12:00:00Z", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC), at)
}

func TestParseDuration(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		expr string
		want time.Time
	}{
		{"24h", now.Add(24 * time.Hour)},
		{"+30m", now.Add(30 * time.Minute)},
		{" 1h30m ", now.Add(90 * time.Minute)},
	}

	for _, tt := range tests {
		at, err := Parse(tt.expr, now)
		require.NoError(t, err, "expr=%q", tt.expr)
		assert.Equal(t, tt.want, at, "expr=%q", tt.expr)
	}
}

func TestParseInvalid(t *testing.T) {
	now := time.Now()

	for _, expr := range []string{"", "soon", "2026-13-99", "abc123"} {
		_, err := Parse(expr, now)
		assert.Error(t, err, "expr=%q", expr)
	}
}

func TestParseMustBeFuture(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	// 过去的绝对时间
	_, err := Parse("2020-01-01T00:00:00Z", now)
	assert.Error(t, err)

	// 负向 duration
	_, err = Parse("-1h", now)
	assert.Error(t, err)

	// 零 duration 等于当前时间，同样拒绝
	_, err = Parse("0s", now)
	assert.Error(t, err)
}
