package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeTimestampFormats(t *testing.T) {
	fallback := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		raw  string
		want time.Time
	}{
		{
			name: "rfc5322 date header",
			raw:  "Mon, 02 Jan 2026 15:04:05 +0200",
			want: time.Date(2026, 1, 2, 13, 4, 5, 0, time.UTC),
		},
		{
			name: "rfc3339",
			raw:  "2026-01-02T15:04:05Z",
			want: time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC),
		},
		{
			name: "rfc3339 with offset",
			raw:  "2026-01-02T15:04:05+05:00",
			want: time.Date(2026, 1, 2, 10, 4, 5, 0, time.UTC),
		},
		{
			name: "sql datetime",
			raw:  "2026-01-02 15:04:05",
			want: time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC),
		},
		{
			name: "bare date",
			raw:  "2026-01-02",
			want: time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := NormalizeTimestamp(tt.raw, fallback)
			assert.True(t, ok)
			assert.True(t, got.Equal(tt.want), "got %v want %v", got, tt.want)
			assert.Equal(t, time.UTC, got.Location())
		})
	}
}

func TestNormalizeTimestampFallback(t *testing.T) {
	fallback := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)

	for _, raw := range []string{"", "   ", "not a date", "32/13/2026"} {
		got, ok := NormalizeTimestamp(raw, fallback)
		assert.False(t, ok, "raw %q should not parse", raw)
		assert.True(t, got.Equal(fallback))
	}
}
