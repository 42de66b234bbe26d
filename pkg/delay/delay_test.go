package delay

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/dukex/stepflow/pkg/log"
	"github.com/stretchr/testify/assert"
)

func captureWarnings(t *testing.T) (context.Context, *bytes.Buffer) {
	t.Helper()

	var buf bytes.Buffer

	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))

	return log.WithLogger(t.Context(), logger), &buf
}

func millis(ctx context.Context, value any) int64 {
	return ParseContext(ctx, value).Milliseconds()
}

func TestMillis(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected int64
	}{
		{"minutes", "5 minutes", 300000},
		{"single minute", "1 minute", 60000},
		{"seconds", "30 seconds", 30000},
		{"second singular", "1 second", 1000},
		{"hours", "2 hours", 7200000},
		{"days", "1 day", 86400000},
		{"zero string", "0", 0},
		{"integer", 1234, 1234},
		{"int64", int64(500), 500},
		{"float", float64(250), 250},
		{"duration", 3 * time.Second, 3000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, buf := captureWarnings(t)

			assert.Equal(t, tt.expected, millis(ctx, tt.input))
			assert.Empty(t, buf.String())
		})
	}
}

func TestMillis_InvalidInputFailsOpen(t *testing.T) {
	inputs := []any{"banana", "5minutes", "five minutes", "10 weeks", "-1 second", "", struct{}{}, nil}

	for _, input := range inputs {
		ctx, buf := captureWarnings(t)

		assert.NotPanics(t, func() {
			assert.Equal(t, int64(0), millis(ctx, input))
		})
		assert.Contains(t, buf.String(), "Invalid delay")
	}
}

func TestParse(t *testing.T) {
	assert.Equal(t, 30*time.Minute, Parse("30 minutes"))
	assert.Equal(t, time.Duration(0), Parse("0"))
	assert.Equal(t, 1500*time.Millisecond, Parse(1500))
}

func TestParse_OverflowingAmountFailsOpen(t *testing.T) {
	ctx, buf := captureWarnings(t)

	assert.Equal(t, time.Duration(0), ParseContext(ctx, "200000 days"))
	assert.Equal(t, time.Duration(0), ParseContext(ctx, "9223372036854775807 seconds"))
	assert.Contains(t, buf.String(), "overflows duration")

	assert.Equal(t, 100000*24*time.Hour, ParseContext(ctx, "100000 days"))
}

func TestMillis_DefaultLogger(t *testing.T) {
	assert.Equal(t, int64(300000), Millis("5 minutes"))
}
