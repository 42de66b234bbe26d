// Package delay converts human readable durations such as "30 minutes" into
// concrete wait times for step retries, timeouts and sleeps.
package delay

import (
	"context"
	"log/slog"
	"math"
	"regexp"
	"strconv"
	"time"

	"github.com/dukex/stepflow/pkg/log"
)

var pattern = regexp.MustCompile(`^(\d+)\s+(second|minute|hour|day)s?$`)

var units = map[string]time.Duration{
	"second": time.Second,
	"minute": time.Minute,
	"hour":   time.Hour,
	"day":    24 * time.Hour,
}

func logger(ctx context.Context) *slog.Logger {
	return log.FromContext(ctx).With("module", "delay")
}

// Millis returns value as a number of milliseconds. See Parse.
func Millis(value any) int64 {
	return Parse(value).Milliseconds()
}

// Parse is ParseContext with the default logger.
func Parse(value any) time.Duration {
	return ParseContext(context.Background(), value)
}

// ParseContext converts value into a duration. Warnings go to the logger
// carried by ctx (see log.WithLogger).
//
// Integers are milliseconds and pass through unchanged. Strings must be "0" or
// "<n> <unit>" with unit one of second, minute, hour or day (an optional
// trailing "s" is accepted). Any other input, including amounts that overflow
// a time.Duration, logs a warning and yields zero.
func ParseContext(ctx context.Context, value any) time.Duration {
	switch v := value.(type) {
	case time.Duration:
		return v
	case int:
		return time.Duration(v) * time.Millisecond
	case int32:
		return time.Duration(v) * time.Millisecond
	case int64:
		return time.Duration(v) * time.Millisecond
	case uint:
		return time.Duration(v) * time.Millisecond
	case uint32:
		return time.Duration(v) * time.Millisecond
	case uint64:
		return time.Duration(v) * time.Millisecond
	case float64:
		return time.Duration(int64(v)) * time.Millisecond
	case float32:
		return time.Duration(int64(v)) * time.Millisecond
	case string:
		return parseString(ctx, v)
	default:
		logger(ctx).WarnContext(ctx, "Invalid delay format, using 0 as default", "delay", value)

		return 0
	}
}

func parseString(ctx context.Context, value string) time.Duration {
	if value == "0" {
		return 0
	}

	match := pattern.FindStringSubmatch(value)
	if match == nil {
		logger(ctx).WarnContext(ctx, "Invalid delay format, using 0 as default", "delay", value)

		return 0
	}

	amount, err := strconv.ParseInt(match[1], 10, 64)
	if err != nil {
		logger(ctx).WarnContext(ctx, "Invalid delay amount, using 0 as default", "delay", value, "error", err)

		return 0
	}

	unit := units[match[2]]
	if amount > math.MaxInt64/int64(unit) {
		logger(ctx).WarnContext(ctx, "Invalid delay amount, using 0 as default", "delay", value, "error", "overflows duration")

		return 0
	}

	return time.Duration(amount) * unit
}
