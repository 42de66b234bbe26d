package workflow

import (
	"context"
	"time"

	"github.com/dukex/stepflow/pkg/delay"
	"github.com/dukex/stepflow/pkg/retry"
)

type Backoff string

const (
	BackoffLinear      Backoff = "linear"
	BackoffExponential Backoff = "exponential"
)

const (
	DefaultRetryLimit = 3
	DefaultRetryDelay = "1 second"
	DefaultTimeout    = "30 minutes"
)

// RetryConfig controls how often a step is attempted. Delay accepts the
// same values as delay.Parse.
type RetryConfig struct {
	Limit   int     `json:"limit"   yaml:"limit"   validate:"gte=0"`
	Delay   any     `json:"delay"   yaml:"delay"`
	Backoff Backoff `json:"backoff" yaml:"backoff" validate:"omitempty,oneof=linear exponential"`
}

// StepOptions configures a single Do call. The zero value uses the defaults:
// three attempts, one second linear backoff and a thirty minute timeout.
type StepOptions struct {
	Retries *RetryConfig `json:"retries,omitempty" yaml:"retries,omitempty"`
	Timeout any          `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// unset reports whether v is absent or a numeric zero, which select the
// default timeout.
func unset(v any) bool {
	switch n := v.(type) {
	case nil:
		return true
	case int:
		return n == 0
	case int32:
		return n == 0
	case int64:
		return n == 0
	case uint:
		return n == 0
	case uint32:
		return n == 0
	case uint64:
		return n == 0
	case float32:
		return n == 0
	case float64:
		return n == 0
	default:
		return false
	}
}

// resolve returns the retry options and the per-attempt timeout. A timeout
// that parses to zero or less fires immediately.
func (o StepOptions) resolve(ctx context.Context) (retry.Options, time.Duration) {
	limit := DefaultRetryLimit
	var delayValue any = DefaultRetryDelay
	exponential := false

	if o.Retries != nil {
		if o.Retries.Limit > 0 {
			limit = o.Retries.Limit
		}

		if o.Retries.Delay != nil {
			delayValue = o.Retries.Delay
		}

		exponential = o.Retries.Backoff == BackoffExponential
	}

	var timeoutValue any = DefaultTimeout
	if !unset(o.Timeout) {
		timeoutValue = o.Timeout
	}

	return retry.Options{
		MaxRetries:            limit,
		BaseDelay:             delay.ParseContext(ctx, delayValue),
		UseExponentialBackoff: exponential,
	}, delay.ParseContext(ctx, timeoutValue)
}
