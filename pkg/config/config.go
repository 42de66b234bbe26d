// Package config resolves settings from an ordered list of sources, such as
// the environment, a YAML file or a Redis hash.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/dukex/stepflow/pkg/log"
	"github.com/dukex/stepflow/pkg/retry"
)

const (
	DefaultMaxAttempts = 3
	DefaultRetryDelay  = time.Second
)

// ErrNotFound is matched by every ConfigurationError.
var ErrNotFound = errors.New("configuration not found")

// ConfigurationError reports a key that no source could provide.
type ConfigurationError struct {
	Key      string
	Attempts int
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("Configuration key %q not found in any source after %d attempts", e.Key, e.Attempts)
}

func (e *ConfigurationError) Is(target error) bool {
	return target == ErrNotFound
}

// Source provides raw configuration values. Lower Priority values are
// consulted first. A missing key is reported with found=false; err is
// reserved for failures worth retrying.
type Source interface {
	Name() string
	Priority() int
	Get(ctx context.Context, key string) (value any, found bool, err error)
}

// Manager looks a key up in each source by priority, retrying a failing
// source before moving on to the next one.
type Manager struct {
	mu      sync.RWMutex
	sources []Source

	maxAttempts int
	retryDelay  time.Duration
	sleep       retry.Sleeper
	logger      *slog.Logger
}

type ManagerOption func(*Manager)

// WithRetry sets how many times a failing source is queried and the pause
// between queries.
func WithRetry(maxAttempts int, delay time.Duration) ManagerOption {
	return func(m *Manager) {
		m.maxAttempts = maxAttempts
		m.retryDelay = delay
	}
}

func WithLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

func WithSleeper(sleep retry.Sleeper) ManagerOption {
	return func(m *Manager) {
		m.sleep = sleep
	}
}

func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		maxAttempts: DefaultMaxAttempts,
		retryDelay:  DefaultRetryDelay,
		sleep:       retry.Sleep,
	}

	for _, opt := range opts {
		opt(m)
	}

	if m.logger == nil {
		m.logger = log.WithModule("config")
	}

	return m
}

// AddSource registers a source, keeping sources ordered by priority.
func (m *Manager) AddSource(source Source) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sources = append(m.sources, source)
	slices.SortStableFunc(m.sources, func(a, b Source) int {
		return a.Priority() - b.Priority()
	})
}

// Sources returns the registered sources in lookup order.
func (m *Manager) Sources() []Source {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return slices.Clone(m.sources)
}

func (m *Manager) ClearSources() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sources = nil
}

// Get returns the value of key from the first source that has it.
func (m *Manager) Get(ctx context.Context, key string) (any, error) {
	for _, source := range m.Sources() {
		value, found := m.getWithRetry(ctx, source, key)
		if found {
			return value, nil
		}
	}

	return nil, &ConfigurationError{Key: key, Attempts: m.maxAttempts}
}

// GetString is Get for values expected to be strings.
func (m *Manager) GetString(ctx context.Context, key string) (string, error) {
	value, err := m.Get(ctx, key)
	if err != nil {
		return "", err
	}

	switch v := value.(type) {
	case string:
		return v, nil
	case fmt.Stringer:
		return v.String(), nil
	default:
		return fmt.Sprint(v), nil
	}
}

type lookup struct {
	value any
	found bool
}

func (m *Manager) getWithRetry(ctx context.Context, source Source, key string) (any, bool) {
	outcome := retry.WithStats(ctx, func(ctx context.Context) (lookup, error) {
		value, found, err := source.Get(ctx, key)

		return lookup{value: value, found: found}, err
	}, retry.Options{
		MaxRetries: m.maxAttempts,
		BaseDelay:  m.retryDelay,
		Sleep:      m.sleep,
	})

	if !outcome.Success {
		m.logger.WarnContext(ctx, "Failed to get config",
			"key", key,
			"source", source.Name(),
			"attempts", outcome.Attempts,
			"error", outcome.Err,
		)

		return nil, false
	}

	return outcome.Result.value, outcome.Result.found
}
