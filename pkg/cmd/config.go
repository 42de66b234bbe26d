package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dukex/stepflow/pkg/config"
	goredis "github.com/redis/go-redis/v9"
)

const (
	envSourcePriority   = 10
	redisSourcePriority = 20
	fileSourcePriority  = 30

	// ConfigHash is the Redis hash read by the Redis config source.
	ConfigHash = "stepflow:config"
)

// NewConfigManager builds the configuration chain: STEPFLOW_* environment
// variables, then the optional Redis hash, then the optional YAML file.
func NewConfigManager(ctx context.Context, logger *slog.Logger, configFile, redisURL string) (*config.Manager, error) {
	manager := config.NewManager(config.WithLogger(logger.With("module", "config")))
	manager.AddSource(config.NewEnvSource("STEPFLOW_", envSourcePriority))

	if redisURL != "" {
		options, err := goredis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("invalid config redis url: %w", err)
		}

		manager.AddSource(config.NewRedisSource(goredis.NewClient(options), ConfigHash, redisSourcePriority))
	}

	if configFile != "" {
		source, err := config.LoadFileSource(configFile, fileSourcePriority)
		if err != nil {
			return nil, err
		}

		manager.AddSource(source)
	}

	for _, source := range manager.Sources() {
		logger.InfoContext(ctx, "Config source registered", "source", source.Name(), "priority", source.Priority())
	}

	return manager, nil
}
