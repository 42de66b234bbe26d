// Package redis provides Redis persistence implementation for run records.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/persistence"
	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix = "stepflow:run:"
	indexKey  = "stepflow:runs"
)

// Persistence stores each run as a JSON string and keeps a sorted set of run
// keys scored by start time.
type Persistence struct {
	client redis.UniversalClient
	logger *slog.Logger
}

// NewPersistence connects to the Redis server addressed by a redis:// URL.
func NewPersistence(ctx context.Context, logger *slog.Logger, redisURL string) (*Persistence, error) {
	options, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	return NewPersistenceWithClient(ctx, logger, redis.NewClient(options))
}

// NewPersistenceWithClient wraps an existing client.
func NewPersistenceWithClient(ctx context.Context, logger *slog.Logger, client redis.UniversalClient) (*Persistence, error) {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err := client.Ping(pingCtx).Err()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.InfoContext(ctx, "Connected to Redis")

	return &Persistence{client: client, logger: logger}, nil
}

func runKey(workflowID, eventID string) string {
	return keyPrefix + workflowID + ":" + eventID
}

// SaveRun writes the run and indexes it.
func (p *Persistence) SaveRun(ctx context.Context, run *models.Run) error {
	err := persistence.ValidateRunIDs("SaveRun", run.WorkflowID, run.EventID)
	if err != nil {
		return err
	}

	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to marshal run %s/%s: %w", run.WorkflowID, run.EventID, err)
	}

	key := runKey(run.WorkflowID, run.EventID)

	_, err = p.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, key, data, 0)
		pipe.ZAdd(ctx, indexKey, redis.Z{Score: float64(run.StartTime.UnixMilli()), Member: key})

		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save run %s/%s: %w", run.WorkflowID, run.EventID, err)
	}

	return nil
}

// RunByID returns a run by its workflow and event ids.
func (p *Persistence) RunByID(ctx context.Context, workflowID, eventID string) (*models.Run, error) {
	data, err := p.client.Get(ctx, runKey(workflowID, eventID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, persistence.NewRunError("RunByID", workflowID, eventID, persistence.ErrRunNotFound)
		}

		return nil, fmt.Errorf("failed to get run %s/%s: %w", workflowID, eventID, err)
	}

	var run models.Run

	err = json.Unmarshal(data, &run)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal run %s/%s: %w", workflowID, eventID, err)
	}

	return &run, nil
}

// Runs lists runs matching filter, newest first.
func (p *Persistence) Runs(ctx context.Context, filter persistence.RunFilter) ([]*models.Run, error) {
	keys, err := p.client.ZRevRange(ctx, indexKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list run keys: %w", err)
	}

	runs := make([]*models.Run, 0, len(keys))
	if len(keys) == 0 {
		return runs, nil
	}

	values, err := p.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load runs: %w", err)
	}

	for i, value := range values {
		raw, ok := value.(string)
		if !ok {
			// Index entry outlived its run
			p.logger.WarnContext(ctx, "Dangling run index entry", "key", keys[i])

			continue
		}

		var run models.Run

		err := json.Unmarshal([]byte(raw), &run)
		if err != nil {
			p.logger.WarnContext(ctx, "Skipping unreadable run", "key", keys[i], "error", err)

			continue
		}

		runs = append(runs, &run)
	}

	return persistence.ApplyFilter(runs, filter), nil
}

// DeleteRun removes a run and its index entry.
func (p *Persistence) DeleteRun(ctx context.Context, workflowID, eventID string) error {
	key := runKey(workflowID, eventID)

	var deleted *redis.IntCmd

	_, err := p.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		deleted = pipe.Del(ctx, key)
		pipe.ZRem(ctx, indexKey, key)

		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete run %s/%s: %w", workflowID, eventID, err)
	}

	if deleted.Val() == 0 {
		return persistence.NewRunError("DeleteRun", workflowID, eventID, persistence.ErrRunNotFound)
	}

	return nil
}

// HealthCheck pings the server.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.client.Ping(ctx).Err()
	if err != nil {
		return fmt.Errorf("failed to ping redis: %w", err)
	}

	return nil
}

// Close closes the client.
func (p *Persistence) Close(_ context.Context) error {
	err := p.client.Close()
	if err != nil {
		return fmt.Errorf("failed to close redis client: %w", err)
	}

	return nil
}
