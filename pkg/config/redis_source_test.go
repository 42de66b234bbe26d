package config_test

import (
	"context"
	"testing"
	"time"

	"github.com/dukex/stepflow/pkg/config"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestRedisSource(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container-backed test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForListeningPort("6379/tcp"),
		},
		Started: true,
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: endpoint})
	defer client.Close()

	require.NoError(t, client.HSet(ctx, "stepflow:config",
		config.StepKey("http-check", "fetch"), `{"retries": {"limit": 4}}`).Err())

	manager, _ := newManager()
	manager.AddSource(config.NewRedisSource(client, "stepflow:config", 1))

	options, err := manager.StepOptions(ctx, "http-check", "fetch")
	require.NoError(t, err)
	require.NotNil(t, options.Retries)
	assert.Equal(t, 4, options.Retries.Limit)

	_, err = manager.Get(ctx, "missing")
	assert.ErrorIs(t, err, config.ErrNotFound)
}
