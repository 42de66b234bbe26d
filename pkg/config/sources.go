package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"
)

// EnvSource reads environment variables. Keys are upper-cased and "." or
// "-" become "_", so "steps.http-check.fetch" reads STEPS_HTTP_CHECK_FETCH.
type EnvSource struct {
	prefix   string
	priority int
}

func NewEnvSource(prefix string, priority int) *EnvSource {
	return &EnvSource{prefix: prefix, priority: priority}
}

func (s *EnvSource) Name() string  { return "env" }
func (s *EnvSource) Priority() int { return s.priority }

// EnvKey returns the variable name a key maps to.
func (s *EnvSource) EnvKey(key string) string {
	replacer := strings.NewReplacer(".", "_", "-", "_")

	return s.prefix + strings.ToUpper(replacer.Replace(key))
}

func (s *EnvSource) Get(_ context.Context, key string) (any, bool, error) {
	value, ok := os.LookupEnv(s.EnvKey(key))
	if !ok {
		return nil, false, nil
	}

	return value, true, nil
}

// FileSource serves values from a YAML document loaded once. Dotted keys
// walk nested mappings.
type FileSource struct {
	path     string
	priority int
	values   map[string]any
}

func LoadFileSource(path string, priority int) (*FileSource, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path comes from operator configuration
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	values := map[string]any{}

	err = yaml.Unmarshal(data, &values)
	if err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	return &FileSource{path: path, priority: priority, values: values}, nil
}

func (s *FileSource) Name() string  { return "file:" + s.path }
func (s *FileSource) Priority() int { return s.priority }

func (s *FileSource) Get(_ context.Context, key string) (any, bool, error) {
	var current any = s.values

	for _, part := range strings.Split(key, ".") {
		node, ok := current.(map[string]any)
		if !ok {
			return nil, false, nil
		}

		current, ok = node[part]
		if !ok {
			return nil, false, nil
		}
	}

	return current, true, nil
}

// RedisSource reads fields of a single Redis hash.
type RedisSource struct {
	client   redis.UniversalClient
	hash     string
	priority int
}

func NewRedisSource(client redis.UniversalClient, hash string, priority int) *RedisSource {
	return &RedisSource{client: client, hash: hash, priority: priority}
}

func (s *RedisSource) Name() string  { return "redis:" + s.hash }
func (s *RedisSource) Priority() int { return s.priority }

func (s *RedisSource) Get(ctx context.Context, key string) (any, bool, error) {
	value, err := s.client.HGet(ctx, s.hash, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}

		return nil, false, fmt.Errorf("failed to read %s from %s: %w", key, s.hash, err)
	}

	return value, true, nil
}
