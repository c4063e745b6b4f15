package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aescanero/dagent/pkg/domain"
	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const keyPrefix = "dagent:run:"

// StateStorage implements StateStorage using Redis
type StateStorage struct {
	client *redis.Client
	logger *zap.Logger
	ttl    time.Duration
}

// NewStateStorage creates a new Redis state storage
func NewStateStorage(client *redis.Client, ttl time.Duration, logger *zap.Logger) *StateStorage {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StateStorage{
		client: client,
		logger: logger,
		ttl:    ttl,
	}
}

// SaveRun persists a run with the configured TTL
func (s *StateStorage) SaveRun(ctx context.Context, run *domain.RunState) error {
	snapshot := *run
	if run.State != nil {
		snapshot.State = run.State.Clone()
	}

	data, err := json.Marshal(&snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal run: %w", err)
	}

	if err := s.client.Set(ctx, getRunKey(run.RunID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}

	s.logger.Debug("run saved",
		zap.String("run_id", run.RunID),
		zap.String("status", string(run.Status)))
	return nil
}

// GetRun retrieves a run
func (s *StateStorage) GetRun(ctx context.Context, runID string) (*domain.RunState, error) {
	data, err := s.client.Get(ctx, getRunKey(runID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: %s", domain.ErrRunNotFound, runID)
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	var run domain.RunState
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run: %w", err)
	}
	return &run, nil
}

// DeleteRun removes a run
func (s *StateStorage) DeleteRun(ctx context.Context, runID string) error {
	if err := s.client.Del(ctx, getRunKey(runID)).Err(); err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}

	s.logger.Debug("run deleted", zap.String("run_id", runID))
	return nil
}

// ListRuns returns all stored run ids
func (s *StateStorage) ListRuns(ctx context.Context) ([]string, error) {
	var cursor uint64
	var ids []string

	for {
		var batch []string
		var err error

		batch, cursor, err = s.client.Scan(ctx, cursor, keyPrefix+"*", 100).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to scan keys: %w", err)
		}

		for _, key := range batch {
			if id := strings.TrimPrefix(key, keyPrefix); id != "" && id != key {
				ids = append(ids, id)
			}
		}

		if cursor == 0 {
			break
		}
	}

	return ids, nil
}

// getRunKey returns the Redis key for a run
func getRunKey(runID string) string {
	return keyPrefix + runID
}
