package caching

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"goodnoodle/internal/models"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const keyPrefix = "goodnoodle"

type CacheService interface {
	// Installation caching
	GetInstallation(ctx context.Context, scope models.TenantScope) (*models.Installation, error)
	SetInstallation(ctx context.Context, scope models.TenantScope, inst *models.Installation, ttl time.Duration) error
	DeleteInstallation(ctx context.Context, scope models.TenantScope) error

	// MarkEventSeen records an inbound event id and reports whether it was new.
	MarkEventSeen(ctx context.Context, eventID string, ttl time.Duration) (bool, error)

	Ping(ctx context.Context) error
	Close() error
}

type redisCacheService struct {
	client *redis.Client
	logger *zap.Logger
}

func NewRedisCacheService(addr, password string, db int, logger *zap.Logger) CacheService {
	if logger == nil {
		logger = zap.NewNop()
	}
	// Accept redis://host:port as well as host:port
	parsedAddr := strings.TrimPrefix(strings.TrimPrefix(addr, "redis://"), "rediss://")

	client := redis.NewClient(&redis.Options{
		Addr:     parsedAddr,
		Password: password,
		DB:       db,
	})

	if pingErr := client.Ping(context.Background()).Err(); pingErr != nil {
		logger.Warn("Redis ping failed on initialization", zap.String("address", parsedAddr), zap.Error(pingErr))
	} else {
		logger.Debug("Redis connection established", zap.String("address", parsedAddr))
	}

	return &redisCacheService{client: client, logger: logger}
}

func installationKey(scope models.TenantScope) string {
	return fmt.Sprintf("%s:installation:%s", keyPrefix, scope.Key())
}

func (r *redisCacheService) GetInstallation(ctx context.Context, scope models.TenantScope) (*models.Installation, error) {
	data, err := r.client.Get(ctx, installationKey(scope)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil // cache miss
		}
		return nil, err
	}

	var inst models.Installation
	if err := json.Unmarshal(data, &inst); err != nil {
		return nil, err
	}
	return &inst, nil
}

func (r *redisCacheService) SetInstallation(ctx context.Context, scope models.TenantScope, inst *models.Installation, ttl time.Duration) error {
	data, err := json.Marshal(inst)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, installationKey(scope), data, ttl).Err()
}

func (r *redisCacheService) DeleteInstallation(ctx context.Context, scope models.TenantScope) error {
	return r.client.Del(ctx, installationKey(scope)).Err()
}

func (r *redisCacheService) MarkEventSeen(ctx context.Context, eventID string, ttl time.Duration) (bool, error) {
	key := fmt.Sprintf("%s:event:%s", keyPrefix, eventID)
	return r.client.SetNX(ctx, key, 1, ttl).Result()
}

func (r *redisCacheService) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *redisCacheService) Close() error {
	return r.client.Close()
}
