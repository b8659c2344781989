package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"postovik/internal/config"
	"postovik/internal/models"

	"github.com/redis/go-redis/v9"
)

// watchStatusKey хранит единственный снапшот статуса мониторинга
const watchStatusKey = "watch:status"

type RedisStatusRepository struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisClient создает новый клиент Redis на основе конфигурации
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	options := &redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	}

	client := redis.NewClient(options)

	return client
}

func NewRedisStatusRepository(client *redis.Client, ttl time.Duration) *RedisStatusRepository {
	return &RedisStatusRepository{
		client: client,
		ttl:    ttl,
	}
}

func (r *RedisStatusRepository) LoadStatus(ctx context.Context) (*models.WatchStatus, error) {
	if r.client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	val, err := r.client.Get(ctx, watchStatusKey).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get watch status from redis: %w", err)
	}

	var status models.WatchStatus
	if err := json.Unmarshal([]byte(val), &status); err != nil {
		return nil, fmt.Errorf("failed to unmarshal watch status: %w", err)
	}

	return &status, nil
}

func (r *RedisStatusRepository) SaveStatus(ctx context.Context, status *models.WatchStatus) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	data, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to marshal watch status: %w", err)
	}

	if err := r.client.Set(ctx, watchStatusKey, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set watch status in redis: %w", err)
	}

	return nil
}

func (r *RedisStatusRepository) ClearStatus(ctx context.Context) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if err := r.client.Del(ctx, watchStatusKey).Err(); err != nil {
		return fmt.Errorf("failed to delete watch status from redis: %w", err)
	}
	return nil
}

// Ping проверяет соединение с Redis
func Ping(ctx context.Context, client *redis.Client) error {
	_, err := client.Ping(ctx).Result()
	if err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

// Close закрывает соединение с Redis
func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
