package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"traffic-analytics/internal/models"

	"github.com/go-redis/redis/v8"
)

const sensorsKey = "sensors:known"

type RedisClient struct {
	client *redis.Client
	ctx    context.Context
}

const pingTimeout = 5 * time.Second

// NewRedisClient connects to addr and fails fast when the server does not
// answer a ping within pingTimeout.
func NewRedisClient(addr string) (*RedisClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		PoolSize:     20,
		MinIdleConns: 2,
		MaxRetries:   3,
		DialTimeout:  pingTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping %s: %w", addr, err)
	}

	return &RedisClient{
		client: client,
		ctx:    context.Background(),
	}, nil
}

func uploadKey(sensorID string) string {
	return "sensor:" + sensorID + ":csv"
}

// StoreUpload keeps the raw CSV of a sensor so its stream can be rebuilt
// after a restart.
func (r *RedisClient) StoreUpload(sensorID string, data []byte) error {
	if err := r.client.Set(r.ctx, uploadKey(sensorID), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to store upload for %s: %w", sensorID, err)
	}

	if err := r.client.SAdd(r.ctx, sensorsKey, sensorID).Err(); err != nil {
		return fmt.Errorf("failed to register sensor %s: %w", sensorID, err)
	}

	return nil
}

// GetUpload returns nil, nil when the sensor was never uploaded.
func (r *RedisClient) GetUpload(sensorID string) ([]byte, error) {
	data, err := r.client.Get(r.ctx, uploadKey(sensorID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load upload for %s: %w", sensorID, err)
	}
	return data, nil
}

func (r *RedisClient) ListSensors() ([]string, error) {
	ids, err := r.client.SMembers(r.ctx, sensorsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list sensors: %w", err)
	}
	return ids, nil
}

func (r *RedisClient) StoreStatistics(key string, stats models.Statistics, ttl time.Duration) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("failed to marshal statistics: %w", err)
	}

	if err := r.client.Set(r.ctx, "stats:"+key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store statistics in Redis: %w", err)
	}
	return nil
}

// GetStatistics returns nil, nil on a cache miss.
func (r *RedisClient) GetStatistics(key string) (*models.Statistics, error) {
	val, err := r.client.Get(r.ctx, "stats:"+key).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var stats models.Statistics
	if err := json.Unmarshal([]byte(val), &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// InvalidateStatistics drops every cached statistics entry of a sensor.
func (r *RedisClient) InvalidateStatistics(sensorID string) error {
	iter := r.client.Scan(r.ctx, 0, "stats:"+sensorID+":*", 100).Iterator()
	var keys []string
	for iter.Next(r.ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan statistics keys: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	return r.client.Del(r.ctx, keys...).Err()
}

func (r *RedisClient) Close() error {
	return r.client.Close()
}
