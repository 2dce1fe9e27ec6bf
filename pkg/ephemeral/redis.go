/*
 * Copyright (C) 2025-2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package ephemeral

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"k8s.io/klog/v2"

	"github.com/Aschie4589/QuantumHiveServer/pkg/config"
)

type redisStore struct {
	client *redis.Client
}

// NewRedisStore connects to the Redis instance named in the configuration
// and verifies the connection before returning.
func NewRedisStore() (Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     config.GetRedisAddress(),
		Password: config.GetRedisPassword(),
		DB:       config.GetRedisDB(),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	klog.InfoS("connected to redis", "address", config.GetRedisAddress(), "db", config.GetRedisDB())
	return &redisStore{client: client}, nil
}

func (s *redisStore) RPush(ctx context.Context, key string, values ...string) error {
	if len(values) == 0 {
		return nil
	}
	args := make([]interface{}, 0, len(values))
	for _, v := range values {
		args = append(args, v)
	}
	return s.client.RPush(ctx, key, args...).Err()
}

func (s *redisStore) LPop(ctx context.Context, key string) (string, error) {
	value, err := s.client.LPop(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	return value, err
}

func (s *redisStore) LRem(ctx context.Context, key string, count int64, value string) (int64, error) {
	return s.client.LRem(ctx, key, count, value).Result()
}

func (s *redisStore) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	return s.client.LRange(ctx, key, start, stop).Result()
}

func (s *redisStore) LLen(ctx context.Context, key string) (int64, error) {
	return s.client.LLen(ctx, key).Result()
}

func (s *redisStore) SetEx(ctx context.Context, key, value string, ttl time.Duration) error {
	return s.client.SetEx(ctx, key, value, ttl).Err()
}

func (s *redisStore) Get(ctx context.Context, key string) (string, error) {
	value, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	return value, err
}

func (s *redisStore) GetDel(ctx context.Context, key string) (string, error) {
	value, err := s.client.GetDel(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	return value, err
}

func (s *redisStore) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return s.client.Del(ctx, keys...).Err()
}

func (s *redisStore) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, key).Result()
	return n > 0, err
}

func (s *redisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *redisStore) Close() error {
	return s.client.Close()
}
