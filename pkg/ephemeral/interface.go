/*
 * Copyright (C) 2025-2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package ephemeral

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a key does not exist, has expired, or a list
// is empty.
var ErrNotFound = errors.New("ephemeral: not found")

// Store is the volatile side of the coordinator state: the dispatch queue,
// the completion inbox and single-use transfer tokens. Everything in it can
// be rebuilt from the database, so implementations do not need durability.
type Store interface {
	// RPush appends values to the tail of a list.
	RPush(ctx context.Context, key string, values ...string) error
	// LPop removes and returns the head of a list. Returns ErrNotFound when
	// the list is empty or missing.
	LPop(ctx context.Context, key string) (string, error)
	// LRem removes occurrences of value from a list. A positive count removes
	// at most that many entries from the head, zero removes all of them.
	// Returns the number of removed entries.
	LRem(ctx context.Context, key string, count int64, value string) (int64, error)
	// LRange returns the list entries between start and stop inclusive,
	// with negative indexes counting from the tail.
	LRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	// LLen returns the length of a list.
	LLen(ctx context.Context, key string) (int64, error)

	// SetEx stores a value under key with a time to live.
	SetEx(ctx context.Context, key, value string, ttl time.Duration) error
	// Get returns the value stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)
	// GetDel returns the value stored under key and removes it in the same
	// step, or ErrNotFound. The removal is what makes single-use tokens
	// single use.
	GetDel(ctx context.Context, key string) (string, error)
	// Del removes keys. Missing keys are not an error.
	Del(ctx context.Context, keys ...string) error
	// Exists reports whether key is present and unexpired.
	Exists(ctx context.Context, key string) (bool, error)

	Ping(ctx context.Context) error
	Close() error
}
