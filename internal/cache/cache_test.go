/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) *RedisCache {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCache(client)
}

func TestSetAndGet(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	err := c.Set(ctx, "threebot:7", "ed25519:abcd", 10*time.Minute)
	require.NoError(t, err)

	var value string
	found, err := c.Get(ctx, "threebot:7", &value)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "ed25519:abcd", value)
}

func TestGetMiss(t *testing.T) {
	c := newTestCache(t)

	var value string
	found, err := c.Get(context.Background(), "threebot:missing", &value)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Empty(t, value)
}

func TestOnce(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	calls := 0
	fetch := func() (interface{}, error) {
		calls++
		return "ed25519:beef", nil
	}

	var first, second string
	require.NoError(t, c.Once(ctx, "threebot:9", &first, time.Minute, fetch))
	require.NoError(t, c.Once(ctx, "threebot:9", &second, time.Minute, fetch))

	assert.Equal(t, "ed25519:beef", first)
	assert.Equal(t, "ed25519:beef", second)
	assert.Equal(t, 1, calls)
}

func TestOnce_FetchErrorNotCached(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	var value string
	err := c.Once(ctx, "threebot:3", &value, time.Minute, func() (interface{}, error) {
		return nil, errors.New("wallet unavailable")
	})
	assert.EqualError(t, err, "wallet unavailable")

	found, err := c.Get(ctx, "threebot:3", &value)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestDelete(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "threebot:7", "ed25519:abcd", time.Minute))
	require.NoError(t, c.Delete(ctx, "threebot:7"))

	var value string
	found, err := c.Get(ctx, "threebot:7", &value)
	require.NoError(t, err)
	assert.False(t, found)

	assert.NoError(t, c.Delete(ctx, "threebot:never-set"))
}
