// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package resultstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// KVBackend is the distributed-KV tier (spec: "kv", capped at 1 MiB per
// object by SelectTier's routing, not enforced here — callers are trusted
// to route by size before calling Put).
type KVBackend struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewKVBackend returns a Backend storing objects as Redis strings under
// prefix, with ttl applied to every Put (0 disables expiry).
func NewKVBackend(client *redis.Client, prefix string, ttl time.Duration) *KVBackend {
	return &KVBackend{client: client, prefix: prefix, ttl: ttl}
}

func (k *KVBackend) redisKey(key string) string {
	return fmt.Sprintf("%s%s", k.prefix, key)
}

func (k *KVBackend) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	rk := k.redisKey(key)
	if err := k.client.Set(ctx, rk, data, k.ttl).Err(); err != nil {
		return "", err
	}
	return "kv://" + key, nil
}

func (k *KVBackend) Get(ctx context.Context, uri string) ([]byte, error) {
	key := strings.TrimPrefix(uri, "kv://")
	data, err := k.client.Get(ctx, k.redisKey(key)).Bytes()
	if err == redis.Nil {
		return nil, fmt.Errorf("resultstore: kv object not found: %s", key)
	}
	return data, err
}

func (k *KVBackend) Delete(ctx context.Context, uri string) error {
	key := strings.TrimPrefix(uri, "kv://")
	return k.client.Del(ctx, k.redisKey(key)).Err()
}

func (k *KVBackend) List(ctx context.Context, prefix string) ([]string, error) {
	keys, err := k.client.Keys(ctx, k.redisKey(prefix)+"*").Result()
	if err != nil {
		return nil, err
	}
	out := make([]string, len(keys))
	for i, rk := range keys {
		out[i] = "kv://" + strings.TrimPrefix(rk, k.prefix)
	}
	return out, nil
}

var _ Backend = (*KVBackend)(nil)
