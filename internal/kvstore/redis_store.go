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

package kvstore

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// redisStore backs Store with a Redis list per key, guarding AppendAt with
// WATCH/MULTI so a length check and the append it gates commit atomically.
type redisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore returns a Store backed by client, namespacing all keys
// under prefix (e.g. "noetl:loopstate:").
func NewRedisStore(client *redis.Client, prefix string) Store {
	return &redisStore{client: client, prefix: prefix}
}

func (r *redisStore) redisKey(key string) string {
	return fmt.Sprintf("%s%s", r.prefix, key)
}

func (r *redisStore) AppendAt(ctx context.Context, key string, index int, value []byte) error {
	rk := r.redisKey(key)
	txf := func(tx *redis.Tx) error {
		n, err := tx.LLen(ctx, rk).Result()
		if err != nil {
			return err
		}
		if int(n) != index {
			return ErrIndexConflict
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.RPush(ctx, rk, value)
			return nil
		})
		return err
	}

	err := r.client.Watch(ctx, txf, rk)
	if err == redis.TxFailedErr {
		return ErrIndexConflict
	}
	return err
}

func (r *redisStore) Get(ctx context.Context, key string) ([][]byte, error) {
	vals, err := r.client.LRange(ctx, r.redisKey(key), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([][]byte, len(vals))
	for i, v := range vals {
		out[i] = []byte(v)
	}
	return out, nil
}

func (r *redisStore) Len(ctx context.Context, key string) (int, error) {
	n, err := r.client.LLen(ctx, r.redisKey(key)).Result()
	return int(n), err
}

func (r *redisStore) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.redisKey(key)).Err()
}

var _ Store = (*redisStore)(nil)
