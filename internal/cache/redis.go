package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/emrgen/docview/internal/compress"
	redis "github.com/redis/go-redis/v9"
)

var _ Cache = (*Redis)(nil)

type Redis struct {
	client  *redis.Client
	encoder compress.Compress
}

func NewRedis(addr, password string, db int, encoder compress.Compress) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
		Protocol: 2, // Connection protocol
	})

	return &Redis{client: client, encoder: encoder}
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Redis) Get(ctx context.Context, key string, v any) (bool, error) {
	res := r.client.Get(ctx, key)
	if res.Err() != nil {
		if errors.Is(res.Err(), redis.Nil) {
			return false, nil
		}
		return false, res.Err()
	}

	buf, err := res.Bytes()
	if err != nil {
		return false, err
	}

	data, err := r.encoder.Decode(buf)
	if err != nil {
		return false, err
	}

	err = json.Unmarshal(data, v)
	if err != nil {
		return false, err
	}

	return true, nil
}

func (r *Redis) Set(ctx context.Context, key string, v any, ttl time.Duration) error {
	value, err := json.Marshal(v)
	if err != nil {
		return err
	}

	data, err := r.encoder.Encode(value)
	if err != nil {
		return err
	}

	return r.client.Set(ctx, key, data, ttl).Err()
}

func (r *Redis) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	return r.client.Del(ctx, keys...).Err()
}

func (r *Redis) Close() error {
	return r.client.Close()
}
