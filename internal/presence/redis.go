package presence

import (
	"context"
	"strconv"

	"github.com/go-redis/redis/v8"
)

const keyPrefix = "presence:lobby:"

// Redis is the shared tracker for multi-process deployments: every server
// process sees the same connection sets. SADD/SREM are naturally idempotent.
type Redis struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func (r *Redis) Add(ctx context.Context, code string, userID uint) error {
	return r.client.SAdd(ctx, keyPrefix+code, userID).Err()
}

func (r *Redis) Remove(ctx context.Context, code string, userID uint) error {
	return r.client.SRem(ctx, keyPrefix+code, userID).Err()
}

func (r *Redis) Online(ctx context.Context, code string) ([]uint, error) {
	members, err := r.client.SMembers(ctx, keyPrefix+code).Result()
	if err != nil {
		return nil, err
	}

	ids := make([]uint, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseUint(m, 10, 32)
		if err != nil {
			continue
		}
		ids = append(ids, uint(id))
	}
	return ids, nil
}
