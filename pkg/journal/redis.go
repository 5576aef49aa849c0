package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/matst80/dataview-sample/pkg/common/jsoncompat"
	"github.com/redis/go-redis/v9"
)

const defaultTTL = 24 * time.Hour

// RedisRecorder appends entries to a per run list and keeps the latest
// definition of every view it sees.
type RedisRecorder struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisRecorder(addr, password string, db int, ttl time.Duration) *RedisRecorder {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &RedisRecorder{client: rdb, ttl: ttl}
}

func RunKey(runID string) string {
	return fmt.Sprintf("dataview:journal:%s", runID)
}

func ViewKey(viewID string) string {
	return fmt.Sprintf("dataview:view:%s:latest", viewID)
}

func (r *RedisRecorder) Record(ctx context.Context, entry Entry) error {
	data, err := jsoncompat.Marshal(entry)
	if err != nil {
		return err
	}
	pipe := r.client.TxPipeline()
	key := RunKey(entry.RunId)
	pipe.RPush(ctx, key, data)
	pipe.Expire(ctx, key, r.ttl)
	if entry.View != nil {
		view, err := jsoncompat.Marshal(entry.View)
		if err != nil {
			return err
		}
		pipe.Set(ctx, ViewKey(entry.View.Id), view, r.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record step %d in redis: %w", entry.Step, err)
	}
	return nil
}

func (r *RedisRecorder) Entries(ctx context.Context, runID string) ([]Entry, error) {
	raw, err := r.client.LRange(ctx, RunKey(runID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(raw))
	for _, item := range raw {
		var e Entry
		if err := jsoncompat.Unmarshal([]byte(item), &e); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (r *RedisRecorder) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisRecorder) Close() error {
	return r.client.Close()
}
