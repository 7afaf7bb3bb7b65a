package sink

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/nerrad567/gray-logic-enocean/internal/bridges/enocean"
	"github.com/nerrad567/gray-logic-enocean/internal/infrastructure/redis"
)

// redisWriteTimeout bounds one cache update.
const redisWriteTimeout = 2 * time.Second

// RedisSink keeps the last value of every point in a hash
// ({prefix}:point:{name}) and the set of known names in {prefix}:points.
type RedisSink struct {
	client *redis.Client
}

// NewRedisSink returns a sink writing through client.
func NewRedisSink(client *redis.Client) *RedisSink {
	return &RedisSink{client: client}
}

// Publish implements enocean.Publisher.
func (s *RedisSink) Publish(name string, value float64) error {
	return s.write(name, map[string]any{
		"value":      strconv.FormatFloat(value, 'g', -1, 64),
		"updated_at": time.Now().UTC().Format(time.RFC3339Nano),
	})
}

// PublishSample implements enocean.SamplePublisher.
func (s *RedisSink) PublishSample(name string, sample enocean.ValueSample) error {
	ts := sample.ReadAt
	if ts.IsZero() {
		ts = time.Now()
	}
	return s.write(name, map[string]any{
		"value":       strconv.FormatFloat(sample.Value, 'g', -1, 64),
		"updated_at":  ts.UTC().Format(time.RFC3339Nano),
		"enocean_id":  enocean.FormatID(sample.ID),
		"profile":     sample.Profile,
		"source":      sample.SourceName,
		"description": sample.Description,
	})
}

// write updates the hash and the index in one MULTI/EXEC.
func (s *RedisSink) write(name string, fields map[string]any) error {
	ctx, cancel := context.WithTimeout(context.Background(), redisWriteTimeout)
	defer cancel()

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, s.client.Key("point", name), fields)
	pipe.SAdd(ctx, s.client.Key("points"), name)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis update for %s: %w", name, err)
	}
	return nil
}

// LastValue returns the cached value of name.
func (s *RedisSink) LastValue(ctx context.Context, name string) (float64, error) {
	raw, err := s.client.HGet(ctx, s.client.Key("point", name), "value").Result()
	if err != nil {
		return 0, fmt.Errorf("reading %s: %w", name, err)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing cached value for %s: %w", name, err)
	}
	return v, nil
}

// PointNames returns every name that has been cached.
func (s *RedisSink) PointNames(ctx context.Context) ([]string, error) {
	return s.client.SMembers(ctx, s.client.Key("points")).Result()
}
