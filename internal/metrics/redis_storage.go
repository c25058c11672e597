package metrics

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStorage persists history buckets in Redis sorted sets scored by
// bucket start time.
type RedisStorage struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStorage connects to Redis and verifies the connection.
func NewRedisStorage(url string) (*RedisStorage, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return &RedisStorage{
		client: client,
		prefix: "logscout:metrics:",
		ttl:    24 * time.Hour,
	}, nil
}

// member encodes the timestamp with the value so that equal values in
// different buckets stay distinct set members.
func member(dp DataPoint) string {
	return strconv.FormatInt(dp.Timestamp.Unix(), 10) + ":" + strconv.FormatFloat(dp.Value, 'f', 4, 64)
}

func parseMember(s string) (float64, bool) {
	for i := 0; i < len(s); i++ {
		if s[i] == ':' {
			v, err := strconv.ParseFloat(s[i+1:], 64)
			return v, err == nil
		}
	}
	return 0, false
}

// SaveDataPoint stores one bucket and trims entries older than the TTL.
func (rs *RedisStorage) SaveDataPoint(ctx context.Context, metric string, dp DataPoint) error {
	return rs.SaveBatch(ctx, metric, []DataPoint{dp})
}

// SaveBatch stores several buckets in one pipeline.
func (rs *RedisStorage) SaveBatch(ctx context.Context, metric string, points []DataPoint) error {
	if len(points) == 0 {
		return nil
	}

	key := rs.prefix + metric
	members := make([]redis.Z, len(points))
	for i, dp := range points {
		members[i] = redis.Z{Score: float64(dp.Timestamp.Unix()), Member: member(dp)}
	}

	pipe := rs.client.Pipeline()
	pipe.ZAdd(ctx, key, members...)
	minScore := time.Now().Add(-rs.ttl).Unix()
	pipe.ZRemRangeByScore(ctx, key, "-inf", "("+strconv.FormatInt(minScore, 10))

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("saving data points: %w", err)
	}
	return nil
}

// LoadHistory loads buckets starting at or after since, oldest first.
func (rs *RedisStorage) LoadHistory(ctx context.Context, metric string, since time.Time) ([]DataPoint, error) {
	results, err := rs.client.ZRangeByScoreWithScores(ctx, rs.prefix+metric, &redis.ZRangeBy{
		Min: strconv.FormatInt(since.Unix(), 10),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}

	points := make([]DataPoint, 0, len(results))
	for _, z := range results {
		s, ok := z.Member.(string)
		if !ok {
			continue
		}
		value, ok := parseMember(s)
		if !ok {
			continue
		}
		points = append(points, DataPoint{Timestamp: time.Unix(int64(z.Score), 0), Value: value})
	}
	return points, nil
}

// MetricNames lists the persisted series.
func (rs *RedisStorage) MetricNames(ctx context.Context) ([]string, error) {
	var names []string
	iter := rs.client.Scan(ctx, 0, rs.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		names = append(names, iter.Val()[len(rs.prefix):])
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("listing metrics: %w", err)
	}
	return names, nil
}

// DeleteMetric removes a persisted series.
func (rs *RedisStorage) DeleteMetric(ctx context.Context, metric string) error {
	if err := rs.client.Del(ctx, rs.prefix+metric).Err(); err != nil {
		return fmt.Errorf("deleting metric: %w", err)
	}
	return nil
}

// SetTTL sets how long buckets are retained.
func (rs *RedisStorage) SetTTL(ttl time.Duration) {
	rs.ttl = ttl
}

// Close closes the Redis connection.
func (rs *RedisStorage) Close() error {
	return rs.client.Close()
}
