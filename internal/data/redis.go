package data

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/devricklin/keyword-forwarder/internal/biz/domain"
	"github.com/devricklin/keyword-forwarder/internal/biz/repo"
)

const defaultRedisPrefix = "kwfwd"

// redisStore implements the fingerprint and cursor repositories on Redis.
// Each source owns a sorted set of fingerprints scored by forward time and
// a hash of fingerprint -> message id.
type redisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore connects to the Redis instance at redisURL
func NewRedisStore(ctx context.Context, redisURL, prefix string) (repo.Store, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, &domain.StoreError{Op: "open", Err: fmt.Errorf("failed to parse redis url: %w", err)}
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, &domain.StoreError{Op: "open", Err: fmt.Errorf("failed to ping redis: %w", err)}
	}
	return newRedisStoreWithClient(client, prefix), nil
}

func newRedisStoreWithClient(client *redis.Client, prefix string) *redisStore {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &redisStore{client: client, prefix: prefix}
}

func (s *redisStore) setKey(sourceID string) string {
	return s.prefix + ":fwd:" + sourceID
}

func (s *redisStore) msgKey(sourceID string) string {
	return s.prefix + ":msg:" + sourceID
}

func (s *redisStore) cursorKey(sourceID string) string {
	return s.prefix + ":cursor:" + sourceID
}

// Exists checks whether the pair has been recorded
func (s *redisStore) Exists(ctx context.Context, sourceID string, fp domain.Fingerprint) (bool, error) {
	_, err := s.client.ZScore(ctx, s.setKey(sourceID), string(fp)).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, &domain.StoreError{Op: "exists", Err: err}
	}
	return true, nil
}

// Record inserts a forwarded record, ignoring an existing pair
func (s *redisStore) Record(ctx context.Context, rec domain.ForwardedRecord) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAddNX(ctx, s.setKey(rec.SourceID), redis.Z{
			Score:  float64(rec.ForwardedAt.Unix()),
			Member: string(rec.Fingerprint),
		})
		pipe.HSetNX(ctx, s.msgKey(rec.SourceID), string(rec.Fingerprint), rec.MessageID)
		return nil
	})
	if err != nil {
		return &domain.StoreError{Op: "record", Err: err}
	}
	return nil
}

// ListRecent lists the newest records of a source
func (s *redisStore) ListRecent(ctx context.Context, sourceID string, limit int) ([]domain.ForwardedRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	members, err := s.client.ZRevRangeWithScores(ctx, s.setKey(sourceID), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, &domain.StoreError{Op: "list", Err: err}
	}
	if len(members) == 0 {
		return nil, nil
	}

	fields := make([]string, 0, len(members))
	for _, z := range members {
		fields = append(fields, fmt.Sprint(z.Member))
	}
	msgIDs, err := s.client.HMGet(ctx, s.msgKey(sourceID), fields...).Result()
	if err != nil {
		return nil, &domain.StoreError{Op: "list", Err: err}
	}

	records := make([]domain.ForwardedRecord, 0, len(members))
	for i, z := range members {
		rec := domain.ForwardedRecord{
			SourceID:    sourceID,
			Fingerprint: domain.Fingerprint(fields[i]),
			ForwardedAt: time.Unix(int64(z.Score), 0),
		}
		if i < len(msgIDs) {
			if id, ok := msgIDs[i].(string); ok {
				rec.MessageID = id
			}
		}
		records = append(records, rec)
	}
	return records, nil
}

// Count returns the number of records across all sources
func (s *redisStore) Count(ctx context.Context) (int64, error) {
	var total int64
	iter := s.client.Scan(ctx, 0, s.prefix+":fwd:*", 100).Iterator()
	for iter.Next(ctx) {
		n, err := s.client.ZCard(ctx, iter.Val()).Result()
		if err != nil {
			return 0, &domain.StoreError{Op: "count", Err: err}
		}
		total += n
	}
	if err := iter.Err(); err != nil {
		return 0, &domain.StoreError{Op: "count", Err: err}
	}
	return total, nil
}

// GetCursor returns the last scanned time of a source
func (s *redisStore) GetCursor(ctx context.Context, sourceID string) (time.Time, error) {
	until, err := s.client.Get(ctx, s.cursorKey(sourceID)).Int64()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, &domain.StoreError{Op: "get cursor", Err: err}
	}
	return time.Unix(until, 0), nil
}

// SetCursor stores the last scanned time of a source
func (s *redisStore) SetCursor(ctx context.Context, sourceID string, scannedUntil time.Time) error {
	if err := s.client.Set(ctx, s.cursorKey(sourceID), scannedUntil.Unix(), 0).Err(); err != nil {
		return &domain.StoreError{Op: "set cursor", Err: err}
	}
	return nil
}

// Close closes the client
func (s *redisStore) Close() error {
	return s.client.Close()
}
