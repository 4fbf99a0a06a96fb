package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// demo quota keys carry the date, so a new day simply starts a fresh key and
// the old one expires on its own.
const demoQuotaTTL = 48 * time.Hour

type redisCardStore struct {
	client *redis.Client
	clock  func() time.Time
}

// RedisConfig defines Redis connection settings.
type RedisConfig struct {
	Addr     string
	Username string
	Password string
	Database int
}

// NewRedisCardStore initializes a CardStore backed by Redis.
func NewRedisCardStore(cfg RedisConfig) (CardStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.Database,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &redisCardStore{client: client, clock: time.Now}, nil
}

func daySetKey(identity, date string) string {
	return fmt.Sprintf("cards:%s:%s", identity, date)
}

func demoQuotaKey(deviceHash, date string) string {
	return fmt.Sprintf("demo:quota:%s:%s", deviceHash, date)
}

func (s *redisCardStore) GetDaySet(ctx context.Context, identity, date string) (*DaySet, error) {
	raw, err := s.client.Get(ctx, daySetKey(identity, date)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get day set: %w", err)
	}

	var set DaySet
	if err := json.Unmarshal(raw, &set); err != nil {
		return nil, fmt.Errorf("decode day set: %w", err)
	}
	return &set, nil
}

func (s *redisCardStore) CreateDaySet(ctx context.Context, set *DaySet) (*DaySet, bool, error) {
	if set.CreatedAt.IsZero() {
		set.CreatedAt = s.clock()
	}
	raw, err := json.Marshal(set)
	if err != nil {
		return nil, false, fmt.Errorf("encode day set: %w", err)
	}

	created, err := s.client.SetNX(ctx, daySetKey(set.Identity, set.Date), raw, 0).Result()
	if err != nil {
		return nil, false, fmt.Errorf("create day set: %w", err)
	}
	if created {
		return set, true, nil
	}

	existing, err := s.GetDaySet(ctx, set.Identity, set.Date)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		// The winner's set was deleted between SetNX and Get. Treat our set
		// as lost rather than looping.
		return set, false, nil
	}
	return existing, false, nil
}

func (s *redisCardStore) DeleteDaySet(ctx context.Context, identity, date string) error {
	if err := s.client.Del(ctx, daySetKey(identity, date)).Err(); err != nil {
		return fmt.Errorf("delete day set: %w", err)
	}
	return nil
}

func (s *redisCardStore) UpdateCardQuestion(ctx context.Context, identity, date, cardID, question string, highlights []string) error {
	key := daySetKey(identity, date)

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}

		var set DaySet
		if err := json.Unmarshal(raw, &set); err != nil {
			return fmt.Errorf("decode day set: %w", err)
		}

		changed := false
		for i := range set.Cards {
			if set.Cards[i].ID == cardID {
				set.Cards[i].Question = question
				set.Cards[i].Highlights = highlights
				changed = true
				break
			}
		}
		if !changed {
			return nil
		}

		updated, err := json.Marshal(&set)
		if err != nil {
			return fmt.Errorf("encode day set: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, updated, 0)
			return nil
		})
		return err
	}, key)
	if err != nil {
		return fmt.Errorf("update card question: %w", err)
	}
	return nil
}

func (s *redisCardStore) ReserveDemoQuota(ctx context.Context, deviceHash, date string, ceiling int) (bool, error) {
	key := demoQuotaKey(deviceHash, date)
	count, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("reserve demo quota: %w", err)
	}
	if count == 1 {
		s.client.Expire(ctx, key, demoQuotaTTL)
	}
	if count > int64(ceiling) {
		// Leave the counter above the ceiling; the over-count is harmless
		// and the key expires with the day.
		return false, nil
	}
	return true, nil
}

func (s *redisCardStore) RefundDemoQuota(ctx context.Context, deviceHash, date string) error {
	if err := s.client.Decr(ctx, demoQuotaKey(deviceHash, date)).Err(); err != nil {
		return fmt.Errorf("refund demo quota: %w", err)
	}
	return nil
}
