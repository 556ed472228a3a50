package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"lootbox-backend/internal/config"
	"lootbox-backend/internal/models"

	"github.com/redis/go-redis/v9"
)

type RedisService struct {
	client *redis.Client
}

func NewRedisService(cfg *config.Config) (*RedisService, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisURL,
		Password: cfg.RedisPass,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisService{client: client}, nil
}

func (s *RedisService) Close() error {
	return s.client.Close()
}

func (s *RedisService) setJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	return s.client.Set(ctx, key, data, ttl).Err()
}

func (s *RedisService) getJSON(ctx context.Context, key string, v any) error {
	data, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrCacheMiss
	}
	if err != nil {
		return fmt.Errorf("failed to get %s: %w", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", key, err)
	}
	return nil
}

func (s *RedisService) StoreUserSession(ctx context.Context, session *models.UserSession, expiry time.Duration) error {
	key := fmt.Sprintf(KeyUserSession, session.Address, session.SessionID)
	return s.setJSON(ctx, key, session, expiry)
}

func (s *RedisService) GetUserSession(ctx context.Context, address, sessionID string) (*models.UserSession, error) {
	key := fmt.Sprintf(KeyUserSession, address, sessionID)

	var session models.UserSession
	if err := s.getJSON(ctx, key, &session); err != nil {
		return nil, err
	}

	session.LastAccessed = time.Now()
	updated, err := json.Marshal(session)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal session: %w", err)
	}
	if err := s.client.SetArgs(ctx, key, updated, redis.SetArgs{KeepTTL: true}).Err(); err != nil {
		return nil, fmt.Errorf("failed to touch session: %w", err)
	}

	return &session, nil
}

func (s *RedisService) DeleteUserSession(ctx context.Context, address, sessionID string) error {
	key := fmt.Sprintf(KeyUserSession, address, sessionID)
	return s.client.Del(ctx, key).Err()
}

func (s *RedisService) GetBalance(ctx context.Context, owner string) (*models.Balance, error) {
	var b models.Balance
	if err := s.getJSON(ctx, fmt.Sprintf(KeyBalance, owner), &b); err != nil {
		return nil, err
	}
	return &b, nil
}

func (s *RedisService) SaveBalance(ctx context.Context, b *models.Balance) error {
	return s.setJSON(ctx, fmt.Sprintf(KeyBalance, b.Owner), b, TTLReadModel)
}

func (s *RedisService) GetInventory(ctx context.Context, owner string) (*models.Inventory, error) {
	var inv models.Inventory
	if err := s.getJSON(ctx, fmt.Sprintf(KeyInventory, owner), &inv); err != nil {
		return nil, err
	}
	return &inv, nil
}

func (s *RedisService) SaveInventory(ctx context.Context, inv *models.Inventory) error {
	return s.setJSON(ctx, fmt.Sprintf(KeyInventory, inv.Owner), inv, TTLReadModel)
}

func (s *RedisService) GetLootBoxes(ctx context.Context, owner string) (*models.LootBoxList, error) {
	var list models.LootBoxList
	if err := s.getJSON(ctx, fmt.Sprintf(KeyLootBoxes, owner), &list); err != nil {
		return nil, err
	}
	return &list, nil
}

func (s *RedisService) SaveLootBoxes(ctx context.Context, list *models.LootBoxList) error {
	return s.setJSON(ctx, fmt.Sprintf(KeyLootBoxes, list.Owner), list, TTLReadModel)
}

// SaveOpening stores a settled session and keeps the owner's last 100 openings indexed.
func (s *RedisService) SaveOpening(ctx context.Context, rec *models.OpeningRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal opening: %w", err)
	}

	userKey := fmt.Sprintf(KeyUserOpenings, rec.Owner)

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, fmt.Sprintf(KeyOpening, rec.SessionID), data, TTLOpening)
	pipe.ZAdd(ctx, userKey, redis.Z{
		Score:  float64(rec.EndedAt.UnixMilli()),
		Member: rec.SessionID,
	})
	pipe.ZRemRangeByRank(ctx, userKey, 0, -(MaxOpeningHistory + 1))
	pipe.Expire(ctx, userKey, TTLOpening)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save opening: %w", err)
	}
	return nil
}

// GetOpeningHistory returns the owner's most recent openings, newest first.
func (s *RedisService) GetOpeningHistory(ctx context.Context, owner string, limit int64) ([]*models.OpeningRecord, error) {
	if limit <= 0 || limit > MaxOpeningHistory {
		limit = DefaultHistorySize
	}

	ids, err := s.client.ZRevRange(ctx, fmt.Sprintf(KeyUserOpenings, owner), 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get opening IDs: %w", err)
	}
	if len(ids) == 0 {
		return []*models.OpeningRecord{}, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.Get(ctx, fmt.Sprintf(KeyOpening, id))
	}

	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("pipeline execution failed: %w", err)
	}

	records := make([]*models.OpeningRecord, 0, len(ids))
	for _, cmd := range cmds {
		data, err := cmd.Bytes()
		if err != nil {
			continue
		}

		var rec models.OpeningRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			continue
		}
		records = append(records, &rec)
	}

	return records, nil
}

var rateLimitScript = redis.NewScript(`
	local count = redis.call("INCR", KEYS[1])
	if count == 1 then
		redis.call("PEXPIRE", KEYS[1], ARGV[1])
	end
	return count
`)

func (s *RedisService) CheckRateLimit(ctx context.Context, owner, action string, limit int, window time.Duration) (bool, error) {
	key := fmt.Sprintf(KeyRateLimit, owner, action)

	count, err := rateLimitScript.Run(ctx, s.client, []string{key}, window.Milliseconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("failed to check rate limit: %w", err)
	}

	return count <= int64(limit), nil
}

func (s *RedisService) ClearRateLimit(ctx context.Context, owner, action string) error {
	return s.client.Del(ctx, fmt.Sprintf(KeyRateLimit, owner, action)).Err()
}
