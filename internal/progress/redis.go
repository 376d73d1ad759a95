package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const DefaultRedisKey = "email-finder:progress"

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Key      string
}

// RedisStore appends records as JSON strings to a Redis list.
type RedisStore struct {
	client *redis.Client
	key    string
	log    logrus.FieldLogger
}

var _ Store = (*RedisStore)(nil)

// OpenRedis connects and pings the server.
func OpenRedis(ctx context.Context, cfg RedisConfig, log logrus.FieldLogger) (*RedisStore, error) {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis %s: %w", addr, err)
	}
	return NewRedisStore(client, cfg.Key, log), nil
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client *redis.Client, key string, log logrus.FieldLogger) *RedisStore {
	if strings.TrimSpace(key) == "" {
		key = DefaultRedisKey
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &RedisStore{client: client, key: key, log: log.WithField("progress", "redis:"+key)}
}

func (s *RedisStore) Load(ctx context.Context) (Set, error) {
	items, err := s.client.LRange(ctx, s.key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read progress list: %w", err)
	}
	set := make(Set, len(items))
	skipped := 0
	for _, item := range items {
		var r Record
		if err := json.Unmarshal([]byte(item), &r); err != nil {
			skipped++
			continue
		}
		set.Add(r.Key())
	}
	if skipped > 0 {
		s.log.WithField("skipped", skipped).Warn("ignored corrupt progress entries")
	}
	return set, nil
}

func (s *RedisStore) Append(ctx context.Context, r Record) error {
	b, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode progress: %w", err)
	}
	if err := s.client.RPush(ctx, s.key, b).Err(); err != nil {
		return fmt.Errorf("append progress: %w", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
