package progress

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shpitdev/email-finder/pkg/pipeline/schema"
	"github.com/sirupsen/logrus"
)

// Record is one processed entry. Email is nil when no address was verified.
type Record struct {
	Name      string    `json:"name"`
	Domain    string    `json:"domain"`
	Email     *string   `json:"email"`
	Found     bool      `json:"found"`
	Timestamp time.Time `json:"timestamp"`
}

func (r Record) Key() schema.Key {
	return schema.NewKey(r.Domain, r.Name)
}

// Set holds the keys of processed entries.
type Set map[schema.Key]struct{}

func (s Set) Has(k schema.Key) bool {
	_, ok := s[k]
	return ok
}

func (s Set) Add(k schema.Key) {
	s[k] = struct{}{}
}

// Store is an append-only log of processed entries. Implementations assume a single writer.
type Store interface {
	Load(ctx context.Context) (Set, error)
	Append(ctx context.Context, r Record) error
	Close() error
}

const (
	BackendFile     = "file"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

type Config struct {
	Backend string

	// File backend.
	Path string

	// Redis backend.
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisKey      string

	// Postgres backend.
	DatabaseURL string
}

// Open constructs the configured backend.
func Open(ctx context.Context, cfg Config, log logrus.FieldLogger) (Store, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	var (
		s   Store
		err error
	)
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", BackendFile:
		s, err = NewFileStore(cfg.Path, log)
	case BackendRedis:
		s, err = OpenRedis(ctx, RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Key:      cfg.RedisKey,
		}, log)
	case BackendPostgres:
		s, err = OpenPostgres(ctx, cfg.DatabaseURL)
	default:
		return nil, fmt.Errorf("unknown progress backend %q (expected file, redis or postgres)", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}
