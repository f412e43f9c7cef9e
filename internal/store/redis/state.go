// Package redis persists the account as a JSON document under one Redis key.
//
// Update is an optimistic transaction: WATCH the key, read, apply, and write
// in MULTI/EXEC. A concurrent writer aborts the EXEC and the update is retried,
// so several terminals can share one account without lost updates.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	"market-terminal/internal/model"
	"market-terminal/internal/store"
)

const defaultKey = "market-terminal:account"

// Config configures the Redis state store.
type Config struct {
	Addr       string `yaml:"addr" default:"localhost:6379"`
	Password   string `yaml:"password"`
	DB         int    `yaml:"db"`
	Key        string `yaml:"key" default:"market-terminal:account"`
	MaxRetries int    `yaml:"max_retries" default:"10" validate:"min=1"`
}

// ErrConflict is returned when Update keeps losing the optimistic race.
var ErrConflict = errors.New("redis store: too many concurrent updates")

// Store is a Redis-backed state store.
type Store struct {
	client     *goredis.Client
	key        string
	maxRetries int
	log        zerolog.Logger
}

// Client returns the underlying Redis client for health checks.
func (s *Store) Client() *goredis.Client { return s.client }

// New creates a store and pings the server.
func New(cfg Config, log zerolog.Logger) (*Store, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Info().Str("addr", cfg.Addr).Msg("redis connected")
	return NewWithClient(client, cfg.Key, cfg.MaxRetries, log), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *goredis.Client, key string, maxRetries int, log zerolog.Logger) *Store {
	if key == "" {
		key = defaultKey
	}
	if maxRetries < 1 {
		maxRetries = 10
	}
	return &Store{client: client, key: key, maxRetries: maxRetries, log: log}
}

func (s *Store) Load(ctx context.Context) (*model.Account, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return model.NewAccount(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis store: get %s: %w", s.key, err)
	}
	return store.Decode(data)
}

func (s *Store) Save(ctx context.Context, acct *model.Account) error {
	data, err := store.Encode(acct)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.key, data, 0).Err(); err != nil {
		return fmt.Errorf("redis store: set %s: %w", s.key, err)
	}
	return nil
}

func (s *Store) Update(ctx context.Context, fn func(*model.Account) error) error {
	txf := func(tx *goredis.Tx) error {
		data, err := tx.Get(ctx, s.key).Bytes()
		if err != nil && !errors.Is(err, goredis.Nil) {
			return fmt.Errorf("redis store: get %s: %w", s.key, err)
		}
		acct, err := store.Decode(data)
		if err != nil {
			return err
		}
		next, err := store.Apply(acct, fn)
		if err != nil {
			return err
		}
		out, err := store.Encode(next)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, s.key, out, 0)
			return nil
		})
		return err
	}

	for i := 0; i < s.maxRetries; i++ {
		err := s.client.Watch(ctx, txf, s.key)
		if err == nil {
			return nil
		}
		if !errors.Is(err, goredis.TxFailedErr) {
			return err
		}
		s.log.Debug().Int("attempt", i+1).Msg("account update conflict, retrying")
	}
	return ErrConflict
}

func (s *Store) Close() error { return s.client.Close() }
