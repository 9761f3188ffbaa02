// Package redis provides a session store on Redis, for gateway fleets
// where any node must be able to resolve a device session created by
// another node. Session records and the IMEI index are plain string keys
// with native Redis expiry.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gomodule/redigo/redis"

	"github.com/wheelseye/devicegateway/pkg/session"
)

// Config configures the Redis backend.
type Config struct {
	Addr     string
	Password string
	DB       int

	MaxIdle      int
	MaxActive    int
	IdleTimeout  time.Duration
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Store implements session.Store on a redigo connection pool.
type Store struct {
	pool *redis.Pool
}

// New builds the connection pool and verifies connectivity with a PING.
func New(cfg Config) (*Store, error) {
	if cfg.MaxIdle <= 0 {
		cfg.MaxIdle = 8
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 5 * time.Minute
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 5 * time.Second
	}

	pool := &redis.Pool{
		MaxIdle:     cfg.MaxIdle,
		MaxActive:   cfg.MaxActive,
		IdleTimeout: cfg.IdleTimeout,
		Wait:        cfg.MaxActive > 0,
		Dial: func() (redis.Conn, error) {
			opts := []redis.DialOption{
				redis.DialConnectTimeout(cfg.DialTimeout),
				redis.DialReadTimeout(cfg.ReadTimeout),
				redis.DialWriteTimeout(cfg.WriteTimeout),
				redis.DialDatabase(cfg.DB),
			}
			if cfg.Password != "" {
				opts = append(opts, redis.DialPassword(cfg.Password))
			}
			return redis.Dial("tcp", cfg.Addr, opts...)
		},
		TestOnBorrow: func(c redis.Conn, t time.Time) error {
			if time.Since(t) < time.Minute {
				return nil
			}
			_, err := c.Do("PING")
			return err
		},
	}

	conn := pool.Get()
	defer conn.Close()
	if _, err := conn.Do("PING"); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", cfg.Addr, err)
	}

	return &Store{pool: pool}, nil
}

func keySession(id string) string {
	return session.SessionKeyPrefix + id
}

func keyIMEI(imei string) string {
	return session.IMEIIndexKeyPrefix + imei
}

// ttlSeconds converts a TTL for SET EX, rounding sub-second values up so a
// positive TTL never becomes an invalid zero expiry.
func ttlSeconds(ttl time.Duration) int64 {
	secs := int64(ttl / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}

func (s *Store) PutSession(ctx context.Context, ds *session.DeviceSession, ttl time.Duration) error {
	data, err := json.Marshal(ds)
	if err != nil {
		return fmt.Errorf("encoding session %s: %w", ds.ID, err)
	}

	conn, err := s.pool.GetContext(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	_, err = redis.DoContext(conn, ctx, "SET", keySession(ds.ID), data, "EX", ttlSeconds(ttl))
	return err
}

func (s *Store) GetSession(ctx context.Context, id string) (*session.DeviceSession, error) {
	conn, err := s.pool.GetContext(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	data, err := redis.Bytes(redis.DoContext(conn, ctx, "GET", keySession(id)))
	if errors.Is(err, redis.ErrNil) {
		return nil, session.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var ds session.DeviceSession
	if err := json.Unmarshal(data, &ds); err != nil {
		return nil, fmt.Errorf("decoding session %s: %w", id, err)
	}
	return &ds, nil
}

func (s *Store) DeleteSession(ctx context.Context, id string) error {
	conn, err := s.pool.GetContext(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	_, err = redis.DoContext(conn, ctx, "DEL", keySession(id))
	return err
}

func (s *Store) PutIMEIIndex(ctx context.Context, imei, sessionID string, ttl time.Duration) error {
	conn, err := s.pool.GetContext(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	_, err = redis.DoContext(conn, ctx, "SET", keyIMEI(imei), sessionID, "EX", ttlSeconds(ttl))
	return err
}

func (s *Store) GetIMEIIndex(ctx context.Context, imei string) (string, error) {
	conn, err := s.pool.GetContext(ctx)
	if err != nil {
		return "", err
	}
	defer conn.Close()

	id, err := redis.String(redis.DoContext(conn, ctx, "GET", keyIMEI(imei)))
	if errors.Is(err, redis.ErrNil) {
		return "", session.ErrNotFound
	}
	return id, err
}

func (s *Store) DeleteIMEIIndex(ctx context.Context, imei string) error {
	conn, err := s.pool.GetContext(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	_, err = redis.DoContext(conn, ctx, "DEL", keyIMEI(imei))
	return err
}

func (s *Store) ListSessions(ctx context.Context) ([]*session.DeviceSession, error) {
	conn, err := s.pool.GetContext(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	var keys []any
	cursor := int64(0)
	for {
		values, err := redis.Values(redis.DoContext(conn, ctx,
			"SCAN", cursor, "MATCH", session.SessionKeyPrefix+"*", "COUNT", 256))
		if err != nil {
			return nil, err
		}

		if cursor, err = redis.Int64(values[0], nil); err != nil {
			return nil, err
		}
		batch, err := redis.Strings(values[1], nil)
		if err != nil {
			return nil, err
		}
		for _, k := range batch {
			keys = append(keys, k)
		}
		if cursor == 0 {
			break
		}
	}

	if len(keys) == 0 {
		return nil, nil
	}

	blobs, err := redis.ByteSlices(redis.DoContext(conn, ctx, "MGET", keys...))
	if err != nil {
		return nil, err
	}

	out := make([]*session.DeviceSession, 0, len(blobs))
	for _, blob := range blobs {
		if blob == nil {
			// Expired between SCAN and MGET.
			continue
		}
		var ds session.DeviceSession
		if err := json.Unmarshal(blob, &ds); err != nil {
			continue
		}
		out = append(out, &ds)
	}
	return out, nil
}

func (s *Store) Close() error {
	return s.pool.Close()
}
