// Package redisrepo persists the session record under a single Redis key,
// for deployments where several processes share one session.
package redisrepo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	apperrors "github.com/jrsteele09/rhr-session/internal/errors"
	"github.com/jrsteele09/rhr-session/session"
	"github.com/redis/go-redis/v9"
)

const DefaultKey = "rhr:session"

var _ session.Repo = (*Repo)(nil)

type Repo struct {
	rdb redis.Cmdable
	key string
}

// New stores the session under key (DefaultKey when empty).
func New(rdb redis.Cmdable, key string) *Repo {
	if key == "" {
		key = DefaultKey
	}
	return &Repo{rdb: rdb, key: key}
}

// NewClient creates a go-redis client from a URL (e.g. "redis://localhost:6379/0").
func NewClient(redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	return redis.NewClient(opts), nil
}

func (r *Repo) Load(ctx context.Context) (*session.Session, error) {
	data, err := r.rdb.Get(ctx, r.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, apperrors.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session %s: %w", r.key, err)
	}

	var s session.Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, apperrors.Wrapf(err, "failed to decode session %s: %w", r.key, apperrors.ErrSessionCorrupt)
	}
	return &s, nil
}

func (r *Repo) Save(ctx context.Context, s *session.Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := r.rdb.Set(ctx, r.key, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to write session %s: %w", r.key, err)
	}
	return nil
}
