// Package cached decorates a recordstore.Store with a Redis read-through cache.
// Keys carry a per-model version that every write bumps, so a create or update
// invalidates all cached reads of that model at once.
package cached

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/mobilsoft/backoffice/internal/query"
	"github.com/mobilsoft/backoffice/internal/recordstore"
)

const (
	keyPrefix = "backoffice:rs"
	// BumpChannel carries "<model>:<version>" after every write.
	BumpChannel = "backoffice.rs.bump"
)

// Store caches Count, Fetch and ReadByID results of the wrapped store.
type Store struct {
	next   recordstore.Store
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
	group  singleflight.Group
}

var _ recordstore.Store = (*Store)(nil)

// New wraps next. A nil client disables caching.
func New(next recordstore.Store, client *redis.Client, ttl time.Duration, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{next: next, client: client, ttl: ttl, logger: logger}
}

// Count implements recordstore.Store.
func (s *Store) Count(ctx context.Context, model string, where query.Expr) (int, error) {
	var n int
	err := s.cached(ctx, model, []string{"count", where.Key()}, &n, func(ctx context.Context) (any, error) {
		return s.next.Count(ctx, model, where)
	})
	return n, err
}

// Fetch implements recordstore.Store.
func (s *Store) Fetch(ctx context.Context, model string, where query.Expr, fields []string, opts recordstore.Options) ([]map[string]any, error) {
	var rows []map[string]any
	parts := []string{
		"fetch", where.Key(), strings.Join(fields, ","),
		strconv.Itoa(opts.Limit), strconv.Itoa(opts.Offset), opts.Order,
	}
	err := s.cached(ctx, model, parts, &rows, func(ctx context.Context) (any, error) {
		return s.next.Fetch(ctx, model, where, fields, opts)
	})
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		restoreNumbers(r)
	}
	return rows, nil
}

// ReadByID implements recordstore.Store.
func (s *Store) ReadByID(ctx context.Context, model string, ids []int64, fields []string) ([]map[string]any, error) {
	var rows []map[string]any
	idParts := make([]string, len(ids))
	for i, id := range ids {
		idParts[i] = strconv.FormatInt(id, 10)
	}
	err := s.cached(ctx, model, []string{"read", strings.Join(idParts, ","), strings.Join(fields, ",")}, &rows, func(ctx context.Context) (any, error) {
		return s.next.ReadByID(ctx, model, ids, fields)
	})
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		restoreNumbers(r)
	}
	return rows, nil
}

// Create writes through and invalidates the model.
func (s *Store) Create(ctx context.Context, model string, values map[string]any) (int64, error) {
	id, err := s.next.Create(ctx, model, values)
	if err != nil {
		return 0, err
	}
	s.Bump(ctx, model)
	return id, nil
}

// Update writes through and invalidates the model.
func (s *Store) Update(ctx context.Context, model string, ids []int64, values map[string]any) error {
	if err := s.next.Update(ctx, model, ids, values); err != nil {
		return err
	}
	s.Bump(ctx, model)
	return nil
}

// Bump invalidates every cached read of model. Failures are logged only; the
// worst outcome is a stale read until the TTL expires.
func (s *Store) Bump(ctx context.Context, model string) {
	if s.client == nil {
		return
	}
	ver, err := s.client.Incr(ctx, versionKey(model)).Result()
	if err != nil {
		s.logger.Warn("record cache bump failed", slog.String("model", model), slog.Any("error", err))
		return
	}
	if err := s.client.Publish(ctx, BumpChannel, model+":"+strconv.FormatInt(ver, 10)).Err(); err != nil {
		s.logger.Debug("record cache bump publish failed", slog.String("model", model), slog.Any("error", err))
	}
}

func (s *Store) version(ctx context.Context, model string) (int64, error) {
	ver, err := s.client.Get(ctx, versionKey(model)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return ver, err
}

func (s *Store) key(ctx context.Context, model string, parts []string) (string, error) {
	ver, err := s.version(ctx, model)
	if err != nil {
		return "", err
	}
	sum := sha1.Sum([]byte(strings.Join(append(parts, fmt.Sprint(recordstore.CallContext(ctx))), "\x1f")))
	return fmt.Sprintf("%s:%s:%d:%s:%s", keyPrefix, model, ver, parts[0], hex.EncodeToString(sum[:])), nil
}

// cached serves dest from Redis or fills it through load. Identical concurrent
// misses share one backend call. Redis failures fall back to the backend.
func (s *Store) cached(ctx context.Context, model string, parts []string, dest any, load func(context.Context) (any, error)) error {
	if s.client == nil {
		return decodeInto(ctx, load, dest)
	}
	key, err := s.key(ctx, model, parts)
	if err != nil {
		s.logger.Warn("record cache unavailable", slog.String("model", model), slog.Any("error", err))
		return decodeInto(ctx, load, dest)
	}
	if payload, err := s.client.Get(ctx, key).Bytes(); err == nil {
		return unmarshal(payload, dest)
	} else if !errors.Is(err, redis.Nil) {
		s.logger.Warn("record cache read failed", slog.String("key", key), slog.Any("error", err))
	}

	// The shared load must outlive any single caller; each caller only stops
	// waiting when its own context ends.
	shared := context.WithoutCancel(ctx)
	ch := s.group.DoChan(key, func() (any, error) {
		value, err := load(shared)
		if err != nil {
			return nil, err
		}
		payload, err := json.Marshal(value)
		if err != nil {
			return nil, err
		}
		if err := s.client.Set(shared, key, payload, s.ttl).Err(); err != nil {
			s.logger.Warn("record cache write failed", slog.String("key", key), slog.Any("error", err))
		}
		return payload, nil
	})
	select {
	case <-ctx.Done():
		return recordstore.Wrap(parts[0], model, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return res.Err
		}
		return unmarshal(res.Val.([]byte), dest)
	}
}

func decodeInto(ctx context.Context, load func(context.Context) (any, error), dest any) error {
	value, err := load(ctx)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return unmarshal(payload, dest)
}

func unmarshal(payload []byte, dest any) error {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	return dec.Decode(dest)
}

// restoreNumbers turns decoded json.Number values back into int64 or float64.
func restoreNumbers(row map[string]any) {
	for k, v := range row {
		row[k] = restore(v)
	}
}

func restore(v any) any {
	switch x := v.(type) {
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i
		}
		f, _ := x.Float64()
		return f
	case []any:
		for i := range x {
			x[i] = restore(x[i])
		}
		return x
	case map[string]any:
		restoreNumbers(x)
		return x
	}
	return v
}

func versionKey(model string) string {
	return keyPrefix + ":ver:" + model
}
