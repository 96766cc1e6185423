package cached

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mobilsoft/backoffice/internal/query"
	"github.com/mobilsoft/backoffice/internal/recordstore"
	"github.com/mobilsoft/backoffice/internal/recordstore/memstore"
)

func setup(t *testing.T) (*Store, *memstore.Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	mem := memstore.New()
	mem.Seed("res.partner",
		map[string]any{"name": "Acme", "credit": 12.5, "company_id": []any{int64(1), "Mobil"}, "active": true},
		map[string]any{"name": "Beta", "credit": 0.0, "company_id": false, "active": true},
	)
	return New(mem, client, time.Minute, nil), mem, mr
}

func TestReadsAreServedFromCache(t *testing.T) {
	s, mem, _ := setup(t)
	ctx := context.Background()
	where := query.And(query.Cond("name", query.OpILike, "a"))

	for i := 0; i < 3; i++ {
		n, err := s.Count(ctx, "res.partner", where)
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		rows, err := s.Fetch(ctx, "res.partner", where, []string{"name", "credit", "company_id"}, recordstore.Options{Limit: 10, Order: "name asc"})
		require.NoError(t, err)
		require.Len(t, rows, 2)
		assert.Equal(t, int64(1), rows[0]["id"])
		assert.Equal(t, 12.5, rows[0]["credit"])
		assert.Equal(t, []any{int64(1), "Mobil"}, rows[0]["company_id"])
		assert.Equal(t, false, rows[1]["company_id"])
	}
	assert.Equal(t, 1, mem.CallCount("count"))
	assert.Equal(t, 1, mem.CallCount("fetch"))
}

func TestWritesInvalidateModel(t *testing.T) {
	s, mem, _ := setup(t)
	ctx := context.Background()

	rows, err := s.ReadByID(ctx, "res.partner", []int64{1}, []string{"name"})
	require.NoError(t, err)
	assert.Equal(t, "Acme", rows[0]["name"])

	require.NoError(t, s.Update(ctx, "res.partner", []int64{1}, map[string]any{"name": "Acme Ltd"}))

	rows, err = s.ReadByID(ctx, "res.partner", []int64{1}, []string{"name"})
	require.NoError(t, err)
	assert.Equal(t, "Acme Ltd", rows[0]["name"])
	assert.Equal(t, 2, mem.CallCount("read"))

	_, err = s.Create(ctx, "res.partner", map[string]any{"name": "Gamma", "active": true})
	require.NoError(t, err)
	n, err := s.Count(ctx, "res.partner", nil)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestCallContextIsPartOfKey(t *testing.T) {
	s, mem, _ := setup(t)
	mem.Seed("res.partner", map[string]any{"name": "Eski", "active": false})
	ctx := context.Background()

	n, err := s.Count(ctx, "res.partner", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = s.Count(recordstore.WithCallContext(ctx, map[string]any{"active_test": false}), "res.partner", nil)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestErrorsAreNotCached(t *testing.T) {
	s, mem, _ := setup(t)
	boom := errors.New("boom")
	var fail atomic.Bool
	fail.Store(true)
	mem.SetHook(func(context.Context, string, string) error {
		if fail.Load() {
			return boom
		}
		return nil
	})

	_, err := s.Count(context.Background(), "res.partner", nil)
	require.ErrorIs(t, err, boom)

	fail.Store(false)
	n, err := s.Count(context.Background(), "res.partner", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestRedisDownFallsBackToBackend(t *testing.T) {
	s, mem, mr := setup(t)
	mr.Close()

	n, err := s.Count(context.Background(), "res.partner", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 1, mem.CallCount("count"))
}

func TestConcurrentMissesShareOneCall(t *testing.T) {
	s, mem, _ := setup(t)
	release := make(chan struct{})
	mem.SetHook(func(context.Context, string, string) error {
		<-release
		return nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := s.Count(context.Background(), "res.partner", nil)
			assert.NoError(t, err)
			assert.Equal(t, 2, n)
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	assert.Equal(t, 1, mem.CallCount("count"))
}

func TestNilClientPassesThrough(t *testing.T) {
	mem := memstore.New()
	mem.Seed("res.partner", map[string]any{"name": "Acme"})
	s := New(mem, nil, time.Minute, nil)

	for i := 0; i < 2; i++ {
		rows, err := s.Fetch(context.Background(), "res.partner", nil, []string{"name"}, recordstore.Options{})
		require.NoError(t, err)
		assert.Equal(t, int64(1), rows[0]["id"])
	}
	assert.Equal(t, 2, mem.CallCount("fetch"))
}

func TestCancelledCallerDoesNotFailSharedLoad(t *testing.T) {
	s, mem, _ := setup(t)
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	mem.SetHook(func(context.Context, string, string) error {
		once.Do(func() { close(entered) })
		<-release
		return nil
	})
	where := query.And(query.Cond("name", query.OpILike, "a"))
	fields := []string{"name"}
	opts := recordstore.Options{Limit: 20, Order: "name asc"}

	first, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := s.Fetch(first, "res.partner", where, fields, opts)
		firstErr <- err
	}()
	<-entered

	type result struct {
		rows []map[string]any
		err  error
	}
	second := make(chan result, 1)
	go func() {
		rows, err := s.Fetch(context.Background(), "res.partner", where, fields, opts)
		second <- result{rows, err}
	}()
	time.Sleep(50 * time.Millisecond)

	cancelFirst()
	err := <-firstErr
	require.ErrorIs(t, err, context.Canceled)
	var te *recordstore.TransportError
	assert.ErrorAs(t, err, &te)

	close(release)
	res := <-second
	require.NoError(t, res.err)
	require.Len(t, res.rows, 2)
	assert.Equal(t, "Acme", res.rows[0]["name"])
	assert.Equal(t, 1, mem.CallCount("fetch"))
}
