package memstore

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mobilsoft/backoffice/internal/query"
	"github.com/mobilsoft/backoffice/internal/recordstore"
)

func seedPartners(s *Store, n int) {
	for i := 1; i <= n; i++ {
		s.Seed("res.partner", map[string]any{
			"name":          fmt.Sprintf("Acme %02d", i),
			"customer_rank": i % 3,
			"active":        true,
		})
	}
}

func TestCountFetchPaging(t *testing.T) {
	s := New()
	seedPartners(s, 45)
	ctx := context.Background()

	n, err := s.Count(ctx, "res.partner", nil)
	require.NoError(t, err)
	assert.Equal(t, 45, n)

	rows, err := s.Fetch(ctx, "res.partner", nil, []string{"name", "email"}, recordstore.Options{Limit: 20, Offset: 40, Order: "name desc"})
	require.NoError(t, err)
	require.Len(t, rows, 5)
	assert.Equal(t, "Acme 05", rows[0]["name"])
	assert.Equal(t, false, rows[0]["email"])
	assert.Contains(t, rows[0], "id")

	rows, err = s.Fetch(ctx, "res.partner", nil, nil, recordstore.Options{Offset: 100})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestFilterAndArchive(t *testing.T) {
	s := New()
	seedPartners(s, 6)
	s.Seed("res.partner", map[string]any{"name": "Eski", "customer_rank": 1, "active": false})
	ctx := context.Background()

	where := query.And(query.Cond("customer_rank", query.OpGt, 0))
	n, err := s.Count(ctx, "res.partner", where)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	n, err = s.Count(recordstore.WithCallContext(ctx, map[string]any{"active_test": false}), "res.partner", where)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
}

func TestOrderByPairName(t *testing.T) {
	s := New()
	s.Seed("sale.order",
		map[string]any{"name": "S1", "partner_id": []any{int64(2), "Zeta"}},
		map[string]any{"name": "S2", "partner_id": false},
		map[string]any{"name": "S3", "partner_id": []any{int64(1), "Acme"}},
	)
	rows, err := s.Fetch(context.Background(), "sale.order", nil, []string{"name"}, recordstore.Options{Order: "partner_id asc"})
	require.NoError(t, err)
	names := []any{rows[0]["name"], rows[1]["name"], rows[2]["name"]}
	assert.Equal(t, []any{"S2", "S3", "S1"}, names)

	_, err = s.Fetch(context.Background(), "sale.order", nil, nil, recordstore.Options{Order: "name up"})
	assert.Error(t, err)
}

func TestWritesAndReads(t *testing.T) {
	s := New()
	ctx := context.Background()

	id, err := s.Create(ctx, "res.partner", map[string]any{"name": "Acme"})
	require.NoError(t, err)
	require.NoError(t, s.Update(ctx, "res.partner", []int64{id}, map[string]any{"vat": "TR1"}))

	rows, err := s.ReadByID(ctx, "res.partner", []int64{id}, []string{"name", "vat"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"id": id, "name": "Acme", "vat": "TR1"}, rows[0])

	_, err = s.ReadByID(ctx, "res.partner", []int64{id, 99}, nil)
	assert.ErrorIs(t, err, recordstore.ErrNotFound)
	assert.ErrorIs(t, s.Update(ctx, "res.partner", []int64{99}, nil), recordstore.ErrNotFound)

	assert.Equal(t, 1, s.CallCount("create"))
	assert.Equal(t, 5, s.CallCount(""))
}

func TestHookFailsCalls(t *testing.T) {
	s := New()
	boom := errors.New("boom")
	s.SetHook(func(_ context.Context, op, _ string) error {
		if op == "fetch" {
			return boom
		}
		return nil
	})

	_, err := s.Fetch(context.Background(), "res.partner", nil, nil, recordstore.Options{})
	require.ErrorIs(t, err, boom)
	var te *recordstore.TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "fetch", te.Op)

	_, err = s.Count(context.Background(), "res.partner", nil)
	assert.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Count(ctx, "res.partner", nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCreateAppliesERPDefaults(t *testing.T) {
	s := New()
	seedPartners(s, 2)
	ctx := context.Background()
	where := query.And(query.Cond("active", query.OpEq, true))

	id, err := s.Create(ctx, "res.partner", map[string]any{"name": "Yeni"})
	require.NoError(t, err)
	row, _ := s.Row("res.partner", id)
	assert.Equal(t, true, row["active"])

	n, err := s.Count(ctx, "res.partner", where)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	archived, err := s.Create(ctx, "res.partner", map[string]any{"name": "Eski", "active": false})
	require.NoError(t, err)
	row, _ = s.Row("res.partner", archived)
	assert.Equal(t, false, row["active"])

	orderID, err := s.Create(ctx, "sale.order", map[string]any{"name": "S1"})
	require.NoError(t, err)
	row, _ = s.Row("sale.order", orderID)
	assert.NotContains(t, row, "active")

	s.SetDefaults("res.partner", nil)
	id, err = s.Create(ctx, "res.partner", map[string]any{"name": "Ham"})
	require.NoError(t, err)
	row, _ = s.Row("res.partner", id)
	assert.NotContains(t, row, "active")
}
