package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mobilsoft/backoffice/internal/platform/db"
	"github.com/mobilsoft/backoffice/internal/recordstore/memstore"
	"github.com/mobilsoft/backoffice/internal/recordstore/sqlstore"
)

var seedNow = time.Date(2024, 5, 17, 10, 30, 0, 0, time.UTC)

func TestApplyResolvesReferences(t *testing.T) {
	fixture, err := DecodeFixture(strings.NewReader(`
records:
  - key: acme
    model: res.partner
    values: {name: Acme, customer_rank: 1}
  - model: sale.order
    values: {partner_id: "@acme", date_order: $now, lines: [[0, 0, {ref: "@acme"}]]}
`))
	require.NoError(t, err)

	store := memstore.New()
	ids, err := Apply(context.Background(), store, fixture, seedNow)
	require.NoError(t, err)
	require.Contains(t, ids, "acme")

	order, ok := store.Row("sale.order", 1)
	require.True(t, ok)
	assert.Equal(t, ids["acme"], order["partner_id"])
	assert.Equal(t, "2024-05-17 10:30:00", order["date_order"])
	assert.Equal(t, []any{[]any{int64(0), int64(0), map[string]any{"ref": ids["acme"]}}}, order["lines"])
}

func TestApplyRejectsUnknownReference(t *testing.T) {
	fixture := Fixture{Records: []FixtureRecord{{Model: "sale.order", Values: map[string]any{"partner_id": "@ghost"}}}}
	_, err := Apply(context.Background(), memstore.New(), fixture, seedNow)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown reference "@ghost"`)
}

func TestDecodeFixtureRejectsUnknownKeys(t *testing.T) {
	_, err := DecodeFixture(strings.NewReader("records:\n  - model: res.partner\n    vals: {name: x}\n"))
	assert.Error(t, err)

	_, err = DecodeFixture(strings.NewReader("records:\n  - values: {name: x}\n"))
	assert.Error(t, err)
}

func TestDemoFixtureLoadsIntoSQLite(t *testing.T) {
	ctx := context.Background()
	conn, err := db.OpenSQLite(ctx, ":memory:")
	require.NoError(t, err)
	defer conn.Close()
	store := sqlstore.NewSQLite(conn, sqlstore.DefaultCatalog())
	require.NoError(t, store.Migrate(ctx))

	fixture, err := DecodeFixture(bytes.NewReader(demoFixture))
	require.NoError(t, err)
	ids, err := Apply(ctx, store, fixture, seedNow)
	require.NoError(t, err)

	n, err := store.Count(ctx, "res.partner", nil)
	require.NoError(t, err)
	assert.Equal(t, 3, n, "archived partners are hidden by default")

	rows, err := store.ReadByID(ctx, "res.partner", []int64{ids["acme"]}, []string{"name", "city"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Acme Yapı Ltd.", rows[0]["name"])
}
