package recordstore

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mobilsoft/backoffice/internal/query"
)

func TestWrapKeepsFirstTransportError(t *testing.T) {
	base := errors.New("connection refused")
	err := Wrap("fetch", "res.partner", base)

	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "fetch", te.Op)
	assert.ErrorIs(t, err, base)
	assert.Equal(t, "recordstore: fetch res.partner: connection refused", err.Error())

	assert.Same(t, err, Wrap("count", "other", err))
	assert.NoError(t, Wrap("count", "x", nil))
}

func TestCallContextMerges(t *testing.T) {
	ctx := WithCallContext(context.Background(), map[string]any{"lang": "tr_TR"})
	ctx = WithCallContext(ctx, map[string]any{"active_test": false})

	assert.Equal(t, map[string]any{"lang": "tr_TR", "active_test": false}, CallContext(ctx))
	assert.Nil(t, CallContext(context.Background()))
}

func TestActiveDefault(t *testing.T) {
	ctx := context.Background()
	where := query.And(query.Cond("name", query.OpILike, "a"))

	assert.Equal(t, where.With(query.Cond("active", query.OpEq, true)), ActiveDefault(ctx, where, true))
	assert.Equal(t, where, ActiveDefault(ctx, where, false))

	archived := query.And(query.Cond("active", query.OpEq, false))
	assert.Equal(t, archived, ActiveDefault(ctx, archived, true))

	all := WithCallContext(ctx, map[string]any{"active_test": false})
	assert.Equal(t, where, ActiveDefault(all, where, true))
}
