// Package recordstore defines the backend the list and form controllers read from
// and write to, together with its error taxonomy.
package recordstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/mobilsoft/backoffice/internal/query"
)

var (
	// ErrNotFound indicates that a requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrUnknownModel indicates a model the store has no mapping for.
	ErrUnknownModel = errors.New("unknown model")
	// ErrUnknownField indicates a field the store has no mapping for.
	ErrUnknownField = errors.New("unknown field")
)

// Store is the record backend. Every method is fallible; callers only need to
// know that the call failed.
type Store interface {
	Count(ctx context.Context, model string, where query.Expr) (int, error)
	Fetch(ctx context.Context, model string, where query.Expr, fields []string, opts Options) ([]map[string]any, error)
	ReadByID(ctx context.Context, model string, ids []int64, fields []string) ([]map[string]any, error)
	Create(ctx context.Context, model string, values map[string]any) (int64, error)
	Update(ctx context.Context, model string, ids []int64, values map[string]any) error
}

// Options bounds and orders a fetch.
type Options struct {
	Limit  int
	Offset int
	Order  string
}

// TransportError reports a failed store call.
type TransportError struct {
	Op    string
	Model string
	Err   error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("recordstore: %s %s: %v", e.Op, e.Model, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Wrap turns err into a TransportError unless it already is one.
func Wrap(op, model string, err error) error {
	if err == nil {
		return nil
	}
	var te *TransportError
	if errors.As(err, &te) {
		return err
	}
	return &TransportError{Op: op, Model: model, Err: err}
}

type callContextKey struct{}

// WithCallContext attaches ERP evaluation flags (for example active_test) to
// every store call made with ctx.
func WithCallContext(ctx context.Context, values map[string]any) context.Context {
	if len(values) == 0 {
		return ctx
	}
	merged := make(map[string]any, len(values))
	for k, v := range CallContext(ctx) {
		merged[k] = v
	}
	for k, v := range values {
		merged[k] = v
	}
	return context.WithValue(ctx, callContextKey{}, merged)
}

// CallContext returns the flags attached by WithCallContext.
func CallContext(ctx context.Context) map[string]any {
	values, _ := ctx.Value(callContextKey{}).(map[string]any)
	return values
}

// ActiveDefault mirrors the ERP's implicit archive filter: unless the call
// context disables active_test or where already mentions "active", only
// active records are searched.
func ActiveDefault(ctx context.Context, where query.Expr, hasActive bool) query.Expr {
	if !hasActive {
		return where
	}
	if v, ok := CallContext(ctx)["active_test"].(bool); ok && !v {
		return where
	}
	for _, f := range where.Fields() {
		if f == "active" {
			return where
		}
	}
	return where.With(query.Cond("active", query.OpEq, true))
}
