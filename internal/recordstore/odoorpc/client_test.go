package odoorpc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mobilsoft/backoffice/internal/query"
	"github.com/mobilsoft/backoffice/internal/recordstore"
)

type recordedCall struct {
	Service string
	Method  string
	Args    []any
}

type fakeERP struct {
	mu      sync.Mutex
	calls   []recordedCall
	results map[string]any
	errors  map[string]map[string]any
}

func newFakeERP() *fakeERP {
	return &fakeERP{
		results: map[string]any{"authenticate": 7},
		errors:  map[string]map[string]any{},
	}
}

func (f *fakeERP) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID     int64 `json:"id"`
		Params struct {
			Service string `json:"service"`
			Method  string `json:"method"`
			Args    []any  `json:"args"`
		} `json:"params"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	key := req.Params.Method
	if req.Params.Service == "object" {
		key, _ = req.Params.Args[4].(string)
	}

	f.mu.Lock()
	f.calls = append(f.calls, recordedCall{Service: req.Params.Service, Method: req.Params.Method, Args: req.Params.Args})
	result, rpcErr := f.results[key], f.errors[key]
	f.mu.Unlock()

	resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
	if rpcErr != nil {
		resp["error"] = rpcErr
	} else {
		resp["result"] = result
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (f *fakeERP) objectCalls() []recordedCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []recordedCall
	for _, c := range f.calls {
		if c.Service == "object" {
			out = append(out, c)
		}
	}
	return out
}

func newTestClient(t *testing.T, erp *fakeERP) *Client {
	t.Helper()
	srv := httptest.NewServer(erp)
	t.Cleanup(srv.Close)
	return New(Config{URL: srv.URL + "/", Database: "demo", Login: "admin", Password: "secret"})
}

func TestCountSendsDomain(t *testing.T) {
	erp := newFakeERP()
	erp.results["search_count"] = 45
	client := newTestClient(t, erp)

	where := query.And(
		query.Cond("active", query.OpEq, true),
		query.Any(query.T("name", query.OpILike, "acme"), query.T("vat", query.OpILike, "acme")),
	)
	n, err := client.Count(context.Background(), "res.partner", where)
	require.NoError(t, err)
	assert.Equal(t, 45, n)

	calls := erp.objectCalls()
	require.Len(t, calls, 1)
	args := calls[0].Args
	assert.Equal(t, "demo", args[0])
	assert.Equal(t, float64(7), args[1])
	assert.Equal(t, "res.partner", args[3])
	assert.Equal(t, []any{[]any{
		[]any{"active", "=", true},
		"|",
		[]any{"name", "ilike", "acme"},
		[]any{"vat", "ilike", "acme"},
	}}, args[5])
}

func TestFetchPassesOptionsAndContext(t *testing.T) {
	erp := newFakeERP()
	erp.results["search_read"] = []map[string]any{{"id": 1, "name": "Kalem"}}
	client := newTestClient(t, erp)

	ctx := recordstore.WithCallContext(context.Background(), map[string]any{"active_test": false})
	rows, err := client.Fetch(ctx, "product.template", nil, []string{"id", "name"}, recordstore.Options{Limit: 20, Offset: 40, Order: "name asc"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Kalem", rows[0]["name"])

	kwargs := erp.objectCalls()[0].Args[6].(map[string]any)
	assert.Equal(t, float64(20), kwargs["limit"])
	assert.Equal(t, float64(40), kwargs["offset"])
	assert.Equal(t, "name asc", kwargs["order"])
	assert.Equal(t, map[string]any{"active_test": false}, kwargs["context"])
	assert.Equal(t, []any{"id", "name"}, kwargs["fields"])
}

func TestAuthenticatesOnce(t *testing.T) {
	erp := newFakeERP()
	erp.results["search_count"] = 1
	client := newTestClient(t, erp)

	for range 3 {
		_, err := client.Count(context.Background(), "sale.order", nil)
		require.NoError(t, err)
	}

	auth := 0
	for _, c := range erp.calls {
		if c.Method == "authenticate" {
			auth++
		}
	}
	assert.Equal(t, 1, auth)
}

func TestAuthenticationRejected(t *testing.T) {
	erp := newFakeERP()
	erp.results["authenticate"] = false
	client := newTestClient(t, erp)

	_, err := client.Count(context.Background(), "res.partner", nil)
	require.ErrorIs(t, err, ErrAuthentication)

	var te *recordstore.TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "count", te.Op)
}

func TestServerErrorBecomesTransportError(t *testing.T) {
	erp := newFakeERP()
	erp.errors["write"] = map[string]any{
		"code":    200,
		"message": "Odoo Server Error",
		"data":    map[string]any{"name": "odoo.exceptions.ValidationError", "message": "VAT invalid"},
	}
	client := newTestClient(t, erp)

	err := client.Update(context.Background(), "res.partner", []int64{3}, map[string]any{"vat": "x"})
	var rpcErr *Error
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, "Odoo Server Error: VAT invalid", rpcErr.Error())
	assert.NotErrorIs(t, err, recordstore.ErrNotFound)
}

func TestMissingRecordMapsToNotFound(t *testing.T) {
	erp := newFakeERP()
	erp.errors["read"] = map[string]any{
		"code":    200,
		"message": "Odoo Server Error",
		"data":    map[string]any{"name": "odoo.exceptions.MissingError", "message": "Record does not exist"},
	}
	client := newTestClient(t, erp)

	_, err := client.ReadByID(context.Background(), "res.partner", []int64{99}, []string{"name"})
	assert.ErrorIs(t, err, recordstore.ErrNotFound)
}

func TestCreateAcceptsScalarOrList(t *testing.T) {
	erp := newFakeERP()
	erp.results["create"] = 12
	client := newTestClient(t, erp)

	id, err := client.Create(context.Background(), "res.partner", map[string]any{"name": "Acme"})
	require.NoError(t, err)
	assert.Equal(t, int64(12), id)

	erp.mu.Lock()
	erp.results["create"] = []int{13}
	erp.mu.Unlock()
	id, err = client.Create(context.Background(), "res.partner", map[string]any{"name": "Beta"})
	require.NoError(t, err)
	assert.Equal(t, int64(13), id)
}

func TestHTTPStatusFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := New(Config{URL: srv.URL, Database: "demo"})
	_, err := client.Count(context.Background(), "res.partner", nil)
	var te *recordstore.TransportError
	require.ErrorAs(t, err, &te)
	assert.Contains(t, err.Error(), "status 502")
}
