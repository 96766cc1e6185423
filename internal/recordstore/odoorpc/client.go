// Package odoorpc implements recordstore.Store over the JSON-RPC endpoint of an
// Odoo-compatible ERP.
package odoorpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mobilsoft/backoffice/internal/query"
	"github.com/mobilsoft/backoffice/internal/recordstore"
)

// ErrAuthentication indicates rejected ERP credentials.
var ErrAuthentication = errors.New("odoorpc: authentication failed")

// Config holds the ERP connection settings.
type Config struct {
	URL      string
	Database string
	Login    string
	Password string
	Timeout  time.Duration
	// Context is sent with every call, for example {"lang": "tr_TR"}.
	Context map[string]any
}

// Client talks to the ERP through /jsonrpc.
type Client struct {
	cfg        Config
	endpoint   string
	httpClient *http.Client

	mu  sync.Mutex
	uid int64

	seq atomic.Int64
}

var _ recordstore.Store = (*Client)(nil)

// New constructs a client. Authentication happens lazily on the first call.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		cfg:      cfg,
		endpoint: strings.TrimRight(cfg.URL, "/") + "/jsonrpc",
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type rpcRequest struct {
	JSONRPC string    `json:"jsonrpc"`
	Method  string    `json:"method"`
	Params  rpcParams `json:"params"`
	ID      int64     `json:"id"`
}

type rpcParams struct {
	Service string `json:"service"`
	Method  string `json:"method"`
	Args    []any  `json:"args"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *Error          `json:"error"`
}

// Error is the error object returned by the ERP.
type Error struct {
	Code    int       `json:"code"`
	Message string    `json:"message"`
	Data    ErrorData `json:"data"`
}

// ErrorData carries the server-side exception.
type ErrorData struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	if e.Data.Message != "" {
		return fmt.Sprintf("%s: %s", e.Message, e.Data.Message)
	}
	return e.Message
}

// Is maps missing-record exceptions onto recordstore.ErrNotFound.
func (e *Error) Is(target error) bool {
	return target == recordstore.ErrNotFound && strings.HasSuffix(e.Data.Name, "MissingError")
}

// Authenticate resolves and caches the user id.
func (c *Client) Authenticate(ctx context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.uid != 0 {
		return c.uid, nil
	}
	var raw any
	err := c.call(ctx, "common", "authenticate", []any{c.cfg.Database, c.cfg.Login, c.cfg.Password, map[string]any{}}, &raw)
	if err != nil {
		return 0, err
	}
	uid, ok := raw.(float64)
	if !ok || uid <= 0 {
		return 0, ErrAuthentication
	}
	c.uid = int64(uid)
	return c.uid, nil
}

// Count runs search_count.
func (c *Client) Count(ctx context.Context, model string, where query.Expr) (int, error) {
	var n int
	if err := c.execute(ctx, model, "search_count", []any{where.Domain()}, c.kwargs(ctx, nil), &n); err != nil {
		return 0, recordstore.Wrap("count", model, err)
	}
	return n, nil
}

// Fetch runs search_read.
func (c *Client) Fetch(ctx context.Context, model string, where query.Expr, fields []string, opts recordstore.Options) ([]map[string]any, error) {
	kw := map[string]any{"fields": fields}
	if opts.Limit > 0 {
		kw["limit"] = opts.Limit
	}
	if opts.Offset > 0 {
		kw["offset"] = opts.Offset
	}
	if opts.Order != "" {
		kw["order"] = opts.Order
	}
	var rows []map[string]any
	if err := c.execute(ctx, model, "search_read", []any{where.Domain()}, c.kwargs(ctx, kw), &rows); err != nil {
		return nil, recordstore.Wrap("fetch", model, err)
	}
	return rows, nil
}

// ReadByID runs read.
func (c *Client) ReadByID(ctx context.Context, model string, ids []int64, fields []string) ([]map[string]any, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []map[string]any
	if err := c.execute(ctx, model, "read", []any{ids, fields}, c.kwargs(ctx, nil), &rows); err != nil {
		return nil, recordstore.Wrap("read", model, err)
	}
	if len(rows) == 0 {
		return nil, recordstore.Wrap("read", model, recordstore.ErrNotFound)
	}
	return rows, nil
}

// Create runs create and returns the new id.
func (c *Client) Create(ctx context.Context, model string, values map[string]any) (int64, error) {
	var raw any
	if err := c.execute(ctx, model, "create", []any{values}, c.kwargs(ctx, nil), &raw); err != nil {
		return 0, recordstore.Wrap("create", model, err)
	}
	switch v := raw.(type) {
	case float64:
		return int64(v), nil
	case []any:
		if len(v) == 1 {
			if id, ok := v[0].(float64); ok {
				return int64(id), nil
			}
		}
	}
	return 0, recordstore.Wrap("create", model, fmt.Errorf("unexpected create result %v", raw))
}

// Update runs write.
func (c *Client) Update(ctx context.Context, model string, ids []int64, values map[string]any) error {
	var ok bool
	if err := c.execute(ctx, model, "write", []any{ids, values}, c.kwargs(ctx, nil), &ok); err != nil {
		return recordstore.Wrap("update", model, err)
	}
	if !ok {
		return recordstore.Wrap("update", model, errors.New("write rejected"))
	}
	return nil
}

func (c *Client) kwargs(ctx context.Context, kw map[string]any) map[string]any {
	if kw == nil {
		kw = map[string]any{}
	}
	callCtx := make(map[string]any, len(c.cfg.Context))
	for k, v := range c.cfg.Context {
		callCtx[k] = v
	}
	for k, v := range recordstore.CallContext(ctx) {
		callCtx[k] = v
	}
	if len(callCtx) > 0 {
		kw["context"] = callCtx
	}
	return kw
}

func (c *Client) execute(ctx context.Context, model, method string, args []any, kwargs map[string]any, out any) error {
	uid, err := c.Authenticate(ctx)
	if err != nil {
		return err
	}
	params := []any{c.cfg.Database, uid, c.cfg.Password, model, method, args, kwargs}
	return c.call(ctx, "object", "execute_kw", params, out)
}

func (c *Client) call(ctx context.Context, service, method string, args []any, out any) error {
	payload, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		Method:  "call",
		Params:  rpcParams{Service: service, Method: method, Args: args},
		ID:      c.seq.Add(1),
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("odoorpc: %s.%s returned status %d", service, method, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	var decoded rpcResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return fmt.Errorf("odoorpc: decode response: %w", err)
	}
	if decoded.Error != nil {
		return decoded.Error
	}
	if out == nil || len(decoded.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(decoded.Result, out); err != nil {
		return fmt.Errorf("odoorpc: decode result: %w", err)
	}
	return nil
}
