package console

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mobilsoft/backoffice/internal/dashboard"
	"github.com/mobilsoft/backoffice/internal/entity"
	"github.com/mobilsoft/backoffice/internal/form"
	"github.com/mobilsoft/backoffice/internal/listview"
	"github.com/mobilsoft/backoffice/internal/platform/httpx"
	"github.com/mobilsoft/backoffice/internal/recordstore/memstore"
	"github.com/mobilsoft/backoffice/internal/shared"
	"github.com/mobilsoft/backoffice/internal/testing/fakeclock"
)

type countingObserver struct {
	loads, saves, opened, closed int
}

func (o *countingObserver) ListLoaded(string, error) { o.loads++ }
func (o *countingObserver) FormSaved(string, error)  { o.saves++ }
func (o *countingObserver) SessionOpened()           { o.opened++ }
func (o *countingObserver) SessionClosed()           { o.closed++ }

type harness struct {
	store    *memstore.Store
	clock    *fakeclock.Clock
	handler  *Handler
	router   http.Handler
	observer *countingObserver
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := memstore.New()
	for i := 1; i <= 45; i++ {
		supplier := 0
		if i%3 == 0 {
			supplier = 1
		}
		store.Seed("res.partner", map[string]any{
			"name": fmt.Sprintf("Cari %02d", i), "customer_rank": 1, "supplier_rank": supplier, "active": true,
		})
	}
	clock := fakeclock.New(time.Date(2024, 5, 17, 10, 0, 0, 0, time.UTC))
	format := entity.DefaultFormatter()
	observer := &countingObserver{}
	h := NewHandler(Options{
		Store:     store,
		Dashboard: dashboard.NewService(dashboard.Options{Store: store, Formatter: format.WithClock(clock.Now)}),
		Clock:     clock,
		Formatter: format,
		IdleTTL:   10 * time.Minute,
		Observer:  observer,
	})
	r := chi.NewRouter()
	r.Route("/api", h.MountRoutes)
	t.Cleanup(h.Close)
	return &harness{store: store, clock: clock, handler: h, router: r, observer: observer}
}

func (hs *harness) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	hs.router.ServeHTTP(rec, req)
	return rec
}

type viewBody struct {
	ID            string                `json:"id"`
	View          listview.Render       `json:"view"`
	Notifications []shared.Notification `json:"notifications"`
}

type formBody struct {
	ID            string                `json:"id"`
	Form          form.State            `json:"form"`
	Notifications []shared.Notification `json:"notifications"`
	Closed        bool                  `json:"closed"`
	SavedID       int64                 `json:"saved_id"`
	Parent        *listview.Render      `json:"parent"`
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func (hs *harness) openView(t *testing.T, module string, body any) viewBody {
	t.Helper()
	rec := hs.do(t, http.MethodPost, "/api/modules/"+module+"/views", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[viewBody](t, rec)
}

func TestModulesListing(t *testing.T) {
	hs := newHarness(t)
	rec := hs.do(t, http.MethodGet, "/api/modules", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	modules := decode[[]moduleInfo](t, rec)
	require.Len(t, modules, len(entity.Modules()))
	byName := map[string]moduleInfo{}
	for _, m := range modules {
		byName[m.Module] = m
	}
	assert.True(t, byName["customers"].HasForm)
	assert.False(t, byName["sales"].HasForm)
	assert.Equal(t, "customer", byName["invoices"].DefaultType)
	assert.Len(t, byName["invoices"].Types, 2)
}

func TestViewLifecycle(t *testing.T) {
	hs := newHarness(t)

	opened := hs.openView(t, "customers", nil)
	assert.NotEmpty(t, opened.ID)
	assert.Equal(t, 45, opened.View.Pagination.Total)
	assert.Len(t, opened.View.Rows, 20)
	assert.Equal(t, 1, opened.View.Pagination.Page)
	assert.Equal(t, 3, opened.View.Pagination.TotalPages)
	assert.True(t, opened.View.Loaded)
	assert.Equal(t, 1, hs.observer.opened)

	base := "/api/views/" + opened.ID
	rec := hs.do(t, http.MethodPost, base+"/page", pageRequest{Direction: "next"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 20, decode[viewBody](t, rec).View.Query.Offset)

	rec = hs.do(t, http.MethodPost, base+"/filter", refinementRequest{Filter: "suppliers"})
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[viewBody](t, rec)
	assert.Equal(t, 0, body.View.Query.Offset)
	assert.Equal(t, 15, body.View.Pagination.Total)
	assert.Equal(t, "suppliers", body.View.Query.Filter)

	rec = hs.do(t, http.MethodPost, base+"/filter", refinementRequest{Filter: "vip"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = hs.do(t, http.MethodPost, base+"/page", pageRequest{Direction: "sideways"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = hs.do(t, http.MethodDelete, base, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 1, hs.observer.closed)

	rec = hs.do(t, http.MethodGet, base, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestOpenViewWithPreset(t *testing.T) {
	hs := newHarness(t)
	opened := hs.openView(t, "customers", openViewRequest{Search: "Cari 1", Filter: "customers"})
	assert.Equal(t, 10, opened.View.Pagination.Total)
	assert.Equal(t, "Cari 1", opened.View.Query.Search)

	rec := hs.do(t, http.MethodPost, "/api/modules/customers/views", openViewRequest{Type: "supplier"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = hs.do(t, http.MethodPost, "/api/modules/payroll/views", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDebouncedSearchOverHTTP(t *testing.T) {
	hs := newHarness(t)
	opened := hs.openView(t, "customers", nil)
	base := "/api/views/" + opened.ID
	fetches := hs.store.CallCount("fetch")

	for _, text := range []string{"C", "Ca", "Cari 1"} {
		rec := hs.do(t, http.MethodPost, base+"/search", textRequest{Text: text})
		require.Equal(t, http.StatusAccepted, rec.Code)
		assert.Equal(t, text, decode[viewBody](t, rec).View.Query.Search)
		hs.clock.Advance(100 * time.Millisecond)
	}
	assert.Equal(t, fetches, hs.store.CallCount("fetch"))

	hs.clock.Advance(entity.SearchQuiescence)
	assert.Equal(t, fetches+1, hs.store.CallCount("fetch"))

	rec := hs.do(t, http.MethodGet, base, nil)
	assert.Equal(t, 10, decode[viewBody](t, rec).View.Pagination.Total)

	rec = hs.do(t, http.MethodPost, base+"/search?now=1", textRequest{Text: ""})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 45, decode[viewBody](t, rec).View.Pagination.Total)
}

func TestStoreFailureSurfacesAsNotification(t *testing.T) {
	hs := newHarness(t)
	hs.store.SetHook(func(_ context.Context, op, _ string) error {
		if op == "fetch" {
			return errors.New("rpc down")
		}
		return nil
	})

	opened := hs.openView(t, "customers", nil)
	assert.True(t, opened.View.Error)
	assert.False(t, opened.View.Loaded)
	assert.Empty(t, opened.View.Rows)
	assert.Equal(t, []shared.Notification{{Level: shared.LevelDanger, Message: "Cariler yüklenirken hata oluştu."}}, opened.Notifications)

	hs.store.SetHook(nil)
	rec := hs.do(t, http.MethodPost, "/api/views/"+opened.ID+"/reload", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[viewBody](t, rec)
	assert.False(t, body.View.Error)
	assert.Len(t, body.View.Rows, 20)
	assert.Empty(t, body.Notifications)
}

func TestFormSaveReturnsToList(t *testing.T) {
	hs := newHarness(t)
	view := hs.openView(t, "customers", nil)

	rec := hs.do(t, http.MethodPost, "/api/modules/customers/forms", openFormRequest{ViewID: view.ID})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	opened := decode[formBody](t, rec)
	assert.True(t, opened.Form.IsNew)
	base := "/api/forms/" + opened.ID

	rec = hs.do(t, http.MethodPost, base+"/save", nil)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	problem := decode[httpx.ProblemDetail](t, rec)
	assert.Equal(t, map[string]string{"name": "Cari adı zorunludur."}, problem.Errors)
	assert.Equal(t, 0, hs.store.CallCount("create"))

	rec = hs.do(t, http.MethodPatch, base, setRequest{Fields: map[string]any{"name": "Yeni Cari", "is_supplier": true}})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = hs.do(t, http.MethodPatch, base, setRequest{Fields: map[string]any{"nickname": "x"}})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = hs.do(t, http.MethodPost, base+"/save", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	saved := decode[formBody](t, rec)
	assert.True(t, saved.Closed)
	assert.NotZero(t, saved.SavedID)
	require.NotNil(t, saved.Parent)
	assert.Equal(t, 46, saved.Parent.Pagination.Total)
	assert.Contains(t, saved.Notifications, shared.Notification{Level: shared.LevelSuccess, Message: "Cari oluşturuldu."})
	assert.Equal(t, 1, hs.observer.saves)

	rec = hs.do(t, http.MethodGet, base, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestFormCancelAndMissingRecord(t *testing.T) {
	hs := newHarness(t)

	rec := hs.do(t, http.MethodPost, "/api/modules/customers/forms", openFormRequest{ID: 999})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = hs.do(t, http.MethodPost, "/api/modules/sales/forms", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = hs.do(t, http.MethodPost, "/api/modules/customers/forms", openFormRequest{ID: 3})
	require.Equal(t, http.StatusCreated, rec.Code)
	opened := decode[formBody](t, rec)
	assert.Equal(t, "Cari 03", opened.Form.Fields["name"])
	assert.Equal(t, true, opened.Form.Fields["is_supplier"])

	rec = hs.do(t, http.MethodDelete, "/api/forms/"+opened.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 0, hs.store.CallCount("update"))
	assert.Zero(t, hs.handler.Sessions().Len())
}

func TestInvoiceLookupOverHTTP(t *testing.T) {
	hs := newHarness(t)
	rec := hs.do(t, http.MethodPost, "/api/modules/invoices/forms", openFormRequest{Params: map[string]string{"move_type": "in_invoice"}})
	require.Equal(t, http.StatusCreated, rec.Code)
	opened := decode[formBody](t, rec)
	assert.Equal(t, "in_invoice", opened.Form.Fields["move_type"])
	base := "/api/forms/" + opened.ID

	rec = hs.do(t, http.MethodPost, base+"/lookup/partner_id", lookupRequest{Text: "Cari 4", Now: true})
	require.Equal(t, http.StatusOK, rec.Code)
	options := decode[[]entity.Option](t, rec)
	require.Len(t, options, 6)
	assert.Equal(t, "Cari 40", options[0].Name)

	rec = hs.do(t, http.MethodPost, base+"/lookup/partner_id/select", selectRequest{ID: options[1].ID})
	require.Equal(t, http.StatusOK, rec.Code)
	selected := decode[formBody](t, rec)
	assert.Equal(t, "Cari 41", selected.Form.Fields["partner_name"])

	rec = hs.do(t, http.MethodPost, base+"/lookup/currency_id", lookupRequest{Text: "TL", Now: true})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestIdleSessionsExpire(t *testing.T) {
	hs := newHarness(t)
	view := hs.openView(t, "customers", nil)
	kept := hs.openView(t, "customers", nil)

	hs.clock.Advance(6 * time.Minute)
	require.Equal(t, http.StatusOK, hs.do(t, http.MethodGet, "/api/views/"+kept.ID, nil).Code)
	hs.clock.Advance(5 * time.Minute)

	assert.Equal(t, 1, hs.handler.Sessions().Sweep())
	assert.Equal(t, http.StatusNotFound, hs.do(t, http.MethodGet, "/api/views/"+view.ID, nil).Code)
	assert.Equal(t, http.StatusOK, hs.do(t, http.MethodGet, "/api/views/"+kept.ID, nil).Code)
}

func TestDashboardEndpoint(t *testing.T) {
	hs := newHarness(t)
	rec := hs.do(t, http.MethodGet, "/api/dashboard", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[dashboardResponse](t, rec).Error)

	hs.store.SetHook(func(context.Context, string, string) error { return errors.New("down") })
	rec = hs.do(t, http.MethodGet, "/api/dashboard", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[dashboardResponse](t, rec)
	assert.True(t, body.Error)
	assert.Equal(t, entity.DefaultFormatter().Amount(0), body.TodaySalesText)
}

func TestOptionsEndpoint(t *testing.T) {
	hs := newHarness(t)
	hs.store.Seed("stock.warehouse", map[string]any{"name": "Merkez"})

	rec := hs.do(t, http.MethodGet, "/api/options/warehouses", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []entity.Option{{ID: 1, Name: "Merkez"}}, decode[[]entity.Option](t, rec))

	rec = hs.do(t, http.MethodGet, "/api/options/currencies", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
