package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"equiprent/internal/auth"
	"equiprent/internal/availability"
	"equiprent/internal/config"
	"equiprent/internal/domain"
	"equiprent/internal/models"
	"equiprent/internal/repository"
	"equiprent/internal/service"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

const (
	ownerID   = "owner-1"
	renterID  = "renter-1"
	renter2ID = "renter-2"
	adminID   = "admin-1"
)

func testConfig() config.APIConfig {
	return config.APIConfig{
		Auth: config.APIAuthConfig{
			HeaderAPIKey: "x-api-key",
			HeaderExtra:  "x-api-extra",
		},
		Actor: config.ActorConfig{
			Mode:         "header",
			HeaderID:     "x-actor-id",
			HeaderRoles:  "x-actor-roles",
			DefaultRoles: []string{"renter"},
		},
		Idempotency: config.APIIdempotencyConfig{TTL: time.Hour},
	}
}

type testServer struct {
	srv         *HTTPServer
	store       *repository.MemoryBookingStore
	idempotency *repository.MemoryIdempotencyStore
}

func newTestServer(t *testing.T, cfg config.APIConfig) *testServer {
	t.Helper()
	logger := zerolog.New(io.Discard)

	store := repository.NewMemoryBookingStore()
	catalog := repository.NewMemoryEquipmentStore(
		&models.Equipment{ID: "tractor", OwnerID: ownerID, HourlyRate: 100, DailyRate: 600, IsActive: true},
		&models.Equipment{ID: "plough", OwnerID: ownerID, HourlyRate: 50, DailyRate: 300, IsActive: false},
	)
	index := availability.NewIndex(repository.NewMemoryActiveSetCache(), time.Minute, &logger)
	svc := service.NewBookingService(store, catalog, index, nil, &logger)
	idem := repository.NewMemoryIdempotencyStore()

	equipment := service.NewEquipmentService(catalog, &logger)

	srv := NewHTTPServer(cfg, svc, equipment, auth.NewHeaderResolver(cfg.Actor), idem, &logger)
	return &testServer{srv: srv, store: store, idempotency: idem}
}

type call struct {
	method  string
	path    string
	body    any
	actor   string
	roles   string
	headers map[string]string
}

func (ts *testServer) do(t *testing.T, c call) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if c.body != nil {
		raw, err := json.Marshal(c.body)
		require.NoError(t, err)
		body = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(c.method, c.path, body)
	if c.actor != "" {
		req.Header.Set("x-actor-id", c.actor)
	}
	if c.roles != "" {
		req.Header.Set("x-actor-roles", c.roles)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	ts.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func at(hour int) time.Time {
	return time.Date(2030, 5, 1, hour, 0, 0, 0, time.UTC)
}

func hourlyBody(from, to int) map[string]any {
	return map[string]any{
		"equipment_id":   "tractor",
		"start":          at(from),
		"end":            at(to),
		"mode":           "hour",
		"payment_method": "cod",
	}
}

func (ts *testServer) create(t *testing.T, renter string, from, to int) *models.Booking {
	t.Helper()
	rec := ts.do(t, call{method: http.MethodPost, path: "/api/v1/bookings", body: hourlyBody(from, to), actor: renter, roles: "renter"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	b := decode[models.Booking](t, rec)
	return &b
}

func TestCreateBooking(t *testing.T) {
	ts := newTestServer(t, testConfig())

	b := ts.create(t, renterID, 9, 13)
	assert.Equal(t, models.StatusRequested, b.Status)
	assert.Equal(t, 4, b.Hours)
	assert.Equal(t, models.Money(400), b.TotalPrice)
	assert.Equal(t, ownerID, b.OwnerID)

	rec := ts.do(t, call{method: http.MethodPost, path: "/api/v1/bookings", body: hourlyBody(12, 14), actor: renter2ID, roles: "renter"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, errorResponse{Error: "Conflict", Message: domain.Message(domain.KindConflict)}, decode[errorResponse](t, rec))

	// adjacent windows do not collide
	ts.create(t, renter2ID, 13, 15)
}

func TestCreateBookingDerivesWindow(t *testing.T) {
	ts := newTestServer(t, testConfig())

	rec := ts.do(t, call{method: http.MethodPost, path: "/api/v1/bookings", actor: renterID, body: map[string]any{
		"equipment_id": "tractor",
		"start":        at(0),
		"mode":         "day",
	}})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	b := decode[models.Booking](t, rec)
	assert.Equal(t, at(0).Add(24*time.Hour), b.Interval.End())
	assert.Equal(t, models.Money(600), b.TotalPrice)
	assert.Equal(t, models.PaymentCOD, b.PaymentMethod)

	rec = ts.do(t, call{method: http.MethodPost, path: "/api/v1/bookings", actor: renterID, body: map[string]any{
		"equipment_id":   "tractor",
		"start":          at(0).Add(48 * time.Hour),
		"mode":           "hour",
		"hours":          6,
		"payment_method": "online",
	}})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	b = decode[models.Booking](t, rec)
	assert.Equal(t, 6*time.Hour, b.Interval.Duration())
	assert.Equal(t, models.PaymentOnline, b.PaymentMethod)
}

func TestCreateBookingRefusals(t *testing.T) {
	ts := newTestServer(t, testConfig())

	tests := []struct {
		name   string
		actor  string
		roles  string
		body   any
		status int
		kind   string
	}{
		{
			name:   "Inverted range",
			actor:  renterID,
			body:   hourlyBody(13, 9),
			status: http.StatusBadRequest,
			kind:   "InvalidRange",
		},
		{
			name:  "Hours disagree with window",
			actor: renterID,
			body: map[string]any{
				"equipment_id": "tractor", "start": at(1), "end": at(3), "mode": "hour", "hours": 4,
			},
			status: http.StatusBadRequest,
			kind:   "InvalidDuration",
		},
		{
			name:  "Daily booking longer than a day",
			actor: renterID,
			body: map[string]any{
				"equipment_id": "tractor", "start": at(0), "end": at(0).Add(30 * 24 * time.Hour), "mode": "day",
			},
			status: http.StatusBadRequest,
			kind:   "InvalidDuration",
		},
		{
			name:   "Hourly without hours or end",
			actor:  renterID,
			body:   map[string]any{"equipment_id": "tractor", "start": at(1), "mode": "hour"},
			status: http.StatusBadRequest,
			kind:   "InvalidDuration",
		},
		{
			name:   "Unknown mode",
			actor:  renterID,
			body:   map[string]any{"equipment_id": "tractor", "start": at(1), "mode": "week"},
			status: http.StatusBadRequest,
			kind:   "BadRequest",
		},
		{
			name:   "Unknown equipment",
			actor:  renterID,
			body:   map[string]any{"equipment_id": "crane", "start": at(1), "end": at(3), "mode": "hour"},
			status: http.StatusNotFound,
			kind:   "NotFound",
		},
		{
			name:   "Inactive equipment",
			actor:  renterID,
			body:   map[string]any{"equipment_id": "plough", "start": at(1), "end": at(3), "mode": "hour"},
			status: http.StatusConflict,
			kind:   "Inactive",
		},
		{
			name:   "Owner books own equipment",
			actor:  ownerID,
			roles:  "owner,renter",
			body:   hourlyBody(1, 3),
			status: http.StatusConflict,
			kind:   "SelfBooking",
		},
		{
			name:   "Actor without renter role",
			actor:  adminID,
			roles:  "admin",
			body:   hourlyBody(1, 3),
			status: http.StatusForbidden,
			kind:   "Forbidden",
		},
		{
			name:   "Unknown field",
			actor:  renterID,
			body:   map[string]any{"equipment_id": "tractor", "start": at(1), "mode": "day", "price": 1},
			status: http.StatusBadRequest,
			kind:   "BadRequest",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, call{method: http.MethodPost, path: "/api/v1/bookings", body: tt.body, actor: tt.actor, roles: tt.roles})
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, tt.kind, decode[errorResponse](t, rec).Error)
		})
	}

	all, err := ts.store.ListBookings(context.Background(), models.BookingFilter{})
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestTransitions(t *testing.T) {
	ts := newTestServer(t, testConfig())
	b := ts.create(t, renterID, 9, 11)

	rec := ts.do(t, call{method: http.MethodPost, path: "/api/v1/bookings/" + b.ID + "/accept", actor: renterID, roles: "renter"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.do(t, call{method: http.MethodPost, path: "/api/v1/bookings/" + b.ID + "/accept", actor: ownerID, roles: "owner"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, models.StatusAccepted, decode[models.Booking](t, rec).Status)

	rec = ts.do(t, call{method: http.MethodPost, path: "/api/v1/bookings/" + b.ID + "/reject", actor: ownerID, roles: "owner"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "InvalidTransition", decode[errorResponse](t, rec).Error)

	rec = ts.do(t, call{method: http.MethodPost, path: "/api/v1/bookings/missing/reject", actor: ownerID, roles: "owner"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	other := ts.create(t, renter2ID, 12, 14)
	rec = ts.do(t, call{
		method: http.MethodPost, path: "/api/v1/bookings/" + other.ID + "/transition",
		body: map[string]string{"status": "rejected"}, actor: ownerID, roles: "owner",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, models.StatusRejected, decode[models.Booking](t, rec).Status)

	rec = ts.do(t, call{
		method: http.MethodPost, path: "/api/v1/bookings/" + other.ID + "/transition",
		body: map[string]string{"status": "cancelled"}, actor: ownerID, roles: "owner",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReadEndpoints(t *testing.T) {
	ts := newTestServer(t, testConfig())
	b := ts.create(t, renterID, 9, 11)
	ts.create(t, renter2ID, 14, 16)

	t.Run("GetBookingVisibility", func(t *testing.T) {
		rec := ts.do(t, call{method: http.MethodGet, path: "/api/v1/bookings/" + b.ID, actor: renterID})
		assert.Equal(t, http.StatusOK, rec.Code)
		rec = ts.do(t, call{method: http.MethodGet, path: "/api/v1/bookings/" + b.ID, actor: ownerID, roles: "owner"})
		assert.Equal(t, http.StatusOK, rec.Code)
		rec = ts.do(t, call{method: http.MethodGet, path: "/api/v1/bookings/" + b.ID, actor: renter2ID})
		assert.Equal(t, http.StatusForbidden, rec.Code)
		rec = ts.do(t, call{method: http.MethodGet, path: "/api/v1/bookings/" + b.ID, actor: adminID, roles: "admin"})
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("ListActive", func(t *testing.T) {
		rec := ts.do(t, call{method: http.MethodGet, path: "/api/v1/equipment/tractor/active", actor: renterID})
		require.Equal(t, http.StatusOK, rec.Code)
		out := decode[struct {
			Bookings []models.Booking `json:"bookings"`
		}](t, rec)
		require.Len(t, out.Bookings, 2)
		assert.True(t, out.Bookings[0].Interval.Start().Before(out.Bookings[1].Interval.Start()))
	})

	t.Run("Availability", func(t *testing.T) {
		check := func(from, to int) (int, bool) {
			path := "/api/v1/equipment/tractor/availability?start=" + at(from).Format(time.RFC3339) + "&end=" + at(to).Format(time.RFC3339)
			rec := ts.do(t, call{method: http.MethodGet, path: path, actor: renterID})
			if rec.Code != http.StatusOK {
				return rec.Code, false
			}
			return rec.Code, decode[struct {
				Available bool `json:"available"`
			}](t, rec).Available
		}

		code, ok := check(11, 14)
		assert.Equal(t, http.StatusOK, code)
		assert.True(t, ok)
		_, ok = check(10, 12)
		assert.False(t, ok)
		code, _ = check(12, 10)
		assert.Equal(t, http.StatusBadRequest, code)

		rec := ts.do(t, call{method: http.MethodGet, path: "/api/v1/equipment/tractor/availability?start=noon", actor: renterID})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("MyBookings", func(t *testing.T) {
		rec := ts.do(t, call{method: http.MethodGet, path: "/api/v1/me/bookings", actor: renterID})
		require.Equal(t, http.StatusOK, rec.Code)
		out := decode[struct {
			Bookings []models.Booking `json:"bookings"`
		}](t, rec)
		require.Len(t, out.Bookings, 1)
		assert.Equal(t, b.ID, out.Bookings[0].ID)

		rec = ts.do(t, call{method: http.MethodGet, path: "/api/v1/me/bookings?as=owner", actor: ownerID, roles: "owner"})
		require.Equal(t, http.StatusOK, rec.Code)
		out = decode[struct {
			Bookings []models.Booking `json:"bookings"`
		}](t, rec)
		assert.Len(t, out.Bookings, 2)

		rec = ts.do(t, call{method: http.MethodGet, path: "/api/v1/me/bookings?as=everyone", actor: ownerID})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("Overview", func(t *testing.T) {
		rec := ts.do(t, call{method: http.MethodGet, path: "/api/v1/me/overview", actor: ownerID, roles: "owner"})
		require.Equal(t, http.StatusOK, rec.Code)
		ov := decode[service.Overview](t, rec)
		assert.Len(t, ov.AsOwner, 2)
		assert.Equal(t, 2, ov.PendingAsOwner)
	})

	t.Run("Export", func(t *testing.T) {
		rec := ts.do(t, call{method: http.MethodGet, path: "/api/v1/me/bookings/export.xlsx", actor: ownerID, roles: "owner"})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", rec.Header().Get("Content-Type"))

		f, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
		require.NoError(t, err)
		defer f.Close()
		rows, err := f.GetRows("Bookings")
		require.NoError(t, err)
		assert.Len(t, rows, 4)

		rec = ts.do(t, call{method: http.MethodGet, path: "/api/v1/me/bookings/export.xlsx", actor: renterID})
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("AdminBookings", func(t *testing.T) {
		rec := ts.do(t, call{method: http.MethodGet, path: "/api/v1/admin/bookings", actor: ownerID, roles: "owner"})
		assert.Equal(t, http.StatusForbidden, rec.Code)

		rec = ts.do(t, call{method: http.MethodGet, path: "/api/v1/admin/bookings?status=requested&renter_id=" + renter2ID, actor: adminID, roles: "admin"})
		require.Equal(t, http.StatusOK, rec.Code)
		out := decode[struct {
			Bookings []models.Booking `json:"bookings"`
		}](t, rec)
		require.Len(t, out.Bookings, 1)
		assert.Equal(t, renter2ID, out.Bookings[0].RenterID)

		rec = ts.do(t, call{method: http.MethodGet, path: "/api/v1/admin/bookings?status=lost", actor: adminID, roles: "admin"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestEquipmentManagement(t *testing.T) {
	ts := newTestServer(t, testConfig())
	setActive := func(actor, roles string, active bool) *httptest.ResponseRecorder {
		return ts.do(t, call{method: http.MethodPost, path: "/api/v1/equipment/tractor/active", actor: actor, roles: roles,
			body: map[string]any{"active": active}})
	}

	t.Run("DeactivatedEquipmentRefusesRequests", func(t *testing.T) {
		rec := setActive(ownerID, "owner", false)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.False(t, decode[models.Equipment](t, rec).IsActive)

		rec = ts.do(t, call{method: http.MethodPost, path: "/api/v1/bookings", body: hourlyBody(9, 11), actor: renterID, roles: "renter"})
		require.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, "Inactive", decode[errorResponse](t, rec).Error)

		rec = setActive(adminID, "admin", true)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		ts.create(t, renterID, 9, 11)
	})

	t.Run("OnlyOwnerOrAdminToggles", func(t *testing.T) {
		rec := setActive(renterID, "renter", false)
		assert.Equal(t, http.StatusForbidden, rec.Code)

		rec = ts.do(t, call{method: http.MethodPost, path: "/api/v1/equipment/tractor/active", actor: ownerID, roles: "owner",
			body: map[string]any{}})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("Rates", func(t *testing.T) {
		rates := func(actor, roles string, hourly, daily int) *httptest.ResponseRecorder {
			return ts.do(t, call{method: http.MethodPut, path: "/api/v1/equipment/tractor/rates", actor: actor, roles: roles,
				body: map[string]any{"hourly_rate": hourly, "daily_rate": daily}})
		}

		assert.Equal(t, http.StatusForbidden, rates(adminID, "admin", 1, 1).Code)
		rec := rates(ownerID, "owner", -5, 600)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "InvalidUpdate", decode[errorResponse](t, rec).Error)

		rec = rates(ownerID, "owner", 150, 900)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		rec = ts.do(t, call{method: http.MethodGet, path: "/api/v1/equipment/tractor", actor: renterID})
		require.Equal(t, http.StatusOK, rec.Code)
		e := decode[models.Equipment](t, rec)
		assert.Equal(t, models.Money(150), e.HourlyRate)
		assert.Equal(t, models.Money(900), e.DailyRate)
		assert.True(t, e.IsActive)

		b := ts.create(t, renter2ID, 14, 16)
		assert.Equal(t, models.Money(300), b.TotalPrice)
	})

	t.Run("UnknownEquipment", func(t *testing.T) {
		rec := ts.do(t, call{method: http.MethodPost, path: "/api/v1/equipment/missing/active", actor: adminID, roles: "admin",
			body: map[string]any{"active": false}})
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestIdempotentCreate(t *testing.T) {
	ts := newTestServer(t, testConfig())
	headers := map[string]string{headerIdempotencyKey: "k-1"}

	first := ts.do(t, call{method: http.MethodPost, path: "/api/v1/bookings", body: hourlyBody(9, 11), actor: renterID, headers: headers})
	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())

	replay := ts.do(t, call{method: http.MethodPost, path: "/api/v1/bookings", body: hourlyBody(9, 11), actor: renterID, headers: headers})
	assert.Equal(t, http.StatusCreated, replay.Code)
	assert.Equal(t, "true", replay.Header().Get(headerReplayed))
	assert.JSONEq(t, first.Body.String(), replay.Body.String())

	// keys are scoped per actor
	other := ts.do(t, call{method: http.MethodPost, path: "/api/v1/bookings", body: hourlyBody(9, 11), actor: renter2ID, headers: headers})
	assert.Equal(t, http.StatusConflict, other.Code)

	// same key, different body
	reused := ts.do(t, call{method: http.MethodPost, path: "/api/v1/bookings", body: hourlyBody(14, 16), actor: renterID, headers: headers})
	assert.Equal(t, http.StatusUnprocessableEntity, reused.Code)
	assert.Equal(t, "IdempotencyKeyReused", decode[errorResponse](t, reused).Error)
	assert.Empty(t, reused.Header().Get(headerReplayed))

	all, err := ts.store.ListBookings(context.Background(), models.BookingFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 1)

	_, started, err := ts.idempotency.Begin(context.Background(), renterID+":k-2", time.Hour)
	require.NoError(t, err)
	require.True(t, started)
	busy := ts.do(t, call{method: http.MethodPost, path: "/api/v1/bookings", body: hourlyBody(20, 22), actor: renterID,
		headers: map[string]string{headerIdempotencyKey: "k-2"}})
	assert.Equal(t, http.StatusConflict, busy.Code)
	assert.Equal(t, "RequestInProgress", decode[errorResponse](t, busy).Error)
}

type failingIdempotency struct{}

func (failingIdempotency) Begin(ctx context.Context, key string, ttl time.Duration) (*repository.StoredResponse, bool, error) {
	return nil, false, errors.New("redis: connection refused")
}

func (failingIdempotency) Complete(ctx context.Context, key string, resp repository.StoredResponse, ttl time.Duration) error {
	return nil
}

func (failingIdempotency) Abort(ctx context.Context, key string) error { return nil }

func TestIdempotencyStoreDown(t *testing.T) {
	ts := newTestServer(t, testConfig())
	ts.srv.idempotency = failingIdempotency{}

	rec := ts.do(t, call{method: http.MethodPost, path: "/api/v1/bookings", body: hourlyBody(9, 11), actor: renterID,
		headers: map[string]string{headerIdempotencyKey: "k-1"}})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "StoreUnavailable", decode[errorResponse](t, rec).Error)

	// without a key the store is not consulted
	rec = ts.do(t, call{method: http.MethodPost, path: "/api/v1/bookings", body: hourlyBody(9, 11), actor: renterID})
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestUnauthenticated(t *testing.T) {
	ts := newTestServer(t, testConfig())
	rec := ts.do(t, call{method: http.MethodGet, path: "/api/v1/me/bookings"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Unauthenticated", decode[errorResponse](t, rec).Error)
}

func TestClientAuth(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.Enabled = true
	cfg.Auth.APIKeys = []config.APIClientKey{
		{Key: "full", Extra: "s1", Name: "backoffice"},
		{Key: "reader", Extra: "s2", Name: "dashboard", Permissions: []string{"read:bookings"}},
	}
	ts := newTestServer(t, cfg)

	keys := func(key, extra string) map[string]string {
		return map[string]string{"x-api-key": key, "x-api-extra": extra}
	}

	tests := []struct {
		name    string
		method  string
		headers map[string]string
		status  int
	}{
		{"Missing key", http.MethodGet, nil, http.StatusUnauthorized},
		{"Wrong extra", http.MethodGet, keys("full", "nope"), http.StatusUnauthorized},
		{"Unknown key", http.MethodGet, keys("ghost", "s1"), http.StatusUnauthorized},
		{"Reader reads", http.MethodGet, keys("reader", "s2"), http.StatusOK},
		{"Reader writes", http.MethodPost, keys("reader", "s2"), http.StatusForbidden},
		{"Full access", http.MethodGet, keys("full", "s1"), http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := "/api/v1/me/bookings"
			var body any
			if tt.method == http.MethodPost {
				path = "/api/v1/bookings"
				body = hourlyBody(9, 11)
			}
			rec := ts.do(t, call{method: tt.method, path: path, body: body, actor: renterID, headers: tt.headers})
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}

	// health endpoints stay open
	rec := ts.do(t, call{method: http.MethodGet, path: "/healthz"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit = config.APIRateLimitConfig{RPS: 0.001, Burst: 2}
	ts := newTestServer(t, cfg)

	for i := 0; i < 2; i++ {
		rec := ts.do(t, call{method: http.MethodGet, path: "/api/v1/me/bookings", actor: renterID})
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec := ts.do(t, call{method: http.MethodGet, path: "/api/v1/me/bookings", actor: renterID})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "RateLimited", decode[errorResponse](t, rec).Error)
}

func TestReadyz(t *testing.T) {
	ts := newTestServer(t, testConfig())
	ts.srv.AddHealthCheck("store", func(ctx context.Context) error { return nil })

	rec := ts.do(t, call{method: http.MethodGet, path: "/readyz"})
	assert.Equal(t, http.StatusOK, rec.Code)

	ts.srv.AddHealthCheck("redis", func(ctx context.Context) error { return errors.New("dial tcp: refused") })
	rec = ts.do(t, call{method: http.MethodGet, path: "/readyz"})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	out := decode[struct {
		Checks map[string]string `json:"checks"`
	}](t, rec)
	assert.Equal(t, "ok", out.Checks["store"])
	assert.Contains(t, out.Checks["redis"], "refused")
}
