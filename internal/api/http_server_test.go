package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"waitlist/internal/config"
	"waitlist/internal/events"
	"waitlist/internal/models"
	"waitlist/internal/repository"
	"waitlist/internal/service"
	"waitlist/internal/worker"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	ts    *httptest.Server
	svc   *service.WaitlistService
	store *repository.MemoryStore
	hub   *events.Hub
}

func newTestEnv(t *testing.T, mutate func(cfg *config.Config)) *testEnv {
	t.Helper()
	ctx := context.Background()
	logger := zerolog.New(io.Discard)

	store := repository.NewMemoryStore()
	require.NoError(t, store.UpsertRestaurant(ctx, &models.Restaurant{ID: "r1", Name: "Bella Vista", GracePeriodMinutes: 15}))
	require.NoError(t, store.UpsertRestaurant(ctx, &models.Restaurant{ID: "r2", Name: "Chez Nous"}))
	require.NoError(t, store.UpsertTable(ctx, &models.Table{ID: "t1", RestaurantID: "r1", Label: "1", Capacity: 4}))
	require.NoError(t, store.UpsertTable(ctx, &models.Table{ID: "t9", RestaurantID: "r2", Label: "9", Capacity: 4}))

	hub := events.NewHub(events.NewRegistry(&logger), nil, events.HubOptions{InstanceID: "test"}, &logger)
	scheduler := worker.NewScheduler(1, &logger)
	svc := service.NewWaitlistService(store, nil, hub, scheduler, nil, service.Options{}, &logger)

	cfg := &config.Config{}
	cfg.FanOut.SendBuffer = 16
	cfg.FanOut.WriteTimeout = time.Second
	if mutate != nil {
		mutate(cfg)
	}

	srv := NewHTTPServer(cfg, svc, hub, &logger)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &testEnv{ts: ts, svc: svc, store: store, hub: hub}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, headers map[string]string) (*http.Response, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = strings.NewReader(string(raw))
	}
	req, err := http.NewRequest(method, e.ts.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(data) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(data, &out))
	}
	return resp, out
}

func checkInBody(phone string, party int) map[string]any {
	return map[string]any{"customer_name": "Alex", "phone": phone, "party_size": party}
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t, nil)
	resp, body := env.do(t, http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
}

func TestBookingLifecycle(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, body := env.do(t, http.MethodPost, "/api/v1/restaurants/r1/bookings", checkInBody("514-234-5678", 2), nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "waiting", body["status"])
	assert.Equal(t, "+15142345678", body["phone"])
	id, _ := body["id"].(string)
	require.NotEmpty(t, id)

	resp, body = env.do(t, http.MethodGet, "/api/v1/restaurants/r1/bookings", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["bookings"], 1)

	resp, body = env.do(t, http.MethodPost, "/api/v1/bookings/"+id+"/assign", map[string]string{"table_id": "t1"}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "notified", body["status"])
	assert.Equal(t, "t1", body["table_id"])

	resp, body = env.do(t, http.MethodPost, "/api/v1/bookings/"+id+"/assign", map[string]string{"table_id": "t1"}, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "notified", body["status"])

	resp, body = env.do(t, http.MethodPost, "/api/v1/bookings/"+id+"/seat", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "seated", body["status"])

	resp, body = env.do(t, http.MethodGet, "/api/v1/restaurants/r1/tables", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	tables, _ := body["tables"].([]any)
	require.Len(t, tables, 1)
	assert.Equal(t, "occupied", tables[0].(map[string]any)["status"])

	resp, _ = env.do(t, http.MethodPost, "/api/v1/bookings/"+id+"/complete", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = env.do(t, http.MethodPost, "/api/v1/tables/t1/release", nil, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode, "table already available")
}

func TestStaffActionErrors(t *testing.T) {
	env := newTestEnv(t, nil)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"MissingPhone", http.MethodPost, "/api/v1/restaurants/r1/bookings", map[string]any{"customer_name": "A", "party_size": 2}, http.StatusBadRequest},
		{"ZeroParty", http.MethodPost, "/api/v1/restaurants/r1/bookings", checkInBody("514-234-5678", 0), http.StatusBadRequest},
		{"BadLanguage", http.MethodPost, "/api/v1/restaurants/r1/bookings", map[string]any{"customer_name": "A", "phone": "514-234-5678", "party_size": 2, "language": "de"}, http.StatusBadRequest},
		{"UnknownRestaurant", http.MethodPost, "/api/v1/restaurants/nope/bookings", checkInBody("514-234-5678", 2), http.StatusNotFound},
		{"UnknownBooking", http.MethodPost, "/api/v1/bookings/missing/seat", nil, http.StatusNotFound},
		{"UnknownTable", http.MethodPost, "/api/v1/tables/missing/release", nil, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, _ := env.do(t, tt.method, tt.path, tt.body, nil)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}

	t.Run("AssignWithoutTable", func(t *testing.T) {
		resp, body := env.do(t, http.MethodPost, "/api/v1/restaurants/r1/bookings", checkInBody("514-234-5670", 2), nil)
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		resp, body = env.do(t, http.MethodPost, "/api/v1/bookings/"+body["id"].(string)+"/assign", map[string]string{}, nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "validation failed: table_id is required", body["error"])
	})
}

func TestAPIKeyAuth(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) {
		cfg.API.Auth.Enabled = true
		cfg.API.Auth.APIKeys = []config.APIClientKey{
			{Key: "front-desk", Name: "r1 staff", Restaurants: []string{"r1"}},
			{Key: "admin", Name: "admin"},
		}
	})

	resp, _ := env.do(t, http.MethodGet, "/api/v1/restaurants/r1/tables", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = env.do(t, http.MethodGet, "/api/v1/restaurants/r1/tables", nil, map[string]string{"X-API-Key": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = env.do(t, http.MethodGet, "/api/v1/restaurants/r1/tables", nil, map[string]string{"X-API-Key": "front-desk"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = env.do(t, http.MethodGet, "/api/v1/restaurants/r2/tables", nil, map[string]string{"X-API-Key": "front-desk"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = env.do(t, http.MethodPost, "/api/v1/tables/t9/release", nil, map[string]string{"X-API-Key": "front-desk"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = env.do(t, http.MethodGet, "/api/v1/restaurants/r2/tables?api_key=admin", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = env.do(t, http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRateLimit(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) {
		cfg.API.RateLimit = config.APIRateLimitConfig{RPS: 0.001, Burst: 2}
	})

	for i := 0; i < 2; i++ {
		resp, _ := env.do(t, http.MethodGet, "/api/v1/restaurants/r1/tables", nil, nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	}
	resp, body := env.do(t, http.MethodGet, "/api/v1/restaurants/r1/tables", nil, nil)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "rate limit exceeded", body["error"])

	resp, _ = env.do(t, http.MethodGet, "/api/v1/restaurants/r1/tables", nil, map[string]string{"X-API-Key": "other"})
	assert.Equal(t, http.StatusOK, resp.StatusCode, "limits are per client key")
}

func postSMS(t *testing.T, env *testEnv, query, from, body string) *http.Response {
	t.Helper()
	form := url.Values{"From": {from}, "Body": {body}}
	resp, err := http.PostForm(env.ts.URL+"/webhooks/sms"+query, form)
	require.NoError(t, err)
	_ = resp.Body.Close()
	return resp
}

func TestInboundSMSWebhook(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) {
		cfg.SMS.WebhookToken = "s3cret"
	})
	ctx := context.Background()

	booking, err := env.svc.CheckIn(ctx, service.CheckInRequest{RestaurantID: "r1", CustomerName: "Alex", Phone: "514-234-5678", PartySize: 2})
	require.NoError(t, err)
	_, err = env.svc.AssignTable(ctx, booking.ID, "t1")
	require.NoError(t, err)

	resp := postSMS(t, env, "", "+15142345678", "Y")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = postSMS(t, env, "?token=s3cret", "", "Y")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = postSMS(t, env, "?token=s3cret", "+15142345678", "oui")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/xml", resp.Header.Get("Content-Type"))

	got, err := env.svc.GetBooking(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, got.Status)

	resp = postSMS(t, env, "?token=s3cret", "+15149876543", "Y")
	assert.Equal(t, http.StatusOK, resp.StatusCode, "unknown senders are acknowledged")
}

func readFrame(t *testing.T, conn *websocket.Conn) events.Frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var frame events.Frame
	require.NoError(t, conn.ReadJSON(&frame))
	return frame
}

func TestDashboardStream(t *testing.T) {
	env := newTestEnv(t, nil)
	wsURL := "ws" + strings.TrimPrefix(env.ts.URL, "http") + "/api/v1/restaurants/r1/stream"

	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)

	hello := readFrame(t, conn)
	assert.Equal(t, events.KindConnected, hello.Type)
	var greeting map[string]string
	require.NoError(t, json.Unmarshal(hello.Data, &greeting))
	assert.Equal(t, "r1", greeting["restaurantId"])
	assert.Equal(t, "test", greeting["instanceId"])

	require.Eventually(t, func() bool {
		return env.hub.Registry().Count("r1") == 1
	}, time.Second, 10*time.Millisecond)

	r, _ := env.do(t, http.MethodPost, "/api/v1/restaurants/r2/bookings", checkInBody("514-234-5671", 2), nil)
	require.Equal(t, http.StatusCreated, r.StatusCode)
	r, _ = env.do(t, http.MethodPost, "/api/v1/restaurants/r1/bookings", checkInBody("514-234-5678", 2), nil)
	require.Equal(t, http.StatusCreated, r.StatusCode)

	frame := readFrame(t, conn)
	assert.Equal(t, events.KindNewBooking, frame.Type, "events of other restaurants are not delivered")
	var booking models.Booking
	require.NoError(t, json.Unmarshal(frame.Data, &booking))
	assert.Equal(t, "r1", booking.RestaurantID)

	frame = readFrame(t, conn)
	assert.Equal(t, events.KindWaitTimeUpdate, frame.Type)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool {
		return env.hub.Registry().Count("r1") == 0
	}, 2*time.Second, 10*time.Millisecond)
}
