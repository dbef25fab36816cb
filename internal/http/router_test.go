// README: End-to-end route tests over in-memory stores with signed dev tokens.
package http_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ridehail/internal/config"
	httpapi "ridehail/internal/http"
	"ridehail/internal/infra"
	"ridehail/internal/modules/location"
	"ridehail/internal/modules/presence"
	"ridehail/internal/modules/pricing"
	"ridehail/internal/modules/profile"
	"ridehail/internal/modules/ride"
)

type apiFixture struct {
	router   *gin.Engine
	verifier *infra.JWTVerifier
}

func newAPI(t *testing.T) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger, _ := test.NewNullLogger()
	reg := prometheus.NewRegistry()

	pres := presence.NewService(presence.NewMemoryStore(), location.NewMemoryIndex(),
		config.PresenceConfig{StoreTimeout: time.Second}, logger)
	prices := pricing.NewService(nil, pricing.DefaultRate)
	rides := ride.NewService(ride.Deps{
		Store:    ride.NewMemoryStore(),
		Pricing:  prices,
		Presence: pres,
		Profiles: profile.NewMemoryStore(
			profile.Driver{ID: "d1", Name: "Aibek", Phone: "+77010000001", Rating: 4.5, ReviewCount: 2},
			profile.Driver{ID: "d2", Name: "Bolat"},
		),
		Metrics: ride.NewMetrics(reg),
	}, config.RideConfig{StoreTimeout: time.Second}, logger)

	verifier := infra.NewJWTVerifier("test-secret")
	cfg := config.Defaults().HTTP
	cfg.RateLimit = 0
	router := httpapi.NewRouter(httpapi.RouterDeps{
		Rides:    rides,
		Presence: pres,
		Pricing:  prices,
		Verifier: verifier,
		Registry: reg,
		Log:      logger,
		HTTP:     cfg,
	})
	return &apiFixture{router: router, verifier: verifier}
}

func (f *apiFixture) call(t *testing.T, uid, role, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if uid != "" {
		token, err := f.verifier.Sign(uid, role)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	var out map[string]any
	if strings.HasPrefix(w.Body.String(), "{") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	}
	return w, out
}

func rideField(t *testing.T, body map[string]any, key string) any {
	t.Helper()
	r, ok := body["ride"].(map[string]any)
	require.True(t, ok, "response has no ride: %v", body)
	return r[key]
}

var almatyRequest = map[string]any{
	"origin":      "43.2025,76.8921",
	"destination": map[string]any{"lat": 43.20917, "lng": 76.76028},
	"city":        "almaty",
}

func TestHealthIsPublic(t *testing.T) {
	f := newAPI(t)
	w, body := f.call(t, "", "", http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", body["status"])
}

func TestAPIRequiresToken(t *testing.T) {
	f := newAPI(t)
	w, body := f.call(t, "", "", http.MethodPost, "/api/rides/request", almatyRequest)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "UNAUTHORIZED", body["code"])
}

func TestRideLifecycleOverHTTP(t *testing.T) {
	f := newAPI(t)

	w, body := f.call(t, "p1", "passenger", http.MethodPost, "/api/rides/request", almatyRequest)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	rideID := rideField(t, body, "id").(string)
	assert.Equal(t, "pending", rideField(t, body, "status"))
	assert.InDelta(t, 10.7097, rideField(t, body, "distance"), 1e-9)
	price := rideField(t, body, "price").(map[string]any)
	assert.EqualValues(t, 1586, price["amount"])
	assert.Equal(t, "KZT", price["currency"])

	w, body = f.call(t, "d1", "driver", http.MethodPost, "/api/rides/accept", map[string]any{"rideId": rideID})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "driver_assigned", rideField(t, body, "status"))
	assert.Equal(t, "d1", rideField(t, body, "driverId"))

	w, body = f.call(t, "d2", "driver", http.MethodPost, "/api/rides/accept", map[string]any{"rideId": rideID})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "ALREADY_ASSIGNED", body["code"])

	w, body = f.call(t, "d2", "driver", http.MethodPost, "/api/rides/"+rideID+"/start", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "UNAUTHORIZED", body["code"])

	for _, step := range []struct{ path, status string }{
		{"start", "in_progress"},
		{"onsite", "on_site"},
		{"complete", "completed"},
	} {
		w, body = f.call(t, "d1", "driver", http.MethodPost, "/api/rides/"+rideID+"/"+step.path, nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, step.status, rideField(t, body, "status"))
	}

	w, body = f.call(t, "p1", "passenger", http.MethodPut, "/api/rides/update-status",
		map[string]any{"rideId": rideID, "status": "cancelled", "cancellationReason": "late"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_TRANSITION", body["code"])

	w, body = f.call(t, "p1", "passenger", http.MethodGet, "/api/rides/"+rideID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 4, rideField(t, body, "version"))

	w, body = f.call(t, "p1", "passenger", http.MethodGet, "/api/rides/ride/"+rideID, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, rideID, rideField(t, body, "id"))

	w, body = f.call(t, "p1", "passenger", http.MethodGet, "/api/user/rides/my?history=true", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["rides"], 1)

	w, body = f.call(t, "p1", "passenger", http.MethodGet, "/api/user/rides/my", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, body["rides"])
}

func TestCancelOverHTTP(t *testing.T) {
	f := newAPI(t)
	_, body := f.call(t, "p1", "passenger", http.MethodPost, "/api/rides/request", almatyRequest)
	rideID := rideField(t, body, "id").(string)

	w, body := f.call(t, "p1", "passenger", http.MethodPost, "/api/rides/"+rideID+"/cancel", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_ARGUMENT", body["code"])

	w, body = f.call(t, "p2", "passenger", http.MethodPost, "/api/rides/"+rideID+"/cancel",
		map[string]any{"cancellationReason": "not mine"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, body = f.call(t, "p1", "passenger", http.MethodPost, "/api/rides/"+rideID+"/cancel",
		map[string]any{"cancellationReason": "changed plans"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "cancelled", rideField(t, body, "status"))
	assert.Equal(t, "changed plans", rideField(t, body, "cancellationReason"))
}

func TestRequestRideRejectsBadCoordinates(t *testing.T) {
	f := newAPI(t)
	w, body := f.call(t, "p1", "passenger", http.MethodPost, "/api/rides/request",
		map[string]any{"origin": "91,0", "destination": "43.2,76.9"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_COORDINATE", body["code"])

	w, body = f.call(t, "p1", "passenger", http.MethodPost, "/api/rides/request",
		map[string]any{"origin": "nowhere", "destination": "43.2,76.9"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_COORDINATE", body["code"])

	w, _ = f.call(t, "d1", "driver", http.MethodPost, "/api/rides/request", almatyRequest)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestPriceQuote(t *testing.T) {
	f := newAPI(t)
	w, body := f.call(t, "p1", "passenger", http.MethodPost, "/api/rides/price",
		map[string]any{"origin": "43.2025,76.8921", "destination": "43.20917,76.76028"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.InDelta(t, 10.7097, body["distance"], 1e-9)

	q := `/api/rides/price?origin=` + `%7B%22lat%22%3A43.2025%2C%22lng%22%3A76.8921%7D` +
		`&destination=43.20917,76.76028`
	w, body = f.call(t, "d1", "driver", http.MethodPost, q, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.EqualValues(t, 1586, body["price"].(map[string]any)["amount"])
}

func TestParkingOverHTTP(t *testing.T) {
	f := newAPI(t)
	spot := map[string]any{"latitude": 43.2025, "longitude": 76.8921}

	w, body := f.call(t, "d1", "driver", http.MethodPost, "/api/rides/parking/activate", spot)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "NOT_ELIGIBLE", body["code"])

	w, _ = f.call(t, "d1", "driver", http.MethodPost, "/api/line/activate", spot)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w, body = f.call(t, "d1", "driver", http.MethodPost, "/api/rides/parking/activate", spot)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, true, body["presence"].(map[string]any)["parkingMode"])

	w, _ = f.call(t, "p1", "passenger", http.MethodGet, "/api/rides/parking?latitude=43.2030&longitude=76.8925", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var hits []struct {
		DriverID    string `json:"driverId"`
		Coordinates struct {
			Latitude  float64 `json:"latitude"`
			Longitude float64 `json:"longitude"`
		} `json:"coordinates"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &hits))
	require.Len(t, hits, 1)
	assert.Equal(t, "d1", hits[0].DriverID)
	assert.InDelta(t, 43.2025, hits[0].Coordinates.Latitude, 1e-9)
	assert.InDelta(t, 76.8921, hits[0].Coordinates.Longitude, 1e-9)

	for _, radius := range []string{"-1", "0", "NaN", "Inf", "-Inf", "abc"} {
		w, _ = f.call(t, "p1", "passenger", http.MethodGet, "/api/rides/parking?latitude=43.2030&longitude=76.8925&radius="+radius, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, "radius=%s", radius)
	}

	w, _ = f.call(t, "d1", "driver", http.MethodPost, "/api/line/deactivate", nil)
	require.Equal(t, http.StatusOK, w.Code)
	w, _ = f.call(t, "p1", "passenger", http.MethodGet, "/api/rides/parking?latitude=43.2030&longitude=76.8925", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestDeactivateUnknownDriverReturnsRecord(t *testing.T) {
	f := newAPI(t)
	for _, path := range []string{"/api/line/deactivate", "/api/rides/parking/deactivate"} {
		w, body := f.call(t, "d9", "driver", http.MethodPost, path, nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		p, ok := body["presence"].(map[string]any)
		require.True(t, ok, "%s: presence must be an object, got %v", path, body["presence"])
		assert.Equal(t, "d9", p["driverId"])
		assert.Equal(t, false, p["onLine"])
		assert.Equal(t, false, p["parkingMode"])
	}
}

func TestDriverDetailsAndAdminLists(t *testing.T) {
	f := newAPI(t)
	w, body := f.call(t, "p1", "passenger", http.MethodGet, "/api/driver/d1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Aibek", body["name"])
	assert.EqualValues(t, 2, body["reviewCount"])

	w, body = f.call(t, "p1", "passenger", http.MethodGet, "/api/driver/ghost", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", body["code"])

	w, _ = f.call(t, "p1", "passenger", http.MethodGet, "/api/driver/d1/rides", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	w, body = f.call(t, "root", "admin", http.MethodGet, "/api/driver/d1/rides?history=true", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, body["rides"])
}

func TestConcurrentAcceptOverHTTP(t *testing.T) {
	f := newAPI(t)
	_, body := f.call(t, "p1", "passenger", http.MethodPost, "/api/rides/request", almatyRequest)
	rideID := rideField(t, body, "id").(string)

	drivers := []string{"d1", "d2"}
	start := make(chan struct{})
	codes := make(chan int, len(drivers))
	var wg sync.WaitGroup
	for _, d := range drivers {
		wg.Add(1)
		go func(d string) {
			defer wg.Done()
			<-start
			w, _ := f.call(t, d, "driver", http.MethodPost, "/api/rides/accept", map[string]any{"rideId": rideID})
			codes <- w.Code
		}(d)
	}
	close(start)
	wg.Wait()
	close(codes)

	var ok, rejected int
	for c := range codes {
		switch c {
		case http.StatusOK:
			ok++
		case http.StatusBadRequest:
			rejected++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, rejected)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newAPI(t)
	f.call(t, "", "", http.MethodGet, "/health", nil)
	w, _ := f.call(t, "", "", http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `http_requests_total{method="GET",route="/health",status="200"} 1`)
}
