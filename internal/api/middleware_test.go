package api

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alexivanou/citysearch/internal/model"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewLimiter(t *testing.T) {
	assert.Nil(t, NewLimiter(0, 10))
	assert.Nil(t, NewLimiter(10, 0))

	l := NewLimiter(5, 2)
	require.NotNil(t, l)
	assert.Equal(t, 2, l.Burst())
}

func TestRateLimit(t *testing.T) {
	mockService := new(MockService)
	mockService.On("ListFavorites", mock.Anything).Return(&model.FavoritesResponse{Cities: []model.City{}}, nil)

	// One token, refilled far slower than the test runs
	router := NewRouter(mockService, nil, nil, NewLimiter(1, 1), zap.NewNop())
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/api/v1/favorites", nil))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest("GET", "/api/v1/favorites", nil))
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "1", rr.Header().Get("Retry-After"))

	// Health checks are not limited
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest("GET", "/health", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestRateLimit_Disabled(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	h := RateLimit(nil)(next)
	for i := 0; i < 100; i++ {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest("GET", "/", nil))
		require.Equal(t, http.StatusNoContent, rr.Code)
	}
}

func TestMetrics_ServiceEvents(t *testing.T) {
	m := NewMetrics()

	m.ObserveSearch("live", "loaded", 2*time.Millisecond)
	m.ObserveSearch("live", "loaded", time.Millisecond)
	m.ObserveSearch("live", "skipped", 0)
	m.ObserveFavoriteChange("add", nil)
	m.ObserveFavoriteChange("add", errors.New("disk full"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.searches.WithLabelValues("live", "loaded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.searches.WithLabelValues("live", "skipped")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.favoriteChanges.WithLabelValues("add", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.favoriteChanges.WithLabelValues("add", "error")))
	// Skipped searches have no duration
	assert.Equal(t, 1, testutil.CollectAndCount(m.searchDuration))
}

func TestMetrics_Endpoint(t *testing.T) {
	m := NewMetrics()
	mockService := new(MockService)
	mockService.On("GetCityByID", mock.Anything, 2950159).Return(&berlin, nil)

	router := NewRouter(mockService, nil, m, nil, zap.NewNop())
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/api/v1/city/2950159", nil))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("/api/v1/city/{id}", "GET", "200")))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.True(t, strings.Contains(body, "citysearch_http_requests_total"))
	assert.True(t, strings.Contains(body, "go_goroutines"))
}
