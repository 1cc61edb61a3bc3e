package observability

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveUpstream(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.ObserveUpstream("open_form", time.Now(), nil)
	m.ObserveUpstream("open_form", time.Now(), errors.New("boom"))
	m.ObserveUpstream("open_form", time.Now(), errors.New("boom"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.UpstreamCallsTotal.WithLabelValues("open_form", "ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.UpstreamCallsTotal.WithLabelValues("open_form", "error")))
}

func TestMiddlewareCountsByRoute(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	e := echo.New()
	e.Use(m.Middleware())
	e.GET("/issues/:id", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusNotFound, "missing")
	})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/issues/abc", nil))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/issues/:id", "404")))

	scrape := httptest.NewRecorder()
	Handler(reg).ServeHTTP(scrape, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.True(t, strings.Contains(scrape.Body.String(), "carebear_http_requests_total"))
}

func TestInitTracingDisabled(t *testing.T) {
	shutdown, err := InitTracing(false, nil)
	assert.NoError(t, err)
	assert.NoError(t, shutdown(t.Context()))
}
