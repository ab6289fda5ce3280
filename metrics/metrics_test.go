package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordOrderOperation(t *testing.T) {
	before := testutil.ToFloat64(orderOperations.WithLabelValues("create", "success"))
	RecordOrderOperation("create", true)
	assert.Equal(t, before+1, testutil.ToFloat64(orderOperations.WithLabelValues("create", "success")))

	before = testutil.ToFloat64(orderOperations.WithLabelValues("create", "error"))
	RecordOrderOperation("create", false)
	assert.Equal(t, before+1, testutil.ToFloat64(orderOperations.WithLabelValues("create", "error")))
}

func TestHandlerExposesCollectors(t *testing.T) {
	ObserveHTTP(http.MethodGet, "/health", http.StatusOK, 3*time.Millisecond)
	RecordAuthEvent("login", true)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `thaitable_http_requests_total{method="GET",path="/health",status="200"}`)
	assert.Contains(t, rec.Body.String(), `thaitable_auth_events_total{event="login",status="success"}`)
}
