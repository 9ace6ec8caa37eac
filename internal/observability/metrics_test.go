package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsHandler_ServesRegisteredMetrics(t *testing.T) {
	RecordAPICall("loginInformation", "success", 0.05)
	CallbacksReceivedTotal.WithLabelValues("completed").Inc()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	MetricsHandler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("GET /metrics = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	for _, metric := range []string{
		"signApiCallsTotal",
		"signApiDurationSeconds",
		"connectCallbacksTotal",
		"httpRequestsInFlight",
	} {
		if !strings.Contains(body, metric) {
			t.Errorf("metrics output missing %s", metric)
		}
	}
}

func TestRecordAPICall_IncrementsCounter(t *testing.T) {
	before := testutil.ToFloat64(SignAPICallsTotal.WithLabelValues("getEnvelope", "success"))
	RecordAPICall("getEnvelope", "success", 0.1)
	after := testutil.ToFloat64(SignAPICallsTotal.WithLabelValues("getEnvelope", "success"))
	if after != before+1 {
		t.Errorf("signApiCallsTotal = %v, want %v", after, before+1)
	}
}

func TestCircuitBreakerMetrics(t *testing.T) {
	SetCircuitBreakerStateGauge("docusign_api", 1)
	RecordCircuitBreakerTransition("docusign_api", "closed", "open")

	if got := testutil.ToFloat64(circuitBreakerState.WithLabelValues("docusign_api")); got != 1 {
		t.Errorf("circuitBreakerState = %v, want 1", got)
	}
	if got := testutil.ToFloat64(circuitBreakerTransitions.WithLabelValues("docusign_api", "closed", "open")); got < 1 {
		t.Errorf("circuitBreakerTransitions = %v, want >= 1", got)
	}
}
