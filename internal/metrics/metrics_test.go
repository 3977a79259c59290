package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCountersIncrement(t *testing.T) {
	before := testutil.ToFloat64(EvaluationsTotal.WithLabelValues("high"))
	EvaluationsTotal.WithLabelValues("high").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(EvaluationsTotal.WithLabelValues("high")))
}

func TestHandlerExposesNamespace(t *testing.T) {
	BlockedTotal.Inc()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "riskgate_blocked_total"))
}
