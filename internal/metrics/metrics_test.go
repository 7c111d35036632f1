package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestLoginAttemptsCounter(t *testing.T) {
	before := testutil.ToFloat64(LoginAttemptsTotal.WithLabelValues("accepted"))
	LoginAttemptsTotal.WithLabelValues("accepted").Inc()
	after := testutil.ToFloat64(LoginAttemptsTotal.WithLabelValues("accepted"))
	if after-before != 1 {
		t.Errorf("expected counter to grow by 1, got %v", after-before)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	ChatTurnsTotal.WithLabelValues("chat", "completed").Inc()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "localchat_chat_turns_total") {
		t.Errorf("expected chat turn metric in output")
	}
}
