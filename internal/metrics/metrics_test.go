package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(Degradations.WithLabelValues("KICK", "MUTE"))
	Degradations.WithLabelValues("KICK", "MUTE").Inc()
	if got := testutil.ToFloat64(Degradations.WithLabelValues("KICK", "MUTE")); got != before+1 {
		t.Errorf("degradations = %v, want %v", got, before+1)
	}
}

func TestHandler(t *testing.T) {
	ActionsTotal.WithLabelValues("MUTE", "DELETE").Inc()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `automod_actions_total{recommended="MUTE",taken="DELETE"}`) {
		t.Error("actions counter missing from exposition")
	}
}
