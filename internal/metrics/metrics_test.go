package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
)

func scrape(t *testing.T) string {
	t.Helper()

	Register()
	rr := httptest.NewRecorder()
	Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 from metrics handler, got %d", rr.Code)
	}
	return rr.Body.String()
}

func TestHTTPMiddleware_UsesRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(HTTPMiddleware)
	r.Post("/api/checkins/{id}/checkout", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})

	req := httptest.NewRequest(http.MethodPost, "/api/checkins/abc/checkout", nil)
	r.ServeHTTP(httptest.NewRecorder(), req)

	body := scrape(t)
	want := `http_requests_total{code="202",method="POST",route="/api/checkins/{id}/checkout"} 1`
	if !strings.Contains(body, want) {
		t.Fatalf("expected %q in metrics output", want)
	}
	if strings.Contains(body, `route="/api/checkins/abc/checkout"`) {
		t.Fatalf("expected raw path not to be used as a label")
	}
}

func TestProcessorMetricsExposed(t *testing.T) {
	Register()
	Register()

	IncSMS("skipped")
	IncSMS("skipped")
	IncCycle("locked")
	ObserveQueueLag(time.Now().Add(time.Minute), time.Now())
	AddCampaignEnqueued("birthday", 0)
	AddCampaignEnqueued("birthday", 3)

	body := scrape(t)
	for _, want := range []string{
		`sms_messages_total{outcome="skipped"} 2`,
		`sms_processor_cycles_total{result="locked"} 1`,
		`campaign_messages_enqueued_total{campaign="birthday"} 3`,
		`sms_queue_lag_seconds_count 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %q in metrics output", want)
		}
	}
}
