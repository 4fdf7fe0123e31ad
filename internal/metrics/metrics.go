package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "code"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "code"},
	)

	// Scheduled SMS processor
	smsMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sms_messages_total",
			Help: "Scheduled SMS rows processed, by outcome (sent, failed, skipped, retry).",
		},
		[]string{"outcome"},
	)
	smsSendDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sms_send_duration_seconds",
			Help:    "Gateway round-trip for a single SMS (seconds).",
			Buckets: prometheus.DefBuckets,
		},
	)
	smsQueueLag = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sms_queue_lag_seconds",
			Help:    "Lag between sendAt and the send attempt (seconds).",
			Buckets: []float64{0.5, 1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		},
	)
	smsCycles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sms_processor_cycles_total",
			Help: "Processor cycles, by result (ok, skipped, locked, error).",
		},
		[]string{"result"},
	)
	smsCycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sms_processor_cycle_duration_seconds",
			Help:    "Duration of one processor cycle (seconds).",
			Buckets: prometheus.DefBuckets,
		},
	)
	smsPersistErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sms_persist_errors_total",
			Help: "Outcome writes that failed after a send attempt.",
		},
	)

	// Loyalty
	promoTriggers = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loyalty_promo_triggers_total",
			Help: "Promotions triggered, by path (checkin, checkout, immediate).",
		},
		[]string{"path"},
	)
	immediateSends = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sms_immediate_sends_total",
			Help: "Synchronous sends outside the queue, by kind and result.",
		},
		[]string{"kind", "result"},
	)

	// Campaigns
	campaignEnqueued = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campaign_messages_enqueued_total",
			Help: "Messages enqueued by campaigns, by campaign (bulk, birthday).",
		},
		[]string{"campaign"},
	)
)

var registerOnce sync.Once

func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			httpDuration,

			smsMessages,
			smsSendDuration,
			smsQueueLag,
			smsCycles,
			smsCycleDuration,
			smsPersistErrors,

			promoTriggers,
			immediateSends,
			campaignEnqueued,
		)
	})
}

func Handler() http.Handler {
	return promhttp.Handler()
}

// --- HTTP ---
func ObserveHTTPRequest(method, route string, code int, d time.Duration) {
	c := strconv.Itoa(code)
	httpRequests.WithLabelValues(method, route, c).Inc()
	httpDuration.WithLabelValues(method, route, c).Observe(d.Seconds())
}

// --- Processor ---
func IncSMS(outcome string)        { smsMessages.WithLabelValues(outcome).Inc() }
func ObserveSend(d time.Duration)  { smsSendDuration.Observe(d.Seconds()) }
func IncCycle(result string)       { smsCycles.WithLabelValues(result).Inc() }
func ObserveCycle(d time.Duration) { smsCycleDuration.Observe(d.Seconds()) }
func IncPersistError()             { smsPersistErrors.Inc() }
func ObserveQueueLag(sendAt, now time.Time) {
	sec := now.Sub(sendAt).Seconds()
	if sec < 0 {
		sec = 0
	}
	smsQueueLag.Observe(sec)
}

// --- Loyalty ---
func IncPromoTrigger(path string) { promoTriggers.WithLabelValues(path).Inc() }
func IncImmediateSend(kind string, ok bool) {
	result := "ok"
	if !ok {
		result = "error"
	}
	immediateSends.WithLabelValues(kind, result).Inc()
}

// --- Campaigns ---
func AddCampaignEnqueued(campaign string, n int) {
	if n <= 0 {
		return
	}
	campaignEnqueued.WithLabelValues(campaign).Add(float64(n))
}
