package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the service's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
	batches          *prometheus.CounterVec
	studentsRecorded prometheus.Counter
	ticketDecisions  *prometheus.CounterVec
	alertsCreated    prometheus.Counter
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "attendease",
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "attendease",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method and route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		batches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "attendease",
			Name:      "attendance_batches_total",
			Help:      "Attendance batches by outcome.",
		}, []string{"outcome"}),
		studentsRecorded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "attendease",
			Name:      "attendance_students_recorded_total",
			Help:      "Student marks applied by successful batches.",
		}),
		ticketDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "attendease",
			Name:      "ticket_decisions_total",
			Help:      "Ticket approvals and rejections.",
		}, []string{"status"}),
		alertsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "attendease",
			Name:      "alerts_created_total",
			Help:      "Broadcast alerts created.",
		}),
	}
	reg.MustRegister(m.httpRequests, m.httpDuration, m.batches, m.studentsRecorded, m.ticketDecisions, m.alertsCreated)
	return m
}

// ObserveBatch counts one attendance batch and the students it recorded.
func (m *Metrics) ObserveBatch(outcome string, students int) {
	if m == nil {
		return
	}
	m.batches.WithLabelValues(outcome).Inc()
	m.studentsRecorded.Add(float64(students))
}

// ObserveTicketDecision counts an approval or rejection.
func (m *Metrics) ObserveTicketDecision(status string) {
	if m == nil {
		return
	}
	m.ticketDecisions.WithLabelValues(status).Inc()
}

// ObserveAlert counts a created alert.
func (m *Metrics) ObserveAlert() {
	if m == nil {
		return
	}
	m.alertsCreated.Inc()
}

// GinMiddleware records request counts and latency per route template.
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.httpRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.httpDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}
