package monitoring

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	webhookRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_requests_total",
			Help: "Webhook HTTP requests by response status",
		},
		[]string{"status"},
	)

	eventsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_events_processed_total",
			Help: "Provider events dispatched, by type and outcome",
		},
		[]string{"event_type", "outcome"},
	)

	pipelineErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_pipeline_errors_total",
			Help: "Pipeline errors by kind",
		},
		[]string{"kind"},
	)

	dispatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "payment_event_dispatch_duration_seconds",
			Help:    "Time spent handling one provider event",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		},
		[]string{"event_type"},
	)

	workerQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "worker_queue_depth",
			Help: "Tasks waiting in the worker pool queue",
		},
	)

	workerRejected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "worker_tasks_rejected_total",
			Help: "Tasks rejected because the worker queue was full",
		},
	)

	notificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_sent_total",
			Help: "Notification sends by message kind and status",
		},
		[]string{"kind", "status"},
	)

	domainEventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "domain_events_published_total",
			Help: "Domain events published to Kafka by topic and status",
		},
		[]string{"topic", "status"},
	)
)

func TrackWebhookRequest(status string) {
	webhookRequests.WithLabelValues(status).Inc()
}

func TrackEvent(eventType, outcome string) {
	eventsProcessed.WithLabelValues(eventType, outcome).Inc()
}

func TrackError(kind string) {
	pipelineErrors.WithLabelValues(kind).Inc()
}

func ObserveDispatch(eventType string, duration time.Duration) {
	dispatchDuration.WithLabelValues(eventType).Observe(duration.Seconds())
}

func TrackRejectedTask() {
	workerRejected.Inc()
}

func TrackNotification(kind, status string) {
	notificationsSent.WithLabelValues(kind, status).Inc()
}

func TrackPublish(topic, status string) {
	domainEventsPublished.WithLabelValues(topic, status).Inc()
}

// SampleQueueDepth polls depth every interval until ctx is done.
func SampleQueueDepth(ctx context.Context, depth func() int, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			workerQueueDepth.Set(float64(depth()))
		}
	}
}
