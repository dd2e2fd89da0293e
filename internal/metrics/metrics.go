// Package metrics exposes Prometheus collectors for the mutation core and
// the notification dispatcher.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CommitConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "workdeck_commit_conflicts_total",
		Help: "Task commits rejected by the version check.",
	})

	NotificationsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "workdeck_notifications_sent_total",
		Help: "Notification jobs executed successfully, by kind.",
	}, []string{"kind"})

	NotificationFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "workdeck_notification_failures_total",
		Help: "Notification jobs that returned an error or panicked.",
	})

	NotificationsInline = promauto.NewCounter(prometheus.CounterOpts{
		Name: "workdeck_notifications_inline_total",
		Help: "Notification jobs executed on the submitting goroutine under backpressure.",
	})

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "workdeck_notification_queue_depth",
		Help: "Jobs waiting in the dispatcher queue.",
	})

	BusyWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "workdeck_notification_busy_workers",
		Help: "Dispatcher workers currently executing a job.",
	})
)
