package backup

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	backupResultsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "netfortress_backup_results_total",
			Help: "Per-device backup results by status and platform",
		},
		[]string{"status", "platform"},
	)

	backupJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "netfortress_backup_jobs_total",
			Help: "Finished backup jobs by terminal status",
		},
		[]string{"status"},
	)

	backupDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "netfortress_backup_duration_seconds",
			Help:    "Per-device backup duration from connect to commit",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		},
		[]string{"platform"},
	)

	devicesInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "netfortress_backup_devices_in_flight",
			Help: "Devices currently being backed up",
		},
	)
)
