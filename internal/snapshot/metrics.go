package snapshot

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	operationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hostprobe_operation_duration_seconds",
			Help:    "Time taken by one telemetry operation, sampling wait included",
			Buckets: []float64{0.1, 0.5, 1, 1.5, 2, 5, 10, 30},
		},
		[]string{"operation"}, // processes, system, disks, handles, snapshot
	)

	operationTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hostprobe_operations_total",
			Help: "Total number of telemetry operations by outcome",
		},
		[]string{"operation", "status"}, // ok, unauthorized, error, canceled
	)

	collectorDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hostprobe_collector_duration_seconds",
			Help:    "Time taken by individual collectors within an operation",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		},
		[]string{"collector"}, // sampler, pids, threads, handles, processes, disks, summary
	)

	degradedFields = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hostprobe_degraded_fields_total",
			Help: "Fields reported as unavailable, by record kind and field",
		},
		[]string{"kind", "field"},
	)

	workersBusy = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hostprobe_workers_busy",
			Help: "Operations currently holding a worker slot",
		},
	)
)
