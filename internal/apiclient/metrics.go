// metrics.go — Prometheus метрики клиента backend.
// Регистрирует: mdc_api_requests_total, mdc_api_request_duration_seconds, mdc_token_renewals_total.
package apiclient

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// requestsTotal — количество HTTP-запросов (status=error — ответ не получен).
	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mdc_api_requests_total",
			Help: "Общее количество HTTP-запросов к backend",
		},
		[]string{"method", "status"},
	)

	// requestDuration — длительность HTTP-запросов.
	requestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mdc_api_request_duration_seconds",
			Help:    "Длительность HTTP-запросов к backend в секундах",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// renewalsTotal — попытки обновления access token по результату (ok, failed, transport, cancelled, no_refresh).
	renewalsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mdc_token_renewals_total",
			Help: "Попытки обновления access token",
		},
		[]string{"result"},
	)
)
