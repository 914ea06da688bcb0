package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Бизнес-метрики сервисного слоя.
var (
	// operationsTotal — файловые операции по типу и результату.
	operationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cdn_operations_total",
			Help: "Общее количество файловых операций",
		},
		[]string{"operation", "result"},
	)

	// ingestedBytesTotal — объём принятого содержимого.
	ingestedBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cdn_ingested_bytes_total",
			Help: "Общий объём загруженного содержимого в байтах",
		},
	)
)

// observe учитывает результат операции.
func observe(operation string, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	operationsTotal.WithLabelValues(operation, result).Inc()
}
