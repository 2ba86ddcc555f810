// Package observability 运行指标：进程为一次性批处理，指标在结束时推送到 Pushgateway
package observability

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

const namespace = "health_etl"

// Metrics 一次运行的指标集合（独立 Registry，便于推送与测试）
type Metrics struct {
	Registry *prometheus.Registry

	recordsExtracted *prometheus.CounterVec
	rowsLoaded       *prometheus.CounterVec
	stageFailures    *prometheus.CounterVec
	stageDuration    *prometheus.HistogramVec
	lastSuccess      prometheus.Gauge
	cardsCreated     prometheus.Counter
	cardsFailed      prometheus.Counter
}

// NewMetrics 创建并注册指标
func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		recordsExtracted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "records_extracted_total",
			Help:      "Number of raw records read from an export, by source.",
		}, []string{"source"}),
		rowsLoaded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "rows_loaded_total",
			Help:      "Number of rows written to the warehouse, by table.",
		}, []string{"table"}),
		stageFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "stage_failures_total",
			Help:      "Number of stages that finished with a partial or fatal outcome.",
		}, []string{"stage", "outcome"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Wall time per pipeline stage.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"stage"}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix timestamp of the last run without fatal stages.",
		}),
		cardsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dashboard",
			Name:      "cards_created_total",
			Help:      "Number of dashboard cards created.",
		}),
		cardsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dashboard",
			Name:      "cards_failed_total",
			Help:      "Number of dashboard cards that could not be created.",
		}),
	}

	m.Registry.MustRegister(
		m.recordsExtracted,
		m.rowsLoaded,
		m.stageFailures,
		m.stageDuration,
		m.lastSuccess,
		m.cardsCreated,
		m.cardsFailed,
	)
	return m
}

// 以下方法允许 nil 接收者，未启用指标时调用方无需判空

func (m *Metrics) RecordExtracted(source string, n int) {
	if m == nil {
		return
	}
	m.recordsExtracted.WithLabelValues(source).Add(float64(n))
}

func (m *Metrics) RecordLoaded(table string, n int) {
	if m == nil {
		return
	}
	m.rowsLoaded.WithLabelValues(table).Add(float64(n))
}

func (m *Metrics) RecordStageFailure(stage, outcome string) {
	if m == nil {
		return
	}
	m.stageFailures.WithLabelValues(stage, outcome).Inc()
}

func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (m *Metrics) MarkSuccess(at time.Time) {
	if m == nil {
		return
	}
	m.lastSuccess.Set(float64(at.Unix()))
}

func (m *Metrics) RecordCard(ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.cardsCreated.Inc()
		return
	}
	m.cardsFailed.Inc()
}

// Push 推送到 Pushgateway（url 为空时不推送）
func (m *Metrics) Push(ctx context.Context, url, job string) error {
	if m == nil || url == "" {
		return nil
	}
	if err := push.New(url, job).Gatherer(m.Registry).PushContext(ctx); err != nil {
		return fmt.Errorf("failed to push metrics: %w", err)
	}
	return nil
}
