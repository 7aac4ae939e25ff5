package utils

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type MetricsCollector struct {
	registry   *prometheus.Registry
	namespace  string
	counters   map[string]*prometheus.CounterVec
	gauges     map[string]*prometheus.GaugeVec
	histograms map[string]*prometheus.HistogramVec
	mu         sync.RWMutex
}

func NewMetricsCollector(namespace string, enableRuntimeMetrics bool) *MetricsCollector {
	reg := prometheus.NewRegistry()

	if enableRuntimeMetrics {
		_ = reg.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		_ = reg.Register(collectors.NewGoCollector())
	}

	m := &MetricsCollector{
		registry:   reg,
		namespace:  namespace,
		counters:   make(map[string]*prometheus.CounterVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
		histograms: make(map[string]*prometheus.HistogramVec),
	}
	m.registerReconFamilies()
	return m
}

func (m *MetricsCollector) registerReconFamilies() {
	_ = m.RegisterCounter("probes_total", "Probe outcomes by classification", "status")
	_ = m.RegisterCounter("probe_retries_total", "Probe attempts beyond the first", "platform")
	_ = m.RegisterHistogram("probe_duration_seconds", "Wall-clock duration of a single probe", nil, "platform")
	_ = m.RegisterGauge("probes_in_flight", "Probes currently holding an admission slot")
	_ = m.RegisterCounter("scans_total", "Completed username scans", "outcome")
	_ = m.RegisterHistogram("scan_duration_seconds", "Wall-clock duration of a full scan",
		[]float64{1, 5, 15, 30, 60, 120, 300})
	_ = m.RegisterCounter("tasks_total", "Orchestrator task terminations", "status")
	_ = m.RegisterHistogram("task_duration_seconds", "Execution time of a task from start to terminal state",
		[]float64{1, 5, 15, 30, 60, 120, 300, 600})
	_ = m.RegisterGauge("queue_depth", "Pending tasks in the priority queue")
	_ = m.RegisterGauge("workers_busy", "Workers currently executing a task")
	_ = m.RegisterCounter("correlation_cache_ops_total", "Correlation cache lookups", "result")
}

func (m *MetricsCollector) name(metric string) string {
	if m.namespace == "" {
		return metric
	}
	return m.namespace + "_" + metric
}

func (m *MetricsCollector) RegisterCounter(name, help string, labelNames ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.counters[name]; ok {
		return nil
	}
	cv := prometheus.NewCounterVec(prometheus.CounterOpts{Name: m.name(name), Help: help}, labelNames)
	if err := m.registry.Register(cv); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			m.counters[name] = are.ExistingCollector.(*prometheus.CounterVec)
			return nil
		}
		return err
	}
	m.counters[name] = cv
	return nil
}

func (m *MetricsCollector) RegisterGauge(name, help string, labelNames ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.gauges[name]; ok {
		return nil
	}
	gv := prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: m.name(name), Help: help}, labelNames)
	if err := m.registry.Register(gv); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			m.gauges[name] = are.ExistingCollector.(*prometheus.GaugeVec)
			return nil
		}
		return err
	}
	m.gauges[name] = gv
	return nil
}

func (m *MetricsCollector) RegisterHistogram(name, help string, buckets []float64, labelNames ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.histograms[name]; ok {
		return nil
	}
	if buckets == nil {
		buckets = prometheus.DefBuckets
	}
	hv := prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: m.name(name), Help: help, Buckets: buckets}, labelNames)
	if err := m.registry.Register(hv); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			m.histograms[name] = are.ExistingCollector.(*prometheus.HistogramVec)
			return nil
		}
		return err
	}
	m.histograms[name] = hv
	return nil
}

func (m *MetricsCollector) IncCounter(name string, delta float64, labels prometheus.Labels) {
	m.mu.RLock()
	cv := m.counters[name]
	m.mu.RUnlock()
	if cv != nil {
		cv.With(labels).Add(delta)
	}
}

func (m *MetricsCollector) SetGauge(name string, value float64, labels prometheus.Labels) {
	m.mu.RLock()
	gv := m.gauges[name]
	m.mu.RUnlock()
	if gv != nil {
		gv.With(labels).Set(value)
	}
}

func (m *MetricsCollector) AddGauge(name string, delta float64, labels prometheus.Labels) {
	m.mu.RLock()
	gv := m.gauges[name]
	m.mu.RUnlock()
	if gv != nil {
		gv.With(labels).Add(delta)
	}
}

func (m *MetricsCollector) ObserveHistogram(name string, value float64, labels prometheus.Labels) {
	m.mu.RLock()
	hv := m.histograms[name]
	m.mu.RUnlock()
	if hv != nil {
		hv.With(labels).Observe(value)
	}
}

func (m *MetricsCollector) RecordProbe(status, platform string, d time.Duration) {
	m.IncCounter("probes_total", 1, prometheus.Labels{"status": status})
	m.ObserveHistogram("probe_duration_seconds", d.Seconds(), prometheus.Labels{"platform": platform})
}

func (m *MetricsCollector) RecordProbeRetry(platform string) {
	m.IncCounter("probe_retries_total", 1, prometheus.Labels{"platform": platform})
}

func (m *MetricsCollector) ProbeStarted() {
	m.AddGauge("probes_in_flight", 1, nil)
}

func (m *MetricsCollector) ProbeFinished() {
	m.AddGauge("probes_in_flight", -1, nil)
}

func (m *MetricsCollector) RecordScan(outcome string, d time.Duration) {
	m.IncCounter("scans_total", 1, prometheus.Labels{"outcome": outcome})
	m.ObserveHistogram("scan_duration_seconds", d.Seconds(), nil)
}

func (m *MetricsCollector) RecordTask(status string) {
	m.IncCounter("tasks_total", 1, prometheus.Labels{"status": status})
}

func (m *MetricsCollector) RecordTaskDuration(d time.Duration) {
	m.ObserveHistogram("task_duration_seconds", d.Seconds(), nil)
}

func (m *MetricsCollector) SetQueueDepth(n int) {
	m.SetGauge("queue_depth", float64(n), nil)
}

func (m *MetricsCollector) SetWorkersBusy(n int) {
	m.SetGauge("workers_busy", float64(n), nil)
}

func (m *MetricsCollector) RecordCacheOp(result string) {
	m.IncCounter("correlation_cache_ops_total", 1, prometheus.Labels{"result": result})
}

func (m *MetricsCollector) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *MetricsCollector) StartServerWithContext(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	server := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return fmt.Errorf("metrics server error: %w", err)
	}
}

func (m *MetricsCollector) GetRegistry() *prometheus.Registry {
	return m.registry
}

func DefaultMetricsCollector() *MetricsCollector {
	return NewMetricsCollector("profilynx", true)
}
