package httpapi

import (
	"github.com/prometheus/client_golang/prometheus"

	"modelcore/pkg/types"
)

// StatsSource provides snapshots for the stats collector.
type StatsSource interface {
	Stats() types.StatsResponse
}

// statsCollector exports registry and pipeline snapshots on scrape.
type statsCollector struct {
	src StatsSource

	memoryUsed     *prometheus.Desc
	memoryCeiling  *prometheus.Desc
	modelsLoaded   *prometheus.Desc
	modelResident  *prometheus.Desc
	modelInflight  *prometheus.Desc
	loadsTotal     *prometheus.Desc
	evictionsTotal *prometheus.Desc
	requestsTotal  *prometheus.Desc
	queueDepth     *prometheus.Desc
	slotsAvailable *prometheus.Desc
}

// NewStatsCollector returns a collector reading src on every scrape.
func NewStatsCollector(src StatsSource) prometheus.Collector {
	fq := func(sub, name string) string { return prometheus.BuildFQName("modelcore", sub, name) }
	return &statsCollector{
		src:            src,
		memoryUsed:     prometheus.NewDesc(fq("registry", "memory_used_bytes"), "Resident memory accounted to loaded models.", nil, nil),
		memoryCeiling:  prometheus.NewDesc(fq("registry", "memory_ceiling_bytes"), "Configured memory ceiling.", nil, nil),
		modelsLoaded:   prometheus.NewDesc(fq("registry", "models_loaded"), "Number of resident models.", nil, nil),
		modelResident:  prometheus.NewDesc(fq("registry", "model_resident_bytes"), "Resident memory per model.", []string{"model", "category"}, nil),
		modelInflight:  prometheus.NewDesc(fq("registry", "model_inflight"), "Inference calls running per model.", []string{"model"}, nil),
		loadsTotal:     prometheus.NewDesc(fq("registry", "loads_total"), "Completed model loads.", nil, nil),
		evictionsTotal: prometheus.NewDesc(fq("registry", "evictions_total"), "Models evicted to make room or relieve pressure.", nil, nil),
		requestsTotal:  prometheus.NewDesc(fq("dispatcher", "requests_total"), "Inference requests by outcome.", []string{"outcome"}, nil),
		queueDepth:     prometheus.NewDesc(fq("dispatcher", "queue_depth"), "Queued requests per priority.", []string{"priority"}, nil),
		slotsAvailable: prometheus.NewDesc(fq("dispatcher", "slots_available"), "Free execution slots per resource class.", []string{"class"}, nil),
	}
}

func (c *statsCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.memoryUsed, c.memoryCeiling, c.modelsLoaded, c.modelResident, c.modelInflight,
		c.loadsTotal, c.evictionsTotal, c.requestsTotal, c.queueDepth, c.slotsAvailable,
	} {
		ch <- d
	}
}

func (c *statsCollector) Collect(ch chan<- prometheus.Metric) {
	st := c.src.Stats()
	reg, pipe := st.Registry, st.Pipeline

	ch <- prometheus.MustNewConstMetric(c.memoryUsed, prometheus.GaugeValue, float64(reg.TotalMemory))
	ch <- prometheus.MustNewConstMetric(c.memoryCeiling, prometheus.GaugeValue, float64(reg.CeilingBytes))
	ch <- prometheus.MustNewConstMetric(c.modelsLoaded, prometheus.GaugeValue, float64(reg.LoadedCount))
	for _, m := range reg.Models {
		ch <- prometheus.MustNewConstMetric(c.modelResident, prometheus.GaugeValue, float64(m.ResidentBytes), m.ModelID, string(m.Category))
		ch <- prometheus.MustNewConstMetric(c.modelInflight, prometheus.GaugeValue, float64(m.Inflight), m.ModelID)
	}
	ch <- prometheus.MustNewConstMetric(c.loadsTotal, prometheus.CounterValue, float64(reg.LoadsTotal))
	ch <- prometheus.MustNewConstMetric(c.evictionsTotal, prometheus.CounterValue, float64(reg.EvictionsTotal))

	ch <- prometheus.MustNewConstMetric(c.requestsTotal, prometheus.CounterValue, float64(pipe.Completed), "completed")
	ch <- prometheus.MustNewConstMetric(c.requestsTotal, prometheus.CounterValue, float64(pipe.Failed), "failed")
	ch <- prometheus.MustNewConstMetric(c.requestsTotal, prometheus.CounterValue, float64(pipe.Cancelled), "cancelled")
	for p, n := range pipe.QueueDepth {
		ch <- prometheus.MustNewConstMetric(c.queueDepth, prometheus.GaugeValue, float64(n), p)
	}
	for class, n := range pipe.AvailableSlots {
		ch <- prometheus.MustNewConstMetric(c.slotsAvailable, prometheus.GaugeValue, float64(n), class)
	}
}
