package metric

import (
	"sync/atomic"

	"github.com/dushixiang/pingtray/internal/protocol"
	"github.com/dushixiang/pingtray/pkg/agent/monitor"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "pingtray"

// Source 监控状态来源
type Source interface {
	Status() protocol.MonitorStatus
	Subscribe(fn monitor.Listener) (unsubscribe func())
}

var healthStates = []protocol.HealthState{
	protocol.HealthUnknown,
	protocol.HealthOK,
	protocol.HealthDegraded,
	protocol.HealthDown,
}

// Collector 在每次抓取时从监控器读取状态，探测次数由订阅通知累计
type Collector struct {
	source Source

	probesOK     atomic.Uint64
	probesFailed atomic.Uint64

	running     *prometheus.Desc
	health      *prometheus.Desc
	loss        *prometheus.Desc
	avgLatency  *prometheus.Desc
	lastLatency *prometheus.Desc
	retained    *prometheus.Desc
	probes      *prometheus.Desc
}

// NewCollector 创建指标采集器并订阅探测通知，返回取消订阅函数
func NewCollector(source Source) (*Collector, func()) {
	c := &Collector{
		source: source,
		running: prometheus.NewDesc(namespace+"_running",
			"Whether the probe loop is running.", nil, nil),
		health: prometheus.NewDesc(namespace+"_health_state",
			"Current health state (1 for the active state).", []string{"state"}, nil),
		loss: prometheus.NewDesc(namespace+"_loss_percent",
			"Packet loss over the statistics window.", nil, nil),
		avgLatency: prometheus.NewDesc(namespace+"_latency_avg_ms",
			"Average round-trip time of successful probes in the window.", nil, nil),
		lastLatency: prometheus.NewDesc(namespace+"_latency_last_ms",
			"Round-trip time of the most recent successful probe.", nil, nil),
		retained: prometheus.NewDesc(namespace+"_samples_retained",
			"Number of samples held in memory.", nil, nil),
		probes: prometheus.NewDesc(namespace+"_probes_total",
			"Completed probes by result.", []string{"result"}, nil),
	}
	unsubscribe := source.Subscribe(func(evt monitor.Event) {
		if evt.Kind != monitor.EventSample {
			return
		}
		if evt.Sample.Success {
			c.probesOK.Add(1)
		} else {
			c.probesFailed.Add(1)
		}
	})
	return c, unsubscribe
}

// Describe 实现 prometheus.Collector
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.running
	ch <- c.health
	ch <- c.loss
	ch <- c.avgLatency
	ch <- c.lastLatency
	ch <- c.retained
	ch <- c.probes
}

// Collect 实现 prometheus.Collector
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	status := c.source.Status()

	running := 0.0
	if status.Running {
		running = 1
	}
	ch <- prometheus.MustNewConstMetric(c.running, prometheus.GaugeValue, running)

	for _, state := range healthStates {
		v := 0.0
		if status.Health == state {
			v = 1
		}
		ch <- prometheus.MustNewConstMetric(c.health, prometheus.GaugeValue, v, string(state))
	}

	ch <- prometheus.MustNewConstMetric(c.loss, prometheus.GaugeValue, status.LossPercent)
	if status.AvgLatencyMs != nil {
		ch <- prometheus.MustNewConstMetric(c.avgLatency, prometheus.GaugeValue, *status.AvgLatencyMs)
	}
	if status.Last != nil {
		if rtt, ok := status.Last.RoundTrip(); ok {
			ch <- prometheus.MustNewConstMetric(c.lastLatency, prometheus.GaugeValue, float64(rtt))
		}
	}
	ch <- prometheus.MustNewConstMetric(c.retained, prometheus.GaugeValue, float64(status.Retained))
	ch <- prometheus.MustNewConstMetric(c.probes, prometheus.CounterValue, float64(c.probesOK.Load()), "success")
	ch <- prometheus.MustNewConstMetric(c.probes, prometheus.CounterValue, float64(c.probesFailed.Load()), "failure")
}

// NewRegistry 创建只包含本采集器的注册表
func NewRegistry(c *Collector) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(c)
	return reg
}
