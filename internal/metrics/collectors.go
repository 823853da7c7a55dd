// =============================================================================
// 文件: internal/metrics/collectors.go
// 描述: Prometheus 指标收集器 - RDT 引擎与信道统计
// =============================================================================
package metrics

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mrcgq/rdt/internal/channel"
	"github.com/mrcgq/rdt/internal/rdt"
)

const namespace = "rdt"

// EngineStats 引擎统计数据接口
type EngineStats interface {
	Stats() rdt.Stats
}

// ChannelStats 信道统计数据接口
type ChannelStats interface {
	Stats() channel.Stats
}

// =============================================================================
// Engine 收集器
// =============================================================================

type engineEntry struct {
	trial    string
	provider EngineStats
}

// EngineCollector 引擎指标收集器, 每个引擎按 (trial, role) 区分
type EngineCollector struct {
	engines []engineEntry
	mu      sync.RWMutex

	segmentsSentDesc     *prometheus.Desc
	bytesSentDesc        *prometheus.Desc
	retransmitsDesc      *prometheus.Desc
	fastRetransmitsDesc  *prometheus.Desc
	staleRetransmitsDesc *prometheus.Desc
	inFlightDesc         *prometheus.Desc
	acksSentDesc         *prometheus.Desc
	acksReceivedDesc     *prometheus.Desc
	dupAcksDesc          *prometheus.Desc
	segmentsReceivedDesc *prometheus.Desc
	discardedDesc        *prometheus.Desc
	deliveredDesc        *prometheus.Desc
	cursorDesc           *prometheus.Desc
	ticksDesc            *prometheus.Desc
}

// NewEngineCollector 创建引擎收集器
func NewEngineCollector() *EngineCollector {
	subsystem := "engine"
	labels := []string{"trial", "role"}

	desc := func(name, help string, extra ...string) *prometheus.Desc {
		return prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, name),
			help, append(append([]string{}, labels...), extra...), nil,
		)
	}

	return &EngineCollector{
		segmentsSentDesc:     desc("segments_sent_total", "Data segments transmitted, including retransmissions"),
		bytesSentDesc:        desc("bytes_sent_total", "Payload bytes transmitted"),
		retransmitsDesc:      desc("retransmits_total", "Segments retransmitted"),
		fastRetransmitsDesc:  desc("fast_retransmits_total", "Retransmissions triggered by duplicate acknowledgments"),
		staleRetransmitsDesc: desc("stale_retransmits_total", "Retransmissions triggered by the staleness threshold"),
		inFlightDesc:         desc("bytes_in_flight", "Unacknowledged bytes currently in flight"),
		acksSentDesc:         desc("acks_sent_total", "Acknowledgments sent"),
		acksReceivedDesc:     desc("acks_received_total", "Acknowledgments received"),
		dupAcksDesc:          desc("dup_acks_total", "Duplicate cumulative acknowledgments observed"),
		segmentsReceivedDesc: desc("segments_received_total", "Segments taken from the channel"),
		discardedDesc:        desc("segments_discarded_total", "Received segments discarded", "reason"),
		deliveredDesc:        desc("bytes_delivered_total", "Bytes accepted in order into the delivery buffer"),
		cursorDesc:           desc("delivery_cursor", "Next contiguous offset expected"),
		ticksDesc:            desc("ticks_total", "Ticks processed"),
	}
}

// Add 注册一个引擎
func (c *EngineCollector) Add(trial int, provider EngineStats) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.engines = append(c.engines, engineEntry{trial: strconv.Itoa(trial), provider: provider})
}

// Describe 实现 prometheus.Collector 接口
func (c *EngineCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.segmentsSentDesc
	ch <- c.bytesSentDesc
	ch <- c.retransmitsDesc
	ch <- c.fastRetransmitsDesc
	ch <- c.staleRetransmitsDesc
	ch <- c.inFlightDesc
	ch <- c.acksSentDesc
	ch <- c.acksReceivedDesc
	ch <- c.dupAcksDesc
	ch <- c.segmentsReceivedDesc
	ch <- c.discardedDesc
	ch <- c.deliveredDesc
	ch <- c.cursorDesc
	ch <- c.ticksDesc
}

// Collect 实现 prometheus.Collector 接口
func (c *EngineCollector) Collect(ch chan<- prometheus.Metric) {
	c.mu.RLock()
	engines := make([]engineEntry, len(c.engines))
	copy(engines, c.engines)
	c.mu.RUnlock()

	for _, e := range engines {
		s := e.provider.Stats()
		lv := []string{e.trial, s.Role}

		counter := func(d *prometheus.Desc, v uint64, extra ...string) {
			ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v), append(lv, extra...)...)
		}

		counter(c.segmentsSentDesc, s.SegmentsSent)
		counter(c.bytesSentDesc, s.BytesSent)
		counter(c.retransmitsDesc, s.Retransmits)
		counter(c.fastRetransmitsDesc, s.FastRetransmits)
		counter(c.staleRetransmitsDesc, s.StaleRetransmits)
		counter(c.acksSentDesc, s.AcksSent)
		counter(c.acksReceivedDesc, s.AcksReceived)
		counter(c.dupAcksDesc, s.DupAcks)
		counter(c.segmentsReceivedDesc, s.SegmentsReceived)
		counter(c.discardedDesc, s.Corrupted, "corrupt")
		counter(c.discardedDesc, s.Duplicates, "duplicate")
		counter(c.discardedDesc, s.StaleArrivals, "stale")
		counter(c.deliveredDesc, s.BytesDelivered)
		counter(c.ticksDesc, s.Ticks)

		ch <- prometheus.MustNewConstMetric(c.inFlightDesc, prometheus.GaugeValue, float64(s.BytesInFlight), lv...)
		ch <- prometheus.MustNewConstMetric(c.cursorDesc, prometheus.GaugeValue, float64(s.DeliveryCursor), lv...)
	}
}

// =============================================================================
// Channel 收集器
// =============================================================================

type channelEntry struct {
	trial     string
	direction string
	provider  ChannelStats
}

// ChannelCollector 信道故障统计收集器
type ChannelCollector struct {
	channels []channelEntry
	mu       sync.RWMutex

	segmentsDesc *prometheus.Desc
}

// NewChannelCollector 创建信道收集器
func NewChannelCollector() *ChannelCollector {
	return &ChannelCollector{
		segmentsDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "channel", "segments_total"),
			"Segments handled by the unreliable channel, by outcome",
			[]string{"trial", "direction", "outcome"}, nil,
		),
	}
}

// Add 注册一条信道
func (c *ChannelCollector) Add(trial int, direction string, provider ChannelStats) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.channels = append(c.channels, channelEntry{
		trial:     strconv.Itoa(trial),
		direction: direction,
		provider:  provider,
	})
}

// Describe 实现 prometheus.Collector 接口
func (c *ChannelCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.segmentsDesc
}

// Collect 实现 prometheus.Collector 接口
func (c *ChannelCollector) Collect(ch chan<- prometheus.Metric) {
	c.mu.RLock()
	channels := make([]channelEntry, len(c.channels))
	copy(channels, c.channels)
	c.mu.RUnlock()

	for _, e := range channels {
		s := e.provider.Stats()
		outcomes := []struct {
			name string
			v    uint64
		}{
			{"sent", s.Sent},
			{"delivered", s.Delivered},
			{"dropped", s.Dropped},
			{"corrupted", s.Corrupted},
			{"duplicated", s.Duplicated},
			{"delayed", s.Delayed},
		}
		for _, o := range outcomes {
			ch <- prometheus.MustNewConstMetric(c.segmentsDesc, prometheus.CounterValue,
				float64(o.v), e.trial, e.direction, o.name)
		}
	}
}
