// =============================================================================
// 文件: internal/metrics/collectors.go
// 描述: Prometheus 指标收集器定义
// =============================================================================
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// SimulationStats 仿真统计数据接口
type SimulationStats interface {
	GetTrialsRun() uint64
	GetTrialsPassed() uint64
	GetMessagesOffered() uint64
	GetMessagesAccepted() uint64
	GetMessagesDelivered() uint64
	GetPacketsSent() uint64
	GetPacketsResent() uint64
	GetPacketsLost() uint64
	GetPacketsCorrupted() uint64
	GetTimeouts() uint64
	GetAcksSent() uint64
	GetDuplicateAcks() uint64
	GetCorruptedDrops() uint64
	GetSimTimeTotal() float64
	GetUptimeSeconds() float64
}

// SimulationCollector 仿真指标收集器
type SimulationCollector struct {
	statsProvider SimulationStats

	// 描述符
	trialsRunDesc    *prometheus.Desc
	trialsPassedDesc *prometheus.Desc
	messagesDesc     *prometheus.Desc
	packetsDesc      *prometheus.Desc
	channelDropDesc  *prometheus.Desc
	timeoutsDesc     *prometheus.Desc
	acksSentDesc     *prometheus.Desc
	dupAcksDesc      *prometheus.Desc
	checksumDropDesc *prometheus.Desc
	simTimeDesc      *prometheus.Desc
	uptimeDesc       *prometheus.Desc
}

// NewSimulationCollector 创建仿真收集器
func NewSimulationCollector(provider SimulationStats) *SimulationCollector {
	namespace := "arqsim"
	subsystem := "sim"

	return &SimulationCollector{
		statsProvider: provider,

		trialsRunDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "trials_total"),
			"Total number of simulation trials completed",
			nil, nil,
		),
		trialsPassedDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "trials_passed_total"),
			"Total number of trials that passed verification",
			nil, nil,
		),
		messagesDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "messages_total"),
			"Application messages by stage",
			[]string{"stage"}, nil,
		),
		packetsDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "packets_total"),
			"Data packets transmitted by kind",
			[]string{"kind"}, nil,
		),
		channelDropDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "channel_impairments_total"),
			"Packets impaired by the channel",
			[]string{"impairment"}, nil,
		),
		timeoutsDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "timeouts_total"),
			"Retransmission timer expirations",
			nil, nil,
		),
		acksSentDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "acks_sent_total"),
			"Acknowledgements sent by the receiver",
			nil, nil,
		),
		dupAcksDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "duplicate_acks_total"),
			"Duplicate or out-of-window acknowledgements",
			nil, nil,
		),
		checksumDropDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "checksum_drops_total"),
			"Packets discarded due to checksum mismatch",
			nil, nil,
		),
		simTimeDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "time_units_total"),
			"Accumulated simulated time units",
			nil, nil,
		),
		uptimeDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "uptime_seconds"),
			"Process uptime in seconds",
			nil, nil,
		),
	}
}

// Describe 实现 prometheus.Collector 接口
func (c *SimulationCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.trialsRunDesc
	ch <- c.trialsPassedDesc
	ch <- c.messagesDesc
	ch <- c.packetsDesc
	ch <- c.channelDropDesc
	ch <- c.timeoutsDesc
	ch <- c.acksSentDesc
	ch <- c.dupAcksDesc
	ch <- c.checksumDropDesc
	ch <- c.simTimeDesc
	ch <- c.uptimeDesc
}

// Collect 实现 prometheus.Collector 接口
func (c *SimulationCollector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(c.trialsRunDesc, prometheus.CounterValue,
		float64(c.statsProvider.GetTrialsRun()))
	ch <- prometheus.MustNewConstMetric(c.trialsPassedDesc, prometheus.CounterValue,
		float64(c.statsProvider.GetTrialsPassed()))

	// 消息按阶段
	ch <- prometheus.MustNewConstMetric(c.messagesDesc, prometheus.CounterValue,
		float64(c.statsProvider.GetMessagesOffered()), "offered")
	ch <- prometheus.MustNewConstMetric(c.messagesDesc, prometheus.CounterValue,
		float64(c.statsProvider.GetMessagesAccepted()), "accepted")
	ch <- prometheus.MustNewConstMetric(c.messagesDesc, prometheus.CounterValue,
		float64(c.statsProvider.GetMessagesDelivered()), "delivered")

	// 数据包按类型
	ch <- prometheus.MustNewConstMetric(c.packetsDesc, prometheus.CounterValue,
		float64(c.statsProvider.GetPacketsSent()), "initial")
	ch <- prometheus.MustNewConstMetric(c.packetsDesc, prometheus.CounterValue,
		float64(c.statsProvider.GetPacketsResent()), "retransmit")

	// 信道损伤
	ch <- prometheus.MustNewConstMetric(c.channelDropDesc, prometheus.CounterValue,
		float64(c.statsProvider.GetPacketsLost()), "loss")
	ch <- prometheus.MustNewConstMetric(c.channelDropDesc, prometheus.CounterValue,
		float64(c.statsProvider.GetPacketsCorrupted()), "corruption")

	ch <- prometheus.MustNewConstMetric(c.timeoutsDesc, prometheus.CounterValue,
		float64(c.statsProvider.GetTimeouts()))
	ch <- prometheus.MustNewConstMetric(c.acksSentDesc, prometheus.CounterValue,
		float64(c.statsProvider.GetAcksSent()))
	ch <- prometheus.MustNewConstMetric(c.dupAcksDesc, prometheus.CounterValue,
		float64(c.statsProvider.GetDuplicateAcks()))
	ch <- prometheus.MustNewConstMetric(c.checksumDropDesc, prometheus.CounterValue,
		float64(c.statsProvider.GetCorruptedDrops()))
	ch <- prometheus.MustNewConstMetric(c.simTimeDesc, prometheus.CounterValue,
		c.statsProvider.GetSimTimeTotal())
	ch <- prometheus.MustNewConstMetric(c.uptimeDesc, prometheus.GaugeValue,
		c.statsProvider.GetUptimeSeconds())
}
