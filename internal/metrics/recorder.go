// =============================================================================
// 文件: internal/metrics/recorder.go
// 描述: 仿真指标累加器 - 汇聚各次试验的报告, 供 Prometheus 收集器读取
// =============================================================================
package metrics

import (
	"sync/atomic"
	"time"

	"github.com/mrcgq/arqsim/internal/emulator"
)

// Recorder 跨试验的指标累加器
// Observe 可能被多个试验 goroutine 并发调用, 全部字段用原子操作
type Recorder struct {
	trialsRun    uint64
	trialsPassed uint64

	messagesOffered   uint64
	messagesAccepted  uint64
	messagesDelivered uint64

	packetsSent      uint64
	packetsResent    uint64
	packetsLost      uint64
	packetsCorrupted uint64
	timeouts         uint64
	acksSent         uint64
	duplicateAcks    uint64
	corruptedDrops   uint64

	simTimeTotal uint64 // 累计仿真时长, 以千分之一时间单位计

	startTime time.Time
}

// NewRecorder 创建累加器
func NewRecorder() *Recorder {
	return &Recorder{startTime: time.Now()}
}

// Observe 登记一次试验的报告
func (r *Recorder) Observe(report *emulator.Report) {
	atomic.AddUint64(&r.trialsRun, 1)
	if report.Passed() {
		atomic.AddUint64(&r.trialsPassed, 1)
	}

	atomic.AddUint64(&r.messagesOffered, uint64(report.MessagesOffered))
	atomic.AddUint64(&r.messagesAccepted, uint64(report.MessagesAccepted))
	atomic.AddUint64(&r.messagesDelivered, uint64(report.MessagesDelivered))

	atomic.AddUint64(&r.packetsSent, report.Sender.PacketsSent)
	atomic.AddUint64(&r.packetsResent, report.Sender.PacketsResent)
	atomic.AddUint64(&r.packetsLost, report.Channel.PacketsLost)
	atomic.AddUint64(&r.packetsCorrupted, report.Channel.PacketsCorrupted)
	atomic.AddUint64(&r.timeouts, report.Sender.Timeouts)
	atomic.AddUint64(&r.acksSent, report.Receiver.AcksSent)
	atomic.AddUint64(&r.duplicateAcks, report.Sender.DuplicateAcks)
	atomic.AddUint64(&r.corruptedDrops,
		report.Sender.CorruptedAcks+report.Receiver.CorruptedPackets)

	atomic.AddUint64(&r.simTimeTotal, uint64(report.Duration*1000))
}

// GetTrialsRun 获取已完成的试验数
func (r *Recorder) GetTrialsRun() uint64 { return atomic.LoadUint64(&r.trialsRun) }

// GetTrialsPassed 获取通过核验的试验数
func (r *Recorder) GetTrialsPassed() uint64 { return atomic.LoadUint64(&r.trialsPassed) }

// GetMessagesOffered 获取注入的消息总数
func (r *Recorder) GetMessagesOffered() uint64 { return atomic.LoadUint64(&r.messagesOffered) }

// GetMessagesAccepted 获取被接纳的消息总数
func (r *Recorder) GetMessagesAccepted() uint64 { return atomic.LoadUint64(&r.messagesAccepted) }

// GetMessagesDelivered 获取交付的消息总数
func (r *Recorder) GetMessagesDelivered() uint64 { return atomic.LoadUint64(&r.messagesDelivered) }

// GetPacketsSent 获取首发包总数
func (r *Recorder) GetPacketsSent() uint64 { return atomic.LoadUint64(&r.packetsSent) }

// GetPacketsResent 获取重传包总数
func (r *Recorder) GetPacketsResent() uint64 { return atomic.LoadUint64(&r.packetsResent) }

// GetPacketsLost 获取信道丢弃的包总数
func (r *Recorder) GetPacketsLost() uint64 { return atomic.LoadUint64(&r.packetsLost) }

// GetPacketsCorrupted 获取信道损坏的包总数
func (r *Recorder) GetPacketsCorrupted() uint64 { return atomic.LoadUint64(&r.packetsCorrupted) }

// GetTimeouts 获取超时总数
func (r *Recorder) GetTimeouts() uint64 { return atomic.LoadUint64(&r.timeouts) }

// GetAcksSent 获取 ACK 发出总数
func (r *Recorder) GetAcksSent() uint64 { return atomic.LoadUint64(&r.acksSent) }

// GetDuplicateAcks 获取重复 ACK 总数
func (r *Recorder) GetDuplicateAcks() uint64 { return atomic.LoadUint64(&r.duplicateAcks) }

// GetCorruptedDrops 获取因校验失败被丢弃的包总数 (双向)
func (r *Recorder) GetCorruptedDrops() uint64 { return atomic.LoadUint64(&r.corruptedDrops) }

// GetSimTimeTotal 获取累计仿真时长 (仿真时间单位)
func (r *Recorder) GetSimTimeTotal() float64 {
	return float64(atomic.LoadUint64(&r.simTimeTotal)) / 1000
}

// GetUptimeSeconds 获取进程运行时间
func (r *Recorder) GetUptimeSeconds() float64 {
	return time.Since(r.startTime).Seconds()
}

// GetStats 获取所有统计信息
func (r *Recorder) GetStats() map[string]interface{} {
	return map[string]interface{}{
		"trials_run":         r.GetTrialsRun(),
		"trials_passed":      r.GetTrialsPassed(),
		"messages_offered":   r.GetMessagesOffered(),
		"messages_accepted":  r.GetMessagesAccepted(),
		"messages_delivered": r.GetMessagesDelivered(),
		"packets_sent":       r.GetPacketsSent(),
		"packets_resent":     r.GetPacketsResent(),
		"packets_lost":       r.GetPacketsLost(),
		"packets_corrupted":  r.GetPacketsCorrupted(),
		"timeouts":           r.GetTimeouts(),
		"acks_sent":          r.GetAcksSent(),
	}
}

// Reset 重置所有统计（用于测试）
func (r *Recorder) Reset() {
	atomic.StoreUint64(&r.trialsRun, 0)
	atomic.StoreUint64(&r.trialsPassed, 0)
	atomic.StoreUint64(&r.messagesOffered, 0)
	atomic.StoreUint64(&r.messagesAccepted, 0)
	atomic.StoreUint64(&r.messagesDelivered, 0)
	atomic.StoreUint64(&r.packetsSent, 0)
	atomic.StoreUint64(&r.packetsResent, 0)
	atomic.StoreUint64(&r.packetsLost, 0)
	atomic.StoreUint64(&r.packetsCorrupted, 0)
	atomic.StoreUint64(&r.timeouts, 0)
	atomic.StoreUint64(&r.acksSent, 0)
	atomic.StoreUint64(&r.duplicateAcks, 0)
	atomic.StoreUint64(&r.corruptedDrops, 0)
	atomic.StoreUint64(&r.simTimeTotal, 0)
	r.startTime = time.Now()
}
