// =============================================================================
// 文件: internal/emulator/report.go
// 描述: 单次试验报告 - 汇总两端统计/信道统计/核验结论
// =============================================================================
package emulator

import (
	"fmt"
	"strings"

	"github.com/mrcgq/arqsim/internal/protocol"
)

// Report 一次仿真试验的完整结果
type Report struct {
	Seed     int64   // 实际使用的随机种子
	Duration float64 // 仿真结束时刻 (仿真时间单位)
	Events   uint64  // 处理的事件总数

	MessagesOffered  int // 应用层注入的消息数
	MessagesAccepted int // 发送端接纳的消息数
	MessagesDelivered int // 接收端交付的消息数

	Sender   protocol.SenderStats
	Receiver protocol.ReceiverStats
	Channel  ChannelStats
	Dedup    DedupStats

	Violations []string // 协议违例描述, 为空表示本次试验通过核验
}

// Passed 本次试验是否通过全部核验
func (r *Report) Passed() bool {
	return len(r.Violations) == 0
}

// RetransmitRatio 重传占发送总量的比例
func (r *Report) RetransmitRatio() float64 {
	total := r.Sender.PacketsSent + r.Sender.PacketsResent
	if total == 0 {
		return 0
	}
	return float64(r.Sender.PacketsResent) / float64(total)
}

// Summary 人类可读的多行摘要
func (r *Report) Summary() string {
	var b strings.Builder

	verdict := "通过"
	if !r.Passed() {
		verdict = "失败"
	}

	fmt.Fprintf(&b, "===== 试验报告 (seed=%d) =====\n", r.Seed)
	fmt.Fprintf(&b, "核验结论:      %s\n", verdict)
	fmt.Fprintf(&b, "仿真时长:      %.1f 时间单位, %d 个事件\n", r.Duration, r.Events)
	fmt.Fprintf(&b, "消息:          注入 %d / 接纳 %d / 交付 %d\n",
		r.MessagesOffered, r.MessagesAccepted, r.MessagesDelivered)
	fmt.Fprintf(&b, "发送端:        首发 %d, 重传 %d (占比 %.1f%%), 超时 %d 次\n",
		r.Sender.PacketsSent, r.Sender.PacketsResent, 100*r.RetransmitRatio(), r.Sender.Timeouts)
	fmt.Fprintf(&b, "接收端:        乱序暂存 %d, 窗口内重复 %d, 旧重复补认 %d, 发出 ACK %d\n",
		r.Receiver.BufferedOutOfSeq, r.Receiver.DuplicatePackets, r.Receiver.OldDuplicates, r.Receiver.AcksSent)
	fmt.Fprintf(&b, "信道:          进入 %d, 丢失 %d, 损坏 %d\n",
		r.Channel.PacketsInjected, r.Channel.PacketsLost, r.Channel.PacketsCorrupted)

	for _, v := range r.Violations {
		fmt.Fprintf(&b, "违例:          %s\n", v)
	}
	return b.String()
}

// buildReport 收集仿真结束后的快照
func (em *Emulator) buildReport() *Report {
	return &Report{
		Seed:              em.sim.Seed,
		Duration:          em.now,
		Events:            em.events,
		MessagesOffered:   em.msgCounter,
		MessagesAccepted:  len(em.accepted),
		MessagesDelivered: em.delivered,
		Sender:            em.sender.GetStats(),
		Receiver:          em.receiver.GetStats(),
		Channel:           em.channel,
		Dedup:             em.guard.Stats(),
		Violations:        append([]string(nil), em.violations...),
	}
}
