// =============================================================================
// 文件: internal/runner/aggregate.go
// 描述: 批量试验结果聚合
// =============================================================================
package runner

import (
	"fmt"
	"strings"

	"github.com/mrcgq/arqsim/internal/emulator"
)

// Aggregate 一批试验的汇总结果
type Aggregate struct {
	BaseSeed int64
	Trials   int
	Passed   int

	MessagesOffered   int
	MessagesAccepted  int
	MessagesDelivered int

	PacketsSent     uint64
	PacketsResent   uint64
	PacketsLost     uint64
	PacketsCorrupted uint64
	Timeouts        uint64
	AcksSent        uint64

	Reports []*emulator.Report
}

// AllPassed 是否全部试验通过核验
func (a *Aggregate) AllPassed() bool {
	return a.Passed == a.Trials
}

// RetransmitRatio 全批次的重传比例
func (a *Aggregate) RetransmitRatio() float64 {
	total := a.PacketsSent + a.PacketsResent
	if total == 0 {
		return 0
	}
	return float64(a.PacketsResent) / float64(total)
}

// Summary 人类可读的批量摘要
func (a *Aggregate) Summary() string {
	var b strings.Builder

	fmt.Fprintf(&b, "===== 批量报告 (%d 次试验, 基准种子 %d) =====\n", a.Trials, a.BaseSeed)
	fmt.Fprintf(&b, "核验:          %d/%d 通过\n", a.Passed, a.Trials)
	fmt.Fprintf(&b, "消息:          注入 %d / 接纳 %d / 交付 %d\n",
		a.MessagesOffered, a.MessagesAccepted, a.MessagesDelivered)
	fmt.Fprintf(&b, "发送:          首发 %d, 重传 %d (占比 %.1f%%), 超时 %d 次\n",
		a.PacketsSent, a.PacketsResent, 100*a.RetransmitRatio(), a.Timeouts)
	fmt.Fprintf(&b, "信道:          丢失 %d, 损坏 %d\n", a.PacketsLost, a.PacketsCorrupted)

	for _, r := range a.Reports {
		if r.Passed() {
			continue
		}
		fmt.Fprintf(&b, "失败试验 seed=%d: %s\n", r.Seed, strings.Join(r.Violations, "; "))
	}
	return b.String()
}

func aggregate(baseSeed int64, reports []*emulator.Report) *Aggregate {
	agg := &Aggregate{
		BaseSeed: baseSeed,
		Trials:   len(reports),
		Reports:  reports,
	}

	for _, r := range reports {
		if r.Passed() {
			agg.Passed++
		}
		agg.MessagesOffered += r.MessagesOffered
		agg.MessagesAccepted += r.MessagesAccepted
		agg.MessagesDelivered += r.MessagesDelivered
		agg.PacketsSent += r.Sender.PacketsSent
		agg.PacketsResent += r.Sender.PacketsResent
		agg.PacketsLost += r.Channel.PacketsLost
		agg.PacketsCorrupted += r.Channel.PacketsCorrupted
		agg.Timeouts += r.Sender.Timeouts
		agg.AcksSent += r.Receiver.AcksSent
	}
	return agg
}
