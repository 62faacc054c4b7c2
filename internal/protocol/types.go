// =============================================================================
// 文件: internal/protocol/types.go
// 描述: SR 可靠传输协议 - 统一类型定义 (唯一定义位置)
// =============================================================================
package protocol

import (
	"fmt"
)

// 协议常量
const (
	// 有效载荷固定为 20 字节, 一条应用消息对应一个数据包
	PayloadSize = 20

	// 未使用的头部字段填充值
	NotInUse = -1

	// 默认参数
	DefaultWindowSize = 6
	DefaultSeqSpace   = 12
	DefaultRTT        = 16.0
)

// SlotStatus 发送窗口槽位状态 (显式三态, 区分 "从未使用" 和 "已确认释放")
type SlotStatus uint8

const (
	SlotFree SlotStatus = iota
	SlotSent
	SlotAcked
)

func (s SlotStatus) String() string {
	names := []string{"FREE", "SENT", "ACKED"}
	if int(s) < len(names) {
		return names[s]
	}
	return "UNKNOWN"
}

// Config 协议配置
type Config struct {
	WindowSize int     // 滑动窗口大小
	SeqSpace   int     // 序列号空间模数
	RTT        float64 // 重传定时器时长 (仿真时间单位)
}

// DefaultProtocolConfig 默认协议配置
func DefaultProtocolConfig() Config {
	return Config{
		WindowSize: DefaultWindowSize,
		SeqSpace:   DefaultSeqSpace,
		RTT:        DefaultRTT,
	}
}

// Validate 验证协议配置
// SeqSpace < 2*WindowSize 时旧包与新包在同一窗口内无法区分, 属配置错误, 启动前拦截
func (c Config) Validate() error {
	if c.WindowSize < 1 {
		return fmt.Errorf("window_size 需大于 0: %d", c.WindowSize)
	}
	if c.SeqSpace < 2*c.WindowSize {
		return fmt.Errorf("seqspace (%d) 需至少为 window_size (%d) 的 2 倍", c.SeqSpace, c.WindowSize)
	}
	if c.RTT <= 0 {
		return fmt.Errorf("rtt 需大于 0: %v", c.RTT)
	}
	return nil
}

// Events 协议状态机依赖的外部事件接口, 由网络仿真器实现
// 状态机是纯响应式的: 每个处理函数运行到结束, 不阻塞也不并发
type Events interface {
	// Transmit 把数据包发到本侧网络接口, 可能被丢弃/损坏/延迟, 但不会乱序
	Transmit(pkt Packet)

	// DeliverToApp 把重组完成的消息交付上层, 每个序列号至多调用一次且严格按序
	DeliverToApp(payload [PayloadSize]byte)

	// StartTimer 启动本侧唯一的单次定时器
	StartTimer(duration float64)

	// StopTimer 取消未触发的定时器, 无定时器时为空操作
	StopTimer()
}

// SenderStats 发送端统计
type SenderStats struct {
	MessagesSubmitted uint64 // 应用层提交的消息数
	WindowFull        uint64 // 窗口满被丢弃的消息数
	PacketsSent       uint64 // 首发数据包数
	PacketsResent     uint64 // 重传数据包数
	AcksReceived      uint64 // 收到的未损坏 ACK 总数
	NewAcks           uint64 // 其中首次确认某包的 ACK 数
	DuplicateAcks     uint64 // 重复或窗口外的 ACK 数
	CorruptedAcks     uint64 // 校验和不符被丢弃的 ACK 数
	Timeouts          uint64 // 定时器超时次数
}

// ReceiverStats 接收端统计
type ReceiverStats struct {
	PacketsReceived   uint64 // 首次正确收到的数据包数
	PacketsDelivered  uint64 // 交付应用层的消息数
	DuplicatePackets  uint64 // 窗口内重复包数
	OldDuplicates     uint64 // 窗口后方旧重复包数 (补发 ACK)
	OutOfWindow       uint64 // 超前窗口被忽略的包数
	CorruptedPackets  uint64 // 校验和不符被丢弃的包数
	AcksSent          uint64 // 发出的 ACK 总数
	BufferedOutOfSeq  uint64 // 乱序暂存的包数
}
