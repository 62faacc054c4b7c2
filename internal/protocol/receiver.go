// =============================================================================
// 文件: internal/protocol/receiver.go
// 描述: SR 可靠传输协议 - 接收端窗口管理 (乱序暂存 + 按序重组交付)
// =============================================================================
package protocol

import (
	"fmt"
	"sync"
	"time"
)

// receiverSlot 接收重组槽位
// 缓冲区按序列号本身寻址 (SeqSpace 个槽位), 只有窗口内的序列号会被占用,
// 活跃槽位数因此不超过 WindowSize
type receiverSlot struct {
	received bool
	packet   Packet
}

// Receiver 接收端窗口管理器
type Receiver struct {
	cfg    Config
	events Events

	expected int // 尚未交付应用层的最小序列号, 严格按序推进
	slots    []receiverSlot

	// ACK 包自身的交替序列号, 仅服务于 ACK 的校验和
	ackToggle int

	stats    ReceiverStats
	logLevel int

	mu sync.Mutex
}

// NewReceiver 创建接收端窗口管理器
func NewReceiver(cfg Config, events Events, logLevel int) (*Receiver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("接收端配置错误: %w", err)
	}
	return &Receiver{
		cfg:       cfg,
		events:    events,
		slots:     make([]receiverSlot, cfg.SeqSpace),
		ackToggle: 1,
		logLevel:  logLevel,
	}, nil
}

// OnPacket 处理入站数据包
// 损坏的包直接丢弃且不回 ACK, 由发送端超时驱动重传; 接受与重复两类情况
// 都对 packet.Seqnum 本身回 ACK, SR 要求每个包获得独立确认
func (r *Receiver) OnPacket(pkt Packet) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if IsCorrupted(pkt) {
		r.stats.CorruptedPackets++
		r.logf(2, "收到损坏的包, 丢弃")
		return
	}

	if pkt.Seqnum < 0 || pkt.Seqnum >= r.cfg.SeqSpace {
		r.stats.OutOfWindow++
		return
	}

	offset := (pkt.Seqnum - r.expected + r.cfg.SeqSpace) % r.cfg.SeqSpace

	switch {
	case offset < r.cfg.WindowSize:
		// 接收窗口内
		if r.slots[pkt.Seqnum].received {
			// 窗口内重复, 不重复交付, 但原 ACK 可能已丢失, 仍需确认
			r.stats.DuplicatePackets++
			r.logf(2, "包 %d 已经缓存过, 补发 ACK", pkt.Seqnum)
		} else {
			r.slots[pkt.Seqnum] = receiverSlot{received: true, packet: pkt}
			r.stats.PacketsReceived++
			if offset != 0 {
				r.stats.BufferedOutOfSeq++
				r.logf(2, "包 %d 乱序到达, 暂存等待前驱", pkt.Seqnum)
			} else {
				r.logf(2, "包 %d 正确到达, 发送 ACK", pkt.Seqnum)
			}
			r.drainLocked()
		}
		r.sendAckLocked(pkt.Seqnum)

	case r.cfg.SeqSpace-offset <= r.cfg.WindowSize:
		// 窗口后方不超过一个窗口的距离: 已交付包的旧副本, 对方可能没收到原 ACK
		r.stats.OldDuplicates++
		r.logf(2, "包 %d 是已交付的旧重复, 补发 ACK", pkt.Seqnum)
		r.sendAckLocked(pkt.Seqnum)

	default:
		// 超前窗口太多, 有序链路下不应该出现
		r.stats.OutOfWindow++
		r.logf(1, "包 %d 超出接收窗口, 忽略", pkt.Seqnum)
	}
}

// drainLocked 从 expected 起连续交付所有已缓存的后继, 交付一个释放一个槽位
func (r *Receiver) drainLocked() {
	for r.slots[r.expected].received {
		r.events.DeliverToApp(r.slots[r.expected].packet.Payload)
		r.slots[r.expected] = receiverSlot{}
		r.stats.PacketsDelivered++
		r.expected = (r.expected + 1) % r.cfg.SeqSpace
	}
}

// sendAckLocked 构造并发送确认包
func (r *Receiver) sendAckLocked(acknum int) {
	ack := NewAckPacket(r.ackToggle, acknum)
	r.ackToggle = 1 - r.ackToggle
	r.events.Transmit(ack)
	r.stats.AcksSent++
}

// Reset 恢复初始状态 (缓冲区清空, expected 归零)
func (r *Receiver) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.slots {
		r.slots[i] = receiverSlot{}
	}
	r.expected = 0
	r.ackToggle = 1
	r.stats = ReceiverStats{}
}

// GetExpected 获取期望的下一个序列号
func (r *Receiver) GetExpected() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.expected
}

// GetBufferedCount 获取暂存未交付的包数量
func (r *Receiver) GetBufferedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	for i := range r.slots {
		if r.slots[i].received {
			count++
		}
	}
	return count
}

// GetStats 获取统计快照
func (r *Receiver) GetStats() ReceiverStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

// logf 日志输出
func (r *Receiver) logf(level int, format string, args ...interface{}) {
	if level > r.logLevel {
		return
	}
	prefix := map[int]string{0: "[ERROR]", 1: "[INFO]", 2: "[DEBUG]"}[level]
	fmt.Printf("%s %s [接收端B] %s\n", prefix, time.Now().Format("15:04:05"), fmt.Sprintf(format, args...))
}
