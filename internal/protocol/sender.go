// =============================================================================
// 文件: internal/protocol/sender.go
// 描述: SR 可靠传输协议 - 发送端窗口管理 (滑动窗口 + 单一共享定时器)
// =============================================================================
package protocol

import (
	"fmt"
	"sync"
	"time"
)

// senderSlot 发送窗口槽位
// 物理下标是窗口相对位置: base 槽位在 windowFirst, 随窗口滑动旋转.
// 不能直接用 seq % WindowSize 寻址, SeqSpace 不是 WindowSize 整数倍时
// 回绕处的连续序列号会撞到同一槽位
type senderSlot struct {
	status SlotStatus
	packet Packet
}

// Sender 发送端窗口管理器
type Sender struct {
	cfg    Config
	events Events

	// 滑动窗口
	base        int // 最老的未确认序列号
	nextSeq     int // 下一个可分配序列号
	count       int // 已发送且尚未随窗口滑出的包数, 不超过 WindowSize
	windowFirst int // base 槽位的物理下标
	slots       []senderSlot

	// 整个窗口共享一个逻辑定时器, 始终跟踪最老未确认包
	timerArmed bool

	stats    SenderStats
	logLevel int

	mu sync.Mutex
}

// NewSender 创建发送端窗口管理器
func NewSender(cfg Config, events Events, logLevel int) (*Sender, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("发送端配置错误: %w", err)
	}
	return &Sender{
		cfg:      cfg,
		events:   events,
		slots:    make([]senderSlot, cfg.WindowSize),
		logLevel: logLevel,
	}, nil
}

// Submit 处理应用层新消息
// 窗口满时直接丢弃并计数, 背压策略是 "丢弃" 而非 "阻塞", 仿真器不会重试
func (s *Sender) Submit(message [PayloadSize]byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stats.MessagesSubmitted++

	if s.count == s.cfg.WindowSize {
		s.stats.WindowFull++
		s.logf(1, "新消息到达, 发送窗口已满, 丢弃")
		return false
	}

	seq := s.nextSeq
	pkt := NewDataPacket(seq, message)

	pos := (s.windowFirst + s.count) % s.cfg.WindowSize
	s.slots[pos] = senderSlot{status: SlotSent, packet: pkt}
	s.count++

	s.logf(2, "新消息到达, 窗口未满, 发送数据包 %d", seq)
	s.events.Transmit(pkt)
	s.stats.PacketsSent++

	// 窗口里只有这一个在途包时启动定时器
	if s.count == 1 {
		s.events.StartTimer(s.cfg.RTT)
		s.timerArmed = true
	}

	s.nextSeq = (s.nextSeq + 1) % s.cfg.SeqSpace
	return true
}

// OnAck 处理入站 ACK
// 损坏/窗口外/重复的 ACK 全部静默忽略, 重复投递同一 ACK 与投递一次效果相同
func (s *Sender) OnAck(pkt Packet) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if IsCorrupted(pkt) {
		s.stats.CorruptedAcks++
		s.logf(2, "收到损坏的 ACK, 忽略")
		return
	}
	s.stats.AcksReceived++

	if pkt.Acknum < 0 || pkt.Acknum >= s.cfg.SeqSpace {
		s.stats.DuplicateAcks++
		return
	}

	// 模运算窗口成员测试: base 在数值上可能大于窗口末端, 不能用朴素比较
	offset := (pkt.Acknum - s.base + s.cfg.SeqSpace) % s.cfg.SeqSpace
	if s.count == 0 || offset >= s.count {
		s.stats.DuplicateAcks++
		s.logf(2, "ACK %d 不在当前窗口内, 忽略", pkt.Acknum)
		return
	}

	slot := &s.slots[(s.windowFirst+offset)%s.cfg.WindowSize]
	if slot.status == SlotAcked {
		s.stats.DuplicateAcks++
		s.logf(2, "ACK %d 为重复确认, 忽略", pkt.Acknum)
		return
	}

	slot.status = SlotAcked
	s.stats.NewAcks++
	s.logf(2, "ACK %d 为新确认", pkt.Acknum)

	// 窗口滑动: 只有 base 槽位被确认才推进, 已确认的前缀一次性收拢
	slid := false
	for s.count > 0 && s.slots[s.windowFirst].status == SlotAcked {
		s.slots[s.windowFirst] = senderSlot{}
		s.windowFirst = (s.windowFirst + 1) % s.cfg.WindowSize
		s.base = (s.base + 1) % s.cfg.SeqSpace
		s.count--
		slid = true
	}

	// 每次 base 推进都重置共享定时器, 近似 "最老未确认包的计时"
	if slid {
		s.events.StopTimer()
		s.timerArmed = false
		if s.count > 0 {
			s.events.StartTimer(s.cfg.RTT)
			s.timerArmed = true
		}
	}
}

// OnTimeout 处理定时器超时
// 定时器是合并的, 超时时窗口内所有仍为 SENT 的包都到期, 全部重传,
// 避免某个独立丢失的包因 base 包先到而得不到重传机会
func (s *Sender) OnTimeout() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stats.Timeouts++
	s.timerArmed = false
	s.logf(1, "超时, 重传窗口内未确认的包")

	resent := false
	for i := 0; i < s.count; i++ {
		slot := s.slots[(s.windowFirst+i)%s.cfg.WindowSize]
		if slot.status != SlotSent {
			continue
		}
		s.logf(2, "重传数据包 %d", slot.packet.Seqnum)
		s.events.Transmit(slot.packet)
		s.stats.PacketsResent++
		resent = true
	}

	if resent {
		s.events.StartTimer(s.cfg.RTT)
		s.timerArmed = true
	}
}

// Reset 恢复初始状态 (窗口清空, base/nextSeq 归零)
func (s *Sender) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.timerArmed {
		s.events.StopTimer()
		s.timerArmed = false
	}
	for i := range s.slots {
		s.slots[i] = senderSlot{}
	}
	s.base = 0
	s.nextSeq = 0
	s.count = 0
	s.windowFirst = 0
	s.stats = SenderStats{}
}

// GetBase 获取窗口基序列号
func (s *Sender) GetBase() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.base
}

// GetNextSeq 获取下一个序列号
func (s *Sender) GetNextSeq() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextSeq
}

// GetWindowCount 获取在途包数量
func (s *Sender) GetWindowCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// GetStats 获取统计快照
func (s *Sender) GetStats() SenderStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// logf 日志输出
func (s *Sender) logf(level int, format string, args ...interface{}) {
	if level > s.logLevel {
		return
	}
	prefix := map[int]string{0: "[ERROR]", 1: "[INFO]", 2: "[DEBUG]"}[level]
	fmt.Printf("%s %s [发送端A] %s\n", prefix, time.Now().Format("15:04:05"), fmt.Sprintf(format, args...))
}
