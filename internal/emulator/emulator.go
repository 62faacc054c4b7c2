// =============================================================================
// 文件: internal/emulator/emulator.go
// 描述: 离散事件网络仿真器 - 有损信道 + 定时器 + 应用负载, 驱动两端状态机
// =============================================================================
package emulator

import (
	"container/heap"
	"encoding/binary"
	"fmt"
	"math/rand"
	"time"

	"github.com/mrcgq/arqsim/internal/config"
	"github.com/mrcgq/arqsim/internal/protocol"
)

// 信道参数: 单向传播平均约 5 个时间单位, 有抖动但保序
const (
	linkDelayBase   = 1.0
	linkDelayJitter = 9.0

	// 事件数安全上限, 超过视为活性违例 (正常配置下远达不到)
	maxEvents = 4_000_000
)

// Side 仿真的两端: A 只发数据, B 只发确认
type Side uint8

const (
	SideA Side = iota
	SideB
)

func (s Side) String() string {
	if s == SideA {
		return "A"
	}
	return "B"
}

// EventType 离散事件类型
type EventType uint8

const (
	EventFromApp  EventType = iota // 应用层消息到达 A
	EventFromLink                  // 链路包到达某侧
	EventTimeout                   // 定时器触发
)

// event 排队中的仿真事件
type event struct {
	time   float64
	etype  EventType
	side   Side
	packet protocol.Packet
	gen    uint64 // 定时器代数, 失配的超时事件视为已取消
	order  uint64 // 入队序号, 同一时刻事件保持稳定顺序
}

// eventQueue 按时间排序的最小堆
type eventQueue []*event

func (q eventQueue) Len() int { return len(q) }

func (q eventQueue) Less(i, j int) bool {
	if q[i].time != q[j].time {
		return q[i].time < q[j].time
	}
	return q[i].order < q[j].order
}

func (q eventQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *eventQueue) Push(x any) { *q = append(*q, x.(*event)) }

func (q *eventQueue) Pop() any {
	old := *q
	n := len(old)
	ev := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return ev
}

// TraceEvent 仿真过程事件, 供日志与实时事件流消费
type TraceEvent struct {
	Time   float64 `json:"time"`
	Kind   string  `json:"kind"` // submit/send/resend/lose/corrupt/recv/ack/deliver/timeout/reject
	Side   string  `json:"side"`
	Seqnum int     `json:"seqnum"`
	Acknum int     `json:"acknum"`
}

// TraceSink 事件流出口, 由 trace 包的 WebSocket 服务实现
type TraceSink interface {
	Emit(ev TraceEvent)
}

// ChannelStats 信道统计
type ChannelStats struct {
	PacketsInjected uint64 // 进入信道的包数 (双向)
	PacketsLost     uint64
	PacketsCorrupted uint64
}

// Emulator 离散事件仿真器
// 单线程: 事件严格按时间序逐个处理, 每个处理函数运行到结束
type Emulator struct {
	proto protocol.Config
	sim   config.SimConfig

	rng   *rand.Rand
	queue eventQueue
	now   float64
	seq   uint64 // 入队序号发生器

	sender   *protocol.Sender
	receiver *protocol.Receiver

	// 每侧一个单次定时器; 代数计数使取消后仍在堆里的超时事件失效
	timerGen   [2]uint64
	timerArmed [2]bool

	// 每个方向最近一次到达时间, 新包到达时间不早于它, 保证链路不乱序
	lastArrival [2]float64

	// 应用层负载与交付核验
	msgCounter int        // 已注入的消息数
	accepted   [][protocol.PayloadSize]byte // 被发送端接纳的消息, 即期望的交付顺序
	delivered  int
	guard      *DeliveryGuard
	violations []string

	channel  ChannelStats
	sink     TraceSink
	logLevel int
	events   uint64 // 已处理事件数
}

// New 创建仿真器
func New(proto protocol.Config, sim config.SimConfig, logLevel int, sink TraceSink) (*Emulator, error) {
	if err := proto.Validate(); err != nil {
		return nil, err
	}

	seed := sim.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	em := &Emulator{
		proto:    proto,
		sim:      sim,
		rng:      rand.New(rand.NewSource(seed)),
		guard:    NewDeliveryGuard(sim.Messages),
		sink:     sink,
		logLevel: logLevel,
	}
	em.sim.Seed = seed

	var err error
	em.sender, err = protocol.NewSender(proto, &sideEvents{em: em, side: SideA}, logLevel)
	if err != nil {
		return nil, err
	}
	em.receiver, err = protocol.NewReceiver(proto, &sideEvents{em: em, side: SideB}, logLevel)
	if err != nil {
		return nil, err
	}
	return em, nil
}

// Run 执行仿真直到事件队列耗尽, 返回试验报告
func (em *Emulator) Run() *Report {
	em.logf(1, "仿真开始: seed=%d messages=%d loss=%.2f corrupt=%.2f",
		em.sim.Seed, em.sim.Messages, em.sim.LossProb, em.sim.CorruptProb)

	em.scheduleNextArrival()

	for em.queue.Len() > 0 {
		if em.events >= maxEvents {
			em.violate("事件数超过上限 %d, 仿真未收敛", maxEvents)
			break
		}
		em.events++

		ev := heap.Pop(&em.queue).(*event)
		em.now = ev.time

		switch ev.etype {
		case EventFromApp:
			em.handleAppArrival()
		case EventFromLink:
			em.handleLinkArrival(ev)
		case EventTimeout:
			em.handleTimeout(ev)
		}
	}

	em.verifyFinalState()
	return em.buildReport()
}

// handleAppArrival 应用层消息到达发送端
func (em *Emulator) handleAppArrival() {
	msg := em.makeMessage(em.msgCounter)
	em.msgCounter++

	if em.sender.Submit(msg) {
		em.accepted = append(em.accepted, msg)
		em.emit("submit", SideA, em.msgCounter-1, protocol.NotInUse)
	} else {
		em.emit("reject", SideA, em.msgCounter-1, protocol.NotInUse)
	}

	if em.msgCounter < em.sim.Messages {
		em.scheduleNextArrival()
	}
}

// handleLinkArrival 链路包到达
func (em *Emulator) handleLinkArrival(ev *event) {
	if ev.side == SideA {
		em.sender.OnAck(ev.packet)
		em.emit("ack", SideA, ev.packet.Seqnum, ev.packet.Acknum)
	} else {
		em.receiver.OnPacket(ev.packet)
		em.emit("recv", SideB, ev.packet.Seqnum, ev.packet.Acknum)
	}
}

// handleTimeout 定时器触发
func (em *Emulator) handleTimeout(ev *event) {
	// 代数失配说明该定时器已被取消或重置, 事件作废
	if !em.timerArmed[ev.side] || ev.gen != em.timerGen[ev.side] {
		return
	}
	em.timerArmed[ev.side] = false
	em.emit("timeout", ev.side, protocol.NotInUse, protocol.NotInUse)

	if ev.side == SideA {
		em.sender.OnTimeout()
	}
}

// scheduleNextArrival 调度下一条应用消息 (均匀分布, 均值为 MeanInterarrival)
func (em *Emulator) scheduleNextArrival() {
	delay := 2 * em.sim.MeanInterarrival * em.rng.Float64()
	em.push(&event{time: em.now + delay, etype: EventFromApp, side: SideA})
}

// toLink 把包放进有损信道
// 丢失和损坏按概率独立发生; 到达时间不早于同方向上一个包, 链路永不乱序
func (em *Emulator) toLink(from Side, pkt protocol.Packet) {
	em.channel.PacketsInjected++

	if em.rng.Float64() < em.sim.LossProb {
		em.channel.PacketsLost++
		em.emit("lose", from, pkt.Seqnum, pkt.Acknum)
		em.logf(2, "信道丢弃 %s 侧的包 seq=%d ack=%d", from, pkt.Seqnum, pkt.Acknum)
		return
	}

	if em.rng.Float64() < em.sim.CorruptProb {
		pkt = em.corrupt(pkt)
		em.channel.PacketsCorrupted++
		em.emit("corrupt", from, pkt.Seqnum, pkt.Acknum)
		em.logf(2, "信道损坏 %s 侧的包 seq=%d ack=%d", from, pkt.Seqnum, pkt.Acknum)
	}

	dir := from // 方向以发出侧标识: A→B 记在 A, B→A 记在 B
	arrive := em.now + linkDelayBase + linkDelayJitter*em.rng.Float64()
	if arrive < em.lastArrival[dir] {
		arrive = em.lastArrival[dir]
	}
	em.lastArrival[dir] = arrive

	dst := SideB
	if from == SideB {
		dst = SideA
	}
	em.push(&event{time: arrive, etype: EventFromLink, side: dst, packet: pkt})
}

// corrupt 翻转包的某个字段但保留原校验和
func (em *Emulator) corrupt(pkt protocol.Packet) protocol.Packet {
	x := em.rng.Float64()
	switch {
	case x < 0.75:
		pkt.Payload[em.rng.Intn(protocol.PayloadSize)] ^= 0x5A
	case x < 0.875:
		pkt.Seqnum = (pkt.Seqnum + 1) % em.proto.SeqSpace
	default:
		pkt.Acknum++
	}
	return pkt
}

// deliver 接收端交付消息到应用层, 核验顺序与唯一性
func (em *Emulator) deliver(side Side, payload [protocol.PayloadSize]byte) {
	if side != SideB {
		em.violate("A 侧不应有应用层交付")
		return
	}

	if !em.guard.CheckAndMark(payload[:]) {
		em.violate("第 %d 次交付出现重复消息", em.delivered)
		return
	}

	if em.delivered < len(em.accepted) && payload != em.accepted[em.delivered] {
		em.violate("第 %d 次交付乱序", em.delivered)
	}
	em.delivered++
	em.emit("deliver", SideB, em.delivered-1, protocol.NotInUse)
}

// armTimer 为某侧启动单次定时器 (重入安全: 先作废旧的)
func (em *Emulator) armTimer(side Side, duration float64) {
	em.timerGen[side]++
	em.timerArmed[side] = true
	em.push(&event{
		time:  em.now + duration,
		etype: EventTimeout,
		side:  side,
		gen:   em.timerGen[side],
	})
}

// cancelTimer 取消某侧定时器, 未启动时为空操作
func (em *Emulator) cancelTimer(side Side) {
	em.timerGen[side]++
	em.timerArmed[side] = false
}

func (em *Emulator) push(ev *event) {
	em.seq++
	ev.order = em.seq
	heap.Push(&em.queue, ev)
}

// makeMessage 生成内容唯一的消息: 前 8 字节是计数器, 其余为字母填充
func (em *Emulator) makeMessage(n int) [protocol.PayloadSize]byte {
	var msg [protocol.PayloadSize]byte
	binary.BigEndian.PutUint64(msg[:8], uint64(n))
	for i := 8; i < protocol.PayloadSize; i++ {
		msg[i] = byte('a' + n%26)
	}
	return msg
}

// verifyFinalState 队列耗尽后核验活性: 所有被接纳的消息都必须已交付
func (em *Emulator) verifyFinalState() {
	if em.delivered != len(em.accepted) {
		em.violate("接纳 %d 条消息但只交付 %d 条", len(em.accepted), em.delivered)
	}
	if em.sender.GetWindowCount() != 0 {
		em.violate("仿真结束时发送窗口仍有 %d 个在途包", em.sender.GetWindowCount())
	}
}

func (em *Emulator) violate(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	em.violations = append(em.violations, msg)
	em.logf(0, "协议违例: %s", msg)
}

func (em *Emulator) emit(kind string, side Side, seqnum, acknum int) {
	if em.sink == nil {
		return
	}
	em.sink.Emit(TraceEvent{
		Time:   em.now,
		Kind:   kind,
		Side:   side.String(),
		Seqnum: seqnum,
		Acknum: acknum,
	})
}

// logf 日志输出
func (em *Emulator) logf(level int, format string, args ...interface{}) {
	if level > em.logLevel {
		return
	}
	prefix := map[int]string{0: "[ERROR]", 1: "[INFO]", 2: "[DEBUG]"}[level]
	fmt.Printf("%s %s [仿真器] %s\n", prefix, time.Now().Format("15:04:05"), fmt.Sprintf(format, args...))
}

// sideEvents 把协议状态机的外部依赖适配到仿真器
type sideEvents struct {
	em   *Emulator
	side Side
}

func (e *sideEvents) Transmit(pkt protocol.Packet) {
	e.em.emit("send", e.side, pkt.Seqnum, pkt.Acknum)
	e.em.toLink(e.side, pkt)
}

func (e *sideEvents) DeliverToApp(payload [protocol.PayloadSize]byte) {
	e.em.deliver(e.side, payload)
}

func (e *sideEvents) StartTimer(duration float64) {
	e.em.armTimer(e.side, duration)
}

func (e *sideEvents) StopTimer() {
	e.em.cancelTimer(e.side)
}
