// =============================================================================
// 文件: internal/protocol/sender_test.go
// 描述: 发送端窗口管理测试
// =============================================================================
package protocol

import (
	"reflect"
	"testing"
)

// eventRecorder 记录状态机对外部接口的所有调用, 供断言使用
type eventRecorder struct {
	transmitted []Packet
	delivered   [][PayloadSize]byte
	timerStarts int
	timerStops  int
	timerArmed  bool
}

func (e *eventRecorder) Transmit(pkt Packet) {
	e.transmitted = append(e.transmitted, pkt)
}

func (e *eventRecorder) DeliverToApp(payload [PayloadSize]byte) {
	e.delivered = append(e.delivered, payload)
}

func (e *eventRecorder) StartTimer(duration float64) {
	e.timerStarts++
	e.timerArmed = true
}

func (e *eventRecorder) StopTimer() {
	e.timerStops++
	e.timerArmed = false
}

func (e *eventRecorder) sentSeqs() []int {
	seqs := make([]int, 0, len(e.transmitted))
	for _, pkt := range e.transmitted {
		seqs = append(seqs, pkt.Seqnum)
	}
	return seqs
}

func testMessage(fill byte) [PayloadSize]byte {
	var msg [PayloadSize]byte
	for i := range msg {
		msg[i] = fill
	}
	return msg
}

func newTestSender(t *testing.T, windowSize, seqSpace int) (*Sender, *eventRecorder) {
	t.Helper()
	rec := &eventRecorder{}
	s, err := NewSender(Config{WindowSize: windowSize, SeqSpace: seqSpace, RTT: 16.0}, rec, 0)
	if err != nil {
		t.Fatalf("创建发送端失败: %v", err)
	}
	return s, rec
}

// ackFor 构造确认 seq 的合法 ACK
func ackFor(seq int) Packet {
	return NewAckPacket(0, seq)
}

func TestSenderRejectsInvalidConfig(t *testing.T) {
	rec := &eventRecorder{}
	if _, err := NewSender(Config{WindowSize: 6, SeqSpace: 11, RTT: 16.0}, rec, 0); err == nil {
		t.Error("seqspace < 2*window_size 应在创建时报错")
	}
	if _, err := NewSender(Config{WindowSize: 0, SeqSpace: 12, RTT: 16.0}, rec, 0); err == nil {
		t.Error("window_size = 0 应在创建时报错")
	}
}

// 场景 A: 窗口填满后拒绝提交, base 确认后窗口滑动并恢复接纳
func TestSenderWindowFullAndSlide(t *testing.T) {
	s, rec := newTestSender(t, 4, 9)

	for i := 0; i < 4; i++ {
		if !s.Submit(testMessage(byte('a' + i))) {
			t.Fatalf("第 %d 次提交不应被拒绝", i)
		}
	}
	if got := rec.sentSeqs(); !reflect.DeepEqual(got, []int{0, 1, 2, 3}) {
		t.Errorf("发送序列号不正确: got %v, want [0 1 2 3]", got)
	}
	if s.GetWindowCount() != 4 {
		t.Errorf("窗口计数不正确: got %d, want 4", s.GetWindowCount())
	}

	// 窗口已满, 第 5 条消息被丢弃
	if s.Submit(testMessage('e')) {
		t.Error("窗口满时提交应被拒绝")
	}
	if s.GetStats().WindowFull != 1 {
		t.Errorf("窗口满计数不正确: got %d, want 1", s.GetStats().WindowFull)
	}

	// base 确认后窗口滑到 1, 新提交拿到序列号 4
	s.OnAck(ackFor(0))
	if s.GetBase() != 1 {
		t.Errorf("base 不正确: got %d, want 1", s.GetBase())
	}
	if s.GetWindowCount() != 3 {
		t.Errorf("窗口计数不正确: got %d, want 3", s.GetWindowCount())
	}
	if !s.Submit(testMessage('e')) {
		t.Error("窗口滑动后提交不应被拒绝")
	}
	if last := rec.transmitted[len(rec.transmitted)-1]; last.Seqnum != 4 {
		t.Errorf("新包序列号不正确: got %d, want 4", last.Seqnum)
	}
}

// 场景 C: 非 base 的 ACK 只标记不滑动; 超时只重传 SENT 槽位;
// base 确认后已确认前缀一次性收拢
func TestSenderSelectiveRetransmitAndPrefixCollapse(t *testing.T) {
	s, rec := newTestSender(t, 4, 9)

	for i := 0; i < 3; i++ {
		s.Submit(testMessage(byte('a' + i)))
	}

	// ACK 1: 标记为 ACKED, base 仍是 0, 不滑动
	s.OnAck(ackFor(1))
	if s.GetBase() != 0 {
		t.Errorf("非 base 的 ACK 不应移动 base: got %d, want 0", s.GetBase())
	}
	if s.GetWindowCount() != 3 {
		t.Errorf("窗口计数不应变化: got %d, want 3", s.GetWindowCount())
	}

	// 超时: 只重传 0 和 2, 已确认的 1 跳过
	rec.transmitted = nil
	s.OnTimeout()
	if got := rec.sentSeqs(); !reflect.DeepEqual(got, []int{0, 2}) {
		t.Errorf("重传序列号不正确: got %v, want [0 2]", got)
	}
	if s.GetStats().PacketsResent != 2 {
		t.Errorf("重传计数不正确: got %d, want 2", s.GetStats().PacketsResent)
	}

	// ACK 0: base 一步越过已确认的 0 和 1, 停在 2
	s.OnAck(ackFor(0))
	if s.GetBase() != 2 {
		t.Errorf("前缀收拢后 base 不正确: got %d, want 2", s.GetBase())
	}
	if s.GetWindowCount() != 1 {
		t.Errorf("窗口计数不正确: got %d, want 1", s.GetWindowCount())
	}
}

// 同一 ACK 投递两次, 第二次必须是纯空操作
func TestSenderIdempotentAck(t *testing.T) {
	s, rec := newTestSender(t, 4, 9)

	s.Submit(testMessage('a'))
	s.Submit(testMessage('b'))

	s.OnAck(ackFor(1))
	base, count := s.GetBase(), s.GetWindowCount()
	starts, stops := rec.timerStarts, rec.timerStops

	s.OnAck(ackFor(1))
	if s.GetBase() != base || s.GetWindowCount() != count {
		t.Errorf("重复 ACK 改变了窗口状态: base %d->%d, count %d->%d",
			base, s.GetBase(), count, s.GetWindowCount())
	}
	if rec.timerStarts != starts || rec.timerStops != stops {
		t.Error("重复 ACK 不应触碰定时器")
	}
	if s.GetStats().DuplicateAcks != 1 {
		t.Errorf("重复 ACK 计数不正确: got %d, want 1", s.GetStats().DuplicateAcks)
	}
}

func TestSenderIgnoresCorruptedAndStaleAcks(t *testing.T) {
	s, _ := newTestSender(t, 4, 9)

	s.Submit(testMessage('a'))

	t.Run("损坏的ACK", func(t *testing.T) {
		bad := ackFor(0)
		bad.Checksum++
		s.OnAck(bad)
		if s.GetWindowCount() != 1 {
			t.Error("损坏的 ACK 不应改变窗口")
		}
		if s.GetStats().CorruptedAcks != 1 {
			t.Errorf("损坏 ACK 计数不正确: got %d, want 1", s.GetStats().CorruptedAcks)
		}
	})

	t.Run("窗口外的ACK", func(t *testing.T) {
		s.OnAck(ackFor(5))
		if s.GetWindowCount() != 1 {
			t.Error("窗口外的 ACK 不应改变窗口")
		}
	})

	t.Run("非法确认号", func(t *testing.T) {
		s.OnAck(NewAckPacket(0, NotInUse))
		if s.GetWindowCount() != 1 {
			t.Error("确认号越界的 ACK 不应改变窗口")
		}
	})
}

// 序列号经过 0 回绕时窗口成员测试仍然成立
func TestSenderSequenceWraparound(t *testing.T) {
	s, rec := newTestSender(t, 4, 9)

	// 推进到 base=7: 发 7 个并逐一确认
	for i := 0; i < 7; i++ {
		s.Submit(testMessage(byte(i)))
		s.OnAck(ackFor(i))
	}
	if s.GetBase() != 7 {
		t.Fatalf("base 推进不正确: got %d, want 7", s.GetBase())
	}

	// 窗口跨越回绕: 7, 8, 0, 1
	rec.transmitted = nil
	for i := 0; i < 4; i++ {
		if !s.Submit(testMessage(byte(i))) {
			t.Fatalf("回绕处第 %d 次提交不应被拒绝", i)
		}
	}
	if got := rec.sentSeqs(); !reflect.DeepEqual(got, []int{7, 8, 0, 1}) {
		t.Errorf("回绕处发送序列号不正确: got %v, want [7 8 0 1]", got)
	}
	if s.GetNextSeq() != 2 {
		t.Errorf("nextSeq 回绕不正确: got %d, want 2", s.GetNextSeq())
	}

	// 窗口数值上 base(7) > 末端(1), 成员测试必须用模距离
	s.OnAck(ackFor(0))
	if s.GetBase() != 7 {
		t.Error("非 base 的 ACK 0 不应移动 base")
	}
	s.OnAck(ackFor(7))
	if s.GetBase() != 8 {
		t.Errorf("确认 7 后 base 不正确: got %d, want 8", s.GetBase())
	}
	s.OnAck(ackFor(8))
	if s.GetBase() != 1 {
		t.Errorf("前缀收拢越过回绕后 base 不正确: got %d, want 1", s.GetBase())
	}
	if s.GetWindowCount() != 1 {
		t.Errorf("窗口计数不正确: got %d, want 1", s.GetWindowCount())
	}
}

func TestSenderTimerLifecycle(t *testing.T) {
	s, rec := newTestSender(t, 4, 9)

	// 第一个在途包启动定时器
	s.Submit(testMessage('a'))
	if rec.timerStarts != 1 {
		t.Errorf("首包后定时器启动次数不正确: got %d, want 1", rec.timerStarts)
	}

	// 后续提交不重复启动
	s.Submit(testMessage('b'))
	if rec.timerStarts != 1 {
		t.Errorf("第二包不应再次启动定时器: got %d", rec.timerStarts)
	}

	// base 滑动: 取消后为剩余在途包重启
	s.OnAck(ackFor(0))
	if rec.timerStops != 1 || rec.timerStarts != 2 {
		t.Errorf("滑动后定时器重置不正确: stops=%d starts=%d", rec.timerStops, rec.timerStarts)
	}

	// 窗口清空: 只取消不重启
	s.OnAck(ackFor(1))
	if rec.timerArmed {
		t.Error("窗口清空后定时器不应处于启动状态")
	}

	// 空窗口超时不应重启定时器
	s.OnTimeout()
	if rec.timerArmed {
		t.Error("空窗口超时后定时器不应处于启动状态")
	}
}

func TestSenderReset(t *testing.T) {
	s, rec := newTestSender(t, 4, 9)

	s.Submit(testMessage('a'))
	s.Submit(testMessage('b'))
	s.Reset()

	if s.GetBase() != 0 || s.GetNextSeq() != 0 || s.GetWindowCount() != 0 {
		t.Errorf("Reset 后状态不正确: base=%d nextSeq=%d count=%d",
			s.GetBase(), s.GetNextSeq(), s.GetWindowCount())
	}
	if rec.timerArmed {
		t.Error("Reset 后定时器不应处于启动状态")
	}

	// Reset 后从序列号 0 重新开始
	rec.transmitted = nil
	s.Submit(testMessage('c'))
	if rec.transmitted[0].Seqnum != 0 {
		t.Errorf("Reset 后首包序列号不正确: got %d, want 0", rec.transmitted[0].Seqnum)
	}
}

func BenchmarkSenderSubmitAck(b *testing.B) {
	rec := &eventRecorder{}
	s, _ := NewSender(DefaultProtocolConfig(), rec, 0)
	msg := testMessage('x')

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		s.Submit(msg)
		s.OnAck(ackFor(i % DefaultSeqSpace))
		rec.transmitted = rec.transmitted[:0]
	}
}
