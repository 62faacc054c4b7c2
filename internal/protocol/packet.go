// =============================================================================
// 文件: internal/protocol/packet.go
// 描述: SR 可靠传输协议 - 包构造与完整性校验
// =============================================================================
package protocol

// Packet SR 数据包, 发送后不可变, 同时也是事实上的线上格式
type Packet struct {
	Seqnum   int               // 序列号
	Acknum   int               // 确认号 (数据包填 NotInUse)
	Payload  [PayloadSize]byte // 有效载荷
	Checksum int               // 算术和校验
}

// ComputeChecksum 计算校验和: seqnum + acknum + 各载荷字节之和
// 纯函数, 发送端和接收端必须逐位一致才能互相验证
func ComputeChecksum(pkt Packet) int {
	checksum := pkt.Seqnum + pkt.Acknum
	for i := 0; i < PayloadSize; i++ {
		checksum += int(pkt.Payload[i])
	}
	return checksum
}

// IsCorrupted 判断包是否损坏, 是双方接受入站包的唯一闸门
// 多字段翻转恰好保持和不变时无法检出, 属信道模型的已知简化
func IsCorrupted(pkt Packet) bool {
	return pkt.Checksum != ComputeChecksum(pkt)
}

// NewDataPacket 创建数据包
func NewDataPacket(seqnum int, payload [PayloadSize]byte) Packet {
	pkt := Packet{
		Seqnum:  seqnum,
		Acknum:  NotInUse,
		Payload: payload,
	}
	pkt.Checksum = ComputeChecksum(pkt)
	return pkt
}

// NewAckPacket 创建 ACK 包
// ACK 自身的序列号只在 0/1 间交替以参与校验, 不进入滑动窗口记账; 载荷全零填充
func NewAckPacket(seqnum, acknum int) Packet {
	pkt := Packet{
		Seqnum: seqnum,
		Acknum: acknum,
	}
	pkt.Checksum = ComputeChecksum(pkt)
	return pkt
}
