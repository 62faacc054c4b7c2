// =============================================================================
// 文件: internal/emulator/dedup.go
// 描述: 交付去重守卫 - 布隆过滤器快路径 + 精确哈希集, 捕获重复交付
// =============================================================================
package emulator

import (
	"sync"
	"sync/atomic"

	"github.com/bits-and-blooms/bloom/v3"
)

const (
	// 布隆过滤器参数
	dedupMinItems      = 1024
	dedupFalsePositive = 0.0001 // 万分之一误报率
)

// DeliveryGuard 检测同一消息被交付多次的情况
// 布隆过滤器给出快速的"一定没见过"判定; 命中时回落到精确哈希集,
// 误报不会被误判为重复
type DeliveryGuard struct {
	filter *bloom.BloomFilter
	exact  map[uint64]struct{}

	mu    sync.Mutex
	stats DedupStats
}

// DedupStats 去重统计
type DedupStats struct {
	TotalChecks      uint64
	DuplicatesFound  uint64
	BloomFalseAlarms uint64 // 布隆命中但精确集未命中
}

// NewDeliveryGuard 创建守卫, expectedMessages 用于估算过滤器容量
func NewDeliveryGuard(expectedMessages int) *DeliveryGuard {
	items := uint(expectedMessages)
	if items < dedupMinItems {
		items = dedupMinItems
	}
	return &DeliveryGuard{
		filter: bloom.NewWithEstimates(items, dedupFalsePositive),
		exact:  make(map[uint64]struct{}, expectedMessages),
	}
}

// CheckAndMark 检查并登记一条交付
// 返回 true 表示首次见到, false 表示重复交付
func (g *DeliveryGuard) CheckAndMark(msg []byte) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	atomic.AddUint64(&g.stats.TotalChecks, 1)
	key := hashMessage(msg)

	if g.filter.Test(msg) {
		if _, seen := g.exact[key]; seen {
			atomic.AddUint64(&g.stats.DuplicatesFound, 1)
			return false
		}
		atomic.AddUint64(&g.stats.BloomFalseAlarms, 1)
	}

	g.filter.Add(msg)
	g.exact[key] = struct{}{}
	return true
}

// Seen 仅查询不登记
func (g *DeliveryGuard) Seen(msg []byte) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.filter.Test(msg) {
		return false
	}
	_, seen := g.exact[hashMessage(msg)]
	return seen
}

// Stats 返回统计信息
func (g *DeliveryGuard) Stats() DedupStats {
	return DedupStats{
		TotalChecks:      atomic.LoadUint64(&g.stats.TotalChecks),
		DuplicatesFound:  atomic.LoadUint64(&g.stats.DuplicatesFound),
		BloomFalseAlarms: atomic.LoadUint64(&g.stats.BloomFalseAlarms),
	}
}

// hashMessage FNV-1a 快速哈希
func hashMessage(msg []byte) uint64 {
	var hash uint64 = 14695981039346656037
	for _, b := range msg {
		hash ^= uint64(b)
		hash *= 1099511628211
	}
	return hash
}
