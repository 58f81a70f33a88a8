package monitor

import (
	"sync"

	"github.com/dushixiang/pingtray/internal/protocol"
)

// Snapshot 样本快照，Samples 为拷贝，调用方可以自由修改
type Snapshot struct {
	Samples []protocol.PingSample
	Last    *protocol.PingSample
}

// WindowStats 最近 windowSize 个样本的统计
type WindowStats struct {
	Count        int
	Failures     int
	LossPercent  float64
	AvgLatencyMs float64
	HasLatency   bool
	Last         *protocol.PingSample
	Retained     int
}

// Ledger 探测样本账本：按到达顺序追加，超出上限时从最旧的开始淘汰。
// 所有读写共用同一把锁，锁内只做拷贝、追加和淘汰。
type Ledger struct {
	mu      sync.Mutex
	samples []protocol.PingSample
}

// NewLedger 创建样本账本
func NewLedger() *Ledger {
	return &Ledger{}
}

// Append 追加样本并按 windowSize 对应的保留上限淘汰旧样本
func (l *Ledger) Append(sample protocol.PingSample, windowSize int) {
	limit := Retention(windowSize)

	l.mu.Lock()
	defer l.mu.Unlock()

	l.samples = append(l.samples, sample)
	if n := len(l.samples); n > limit {
		// 拷贝到新切片，释放被淘汰样本占用的底层数组
		kept := make([]protocol.PingSample, limit, limit+limit/2)
		copy(kept, l.samples[n-limit:])
		l.samples = kept
	}
}

// Len 当前保留的样本数
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.samples)
}

// Snapshot 返回全部保留样本的拷贝以及最新一条样本
func (l *Ledger) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.samples) == 0 {
		return Snapshot{}
	}
	out := make([]protocol.PingSample, len(l.samples))
	copy(out, l.samples)
	last := out[len(out)-1]
	return Snapshot{Samples: out, Last: &last}
}

// Stats 计算最近 windowSize 个样本的丢包率与平均延迟
func (l *Ledger) Stats(windowSize int) WindowStats {
	l.mu.Lock()
	defer l.mu.Unlock()

	stats := WindowStats{Retained: len(l.samples)}
	if len(l.samples) == 0 || windowSize <= 0 {
		return stats
	}

	last := l.samples[len(l.samples)-1]
	stats.Last = &last

	window := l.samples[max(len(l.samples)-windowSize, 0):]
	stats.Count = len(window)

	var (
		rttSum    int64
		successes int
	)
	for _, s := range window {
		rtt, ok := s.RoundTrip()
		if !ok {
			stats.Failures++
			continue
		}
		rttSum += rtt
		successes++
	}

	stats.LossPercent = 100 * float64(stats.Failures) / float64(stats.Count)
	if successes > 0 {
		stats.AvgLatencyMs = float64(rttSum) / float64(successes)
		stats.HasLatency = true
	}
	return stats
}
