package monitor

import (
	"strings"
	"time"
)

// 配置取值范围，超出范围的值会被截断而不是拒绝
const (
	MinIntervalMs = 250
	MaxIntervalMs = 60_000

	MinLatencyThresholdMs = 1
	MaxLatencyThresholdMs = 5000

	MinWindowSize = 5
	MaxWindowSize = 200

	MinProbeTimeoutMs = 250
	MaxProbeTimeoutMs = 5000

	// 探测超时比探测间隔略短，避免单次探测超出本轮预算
	probeTimeoutMarginMs = 50

	// 保留的样本至少为窗口的 3 倍，缩小窗口时仍有最近的上下文
	retentionFactor = 3
	minRetention    = 60
)

// 默认配置
const (
	DefaultIntervalMs         = 1000
	DefaultLatencyThresholdMs = 150
	DefaultWindowSize         = 20
)

// Settings 监控配置，应用后不会被原地修改，只会被整体替换
type Settings struct {
	Endpoint           string
	IntervalMs         int
	LatencyThresholdMs int
	WindowSize         int
}

// DefaultSettings 默认配置（未设置探测目标）
func DefaultSettings() Settings {
	return Settings{
		IntervalMs:         DefaultIntervalMs,
		LatencyThresholdMs: DefaultLatencyThresholdMs,
		WindowSize:         DefaultWindowSize,
	}
}

// NormalizeSettings 规范化配置：去除目标首尾空白，将数值截断到合法范围
func NormalizeSettings(s Settings) Settings {
	return Settings{
		Endpoint:           strings.TrimSpace(s.Endpoint),
		IntervalMs:         clamp(s.IntervalMs, MinIntervalMs, MaxIntervalMs),
		LatencyThresholdMs: clamp(s.LatencyThresholdMs, MinLatencyThresholdMs, MaxLatencyThresholdMs),
		WindowSize:         clamp(s.WindowSize, MinWindowSize, MaxWindowSize),
	}
}

// Interval 探测间隔
func (s Settings) Interval() time.Duration {
	return time.Duration(s.IntervalMs) * time.Millisecond
}

// ProbeTimeout 单次探测超时 = clamp(interval - 50ms, 250ms, 5000ms)
func (s Settings) ProbeTimeout() time.Duration {
	ms := clamp(s.IntervalMs-probeTimeoutMarginMs, MinProbeTimeoutMs, MaxProbeTimeoutMs)
	return time.Duration(ms) * time.Millisecond
}

// Retention 样本保留上限 = max(windowSize * 3, 60)
func Retention(windowSize int) int {
	return max(windowSize*retentionFactor, minRetention)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
