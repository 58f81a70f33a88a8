package protocol

import (
	"fmt"
	"time"
)

// 探测状态文本
const (
	StatusNoHost   = "no host"
	StatusTimeout  = "timeout"
	StatusCanceled = "canceled"
)

// HealthState 健康状态（由最近的探测结果推导，不做存储）
type HealthState string

const (
	HealthUnknown  HealthState = "unknown"
	HealthOK       HealthState = "ok"
	HealthDegraded HealthState = "degraded"
	HealthDown     HealthState = "down"
)

// PingSample 单次探测结果，创建后不可修改
type PingSample struct {
	At          time.Time `json:"at"`
	Success     bool      `json:"success"`
	RoundTripMs int64     `json:"roundTripMs,omitempty"` // 仅在 Success 为 true 时有效
	Status      string    `json:"status"`
}

// SuccessSample 创建成功的探测结果
func SuccessSample(at time.Time, rttMs int64) PingSample {
	if rttMs < 0 {
		rttMs = 0
	}
	return PingSample{
		At:          at,
		Success:     true,
		RoundTripMs: rttMs,
		Status:      fmt.Sprintf("%d ms", rttMs),
	}
}

// FailedSample 创建失败的探测结果
func FailedSample(at time.Time, status string) PingSample {
	return PingSample{
		At:     at,
		Status: status,
	}
}

// RoundTrip 返回往返时间，失败的结果没有往返时间
func (s PingSample) RoundTrip() (int64, bool) {
	if !s.Success {
		return 0, false
	}
	return s.RoundTripMs, true
}

// MonitorStatus 监控器的一致性视图（供展示层使用）
type MonitorStatus struct {
	Endpoint           string      `json:"endpoint"`
	Running            bool        `json:"running"`
	Health             HealthState `json:"health"`
	LossPercent        float64     `json:"lossPercent"`
	AvgLatencyMs       *float64    `json:"avgLatencyMs,omitempty"` // 窗口内没有成功结果时为空
	Last               *PingSample `json:"last,omitempty"`
	Retained           int         `json:"retained"`
	WindowSize         int         `json:"windowSize"`
	IntervalMs         int         `json:"intervalMs"`
	LatencyThresholdMs int         `json:"latencyThresholdMs"`
}

// BadgePayload 状态图标
type BadgePayload struct {
	Color string `json:"color"`
	Text  string `json:"text"`
}

// StatusPayload 状态推送 payload（HTTP 与 WebSocket 共用）
type StatusPayload struct {
	MonitorStatus
	Badge   BadgePayload `json:"badge"`
	Tooltip string       `json:"tooltip"`
}

// SettingsPayload 探测配置 payload
type SettingsPayload struct {
	Host               string `json:"host" validate:"omitempty,max=253,ip|hostname_rfc1123"`
	IntervalMs         int    `json:"intervalMs"`
	LatencyThresholdMs int    `json:"latencyThresholdMs"`
	WindowSize         int    `json:"windowSize"`
}

// AutostartPayload 开机自启状态
type AutostartPayload struct {
	Enabled bool `json:"enabled"`
}
