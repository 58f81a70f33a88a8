package metric

import "github.com/dushixiang/pingtray/internal/protocol"

// MonitorStatsResult 统计摘要（定期日志与接口共用）
type MonitorStatsResult struct {
	Endpoint      string               `json:"endpoint"`
	Status        protocol.HealthState `json:"status"`
	ResponseTime  int64                `json:"responseTime"`  // 窗口内平均响应时间(ms)，没有成功样本时为 -1
	LossPercent   float64              `json:"lossPercent"`   // 窗口内丢包率
	Retained      int                  `json:"retained"`      // 保留的样本数
	LastCheckTime int64                `json:"lastCheckTime"` // 最后检测时间(毫秒时间戳)
}

// Summarize 由监控状态生成统计摘要
func Summarize(status protocol.MonitorStatus) MonitorStatsResult {
	result := MonitorStatsResult{
		Endpoint:     status.Endpoint,
		Status:       status.Health,
		ResponseTime: -1,
		LossPercent:  status.LossPercent,
		Retained:     status.Retained,
	}
	if status.AvgLatencyMs != nil {
		result.ResponseTime = int64(*status.AvgLatencyMs + 0.5)
	}
	if status.Last != nil {
		result.LastCheckTime = status.Last.At.UnixMilli()
	}
	return result
}
