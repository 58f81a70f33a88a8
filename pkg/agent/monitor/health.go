package monitor

import "github.com/dushixiang/pingtray/internal/protocol"

// Classify 根据探测目标、最新样本和窗口丢包率推导健康状态。
//
// 最新样本成功时，只要延迟超过阈值或者窗口内存在任何丢包就判定为 Degraded，
// 即使随后已经恢复，也要等到丢包样本移出窗口后才会回到 OK。
func Classify(endpoint string, last *protocol.PingSample, lossPercent float64, thresholdMs int) protocol.HealthState {
	if endpoint == "" || last == nil {
		return protocol.HealthUnknown
	}
	rtt, ok := last.RoundTrip()
	if !ok {
		return protocol.HealthDown
	}
	if rtt > int64(thresholdMs) || lossPercent > 0 {
		return protocol.HealthDegraded
	}
	return protocol.HealthOK
}
