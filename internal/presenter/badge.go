package presenter

import (
	"fmt"
	"math"

	"github.com/dushixiang/pingtray/internal/protocol"
)

// 状态图标颜色
const (
	ColorGray   = "#808080"
	ColorGreen  = "#32CD32"
	ColorYellow = "#FFD700"
	ColorRed    = "#CD5C5C"
)

// Badge 状态图标：背景色 + 最多 3 个字符的短文本
type Badge struct {
	Color string
	Text  string
}

// ColorOf 健康状态对应的颜色
func ColorOf(state protocol.HealthState) string {
	switch state {
	case protocol.HealthOK:
		return ColorGreen
	case protocol.HealthDegraded:
		return ColorYellow
	case protocol.HealthDown:
		return ColorRed
	default:
		return ColorGray
	}
}

// BadgeOf 根据监控状态生成图标
//
//	未配置目标      "--"
//	还没有样本      ".."
//	Down/Degraded  有丢包时显示 "L<丢包率>"，否则 Down 为 "X"，Degraded（慢）为 "S"
//	其它           最新样本失败为 "X"，否则显示紧凑的延迟
func BadgeOf(status protocol.MonitorStatus) Badge {
	return Badge{
		Color: ColorOf(status.Health),
		Text:  badgeText(status),
	}
}

func badgeText(status protocol.MonitorStatus) string {
	if status.Endpoint == "" {
		return "--"
	}
	last := status.Last
	if last == nil {
		return ".."
	}

	if status.Health == protocol.HealthDown || status.Health == protocol.HealthDegraded {
		loss := clamp(int(math.Round(status.LossPercent)), 0, 99)
		if loss > 0 {
			return fmt.Sprintf("L%d", loss)
		}
		if status.Health == protocol.HealthDown {
			return "X"
		}
		return "S"
	}

	rtt, ok := last.RoundTrip()
	if !ok {
		return "X"
	}
	return CompactLatency(rtt)
}

// CompactLatency 将延迟压缩为最多 3 个字符：0-99 原样显示，
// 100-999 显示四舍五入后的十位（150ms -> "15"），更大的显示秒数（1s-9s）
func CompactLatency(ms int64) string {
	switch {
	case ms < 100:
		return fmt.Sprintf("%d", max(ms, 0))
	case ms < 1000:
		tens := clamp(int((ms+5)/10), 10, 99)
		return fmt.Sprintf("%02d", tens)
	default:
		secs := clamp(int((ms+500)/1000), 1, 9)
		return fmt.Sprintf("%ds", secs)
	}
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
