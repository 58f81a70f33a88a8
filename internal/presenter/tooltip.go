package presenter

import (
	"fmt"
	"io"
	"time"

	"github.com/dushixiang/pingtray/internal/protocol"
	"github.com/valyala/fasttemplate"
)

// DefaultTooltip 默认提示文本模板
const DefaultTooltip = "IP: {host} | Last: {last} | Loss({window}): {loss}% | Updated: {updated}"

// MaxTooltipLength 系统托盘提示文本的长度上限
const MaxTooltipLength = 63

// Presenter 将监控状态渲染为图标与提示文本
type Presenter struct {
	tpl *fasttemplate.Template
	now func() time.Time
}

// New 创建渲染器，tooltip 为空时使用默认模板
func New(tooltip string) (*Presenter, error) {
	if tooltip == "" {
		tooltip = DefaultTooltip
	}
	tpl, err := fasttemplate.NewTemplate(tooltip, "{", "}")
	if err != nil {
		return nil, fmt.Errorf("解析提示文本模板失败: %w", err)
	}
	return &Presenter{tpl: tpl, now: time.Now}, nil
}

// Render 生成完整的状态 payload
func (p *Presenter) Render(status protocol.MonitorStatus) protocol.StatusPayload {
	badge := BadgeOf(status)
	return protocol.StatusPayload{
		MonitorStatus: status,
		Badge: protocol.BadgePayload{
			Color: badge.Color,
			Text:  badge.Text,
		},
		Tooltip: p.Tooltip(status),
	}
}

// Tooltip 渲染提示文本，超出长度上限时截断
func (p *Presenter) Tooltip(status protocol.MonitorStatus) string {
	s := p.tpl.ExecuteFuncString(func(w io.Writer, tag string) (int, error) {
		return io.WriteString(w, p.field(status, tag))
	})
	return truncate(s, MaxTooltipLength)
}

func (p *Presenter) field(status protocol.MonitorStatus, tag string) string {
	switch tag {
	case "host":
		if status.Endpoint == "" {
			return "(none)"
		}
		return status.Endpoint
	case "last":
		switch {
		case status.Last == nil:
			return "n/a"
		case status.Last.Success:
			return fmt.Sprintf("%dms", status.Last.RoundTripMs)
		default:
			return protocol.StatusTimeout
		}
	case "status":
		if status.Last == nil {
			return "n/a"
		}
		return status.Last.Status
	case "window":
		return fmt.Sprintf("%d", status.WindowSize)
	case "loss":
		return fmt.Sprintf("%.0f", status.LossPercent)
	case "avg":
		if status.AvgLatencyMs == nil {
			return "n/a"
		}
		return fmt.Sprintf("%.0fms", *status.AvgLatencyMs)
	case "health":
		return string(status.Health)
	case "updated":
		at := p.now()
		if status.Last != nil {
			at = status.Last.At
		}
		return at.Local().Format("15:04:05")
	default:
		return "{" + tag + "}"
	}
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
