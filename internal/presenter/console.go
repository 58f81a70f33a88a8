package presenter

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/dushixiang/pingtray/internal/protocol"
	"github.com/dushixiang/pingtray/pkg/agent/monitor"
)

// Source 监控状态来源
type Source interface {
	Status() protocol.MonitorStatus
	Subscribe(fn monitor.Listener) (unsubscribe func())
}

// Console 终端状态输出。
// 通知在探测循环的 goroutine 中到达，这里只做非阻塞投递，渲染在自己的 goroutine 中完成。
type Console struct {
	source    Source
	presenter *Presenter
	out       io.Writer
	wake      chan struct{}
}

// NewConsole 创建终端输出
func NewConsole(source Source, presenter *Presenter, out io.Writer) *Console {
	return &Console{
		source:    source,
		presenter: presenter,
		out:       out,
		wake:      make(chan struct{}, 1),
	}
}

// Run 阻塞运行直到 ctx 结束，状态行变化时输出一行
func (c *Console) Run(ctx context.Context) {
	unsubscribe := c.source.Subscribe(func(monitor.Event) {
		select {
		case c.wake <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	var previous string
	render := func() {
		payload := c.presenter.Render(c.source.Status())
		line := fmt.Sprintf("[%-3s] %-8s %s", payload.Badge.Text, payload.Health, payload.Tooltip)
		if line == previous {
			return
		}
		previous = line
		if _, err := fmt.Fprintln(c.out, line); err != nil {
			slog.Warn("输出状态失败", "error", err)
		}
	}

	render()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.wake:
			render()
		}
	}
}
