package monitor

import (
	"log/slog"
	"slices"
	"sync"

	"github.com/dushixiang/pingtray/internal/protocol"
	"github.com/sourcegraph/conc/panics"
)

// EventKind 通知类型
type EventKind int

const (
	// EventSample 一轮探测完成，样本已追加
	EventSample EventKind = iota + 1
	// EventStopped 探测循环已停止
	EventStopped
)

func (k EventKind) String() string {
	switch k {
	case EventSample:
		return "sample"
	case EventStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Event 监控器变更通知
type Event struct {
	Kind   EventKind
	Sample protocol.PingSample // 仅 EventSample 有效
}

// Listener 通知回调。回调在探测循环（或 Stop 调用方）所在的 goroutine 中同步执行，
// 需要切换执行上下文的订阅方自行处理。回调中不能同步调用 Stop。
type Listener func(Event)

type subscription struct {
	id uint64
	fn Listener
}

type notifier struct {
	logger *slog.Logger

	mu     sync.RWMutex
	nextID uint64
	subs   []subscription
}

func newNotifier(logger *slog.Logger) *notifier {
	return &notifier{logger: logger}
}

func (n *notifier) subscribe(fn Listener) func() {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.nextID++
	id := n.nextID
	n.subs = append(n.subs, subscription{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() {
			n.mu.Lock()
			defer n.mu.Unlock()
			n.subs = slices.DeleteFunc(n.subs, func(s subscription) bool { return s.id == id })
		})
	}
}

// publish 按订阅顺序依次回调，回调期间不持有锁。
// 订阅方的 panic 会被捕获并记录，不会中断探测循环。
func (n *notifier) publish(evt Event) {
	n.mu.RLock()
	subs := slices.Clone(n.subs)
	n.mu.RUnlock()

	for _, s := range subs {
		var pc panics.Catcher
		pc.Try(func() { s.fn(evt) })
		if r := pc.Recovered(); r != nil {
			n.logger.Error("通知回调异常", "event", evt.Kind.String(), "panic", r.String())
		}
	}
}
