package monitor

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/dushixiang/pingtray/internal/protocol"
	"github.com/sourcegraph/conc"
)

// Prober 网络探测器。实现方必须在 timeout 内返回，且不能让任何错误逃逸：
// 所有失败都以失败样本的形式返回，ctx 被取消时返回状态为 "canceled" 的样本。
type Prober interface {
	Probe(ctx context.Context, endpoint string, timeout time.Duration) protocol.PingSample
}

// Option 监控器选项
type Option func(*Monitor)

// WithClock 指定时钟（测试时可替换为 mock）
func WithClock(c clock.Clock) Option {
	return func(m *Monitor) {
		m.clock = c
	}
}

// WithLogger 指定日志
func WithLogger(logger *slog.Logger) Option {
	return func(m *Monitor) {
		m.logger = logger
	}
}

// loopState 一次 Start/Stop 周期内的循环状态，每次 Start 都会重新创建
type loopState struct {
	cancel context.CancelFunc
	done   chan struct{}
	// 每个周期只发出一次 EventStopped
	notified atomic.Bool
}

func (s *loopState) exited() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Monitor 单目标探测引擎：后台循环负责探测和追加样本，其余方法可在任意 goroutine 调用
type Monitor struct {
	prober   Prober
	clock    clock.Clock
	logger   *slog.Logger
	ledger   *Ledger
	notifier *notifier

	settingsMu sync.RWMutex
	settings   Settings

	lifecycleMu sync.Mutex
	state       atomic.Pointer[loopState]
}

// New 创建监控器，初始配置为默认值（未设置探测目标）
func New(prober Prober, opts ...Option) *Monitor {
	m := &Monitor{
		prober:   prober,
		clock:    clock.New(),
		logger:   slog.Default(),
		ledger:   NewLedger(),
		settings: DefaultSettings(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.notifier = newNotifier(m.logger)
	return m
}

// Configure 规范化并应用配置，不影响循环的运行状态。下一轮探测开始时生效。
func (m *Monitor) Configure(endpoint string, intervalMs, latencyThresholdMs, windowSize int) {
	m.Apply(Settings{
		Endpoint:           endpoint,
		IntervalMs:         intervalMs,
		LatencyThresholdMs: latencyThresholdMs,
		WindowSize:         windowSize,
	})
}

// Apply 整体替换配置，返回规范化后的结果
func (m *Monitor) Apply(s Settings) Settings {
	s = NormalizeSettings(s)

	m.settingsMu.Lock()
	m.settings = s
	m.settingsMu.Unlock()

	m.logger.Debug("监控配置已更新",
		"endpoint", s.Endpoint,
		"interval_ms", s.IntervalMs,
		"threshold_ms", s.LatencyThresholdMs,
		"window", s.WindowSize)
	return s
}

// Settings 当前生效的配置
func (m *Monitor) Settings() Settings {
	m.settingsMu.RLock()
	defer m.settingsMu.RUnlock()
	return m.settings
}

// Start 启动探测循环，已在运行时不做任何事
func (m *Monitor) Start() {
	m.lifecycleMu.Lock()
	defer m.lifecycleMu.Unlock()

	if st := m.state.Load(); st != nil && !st.exited() {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	st := &loopState{cancel: cancel, done: make(chan struct{})}
	m.state.Store(st)

	var wg conc.WaitGroup
	wg.Go(func() { m.loop(ctx) })
	go func() {
		defer close(st.done)
		if r := wg.WaitAndRecover(); r != nil {
			m.logger.Error("探测循环异常退出", "panic", r.String())
			m.notifyStopped(st)
		}
	}()

	m.logger.Info("探测循环已启动", "endpoint", m.Settings().Endpoint)
}

// Stop 停止探测循环并阻塞直到循环完全退出（最多一次探测超时）。
// 未运行时不做任何事；停止完成后总是发出一次 EventStopped 通知，
// 循环异常退出时由后台在退出前发出。
func (m *Monitor) Stop() {
	m.lifecycleMu.Lock()
	st := m.state.Load()
	if st == nil || st.exited() {
		m.lifecycleMu.Unlock()
		return
	}

	st.cancel()
	<-st.done
	m.state.Store(nil)
	m.lifecycleMu.Unlock()

	m.logger.Info("探测循环已停止")
	m.notifyStopped(st)
}

func (m *Monitor) notifyStopped(st *loopState) {
	if st.notified.CompareAndSwap(false, true) {
		m.notifier.publish(Event{Kind: EventStopped})
	}
}

// IsRunning 循环存在且尚未退出
func (m *Monitor) IsRunning() bool {
	st := m.state.Load()
	return st != nil && !st.exited()
}

// Subscribe 订阅变更通知，返回取消订阅函数
func (m *Monitor) Subscribe(fn Listener) (unsubscribe func()) {
	return m.notifier.subscribe(fn)
}

// Snapshot 全部保留样本的拷贝以及最新样本
func (m *Monitor) Snapshot() Snapshot {
	return m.ledger.Snapshot()
}

// LossPercent 最近 windowSize 个样本的丢包率（0-100），没有样本时为 0
func (m *Monitor) LossPercent() float64 {
	return m.ledger.Stats(m.Settings().WindowSize).LossPercent
}

// AverageLatencyMs 最近 windowSize 个样本中成功样本的平均往返时间
func (m *Monitor) AverageLatencyMs() (float64, bool) {
	stats := m.ledger.Stats(m.Settings().WindowSize)
	return stats.AvgLatencyMs, stats.HasLatency
}

// HealthState 当前健康状态
func (m *Monitor) HealthState() protocol.HealthState {
	s := m.Settings()
	stats := m.ledger.Stats(s.WindowSize)
	return Classify(s.Endpoint, stats.Last, stats.LossPercent, s.LatencyThresholdMs)
}

// Status 供展示层使用的一致性视图
func (m *Monitor) Status() protocol.MonitorStatus {
	s := m.Settings()
	stats := m.ledger.Stats(s.WindowSize)

	status := protocol.MonitorStatus{
		Endpoint:           s.Endpoint,
		Running:            m.IsRunning(),
		Health:             Classify(s.Endpoint, stats.Last, stats.LossPercent, s.LatencyThresholdMs),
		LossPercent:        stats.LossPercent,
		Last:               stats.Last,
		Retained:           stats.Retained,
		WindowSize:         s.WindowSize,
		IntervalMs:         s.IntervalMs,
		LatencyThresholdMs: s.LatencyThresholdMs,
	}
	if stats.HasLatency {
		avg := stats.AvgLatencyMs
		status.AvgLatencyMs = &avg
	}
	return status
}

func (m *Monitor) loop(ctx context.Context) {
	for ctx.Err() == nil {
		// 每轮开始时读取一次配置
		s := m.Settings()

		var sample protocol.PingSample
		if s.Endpoint == "" {
			sample = protocol.FailedSample(m.clock.Now(), protocol.StatusNoHost)
		} else {
			sample = m.prober.Probe(ctx, s.Endpoint, s.ProbeTimeout())
			// 取消后完成的探测只保留探测器自己给出的 canceled 结果
			if ctx.Err() != nil && sample.Status != protocol.StatusCanceled {
				return
			}
		}

		m.ledger.Append(sample, s.WindowSize)
		m.logger.Debug("探测完成", "endpoint", s.Endpoint, "success", sample.Success, "status", sample.Status)
		m.notifier.publish(Event{Kind: EventSample, Sample: sample})

		if !m.sleep(ctx, s.Interval()) {
			return
		}
	}
}

// sleep 可取消的等待，被取消时返回 false
func (m *Monitor) sleep(ctx context.Context, d time.Duration) bool {
	timer := m.clock.Timer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
