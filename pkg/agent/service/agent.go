package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/dushixiang/pingtray/internal/config"
	"github.com/dushixiang/pingtray/internal/handler"
	"github.com/dushixiang/pingtray/internal/metric"
	"github.com/dushixiang/pingtray/internal/presenter"
	"github.com/dushixiang/pingtray/internal/protocol"
	"github.com/dushixiang/pingtray/internal/scheduler"
	"github.com/dushixiang/pingtray/internal/server"
	"github.com/dushixiang/pingtray/internal/websocket"
	"github.com/dushixiang/pingtray/pkg/agent"
	"github.com/dushixiang/pingtray/pkg/agent/collector"
	"github.com/dushixiang/pingtray/pkg/agent/monitor"
	"github.com/sourcegraph/conc"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// ErrAutostartUnavailable 当前环境无法管理开机自启
var ErrAutostartUnavailable = errors.New("autostart is not available")

// AgentOption Agent 选项
type AgentOption func(*agentOptions)

type agentOptions struct {
	prober  monitor.Prober
	console io.Writer
	logging bool
}

// WithProber 替换探测器
func WithProber(p monitor.Prober) AgentOption {
	return func(o *agentOptions) {
		o.prober = p
	}
}

// WithConsole 指定终端状态输出
func WithConsole(w io.Writer) AgentOption {
	return func(o *agentOptions) {
		o.console = w
	}
}

// WithoutLoggerInit 不初始化全局日志（测试使用）
func WithoutLoggerInit() AgentOption {
	return func(o *agentOptions) {
		o.logging = false
	}
}

// Agent 进程级组装：加载配置，驱动监控器，并把展示层、状态接口、配置监听等连接起来
type Agent struct {
	store     *config.Store
	registrar Registrar
	logger    *zap.Logger

	monitor   *monitor.Monitor
	presenter *presenter.Presenter
	hub       *websocket.Hub
	collector *metric.Collector
	report    *scheduler.ReportScheduler
	server    *server.Server
	console   *presenter.Console

	cfgMu sync.Mutex
	cfg   config.AppConfig

	unsubscribe func()
	done        chan struct{}
}

// NewAgent 创建 Agent。registrar 为空时开机自启不可用。
func NewAgent(store *config.Store, registrar Registrar, opts ...AgentOption) (*Agent, error) {
	o := agentOptions{console: os.Stdout, logging: true}
	for _, opt := range opts {
		opt(&o)
	}

	cfg := store.Load()

	logCfg := &agent.LogConfig{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Compress:   cfg.Log.Compress,
	}
	var logger *zap.Logger
	if o.logging {
		writer := agent.InitLogger(logCfg)
		logger = agent.NewZapLogger(logCfg, writer)
	} else {
		logger = zap.NewNop()
	}

	p, err := presenter.New(cfg.Presenter.Tooltip)
	if err != nil {
		return nil, err
	}

	prober := o.prober
	if prober == nil {
		prober = collector.NewICMPProber(nil)
	}
	m := monitor.New(prober, monitor.WithLogger(slog.Default().With("module", "monitor")))

	a := &Agent{
		store:     store,
		registrar: registrar,
		logger:    logger,
		monitor:   m,
		presenter: p,
		hub:       websocket.NewHub(m, p, logger.Named("websocket")),
		report:    scheduler.NewReportScheduler(m, logger.Named("report")),
		cfg:       cfg,
		done:      make(chan struct{}),
	}
	a.collector, a.unsubscribe = metric.NewCollector(m)

	if cfg.Server.Enabled {
		h := handler.NewStatusHandler(logger.Named("handler"), a, p, collector.NewHostCollector())
		a.server = server.New(logger.Named("server"), h, a.hub, metric.NewRegistry(a.collector))
	}
	if cfg.Presenter.Console && o.console != nil {
		a.console = presenter.NewConsole(m, p, o.console)
	}
	return a, nil
}

// Monitor 探测引擎
func (a *Agent) Monitor() *monitor.Monitor {
	return a.monitor
}

// Run 启动全部组件并阻塞直到 ctx 结束，随后按顺序关闭
func (a *Agent) Run(ctx context.Context) error {
	defer close(a.done)

	cfg := a.config()
	slog.Info("配置加载成功",
		"config", a.store.Path(),
		"host", cfg.Monitor.Host,
		"interval_ms", cfg.Monitor.IntervalMs,
		"threshold_ms", cfg.Monitor.LatencyThresholdMs)

	if info, err := collector.NewHostCollector().Collect(); err == nil {
		slog.Info("运行环境",
			"hostname", info.Hostname,
			"platform", info.Platform,
			"version", info.PlatformVersion,
			"arch", info.KernelArch)
	}

	a.reconcileAutostart()

	a.monitor.Apply(cfg.Monitor.MonitorSettings())
	// 未配置目标时保持停止，等待设置
	if cfg.Monitor.Host != "" {
		a.monitor.Start()
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg conc.WaitGroup
	wg.Go(func() { a.hub.Run(runCtx) })
	if a.console != nil {
		wg.Go(func() { a.console.Run(runCtx) })
	}
	if a.store.Watchable() {
		watcher := config.NewWatcher(a.store, a.onConfigChange)
		wg.Go(func() {
			if err := watcher.Run(runCtx); err != nil {
				slog.Warn("配置文件监控退出", "error", err)
			}
		})
	}
	if a.server != nil {
		if _, err := a.server.Listen(cfg.Server.Listen); err != nil {
			a.logger.Error("启动状态接口失败", zap.Error(err))
		} else {
			wg.Go(func() {
				if err := a.server.Serve(); err != nil {
					a.logger.Error("状态接口异常退出", zap.Error(err))
				}
			})
		}
	}
	if err := a.report.Start(cfg.Report.ReportInterval()); err != nil {
		a.logger.Warn("启动统计日志失败", zap.Error(err))
	}

	<-ctx.Done()
	slog.Info("收到退出信号，正在关闭...")
	return a.shutdown(cancel, &wg)
}

func (a *Agent) shutdown(cancel context.CancelFunc, wg *conc.WaitGroup) error {
	// 先停止探测，Stop 会等待循环退出
	a.monitor.Stop()

	var err error
	if a.server != nil {
		err = multierr.Append(err, a.server.Shutdown(context.Background()))
	}
	a.report.Stop()
	cancel()
	if r := wg.WaitAndRecover(); r != nil {
		err = multierr.Append(err, fmt.Errorf("组件异常退出: %s", r.String()))
	}
	a.unsubscribe()

	// 标准输出不支持 Sync，忽略该错误
	_ = a.logger.Sync()
	return err
}

// Wait 等待 Run 返回
func (a *Agent) Wait() {
	<-a.done
}

func (a *Agent) config() config.AppConfig {
	a.cfgMu.Lock()
	defer a.cfgMu.Unlock()
	return a.cfg
}

// reconcileAutostart 以系统中的实际状态为准，修正配置中的 runAtStartup
func (a *Agent) reconcileAutostart() {
	if a.registrar == nil {
		return
	}
	actual, err := a.registrar.Enabled()
	if err != nil {
		slog.Warn("获取开机自启状态失败", "error", err)
		return
	}
	if actual == a.config().Monitor.RunAtStartup {
		return
	}
	if _, err := a.saveConfig(func(cfg *config.AppConfig) { cfg.Monitor.RunAtStartup = actual }); err != nil {
		slog.Warn("保存开机自启状态失败", "error", err)
	}
}

func (a *Agent) saveConfig(fn func(cfg *config.AppConfig)) (config.AppConfig, error) {
	a.cfgMu.Lock()
	defer a.cfgMu.Unlock()

	cfg, err := a.store.Update(fn)
	if err != nil {
		return config.AppConfig{}, err
	}
	a.cfg = cfg
	return cfg, nil
}

// onConfigChange 配置文件被外部修改后应用新的探测配置
func (a *Agent) onConfigChange(cfg config.AppConfig) {
	a.cfgMu.Lock()
	prev := a.cfg
	a.cfg = cfg
	a.cfgMu.Unlock()

	if cfg.Report != prev.Report {
		if err := a.report.Reschedule(cfg.Report.ReportInterval()); err != nil {
			a.logger.Warn("更新统计日志间隔失败", zap.Error(err))
		}
	}

	next := cfg.Monitor.MonitorSettings()
	if next == a.monitor.Settings() {
		return
	}
	a.applyToMonitor(next)
}

// applyToMonitor 应用探测配置；已停止且配置了目标时自动启动
func (a *Agent) applyToMonitor(s monitor.Settings) {
	s = a.monitor.Apply(s)
	if !a.monitor.IsRunning() && s.Endpoint != "" {
		a.monitor.Start()
	}
}

// Status 实现 handler.Controller
func (a *Agent) Status() protocol.MonitorStatus {
	return a.monitor.Status()
}

// Snapshot 实现 handler.Controller
func (a *Agent) Snapshot() monitor.Snapshot {
	return a.monitor.Snapshot()
}

// StartMonitor 实现 handler.Controller
func (a *Agent) StartMonitor() {
	a.monitor.Start()
}

// StopMonitor 实现 handler.Controller
func (a *Agent) StopMonitor() {
	a.monitor.Stop()
}

// Settings 实现 handler.Controller
func (a *Agent) Settings() config.Settings {
	return a.config().Monitor
}

// ApplySettings 保存并应用探测配置
func (a *Agent) ApplySettings(settings config.Settings) (config.Settings, error) {
	cfg, err := a.saveConfig(func(cfg *config.AppConfig) {
		runAtStartup := cfg.Monitor.RunAtStartup
		cfg.Monitor = settings
		cfg.Monitor.RunAtStartup = runAtStartup
	})
	if err != nil {
		return config.Settings{}, err
	}
	a.applyToMonitor(cfg.Monitor.MonitorSettings())
	return cfg.Monitor, nil
}

// AutostartEnabled 实现 handler.Controller
func (a *Agent) AutostartEnabled() (bool, error) {
	if a.registrar == nil {
		return false, ErrAutostartUnavailable
	}
	return a.registrar.Enabled()
}

// SetAutostart 切换开机自启。失败时配置保持系统中的实际状态，并把错误返回给调用方。
func (a *Agent) SetAutostart(enabled bool) error {
	if a.registrar == nil {
		return ErrAutostartUnavailable
	}

	setErr := a.registrar.SetEnabled(enabled)
	actual := enabled
	if setErr != nil {
		actual = !enabled
		if current, err := a.registrar.Enabled(); err == nil {
			actual = current
		}
	}

	if _, err := a.saveConfig(func(cfg *config.AppConfig) { cfg.Monitor.RunAtStartup = actual }); err != nil {
		return multierr.Append(setErr, err)
	}
	return setErr
}

var _ handler.Controller = (*Agent)(nil)
