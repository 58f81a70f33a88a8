package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/dushixiang/pingtray/internal/config"
	"github.com/kardianos/service"
)

// program 实现 service.Interface
type program struct {
	store  *config.Store
	agent  *Agent
	ctx    context.Context
	cancel context.CancelFunc
}

// Start 启动服务
func (p *program) Start(s service.Service) error {
	slog.Info("Pingtray 服务启动中...")

	p.ctx, p.cancel = context.WithCancel(context.Background())

	agent, err := NewAgent(p.store, p.registrar())
	if err != nil {
		return err
	}
	p.agent = agent

	go func() {
		if err := agent.Run(p.ctx); err != nil {
			slog.Warn("探测服务运行出错", "error", err)
		}
	}()
	return nil
}

// Stop 停止服务
func (p *program) Stop(s service.Service) error {
	slog.Info("Pingtray 服务停止中...")

	if p.cancel != nil {
		p.cancel()
	}
	if p.agent != nil {
		p.agent.Wait()
	}

	slog.Info("Pingtray 服务已停止")
	return nil
}

// registrar 服务模式下自启状态由服务管理器自身管理
func (p *program) registrar() Registrar {
	mgr, err := NewServiceManager(p.store)
	if err != nil {
		slog.Warn("创建服务管理器失败", "error", err)
		return nil
	}
	return mgr
}

// Registrar 开机自启注册
type Registrar interface {
	Enabled() (bool, error)
	SetEnabled(enabled bool) error
}

// ServiceManager 服务管理器，安装为用户服务即表示登录后自动启动
type ServiceManager struct {
	store   *config.Store
	service service.Service
}

// NewServiceManager 创建服务管理器
func NewServiceManager(store *config.Store) (*ServiceManager, error) {
	execPath, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("获取可执行文件路径失败: %w", err)
	}

	svcConfig := &service.Config{
		Name:        "pingtray",
		DisplayName: "Pingtray",
		Description: "Pingtray - 持续探测单个网络目标的可达性与延迟",
		Arguments:   []string{"run", "--config", store.Path()},
		Executable:  execPath,
		Option: service.KeyValue{
			// 用户级服务，登录后启动（Windows 不支持用户级服务）
			"UserService": runtime.GOOS != "windows",

			// Linux systemd 配置
			"Restart":    "on-failure",
			"RestartSec": "10",

			// Windows 配置
			"OnFailure":    "restart",
			"RestartDelay": 10000,

			// launchd 配置
			"KeepAlive": true,
			"RunAtLoad": true,
		},
	}

	prg := &program{store: store}

	s, err := service.New(prg, svcConfig)
	if err != nil {
		return nil, fmt.Errorf("创建服务失败: %w", err)
	}

	return &ServiceManager{
		store:   store,
		service: s,
	}, nil
}

// Enabled 是否已安装为登录自启服务
func (m *ServiceManager) Enabled() (bool, error) {
	_, err := m.service.Status()
	if errors.Is(err, service.ErrNotInstalled) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// SetEnabled 安装或卸载登录自启服务，已是目标状态时不做任何事
func (m *ServiceManager) SetEnabled(enabled bool) error {
	current, err := m.Enabled()
	if err != nil {
		return err
	}
	if current == enabled {
		return nil
	}
	if enabled {
		return m.Install()
	}
	return m.Uninstall()
}

// Install 安装服务
func (m *ServiceManager) Install() error {
	return m.service.Install()
}

// Uninstall 卸载服务
func (m *ServiceManager) Uninstall() error {
	// 先停止服务
	_ = m.service.Stop()

	return m.service.Uninstall()
}

// Start 启动服务
func (m *ServiceManager) Start() error {
	return m.service.Start()
}

// Stop 停止服务
func (m *ServiceManager) Stop() error {
	return m.service.Stop()
}

// Restart 重启服务
func (m *ServiceManager) Restart() error {
	return m.service.Restart()
}

// Status 查看服务状态
func (m *ServiceManager) Status() (string, error) {
	status, err := m.service.Status()
	if errors.Is(err, service.ErrNotInstalled) {
		return "未安装 (Not installed)", nil
	}
	if err != nil {
		return "", err
	}

	var statusStr string
	switch status {
	case service.StatusRunning:
		statusStr = "运行中 (Running)"
	case service.StatusStopped:
		statusStr = "已停止 (Stopped)"
	case service.StatusUnknown:
		statusStr = "未知 (Unknown)"
	default:
		statusStr = fmt.Sprintf("状态: %d", status)
	}

	return statusStr, nil
}

// Run 运行（用于 run 命令）：在服务管理器控制下运行，或在前台运行直到收到中断信号
func (m *ServiceManager) Run() error {
	if !service.Interactive() {
		return m.service.Run()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	agent, err := NewAgent(m.store, m)
	if err != nil {
		return err
	}
	err = agent.Run(ctx)
	slog.Info("探测服务已停止")
	return err
}
