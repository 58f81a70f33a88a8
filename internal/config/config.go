package config

import (
	"time"

	"github.com/dushixiang/pingtray/pkg/agent/monitor"
)

// AppConfig 应用配置
type AppConfig struct {
	Monitor   Settings        `yaml:"monitor"`
	Log       LogConfig       `yaml:"log"`
	Server    ServerConfig    `yaml:"server"`
	Report    ReportConfig    `yaml:"report"`
	Presenter PresenterConfig `yaml:"presenter"`
}

// Settings 探测配置（持久化的设置记录）
type Settings struct {
	Host               string `yaml:"host"`               // IP 或主机名，为空表示未配置
	IntervalMs         int    `yaml:"intervalMs"`         // 探测间隔（毫秒）
	LatencyThresholdMs int    `yaml:"latencyThresholdMs"` // 慢速阈值（毫秒）
	WindowSize         int    `yaml:"windowSize"`         // 统计窗口大小
	RunAtStartup       bool   `yaml:"runAtStartup"`       // 登录后自动启动
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`       // 为空时输出到标准输出
	MaxSize    int    `yaml:"maxSize"`    // MB
	MaxBackups int    `yaml:"maxBackups"` // 保留的旧日志文件数
	MaxAge     int    `yaml:"maxAge"`     // 天数
	Compress   bool   `yaml:"compress"`
}

// ServerConfig 本地状态接口配置
type ServerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// ReportConfig 定期统计日志配置
type ReportConfig struct {
	IntervalSeconds int `yaml:"intervalSeconds"` // 0 表示禁用
}

// PresenterConfig 展示配置
type PresenterConfig struct {
	Console bool   `yaml:"console"` // 在终端输出状态行
	Tooltip string `yaml:"tooltip"` // 提示文本模板，为空使用默认模板
}

// Default 默认配置
func Default() AppConfig {
	return AppConfig{
		Monitor: Settings{
			IntervalMs:         monitor.DefaultIntervalMs,
			LatencyThresholdMs: monitor.DefaultLatencyThresholdMs,
			WindowSize:         monitor.DefaultWindowSize,
		},
		Log: LogConfig{
			Level:      "info",
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     7,
		},
		Server: ServerConfig{
			Enabled: true,
			Listen:  "127.0.0.1:18787",
		},
		Report: ReportConfig{
			IntervalSeconds: 60,
		},
		Presenter: PresenterConfig{
			Console: true,
		},
	}
}

// MonitorSettings 转换为监控器配置（已规范化）
func (s Settings) MonitorSettings() monitor.Settings {
	return monitor.NormalizeSettings(monitor.Settings{
		Endpoint:           s.Host,
		IntervalMs:         s.IntervalMs,
		LatencyThresholdMs: s.LatencyThresholdMs,
		WindowSize:         s.WindowSize,
	})
}

// Normalize 规范化探测配置，数值超出范围时截断
func (s Settings) Normalize() Settings {
	ms := s.MonitorSettings()
	s.Host = ms.Endpoint
	s.IntervalMs = ms.IntervalMs
	s.LatencyThresholdMs = ms.LatencyThresholdMs
	s.WindowSize = ms.WindowSize
	return s
}

// ReportInterval 统计日志间隔
func (c ReportConfig) ReportInterval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}
