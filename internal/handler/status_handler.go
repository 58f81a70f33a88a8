package handler

import (
	"net/http"

	"github.com/dushixiang/pingtray/internal/config"
	"github.com/dushixiang/pingtray/internal/presenter"
	"github.com/dushixiang/pingtray/internal/protocol"
	"github.com/dushixiang/pingtray/pkg/agent/monitor"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// Controller 展示层可用的操作
type Controller interface {
	Status() protocol.MonitorStatus
	Snapshot() monitor.Snapshot
	StartMonitor()
	StopMonitor()
	Settings() config.Settings
	ApplySettings(settings config.Settings) (config.Settings, error)
	AutostartEnabled() (bool, error)
	SetAutostart(enabled bool) error
}

// HostInfoCollector 本机信息来源
type HostInfoCollector interface {
	Collect() (*protocol.HostInfo, error)
}

// StatusHandler 状态接口处理器
type StatusHandler struct {
	logger     *zap.Logger
	controller Controller
	presenter  *presenter.Presenter
	host       HostInfoCollector
}

// NewStatusHandler 创建处理器
func NewStatusHandler(logger *zap.Logger, controller Controller, p *presenter.Presenter, host HostInfoCollector) *StatusHandler {
	return &StatusHandler{
		logger:     logger,
		controller: controller,
		presenter:  p,
		host:       host,
	}
}

// GetStatus 获取当前状态
// GET /api/status
func (h *StatusHandler) GetStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, h.presenter.Render(h.controller.Status()))
}

// ListSamples 获取保留的全部样本
// GET /api/samples
func (h *StatusHandler) ListSamples(c echo.Context) error {
	snapshot := h.controller.Snapshot()
	items := snapshot.Samples
	if items == nil {
		items = []protocol.PingSample{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"items": items,
		"total": len(items),
		"last":  snapshot.Last,
	})
}

// StartMonitor 启动探测
// POST /api/monitor/start
func (h *StatusHandler) StartMonitor(c echo.Context) error {
	h.controller.StartMonitor()
	return c.JSON(http.StatusOK, h.presenter.Render(h.controller.Status()))
}

// StopMonitor 停止探测（等待循环退出后返回）
// POST /api/monitor/stop
func (h *StatusHandler) StopMonitor(c echo.Context) error {
	h.controller.StopMonitor()
	return c.JSON(http.StatusOK, h.presenter.Render(h.controller.Status()))
}

// GetSettings 获取探测配置
// GET /api/settings
func (h *StatusHandler) GetSettings(c echo.Context) error {
	return c.JSON(http.StatusOK, toPayload(h.controller.Settings()))
}

// UpdateSettings 更新探测配置，数值超出范围时截断
// PUT /api/settings
func (h *StatusHandler) UpdateSettings(c echo.Context) error {
	current := h.controller.Settings()
	req := toPayload(current)
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "请求参数错误",
		})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "目标地址无效，请输入 IPv4/IPv6 地址或主机名",
		})
	}

	current.Host = req.Host
	current.IntervalMs = req.IntervalMs
	current.LatencyThresholdMs = req.LatencyThresholdMs
	current.WindowSize = req.WindowSize

	saved, err := h.controller.ApplySettings(current)
	if err != nil {
		h.logger.Error("保存探测配置失败", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "保存配置失败",
		})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"message":  "配置已保存",
		"settings": toPayload(saved),
	})
}

// GetAutostart 获取开机自启状态
// GET /api/autostart
func (h *StatusHandler) GetAutostart(c echo.Context) error {
	enabled, err := h.controller.AutostartEnabled()
	if err != nil {
		h.logger.Error("获取开机自启状态失败", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "获取开机自启状态失败",
		})
	}
	return c.JSON(http.StatusOK, protocol.AutostartPayload{Enabled: enabled})
}

// UpdateAutostart 设置开机自启
// PUT /api/autostart
func (h *StatusHandler) UpdateAutostart(c echo.Context) error {
	var req protocol.AutostartPayload
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "请求参数错误",
		})
	}

	if err := h.controller.SetAutostart(req.Enabled); err != nil {
		h.logger.Error("更新开机自启设置失败", zap.Bool("enabled", req.Enabled), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "更新开机自启设置失败: " + err.Error(),
		})
	}
	return c.JSON(http.StatusOK, req)
}

// GetSystem 获取本机信息
// GET /api/system
func (h *StatusHandler) GetSystem(c echo.Context) error {
	info, err := h.host.Collect()
	if err != nil {
		h.logger.Error("获取本机信息失败", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "获取本机信息失败",
		})
	}
	return c.JSON(http.StatusOK, info)
}

func toPayload(s config.Settings) protocol.SettingsPayload {
	return protocol.SettingsPayload{
		Host:               s.Host,
		IntervalMs:         s.IntervalMs,
		LatencyThresholdMs: s.LatencyThresholdMs,
		WindowSize:         s.WindowSize,
	}
}
