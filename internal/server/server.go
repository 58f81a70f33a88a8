package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/dushixiang/pingtray/internal/handler"
	"github.com/dushixiang/pingtray/internal/websocket"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// requestValidator 适配 echo.Validator
type requestValidator struct {
	validate *validator.Validate
}

func (v *requestValidator) Validate(i interface{}) error {
	return v.validate.Struct(i)
}

// Server 本地状态接口
type Server struct {
	echo     *echo.Echo
	listener net.Listener
	logger   *zap.Logger
}

// New 创建状态接口并注册路由
func New(logger *zap.Logger, h *handler.StatusHandler, hub *websocket.Hub, registry *prometheus.Registry) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = &requestValidator{validate: validator.New()}

	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:    true,
		LogStatus: true,
		LogMethod: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			logger.Debug("HTTP 请求",
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status))
			return nil
		},
	}))

	api := e.Group("/api")
	api.GET("/status", h.GetStatus)
	api.GET("/samples", h.ListSamples)
	api.POST("/monitor/start", h.StartMonitor)
	api.POST("/monitor/stop", h.StopMonitor)
	api.GET("/settings", h.GetSettings)
	api.PUT("/settings", h.UpdateSettings)
	api.GET("/autostart", h.GetAutostart)
	api.PUT("/autostart", h.UpdateAutostart)
	api.GET("/system", h.GetSystem)
	api.GET("/ws", func(c echo.Context) error {
		if err := hub.ServeWS(c.Response(), c.Request()); err != nil {
			logger.Warn("WebSocket 升级失败", zap.Error(err))
		}
		return nil
	})

	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	return &Server{echo: e, logger: logger}
}

// Handler 路由（测试使用）
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Listen 绑定监听地址，返回实际地址
func (s *Server) Listen(addr string) (net.Addr, error) {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("监听 %s 失败: %w", addr, err)
	}
	s.listener = l
	s.echo.Listener = l
	return l.Addr(), nil
}

// Serve 阻塞处理请求，正常关闭时返回 nil
func (s *Server) Serve() error {
	if s.listener == nil {
		return errors.New("server is not listening")
	}
	s.logger.Info("状态接口已启动", zap.String("addr", s.listener.Addr().String()))
	if err := s.echo.Start(""); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown 优雅关闭
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.echo.Shutdown(ctx)
}
