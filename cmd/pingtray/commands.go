package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dushixiang/pingtray/internal/config"
	"github.com/dushixiang/pingtray/internal/protocol"
	"github.com/dushixiang/pingtray/pkg/agent/collector"
	"github.com/dushixiang/pingtray/pkg/agent/monitor"
	"github.com/dushixiang/pingtray/pkg/agent/service"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "运行探测（前台或由服务管理器启动）",
	RunE: func(cmd *cobra.Command, args []string) error {
		store := newStore()
		mgr, err := service.NewServiceManager(store)
		if err != nil {
			// 无法管理服务时仍可前台运行，只是开机自启不可用
			fmt.Fprintf(os.Stderr, "服务管理不可用: %v\n", err)
			return runForeground(store)
		}
		return mgr.Run()
	},
}

func runForeground(store *config.Store) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	agent, err := service.NewAgent(store, nil)
	if err != nil {
		return err
	}
	return agent.Run(ctx)
}

var pingCount int

var pingCmd = &cobra.Command{
	Use:   "ping <host>",
	Short: "对目标执行探测并输出结果",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		cfg := newStore().Load()
		settings := cfg.Monitor.MonitorSettings()
		prober := collector.NewICMPProber(nil)

		for i := 0; i < pingCount; i++ {
			if i > 0 {
				select {
				case <-ctx.Done():
					return nil
				case <-time.After(settings.Interval()):
				}
			}
			sample := prober.Probe(ctx, args[0], settings.ProbeTimeout())
			if sample.Status == protocol.StatusCanceled {
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s  %-5v  %s\n",
				sample.At.Format("15:04:05"), sample.Success, sample.Status)
		}
		return nil
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "查看或修改配置",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "输出当前生效的配置",
	RunE: func(cmd *cobra.Command, args []string) error {
		store := newStore()
		cfg := store.Load()
		data, err := yaml.Marshal(&cfg)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "# %s\n%s", store.Path(), data)
		return nil
	},
}

var (
	setHost      string
	setInterval  int
	setThreshold int
	setWindow    int
)

var configSetCmd = &cobra.Command{
	Use:   "set",
	Short: "修改探测配置（数值会被限制在允许范围内）",
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		if !flags.Changed("host") && !flags.Changed("interval") &&
			!flags.Changed("threshold") && !flags.Changed("window") {
			return errors.New("至少需要指定一个配置项")
		}

		cfg, err := newStore().Update(func(cfg *config.AppConfig) {
			if flags.Changed("host") {
				cfg.Monitor.Host = setHost
			}
			if flags.Changed("interval") {
				cfg.Monitor.IntervalMs = setInterval
			}
			if flags.Changed("threshold") {
				cfg.Monitor.LatencyThresholdMs = setThreshold
			}
			if flags.Changed("window") {
				cfg.Monitor.WindowSize = setWindow
			}
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "host=%s interval=%dms threshold=%dms window=%d\n",
			cfg.Monitor.Host, cfg.Monitor.IntervalMs, cfg.Monitor.LatencyThresholdMs, cfg.Monitor.WindowSize)
		return nil
	},
}

var autostartCmd = &cobra.Command{
	Use:   "autostart",
	Short: "管理登录后自动启动",
}

var autostartEnableCmd = &cobra.Command{
	Use:   "enable",
	Short: "启用开机自启",
	RunE: func(cmd *cobra.Command, args []string) error {
		return setAutostart(cmd, true)
	},
}

var autostartDisableCmd = &cobra.Command{
	Use:   "disable",
	Short: "禁用开机自启",
	RunE: func(cmd *cobra.Command, args []string) error {
		return setAutostart(cmd, false)
	},
}

var autostartStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "查看开机自启状态",
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, err := service.NewServiceManager(newStore())
		if err != nil {
			return err
		}
		status, err := mgr.Status()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "服务状态: %s\n", status)
		return nil
	},
}

var serviceCmd = &cobra.Command{
	Use:   "service",
	Short: "控制已安装的系统服务",
}

var serviceStartCmd = &cobra.Command{
	Use:   "start",
	Short: "启动服务",
	RunE: func(cmd *cobra.Command, args []string) error {
		return controlService(cmd, "启动", (*service.ServiceManager).Start)
	},
}

var serviceStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "停止服务",
	RunE: func(cmd *cobra.Command, args []string) error {
		return controlService(cmd, "停止", (*service.ServiceManager).Stop)
	},
}

var serviceRestartCmd = &cobra.Command{
	Use:   "restart",
	Short: "重启服务",
	RunE: func(cmd *cobra.Command, args []string) error {
		return controlService(cmd, "重启", (*service.ServiceManager).Restart)
	},
}

func controlService(cmd *cobra.Command, action string, fn func(*service.ServiceManager) error) error {
	mgr, err := service.NewServiceManager(newStore())
	if err != nil {
		return err
	}
	if err := fn(mgr); err != nil {
		return fmt.Errorf("%s服务失败: %w", action, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "服务已%s\n", action)
	return nil
}

func setAutostart(cmd *cobra.Command, enabled bool) error {
	store := newStore()
	mgr, err := service.NewServiceManager(store)
	if err != nil {
		return err
	}
	if err := mgr.SetEnabled(enabled); err != nil {
		return fmt.Errorf("切换开机自启失败: %w", err)
	}
	if _, err := store.Update(func(cfg *config.AppConfig) { cfg.Monitor.RunAtStartup = enabled }); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "开机自启: %v\n", enabled)
	return nil
}

func init() {
	pingCmd.Flags().IntVarP(&pingCount, "count", "n", 4, "探测次数")

	configSetCmd.Flags().StringVar(&setHost, "host", "", "探测目标（IP 或主机名，留空表示清除）")
	configSetCmd.Flags().IntVar(&setInterval, "interval", monitor.DefaultIntervalMs, "探测间隔（毫秒）")
	configSetCmd.Flags().IntVar(&setThreshold, "threshold", monitor.DefaultLatencyThresholdMs, "延迟阈值（毫秒）")
	configSetCmd.Flags().IntVar(&setWindow, "window", monitor.DefaultWindowSize, "统计窗口（样本数）")
	configCmd.AddCommand(configShowCmd, configSetCmd)

	autostartCmd.AddCommand(autostartEnableCmd, autostartDisableCmd, autostartStatusCmd)
	serviceCmd.AddCommand(serviceStartCmd, serviceStopCmd, serviceRestartCmd)
}
