package collector

import (
	"github.com/dushixiang/pingtray/internal/protocol"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/load"
)

// HostCollector 本机信息采集器，用于标识探测是从哪台机器发出的
type HostCollector struct{}

// NewHostCollector 创建本机信息采集器
func NewHostCollector() *HostCollector {
	return &HostCollector{}
}

// Collect 采集本机信息，负载获取失败时保持为 0
func (h *HostCollector) Collect() (*protocol.HostInfo, error) {
	hostInfo, err := host.Info()
	if err != nil {
		return nil, err
	}

	info := &protocol.HostInfo{
		Hostname:        hostInfo.Hostname,
		Uptime:          hostInfo.Uptime,
		OS:              hostInfo.OS,
		Platform:        hostInfo.Platform,
		PlatformVersion: hostInfo.PlatformVersion,
		KernelVersion:   hostInfo.KernelVersion,
		KernelArch:      hostInfo.KernelArch,
	}

	// Windows 上没有负载
	if loadAvg, err := load.Avg(); err == nil && loadAvg != nil {
		info.Load1 = loadAvg.Load1
	}
	return info, nil
}
