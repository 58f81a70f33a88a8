package protocol

// HostInfo 运行探测的本机信息
type HostInfo struct {
	Hostname        string  `json:"hostname"`
	Uptime          uint64  `json:"uptime"` // 秒
	OS              string  `json:"os"`
	Platform        string  `json:"platform"`
	PlatformVersion string  `json:"platformVersion"`
	KernelVersion   string  `json:"kernelVersion"`
	KernelArch      string  `json:"kernelArch"`
	Load1           float64 `json:"load1"`
}
