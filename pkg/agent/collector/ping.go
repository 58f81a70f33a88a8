package collector

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"os"
	"runtime"
	"strings"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/dushixiang/pingtray/internal/protocol"
	probing "github.com/prometheus-community/pro-bing"
	"github.com/sourcegraph/conc/panics"
)

// ICMP 探测参数
const (
	PayloadSize = 8
	HopLimit    = 64
	// pro-bing 在载荷中写入时间戳和跟踪标识，载荷不能小于 24 字节
	minPayloadSize = 24
)

// 非预期错误的分类名称
const (
	FaultDNS        = "DNSError"
	FaultPermission = "PermissionError"
	FaultAddr       = "AddrError"
	FaultSyscall    = "SyscallError"
	FaultOp         = "OpError"
	FaultUnknown    = "Error"
)

// ICMPProber ICMP Echo 探测器，每次调用只发送一个请求
type ICMPProber struct {
	clock    clock.Clock
	resolver *net.Resolver
	// 记住上一次可用的权限模式，避免每次都先失败再回退
	privileged atomic.Bool
}

// NewICMPProber 创建 ICMP 探测器，clk 为空时使用系统时钟
func NewICMPProber(clk clock.Clock) *ICMPProber {
	if clk == nil {
		clk = clock.New()
	}
	p := &ICMPProber{
		clock:    clk,
		resolver: net.DefaultResolver,
	}
	// Windows 只支持特权模式
	p.privileged.Store(runtime.GOOS == "windows")
	return p
}

// Probe 对 endpoint 发送一次 ICMP Echo，结果总在 timeout 内返回，任何错误都不会逃逸
func (c *ICMPProber) Probe(ctx context.Context, endpoint string, timeout time.Duration) (sample protocol.PingSample) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	r := panics.Try(func() {
		sample = c.probe(ctx, endpoint)
	})
	if r != nil {
		slog.Warn("ICMP 探测异常", "endpoint", endpoint, "panic", r.String())
		sample = protocol.FailedSample(c.clock.Now(), FaultUnknown)
	}
	return sample
}

func (c *ICMPProber) probe(ctx context.Context, endpoint string) protocol.PingSample {
	addr, err := c.resolve(ctx, endpoint)
	if err != nil {
		return c.failed(ctx, err)
	}

	stats, err := c.run(ctx, addr)
	if err != nil && !c.privileged.Load() && isPermission(err) {
		// 非特权模式（UDP）不可用，尝试特权模式（需要 root 权限或 CAP_NET_RAW）
		slog.Debug("非特权 ICMP 不可用，切换到特权模式", "error", err)
		c.privileged.Store(true)
		stats, err = c.run(ctx, addr)
	}
	if err != nil {
		return c.failed(ctx, err)
	}

	if stats.PacketsRecv == 0 {
		return c.failed(ctx, nil)
	}

	rtt := stats.AvgRtt
	if len(stats.Rtts) > 0 {
		rtt = stats.Rtts[0]
	}
	return protocol.SuccessSample(c.clock.Now(), rtt.Milliseconds())
}

// run 发送一个 Echo 请求并等待回复，直到收到回复或 ctx 到期
func (c *ICMPProber) run(ctx context.Context, addr *net.IPAddr) (*probing.Statistics, error) {
	pinger := probing.New(addr.String())
	pinger.SetIPAddr(addr)
	pinger.SetPrivileged(c.privileged.Load())

	pinger.Count = 1
	pinger.Size = max(PayloadSize, minPayloadSize)
	pinger.TTL = HopLimit
	pinger.Interval = time.Second
	if deadline, ok := ctx.Deadline(); ok {
		pinger.Timeout = time.Until(deadline)
	}
	// 仅 Linux 支持设置 DF 标志
	if runtime.GOOS == "linux" {
		pinger.SetDoNotFragment(true)
	}

	if err := pinger.RunWithContext(ctx); err != nil {
		return nil, err
	}
	return pinger.Statistics(), nil
}

func (c *ICMPProber) resolve(ctx context.Context, endpoint string) (*net.IPAddr, error) {
	host := strings.TrimSuffix(strings.TrimPrefix(strings.TrimSpace(endpoint), "["), "]")
	if host == "" {
		return nil, &net.AddrError{Err: "missing address", Addr: endpoint}
	}

	addrs, err := c.resolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, err
	}
	if len(addrs) == 0 {
		return nil, &net.DNSError{Err: "no such host", Name: host, IsNotFound: true}
	}
	// 优先使用 IPv4
	for i := range addrs {
		if addrs[i].IP.To4() != nil {
			return &addrs[i], nil
		}
	}
	return &addrs[0], nil
}

// failed 根据 ctx 状态和错误生成失败样本，取消优先于其它原因
func (c *ICMPProber) failed(ctx context.Context, err error) protocol.PingSample {
	now := c.clock.Now()
	switch {
	case errors.Is(ctx.Err(), context.Canceled):
		return protocol.FailedSample(now, protocol.StatusCanceled)
	case errors.Is(ctx.Err(), context.DeadlineExceeded), err == nil:
		return protocol.FailedSample(now, protocol.StatusTimeout)
	default:
		return protocol.FailedSample(now, ClassifyError(err))
	}
}

// ClassifyError 将探测错误归类为简短的类别名称
func ClassifyError(err error) string {
	var (
		dnsErr  *net.DNSError
		addrErr *net.AddrError
		sysErr  *os.SyscallError
		opErr   *net.OpError
	)
	switch {
	case err == nil:
		return protocol.StatusTimeout
	case errors.Is(err, context.Canceled):
		return protocol.StatusCanceled
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, os.ErrDeadlineExceeded):
		return protocol.StatusTimeout
	case errors.As(err, &dnsErr):
		return FaultDNS
	case isPermission(err):
		return FaultPermission
	case errors.As(err, &addrErr):
		return FaultAddr
	case errors.As(err, &sysErr):
		return FaultSyscall
	case errors.As(err, &opErr):
		return FaultOp
	default:
		return FaultUnknown
	}
}

func isPermission(err error) bool {
	return errors.Is(err, os.ErrPermission)
}
