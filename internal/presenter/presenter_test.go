package presenter

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dushixiang/pingtray/internal/protocol"
	"github.com/dushixiang/pingtray/pkg/agent/monitor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var at = time.Date(2026, 3, 1, 12, 30, 45, 0, time.Local)

func statusWith(health protocol.HealthState, last *protocol.PingSample, loss float64) protocol.MonitorStatus {
	return protocol.MonitorStatus{
		Endpoint:    "10.0.0.1",
		Running:     true,
		Health:      health,
		LossPercent: loss,
		Last:        last,
		WindowSize:  20,
	}
}

// TestCompactLatency 测试延迟压缩显示
func TestCompactLatency(t *testing.T) {
	cases := map[int64]string{
		0:     "0",
		7:     "7",
		99:    "99",
		100:   "10",
		150:   "15",
		994:   "99",
		999:   "99",
		1000:  "1s",
		2600:  "3s",
		60000: "9s",
	}
	for ms, want := range cases {
		assert.Equal(t, want, CompactLatency(ms), "ms=%d", ms)
	}
}

// TestBadgeOf 测试状态图标
func TestBadgeOf(t *testing.T) {
	fast := protocol.SuccessSample(at, 23)
	slow := protocol.SuccessSample(at, 420)
	down := protocol.FailedSample(at, protocol.StatusTimeout)

	tests := []struct {
		name   string
		status protocol.MonitorStatus
		want   Badge
	}{
		{"未配置目标", protocol.MonitorStatus{Health: protocol.HealthUnknown}, Badge{ColorGray, "--"}},
		{"等待样本", statusWith(protocol.HealthUnknown, nil, 0), Badge{ColorGray, ".."}},
		{"正常", statusWith(protocol.HealthOK, &fast, 0), Badge{ColorGreen, "23"}},
		{"慢", statusWith(protocol.HealthDegraded, &slow, 0), Badge{ColorYellow, "S"}},
		{"丢包", statusWith(protocol.HealthDegraded, &fast, 5), Badge{ColorYellow, "L5"}},
		{"全部丢包", statusWith(protocol.HealthDown, &down, 100), Badge{ColorRed, "L99"}},
		{"失败无丢包", statusWith(protocol.HealthDown, &down, 0), Badge{ColorRed, "X"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BadgeOf(tt.status))
		})
	}
}

// TestTooltip_Default 测试默认提示文本
func TestTooltip_Default(t *testing.T) {
	p, err := New("")
	require.NoError(t, err)

	last := protocol.SuccessSample(at, 12)
	got := p.Tooltip(statusWith(protocol.HealthOK, &last, 0))
	assert.Equal(t, "IP: 10.0.0.1 | Last: 12ms | Loss(20): 0% | Updated: 12:30:45", got)

	down := protocol.FailedSample(at, "DNSError")
	got = p.Tooltip(statusWith(protocol.HealthDown, &down, 100))
	assert.Equal(t, "IP: 10.0.0.1 | Last: timeout | Loss(20): 100% | Updated: 12:30:45", got)
}

// TestTooltip_Custom 测试自定义模板与截断
func TestTooltip_Custom(t *testing.T) {
	p, err := New("{host} {health} avg={avg} {status} {unknown}")
	require.NoError(t, err)

	last := protocol.FailedSample(at, "PermissionError")
	status := statusWith(protocol.HealthDown, &last, 100)
	assert.Equal(t, "10.0.0.1 down avg=n/a PermissionError {unknown}", p.Tooltip(status))

	avg := 31.6
	status.AvgLatencyMs = &avg
	status.Endpoint = ""
	assert.Equal(t, "(none) down avg=32ms PermissionError {unknown}", p.Tooltip(status))

	long, err := New(strings.Repeat("延", 40) + "{host}" + strings.Repeat("迟", 40))
	require.NoError(t, err)
	got := long.Tooltip(status)
	assert.Equal(t, MaxTooltipLength, len([]rune(got)))
}

// TestRender 测试完整 payload
func TestRender(t *testing.T) {
	p, err := New("")
	require.NoError(t, err)

	last := protocol.SuccessSample(at, 8)
	payload := p.Render(statusWith(protocol.HealthOK, &last, 0))
	assert.Equal(t, ColorGreen, payload.Badge.Color)
	assert.Equal(t, "8", payload.Badge.Text)
	assert.Equal(t, "10.0.0.1", payload.Endpoint)
	assert.NotEmpty(t, payload.Tooltip)
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type fakeSource struct {
	mu       sync.Mutex
	status   protocol.MonitorStatus
	listener monitor.Listener
}

func (s *fakeSource) Status() protocol.MonitorStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *fakeSource) Subscribe(fn monitor.Listener) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listener = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.listener = nil
	}
}

func (s *fakeSource) emit(status protocol.MonitorStatus) {
	s.mu.Lock()
	s.status = status
	fn := s.listener
	s.mu.Unlock()
	if fn != nil {
		fn(monitor.Event{Kind: monitor.EventSample, Sample: *status.Last})
	}
}

// TestConsole 状态变化时输出新的一行
func TestConsole(t *testing.T) {
	p, err := New("{host} {last}")
	require.NoError(t, err)

	src := &fakeSource{status: protocol.MonitorStatus{Health: protocol.HealthUnknown}}
	out := &syncBuffer{}
	c := NewConsole(src, p, out)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return strings.Contains(out.String(), "[-- ] unknown") }, time.Second, 5*time.Millisecond)

	last := protocol.SuccessSample(at, 42)
	src.emit(statusWith(protocol.HealthOK, &last, 0))
	require.Eventually(t, func() bool { return strings.Contains(out.String(), "[42 ] ok       10.0.0.1 42ms") }, time.Second, 5*time.Millisecond)

	cancel()
	<-done
	assert.Equal(t, 2, strings.Count(out.String(), "\n"))
}
