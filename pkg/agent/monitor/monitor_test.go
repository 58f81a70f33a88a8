package monitor

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/dushixiang/pingtray/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gatedProber 每次探测需要从 gate 取到一个令牌，ctx 被取消时返回 canceled
type gatedProber struct {
	gate  chan struct{}
	calls atomic.Int32
	rtt   int64
}

func newGatedProber() *gatedProber {
	return &gatedProber{gate: make(chan struct{}, 16), rtt: 5}
}

func (p *gatedProber) Probe(ctx context.Context, endpoint string, timeout time.Duration) protocol.PingSample {
	p.calls.Add(1)
	select {
	case <-p.gate:
		return protocol.SuccessSample(time.Now(), p.rtt)
	case <-ctx.Done():
		return protocol.FailedSample(time.Now(), protocol.StatusCanceled)
	}
}

func (p *gatedProber) release(n int) {
	for i := 0; i < n; i++ {
		p.gate <- struct{}{}
	}
}

// proberFunc 函数形式的探测器
type proberFunc func(ctx context.Context, endpoint string, timeout time.Duration) protocol.PingSample

func (f proberFunc) Probe(ctx context.Context, endpoint string, timeout time.Duration) protocol.PingSample {
	return f(ctx, endpoint, timeout)
}

// recorder 记录收到的通知
type recorder struct {
	mu      sync.Mutex
	samples []protocol.PingSample
	stopped int
}

func (r *recorder) listen(evt Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch evt.Kind {
	case EventSample:
		r.samples = append(r.samples, evt.Sample)
	case EventStopped:
		r.stopped++
	}
}

func (r *recorder) counts() (samples, stopped int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.samples), r.stopped
}

// TestMonitor_EndToEnd 三轮探测后停止，只收到一次停止通知
func TestMonitor_EndToEnd(t *testing.T) {
	prober := newGatedProber()
	m := New(prober)
	m.Configure("127.0.0.1", 250, 50, 20)

	rec := &recorder{}
	m.Subscribe(rec.listen)

	m.Start()
	prober.release(3)

	require.Eventually(t, func() bool {
		n, _ := rec.counts()
		return n == 3
	}, 5*time.Second, 10*time.Millisecond)

	snap := m.Snapshot()
	require.Len(t, snap.Samples, 3)
	for i := 1; i < len(snap.Samples); i++ {
		assert.False(t, snap.Samples[i].At.Before(snap.Samples[i-1].At), "样本应按时间顺序排列")
	}
	assert.True(t, m.IsRunning())
	assert.Equal(t, protocol.HealthOK, m.HealthState())
	assert.Equal(t, 0.0, m.LossPercent())
	avg, ok := m.AverageLatencyMs()
	require.True(t, ok)
	assert.Equal(t, 5.0, avg)

	m.Stop()
	assert.False(t, m.IsRunning())

	_, stopped := rec.counts()
	assert.Equal(t, 1, stopped)

	// 已停止时再次 Stop 不会产生新的通知
	m.Stop()
	_, stopped = rec.counts()
	assert.Equal(t, 1, stopped)
}

// TestMonitor_StartIdempotent 重复 Start 不会创建第二个循环
func TestMonitor_StartIdempotent(t *testing.T) {
	prober := newGatedProber()
	m := New(prober)
	m.Configure("127.0.0.1", 250, 50, 20)

	m.Start()
	m.Start()

	require.Eventually(t, func() bool { return prober.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	// 第一轮探测阻塞在 gate 上，若存在第二个循环会出现第二次调用
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), prober.calls.Load())

	m.Stop()
	assert.False(t, m.IsRunning())
}

// TestMonitor_StopKeepsCanceledSample 停止时探测器给出的 canceled 结果会被保留
func TestMonitor_StopKeepsCanceledSample(t *testing.T) {
	prober := newGatedProber()
	m := New(prober)
	m.Configure("127.0.0.1", 250, 50, 20)

	m.Start()
	require.Eventually(t, func() bool { return prober.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	m.Stop()

	snap := m.Snapshot()
	require.Len(t, snap.Samples, 1)
	assert.Equal(t, protocol.StatusCanceled, snap.Last.Status)
	assert.Equal(t, protocol.HealthDown, m.HealthState())
}

// TestMonitor_StopDiscardsLateSample 取消后才返回的其它结果不会被记录
func TestMonitor_StopDiscardsLateSample(t *testing.T) {
	var calls atomic.Int32
	m := New(proberFunc(func(ctx context.Context, endpoint string, timeout time.Duration) protocol.PingSample {
		calls.Add(1)
		<-ctx.Done()
		return protocol.FailedSample(time.Now(), protocol.StatusTimeout)
	}))
	m.Configure("127.0.0.1", 250, 50, 20)

	rec := &recorder{}
	m.Subscribe(rec.listen)

	m.Start()
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	m.Stop()

	assert.Empty(t, m.Snapshot().Samples)
	samples, stopped := rec.counts()
	assert.Equal(t, 0, samples)
	assert.Equal(t, 1, stopped)
}

// TestMonitor_NoEndpoint 未配置目标时持续产生 "no host" 样本，健康状态为 Unknown
func TestMonitor_NoEndpoint(t *testing.T) {
	var calls atomic.Int32
	m := New(proberFunc(func(ctx context.Context, endpoint string, timeout time.Duration) protocol.PingSample {
		calls.Add(1)
		return protocol.SuccessSample(time.Now(), 1)
	}))
	m.Configure("   ", 250, 50, 20)

	m.Start()
	require.Eventually(t, func() bool { return m.Snapshot().Last != nil }, time.Second, 5*time.Millisecond)
	m.Stop()

	snap := m.Snapshot()
	assert.Equal(t, protocol.StatusNoHost, snap.Last.Status)
	assert.False(t, snap.Last.Success)
	assert.Equal(t, protocol.HealthUnknown, m.HealthState())
	assert.Equal(t, int32(0), calls.Load(), "未配置目标时不应调用探测器")
}

// TestMonitor_RestartAfterStop 停止后可以再次启动
func TestMonitor_RestartAfterStop(t *testing.T) {
	prober := newGatedProber()
	m := New(prober)
	m.Configure("127.0.0.1", 250, 50, 20)

	rec := &recorder{}
	m.Subscribe(rec.listen)

	m.Start()
	m.Stop()
	m.Start()
	assert.True(t, m.IsRunning())
	prober.release(1)
	require.Eventually(t, func() bool {
		for _, s := range m.Snapshot().Samples {
			if s.Success {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)
	m.Stop()

	_, stopped := rec.counts()
	assert.Equal(t, 2, stopped)
}

// TestMonitor_LoopPanic 探测器 panic 时循环退出，监控器可以重新启动
func TestMonitor_LoopPanic(t *testing.T) {
	var panicking atomic.Bool
	panicking.Store(true)
	m := New(proberFunc(func(ctx context.Context, endpoint string, timeout time.Duration) protocol.PingSample {
		if panicking.Load() {
			panic("boom")
		}
		return protocol.SuccessSample(time.Now(), 3)
	}))
	m.Configure("127.0.0.1", 250, 50, 20)
	rec := &recorder{}
	m.Subscribe(rec.listen)

	m.Start()
	require.Eventually(t, func() bool { return !m.IsRunning() }, time.Second, 5*time.Millisecond)
	// 异常退出同样通知一次，之后的 Stop 不再重复通知
	_, stopped := rec.counts()
	assert.Equal(t, 1, stopped)
	m.Stop()
	_, stopped = rec.counts()
	assert.Equal(t, 1, stopped)

	panicking.Store(false)
	m.Start()
	require.Eventually(t, func() bool { return m.Snapshot().Last != nil }, time.Second, 5*time.Millisecond)
	assert.True(t, m.Snapshot().Last.Success)
	m.Stop()
}

// TestMonitor_SleepUsesClock 两轮探测之间按时钟等待 interval
func TestMonitor_SleepUsesClock(t *testing.T) {
	mock := clock.NewMock()
	rec := &recorder{}
	m := New(proberFunc(func(ctx context.Context, endpoint string, timeout time.Duration) protocol.PingSample {
		return protocol.SuccessSample(mock.Now(), 7)
	}), WithClock(mock))
	m.Configure("127.0.0.1", 1000, 50, 20)
	m.Subscribe(rec.listen)

	m.Start()
	defer m.Stop()
	require.Eventually(t, func() bool {
		n, _ := rec.counts()
		return n == 1
	}, time.Second, 5*time.Millisecond)

	// 时钟不前进时不会开始下一轮
	time.Sleep(50 * time.Millisecond)
	n, _ := rec.counts()
	assert.Equal(t, 1, n)

	require.Eventually(t, func() bool {
		mock.Add(time.Second)
		n, _ := rec.counts()
		return n >= 2
	}, time.Second, 10*time.Millisecond)
}

// TestMonitor_ListenerPanic 订阅方 panic 不影响其它订阅方和探测循环
func TestMonitor_ListenerPanic(t *testing.T) {
	prober := newGatedProber()
	m := New(prober)
	m.Configure("127.0.0.1", 250, 50, 20)

	m.Subscribe(func(evt Event) { panic("listener") })
	rec := &recorder{}
	m.Subscribe(rec.listen)

	m.Start()
	prober.release(2)
	require.Eventually(t, func() bool {
		n, _ := rec.counts()
		return n == 2
	}, 5*time.Second, 10*time.Millisecond)
	assert.True(t, m.IsRunning())
	m.Stop()
}

// TestMonitor_Unsubscribe 取消订阅后不再收到通知
func TestMonitor_Unsubscribe(t *testing.T) {
	prober := newGatedProber()
	m := New(prober)
	m.Configure("127.0.0.1", 250, 50, 20)

	rec := &recorder{}
	unsubscribe := m.Subscribe(rec.listen)
	unsubscribe()
	unsubscribe()

	m.Start()
	prober.release(1)
	require.Eventually(t, func() bool { return m.Snapshot().Last != nil }, time.Second, 5*time.Millisecond)
	m.Stop()

	samples, stopped := rec.counts()
	assert.Equal(t, 0, samples)
	assert.Equal(t, 0, stopped)
}

// TestMonitor_Status 测试状态视图与配置一致
func TestMonitor_Status(t *testing.T) {
	m := New(newGatedProber())
	m.Configure("example.com", 10, 9999, 3)

	status := m.Status()
	assert.Equal(t, "example.com", status.Endpoint)
	assert.False(t, status.Running)
	assert.Equal(t, protocol.HealthUnknown, status.Health)
	assert.Nil(t, status.AvgLatencyMs)
	assert.Nil(t, status.Last)
	assert.Equal(t, 250, status.IntervalMs)
	assert.Equal(t, 5000, status.LatencyThresholdMs)
	assert.Equal(t, 5, status.WindowSize)
}
