package config

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPath = "/home/user/.config/pingtray/config.yaml"

// TestStore_LoadMissing 配置文件不存在时返回默认配置
func TestStore_LoadMissing(t *testing.T) {
	s := NewStore(afero.NewMemMapFs(), testPath)

	cfg := s.Load()
	assert.Equal(t, Default(), cfg)
	assert.Empty(t, cfg.Monitor.Host)
	assert.False(t, s.Watchable())
}

// TestStore_LoadCorrupt 配置文件损坏时返回默认配置
func TestStore_LoadCorrupt(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, testPath, []byte("monitor: [oops"), 0644))

	cfg := NewStore(fs, testPath).Load()
	assert.Equal(t, Default(), cfg)
}

// TestStore_LoadPartial 缺失的字段使用默认值，越界的数值被截断
func TestStore_LoadPartial(t *testing.T) {
	fs := afero.NewMemMapFs()
	data := []byte(`
monitor:
  host: " 1.1.1.1 "
  intervalMs: 10
  windowSize: 999
`)
	require.NoError(t, afero.WriteFile(fs, testPath, data, 0644))

	cfg := NewStore(fs, testPath).Load()
	assert.Equal(t, "1.1.1.1", cfg.Monitor.Host)
	assert.Equal(t, 250, cfg.Monitor.IntervalMs)
	assert.Equal(t, 150, cfg.Monitor.LatencyThresholdMs)
	assert.Equal(t, 200, cfg.Monitor.WindowSize)
	assert.Equal(t, Default().Server, cfg.Server)
}

// TestStore_SaveAndLoad 保存后可以原样读回
func TestStore_SaveAndLoad(t *testing.T) {
	fs := afero.NewMemMapFs()
	s := NewStore(fs, testPath)

	cfg := Default()
	cfg.Monitor.Host = "example.com"
	cfg.Monitor.IntervalMs = 2000
	cfg.Monitor.RunAtStartup = true
	cfg.Presenter.Tooltip = "{host} {loss}%"
	require.NoError(t, s.Save(cfg))

	exists, err := afero.Exists(fs, testPath+".tmp")
	require.NoError(t, err)
	assert.False(t, exists, "临时文件应被重命名")

	assert.Equal(t, cfg, s.Load())
}

// TestStore_Update 读取修改保存，返回规范化后的配置
func TestStore_Update(t *testing.T) {
	s := NewStore(afero.NewMemMapFs(), testPath)

	cfg, err := s.Update(func(cfg *AppConfig) {
		cfg.Monitor.Host = "8.8.8.8"
		cfg.Monitor.LatencyThresholdMs = 0
	})
	require.NoError(t, err)
	assert.Equal(t, "8.8.8.8", cfg.Monitor.Host)
	assert.Equal(t, 1, cfg.Monitor.LatencyThresholdMs)

	assert.Equal(t, cfg, s.Load())
}

// TestWatcher_Reload 配置文件被修改后触发回调
func TestWatcher_Reload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pingtray", DefaultFileName)
	s := NewStore(nil, path)
	require.True(t, s.Watchable())
	require.NoError(t, s.Save(Default()))

	var (
		calls atomic.Int32
		host  atomic.Value
	)
	w := NewWatcher(s, func(cfg AppConfig) {
		host.Store(cfg.Monitor.Host)
		calls.Add(1)
	})
	w.debounce = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// 等待监听建立后再修改
	time.Sleep(100 * time.Millisecond)
	_, err := s.Update(func(cfg *AppConfig) { cfg.Monitor.Host = "9.9.9.9" })
	require.NoError(t, err)

	require.Eventually(t, func() bool { return calls.Load() > 0 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, "9.9.9.9", host.Load())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("监听器未能在取消后退出")
	}
}
