package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/jpillora/backoff"
)

const defaultDebounce = 250 * time.Millisecond

// Watcher 监听配置文件变化并重新加载。
// 监听的是配置文件所在目录，以便捕获“写临时文件再重命名”的保存方式。
type Watcher struct {
	store    *Store
	onChange func(AppConfig)
	debounce time.Duration
}

// NewWatcher 创建配置监听器，文件变化后回调 onChange
func NewWatcher(store *Store, onChange func(AppConfig)) *Watcher {
	return &Watcher{
		store:    store,
		onChange: onChange,
		debounce: defaultDebounce,
	}
}

// Run 阻塞运行直到 ctx 结束
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("创建文件监控器失败: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(w.store.Path())
	if err := w.store.fs.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("创建配置目录失败: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("添加文件监控失败: %w", err)
	}
	slog.Info("配置文件监控已启动", "file", w.store.Path())

	var (
		timer  *time.Timer
		fire   <-chan time.Time
		target = filepath.Clean(w.store.Path())
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) == dir && event.Has(fsnotify.Remove|fsnotify.Rename) {
				// 配置目录被删除，等待重建后重新监听
				if err := w.rewatch(ctx, watcher, dir); err != nil {
					return err
				}
				continue
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			// 合并短时间内的多次写入
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			cfg := w.store.Load()
			slog.Info("配置文件已变更，重新加载", "file", w.store.Path())
			w.onChange(cfg)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("文件监控错误", "error", err)
		}
	}
}

// rewatch 按退避间隔重新创建并监听配置目录
func (w *Watcher) rewatch(ctx context.Context, watcher *fsnotify.Watcher, dir string) error {
	b := &backoff.Backoff{
		Min:    100 * time.Millisecond,
		Max:    10 * time.Second,
		Factor: 2,
		Jitter: true,
	}
	_ = watcher.Remove(dir)

	for {
		err := w.store.fs.MkdirAll(dir, 0755)
		if err == nil {
			err = watcher.Add(dir)
		}
		if err == nil {
			slog.Info("配置目录已重新监听", "dir", dir)
			return nil
		}

		wait := b.Duration()
		slog.Warn("重新监听配置目录失败", "dir", dir, "error", err, "retry_in", wait)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
	}
}
