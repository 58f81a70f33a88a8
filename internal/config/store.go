package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

const (
	AppName         = "pingtray"
	DefaultFileName = "config.yaml"
)

// DefaultPath 默认配置文件路径：<用户配置目录>/pingtray/config.yaml
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, AppName, DefaultFileName)
}

// Store 配置文件存储
type Store struct {
	fs   afero.Fs
	path string
	mu   sync.Mutex
}

// NewStore 创建配置存储，fs 为空时使用系统文件系统
func NewStore(fs afero.Fs, path string) *Store {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if path == "" {
		path = DefaultPath()
	}
	return &Store{fs: fs, path: path}
}

// Path 配置文件路径
func (s *Store) Path() string {
	return s.path
}

// Watchable 配置文件是否位于真实文件系统上（可以被 fsnotify 监听）
func (s *Store) Watchable() bool {
	_, ok := s.fs.(*afero.OsFs)
	return ok
}

// Load 加载配置。文件不存在或内容损坏时返回默认配置，探测配置总是经过规范化。
func (s *Store) Load() AppConfig {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, err := s.read()
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("配置文件无法解析，使用默认配置", "path", s.path, "error", err)
		}
		cfg = Default()
	}
	cfg.Monitor = cfg.Monitor.Normalize()
	return cfg
}

func (s *Store) read() (AppConfig, error) {
	data, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		return AppConfig{}, err
	}

	// 在默认配置上解码，缺失的字段保持默认值
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return AppConfig{}, fmt.Errorf("解析配置文件失败: %w", err)
	}
	return cfg, nil
}

// Save 保存配置：先写入临时文件再重命名，避免写入中途被读取到半个文件
func (s *Store) Save(cfg AppConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg.Monitor = cfg.Monitor.Normalize()
	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return fmt.Errorf("序列化配置失败: %w", err)
	}

	if err := s.fs.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("创建配置目录失败: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, data, 0644); err != nil {
		return fmt.Errorf("写入配置文件失败: %w", err)
	}
	if err := s.fs.Rename(tmp, s.path); err != nil {
		_ = s.fs.Remove(tmp)
		return fmt.Errorf("替换配置文件失败: %w", err)
	}
	return nil
}

// Update 读取、修改并保存配置
func (s *Store) Update(fn func(cfg *AppConfig)) (AppConfig, error) {
	cfg := s.Load()
	fn(&cfg)
	if err := s.Save(cfg); err != nil {
		return AppConfig{}, err
	}
	cfg.Monitor = cfg.Monitor.Normalize()
	return cfg, nil
}
