package scheduler

import (
	"fmt"
	"sync"
	"time"

	"github.com/dushixiang/pingtray/internal/metric"
	"github.com/dushixiang/pingtray/internal/protocol"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// StatusSource 监控状态来源
type StatusSource interface {
	Status() protocol.MonitorStatus
}

// ReportScheduler 定期输出统计摘要日志
type ReportScheduler struct {
	mu      sync.Mutex
	cron    *cron.Cron
	entryID cron.EntryID
	source  StatusSource
	logger  *zap.Logger
}

// NewReportScheduler 创建统计日志调度器
func NewReportScheduler(source StatusSource, logger *zap.Logger) *ReportScheduler {
	return &ReportScheduler{
		cron:   cron.New(cron.WithSeconds()), // 支持秒级调度
		source: source,
		logger: logger,
	}
}

// Start 启动调度器，interval 不大于 0 时不添加任务
func (s *ReportScheduler) Start(interval time.Duration) error {
	if err := s.Reschedule(interval); err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Info("启动统计日志调度器", zap.Duration("interval", interval))
	return nil
}

// Reschedule 更新输出间隔（先删除再添加）
func (s *ReportScheduler) Reschedule(interval time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.entryID != 0 {
		s.cron.Remove(s.entryID)
		s.entryID = 0
	}

	seconds := int(interval / time.Second)
	if seconds <= 0 {
		return nil
	}

	spec := fmt.Sprintf("@every %ds", seconds)
	entryID, err := s.cron.AddFunc(spec, s.Report)
	if err != nil {
		return fmt.Errorf("添加 cron 任务失败: %w", err)
	}
	s.entryID = entryID
	return nil
}

// Stop 停止调度器并等待正在执行的任务结束
func (s *ReportScheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("统计日志调度器已停止")
}

// Report 输出一次统计摘要
func (s *ReportScheduler) Report() {
	stats := metric.Summarize(s.source.Status())
	if stats.Endpoint == "" {
		s.logger.Debug("未配置探测目标，跳过统计")
		return
	}
	s.logger.Info("探测统计",
		zap.String("endpoint", stats.Endpoint),
		zap.String("status", string(stats.Status)),
		zap.Int64("avgResponseTime", stats.ResponseTime),
		zap.Float64("lossPercent", stats.LossPercent),
		zap.Int("retained", stats.Retained))
}

// NextRun 下次执行时间，未调度时返回零值
func (s *ReportScheduler) NextRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entryID == 0 {
		return time.Time{}
	}
	return s.cron.Entry(s.entryID).Next
}
