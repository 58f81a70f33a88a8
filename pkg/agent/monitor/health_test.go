package monitor

import (
	"testing"

	"github.com/dushixiang/pingtray/internal/protocol"
	"github.com/stretchr/testify/assert"
)

// TestClassify 测试健康状态推导
func TestClassify(t *testing.T) {
	fast := protocol.SuccessSample(base, 10)
	slow := protocol.SuccessSample(base, 200)
	edge := protocol.SuccessSample(base, 150)
	down := protocol.FailedSample(base, protocol.StatusTimeout)

	tests := []struct {
		name      string
		endpoint  string
		last      *protocol.PingSample
		loss      float64
		threshold int
		want      protocol.HealthState
	}{
		{"延迟超过阈值", "10.0.0.1", &slow, 0, 150, protocol.HealthDegraded},
		{"最新成功但窗口有丢包", "10.0.0.1", &fast, 5.0, 150, protocol.HealthDegraded},
		{"最新失败", "10.0.0.1", &down, 0, 150, protocol.HealthDown},
		{"最新失败且全部丢包", "10.0.0.1", &down, 100, 150, protocol.HealthDown},
		{"未配置目标", "", &fast, 0, 150, protocol.HealthUnknown},
		{"未配置目标且失败", "", &down, 100, 150, protocol.HealthUnknown},
		{"没有样本", "10.0.0.1", nil, 0, 150, protocol.HealthUnknown},
		{"等于阈值", "10.0.0.1", &edge, 0, 150, protocol.HealthOK},
		{"正常", "10.0.0.1", &fast, 0, 150, protocol.HealthOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.endpoint, tt.last, tt.loss, tt.threshold))
		})
	}
}
