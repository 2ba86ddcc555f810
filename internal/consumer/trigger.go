// Package consumer MQTT 触发：收到导出就绪消息后执行一次管道
package consumer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"health-etl/common/mqtt"
	"health-etl/internal/models"
	"health-etl/internal/service"

	"go.uber.org/zap"
)

// Runner 管道执行（*service.Pipeline 实现）
type Runner interface {
	Run(ctx context.Context, opts service.Options) *service.RunReport
}

// Subscriber MQTT 订阅（*mqtt.Client 实现）
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topics ...string) error
}

// TriggerMessage 触发消息，所有字段可选；未设置的字段使用默认运行参数
type TriggerMessage struct {
	Since           string `json:"since,omitempty"`
	AppleHealthPath string `json:"apple_health_path,omitempty"`
	StrongPath      string `json:"strong_path,omitempty"`
}

// Trigger MQTT 运行触发器
// 同一时间只执行一次运行，运行期间到达的消息排队等待
type Trigger struct {
	runner   Runner
	defaults service.Options
	logger   *zap.Logger

	mu       sync.Mutex
	ctx      context.Context
	onReport func(*service.RunReport)
}

// NewTrigger 创建触发器
func NewTrigger(runner Runner, defaults service.Options, logger *zap.Logger) *Trigger {
	return &Trigger{
		runner:   runner,
		defaults: defaults,
		logger:   logger,
		ctx:      context.Background(),
	}
}

// OnReport 设置每次运行结束后的回调
func (t *Trigger) OnReport(fn func(*service.RunReport)) {
	t.onReport = fn
}

// Start 订阅主题并阻塞直到 ctx 结束
func (t *Trigger) Start(ctx context.Context, sub Subscriber, topic string, qos byte) error {
	t.mu.Lock()
	t.ctx = ctx
	t.mu.Unlock()

	if err := sub.Subscribe(topic, qos, t.HandleMessage); err != nil {
		return err
	}
	t.logger.Info("MQTT trigger started", zap.String("topic", topic))

	<-ctx.Done()

	if err := sub.Unsubscribe(topic); err != nil {
		t.logger.Warn("Failed to unsubscribe", zap.String("topic", topic), zap.Error(err))
	}
	t.logger.Info("MQTT trigger stopped")
	return nil
}

// HandleMessage 处理一条触发消息
func (t *Trigger) HandleMessage(topic string, payload []byte) error {
	opts, err := t.options(payload)
	if err != nil {
		return fmt.Errorf("invalid trigger message on %s: %w", topic, err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.ctx.Err() != nil {
		return t.ctx.Err()
	}

	t.logger.Info("Pipeline run triggered", zap.String("topic", topic))
	report := t.runner.Run(t.ctx, opts)
	if t.onReport != nil {
		t.onReport(report)
	}
	if report.Fatal() {
		return fmt.Errorf("pipeline run %s finished with fatal stages", report.RunID)
	}
	return nil
}

func (t *Trigger) options(payload []byte) (service.Options, error) {
	opts := t.defaults
	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 {
		return opts, nil
	}

	var msg TriggerMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return opts, err
	}
	if msg.Since != "" {
		since, err := models.ParseSince(msg.Since)
		if err != nil {
			return opts, err
		}
		opts.Since = since
	}
	if msg.AppleHealthPath != "" {
		opts.AppleHealthPath = msg.AppleHealthPath
	}
	if msg.StrongPath != "" {
		opts.StrongPath = msg.StrongPath
	}
	return opts, nil
}
