// Package service 管道编排：抽取 → 转换 → 加载 → 快照 → 通知
package service

import (
	"context"
	"errors"
	"time"

	"health-etl/internal/config"
	"health-etl/internal/extractor"
	"health-etl/internal/models"
	"health-etl/internal/observability"
	"health-etl/internal/transformer"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// 阶段名称
const (
	StageExtractAppleHealth   = "extract_apple_health"
	StageExtractStrong        = "extract_strong"
	StageTransformAppleHealth = "transform_apple_health"
	StageTransformStrong      = "transform_strong"
	StageSnapshot             = "snapshot"
	StageNotify               = "notify"

	stageLoadPrefix = "load_"
)

// StageLoad 加载阶段名称
func StageLoad(table string) string {
	return stageLoadPrefix + table
}

// TableWriter 整表替换写入（*repository.TableRepository 实现）
type TableWriter interface {
	ReplaceTable(ctx context.Context, table *models.Table) error
}

// SnapshotWriter xlsx 快照写入（export.WriteWorkbook）
type SnapshotWriter func(path string, tables ...*models.Table) error

// Options 单次运行参数
type Options struct {
	AppleHealthPath string // 为空时跳过 Apple Health
	StrongPath      string // 为空时跳过 Strong
	Since           *time.Time
	SnapshotPath    string // 为空时不写快照
}

// StageReport 单个阶段的结果
type StageReport struct {
	Name     string
	Outcome  models.Outcome
	Rows     int
	Err      error
	Duration time.Duration
}

// RunReport 一次运行的结果
type RunReport struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Stages     []StageReport
}

// Stage 按名称查找阶段，不存在返回 nil
func (r *RunReport) Stage(name string) *StageReport {
	for i := range r.Stages {
		if r.Stages[i].Name == name {
			return &r.Stages[i]
		}
	}
	return nil
}

// Fatal 是否有阶段以 fatal 结束
func (r *RunReport) Fatal() bool {
	for _, s := range r.Stages {
		if s.Outcome == models.OutcomeFatal {
			return true
		}
	}
	return false
}

// Pipeline 管道编排（单线程、顺序执行）
type Pipeline struct {
	writer    TableWriter
	snapshot  SnapshotWriter
	publisher EventPublisher
	metrics   *observability.Metrics
	logger    *zap.Logger

	apple  *transformer.AppleHealthTransformer
	strong *transformer.StrongTransformer
	now    func() time.Time
}

// NewPipeline 创建管道；snapshot、publisher、metrics 可为 nil
func NewPipeline(writer TableWriter, snapshot SnapshotWriter, publisher EventPublisher, metrics *observability.Metrics, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		writer:    writer,
		snapshot:  snapshot,
		publisher: publisher,
		metrics:   metrics,
		logger:    logger,
		apple:     transformer.NewAppleHealthTransformer(logger),
		strong:    transformer.NewStrongTransformer(logger),
		now:       time.Now,
	}
}

// Run 执行一次完整运行
//
// 各阶段失败只记录在报告中，不中断后续阶段；转换结果为 fatal 的数据不会被加载。
func (p *Pipeline) Run(ctx context.Context, opts Options) *RunReport {
	report := &RunReport{RunID: uuid.NewString(), StartedAt: p.now()}
	logger := p.logger.With(zap.String("run_id", report.RunID))
	logger.Info("Pipeline started",
		zap.String("apple_health_path", opts.AppleHealthPath),
		zap.String("strong_path", opts.StrongPath),
	)

	var loaded []*models.Table

	// Apple Health
	records := p.extractAppleHealth(report, opts, logger)
	if records != nil {
		start := p.now()
		result := p.apple.Transform(records)
		stage := StageReport{Name: StageTransformAppleHealth, Outcome: result.Outcome, Err: result.Err, Duration: p.now().Sub(start)}
		if result.Pivot != nil {
			stage.Rows = len(result.Pivot.Rows)
		}
		p.record(report, stage, logger)

		if result.Outcome.Usable() {
			tables := []*models.Table{
				transformer.PivotToTable(config.TableAppleHealth, result.Activity),
				transformer.SleepTable(config.TableAppleSleep, result.Sleep),
			}
			for _, t := range tables {
				if p.load(ctx, report, t, logger) {
					loaded = append(loaded, t)
				}
			}
		}
	}

	// Strong
	export := p.extractStrong(report, opts, logger)
	if export != nil {
		start := p.now()
		result := p.strong.Transform(export)
		p.record(report, StageReport{
			Name:     StageTransformStrong,
			Outcome:  result.Outcome,
			Rows:     len(result.Sets),
			Err:      result.Err,
			Duration: p.now().Sub(start),
		}, logger)

		if result.Outcome.Usable() {
			t := transformer.StrongTable(config.TableStrong, result)
			if p.load(ctx, report, t, logger) {
				loaded = append(loaded, t)
			}
		}
	}

	if opts.SnapshotPath != "" && p.snapshot != nil && len(loaded) > 0 {
		start := p.now()
		stage := StageReport{Name: StageSnapshot, Outcome: models.OutcomeOK, Rows: len(loaded)}
		if err := p.snapshot(opts.SnapshotPath, loaded...); err != nil {
			stage.Outcome = models.OutcomeFatal
			stage.Err = err
		}
		stage.Duration = p.now().Sub(start)
		p.record(report, stage, logger)
	}

	report.FinishedAt = p.now()
	p.notify(ctx, report, loaded, logger)

	if !report.Fatal() {
		p.metrics.MarkSuccess(report.FinishedAt)
	}
	logger.Info("Pipeline finished",
		zap.Bool("fatal", report.Fatal()),
		zap.Int("tables_loaded", len(loaded)),
		zap.Duration("elapsed", report.FinishedAt.Sub(report.StartedAt)),
	)
	return report
}

func (p *Pipeline) extractAppleHealth(report *RunReport, opts Options, logger *zap.Logger) []models.HealthRecord {
	if opts.AppleHealthPath == "" {
		logger.Info("Apple Health export path not set, skipping")
		return nil
	}
	start := p.now()
	records, err := extractor.ExtractAppleHealth(opts.AppleHealthPath, opts.Since)
	stage := StageReport{
		Name:     StageExtractAppleHealth,
		Outcome:  extractOutcome(len(records), err),
		Rows:     len(records),
		Err:      err,
		Duration: p.now().Sub(start),
	}
	p.record(report, stage, logger)
	p.metrics.RecordExtracted("apple_health", len(records))

	if !stage.Outcome.Usable() {
		return nil
	}
	return records
}

func (p *Pipeline) extractStrong(report *RunReport, opts Options, logger *zap.Logger) *models.StrongExport {
	if opts.StrongPath == "" {
		logger.Info("Strong export path not set, skipping")
		return nil
	}
	start := p.now()
	export, err := extractor.ExtractStrong(opts.StrongPath, opts.Since)
	rows := 0
	if export != nil {
		rows = len(export.Rows)
	}
	stage := StageReport{
		Name:     StageExtractStrong,
		Outcome:  extractOutcome(rows, err),
		Rows:     rows,
		Err:      err,
		Duration: p.now().Sub(start),
	}
	p.record(report, stage, logger)
	p.metrics.RecordExtracted("strong", rows)

	if !stage.Outcome.Usable() {
		return nil
	}
	return export
}

// extractOutcome 抽取阶段结果：出错前已读到的数据仍可继续使用
func extractOutcome(n int, err error) models.Outcome {
	switch {
	case errors.Is(err, extractor.ErrNoRecords):
		return models.OutcomeNoData
	case err != nil && n > 0:
		return models.OutcomePartial
	case err != nil:
		return models.OutcomeFatal
	case n == 0:
		return models.OutcomeNoData
	default:
		return models.OutcomeOK
	}
}

func (p *Pipeline) load(ctx context.Context, report *RunReport, table *models.Table, logger *zap.Logger) bool {
	start := p.now()
	stage := StageReport{Name: StageLoad(table.Name), Outcome: models.OutcomeOK, Rows: len(table.Rows)}
	if err := p.writer.ReplaceTable(ctx, table); err != nil {
		stage.Outcome = models.OutcomeFatal
		stage.Err = err
	}
	stage.Duration = p.now().Sub(start)
	p.record(report, stage, logger)

	if stage.Outcome != models.OutcomeOK {
		return false
	}
	p.metrics.RecordLoaded(table.Name, len(table.Rows))
	return true
}

func (p *Pipeline) notify(ctx context.Context, report *RunReport, loaded []*models.Table, logger *zap.Logger) {
	if p.publisher == nil {
		return
	}
	evt := &LoadedEvent{
		RunID:      report.RunID,
		StartedAt:  report.StartedAt,
		FinishedAt: report.FinishedAt,
		Tables:     make(map[string]int, len(loaded)),
		Outcomes:   make(map[string]string, len(report.Stages)),
		Fatal:      report.Fatal(),
	}
	for _, t := range loaded {
		evt.Tables[t.Name] = len(t.Rows)
	}
	for _, s := range report.Stages {
		evt.Outcomes[s.Name] = string(s.Outcome)
	}

	stage := StageReport{Name: StageNotify, Outcome: models.OutcomeOK}
	if err := p.publisher.PublishLoaded(ctx, evt); err != nil {
		stage.Outcome = models.OutcomePartial
		stage.Err = err
	}
	p.record(report, stage, logger)
}

func (p *Pipeline) record(report *RunReport, stage StageReport, logger *zap.Logger) {
	report.Stages = append(report.Stages, stage)
	p.metrics.ObserveStage(stage.Name, stage.Duration)

	fields := []zap.Field{
		zap.String("stage", stage.Name),
		zap.String("outcome", string(stage.Outcome)),
		zap.Int("rows", stage.Rows),
		zap.Duration("elapsed", stage.Duration),
	}
	switch stage.Outcome {
	case models.OutcomeFatal:
		p.metrics.RecordStageFailure(stage.Name, string(stage.Outcome))
		logger.Error("Stage failed", append(fields, zap.Error(stage.Err))...)
	case models.OutcomePartial:
		p.metrics.RecordStageFailure(stage.Name, string(stage.Outcome))
		logger.Warn("Stage partially succeeded", append(fields, zap.Error(stage.Err))...)
	case models.OutcomeNoData:
		logger.Warn("Stage found no data", fields...)
	default:
		logger.Info("Stage succeeded", fields...)
	}
}
