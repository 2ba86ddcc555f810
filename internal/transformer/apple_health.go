// Package transformer 将原始导出整理为可入库的宽表
//
// Apple Health：类型转换 → 去类型前缀 → 透视 → 列名规范化 → 拆分睡眠/活动 → 睡眠会话聚合
// Strong：列名规范化 → 时间/时长解析 → workout_id 派生
package transformer

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"health-etl/internal/models"

	"go.uber.org/zap"
)

// 派生字段用到的列名
const (
	ColumnSleepAnalysis = "sleep_analysis"
	watchSourceMarker   = "Watch"
)

// AppleHealthResult Apple Health 转换结果
type AppleHealthResult struct {
	Outcome  models.Outcome
	Pivot    *models.PivotTable // 完整宽表
	Activity *models.PivotTable // sleep_analysis 为空的行
	Sleep    []models.SleepSession
	Dropped  int   // 时间无法解析而被丢弃的记录数
	Err      error // Outcome 为 fatal 或 partial 时的原因

	// Source 仅在 fatal 时设置：原样返回未转换的输入
	Source []models.HealthRecord
}

// AppleHealthTransformer Apple Health 数据转换器
type AppleHealthTransformer struct {
	logger *zap.Logger
}

// NewAppleHealthTransformer 创建 Apple Health 数据转换器
func NewAppleHealthTransformer(logger *zap.Logger) *AppleHealthTransformer {
	return &AppleHealthTransformer{logger: logger}
}

// Transform 转换 Apple Health 记录
//
// 转换流程：
// 1. 解析 creationDate / startDate / endDate，value 转为数值（缺失或非数值记为 1.0）
// 2. 去掉类型前缀并规范为 snake_case
// 3. 按 (end_date, creation_date, start_date, source_name) 透视，同键同类型取平均值
// 4. 拆分睡眠行（Apple Watch 来源）与活动行，聚合睡眠会话
//
// 任何失败都不会向上抛出：fatal 时 Source 保存原始输入，调用方需检查 Outcome。
func (t *AppleHealthTransformer) Transform(records []models.HealthRecord) (result *AppleHealthResult) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("Could not transform Apple Health data", zap.Any("panic", r))
			result = &AppleHealthResult{
				Outcome: models.OutcomeFatal,
				Err:     fmt.Errorf("apple health transform panicked: %v", r),
				Source:  records,
			}
		}
	}()

	if len(records) == 0 {
		t.logger.Warn("No Apple Health records to transform")
		return &AppleHealthResult{Outcome: models.OutcomeNoData}
	}

	pivot, dropped := Pivot(records)
	if len(pivot.Rows) == 0 {
		err := fmt.Errorf("all %d apple health records were unusable", dropped)
		t.logger.Error("Could not transform Apple Health data", zap.Error(err))
		return &AppleHealthResult{
			Outcome: models.OutcomeFatal,
			Dropped: dropped,
			Err:     err,
			Source:  records,
		}
	}

	sleepRows, activity := SplitSleep(pivot)
	sessions := DeriveSleepSessions(sleepRows)

	result = &AppleHealthResult{
		Outcome:  models.OutcomeOK,
		Pivot:    pivot,
		Activity: activity,
		Sleep:    sessions,
		Dropped:  dropped,
	}
	if dropped > 0 {
		result.Outcome = models.OutcomePartial
		result.Err = fmt.Errorf("dropped %d apple health records with unparseable dates or type", dropped)
		t.logger.Warn("Dropped Apple Health records", zap.Int("dropped", dropped))
	}

	t.logger.Info("Transformed Apple Health data",
		zap.Int("records", len(records)),
		zap.Int("pivot_rows", len(pivot.Rows)),
		zap.Int("pivot_columns", len(pivot.Columns)),
		zap.Int("activity_rows", len(activity.Rows)),
		zap.Int("sleep_interval_rows", len(sleepRows)),
		zap.Int("sleep_sessions", len(sessions)),
	)
	t.logger.Debug("Apple Health pivot columns", zap.Strings("columns", pivot.Columns))

	return result
}

// NormalizeType 去掉前缀并转为 snake_case
func NormalizeType(t string) string {
	return CamelToSnake(StripTypePrefix(strings.TrimSpace(t)))
}

// ParseValue 解析观测值；缺失、非数值或 NaN 记为 1.0（表示一次发生）
func ParseValue(rec models.HealthRecord) float64 {
	if !rec.HasValue {
		return 1.0
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(rec.Value), 64)
	if err != nil || math.IsNaN(v) {
		return 1.0
	}
	return v
}

type meanAcc struct {
	sum float64
	n   int
}

// Pivot 将长表记录透视为宽表，返回宽表与被丢弃的记录数
//
// 同一键同一类型出现多条记录时取算术平均值；类型先规范化再透视，
// 规范化后同名的原始类型落在同一列。
// 行按键升序，列按名称升序。
func Pivot(records []models.HealthRecord) (*models.PivotTable, int) {
	cells := make(map[models.PivotKey]map[string]*meanAcc)
	columns := make(map[string]struct{})
	dropped := 0

	for _, rec := range records {
		key, ok := parseKey(rec)
		typ := NormalizeType(rec.Type)
		if !ok || typ == "" {
			dropped++
			continue
		}

		row, exists := cells[key]
		if !exists {
			row = make(map[string]*meanAcc)
			cells[key] = row
		}
		acc, exists := row[typ]
		if !exists {
			acc = &meanAcc{}
			row[typ] = acc
		}
		acc.sum += ParseValue(rec)
		acc.n++
		columns[typ] = struct{}{}
	}

	table := &models.PivotTable{Columns: make([]string, 0, len(columns))}
	for c := range columns {
		table.Columns = append(table.Columns, c)
	}
	sort.Strings(table.Columns)

	keys := make([]models.PivotKey, 0, len(cells))
	for k := range cells {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })

	table.Rows = make([]models.PivotRow, 0, len(keys))
	for _, k := range keys {
		values := make([]*float64, len(table.Columns))
		for i, c := range table.Columns {
			if acc, ok := cells[k][c]; ok {
				mean := acc.sum / float64(acc.n)
				values[i] = &mean
			}
		}
		table.Rows = append(table.Rows, models.PivotRow{PivotKey: k, Values: values})
	}

	return table, dropped
}

// parseKey 解析三个时间字段，统一为 UTC 以便作为 map 键
func parseKey(rec models.HealthRecord) (models.PivotKey, bool) {
	creation, err := models.ParseTimestamp(rec.CreationDate)
	if err != nil {
		return models.PivotKey{}, false
	}
	start, err := models.ParseTimestamp(rec.StartDate)
	if err != nil {
		return models.PivotKey{}, false
	}
	end, err := models.ParseTimestamp(rec.EndDate)
	if err != nil {
		return models.PivotKey{}, false
	}
	return models.PivotKey{
		EndDate:      end.UTC(),
		CreationDate: creation.UTC(),
		StartDate:    start.UTC(),
		SourceName:   rec.SourceName,
	}, true
}
