package transformer

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"health-etl/internal/models"

	"go.uber.org/zap"
)

// Strong 规范化后的列名
const (
	ColumnCreatedAt    = "created_at"
	ColumnWorkoutName  = "workout_name"
	ColumnExerciseName = "exercise_name"
	ColumnDuration     = "duration"
	ColumnWorkoutID    = "workout_id"

	workoutIDLayout = "2006-01-02 15:04:05"
)

// strongNumericColumns 可为空的数值列
var strongNumericColumns = map[string]func(*models.WorkoutSet) **float64{
	"set_order": func(s *models.WorkoutSet) **float64 { return &s.SetOrder },
	"weight":    func(s *models.WorkoutSet) **float64 { return &s.Weight },
	"reps":      func(s *models.WorkoutSet) **float64 { return &s.Reps },
	"distance":  func(s *models.WorkoutSet) **float64 { return &s.Distance },
	"seconds":   func(s *models.WorkoutSet) **float64 { return &s.Seconds },
	"rpe":       func(s *models.WorkoutSet) **float64 { return &s.RPE },
	"r_p_e":     func(s *models.WorkoutSet) **float64 { return &s.RPE },
}

// StrongResult Strong 转换结果
type StrongResult struct {
	Outcome models.Outcome
	Columns []string // 规范化后的列名（保持导出顺序），末尾追加 workout_id
	Sets    []models.WorkoutSet
	Dropped int
	Err     error

	// Source 仅在 fatal 时设置：原样返回未转换的输入
	Source *models.StrongExport
}

// StrongTransformer Strong 数据转换器
type StrongTransformer struct {
	logger *zap.Logger
}

// NewStrongTransformer 创建 Strong 数据转换器
func NewStrongTransformer(logger *zap.Logger) *StrongTransformer {
	return &StrongTransformer{logger: logger}
}

// Transform 转换 Strong 导出
// 列名规范化并将 date 重命名为 created_at，解析时间与时长，派生 workout_id
func (t *StrongTransformer) Transform(export *models.StrongExport) (result *StrongResult) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("Could not transform Strong data", zap.Any("panic", r))
			result = &StrongResult{
				Outcome: models.OutcomeFatal,
				Err:     fmt.Errorf("strong transform panicked: %v", r),
				Source:  export,
			}
		}
	}()

	if export == nil || len(export.Rows) == 0 {
		t.logger.Warn("No Strong rows to transform")
		return &StrongResult{Outcome: models.OutcomeNoData}
	}

	columns := NormalizeStrongHeader(export.Header)
	index := make(map[string]int, len(columns))
	for i, c := range columns {
		if c != "" {
			index[c] = i
		}
	}
	for _, required := range []string{ColumnCreatedAt, ColumnWorkoutName, ColumnDuration} {
		if _, ok := index[required]; !ok {
			err := fmt.Errorf("strong export is missing required column %q", required)
			t.logger.Error("Could not transform Strong data", zap.Error(err))
			return &StrongResult{Outcome: models.OutcomeFatal, Err: err, Source: export}
		}
	}

	result = &StrongResult{
		Outcome: models.OutcomeOK,
		Columns: append(tableColumns(columns), ColumnWorkoutID),
		Sets:    make([]models.WorkoutSet, 0, len(export.Rows)),
	}

	var firstErr error
	for i, row := range export.Rows {
		set, err := parseWorkoutSet(columns, row)
		if err != nil {
			result.Dropped++
			if firstErr == nil {
				firstErr = fmt.Errorf("row %d: %w", i+1, err)
			}
			t.logger.Debug("Dropped Strong row", zap.Int("row", i+1), zap.Error(err))
			continue
		}
		result.Sets = append(result.Sets, set)
	}

	switch {
	case len(result.Sets) == 0:
		result.Outcome = models.OutcomeFatal
		result.Err = fmt.Errorf("all %d strong rows were unusable: %w", result.Dropped, firstErr)
		result.Columns = nil
		result.Sets = nil
		result.Source = export
		t.logger.Error("Could not transform Strong data", zap.Error(result.Err))
		return result
	case result.Dropped > 0:
		result.Outcome = models.OutcomePartial
		result.Err = fmt.Errorf("dropped %d strong rows: %w", result.Dropped, firstErr)
		t.logger.Warn("Dropped Strong rows", zap.Int("dropped", result.Dropped), zap.Error(firstErr))
	}

	t.logger.Info("Transformed Strong data",
		zap.Int("rows", len(result.Sets)),
		zap.Int("columns", len(result.Columns)),
	)
	t.logger.Debug("Strong columns", zap.Strings("columns", result.Columns))
	return result
}

// NormalizeStrongHeader 规范化表头，date 重命名为 created_at
//
// 空表头（如行尾多余的分隔符）返回 ""，调用方忽略该列；
// 规范化后重名的列依次追加 _2、_3 后缀，workout_id 保留给派生列。
func NormalizeStrongHeader(header []string) []string {
	out := make([]string, len(header))
	seen := map[string]bool{ColumnWorkoutID: true}
	for i, h := range header {
		name := CamelToSnake(h)
		if name == "" {
			continue
		}
		if name == "date" {
			name = ColumnCreatedAt
		}
		unique := name
		for n := 2; seen[unique]; n++ {
			unique = fmt.Sprintf("%s_%d", name, n)
		}
		seen[unique] = true
		out[i] = unique
	}
	return out
}

// WorkoutID 由训练开始时间和训练名称拼接
func WorkoutID(createdAt time.Time, workoutName string) string {
	return createdAt.Format(workoutIDLayout) + "_" + workoutName
}

// tableColumns 去掉被忽略的空列
func tableColumns(columns []string) []string {
	out := make([]string, 0, len(columns)+1)
	for _, c := range columns {
		if c != "" {
			out = append(out, c)
		}
	}
	return out
}

func parseWorkoutSet(columns []string, row []string) (models.WorkoutSet, error) {
	var set models.WorkoutSet
	for i, name := range columns {
		if name == "" {
			continue
		}
		raw := ""
		if i < len(row) {
			raw = strings.TrimSpace(row[i])
		}

		switch name {
		case ColumnCreatedAt:
			ts, err := models.ParseTimestamp(raw)
			if err != nil {
				return set, fmt.Errorf("created_at: %w", err)
			}
			set.CreatedAt = ts.UTC()
		case ColumnWorkoutName:
			set.WorkoutName = raw
		case ColumnExerciseName:
			set.ExerciseName = raw
		case ColumnDuration:
			secs, err := ParseWorkoutDuration(raw)
			if err != nil {
				return set, fmt.Errorf("duration: %w", err)
			}
			set.DurationSeconds = secs
		case "notes":
			set.Notes = raw
		case "workout_notes":
			set.WorkoutNotes = raw
		default:
			if field, ok := strongNumericColumns[name]; ok {
				v, err := parseOptionalFloat(raw)
				if err != nil {
					return set, fmt.Errorf("%s: %w", name, err)
				}
				*field(&set) = v
				continue
			}
			if set.Extra == nil {
				set.Extra = make(map[string]string)
			}
			set.Extra[name] = raw
		}
	}
	set.WorkoutID = WorkoutID(set.CreatedAt, set.WorkoutName)
	return set, nil
}

func parseOptionalFloat(s string) (*float64, error) {
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// ParseWorkoutDuration 将训练时长解析为整秒
// 支持 "HH:MM:SS"、"MM:SS"、Strong 的 "1h 5m" 风格以及纯秒数
func ParseWorkoutDuration(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty duration")
	}

	if strings.Contains(s, ":") {
		parts := strings.Split(s, ":")
		if len(parts) > 3 {
			return 0, fmt.Errorf("invalid duration %q", s)
		}
		var total float64
		for _, p := range parts {
			v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
			if err != nil || v < 0 {
				return 0, fmt.Errorf("invalid duration %q", s)
			}
			total = total*60 + v
		}
		return int64(total), nil
	}

	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return int64(v), nil
	}

	d, err := time.ParseDuration(strings.Join(strings.Fields(s), ""))
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	return int64(d / time.Second), nil
}
