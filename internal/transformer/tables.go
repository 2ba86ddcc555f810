package transformer

import (
	"health-etl/internal/models"
)

// 宽表的键列（与透视键顺序一致）
var pivotKeyColumns = []models.Column{
	{Name: "end_date", Kind: models.KindTimestamp},
	{Name: "creation_date", Kind: models.KindTimestamp},
	{Name: "start_date", Kind: models.KindTimestamp},
	{Name: "source_name", Kind: models.KindText},
}

// PivotToTable 将宽表转为可入库的通用表：键列在前，观测类型列在后
func PivotToTable(name string, pivot *models.PivotTable) *models.Table {
	table := &models.Table{Name: name}
	table.Columns = append(table.Columns, pivotKeyColumns...)
	for _, c := range pivot.Columns {
		table.Columns = append(table.Columns, models.Column{Name: c, Kind: models.KindFloat})
	}

	table.Rows = make([][]any, 0, len(pivot.Rows))
	for _, r := range pivot.Rows {
		row := make([]any, 0, len(table.Columns))
		row = append(row, r.EndDate, r.CreationDate, r.StartDate, r.SourceName)
		for _, v := range r.Values {
			if v == nil {
				row = append(row, nil)
				continue
			}
			row = append(row, *v)
		}
		table.Rows = append(table.Rows, row)
	}
	return table
}

// SleepTable 睡眠会话表
func SleepTable(name string, sessions []models.SleepSession) *models.Table {
	table := &models.Table{
		Name: name,
		Columns: []models.Column{
			{Name: "creation_date", Kind: models.KindTimestamp},
			{Name: "total_time_asleep_seconds", Kind: models.KindFloat},
			{Name: "bed_time", Kind: models.KindTimestamp},
			{Name: "awake_time", Kind: models.KindTimestamp},
			{Name: "sleep_counts", Kind: models.KindInt},
			{Name: "rem_cycles", Kind: models.KindInt},
			{Name: "time_in_bed_seconds", Kind: models.KindFloat},
			{Name: "restless_time_seconds", Kind: models.KindFloat},
		},
		Rows: make([][]any, 0, len(sessions)),
	}
	for _, s := range sessions {
		table.Rows = append(table.Rows, []any{
			s.CreationDate,
			s.TotalTimeAsleepSeconds,
			s.BedTime,
			s.AwakeTime,
			int64(s.SleepCounts),
			s.RemCycles,
			s.TimeInBedSeconds,
			s.RestlessTimeSeconds,
		})
	}
	return table
}

// StrongTable 训练记录表，列顺序与导出一致
func StrongTable(name string, result *StrongResult) *models.Table {
	table := &models.Table{Name: name}
	for _, c := range result.Columns {
		table.Columns = append(table.Columns, models.Column{Name: c, Kind: strongColumnKind(c)})
	}

	table.Rows = make([][]any, 0, len(result.Sets))
	for i := range result.Sets {
		set := &result.Sets[i]
		row := make([]any, len(result.Columns))
		for j, c := range result.Columns {
			row[j] = strongCell(set, c)
		}
		table.Rows = append(table.Rows, row)
	}
	return table
}

func strongColumnKind(name string) models.ColumnKind {
	switch name {
	case ColumnCreatedAt:
		return models.KindTimestamp
	case ColumnDuration:
		return models.KindInt
	}
	if _, ok := strongNumericColumns[name]; ok {
		return models.KindFloat
	}
	return models.KindText
}

func strongCell(set *models.WorkoutSet, column string) any {
	switch column {
	case ColumnCreatedAt:
		return set.CreatedAt
	case ColumnWorkoutName:
		return set.WorkoutName
	case ColumnExerciseName:
		return set.ExerciseName
	case ColumnDuration:
		return set.DurationSeconds
	case ColumnWorkoutID:
		return set.WorkoutID
	case "notes":
		return nullIfEmpty(set.Notes)
	case "workout_notes":
		return nullIfEmpty(set.WorkoutNotes)
	}
	if field, ok := strongNumericColumns[column]; ok {
		if v := *field(set); v != nil {
			return *v
		}
		return nil
	}
	return nullIfEmpty(set.Extra[column])
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
