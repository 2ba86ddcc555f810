package models

import "time"

// StrongExport Strong CSV 原始内容（表头 + 行）
type StrongExport struct {
	Header []string
	Rows   [][]string
}

// WorkoutSet Strong 导出中的一组训练记录
type WorkoutSet struct {
	CreatedAt       time.Time
	WorkoutName     string
	ExerciseName    string
	SetOrder        *float64
	Weight          *float64
	Reps            *float64
	Distance        *float64
	Seconds         *float64
	Notes           string
	WorkoutNotes    string
	RPE             *float64
	DurationSeconds int64
	WorkoutID       string
	Extra           map[string]string // 未识别的列，按规范化列名原样保留
}
