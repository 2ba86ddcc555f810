package models

import "time"

// SleepSession 按 creation_date 聚合的睡眠会话
type SleepSession struct {
	CreationDate           time.Time
	BedTime                time.Time
	AwakeTime              time.Time
	TotalTimeAsleepSeconds float64
	TimeInBedSeconds       float64
	RestlessTimeSeconds    float64 // 区间重叠时可能为负
	SleepCounts            int
	RemCycles              int64
}
