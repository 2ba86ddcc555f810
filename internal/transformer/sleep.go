package transformer

import (
	"sort"
	"strings"
	"time"

	"health-etl/internal/models"
)

// remCycle 一个完整睡眠周期的时长
const remCycle = 90 * time.Minute

// SplitSleep 将宽表拆分为睡眠区间行与活动宽表
//
// 睡眠行：sleep_analysis 非空且来源名称包含 "Watch"
// 活动行：sleep_analysis 为空
// 非 Watch 来源的睡眠行两边都不进入；缺少 sleep_analysis 列时全部视为活动行。
func SplitSleep(pivot *models.PivotTable) ([]models.PivotRow, *models.PivotTable) {
	activity := &models.PivotTable{Columns: pivot.Columns}

	idx := pivot.ColumnIndex(ColumnSleepAnalysis)
	if idx < 0 {
		activity.Rows = append([]models.PivotRow(nil), pivot.Rows...)
		return nil, activity
	}

	var sleep []models.PivotRow
	for _, row := range pivot.Rows {
		if row.Values[idx] == nil {
			activity.Rows = append(activity.Rows, row)
			continue
		}
		if strings.Contains(row.SourceName, watchSourceMarker) {
			sleep = append(sleep, row)
		}
	}
	return sleep, activity
}

// DeriveSleepSessions 按 creation_date 聚合睡眠区间
//
// 每个区间时长 = end - start；
// total_time_asleep = Σ时长，bed_time = min(start)，awake_time = max(end)，
// sleep_counts = 区间数，rem_cycles = Σ floor(时长 / 90 分钟)，
// time_in_bed = awake - bed，restless = time_in_bed - total（可能为负）。
// 结果按 creation_date 升序。
func DeriveSleepSessions(rows []models.PivotRow) []models.SleepSession {
	groups := make(map[time.Time]*models.SleepSession)
	totals := make(map[time.Time]time.Duration)

	for _, row := range rows {
		key := row.CreationDate
		d := row.EndDate.Sub(row.StartDate)

		s, ok := groups[key]
		if !ok {
			s = &models.SleepSession{
				CreationDate: key,
				BedTime:      row.StartDate,
				AwakeTime:    row.EndDate,
			}
			groups[key] = s
		}
		if row.StartDate.Before(s.BedTime) {
			s.BedTime = row.StartDate
		}
		if row.EndDate.After(s.AwakeTime) {
			s.AwakeTime = row.EndDate
		}
		s.SleepCounts++
		s.RemCycles += floorCycles(d)
		totals[key] += d
	}

	sessions := make([]models.SleepSession, 0, len(groups))
	for key, s := range groups {
		s.TotalTimeAsleepSeconds = totals[key].Seconds()
		s.TimeInBedSeconds = s.AwakeTime.Sub(s.BedTime).Seconds()
		s.RestlessTimeSeconds = s.TimeInBedSeconds - s.TotalTimeAsleepSeconds
		sessions = append(sessions, *s)
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CreationDate.Before(sessions[j].CreationDate)
	})
	return sessions
}

// floorCycles 向负无穷取整的周期数（end 早于 start 时为负）
func floorCycles(d time.Duration) int64 {
	q := int64(d / remCycle)
	if d%remCycle != 0 && d < 0 {
		q--
	}
	return q
}
