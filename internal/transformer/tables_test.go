package transformer

import (
	"testing"
	"time"

	"health-etl/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestPivotToTable(t *testing.T) {
	ts := time.Date(2023, 1, 15, 8, 0, 0, 0, time.UTC)
	v := 42.0
	pivot := &models.PivotTable{
		Columns: []string{"heart_rate", "step_count"},
		Rows: []models.PivotRow{{
			PivotKey: models.PivotKey{EndDate: ts, CreationDate: ts, StartDate: ts, SourceName: "iPhone"},
			Values:   []*float64{nil, &v},
		}},
	}

	table := PivotToTable("apple_health_raw", pivot)
	require.NoError(t, table.Validate())
	assert.Equal(t, []string{"end_date", "creation_date", "start_date", "source_name", "heart_rate", "step_count"}, table.ColumnNames())
	assert.Equal(t, models.KindTimestamp, table.Columns[0].Kind)
	assert.Equal(t, models.KindFloat, table.Columns[5].Kind)
	assert.Equal(t, []any{ts, ts, ts, "iPhone", nil, 42.0}, table.Rows[0])
}

func TestSleepTable(t *testing.T) {
	ts := time.Date(2023, 1, 16, 7, 0, 0, 0, time.UTC)
	table := SleepTable("apple_health_sleep_raw", []models.SleepSession{{
		CreationDate:           ts,
		BedTime:                ts.Add(-8 * time.Hour),
		AwakeTime:              ts,
		TotalTimeAsleepSeconds: 25200,
		TimeInBedSeconds:       28800,
		RestlessTimeSeconds:    3600,
		SleepCounts:            4,
		RemCycles:              4,
	}})
	require.NoError(t, table.Validate())
	assert.Equal(t, "rem_cycles", table.Columns[5].Name)
	assert.Equal(t, int64(4), table.Rows[0][4])
	assert.Equal(t, 3600.0, table.Rows[0][7])
}

func TestStrongTable(t *testing.T) {
	export := &models.StrongExport{
		Header: []string{"Date", "Workout Name", "Duration", "Weight", "Notes", "Gym"},
		Rows:   [][]string{{"2023-03-01 18:00:00", "Evening", "45m", "", "", "Home"}},
	}
	result := NewStrongTransformer(zap.NewNop()).Transform(export)
	require.Equal(t, models.OutcomeOK, result.Outcome)

	table := StrongTable("strong_app_raw", result)
	require.NoError(t, table.Validate())
	assert.Equal(t, []string{"created_at", "workout_name", "duration", "weight", "notes", "gym", "workout_id"}, table.ColumnNames())
	assert.Equal(t, models.KindInt, table.Columns[2].Kind)
	assert.Equal(t, models.KindFloat, table.Columns[3].Kind)
	assert.Equal(t, models.KindText, table.Columns[5].Kind)

	row := table.Rows[0]
	assert.Equal(t, int64(2700), row[2])
	assert.Nil(t, row[3])
	assert.Nil(t, row[4])
	assert.Equal(t, "Home", row[5])
	assert.Equal(t, "2023-03-01 18:00:00_Evening", row[6])
}
