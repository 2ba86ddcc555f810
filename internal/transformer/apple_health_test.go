package transformer

import (
	"testing"
	"time"

	"health-etl/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func record(typ, value, source, creation, start, end string) models.HealthRecord {
	return models.HealthRecord{
		Type:         typ,
		Value:        value,
		HasValue:     value != "",
		SourceName:   source,
		CreationDate: creation,
		StartDate:    start,
		EndDate:      end,
	}
}

func TestAppleHealthTransformer_StepCountValues(t *testing.T) {
	records := []models.HealthRecord{
		record("HKQuantityTypeIdentifierStepCount", "120", "iPhone",
			"2023-01-15 08:35:00 +0000", "2023-01-15 08:00:00 +0000", "2023-01-15 08:30:00 +0000"),
		record("HKQuantityTypeIdentifierStepCount", "", "iPhone",
			"2023-01-15 09:35:00 +0000", "2023-01-15 09:00:00 +0000", "2023-01-15 09:30:00 +0000"),
	}

	result := NewAppleHealthTransformer(zap.NewNop()).Transform(records)
	require.Equal(t, models.OutcomeOK, result.Outcome)
	require.NoError(t, result.Err)
	assert.Nil(t, result.Source)

	assert.Equal(t, []string{"step_count"}, result.Pivot.Columns)
	require.Len(t, result.Pivot.Rows, 2)

	v, ok := result.Pivot.Value(0, "step_count")
	require.True(t, ok)
	assert.Equal(t, 120.0, v)

	v, ok = result.Pivot.Value(1, "step_count")
	require.True(t, ok)
	assert.Equal(t, 1.0, v)

	// 没有 sleep_analysis 列时全部为活动行
	assert.Len(t, result.Activity.Rows, 2)
	assert.Empty(t, result.Sleep)
}

func TestAppleHealthTransformer_NonNumericValueCountsAsOne(t *testing.T) {
	records := []models.HealthRecord{
		record("HKCategoryTypeIdentifierMindfulSession", "HKCategoryValueNotApplicable", "iPhone",
			"2023-01-15 08:35:00 +0000", "2023-01-15 08:00:00 +0000", "2023-01-15 08:30:00 +0000"),
	}
	result := NewAppleHealthTransformer(zap.NewNop()).Transform(records)
	require.Equal(t, models.OutcomeOK, result.Outcome)

	v, ok := result.Pivot.Value(0, "mindful_session")
	require.True(t, ok)
	assert.Equal(t, 1.0, v)
}

func TestPivot_MeanOnDuplicateKey(t *testing.T) {
	records := []models.HealthRecord{
		record("HKQuantityTypeIdentifierHeartRate", "60", "Apple Watch",
			"2023-01-15 08:35:00 +0000", "2023-01-15 08:00:00 +0000", "2023-01-15 08:30:00 +0000"),
		record("HKQuantityTypeIdentifierHeartRate", "80", "Apple Watch",
			"2023-01-15 08:35:00 +0000", "2023-01-15 08:00:00 +0000", "2023-01-15 08:30:00 +0000"),
		record("HKQuantityTypeIdentifierStepCount", "10", "Apple Watch",
			"2023-01-15 08:35:00 +0000", "2023-01-15 08:00:00 +0000", "2023-01-15 08:30:00 +0000"),
	}

	pivot, dropped := Pivot(records)
	assert.Equal(t, 0, dropped)
	assert.Equal(t, []string{"heart_rate", "step_count"}, pivot.Columns)
	require.Len(t, pivot.Rows, 1)

	v, _ := pivot.Value(0, "heart_rate")
	assert.Equal(t, 70.0, v)
	v, _ = pivot.Value(0, "step_count")
	assert.Equal(t, 10.0, v)
}

func TestPivot_TypesWithSameNormalizedNameShareColumn(t *testing.T) {
	records := []models.HealthRecord{
		record("HKQuantityTypeIdentifierStepCount", "100", "iPhone",
			"2023-01-15 08:35:00 +0000", "2023-01-15 08:00:00 +0000", "2023-01-15 08:30:00 +0000"),
		record("HKDataTypeStepCount", "200", "iPhone",
			"2023-01-15 08:35:00 +0000", "2023-01-15 08:00:00 +0000", "2023-01-15 08:30:00 +0000"),
	}

	pivot, dropped := Pivot(records)
	assert.Zero(t, dropped)
	assert.Equal(t, []string{"step_count"}, pivot.Columns)
	require.Len(t, pivot.Rows, 1)
	v, ok := pivot.Value(0, "step_count")
	require.True(t, ok)
	assert.Equal(t, 150.0, v)
}

func TestPivot_OffsetsNormalisedToUTC(t *testing.T) {
	records := []models.HealthRecord{
		record("HKQuantityTypeIdentifierStepCount", "1", "iPhone",
			"2023-01-15 10:35:00 +0200", "2023-01-15 10:00:00 +0200", "2023-01-15 10:30:00 +0200"),
		record("HKQuantityTypeIdentifierStepCount", "3", "iPhone",
			"2023-01-15 08:35:00 +0000", "2023-01-15 08:00:00 +0000", "2023-01-15 08:30:00 +0000"),
	}
	pivot, _ := Pivot(records)
	require.Len(t, pivot.Rows, 1)
	assert.Equal(t, time.UTC, pivot.Rows[0].EndDate.Location())

	v, _ := pivot.Value(0, "step_count")
	assert.Equal(t, 2.0, v)
}

func TestAppleHealthTransformer_PartialOnBadDates(t *testing.T) {
	records := []models.HealthRecord{
		record("HKQuantityTypeIdentifierStepCount", "5", "iPhone",
			"2023-01-15 08:35:00 +0000", "2023-01-15 08:00:00 +0000", "2023-01-15 08:30:00 +0000"),
		record("HKQuantityTypeIdentifierStepCount", "5", "iPhone",
			"not a date", "2023-01-15 08:00:00 +0000", "2023-01-15 08:30:00 +0000"),
	}
	result := NewAppleHealthTransformer(zap.NewNop()).Transform(records)
	assert.Equal(t, models.OutcomePartial, result.Outcome)
	assert.Equal(t, 1, result.Dropped)
	assert.Error(t, result.Err)
	assert.Len(t, result.Pivot.Rows, 1)
}

func TestAppleHealthTransformer_FatalEchoesInput(t *testing.T) {
	records := []models.HealthRecord{
		record("HKQuantityTypeIdentifierStepCount", "5", "iPhone", "bad", "bad", "bad"),
	}
	result := NewAppleHealthTransformer(zap.NewNop()).Transform(records)
	assert.Equal(t, models.OutcomeFatal, result.Outcome)
	assert.Error(t, result.Err)
	assert.Equal(t, records, result.Source)
	assert.Nil(t, result.Pivot)
	assert.Nil(t, result.Activity)
}

func TestAppleHealthTransformer_NoData(t *testing.T) {
	result := NewAppleHealthTransformer(zap.NewNop()).Transform(nil)
	assert.Equal(t, models.OutcomeNoData, result.Outcome)
	assert.Nil(t, result.Pivot)
}

func TestAppleHealthTransformer_SplitsSleep(t *testing.T) {
	records := []models.HealthRecord{
		record("HKCategoryTypeIdentifierSleepAnalysis", "HKCategoryValueSleepAnalysisAsleepCore", "Jane's Apple Watch",
			"2023-01-16 07:00:00 +0000", "2023-01-15 23:00:00 +0000", "2023-01-15 23:30:00 +0000"),
		record("HKCategoryTypeIdentifierSleepAnalysis", "HKCategoryValueSleepAnalysisInBed", "Jane's iPhone",
			"2023-01-16 07:00:00 +0000", "2023-01-15 22:30:00 +0000", "2023-01-16 06:30:00 +0000"),
		record("HKQuantityTypeIdentifierStepCount", "300", "Jane's iPhone",
			"2023-01-16 09:00:00 +0000", "2023-01-16 08:00:00 +0000", "2023-01-16 08:30:00 +0000"),
	}

	result := NewAppleHealthTransformer(zap.NewNop()).Transform(records)
	require.Equal(t, models.OutcomeOK, result.Outcome)
	assert.Equal(t, []string{"sleep_analysis", "step_count"}, result.Pivot.Columns)

	// iPhone 的睡眠行不进入任何一侧
	require.Len(t, result.Activity.Rows, 1)
	assert.Equal(t, "Jane's iPhone", result.Activity.Rows[0].SourceName)

	require.Len(t, result.Sleep, 1)
	assert.Equal(t, 1, result.Sleep[0].SleepCounts)
	assert.Equal(t, 1800.0, result.Sleep[0].TotalTimeAsleepSeconds)
}
