package transformer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStripTypePrefix(t *testing.T) {
	cases := map[string]string{
		"HKQuantityTypeIdentifierStepCount":     "StepCount",
		"HKCategoryTypeIdentifierSleepAnalysis": "SleepAnalysis",
		"HKDataTypeSleepDurationGoal":           "SleepDurationGoal",
		"StepCount":                             "StepCount",
		"HKDataType":                            "HKDataType",
	}
	for in, want := range cases {
		got := StripTypePrefix(in)
		assert.Equal(t, want, got, in)
		assert.Equal(t, got, StripTypePrefix(got), "idempotent: %s", in)
	}
}

func TestCamelToSnake(t *testing.T) {
	cases := map[string]string{
		"StepCount":                     "step_count",
		"AppleSleepingWristTemperature": "apple_sleeping_wrist_temperature",
		"endDate":                       "end_date",
		"Workout Name":                  "workout_name",
		"Set Order":                     "set_order",
		"RPE":                           "r_p_e",
		"weight":                        "weight",
		"dist ance":                     "distance",
		"":                              "",
	}
	for in, want := range cases {
		got := CamelToSnake(in)
		assert.Equal(t, want, got, in)
		assert.Equal(t, got, CamelToSnake(got), "idempotent: %s", in)
	}
}

func TestNormalizeType(t *testing.T) {
	assert.Equal(t, "step_count", NormalizeType("HKQuantityTypeIdentifierStepCount"))
	assert.Equal(t, "sleep_analysis", NormalizeType("HKCategoryTypeIdentifierSleepAnalysis"))
	assert.Equal(t, "sleep_duration_goal", NormalizeType("HKDataTypeSleepDurationGoal"))
}
