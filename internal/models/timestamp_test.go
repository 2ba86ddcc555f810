package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimestamp(t *testing.T) {
	cases := map[string]time.Time{
		"2023-01-15 08:30:00 -0800": time.Date(2023, 1, 15, 16, 30, 0, 0, time.UTC),
		"2023-01-15T08:30:00Z":      time.Date(2023, 1, 15, 8, 30, 0, 0, time.UTC),
		"2023-01-15 08:30:00":       time.Date(2023, 1, 15, 8, 30, 0, 0, time.UTC),
		"2023-01-15":                time.Date(2023, 1, 15, 0, 0, 0, 0, time.UTC),
	}
	for in, want := range cases {
		got, err := ParseTimestamp(in)
		require.NoError(t, err, in)
		assert.True(t, want.Equal(got), "%s: got %s", in, got)
	}

	_, err := ParseTimestamp("yesterday")
	assert.Error(t, err)
	_, err = ParseTimestamp("  ")
	assert.Error(t, err)
}

func TestParseSince(t *testing.T) {
	since, err := ParseSince("")
	require.NoError(t, err)
	assert.Nil(t, since)

	since, err = ParseSince("2023-06-01")
	require.NoError(t, err)
	require.NotNil(t, since)
	assert.Equal(t, 2023, since.Year())

	_, err = ParseSince("06/01/2023")
	assert.Error(t, err)
}

func TestPivotKeyLess(t *testing.T) {
	base := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	a := PivotKey{EndDate: base, CreationDate: base, StartDate: base, SourceName: "Apple Watch"}
	b := a
	b.SourceName = "iPhone"
	assert.True(t, a.Less(b))
	assert.False(t, b.Less(a))

	c := a
	c.EndDate = base.Add(time.Minute)
	assert.True(t, b.Less(c))
}

func TestOutcomeUsable(t *testing.T) {
	assert.True(t, OutcomeOK.Usable())
	assert.True(t, OutcomePartial.Usable())
	assert.False(t, OutcomeNoData.Usable())
	assert.False(t, OutcomeFatal.Usable())
}
