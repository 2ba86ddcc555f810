package extractor

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleStrong = "\ufeffDate,Workout Name,Duration,Exercise Name,Set Order,Weight,Reps,Distance,Seconds,Notes,Workout Notes,RPE\n" +
	"2022-12-30 07:00:00,Push Day,01:05:00,Bench Press (Barbell),1,135,5,0,0,,,\n" +
	"2023-01-02 07:00:00,Pull Day,45m,Deadlift (Barbell),1,225,5,0,0,\"felt, good\",,8\n"

func TestReadStrong(t *testing.T) {
	export, err := ReadStrong(strings.NewReader(sampleStrong), nil)
	require.NoError(t, err)

	assert.Equal(t, "Date", export.Header[0])
	assert.Len(t, export.Header, 12)
	require.Len(t, export.Rows, 2)
	assert.Equal(t, "felt, good", export.Rows[1][9])
}

func TestReadStrong_SinceFilter(t *testing.T) {
	since := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	export, err := ReadStrong(strings.NewReader(sampleStrong), &since)
	require.NoError(t, err)
	require.Len(t, export.Rows, 1)
	assert.Equal(t, "Pull Day", export.Rows[0][1])
}

func TestReadStrong_SemicolonDelimiter(t *testing.T) {
	data := "Date;Workout Name;Duration\n2023-01-02 07:00:00;Legs;00:50:00\n"
	export, err := ReadStrong(strings.NewReader(data), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"Date", "Workout Name", "Duration"}, export.Header)
	assert.Equal(t, []string{"2023-01-02 07:00:00", "Legs", "00:50:00"}, export.Rows[0])
}

func TestReadStrong_Empty(t *testing.T) {
	_, err := ReadStrong(strings.NewReader(""), nil)
	assert.ErrorIs(t, err, ErrNoRecords)
}

func TestReadStrong_SinceIsInclusive(t *testing.T) {
	data := "Date,Workout Name,Duration\n" +
		"2023-01-15 16:29:59,Early,45m\n" +
		"2023-01-15 16:30:00,OnTime,45m\n"
	since := time.Date(2023, 1, 15, 16, 30, 0, 0, time.UTC)

	export, err := ReadStrong(strings.NewReader(data), &since)
	require.NoError(t, err)
	require.Len(t, export.Rows, 1)
	assert.Equal(t, "OnTime", export.Rows[0][1])
}
