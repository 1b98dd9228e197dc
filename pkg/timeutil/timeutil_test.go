package timeutil

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDate_Arithmetic(t *testing.T) {
	d := MustParseDate("2024-02-28")

	assert.Equal(t, "2024-02-29", d.AddDays(1).String())
	assert.Equal(t, "2024-03-01", d.AddDays(2).String())
	assert.Equal(t, "2023-12-31", MustParseDate("2024-01-01").Yesterday().String())
	assert.Equal(t, 3, MustParseDate("2024-01-04").DaysSince(MustParseDate("2024-01-01")))
	assert.Equal(t, -1, MustParseDate("2024-01-01").DaysSince(MustParseDate("2024-01-02")))
	assert.True(t, MustParseDate("2024-01-01").Before(MustParseDate("2024-01-02")))
}

func TestDateOf_UsesLocation(t *testing.T) {
	instant := time.Date(2024, 3, 10, 22, 30, 0, 0, time.UTC)
	plus5 := time.FixedZone("UTC+5", 5*60*60)

	assert.Equal(t, "2024-03-10", DateOf(instant, time.UTC).String())
	assert.Equal(t, "2024-03-11", DateOf(instant, plus5).String())
}

func TestDate_JSON(t *testing.T) {
	type wrapper struct {
		Last Date `json:"last"`
	}

	data, err := json.Marshal(wrapper{Last: MustParseDate("2024-01-05")})
	require.NoError(t, err)
	assert.JSONEq(t, `{"last":"2024-01-05"}`, string(data))

	var w wrapper
	require.NoError(t, json.Unmarshal([]byte(`{"last":"2024-06-30"}`), &w))
	assert.Equal(t, NewDate(2024, time.June, 30), w.Last)

	require.NoError(t, json.Unmarshal([]byte(`{"last":null}`), &w))
	assert.True(t, w.Last.IsZero())

	assert.Error(t, json.Unmarshal([]byte(`{"last":"06/30/2024"}`), &w))
}

func TestCombineDateTime(t *testing.T) {
	at, err := CombineDateTime(MustParseDate("2024-05-01"), "14:30", time.UTC)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 1, 14, 30, 0, 0, time.UTC), at)

	_, err = CombineDateTime(MustParseDate("2024-05-01"), "2pm", time.UTC)
	assert.Error(t, err)
}

func TestFakeClock(t *testing.T) {
	start := time.Date(2024, 1, 1, 23, 0, 0, 0, time.UTC)
	clock := NewFakeClock(start)

	assert.Equal(t, "2024-01-01", Today(clock, time.UTC).String())
	clock.Advance(2 * time.Hour)
	assert.Equal(t, "2024-01-02", Today(clock, time.UTC).String())
}
