package parse

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoordinate_CommaAndDotAgree(t *testing.T) {
	cases := [][2]string{
		{"4,570868", "4.570868"},
		{"-74,297333", "-74.297333"},
		{" 10,5 ", "10.5"},
		{"7", "7,0"},
	}
	for _, c := range cases {
		a, okA := Coordinate(c[0])
		b, okB := Coordinate(c[1])
		require.True(t, okA, c[0])
		require.True(t, okB, c[1])
		assert.Equal(t, a, b, "%q vs %q", c[0], c[1])
	}
}

func TestCoordinate_Invalid(t *testing.T) {
	for _, in := range []string{"", "   ", "abc", "1,2,3", "4.5N", "--1"} {
		_, ok := Coordinate(in)
		assert.False(t, ok, "input %q", in)
	}
}

func TestDateTime_TwelveAndTwentyFourHour(t *testing.T) {
	want := time.Date(2024, 3, 15, 14, 30, 0, 0, time.UTC)

	pm := DateTime("15/03/2024 02:30:00 p. m.")
	require.NotNil(t, pm)
	assert.True(t, want.Equal(*pm), "got %v", pm)

	h24 := DateTime("15/03/2024 14:30:00")
	require.NotNil(t, h24)
	assert.True(t, pm.Equal(*h24))
}

func TestDateTime_MarkerVariants(t *testing.T) {
	morning := time.Date(2024, 1, 5, 9, 5, 7, 0, time.UTC)
	for _, in := range []string{
		"05/01/2024 09:05:07 a. m.",
		"05/01/2024 09:05:07 A. M.",
		"05/01/2024 09:05:07 a.m.",
		"05/01/2024 09:05:07 AM",
		"  5/1/2024   9:05:07   am ",
	} {
		got := DateTime(in)
		require.NotNil(t, got, in)
		assert.True(t, morning.Equal(*got), "%q -> %v", in, got)
	}

	noon := DateTime("05/01/2024 12:00:00 p. m.")
	require.NotNil(t, noon)
	assert.Equal(t, 12, noon.Hour())

	midnight := DateTime("05/01/2024 12:00:00 a. m.")
	require.NotNil(t, midnight)
	assert.Equal(t, 0, midnight.Hour())
}

func TestDateTime_Invalid(t *testing.T) {
	for _, in := range []string{"", "abc", "2024-03-15", "15/03/2024", "32/01/2024 10:00:00", "15/03/2024 14:30:00 p. m."} {
		assert.Nil(t, DateTime(in), "input %q", in)
	}
}

func TestTimestamp_ExcelSerial(t *testing.T) {
	// 45366.6041666667 is 2024-03-15 14:30:00
	got := Timestamp("45366.6041666667", true)
	require.NotNil(t, got)
	assert.Equal(t, time.Date(2024, 3, 15, 14, 30, 0, 0, time.UTC), got.UTC())

	assert.Nil(t, Timestamp("not a date", true))
	assert.Nil(t, Timestamp("-3", true))
}

func TestTimestamp_TextNumbersAreNotSerials(t *testing.T) {
	for _, in := range []string{"7", "2024", "45366.6041666667"} {
		assert.Nil(t, Timestamp(in, false), "input %q", in)
	}
	got := Timestamp("15/03/2024 14:30:00", false)
	require.NotNil(t, got)
	assert.Equal(t, 14, got.Hour())
}
