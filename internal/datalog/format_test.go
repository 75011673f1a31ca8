package datalog

import (
	"testing"
	"time"

	"github.com/banshee-data/envsensor/internal/sensor"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(v float64) *float64 { return &v }

func TestFormatLine(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.Local)
	r := sensor.NewReading(sensor.RawReading{Temperature: 21.5, Humidity: 43, Pressure: 1012.25, Altitude: 35.1, Light: 512}, nil, ts)

	assert.Equal(t, "2024-03-01 12:00:00\t21.5\t43\t512\tNone\t1012.25\t35.1\n", FormatLine(r))

	r.CameraLight = ptr(97.125)
	assert.Equal(t, "2024-03-01 12:00:00\t21.5\t43\t512\t97.125\t1012.25\t35.1\n", FormatLine(r))
}

func TestParseLine_RoundTrip(t *testing.T) {
	ts := time.Date(2023, 11, 5, 23, 59, 1, 0, time.Local)
	for _, camera := range []*float64{nil, ptr(0), ptr(131.0625)} {
		in := sensor.NewReading(sensor.RawReading{Temperature: -3.25, Humidity: 99.9, Pressure: 950, Altitude: -12.5, Light: 0.1}, camera, ts)

		rec, err := ParseLine(FormatLine(in))
		require.NoError(t, err)
		if diff := cmp.Diff(in, rec.Reading()); diff != "" {
			t.Errorf("round trip mismatch (-want +got):\n%s", diff)
		}
	}
}

func TestParseLine_Errors(t *testing.T) {
	tests := map[string]string{
		"too few fields":  "2024-03-01 12:00:00\t1\t2",
		"bad datetime":    "yesterday\t1\t2\t3\tNone\t4\t5",
		"bad float":       "2024-03-01 12:00:00\tx\t2\t3\tNone\t4\t5",
		"bad camera":      "2024-03-01 12:00:00\t1\t2\t3\tnull\t4\t5",
		"too many fields": "2024-03-01 12:00:00\t1\t2\t3\tNone\t4\t5\t6",
	}
	for name, line := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseLine(line)
			assert.Error(t, err)
		})
	}
}
