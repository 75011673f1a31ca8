package datalog

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/banshee-data/envsensor/internal/sensor"
)

// NoneValue marks an absent camera_light column.
const NoneValue = "None"

// Columns lists the log's tab separated fields in order.
var Columns = []string{"datetime", "temperature", "humidity", "light", "camera_light", "pressure", "altitude"}

// Record is one parsed log line.
type Record struct {
	Time        time.Time
	Temperature float64
	Humidity    float64
	Light       float64
	CameraLight *float64
	Pressure    float64
	Altitude    float64
}

// Reading converts the record back to a sensor.Reading.
func (r Record) Reading() sensor.Reading {
	return sensor.NewReading(sensor.RawReading{
		Temperature: r.Temperature,
		Humidity:    r.Humidity,
		Pressure:    r.Pressure,
		Altitude:    r.Altitude,
		Light:       r.Light,
	}, r.CameraLight, r.Time)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// FormatLine renders r as one newline terminated log line.
func FormatLine(r sensor.Reading) string {
	camera := NoneValue
	if r.CameraLight != nil {
		camera = formatFloat(*r.CameraLight)
	}
	datetime := r.Datetime
	if datetime == "" {
		datetime = r.Timestamp.Local().Format(sensor.DatetimeLayout)
	}
	return strings.Join([]string{
		datetime,
		formatFloat(r.Temperature),
		formatFloat(r.Humidity),
		formatFloat(r.Light),
		camera,
		formatFloat(r.Pressure),
		formatFloat(r.Altitude),
	}, "\t") + "\n"
}

// ParseLine is the inverse of FormatLine. The datetime column is read in
// local time.
func ParseLine(line string) (Record, error) {
	line = strings.TrimRight(line, "\r\n")
	fields := strings.Split(line, "\t")
	if len(fields) != len(Columns) {
		return Record{}, fmt.Errorf("expected %d fields, got %d", len(Columns), len(fields))
	}

	ts, err := time.ParseInLocation(sensor.DatetimeLayout, fields[0], time.Local)
	if err != nil {
		return Record{}, fmt.Errorf("datetime: %w", err)
	}
	rec := Record{Time: ts}

	targets := []*float64{&rec.Temperature, &rec.Humidity, &rec.Light, nil, &rec.Pressure, &rec.Altitude}
	for i, dst := range targets {
		col := fields[i+1]
		if dst == nil {
			if col == NoneValue {
				continue
			}
			v, err := strconv.ParseFloat(col, 64)
			if err != nil {
				return Record{}, fmt.Errorf("%s: %w", Columns[i+1], err)
			}
			rec.CameraLight = &v
			continue
		}
		v, err := strconv.ParseFloat(col, 64)
		if err != nil {
			return Record{}, fmt.Errorf("%s: %w", Columns[i+1], err)
		}
		*dst = v
	}
	return rec, nil
}
