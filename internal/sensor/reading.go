// Package sensor talks to the environmental sensor board over its serial
// line protocol and keeps the most recent good reading.
package sensor

import (
	"time"
)

// DatetimeLayout is the local-time layout used for Reading.Datetime and the
// first column of the reading log.
const DatetimeLayout = "2006-01-02 15:04:05"

// RawReading holds the five values the device reports for one "D" command.
type RawReading struct {
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
	Pressure    float64 `json:"pressure"`
	Altitude    float64 `json:"altitude"`
	Light       float64 `json:"light"`
}

// Reading is one merged sample: the device values plus the camera-derived
// brightness when it was fresh at capture time.
type Reading struct {
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
	Pressure    float64 `json:"pressure"`
	Altitude    float64 `json:"altitude"`
	Light       float64 `json:"light"`
	// CameraLight is nil when no fresh brightness measurement was available.
	CameraLight *float64  `json:"camera_light"`
	Timestamp   time.Time `json:"timestamp"`
	Datetime    string    `json:"datetime"`
}

// NewReading builds a Reading from one successful exchange. camera may be nil.
func NewReading(raw RawReading, camera *float64, ts time.Time) Reading {
	return Reading{
		Temperature: raw.Temperature,
		Humidity:    raw.Humidity,
		Pressure:    raw.Pressure,
		Altitude:    raw.Altitude,
		Light:       raw.Light,
		CameraLight: camera,
		Timestamp:   ts,
		Datetime:    ts.Local().Format(DatetimeLayout),
	}
}

// IsZero reports whether r is the empty sentinel held before the first
// successful poll.
func (r Reading) IsZero() bool {
	return r.Timestamp.IsZero()
}
