package main

import (
	"encoding/json"
	"math"
	"time"

	"github.com/banshee-data/envsensor/internal/sensor"
	"github.com/banshee-data/envsensor/internal/serialmux"
)

// devResponder answers the read command with a slowly drifting reading and
// ignores anything else.
func devResponder(now func() time.Time) serialmux.Responder {
	return func(command string) (string, bool) {
		if command != sensor.ReadCommand {
			return "", false
		}
		phase := float64(now().Unix()%3600) / 3600 * 2 * math.Pi
		data, err := json.Marshal(map[string]float64{
			"temperature": round1(22 + 2*math.Sin(phase)),
			"humidity":    round1(55 + 5*math.Cos(phase)),
			"pressure":    round1(1013.2 + math.Sin(phase/2)),
			"altitude":    42.0,
			"light":       math.Round(400 + 100*math.Sin(phase)),
		})
		if err != nil {
			return "", false
		}
		return string(data), true
	}
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }
