package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/banshee-data/envsensor/internal/sensor"
)

// DefaultRecentLimit caps RecentReadings when no limit is given.
const DefaultRecentLimit = 100

// RecordReading inserts one reading.
func (db *DB) RecordReading(ctx context.Context, r sensor.Reading) error {
	var camera sql.NullFloat64
	if r.CameraLight != nil {
		camera = sql.NullFloat64{Float64: *r.CameraLight, Valid: true}
	}
	datetime := r.Datetime
	if datetime == "" {
		datetime = r.Timestamp.Local().Format(sensor.DatetimeLayout)
	}

	_, err := db.ExecContext(ctx,
		`INSERT INTO readings (
			unix_time, datetime, temperature, humidity, light, camera_light, pressure, altitude
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.Timestamp.UnixNano(), datetime, r.Temperature, r.Humidity, r.Light, camera, r.Pressure, r.Altitude,
	)
	if err != nil {
		return fmt.Errorf("failed to insert reading: %w", err)
	}
	return nil
}

// Record lets the DB act as a supervisor sink.
func (db *DB) Record(ctx context.Context, r sensor.Reading) error {
	return db.RecordReading(ctx, r)
}

// RecentReadings returns up to limit readings, newest first.
func (db *DB) RecentReadings(ctx context.Context, limit int) ([]sensor.Reading, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	rows, err := db.QueryContext(ctx,
		`SELECT unix_time, datetime, temperature, humidity, light, camera_light, pressure, altitude
		FROM readings ORDER BY unix_time DESC, reading_id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var readings []sensor.Reading
	for rows.Next() {
		var (
			unixNanos int64
			r         sensor.Reading
			camera    sql.NullFloat64
		)
		if err := rows.Scan(&unixNanos, &r.Datetime, &r.Temperature, &r.Humidity, &r.Light, &camera, &r.Pressure, &r.Altitude); err != nil {
			return nil, err
		}
		r.Timestamp = time.Unix(0, unixNanos)
		if camera.Valid {
			v := camera.Float64
			r.CameraLight = &v
		}
		readings = append(readings, r)
	}
	return readings, rows.Err()
}

// CountReadings returns the number of stored readings.
func (db *DB) CountReadings(ctx context.Context) (int, error) {
	var n int
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM readings`).Scan(&n)
	return n, err
}
