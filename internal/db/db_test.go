package db

import (
	"compress/gzip"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/banshee-data/envsensor/internal/sensor"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "readings.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func ptr(v float64) *float64 { return &v }

func TestPragmasApplied(t *testing.T) {
	db := newTestDB(t)

	var journalMode string
	require.NoError(t, db.QueryRow("PRAGMA journal_mode").Scan(&journalMode))
	assert.Equal(t, "wal", journalMode)

	var busyTimeout int
	require.NoError(t, db.QueryRow("PRAGMA busy_timeout").Scan(&busyTimeout))
	assert.Equal(t, 5000, busyTimeout)
}

func TestMigrateVersion(t *testing.T) {
	db := newTestDB(t)
	version, dirty, err := db.MigrateVersion(Migrations)
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	assert.False(t, dirty)

	// idempotent
	require.NoError(t, db.MigrateUp(Migrations))
}

func TestMigrateDown(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.MigrateDown(Migrations))

	version, _, err := db.MigrateVersion(Migrations)
	require.NoError(t, err)
	assert.Zero(t, version)

	_, err = db.CountReadings(context.Background())
	assert.Error(t, err, "readings table dropped")
}

func TestRecordAndRecentReadings(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.Local)

	for i := 0; i < 5; i++ {
		var camera *float64
		if i%2 == 0 {
			camera = ptr(float64(100 + i))
		}
		r := sensor.NewReading(sensor.RawReading{Temperature: 20 + float64(i), Humidity: 50, Pressure: 1000, Altitude: 5, Light: 300}, camera, base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, db.Record(ctx, r))
	}

	n, err := db.CountReadings(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	got, err := db.RecentReadings(ctx, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)

	want := sensor.NewReading(sensor.RawReading{Temperature: 24, Humidity: 50, Pressure: 1000, Altitude: 5, Light: 300}, ptr(104), base.Add(4*time.Minute))
	if diff := cmp.Diff(want, got[0]); diff != "" {
		t.Errorf("newest reading mismatch (-want +got):\n%s", diff)
	}
	assert.Nil(t, got[1].CameraLight)
	assert.Equal(t, 23.0, got[1].Temperature)

	all, err := db.RecentReadings(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

func TestAttachAdminRoutes_Backup(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.RecordReading(context.Background(), sensor.NewReading(sensor.RawReading{Temperature: 1}, nil, time.Now())))

	mux := http.NewServeMux()
	require.NoError(t, db.AttachAdminRoutes(mux))

	req := httptest.NewRequest(http.MethodGet, "/debug/backup", nil)
	req.RemoteAddr = "127.0.0.1:5555"
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	gz, err := gzip.NewReader(rec.Body)
	require.NoError(t, err)
	data, err := io.ReadAll(gz)
	require.NoError(t, err)
	assert.Equal(t, "SQLite format 3\x00", string(data[:16]))
}
