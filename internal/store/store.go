package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pfrederiksen/bimmerctl/internal/fleet"
)

// Store keeps a local history of vehicle status snapshots, so status
// can be answered offline and battery trends can be charted without
// hammering the vendor API.
type Store struct {
	db *sql.DB
}

// DefaultPath returns the snapshot database path, honoring
// BMW_SNAPSHOT_DB.
func DefaultPath() string {
	if p := os.Getenv("BMW_SNAPSHOT_DB"); p != "" {
		return p
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ".bimmerctl.db"
	}
	return filepath.Join(home, ".bimmerctl.db")
}

// Open opens (and if needed creates) the snapshot database.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS snapshots (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			vin TEXT NOT NULL,
			taken_at DATETIME NOT NULL,
			mileage REAL,
			battery_percent REAL,
			range_km REAL,
			charging_status TEXT,
			charger_connected BOOLEAN,
			latitude REAL,
			longitude REAL,
			vehicle_json TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);

		CREATE INDEX IF NOT EXISTS idx_snapshots_vin_taken_at
			ON snapshots(vin, taken_at DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Snapshot is one recorded observation of a vehicle.
type Snapshot struct {
	VIN     string         `json:"vin"`
	TakenAt time.Time      `json:"takenAt"`
	Vehicle *fleet.Vehicle `json:"vehicle"`
}

// Save records a snapshot of an enriched vehicle. The full vehicle is
// stored as JSON; the indexed columns exist for trend queries.
func (s *Store) Save(ctx context.Context, v *fleet.Vehicle, takenAt time.Time) error {
	if v == nil || v.Status == nil {
		return fmt.Errorf("vehicle has no status to snapshot")
	}

	vehicleJSON, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal vehicle: %w", err)
	}

	state := v.Status.State
	var latitude, longitude *float64
	if state.Location != nil {
		latitude = &state.Location.Coordinates.Latitude
		longitude = &state.Location.Coordinates.Longitude
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO snapshots (
			vin, taken_at, mileage, battery_percent, range_km,
			charging_status, charger_connected, latitude, longitude, vehicle_json
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		v.VIN, takenAt.UTC(), state.CurrentMileage,
		state.ElectricChargingState.ChargingLevelPercent, state.Range,
		state.ElectricChargingState.ChargingStatus,
		state.ElectricChargingState.IsChargerConnected,
		latitude, longitude, string(vehicleJSON),
	)
	return err
}

// Latest returns the most recent snapshot for a VIN, or nil when none
// has been recorded yet.
func (s *Store) Latest(ctx context.Context, vin string) (*Snapshot, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT taken_at, vehicle_json
		FROM snapshots
		WHERE vin = ?
		ORDER BY taken_at DESC
		LIMIT 1
	`, vin)

	return scanSnapshot(row, vin)
}

// History returns up to limit snapshots for a VIN since the given
// time, newest first.
func (s *Store) History(ctx context.Context, vin string, since time.Time, limit int) ([]*Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT taken_at, vehicle_json
		FROM snapshots
		WHERE vin = ? AND taken_at >= ?
		ORDER BY taken_at DESC
		LIMIT ?
	`, vin, since.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var snapshots []*Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows, vin)
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, snap)
	}

	return snapshots, rows.Err()
}

// BatteryTrend returns (time, battery percent) pairs for a VIN since
// the given time, oldest first, straight from the indexed columns.
func (s *Store) BatteryTrend(ctx context.Context, vin string, since time.Time) ([]float64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT battery_percent
		FROM snapshots
		WHERE vin = ? AND taken_at >= ?
		ORDER BY taken_at ASC
	`, vin, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("query battery trend: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var levels []float64
	for rows.Next() {
		var level float64
		if err := rows.Scan(&level); err != nil {
			return nil, fmt.Errorf("scan battery level: %w", err)
		}
		levels = append(levels, level)
	}

	return levels, rows.Err()
}

// PruneBefore deletes snapshots older than the given time and reports
// how many were removed.
func (s *Store) PruneBefore(ctx context.Context, before time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM snapshots WHERE taken_at < ?
	`, before.UTC())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(row rowScanner, vin string) (*Snapshot, error) {
	var takenAt time.Time
	var vehicleJSON string
	err := row.Scan(&takenAt, &vehicleJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan snapshot: %w", err)
	}

	var vehicle fleet.Vehicle
	if err := json.Unmarshal([]byte(vehicleJSON), &vehicle); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}

	return &Snapshot{VIN: vin, TakenAt: takenAt, Vehicle: &vehicle}, nil
}
