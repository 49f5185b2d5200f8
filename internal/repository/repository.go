package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/septivank/waterquality-analytics-worker/internal/db"
	"github.com/septivank/waterquality-analytics-worker/internal/fleet"
	"github.com/septivank/waterquality-analytics-worker/internal/timeseries"
)

// Repository handles database operations
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// LoadSeries materializes the readings of one sensor parameter in [from, to)
func (r *Repository) LoadSeries(ctx context.Context, sensorID, parameter string, from, to time.Time) (timeseries.Series, error) {
	query := `
		SELECT reading_timestamp, value
		FROM sensor_readings
		WHERE sensor_id = $1 AND parameter = $2
		  AND reading_timestamp >= $3 AND reading_timestamp < $4
		ORDER BY reading_timestamp
	`

	rows, err := r.pool.Query(ctx, query, sensorID, parameter, from, to)
	if err != nil {
		return timeseries.Series{}, fmt.Errorf("failed to query readings: %w", err)
	}
	defer rows.Close()

	var samples []timeseries.Sample
	for rows.Next() {
		var (
			ts    time.Time
			value *float64
		)
		if err := rows.Scan(&ts, &value); err != nil {
			return timeseries.Series{}, fmt.Errorf("failed to scan reading: %w", err)
		}
		samples = append(samples, toSample(ts, value))
	}

	if err := rows.Err(); err != nil {
		return timeseries.Series{}, fmt.Errorf("rows iteration error: %w", err)
	}

	return timeseries.New(samples)
}

// LoadPair loads two parameters of one sensor and aligns them on their
// shared timestamps.
func (r *Repository) LoadPair(ctx context.Context, sensorID, paramX, paramY string, from, to time.Time) (timeseries.Pair, error) {
	x, err := r.LoadSeries(ctx, sensorID, paramX, from, to)
	if err != nil {
		return timeseries.Pair{}, err
	}
	y, err := r.LoadSeries(ctx, sensorID, paramY, from, to)
	if err != nil {
		return timeseries.Pair{}, err
	}
	return timeseries.AlignPair(x, y), nil
}

// LoadFleet materializes every (sensor, parameter) series in [from, to). An
// empty sensorIDs slice selects all sensors.
func (r *Repository) LoadFleet(ctx context.Context, sensorIDs, parameters []string, from, to time.Time) (map[fleet.Key]timeseries.Series, error) {
	query := `
		SELECT sensor_id, parameter, reading_timestamp, value
		FROM sensor_readings
		WHERE (cardinality($1::text[]) = 0 OR sensor_id = ANY($1))
		  AND parameter = ANY($2)
		  AND reading_timestamp >= $3 AND reading_timestamp < $4
		ORDER BY sensor_id, parameter, reading_timestamp
	`

	if sensorIDs == nil {
		sensorIDs = []string{}
	}

	rows, err := r.pool.Query(ctx, query, sensorIDs, parameters, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query fleet readings: %w", err)
	}
	defer rows.Close()

	grouped := make(map[fleet.Key][]timeseries.Sample)
	for rows.Next() {
		var reading db.SensorReading
		if err := rows.Scan(&reading.SensorID, &reading.Parameter, &reading.ReadingTimestamp, &reading.Value); err != nil {
			return nil, fmt.Errorf("failed to scan fleet reading: %w", err)
		}
		key := fleet.Key{SensorID: reading.SensorID, Parameter: reading.Parameter}
		grouped[key] = append(grouped[key], toSample(reading.ReadingTimestamp, reading.Value))
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	out := make(map[fleet.Key]timeseries.Series, len(grouped))
	for key, samples := range grouped {
		series, err := timeseries.New(samples)
		if err != nil {
			return nil, fmt.Errorf("sensor %s %s: %w", key.SensorID, key.Parameter, err)
		}
		out[key] = series
	}
	return out, nil
}

// InsertAnalysisRun stores the outcome of an analysis request
func (r *Repository) InsertAnalysisRun(ctx context.Context, run *db.AnalysisRun) error {
	query := `
		INSERT INTO analysis_runs (
			id, request_id, kind, status, params, result, error, started_at, completed_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.pool.Exec(ctx, query,
		run.ID,
		run.RequestID,
		run.Kind,
		run.Status,
		run.Params,
		run.Result,
		run.Error,
		run.StartedAt,
		run.CompletedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to insert analysis run: %w", err)
	}

	return nil
}

func toSample(ts time.Time, value *float64) timeseries.Sample {
	if value == nil {
		return timeseries.Sample{Timestamp: ts, Value: timeseries.Missing}
	}
	return timeseries.Sample{Timestamp: ts, Value: *value}
}
