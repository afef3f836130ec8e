package repo

import (
	"context"
	"database/sql"
	"time"

	"github.com/didi/gendry/builder"

	"github.com/railsense/railsense/internal/model"
	"github.com/railsense/railsense/internal/pkg/dbutil"
)

const insertBatchSize = 500

type ReadingRepo struct {
	db *sql.DB
}

func NewReadingRepo(db *sql.DB) *ReadingRepo {
	return &ReadingRepo{db: db}
}

// BatchInsert loads readings in chunks inside one transaction. Duplicate
// (sensor, ts) pairs are ignored so re-running an ingest is harmless.
func (r *ReadingRepo) BatchInsert(ctx context.Context, readings []model.SensorReading) error {
	if len(readings) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for start := 0; start < len(readings); start += insertBatchSize {
		end := start + insertBatchSize
		if end > len(readings) {
			end = len(readings)
		}
		rows := make([]map[string]interface{}, 0, end-start)
		for _, reading := range readings[start:end] {
			rows = append(rows, map[string]interface{}{
				"ts":     reading.Ts,
				"sensor": reading.Sensor,
				"value":  reading.Value,
			})
		}
		sqlStr, args, err := builder.BuildInsert("sensor_readings", rows)
		if err != nil {
			return err
		}
		sqlStr, args = dbutil.Finalize(sqlStr+" ON CONFLICT (sensor, ts) DO NOTHING", args)
		if _, err := tx.ExecContext(ctx, sqlStr, args...); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ListSeries returns one sensor's readings in [from, to], ordered by ts.
func (r *ReadingRepo) ListSeries(ctx context.Context, sensor string, from, to time.Time) ([]model.SensorReading, error) {
	const query = `
		SELECT ts, sensor, value FROM sensor_readings
		WHERE sensor = $1 AND ts >= $2 AND ts <= $3
		ORDER BY ts ASC
	`
	rows, err := r.db.QueryContext(ctx, query, sensor, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.SensorReading
	for rows.Next() {
		var item model.SensorReading
		if err := rows.Scan(&item.Ts, &item.Sensor, &item.Value); err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

// SumBySensors totals raw values per sensor in [from, to]. For digital
// sensors at 1 Hz this is seconds activated.
func (r *ReadingRepo) SumBySensors(ctx context.Context, sensors []string, from, to time.Time) (map[string]int64, error) {
	where := map[string]interface{}{
		"sensor in": sensors,
		"ts >=":     from,
		"ts <=":     to,
		"_groupby":  "sensor",
	}
	sqlStr, args, err := builder.BuildSelect("sensor_readings", where, []string{"sensor", "COALESCE(SUM(value), 0)"})
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]int64, len(sensors))
	for _, s := range sensors {
		out[s] = 0
	}
	for rows.Next() {
		var sensor string
		var total float64
		if err := rows.Scan(&sensor, &total); err != nil {
			return nil, err
		}
		out[sensor] = int64(total)
	}
	return out, rows.Err()
}

// LatestTs reports the newest reading timestamp, or zero when empty.
func (r *ReadingRepo) LatestTs(ctx context.Context) (time.Time, error) {
	return r.boundaryTs(ctx, `SELECT MAX(ts) FROM sensor_readings`)
}

// EarliestTs reports the oldest reading timestamp, or zero when empty.
func (r *ReadingRepo) EarliestTs(ctx context.Context) (time.Time, error) {
	return r.boundaryTs(ctx, `SELECT MIN(ts) FROM sensor_readings`)
}

func (r *ReadingRepo) boundaryTs(ctx context.Context, query string) (time.Time, error) {
	var ts sql.NullTime
	if err := r.db.QueryRowContext(ctx, query).Scan(&ts); err != nil {
		return time.Time{}, err
	}
	if !ts.Valid {
		return time.Time{}, nil
	}
	return ts.Time, nil
}
