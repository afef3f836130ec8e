package repo

import (
	"context"
	"database/sql"
	"time"

	"github.com/didi/gendry/builder"

	"github.com/railsense/railsense/internal/model"
	"github.com/railsense/railsense/internal/pkg/dbutil"
)

type ResultRepo struct {
	db *sql.DB
}

func NewResultRepo(db *sql.DB) *ResultRepo {
	return &ResultRepo{db: db}
}

// BatchUpsert writes scoring rows. Detection is deterministic, so replacing
// an existing (sensor, ts) row with a re-scored one is a no-op in content.
func (r *ResultRepo) BatchUpsert(ctx context.Context, results []model.DetectionResult) error {
	if len(results) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	const onConflict = ` ON CONFLICT (sensor, ts) DO UPDATE SET
		yhat = EXCLUDED.yhat,
		yhat_lower = EXCLUDED.yhat_lower,
		yhat_upper = EXCLUDED.yhat_upper,
		actual = EXCLUDED.actual,
		residual = EXCLUDED.residual,
		out_of_range = EXCLUDED.out_of_range`
	for start := 0; start < len(results); start += insertBatchSize {
		end := start + insertBatchSize
		if end > len(results) {
			end = len(results)
		}
		rows := make([]map[string]interface{}, 0, end-start)
		for _, res := range results[start:end] {
			rows = append(rows, map[string]interface{}{
				"sensor":       res.Sensor,
				"ts":           res.Ts,
				"yhat":         res.Yhat,
				"yhat_lower":   res.YhatLower,
				"yhat_upper":   res.YhatUpper,
				"actual":       res.Actual,
				"residual":     res.Residual,
				"out_of_range": res.OutOfRange,
			})
		}
		sqlStr, args, err := builder.BuildInsert("detection_results", rows)
		if err != nil {
			return err
		}
		sqlStr, args = dbutil.Finalize(sqlStr+onConflict, args)
		if _, err := tx.ExecContext(ctx, sqlStr, args...); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ListBySensor returns one sensor's scoring rows in [from, to], ordered by ts.
func (r *ResultRepo) ListBySensor(ctx context.Context, sensor string, from, to time.Time) ([]model.DetectionResult, error) {
	const query = `
		SELECT sensor, ts, yhat, yhat_lower, yhat_upper, actual, residual, out_of_range
		FROM detection_results
		WHERE sensor = $1 AND ts >= $2 AND ts <= $3
		ORDER BY ts ASC
	`
	rows, err := r.db.QueryContext(ctx, query, sensor, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.DetectionResult
	for rows.Next() {
		var item model.DetectionResult
		if err := rows.Scan(&item.Sensor, &item.Ts, &item.Yhat, &item.YhatLower,
			&item.YhatUpper, &item.Actual, &item.Residual, &item.OutOfRange); err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

// OutOfRangeSeconds counts flagged rows per sensor in [from, to]. Rows sit
// on the resampled grid; callers multiply by the step to get seconds out of
// range, the sensor-importance proxy the agent reports.
func (r *ResultRepo) OutOfRangeSeconds(ctx context.Context, from, to time.Time) (map[string]int64, error) {
	const query = `
		SELECT sensor, COUNT(*) FROM detection_results
		WHERE ts >= $1 AND ts <= $2 AND out_of_range
		GROUP BY sensor
	`
	rows, err := r.db.QueryContext(ctx, query, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]int64, len(model.AnalogSensors))
	for _, s := range model.AnalogSensors {
		out[s] = 0
	}
	for rows.Next() {
		var sensor string
		var count int64
		if err := rows.Scan(&sensor, &count); err != nil {
			return nil, err
		}
		out[sensor] = count
	}
	return out, rows.Err()
}
