package repo

import (
	"context"
	"database/sql"
	"time"

	"github.com/didi/gendry/builder"

	"github.com/railsense/railsense/internal/model"
	"github.com/railsense/railsense/internal/pkg/dbutil"
)

type EventRepo struct {
	db *sql.DB
}

func NewEventRepo(db *sql.DB) *EventRepo {
	return &EventRepo{db: db}
}

// ReplaceWindow swaps the consolidated events overlapping [from, to] for a
// freshly computed set, in one transaction. Re-running detection over the
// same window therefore converges instead of accumulating duplicates.
func (r *EventRepo) ReplaceWindow(ctx context.Context, from, to time.Time, events []model.AnomalyEvent) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	const del = `DELETE FROM anomaly_events WHERE start_ts <= $1 AND end_ts >= $2`
	if _, err := tx.ExecContext(ctx, del, to, from); err != nil {
		return err
	}
	if len(events) > 0 {
		rows := make([]map[string]interface{}, 0, len(events))
		for _, ev := range events {
			rows = append(rows, map[string]interface{}{
				"start_ts":      ev.StartTs,
				"end_ts":        ev.EndTs,
				"duration_secs": ev.DurationSecs,
				"peak_sensors":  ev.PeakSensors,
			})
		}
		sqlStr, args, err := builder.BuildInsert("anomaly_events", rows)
		if err != nil {
			return err
		}
		sqlStr, args = dbutil.Finalize(sqlStr, args)
		if _, err := tx.ExecContext(ctx, sqlStr, args...); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ListOverlapping returns events intersecting [from, to] strictly longer
// than minDuration, ordered by start time.
func (r *EventRepo) ListOverlapping(ctx context.Context, from, to time.Time, minDuration time.Duration) ([]model.AnomalyEvent, error) {
	const query = `
		SELECT id, start_ts, end_ts, duration_secs, peak_sensors, created_at
		FROM anomaly_events
		WHERE duration_secs > $1
		  AND ((start_ts >= $2 AND start_ts <= $3) OR (end_ts >= $2 AND end_ts <= $3))
		ORDER BY start_ts ASC
	`
	rows, err := r.db.QueryContext(ctx, query, int64(minDuration.Seconds()), from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.AnomalyEvent
	for rows.Next() {
		var ev model.AnomalyEvent
		if err := rows.Scan(&ev.ID, &ev.StartTs, &ev.EndTs, &ev.DurationSecs, &ev.PeakSensors, &ev.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}
