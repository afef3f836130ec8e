package model

import "time"

// DetectionResult is the per-sensor per-timestamp scoring row. Keyed by
// (sensor, ts), append-only after detection.
type DetectionResult struct {
	Sensor     string    `db:"sensor"`
	Ts         time.Time `db:"ts"`
	Yhat       float64   `db:"yhat"`
	YhatLower  float64   `db:"yhat_lower"`
	YhatUpper  float64   `db:"yhat_upper"`
	Actual     float64   `db:"actual"`
	Residual   float64   `db:"residual"`
	OutOfRange bool      `db:"out_of_range"`
}

// AnomalyEvent is a consolidated run of timestamps where the out-of-range
// sensor count exceeded the quorum.
type AnomalyEvent struct {
	ID           int64     `db:"id" json:"event_id"`
	StartTs      time.Time `db:"start_ts" json:"anomaly_start_ts"`
	EndTs        time.Time `db:"end_ts" json:"anomaly_end_ts"`
	DurationSecs int64     `db:"duration_secs" json:"event_duration_in_secs"`
	PeakSensors  int       `db:"peak_sensors" json:"peak_sensors_out_of_range"`
	CreatedAt    time.Time `db:"created_at" json:"-"`
}
