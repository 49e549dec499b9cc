package domain

import (
	"fmt"
	"time"
)

// Metric types derived from WHOOP sleep activities.
const (
	MetricSlowWaveSleepMilli = "slow_wave_sleep_milli"
	MetricREMSleepMilli      = "rem_sleep_milli"
	MetricSleepPerformance   = "sleep_performance_pct"
)

// SyncCursor marks how far a user's health data has been ingested.
// LastSyncedAt is monotonically non-decreasing and advances only after the
// page it covers has been fully persisted.
type SyncCursor struct {
	UserID       string    `firestore:"user_id" json:"user_id"`
	LastSyncedAt time.Time `firestore:"last_synced_at" json:"last_synced_at"`
	LastRecordID string    `firestore:"last_record_id" json:"last_record_id"`
	UpdatedAt    time.Time `firestore:"updated_at" json:"updated_at"`
}

// HealthRecord is an immutable biometric snapshot. Records are append-only and
// deduplicated by (user_id, metric_type, recorded_at), so replaying a vendor
// page after a crash ingests nothing twice.
type HealthRecord struct {
	UserID     string    `firestore:"user_id" json:"user_id"`
	MetricType string    `firestore:"metric_type" json:"metric_type"`
	Value      float64   `firestore:"value" json:"value"`
	RecordedAt time.Time `firestore:"recorded_at" json:"recorded_at"`
	IngestedAt time.Time `firestore:"ingested_at" json:"ingested_at"`
}

// Key returns the natural dedup key, used as the document id.
func (r HealthRecord) Key() string {
	return fmt.Sprintf("%s_%s_%d", r.UserID, r.MetricType, r.RecordedAt.Unix())
}
