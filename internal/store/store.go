package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/eljaska/telara/pkg/logging"
	"github.com/eljaska/telara/pkg/models"
)

// timeLayout is a fixed-width UTC format so string comparison in SQLite
// matches chronological order.
const timeLayout = "2006-01-02T15:04:05.000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	if t, err := time.Parse(timeLayout, s); err == nil {
		return t
	}
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

// Store is the persistent batch tier: a single SQLite file holding vitals,
// alerts and learned baselines.
type Store struct {
	db     *sql.DB
	logger logging.Logger
}

// Open opens (creating if needed) the database at path and rebuilds the
// schema. Tables are dropped on every launch: each run is a fresh session
// and history is synthesized on demand.
func Open(path string, logger logging.Logger) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(30000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	// WAL gives one writer + concurrent readers; keep the pool small so the
	// flusher and the query path don't pile up writers.
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(0)

	s := &Store{db: db, logger: logger}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	logger.WithField("path", path).Info("Database initialized")
	return s, nil
}

func (s *Store) initSchema() error {
	stmts := []string{
		`DROP TABLE IF EXISTS vitals`,
		`DROP TABLE IF EXISTS alerts`,
		`DROP TABLE IF EXISTS user_baselines`,
		`CREATE TABLE vitals (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			event_id TEXT UNIQUE,
			timestamp DATETIME,
			user_id TEXT,
			source TEXT,
			source_name TEXT,
			heart_rate INTEGER,
			hrv_ms INTEGER,
			spo2_percent INTEGER,
			skin_temp_c REAL,
			respiratory_rate INTEGER,
			activity_level INTEGER,
			steps_per_minute INTEGER,
			calories_per_minute REAL,
			sleep_quality REAL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE alerts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			alert_id TEXT UNIQUE,
			timestamp DATETIME,
			end_time DATETIME,
			user_id TEXT,
			alert_type TEXT,
			severity TEXT,
			description TEXT,
			avg_value REAL,
			event_count INTEGER,
			ai_insight TEXT,
			resolved BOOLEAN DEFAULT FALSE,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE user_baselines (
			user_id TEXT PRIMARY KEY,
			avg_heart_rate REAL, std_heart_rate REAL,
			avg_hrv REAL, std_hrv REAL,
			avg_spo2 REAL, std_spo2 REAL,
			avg_temp REAL, std_temp REAL,
			avg_activity REAL, std_activity REAL,
			data_points INTEGER DEFAULT 0,
			updated_at DATETIME
		)`,
		`CREATE INDEX idx_vitals_user_timestamp ON vitals(user_id, timestamp)`,
		`CREATE INDEX idx_vitals_timestamp ON vitals(timestamp)`,
		`CREATE INDEX idx_alerts_severity_timestamp ON alerts(severity, timestamp)`,
		`CREATE INDEX idx_alerts_timestamp ON alerts(timestamp)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

// DB exposes the handle for health checks.
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) Close() error {
	return s.db.Close()
}

const insertVitalSQL = `INSERT INTO vitals (
		event_id, timestamp, user_id, source, source_name,
		heart_rate, hrv_ms, spo2_percent, skin_temp_c, respiratory_rate,
		activity_level, steps_per_minute, calories_per_minute, sleep_quality
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(event_id) DO UPDATE SET
		timestamp=excluded.timestamp,
		user_id=excluded.user_id,
		source=excluded.source,
		source_name=excluded.source_name,
		heart_rate=excluded.heart_rate,
		hrv_ms=excluded.hrv_ms,
		spo2_percent=excluded.spo2_percent,
		skin_temp_c=excluded.skin_temp_c,
		respiratory_rate=excluded.respiratory_rate,
		activity_level=excluded.activity_level,
		steps_per_minute=excluded.steps_per_minute,
		calories_per_minute=excluded.calories_per_minute,
		sleep_quality=excluded.sleep_quality`

// InsertVitals writes the batch in one transaction, upserting on event_id so
// redelivered events are absorbed.
func (s *Store) InsertVitals(ctx context.Context, events []*models.VitalEvent) error {
	if len(events) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin vitals batch: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, insertVitalSQL)
	if err != nil {
		return fmt.Errorf("prepare vitals insert: %w", err)
	}
	defer stmt.Close()

	for _, ev := range events {
		_, err := stmt.ExecContext(ctx,
			ev.EventID, formatTime(ev.Timestamp), ev.UserID, ev.Source, ev.SourceName,
			nullable(ev.HeartRate), nullable(ev.HRVMs), nullable(ev.SpO2Percent),
			nullable(ev.SkinTempC), nullable(ev.RespiratoryRate), nullable(ev.ActivityLevel),
			nullable(ev.StepsPerMinute), nullable(ev.CaloriesPerMinute), nullable(ev.SleepQuality),
		)
		if err != nil {
			return fmt.Errorf("insert vital %s: %w", ev.EventID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit vitals batch: %w", err)
	}
	return nil
}

func nullable(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

const selectVitalColumns = `event_id, timestamp, user_id, source, source_name,
	heart_rate, hrv_ms, spo2_percent, skin_temp_c, respiratory_rate,
	activity_level, steps_per_minute, calories_per_minute, sleep_quality`

func scanVital(scan func(dest ...interface{}) error) (*models.VitalEvent, error) {
	var (
		ev       models.VitalEvent
		ts       string
		srcName  sql.NullString
		hr, hrv  sql.NullFloat64
		spo2     sql.NullFloat64
		temp     sql.NullFloat64
		resp     sql.NullFloat64
		activity sql.NullFloat64
		steps    sql.NullFloat64
		calories sql.NullFloat64
		sleep    sql.NullFloat64
	)
	err := scan(&ev.EventID, &ts, &ev.UserID, &ev.Source, &srcName,
		&hr, &hrv, &spo2, &temp, &resp, &activity, &steps, &calories, &sleep)
	if err != nil {
		return nil, err
	}
	ev.Timestamp = parseTime(ts)
	ev.SourceName = srcName.String
	assign := func(name string, v sql.NullFloat64) {
		if v.Valid {
			ev.SetMetric(name, v.Float64)
		}
	}
	assign(models.MetricHeartRate, hr)
	assign(models.MetricHRV, hrv)
	assign(models.MetricSpO2, spo2)
	assign(models.MetricSkinTemp, temp)
	assign(models.MetricRespiratoryRate, resp)
	assign(models.MetricActivityLevel, activity)
	assign(models.MetricStepsPerMinute, steps)
	assign(models.MetricCalories, calories)
	assign(models.MetricSleepQuality, sleep)
	return &ev, nil
}

func (s *Store) queryVitals(ctx context.Context, query string, args ...interface{}) ([]*models.VitalEvent, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query vitals: %w", err)
	}
	defer rows.Close()

	var out []*models.VitalEvent
	for rows.Next() {
		ev, err := scanVital(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan vital: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// RecentVitals returns the user's events from the last N minutes, newest
// first.
func (s *Store) RecentVitals(ctx context.Context, userID string, minutes int) ([]*models.VitalEvent, error) {
	cutoff := formatTime(time.Now().Add(-time.Duration(minutes) * time.Minute))
	return s.queryVitals(ctx,
		`SELECT `+selectVitalColumns+` FROM vitals
		 WHERE user_id = ? AND timestamp > ?
		 ORDER BY timestamp DESC`, userID, cutoff)
}

// VitalsBetween returns the user's events in [from, to), oldest first.
func (s *Store) VitalsBetween(ctx context.Context, userID string, from, to time.Time) ([]*models.VitalEvent, error) {
	return s.queryVitals(ctx,
		`SELECT `+selectVitalColumns+` FROM vitals
		 WHERE user_id = ? AND timestamp >= ? AND timestamp < ?
		 ORDER BY timestamp ASC`, userID, formatTime(from), formatTime(to))
}

// LatestVital returns the user's most recent event, or nil.
func (s *Store) LatestVital(ctx context.Context, userID string) (*models.VitalEvent, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+selectVitalColumns+` FROM vitals
		 WHERE user_id = ?
		 ORDER BY timestamp DESC LIMIT 1`, userID)
	ev, err := scanVital(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest vital: %w", err)
	}
	return ev, nil
}

// VitalsStats is the aggregate summary over a window.
type VitalsStats struct {
	Count       int      `json:"count"`
	AvgHR       *float64 `json:"avg_hr"`
	MinHR       *float64 `json:"min_hr"`
	MaxHR       *float64 `json:"max_hr"`
	AvgHRV      *float64 `json:"avg_hrv"`
	AvgSpO2     *float64 `json:"avg_spo2"`
	AvgTemp     *float64 `json:"avg_temp"`
	AvgActivity *float64 `json:"avg_activity"`
}

// Stats aggregates the user's vitals over the last N hours.
func (s *Store) Stats(ctx context.Context, userID string, hours int) (VitalsStats, error) {
	cutoff := formatTime(time.Now().Add(-time.Duration(hours) * time.Hour))
	row := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
			AVG(heart_rate), MIN(heart_rate), MAX(heart_rate),
			AVG(hrv_ms), AVG(spo2_percent), AVG(skin_temp_c), AVG(activity_level)
		FROM vitals WHERE user_id = ? AND timestamp > ?`, userID, cutoff)

	var st VitalsStats
	var avgHR, minHR, maxHR, avgHRV, avgSpO2, avgTemp, avgActivity sql.NullFloat64
	if err := row.Scan(&st.Count, &avgHR, &minHR, &maxHR, &avgHRV, &avgSpO2, &avgTemp, &avgActivity); err != nil {
		return st, fmt.Errorf("vitals stats: %w", err)
	}
	st.AvgHR = floatPtr(avgHR)
	st.MinHR = floatPtr(minHR)
	st.MaxHR = floatPtr(maxHR)
	st.AvgHRV = floatPtr(avgHRV)
	st.AvgSpO2 = floatPtr(avgSpO2)
	st.AvgTemp = floatPtr(avgTemp)
	st.AvgActivity = floatPtr(avgActivity)
	return st, nil
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

// VitalsCount returns the total row count.
func (s *Store) VitalsCount(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM vitals`).Scan(&n)
	return n, err
}

// DeleteVitals removes all persisted vitals.
func (s *Store) DeleteVitals(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM vitals`)
	if err != nil {
		return 0, fmt.Errorf("delete vitals: %w", err)
	}
	return res.RowsAffected()
}

// InsertAlert upserts an alert keyed by alert_id.
func (s *Store) InsertAlert(ctx context.Context, alert *models.AlertEvent) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO alerts (alert_id, timestamp, end_time, user_id, alert_type,
			severity, description, avg_value, event_count, ai_insight)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(alert_id) DO UPDATE SET
			timestamp=excluded.timestamp,
			end_time=excluded.end_time,
			severity=excluded.severity,
			description=excluded.description,
			avg_value=excluded.avg_value,
			event_count=excluded.event_count`,
		alert.AlertID, formatTime(alert.StartTime), formatTime(alert.EndTime),
		alert.UserID, alert.AlertType, alert.Severity, alert.Description,
		alert.AvgValue, alert.EventCount, alert.Insight)
	if err != nil {
		return fmt.Errorf("insert alert %s: %w", alert.AlertID, err)
	}
	return nil
}

// UpdateAlertInsight stores the enrichment text for an alert.
func (s *Store) UpdateAlertInsight(ctx context.Context, alertID, insight string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE alerts SET ai_insight = ? WHERE alert_id = ?`, insight, alertID)
	if err != nil {
		return fmt.Errorf("update alert insight: %w", err)
	}
	return nil
}

func (s *Store) scanAlerts(rows *sql.Rows) ([]*models.AlertEvent, error) {
	defer rows.Close()
	var out []*models.AlertEvent
	for rows.Next() {
		var (
			a        models.AlertEvent
			ts, end  string
			insight  sql.NullString
			avgValue sql.NullFloat64
		)
		if err := rows.Scan(&a.AlertID, &ts, &end, &a.UserID, &a.AlertType,
			&a.Severity, &a.Description, &avgValue, &a.EventCount, &insight); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		a.StartTime = parseTime(ts)
		a.EndTime = parseTime(end)
		a.AvgValue = avgValue.Float64
		a.Insight = insight.String
		out = append(out, &a)
	}
	return out, rows.Err()
}

const selectAlertColumns = `alert_id, timestamp, end_time, user_id, alert_type,
	severity, description, avg_value, event_count, ai_insight`

// RecentAlerts returns the user's alerts from the last N hours, newest
// first, optionally filtered by severity.
func (s *Store) RecentAlerts(ctx context.Context, userID string, hours int, severity string) ([]*models.AlertEvent, error) {
	cutoff := formatTime(time.Now().Add(-time.Duration(hours) * time.Hour))
	query := `SELECT ` + selectAlertColumns + ` FROM alerts
		WHERE user_id = ? AND timestamp > ?`
	args := []interface{}{userID, cutoff}
	if severity != "" {
		query += ` AND severity = ?`
		args = append(args, severity)
	}
	query += ` ORDER BY timestamp DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	return s.scanAlerts(rows)
}

// AlertByID returns one alert, or nil when absent.
func (s *Store) AlertByID(ctx context.Context, alertID string) (*models.AlertEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+selectAlertColumns+` FROM alerts WHERE alert_id = ?`, alertID)
	if err != nil {
		return nil, fmt.Errorf("query alert: %w", err)
	}
	alerts, err := s.scanAlerts(rows)
	if err != nil || len(alerts) == 0 {
		return nil, err
	}
	return alerts[0], nil
}

// AlertCounts groups the user's alerts by severity over the last N hours.
func (s *Store) AlertCounts(ctx context.Context, userID string, hours int) (map[string]int, error) {
	now := time.Now()
	return s.AlertCountsBetween(ctx, userID, now.Add(-time.Duration(hours)*time.Hour), now)
}

// AlertCountsBetween groups the user's alerts by severity inside [from, to).
func (s *Store) AlertCountsBetween(ctx context.Context, userID string, from, to time.Time) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT severity, COUNT(*) FROM alerts
		WHERE user_id = ? AND timestamp >= ? AND timestamp < ?
		GROUP BY severity`, userID, formatTime(from), formatTime(to))
	if err != nil {
		return nil, fmt.Errorf("alert counts: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var severity string
		var count int
		if err := rows.Scan(&severity, &count); err != nil {
			return nil, fmt.Errorf("scan alert count: %w", err)
		}
		out[severity] = count
	}
	return out, rows.Err()
}

// UpsertBaseline persists the learned baseline aggregates for a user.
func (s *Store) UpsertBaseline(ctx context.Context, b models.Baseline) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_baselines (user_id, avg_heart_rate, std_heart_rate,
			avg_hrv, std_hrv, avg_spo2, std_spo2, avg_temp, std_temp,
			avg_activity, std_activity, data_points, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			avg_heart_rate=excluded.avg_heart_rate, std_heart_rate=excluded.std_heart_rate,
			avg_hrv=excluded.avg_hrv, std_hrv=excluded.std_hrv,
			avg_spo2=excluded.avg_spo2, std_spo2=excluded.std_spo2,
			avg_temp=excluded.avg_temp, std_temp=excluded.std_temp,
			avg_activity=excluded.avg_activity, std_activity=excluded.std_activity,
			data_points=excluded.data_points, updated_at=excluded.updated_at`,
		b.UserID, b.MeanHR, b.StdHR, b.MeanHRV, b.StdHRV, b.MeanSpO2, b.StdSpO2,
		b.MeanTemp, b.StdTemp, b.MeanActivity, b.StdActivity, b.DataPoints,
		formatTime(b.UpdatedAt))
	if err != nil {
		return fmt.Errorf("upsert baseline: %w", err)
	}
	return nil
}

// GetBaseline loads the persisted baseline for a user; ok is false when the
// user has none yet.
func (s *Store) GetBaseline(ctx context.Context, userID string) (models.Baseline, bool, error) {
	var b models.Baseline
	var updatedAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, avg_heart_rate, std_heart_rate, avg_hrv, std_hrv,
			avg_spo2, std_spo2, avg_temp, std_temp, avg_activity, std_activity,
			data_points, updated_at
		FROM user_baselines WHERE user_id = ?`, userID).Scan(
		&b.UserID, &b.MeanHR, &b.StdHR, &b.MeanHRV, &b.StdHRV,
		&b.MeanSpO2, &b.StdSpO2, &b.MeanTemp, &b.StdTemp,
		&b.MeanActivity, &b.StdActivity, &b.DataPoints, &updatedAt)
	if err == sql.ErrNoRows {
		return b, false, nil
	}
	if err != nil {
		return b, false, fmt.Errorf("get baseline: %w", err)
	}
	b.UpdatedAt = parseTime(updatedAt)
	return b, true, nil
}
