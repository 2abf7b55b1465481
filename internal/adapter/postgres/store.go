package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/seawhisper/alert-monitor/internal/domain"
)

const (
	readingColumns = `id, location, lat, lon, temperature, rainfall, wind, salinity, oxygen, ph, condition, observed_at, created_at`
	alertColumns   = `id, parameter, value, threshold, severity, location_name, lat, lon, status, message, created_at, updated_at`
)

// Store is a PostgreSQL-backed reading source and alert store.
type Store struct {
	db *sql.DB
}

// NewStore wraps an open database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// CheckReadiness pings the database.
func (s *Store) CheckReadiness(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// InsertReadings stores readings in one transaction, stamping CreatedAt.
func (s *Store) InsertReadings(ctx context.Context, readings []domain.Reading) error {
	if len(readings) == 0 {
		return nil
	}
	now := domain.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert readings: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO readings
		(location, lat, lon, temperature, rainfall, wind, salinity, oxygen, ph, condition, observed_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`)
	if err != nil {
		return fmt.Errorf("prepare insert reading: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, r := range readings {
		observed := r.ObservedAt
		if observed.IsZero() {
			observed = now
		}
		if _, err := stmt.ExecContext(ctx,
			r.Location, r.Lat, r.Lon, r.Temperature, r.Rainfall, r.Wind,
			nullFloat(r.Salinity), nullFloat(r.Oxygen), nullFloat(r.PH),
			r.Condition, observed.UTC(), now,
		); err != nil {
			return fmt.Errorf("insert reading: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit insert readings: %w", err)
	}
	return nil
}

// RecentSince returns up to limit readings created at or after since, oldest first.
func (s *Store) RecentSince(ctx context.Context, since time.Time, limit int) ([]domain.Reading, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+readingColumns+` FROM readings WHERE created_at >= $1 ORDER BY created_at, id LIMIT $2`,
		since.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("query recent readings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []domain.Reading
	for rows.Next() {
		var (
			r                    domain.Reading
			salinity, oxygen, ph sql.NullFloat64
		)
		if err := rows.Scan(&r.ID, &r.Location, &r.Lat, &r.Lon, &r.Temperature, &r.Rainfall, &r.Wind,
			&salinity, &oxygen, &ph, &r.Condition, &r.ObservedAt, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan reading: %w", err)
		}
		r.Salinity = floatPtr(salinity)
		r.Oxygen = floatPtr(oxygen)
		r.PH = floatPtr(ph)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate readings: %w", err)
	}
	return out, nil
}

// FindActive returns the active alert for the exact key, or nil.
func (s *Store) FindActive(ctx context.Context, p domain.Parameter, lat, lon float64) (*domain.Alert, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+alertColumns+` FROM alerts WHERE parameter = $1 AND lat = $2 AND lon = $3 AND status = 'active'`,
		string(p), lat, lon)
	a, err := scanAlert(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find active alert: %w", err)
	}
	return &a, nil
}

// Create inserts an active alert. The insert is conditional on the partial
// unique index; losing the race returns domain.ErrDuplicateActive.
func (s *Store) Create(ctx context.Context, draft domain.AlertDraft) (domain.Alert, error) {
	a := domain.NewAlert(draft)

	var id string
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO alerts (`+alertColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (parameter, lat, lon) WHERE status = 'active' DO NOTHING
		RETURNING id`,
		a.ID, string(a.Parameter), a.Value, a.Threshold, string(a.Severity),
		a.Location.Name, a.Location.Lat, a.Location.Lon,
		string(a.Status), a.Message, a.CreatedAt, a.UpdatedAt,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Alert{}, domain.ErrDuplicateActive
	}
	if err != nil {
		return domain.Alert{}, fmt.Errorf("insert alert: %w", err)
	}
	return a, nil
}

// ListActive returns active alerts newest first, at most limit.
func (s *Store) ListActive(ctx context.Context, limit int) ([]domain.Alert, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+alertColumns+` FROM alerts WHERE status = 'active' ORDER BY created_at DESC LIMIT $1`,
		limit)
	if err != nil {
		return nil, fmt.Errorf("query active alerts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make([]domain.Alert, 0)
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate alerts: %w", err)
	}
	return out, nil
}

// Resolve marks an active alert resolved. Unknown, malformed or already
// resolved IDs return domain.ErrAlertNotFound.
func (s *Store) Resolve(ctx context.Context, id string) (domain.Alert, error) {
	if _, err := uuid.Parse(id); err != nil {
		return domain.Alert{}, domain.ErrAlertNotFound
	}

	row := s.db.QueryRowContext(ctx,
		`UPDATE alerts SET status = 'resolved', updated_at = $2
		WHERE id = $1 AND status = 'active'
		RETURNING `+alertColumns,
		id, domain.Now().UTC())
	a, err := scanAlert(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Alert{}, domain.ErrAlertNotFound
	}
	if err != nil {
		return domain.Alert{}, fmt.Errorf("resolve alert: %w", err)
	}
	return a, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAlert(row scanner) (domain.Alert, error) {
	var (
		a                   domain.Alert
		parameter, severity string
		status              string
	)
	err := row.Scan(&a.ID, &parameter, &a.Value, &a.Threshold, &severity,
		&a.Location.Name, &a.Location.Lat, &a.Location.Lon,
		&status, &a.Message, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return domain.Alert{}, err
	}
	a.Parameter = domain.Parameter(parameter)
	a.Severity = domain.Severity(severity)
	a.Status = domain.Status(status)
	return a, nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
