package location

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ZoneRepository defines the interface for zone persistence. Ownership is
// enforced through the parent room's user.
type ZoneRepository interface {
	Create(ctx context.Context, zone *Zone) error
	GetByID(ctx context.Context, userID, id string) (*Zone, error)
	List(ctx context.Context, userID string, roomID string) ([]Zone, error)
	Update(ctx context.Context, userID string, zone *Zone) error
	Delete(ctx context.Context, userID, id string) error
	MarkCleaned(ctx context.Context, userID, id string, cleanedAt time.Time) (*Zone, error)
	MarkCleanedBulk(ctx context.Context, userID string, ids []string, cleanedAt time.Time) (int64, error)
}

// SQLiteZoneRepository implements ZoneRepository using SQLite.
type SQLiteZoneRepository struct {
	db *sql.DB
}

// NewZoneRepository creates a new SQLite-backed zone repository.
func NewZoneRepository(db *sql.DB) *SQLiteZoneRepository {
	return &SQLiteZoneRepository{db: db}
}

const zoneColumns = `z.id, z.room_id, z.name, z.icon, z.frequency, z.custom_interval_days,
	 z.last_cleaned_at, z.created_at, z.updated_at`

// ownedZoneQuery joins through rooms so every lookup proves ownership.
const ownedZoneQuery = `SELECT ` + zoneColumns + `
	 FROM zones z JOIN rooms r ON r.id = z.room_id
	 WHERE z.deleted_at IS NULL AND r.deleted_at IS NULL AND r.user_id = ?`

// Create inserts a new zone. The ID is generated if empty and the
// frequency defaults to weekly.
func (r *SQLiteZoneRepository) Create(ctx context.Context, zone *Zone) error {
	if zone.ID == "" {
		zone.ID = "zone-" + uuid.NewString()[:16]
	}
	if zone.Frequency == "" {
		zone.Frequency = FrequencyWeekly
	}
	if _, err := ParseFrequency(string(zone.Frequency)); err != nil {
		return err
	}
	if zone.Frequency == FrequencyCustom && zone.CustomIntervalDays < 1 {
		return fmt.Errorf("%w: custom frequency needs an interval of at least one day", ErrInvalidFrequency)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	zone.CreatedAt, _ = time.Parse(time.RFC3339, now) //nolint:errcheck // format is controlled
	zone.UpdatedAt = zone.CreatedAt

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO zones (id, room_id, name, icon, frequency, custom_interval_days, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		zone.ID, zone.RoomID, zone.Name, nullString(zone.Icon),
		string(zone.Frequency), nullInt(zone.CustomIntervalDays), now, now,
	)
	if err != nil {
		return fmt.Errorf("creating zone: %w", err)
	}

	return nil
}

// GetByID retrieves a live zone owned by the user.
func (r *SQLiteZoneRepository) GetByID(ctx context.Context, userID, id string) (*Zone, error) {
	row := r.db.QueryRowContext(ctx, ownedZoneQuery+" AND z.id = ?", userID, id)

	zone, err := scanZone(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrZoneNotFound
		}
		return nil, fmt.Errorf("getting zone: %w", err)
	}
	return zone, nil
}

// List returns the user's live zones, optionally limited to one room.
func (r *SQLiteZoneRepository) List(ctx context.Context, userID string, roomID string) ([]Zone, error) {
	query := ownedZoneQuery
	args := []any{userID}
	if roomID != "" {
		query += " AND z.room_id = ?"
		args = append(args, roomID)
	}
	query += " ORDER BY z.created_at"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing zones: %w", err)
	}
	defer rows.Close()

	var zones []Zone
	for rows.Next() {
		zone, err := scanZone(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning zone: %w", err)
		}
		zones = append(zones, *zone)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating zones: %w", err)
	}

	if zones == nil {
		zones = []Zone{}
	}
	return zones, nil
}

// Update modifies a zone's name, icon and schedule.
func (r *SQLiteZoneRepository) Update(ctx context.Context, userID string, zone *Zone) error {
	if _, err := ParseFrequency(string(zone.Frequency)); err != nil {
		return err
	}
	if zone.Frequency == FrequencyCustom && zone.CustomIntervalDays < 1 {
		return fmt.Errorf("%w: custom frequency needs an interval of at least one day", ErrInvalidFrequency)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	zone.UpdatedAt, _ = time.Parse(time.RFC3339, now) //nolint:errcheck // format is controlled

	result, err := r.db.ExecContext(ctx,
		`UPDATE zones SET name = ?, icon = ?, frequency = ?, custom_interval_days = ?, updated_at = ?
		 WHERE id = ? AND deleted_at IS NULL
		   AND room_id IN (SELECT id FROM rooms WHERE user_id = ? AND deleted_at IS NULL)`,
		zone.Name, nullString(zone.Icon), string(zone.Frequency),
		nullInt(zone.CustomIntervalDays), now, zone.ID, userID,
	)
	if err != nil {
		return fmt.Errorf("updating zone: %w", err)
	}

	affected, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if affected == 0 {
		return ErrZoneNotFound
	}
	return nil
}

// Delete soft-deletes a zone.
func (r *SQLiteZoneRepository) Delete(ctx context.Context, userID, id string) error {
	now := time.Now().UTC().Format(time.RFC3339)

	result, err := r.db.ExecContext(ctx,
		`UPDATE zones SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL
		   AND room_id IN (SELECT id FROM rooms WHERE user_id = ? AND deleted_at IS NULL)`,
		now, id, userID)
	if err != nil {
		return fmt.Errorf("deleting zone: %w", err)
	}

	affected, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if affected == 0 {
		return ErrZoneNotFound
	}
	return nil
}

// MarkCleaned records a cleaning and returns the updated zone.
func (r *SQLiteZoneRepository) MarkCleaned(ctx context.Context, userID, id string, cleanedAt time.Time) (*Zone, error) {
	stamp := cleanedAt.UTC().Format(time.RFC3339)

	result, err := r.db.ExecContext(ctx,
		`UPDATE zones SET last_cleaned_at = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL
		   AND room_id IN (SELECT id FROM rooms WHERE user_id = ? AND deleted_at IS NULL)`,
		stamp, stamp, id, userID)
	if err != nil {
		return nil, fmt.Errorf("marking zone cleaned: %w", err)
	}

	affected, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if affected == 0 {
		return nil, ErrZoneNotFound
	}

	return r.GetByID(ctx, userID, id)
}

// MarkCleanedBulk records one cleaning time across many zones. Zones the
// user does not own are silently skipped; returns how many were updated.
func (r *SQLiteZoneRepository) MarkCleanedBulk(ctx context.Context, userID string, ids []string, cleanedAt time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	stamp := cleanedAt.UTC().Format(time.RFC3339)
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")

	args := []any{stamp, stamp}
	for _, id := range ids {
		args = append(args, id)
	}
	args = append(args, userID)

	query := fmt.Sprintf( //nolint:gosec // placeholders are generated, values are bound
		`UPDATE zones SET last_cleaned_at = ?, updated_at = ? WHERE id IN (%s) AND deleted_at IS NULL
		   AND room_id IN (SELECT id FROM rooms WHERE user_id = ? AND deleted_at IS NULL)`,
		placeholders)

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("bulk marking zones cleaned: %w", err)
	}

	count, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	return count, nil
}

func scanZone(row rowScanner) (*Zone, error) {
	var z Zone
	var icon sql.NullString
	var customDays sql.NullInt64
	var lastCleaned sql.NullString
	var frequency, createdAt, updatedAt string

	err := row.Scan(&z.ID, &z.RoomID, &z.Name, &icon, &frequency, &customDays,
		&lastCleaned, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	if icon.Valid {
		z.Icon = icon.String
	}
	z.Frequency = Frequency(frequency)
	if customDays.Valid {
		z.CustomIntervalDays = int(customDays.Int64)
	}
	if lastCleaned.Valid {
		t, _ := time.Parse(time.RFC3339, lastCleaned.String) //nolint:errcheck // format is controlled
		z.LastCleanedAt = &t
	}
	z.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled
	z.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt) //nolint:errcheck // format is controlled

	return &z, nil
}

func nullInt(n int) sql.NullInt64 {
	if n == 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(n), Valid: true}
}
