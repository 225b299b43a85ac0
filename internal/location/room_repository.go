package location

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RoomRepository defines the interface for room persistence. All lookups
// are scoped to a user; one user can never see another's rooms.
type RoomRepository interface {
	Create(ctx context.Context, room *Room) error
	GetByID(ctx context.Context, userID, id string) (*Room, error)
	List(ctx context.Context, userID string) ([]Room, error)
	Update(ctx context.Context, room *Room) error
	Delete(ctx context.Context, userID, id string) error
}

// SQLiteRoomRepository implements RoomRepository using SQLite.
type SQLiteRoomRepository struct {
	db *sql.DB
}

// NewRoomRepository creates a new SQLite-backed room repository.
func NewRoomRepository(db *sql.DB) *SQLiteRoomRepository {
	return &SQLiteRoomRepository{db: db}
}

// Create inserts a new room. The ID is generated if empty.
func (r *SQLiteRoomRepository) Create(ctx context.Context, room *Room) error {
	if room.ID == "" {
		room.ID = "room-" + uuid.NewString()[:16]
	}

	now := time.Now().UTC().Format(time.RFC3339)
	room.CreatedAt, _ = time.Parse(time.RFC3339, now) //nolint:errcheck // format is controlled
	room.UpdatedAt = room.CreatedAt

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO rooms (id, user_id, name, icon, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		room.ID, room.UserID, room.Name, nullString(room.Icon), now, now,
	)
	if err != nil {
		return fmt.Errorf("creating room: %w", err)
	}

	return nil
}

// GetByID retrieves a live room owned by the user.
func (r *SQLiteRoomRepository) GetByID(ctx context.Context, userID, id string) (*Room, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, name, icon, created_at, updated_at
		 FROM rooms WHERE id = ? AND user_id = ? AND deleted_at IS NULL`, id, userID)

	room, err := scanRoom(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrRoomNotFound
		}
		return nil, fmt.Errorf("getting room: %w", err)
	}
	return room, nil
}

// List returns the user's live rooms ordered by creation time.
func (r *SQLiteRoomRepository) List(ctx context.Context, userID string) ([]Room, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, name, icon, created_at, updated_at
		 FROM rooms WHERE user_id = ? AND deleted_at IS NULL ORDER BY created_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("listing rooms: %w", err)
	}
	defer rows.Close()

	var rooms []Room
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning room: %w", err)
		}
		rooms = append(rooms, *room)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rooms: %w", err)
	}

	if rooms == nil {
		rooms = []Room{}
	}
	return rooms, nil
}

// Update modifies a room's name and icon.
func (r *SQLiteRoomRepository) Update(ctx context.Context, room *Room) error {
	now := time.Now().UTC().Format(time.RFC3339)
	room.UpdatedAt, _ = time.Parse(time.RFC3339, now) //nolint:errcheck // format is controlled

	result, err := r.db.ExecContext(ctx,
		`UPDATE rooms SET name = ?, icon = ?, updated_at = ?
		 WHERE id = ? AND user_id = ? AND deleted_at IS NULL`,
		room.Name, nullString(room.Icon), now, room.ID, room.UserID,
	)
	if err != nil {
		return fmt.Errorf("updating room: %w", err)
	}

	affected, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if affected == 0 {
		return ErrRoomNotFound
	}
	return nil
}

// Delete soft-deletes a room and its zones.
func (r *SQLiteRoomRepository) Delete(ctx context.Context, userID, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning delete transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback is no-op after commit

	now := time.Now().UTC().Format(time.RFC3339)

	result, err := tx.ExecContext(ctx,
		"UPDATE rooms SET deleted_at = ? WHERE id = ? AND user_id = ? AND deleted_at IS NULL",
		now, id, userID)
	if err != nil {
		return fmt.Errorf("deleting room: %w", err)
	}
	affected, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if affected == 0 {
		return ErrRoomNotFound
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE zones SET deleted_at = ? WHERE room_id = ? AND deleted_at IS NULL",
		now, id); err != nil {
		return fmt.Errorf("deleting room zones: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing delete: %w", err)
	}
	return nil
}

// rowScanner abstracts *sql.Row and *sql.Rows for shared scan logic.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRoom(row rowScanner) (*Room, error) {
	var room Room
	var icon sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(&room.ID, &room.UserID, &room.Name, &icon, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	if icon.Valid {
		room.Icon = icon.String
	}
	room.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled
	room.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt) //nolint:errcheck // format is controlled

	return &room, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
