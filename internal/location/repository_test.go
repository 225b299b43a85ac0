package location

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// testDB creates a temporary SQLite database with the resource schema
// applied. The database file is cleaned up when the test completes.
func testDB(t *testing.T) *sql.DB {
	t.Helper()

	f, err := os.CreateTemp("", "location-test-*.db")
	if err != nil {
		t.Fatalf("creating temp db: %v", err)
	}
	dbPath := f.Name()
	f.Close()
	t.Cleanup(func() { os.Remove(dbPath) })

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=ON")
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	schemaSQL := `
		CREATE TABLE users (
			id TEXT PRIMARY KEY,
			email TEXT NOT NULL UNIQUE,
			username TEXT NOT NULL UNIQUE,
			display_name TEXT NOT NULL,
			password_hash TEXT NOT NULL,
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
			updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
		) STRICT;

		CREATE TABLE rooms (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			name TEXT NOT NULL,
			icon TEXT,
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
			updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
			deleted_at TEXT,
			FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
		) STRICT;

		CREATE TABLE zones (
			id TEXT PRIMARY KEY,
			room_id TEXT NOT NULL,
			name TEXT NOT NULL,
			icon TEXT,
			frequency TEXT NOT NULL DEFAULT 'weekly',
			custom_interval_days INTEGER,
			last_cleaned_at TEXT,
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
			updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
			deleted_at TEXT,
			FOREIGN KEY (room_id) REFERENCES rooms(id) ON DELETE CASCADE
		) STRICT;
	`
	if _, err := db.Exec(schemaSQL); err != nil {
		t.Fatalf("creating schema: %v", err)
	}

	return db
}

func seedTestUser(t *testing.T, db *sql.DB, username string) string {
	t.Helper()

	id := "user-" + uuid.NewString()[:16]
	_, err := db.Exec(
		`INSERT INTO users (id, email, username, display_name, password_hash)
		 VALUES (?, ?, ?, ?, ?)`,
		id, username+"@example.com", username, username, "x")
	if err != nil {
		t.Fatalf("seeding user: %v", err)
	}
	return id
}

func TestRoomRepository_Lifecycle(t *testing.T) {
	db := testDB(t)
	userID := seedTestUser(t, db, "mallory")
	otherID := seedTestUser(t, db, "other")
	repo := NewRoomRepository(db)
	ctx := context.Background()

	room := &Room{UserID: userID, Name: "Kitchen", Icon: "pot"}
	if err := repo.Create(ctx, room); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	got, err := repo.GetByID(ctx, userID, room.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Name != "Kitchen" || got.Icon != "pot" {
		t.Errorf("got (%q, %q), want (Kitchen, pot)", got.Name, got.Icon)
	}

	// Another user cannot see it
	if _, err := repo.GetByID(ctx, otherID, room.ID); !errors.Is(err, ErrRoomNotFound) {
		t.Errorf("cross-user GetByID() error = %v, want ErrRoomNotFound", err)
	}

	room.Name = "Kitchen v2"
	if err := repo.Update(ctx, room); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	rooms, err := repo.List(ctx, userID)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(rooms) != 1 || rooms[0].Name != "Kitchen v2" {
		t.Errorf("List() = %+v, want one renamed room", rooms)
	}

	if err := repo.Delete(ctx, userID, room.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := repo.GetByID(ctx, userID, room.ID); !errors.Is(err, ErrRoomNotFound) {
		t.Errorf("GetByID() after delete error = %v, want ErrRoomNotFound", err)
	}
	if err := repo.Delete(ctx, userID, room.ID); !errors.Is(err, ErrRoomNotFound) {
		t.Errorf("second Delete() error = %v, want ErrRoomNotFound", err)
	}
}

func TestZoneRepository_Lifecycle(t *testing.T) {
	db := testDB(t)
	userID := seedTestUser(t, db, "nina")
	rooms := NewRoomRepository(db)
	zones := NewZoneRepository(db)
	ctx := context.Background()

	room := &Room{UserID: userID, Name: "Bathroom"}
	if err := rooms.Create(ctx, room); err != nil {
		t.Fatalf("Create() room error = %v", err)
	}

	zone := &Zone{RoomID: room.ID, Name: "Shower"}
	if err := zones.Create(ctx, zone); err != nil {
		t.Fatalf("Create() zone error = %v", err)
	}
	if zone.Frequency != FrequencyWeekly {
		t.Errorf("Frequency = %q, want weekly default", zone.Frequency)
	}

	got, err := zones.GetByID(ctx, userID, zone.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.LastCleanedAt != nil {
		t.Error("new zone should have no cleaning record")
	}
	if !got.IsDue(time.Now()) {
		t.Error("never-cleaned zone should be due")
	}

	cleaned, err := zones.MarkCleaned(ctx, userID, zone.ID, time.Now())
	if err != nil {
		t.Fatalf("MarkCleaned() error = %v", err)
	}
	if cleaned.LastCleanedAt == nil {
		t.Fatal("MarkCleaned() should record the time")
	}
	if cleaned.IsDue(time.Now()) {
		t.Error("freshly cleaned weekly zone should not be due")
	}

	if err := zones.Delete(ctx, userID, zone.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := zones.GetByID(ctx, userID, zone.ID); !errors.Is(err, ErrZoneNotFound) {
		t.Errorf("GetByID() after delete error = %v, want ErrZoneNotFound", err)
	}
}

func TestZoneRepository_CustomFrequencyValidation(t *testing.T) {
	db := testDB(t)
	userID := seedTestUser(t, db, "oscar")
	rooms := NewRoomRepository(db)
	zones := NewZoneRepository(db)
	ctx := context.Background()

	room := &Room{UserID: userID, Name: "Garage"}
	if err := rooms.Create(ctx, room); err != nil {
		t.Fatalf("Create() room error = %v", err)
	}

	bad := &Zone{RoomID: room.ID, Name: "Floor", Frequency: FrequencyCustom}
	if err := zones.Create(ctx, bad); !errors.Is(err, ErrInvalidFrequency) {
		t.Errorf("custom without interval error = %v, want ErrInvalidFrequency", err)
	}

	bogus := &Zone{RoomID: room.ID, Name: "Floor", Frequency: "hourly"}
	if err := zones.Create(ctx, bogus); !errors.Is(err, ErrInvalidFrequency) {
		t.Errorf("unknown frequency error = %v, want ErrInvalidFrequency", err)
	}

	good := &Zone{RoomID: room.ID, Name: "Floor", Frequency: FrequencyCustom, CustomIntervalDays: 3}
	if err := zones.Create(ctx, good); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	got, _ := zones.GetByID(ctx, userID, good.ID)
	if got.CustomIntervalDays != 3 {
		t.Errorf("CustomIntervalDays = %d, want 3", got.CustomIntervalDays)
	}
}

func TestZoneRepository_MarkCleanedBulk(t *testing.T) {
	db := testDB(t)
	userID := seedTestUser(t, db, "peggy")
	intruderID := seedTestUser(t, db, "intruder")
	rooms := NewRoomRepository(db)
	zones := NewZoneRepository(db)
	ctx := context.Background()

	room := &Room{UserID: userID, Name: "Hall"}
	rooms.Create(ctx, room) //nolint:errcheck // test setup

	z1 := &Zone{RoomID: room.ID, Name: "Floor"}
	z2 := &Zone{RoomID: room.ID, Name: "Windows"}
	zones.Create(ctx, z1) //nolint:errcheck // test setup
	zones.Create(ctx, z2) //nolint:errcheck // test setup

	count, err := zones.MarkCleanedBulk(ctx, userID, []string{z1.ID, z2.ID, "zone-bogus"}, time.Now())
	if err != nil {
		t.Fatalf("MarkCleanedBulk() error = %v", err)
	}
	if count != 2 {
		t.Errorf("MarkCleanedBulk() = %d, want 2", count)
	}

	// Another user's bulk clean touches nothing
	count, err = zones.MarkCleanedBulk(ctx, intruderID, []string{z1.ID}, time.Now())
	if err != nil {
		t.Fatalf("MarkCleanedBulk() error = %v", err)
	}
	if count != 0 {
		t.Errorf("cross-user MarkCleanedBulk() = %d, want 0", count)
	}
}

func TestRoomDelete_CascadesToZones(t *testing.T) {
	db := testDB(t)
	userID := seedTestUser(t, db, "quinn")
	rooms := NewRoomRepository(db)
	zones := NewZoneRepository(db)
	ctx := context.Background()

	room := &Room{UserID: userID, Name: "Office"}
	rooms.Create(ctx, room) //nolint:errcheck // test setup
	zone := &Zone{RoomID: room.ID, Name: "Desk"}
	zones.Create(ctx, zone) //nolint:errcheck // test setup

	if err := rooms.Delete(ctx, userID, room.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := zones.GetByID(ctx, userID, zone.ID); !errors.Is(err, ErrZoneNotFound) {
		t.Errorf("zone of deleted room error = %v, want ErrZoneNotFound", err)
	}
}
