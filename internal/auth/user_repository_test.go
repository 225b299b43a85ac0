package auth

import (
	"context"
	"errors"
	"testing"
)

func TestUserRepository_CreateAndGet(t *testing.T) {
	db := testDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	user := &User{
		Email:        "grace@example.com",
		Username:     "grace",
		DisplayName:  "Grace",
		PasswordHash: "phc-hash",
	}
	if err := repo.Create(ctx, user); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if user.ID == "" {
		t.Fatal("Create() should generate an ID")
	}

	byID, err := repo.GetByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if byID.Username != "grace" {
		t.Errorf("Username = %q, want grace", byID.Username)
	}

	byName, err := repo.GetByUsername(ctx, "grace")
	if err != nil {
		t.Fatalf("GetByUsername() error = %v", err)
	}
	if byName.ID != user.ID {
		t.Errorf("GetByUsername() ID = %q, want %q", byName.ID, user.ID)
	}

	byEmail, err := repo.GetByEmail(ctx, "grace@example.com")
	if err != nil {
		t.Fatalf("GetByEmail() error = %v", err)
	}
	if byEmail.ID != user.ID {
		t.Errorf("GetByEmail() ID = %q, want %q", byEmail.ID, user.ID)
	}
}

func TestUserRepository_UniqueConstraints(t *testing.T) {
	db := testDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	first := &User{Email: "heidi@example.com", Username: "heidi", DisplayName: "Heidi", PasswordHash: "x"}
	if err := repo.Create(ctx, first); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	dupEmail := &User{Email: "heidi@example.com", Username: "other", DisplayName: "Other", PasswordHash: "x"}
	if err := repo.Create(ctx, dupEmail); !errors.Is(err, ErrEmailExists) {
		t.Errorf("duplicate email error = %v, want ErrEmailExists", err)
	}

	dupName := &User{Email: "other@example.com", Username: "heidi", DisplayName: "Other", PasswordHash: "x"}
	if err := repo.Create(ctx, dupName); !errors.Is(err, ErrUsernameExists) {
		t.Errorf("duplicate username error = %v, want ErrUsernameExists", err)
	}
}

func TestUserRepository_UpdatePasswordAndDelete(t *testing.T) {
	db := testDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	user := &User{Email: "ivan@example.com", Username: "ivan", DisplayName: "Ivan", PasswordHash: "old"}
	if err := repo.Create(ctx, user); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if err := repo.UpdatePassword(ctx, user.ID, "new"); err != nil {
		t.Fatalf("UpdatePassword() error = %v", err)
	}
	got, _ := repo.GetByID(ctx, user.ID)
	if got.PasswordHash != "new" {
		t.Errorf("PasswordHash = %q, want new", got.PasswordHash)
	}

	if err := repo.Delete(ctx, user.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := repo.GetByID(ctx, user.ID); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("GetByID() after delete error = %v, want ErrUserNotFound", err)
	}
	if err := repo.UpdatePassword(ctx, user.ID, "x"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("UpdatePassword() after delete error = %v, want ErrUserNotFound", err)
	}
}
