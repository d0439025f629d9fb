package auth

import (
	"context"
	"errors"
	"testing"

	domain "github.com/example/chat-backend/domain/user"
	"github.com/example/chat-backend/modules/database"
)

func setupRepository(t *testing.T) *UserRepository {
	t.Helper()

	db, err := database.OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory() error = %v", err)
	}
	if err := db.AutoMigrate(&domain.User{}); err != nil {
		t.Fatalf("AutoMigrate() error = %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return NewUserRepository(db)
}

func TestUserRepository_CreateAndFind(t *testing.T) {
	repo := setupRepository(t)
	ctx := context.Background()

	user := &domain.User{ID: "u1", Name: "ann", Email: "ann@example.com", PasswordHash: "x", ChatRooms: []string{"r1"}}
	if err := repo.Create(ctx, user); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	byID, err := repo.FindByID(ctx, "u1")
	if err != nil {
		t.Fatalf("FindByID() error = %v", err)
	}
	if len(byID.ChatRooms) != 1 || byID.ChatRooms[0] != "r1" {
		t.Errorf("ChatRooms = %v, want [r1]", byID.ChatRooms)
	}

	if _, err := repo.FindByEmail(ctx, "ann@example.com"); err != nil {
		t.Errorf("FindByEmail() error = %v", err)
	}

	if _, err := repo.FindByID(ctx, "missing"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("FindByID(missing) error = %v, want ErrUserNotFound", err)
	}
}

func TestUserRepository_UniqueConstraints(t *testing.T) {
	repo := setupRepository(t)
	ctx := context.Background()

	if err := repo.Create(ctx, &domain.User{ID: "u1", Name: "ann", Email: "ann@example.com", PasswordHash: "x"}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	tests := []struct {
		name string
		user *domain.User
	}{
		{name: "same email", user: &domain.User{ID: "u2", Name: "bob", Email: "ann@example.com", PasswordHash: "x"}},
		{name: "same name", user: &domain.User{ID: "u3", Name: "ann", Email: "bob@example.com", PasswordHash: "x"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := repo.Create(ctx, tt.user); !errors.Is(err, ErrUserExists) {
				t.Errorf("Create() error = %v, want ErrUserExists", err)
			}
		})
	}

	exists, err := repo.Exists(ctx, "nobody@example.com", "ann")
	if err != nil || !exists {
		t.Errorf("Exists() = %v, %v; want true", exists, err)
	}
}

func TestUserRepository_SetActiveAndDelete(t *testing.T) {
	repo := setupRepository(t)
	ctx := context.Background()

	if err := repo.Create(ctx, &domain.User{ID: "u1", Name: "ann", Email: "ann@example.com", PasswordHash: "x"}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if err := repo.SetActive(ctx, "u1", true); err != nil {
		t.Fatalf("SetActive() error = %v", err)
	}
	user, _ := repo.FindByID(ctx, "u1")
	if !user.Active {
		t.Error("user should be active")
	}

	if err := repo.SetActive(ctx, "missing", true); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("SetActive(missing) error = %v, want ErrUserNotFound", err)
	}

	if err := repo.Delete(ctx, "u1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := repo.Delete(ctx, "u1"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("second Delete() error = %v, want ErrUserNotFound", err)
	}

	users, err := repo.List(ctx)
	if err != nil || len(users) != 0 {
		t.Errorf("List() = %v, %v; want empty", users, err)
	}
}
