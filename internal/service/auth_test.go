package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/solarvest/platform/internal/auth"
	"github.com/solarvest/platform/internal/model"
)

const testPassword = "sunlight2026"

func newLoginFixture(t *testing.T, status model.UserStatus) (*AuthService, *fakeUsers) {
	t.Helper()
	hash, err := auth.HashPassword(testPassword)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	users := newFakeUsers(&model.User{
		ID:           "u1",
		TenantID:     "t1",
		Email:        "ops@example.com",
		PasswordHash: hash,
		FirstName:    "Ada",
		Role:         model.RoleManager,
		Status:       status,
	})
	svc := NewAuthService(users, auth.NewTokenIssuer("test-secret", time.Hour), LoginPolicy{MaxAttempts: 3, Lockout: time.Minute}, testOptions())
	return svc, users
}

func TestLoginSuccess(t *testing.T) {
	t.Parallel()
	svc, users := newLoginFixture(t, model.UserStatusActive)

	res, err := svc.Login(context.Background(), LoginInput{TenantID: "t1", Email: " OPS@example.com ", Password: testPassword})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if res.Token == "" {
		t.Fatal("expected token")
	}
	if res.User.FullName != "Ada" {
		t.Fatalf("expected user in response, got %+v", res.User)
	}
	if users.users["u1"].LastLoginAt == nil {
		t.Fatal("expected last_login_at to be recorded")
	}
}

func TestLoginErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		status  model.UserStatus
		input   LoginInput
		wantErr error
	}{
		{"unknown_email", model.UserStatusActive, LoginInput{TenantID: "t1", Email: "nobody@example.com", Password: testPassword}, ErrInvalidCredentials},
		{"other_tenant", model.UserStatusActive, LoginInput{TenantID: "t2", Email: "ops@example.com", Password: testPassword}, ErrInvalidCredentials},
		{"wrong_password", model.UserStatusActive, LoginInput{TenantID: "t1", Email: "ops@example.com", Password: "wrong-pass-1"}, ErrInvalidCredentials},
		{"suspended", model.UserStatusSuspended, LoginInput{TenantID: "t1", Email: "ops@example.com", Password: testPassword}, ErrAccountDisabled},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			svc, _ := newLoginFixture(t, test.status)
			_, err := svc.Login(context.Background(), test.input)
			if !errors.Is(err, test.wantErr) {
				t.Fatalf("expected %v, got %v", test.wantErr, err)
			}
		})
	}
}

func TestLoginLockout(t *testing.T) {
	t.Parallel()
	svc, _ := newLoginFixture(t, model.UserStatusActive)
	ctx := context.Background()
	bad := LoginInput{TenantID: "t1", Email: "ops@example.com", Password: "wrong-pass-1"}

	for i := 0; i < 2; i++ {
		if _, err := svc.Login(ctx, bad); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected invalid credentials, got %v", i+1, err)
		}
	}
	if _, err := svc.Login(ctx, bad); !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("third failure: expected lock, got %v", err)
	}

	good := bad
	good.Password = testPassword
	if _, err := svc.Login(ctx, good); !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("expected locked account to reject correct password, got %v", err)
	}

	svc.now = func() time.Time { return time.Now().UTC().Add(2 * time.Minute) }
	if _, err := svc.Login(ctx, good); err != nil {
		t.Fatalf("expected login after lockout expiry, got %v", err)
	}
}

func TestChangePassword(t *testing.T) {
	t.Parallel()
	svc, _ := newLoginFixture(t, model.UserStatusActive)
	ctx := context.Background()

	if err := svc.ChangePassword(ctx, "t1", "u1", "wrong-pass-1", "moonlight2027"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}

	var verr model.ValidationErrors
	if err := svc.ChangePassword(ctx, "t1", "u1", testPassword, "short"); !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}

	if err := svc.ChangePassword(ctx, "t1", "u1", testPassword, "moonlight2027"); err != nil {
		t.Fatalf("change password: %v", err)
	}
	if _, err := svc.Login(ctx, LoginInput{TenantID: "t1", Email: "ops@example.com", Password: "moonlight2027"}); err != nil {
		t.Fatalf("login with new password: %v", err)
	}
}
