package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/ticket-assistant/internal/config"
	"github.com/spec-kit/ticket-assistant/internal/domain"
	"github.com/spec-kit/ticket-assistant/internal/repository"
	apperrors "github.com/spec-kit/ticket-assistant/pkg/util"
)

func newAuthService(t *testing.T) (*AuthService, *repository.MemoryUserRepository) {
	t.Helper()
	users := repository.NewMemoryUserRepository()
	cfg := config.Config{Auth: config.AuthConfig{JWTSecret: "test", AccessTokenTTLMinutes: 5, BcryptCost: bcrypt.MinCost}}
	return NewAuthService(cfg, AuthDependencies{UserRepo: users}), users
}

func TestRegisterAndLogin(t *testing.T) {
	svc, _ := newAuthService(t)
	ctx := context.Background()

	session, err := svc.Register(ctx, " Ada@Example.com ", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", session.User.Email)
	assert.Equal(t, domain.RoleUser, session.User.Role)

	claims, err := svc.TokenManager().ParseToken(session.Token)
	require.NoError(t, err)
	assert.Equal(t, session.User.Identity(), claims.Identity())

	login, err := svc.Login(ctx, "ADA@example.com", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, session.User.ID, login.User.ID)

	_, err = svc.Login(ctx, "ada@example.com", "wrong horse")
	assert.Equal(t, apperrors.CodeUnauthorized, apperrors.ToDomainError(err).Code)
	_, err = svc.Login(ctx, "nobody@example.com", "correct horse")
	assert.Equal(t, apperrors.CodeUnauthorized, apperrors.ToDomainError(err).Code)
}

func TestRegisterValidation(t *testing.T) {
	svc, _ := newAuthService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "not-an-email", "correct horse")
	assert.True(t, apperrors.IsValidation(err))

	_, err = svc.Register(ctx, "ada@example.com", "short")
	assert.True(t, apperrors.IsValidation(err))

	_, err = svc.Register(ctx, "ada@example.com", "correct horse")
	require.NoError(t, err)
	_, err = svc.Register(ctx, "ada@example.com", "correct horse")
	assert.Equal(t, apperrors.CodeConflict, apperrors.ToDomainError(err).Code)
}

func TestCreateUserRejectsUnknownRole(t *testing.T) {
	svc, _ := newAuthService(t)
	_, err := svc.CreateUser(context.Background(), "x@example.com", "correct horse", domain.Role("root"))
	assert.True(t, apperrors.IsValidation(err))
}

func TestEnsureAdminIsIdempotent(t *testing.T) {
	svc, users := newAuthService(t)
	ctx := context.Background()

	created, err := svc.EnsureAdmin(ctx, "root@example.com", "correct horse")
	require.NoError(t, err)
	assert.True(t, created)

	created, err = svc.EnsureAdmin(ctx, "root@example.com", "correct horse")
	require.NoError(t, err)
	assert.False(t, created)

	admin, err := users.GetByEmail(ctx, "root@example.com")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, admin.Role)
}

func TestListStaff(t *testing.T) {
	svc, _ := newAuthService(t)
	ctx := context.Background()
	_, err := svc.CreateUser(ctx, "mod@example.com", "correct horse", domain.RoleModerator)
	require.NoError(t, err)
	_, err = svc.CreateUser(ctx, "admin@example.com", "correct horse", domain.RoleAdmin)
	require.NoError(t, err)
	_, err = svc.Register(ctx, "user@example.com", "correct horse")
	require.NoError(t, err)

	staff, err := svc.ListStaff(ctx)
	require.NoError(t, err)
	emails := []string{}
	for _, u := range staff {
		emails = append(emails, u.Email)
	}
	assert.Equal(t, []string{"admin@example.com", "mod@example.com"}, emails)
}
