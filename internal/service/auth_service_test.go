package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/uniflow/facilitation-api/internal/models"
	appErrors "github.com/uniflow/facilitation-api/pkg/errors"
)

type fakeAuthUsers struct {
	byEmail     map[string]*models.User
	byID        map[string]*models.User
	lastLoginID string
	updatedHash string
}

func (f *fakeAuthUsers) FindByEmail(_ context.Context, email string) (*models.User, error) {
	user, ok := f.byEmail[email]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return user, nil
}

func (f *fakeAuthUsers) FindByID(_ context.Context, id string) (*models.User, error) {
	user, ok := f.byID[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return user, nil
}

func (f *fakeAuthUsers) UpdateLastLogin(_ context.Context, id string, _ time.Time) error {
	f.lastLoginID = id
	return nil
}

func (f *fakeAuthUsers) UpdatePassword(_ context.Context, _ string, passwordHash string, _ time.Time) error {
	f.updatedHash = passwordHash
	return nil
}

func newAuthFixture(t *testing.T) (*AuthService, *fakeAuthUsers) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("secret123"), bcrypt.MinCost)
	require.NoError(t, err)
	user := &models.User{
		ID:           "fac-1",
		Email:        "riley@example.edu",
		PasswordHash: string(hash),
		FullName:     "Riley Requester",
		Role:         models.RoleFacilitator,
		Active:       true,
	}
	repo := &fakeAuthUsers{
		byEmail: map[string]*models.User{user.Email: user},
		byID:    map[string]*models.User{user.ID: user},
	}
	svc := NewAuthService(repo, nil, nil, AuthConfig{
		AccessTokenSecret: "test-secret",
		AccessTokenExpiry: time.Hour,
		Issuer:            "facilitation-api",
	})
	return svc, repo
}

func TestLoginIssuesToken(t *testing.T) {
	svc, repo := newAuthFixture(t)

	resp, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "riley@example.edu",
		Password: "secret123",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	assert.Equal(t, int64(3600), resp.ExpiresIn)
	assert.Equal(t, "fac-1", resp.User.ID)
	assert.Equal(t, "fac-1", repo.lastLoginID)

	claims, err := svc.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "fac-1", claims.UserID)
	assert.Equal(t, models.RoleFacilitator, claims.Role)
}

func TestLoginWrongPassword(t *testing.T) {
	svc, _ := newAuthFixture(t)

	_, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "riley@example.edu",
		Password: "not-the-password",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)
}

func TestLoginUnknownEmail(t *testing.T) {
	svc, _ := newAuthFixture(t)

	// Same error as a bad password so callers cannot probe for accounts.
	_, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "nobody@example.edu",
		Password: "secret123",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)
}

func TestLoginInactiveAccount(t *testing.T) {
	svc, repo := newAuthFixture(t)
	repo.byEmail["riley@example.edu"].Active = false

	_, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "riley@example.edu",
		Password: "secret123",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInactiveAccount.Code, appErrors.FromError(err).Code)
}

func TestLoginValidatesPayload(t *testing.T) {
	svc, _ := newAuthFixture(t)

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "not-an-email", Password: "x"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestChangePasswordStoresNewHash(t *testing.T) {
	svc, repo := newAuthFixture(t)

	err := svc.ChangePassword(context.Background(), "fac-1", models.ChangePasswordRequest{
		OldPassword: "secret123",
		NewPassword: "evenbetter456",
	})
	require.NoError(t, err)
	require.NotEmpty(t, repo.updatedHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(repo.updatedHash), []byte("evenbetter456")))
}

func TestChangePasswordWrongCurrent(t *testing.T) {
	svc, repo := newAuthFixture(t)

	err := svc.ChangePassword(context.Background(), "fac-1", models.ChangePasswordRequest{
		OldPassword: "wrong",
		NewPassword: "evenbetter456",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)
	assert.Empty(t, repo.updatedHash)
}

func TestValidateTokenRejectsForeignSecret(t *testing.T) {
	svc, _ := newAuthFixture(t)
	other := NewAuthService(&fakeAuthUsers{
		byEmail: map[string]*models.User{},
		byID:    map[string]*models.User{},
	}, nil, nil, AuthConfig{AccessTokenSecret: "different-secret", AccessTokenExpiry: time.Hour})

	token, _, err := other.generateAccessToken(&models.User{ID: "fac-1", Role: models.RoleFacilitator})
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}
