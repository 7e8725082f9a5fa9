package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ImAdityaa12/storex-backend/internal/common"
)

func TestRegisterDuplicateEmail(t *testing.T) {
	env := newTestService(t)
	mustRegister(t, env.svc, "dup@example.com")

	_, err := env.svc.Register(context.Background(), RegisterInput{
		Name:     "Other",
		Username: "other",
		Email:    "dup@example.com",
		Password: "password123",
	})
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "EMAIL_ALREADY_USED", appErr.Code)
}

func TestRegisterDuplicateUsername(t *testing.T) {
	env := newTestService(t)
	mustRegister(t, env.svc, "first@example.com")

	_, err := env.svc.Register(context.Background(), RegisterInput{
		Name:     "Other",
		Username: "first",
		Email:    "second@example.com",
		Password: "password123",
	})
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "USERNAME_ALREADY_USED", appErr.Code)
}

func TestLoginWithEmailAndUsername(t *testing.T) {
	env := newTestService(t)
	mustRegister(t, env.svc, "buyer@example.com")

	byEmail, err := env.svc.Login(context.Background(), "buyer@example.com", "password123")
	require.NoError(t, err)
	require.NotEmpty(t, byEmail.AccessToken)
	require.NotEmpty(t, byEmail.RefreshToken)
	require.Equal(t, RoleUser, byEmail.User.Role)

	byUsername, err := env.svc.Login(context.Background(), "buyer", "password123")
	require.NoError(t, err)
	require.Equal(t, byEmail.User.ID, byUsername.User.ID)
}

func TestLoginWrongPassword(t *testing.T) {
	env := newTestService(t)
	mustRegister(t, env.svc, "buyer@example.com")

	_, err := env.svc.Login(context.Background(), "buyer@example.com", "wrong-password")
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "INVALID_CREDENTIALS", appErr.Code)
}

func TestRefreshRotatesToken(t *testing.T) {
	env := newTestService(t)
	mustRegister(t, env.svc, "buyer@example.com")

	login, err := env.svc.Login(context.Background(), "buyer@example.com", "password123")
	require.NoError(t, err)

	rotated, err := env.svc.Refresh(context.Background(), login.RefreshToken)
	require.NoError(t, err)
	require.NotEqual(t, login.RefreshToken, rotated.RefreshToken)

	// old token is consumed
	_, err = env.svc.Refresh(context.Background(), login.RefreshToken)
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, common.CodeUnauthorized, appErr.Code)

	// new token still works
	_, err = env.svc.Refresh(context.Background(), rotated.RefreshToken)
	require.NoError(t, err)
}

func TestLogoutRevokesSession(t *testing.T) {
	env := newTestService(t)
	mustRegister(t, env.svc, "buyer@example.com")

	login, err := env.svc.Login(context.Background(), "buyer@example.com", "password123")
	require.NoError(t, err)
	require.NoError(t, env.svc.Logout(context.Background(), login.RefreshToken))

	_, err = env.svc.Refresh(context.Background(), login.RefreshToken)
	require.Error(t, err)
}

func TestForgotAndResetPassword(t *testing.T) {
	env := newTestService(t)
	mustRegister(t, env.svc, "buyer@example.com")

	require.NoError(t, env.svc.Forgot(context.Background(), "buyer@example.com"))
	mail, ok := env.mailer.last()
	require.True(t, ok)
	require.Equal(t, "buyer@example.com", mail.To)
	require.Len(t, mail.Code, 6)

	err := env.svc.Reset(context.Background(), "buyer@example.com", mail.Code, "new-password-1")
	require.NoError(t, err)

	_, err = env.svc.Login(context.Background(), "buyer@example.com", "password123")
	require.Error(t, err)
	_, err = env.svc.Login(context.Background(), "buyer@example.com", "new-password-1")
	require.NoError(t, err)
}

func TestResetRevokesAllSessions(t *testing.T) {
	env := newTestService(t)
	mustRegister(t, env.svc, "buyer@example.com")

	login, err := env.svc.Login(context.Background(), "buyer@example.com", "password123")
	require.NoError(t, err)

	require.NoError(t, env.svc.Forgot(context.Background(), "buyer@example.com"))
	mail, _ := env.mailer.last()
	require.NoError(t, env.svc.Reset(context.Background(), "buyer@example.com", mail.Code, "new-password-1"))

	_, err = env.svc.Refresh(context.Background(), login.RefreshToken)
	require.Error(t, err)
}

func TestResetCodeSingleUse(t *testing.T) {
	env := newTestService(t)
	mustRegister(t, env.svc, "buyer@example.com")

	require.NoError(t, env.svc.Forgot(context.Background(), "buyer@example.com"))
	mail, _ := env.mailer.last()
	require.NoError(t, env.svc.Reset(context.Background(), "buyer@example.com", mail.Code, "new-password-1"))

	err := env.svc.Reset(context.Background(), "buyer@example.com", mail.Code, "new-password-2")
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "INVALID_CODE", appErr.Code)
}

func TestForgotUnknownEmailIsSilent(t *testing.T) {
	env := newTestService(t)
	require.NoError(t, env.svc.Forgot(context.Background(), "nobody@example.com"))
	_, ok := env.mailer.last()
	require.False(t, ok)
}

func TestParseAccessTokenRoundTrip(t *testing.T) {
	env := newTestService(t)
	fixed := time.Now()
	env.svc.WithNow(func() time.Time { return fixed })

	token, _, err := env.svc.signAccessToken("user-id", RoleAdmin)
	require.NoError(t, err)

	subject, role, err := env.svc.ParseAccessToken(token)
	require.NoError(t, err)
	require.Equal(t, "user-id", subject)
	require.Equal(t, RoleAdmin, role)
}

func TestParseAccessTokenExpired(t *testing.T) {
	env := newTestService(t)
	past := time.Now().Add(-time.Hour)
	env.svc.WithNow(func() time.Time { return past })
	token, _, err := env.svc.signAccessToken("user-id", RoleUser)
	require.NoError(t, err)

	env.svc.WithNow(time.Now)
	_, _, err = env.svc.ParseAccessToken(token)
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, common.CodeUnauthorized, appErr.Code)
}

func TestListUsersPages(t *testing.T) {
	env := newTestService(t)
	mustRegister(t, env.svc, "alice@example.com")
	mustRegister(t, env.svc, "bob@example.com")
	mustRegister(t, env.svc, "carol@example.com")

	users, total, err := env.svc.ListUsers(context.Background(), 1, 2)
	require.NoError(t, err)
	require.Equal(t, int64(3), total)
	require.Len(t, users, 2)

	rest, _, err := env.svc.ListUsers(context.Background(), 2, 2)
	require.NoError(t, err)
	require.Len(t, rest, 1)
}

func TestUpdateRolePromotesAndRevokesSessions(t *testing.T) {
	env := newTestService(t)
	registered := mustRegister(t, env.svc, "staff@example.com")

	login, err := env.svc.Login(context.Background(), "staff@example.com", "password123")
	require.NoError(t, err)

	updated, err := env.svc.UpdateRole(context.Background(), registered.ID, RoleAdmin)
	require.NoError(t, err)
	require.Equal(t, RoleAdmin, updated.Role)

	// refresh sessions issued under the old role are gone
	_, err = env.svc.Refresh(context.Background(), login.RefreshToken)
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, common.CodeUnauthorized, appErr.Code)
}

func TestUpdateRoleRejectsUnknownRole(t *testing.T) {
	env := newTestService(t)
	registered := mustRegister(t, env.svc, "staff@example.com")

	_, err := env.svc.UpdateRole(context.Background(), registered.ID, "superuser")
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, common.CodeValidation, appErr.Code)
}

func TestUpdateRoleUnknownUser(t *testing.T) {
	env := newTestService(t)

	_, err := env.svc.UpdateRole(context.Background(), "b4f9e5a0-0000-0000-0000-000000000000", RoleUser)
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "USER_NOT_FOUND", appErr.Code)
}
