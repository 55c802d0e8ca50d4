package user_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/maktab/core/user"
	"github.com/trezcool/maktab/tests"
)

func TestService_SignIn(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	amina := testutil.CreateStudent(t, env.UserRepo, "amina@test.cd", "pass1234", "Amina")
	testutil.CreateUser(t, env.UserRepo, "google-only@test.cd", "")

	tests := []struct {
		name    string
		creds   user.Credentials
		wantErr error
	}{
		{name: "unknown email", creds: user.Credentials{Email: "nobody@test.cd", Password: "pass1234"}, wantErr: user.ErrInvalidCredentials},
		{name: "wrong password", creds: user.Credentials{Email: "amina@test.cd", Password: "pass12345"}, wantErr: user.ErrInvalidCredentials},
		{name: "no password set", creds: user.Credentials{Email: "google-only@test.cd", Password: "pass1234"}, wantErr: user.ErrInvalidCredentials},
		{name: "ok", creds: user.Credentials{Email: " AMINA@test.cd ", Password: "pass1234"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			usr, sess, err := env.UserSvc.SignIn(ctx, tt.creds)
			if tt.wantErr != nil {
				assert.Equal(t, tt.wantErr, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, amina.ID, usr.ID)
			assert.NotNil(t, usr.LastSignInAt)
			assert.Equal(t, amina.ID, sess.UserID)

			_, err = env.UserSvc.ValidateSession(ctx, sess.ID, usr.ID)
			assert.NoError(t, err)
		})
	}
}

func TestService_sessions(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	amina := testutil.CreateStudent(t, env.UserRepo, "amina@test.cd", "pass1234", "Amina")
	baraka := testutil.CreateStudent(t, env.UserRepo, "baraka@test.cd", "pass1234", "Baraka")
	sess := testutil.CreateSession(t, env.UserRepo, amina)
	other := testutil.CreateSession(t, env.UserRepo, amina)

	_, err := env.UserSvc.ValidateSession(ctx, sess.ID, baraka.ID)
	assert.Equal(t, user.ErrSessionRevoked, err, "session of somebody else")

	require.NoError(t, env.UserSvc.SignOut(ctx, sess.ID))
	_, err = env.UserSvc.ValidateSession(ctx, sess.ID, amina.ID)
	assert.Equal(t, user.ErrSessionRevoked, err)
	assert.NoError(t, env.UserSvc.SignOut(ctx, sess.ID), "signing out twice is fine")

	_, err = env.UserSvc.ValidateSession(ctx, other.ID, amina.ID)
	assert.NoError(t, err, "other sessions stay open")
}

func TestService_RequireAdmin(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	admin := testutil.CreateAdmin(t, env.UserRepo, "admin@test.cd", "admin123")
	amina := testutil.CreateStudent(t, env.UserRepo, "amina@test.cd", "pass1234", "Amina")

	adminSess := testutil.CreateSession(t, env.UserRepo, admin)
	assert.NoError(t, env.UserSvc.RequireAdmin(ctx, adminSess.ID, admin.ID))

	sess := testutil.CreateSession(t, env.UserRepo, amina)
	assert.Equal(t, user.ErrNotAdmin, env.UserSvc.RequireAdmin(ctx, sess.ID, amina.ID))
	_, err := env.UserSvc.ValidateSession(ctx, sess.ID, amina.ID)
	assert.Equal(t, user.ErrSessionRevoked, err, "non-admins are signed out")

	require.NoError(t, env.UserSvc.GrantAdmin(ctx, amina.ID))
	isAdmin, err := env.UserSvc.IsAdmin(ctx, amina.ID)
	require.NoError(t, err)
	assert.True(t, isAdmin)

	assert.Equal(t, user.ErrNotFound, env.UserSvc.GrantAdmin(ctx, "8a0e3a8c-0b7e-4f43-9d0f-6f2f8b1f0c11"))
}

func TestService_banAndUnban(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	testutil.SetNow(t, now)
	amina := testutil.CreateStudent(t, env.UserRepo, "amina@test.cd", "pass1234", "Amina")
	sess := testutil.CreateSession(t, env.UserRepo, amina)

	st, err := env.UserSvc.Ban(ctx, amina.ID)
	require.NoError(t, err)
	assert.True(t, st.IsBanned)
	require.NotNil(t, st.BannedUntil)
	assert.Equal(t, now.Add(user.BanDuration), *st.BannedUntil)

	_, err = env.UserSvc.ValidateSession(ctx, sess.ID, amina.ID)
	assert.Equal(t, user.ErrSessionRevoked, err, "ban ends the sessions")

	_, _, err = env.UserSvc.SignIn(ctx, user.Credentials{Email: "amina@test.cd", Password: "pass1234"})
	assert.Equal(t, user.ErrBanned, err)

	st, err = env.UserSvc.Unban(ctx, amina.ID)
	require.NoError(t, err)
	assert.False(t, st.IsBanned)
	assert.Nil(t, st.BannedUntil)

	_, _, err = env.UserSvc.SignIn(ctx, user.Credentials{Email: "amina@test.cd", Password: "pass1234"})
	assert.NoError(t, err)

	// a ban with a past end date is over
	past := now.Add(-time.Hour)
	usr, err := env.UserRepo.GetUserByID(ctx, amina.ID)
	require.NoError(t, err)
	usr.BannedUntil = &past
	_, err = env.UserRepo.UpdateUser(ctx, usr)
	require.NoError(t, err)
	_, _, err = env.UserSvc.SignIn(ctx, user.Credentials{Email: "amina@test.cd", Password: "pass1234"})
	assert.NoError(t, err)
}

func TestService_SignInWithGoogle(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	amina := testutil.CreateStudent(t, env.UserRepo, "amina@test.cd", "pass1234", "Amina")
	env.Google["amina-token"] = user.GoogleIdentity{Subject: "g-amina", Email: "Amina@test.cd", Name: "Amina G"}
	env.Google["baraka-token"] = user.GoogleIdentity{Subject: "g-baraka", Email: "baraka@test.cd", Name: "Baraka"}

	_, _, err := env.UserSvc.SignInWithGoogle(ctx, "forged")
	assert.Error(t, err)

	t.Run("links an existing account", func(t *testing.T) {
		usr, _, err := env.UserSvc.SignInWithGoogle(ctx, "amina-token")
		require.NoError(t, err)
		assert.Equal(t, amina.ID, usr.ID)

		linked, err := env.UserRepo.GetUserByGoogleID(ctx, "g-amina")
		require.NoError(t, err)
		assert.Equal(t, amina.ID, linked.ID)
		assert.NoError(t, linked.CheckPassword("pass1234"), "password kept")
	})

	t.Run("creates a new account", func(t *testing.T) {
		usr, _, err := env.UserSvc.SignInWithGoogle(ctx, "baraka-token")
		require.NoError(t, err)
		assert.Equal(t, "baraka@test.cd", usr.Email)

		prof, err := env.UserSvc.GetProfile(ctx, usr.ID)
		require.NoError(t, err)
		assert.Equal(t, "Baraka", prof.FullName)

		again, _, err := env.UserSvc.SignInWithGoogle(ctx, "baraka-token")
		require.NoError(t, err)
		assert.Equal(t, usr.ID, again.ID)
	})
}

func TestService_students(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	admin := testutil.CreateAdmin(t, env.UserRepo, "admin@test.cd", "admin123")

	st, err := env.UserSvc.CreateStudent(ctx, user.NewStudent{Email: " Amina@Test.cd", Password: "pass1234", FullName: " Amina "})
	require.NoError(t, err)
	assert.Equal(t, "amina@test.cd", st.Email)
	assert.Equal(t, "Amina", st.FullName)

	sent := env.Mailer.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "amina@test.cd", sent[0].To[0].Address)

	_, err = env.UserSvc.CreateStudent(ctx, user.NewStudent{Email: "amina@test.cd", Password: "pass1234", FullName: "Amina Bis"})
	assert.Error(t, err)

	students, err := env.UserSvc.ListStudents(ctx)
	require.NoError(t, err)
	require.Len(t, students, 1)
	assert.Equal(t, st.ID, students[0].ID)

	_, err = env.UserSvc.GetStudent(ctx, admin.ID)
	assert.Equal(t, user.ErrNotFound, err, "admins are not students")

	require.NoError(t, env.UserSvc.DeleteStudent(ctx, st.ID))
	_, err = env.UserSvc.GetByID(ctx, st.ID)
	assert.Equal(t, user.ErrNotFound, err)
}
