package echoapi_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/trezcool/maktab/apps/api/echo"
	"github.com/trezcool/maktab/core/user"
	"github.com/trezcool/maktab/tests"
)

func Test_authApi_signIn(t *testing.T) {
	srv, env := setup(t)
	testutil.CreateStudent(t, env.UserRepo, "amina@test.cd", "pass1234", "Amina")
	testutil.CreateAdmin(t, env.UserRepo, "admin@test.cd", "admin123")
	banned := testutil.CreateStudent(t, env.UserRepo, "banned@test.cd", "pass1234", "Banned")
	_, err := env.UserSvc.Ban(context.Background(), banned.ID)
	require.NoError(t, err)

	badCreds := marshallObj(t, httpErr{Error: "invalid email or password"})

	tests := []httpTest{
		{
			name: "empty body", body: []byte(`{}`), wantCode: http.StatusBadRequest,
			wantData: marshallObj(t, map[string]string{"email": errFieldRequired, "password": errFieldRequired}),
		},
		{name: "unknown email", body: []byte(`{"email":"nobody@test.cd","password":"pass1234"}`), wantCode: http.StatusBadRequest, wantData: badCreds},
		{name: "wrong password", body: []byte(`{"email":"amina@test.cd","password":"wrong-pwd"}`), wantCode: http.StatusBadRequest, wantData: badCreds},
		{
			name: "banned", body: []byte(`{"email":"banned@test.cd","password":"pass1234"}`), wantCode: http.StatusForbidden,
			wantData: marshallObj(t, httpErr{Error: user.ErrBanned.Error()}),
		},
	}
	for i := range tests {
		tests[i].method = http.MethodPost
		tests[i].path = "/v1/auth/sign-in"
	}
	runHTTPTests(t, srv, tests)

	t.Run("student", func(t *testing.T) {
		req, rec := newRequest(http.MethodPost, "/v1/auth/sign-in", []byte(`{"email":" AMINA@test.cd ","password":"pass1234"}`))
		srv.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var resp AuthResponse
		unmarshall(t, rec, &resp)
		assert.NotEmpty(t, resp.Token)
		assert.Equal(t, "amina@test.cd", resp.User.Email)
		assert.NotNil(t, resp.User.LastSignInAt)
		assert.False(t, resp.IsAdmin)
	})

	t.Run("admin", func(t *testing.T) {
		req, rec := newRequest(http.MethodPost, "/v1/auth/sign-in", []byte(`{"email":"admin@test.cd","password":"admin123"}`))
		srv.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var resp AuthResponse
		unmarshall(t, rec, &resp)
		assert.True(t, resp.IsAdmin)
	})
}

func Test_authApi_signUp(t *testing.T) {
	srv, env := setup(t)
	testutil.CreateUser(t, env.UserRepo, "taken@test.cd", "pass1234")

	runHTTPTests(t, srv, []httpTest{
		{
			name: "invalid", method: http.MethodPost, path: "/v1/auth/sign-up",
			body: []byte(`{"email":"not-an-email","password":"123"}`), wantCode: http.StatusBadRequest,
			wantData: marshallObj(t, map[string]string{
				"email":    "email must be a valid email address",
				"password": "password must be at least 6 characters in length",
			}),
		},
		{
			name: "email taken", method: http.MethodPost, path: "/v1/auth/sign-up",
			body: []byte(`{"email":"Taken@test.cd","password":"pass1234"}`), wantCode: http.StatusBadRequest,
			wantData: marshallObj(t, map[string]string{"email": user.ErrEmailExists.Error()}),
		},
	})

	req, rec := newRequest(http.MethodPost, "/v1/auth/sign-up", []byte(`{"email":"new@test.cd","password":"pass1234"}`))
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp AuthResponse
	unmarshall(t, rec, &resp)
	assert.Equal(t, "new@test.cd", resp.User.Email)

	// the token works right away
	req, rec = newAuthRequest(http.MethodGet, "/v1/me/profile", resp.Token)
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func Test_authApi_google(t *testing.T) {
	srv, env := setup(t)
	env.Google["good-token"] = user.GoogleIdentity{Subject: "g-123", Email: "Bahati@Gmail.com", Name: "Bahati"}

	runHTTPTests(t, srv, []httpTest{
		{
			name: "no token", method: http.MethodPost, path: "/v1/auth/google", body: []byte(`{}`),
			wantCode: http.StatusBadRequest, wantData: marshallObj(t, map[string]string{"id_token": errFieldRequired}),
		},
		{
			name: "bad token", method: http.MethodPost, path: "/v1/auth/google", body: []byte(`{"id_token":"forged"}`),
			wantCode: http.StatusBadRequest,
		},
	})

	signIn := func() AuthResponse {
		req, rec := newRequest(http.MethodPost, "/v1/auth/google", []byte(`{"id_token":"good-token"}`))
		srv.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var resp AuthResponse
		unmarshall(t, rec, &resp)
		return resp
	}

	first := signIn()
	assert.Equal(t, "bahati@gmail.com", first.User.Email)
	second := signIn()
	assert.Equal(t, first.User.ID, second.User.ID, "the account is reused")

	prof, err := env.UserSvc.GetProfile(context.Background(), first.User.ID)
	require.NoError(t, err)
	assert.Equal(t, "Bahati", prof.FullName)
}

func Test_authApi_signOut(t *testing.T) {
	srv, env := setup(t)
	usr := testutil.CreateStudent(t, env.UserRepo, "amina@test.cd", "pass1234", "Amina")
	token := getToken(t, env, usr)
	other := getToken(t, env, usr)

	runHTTPTests(t, srv, []httpTest{
		{name: "Auth required", method: http.MethodPost, path: "/v1/auth/sign-out", wantCode: http.StatusUnauthorized, wantData: marshallObj(t, errMissingToken)},
		{name: "sign out", method: http.MethodPost, path: "/v1/auth/sign-out", token: token, wantCode: http.StatusNoContent},
		{name: "token revoked", path: "/v1/subjects", token: token, wantCode: http.StatusUnauthorized, wantData: marshallObj(t, errRevoked)},
		{name: "other sessions live on", path: "/v1/subjects", token: other, wantCode: http.StatusOK, wantData: marshallList(t)},
		{name: "sign out twice", method: http.MethodPost, path: "/v1/auth/sign-out", token: token, wantCode: http.StatusNoContent},
	})
}

func Test_authApi_refreshToken(t *testing.T) {
	srv, env := setup(t)
	usr := testutil.CreateStudent(t, env.UserRepo, "amina@test.cd", "pass1234", "Amina")
	token := getToken(t, env, usr)

	req, rec := newAuthRequest(http.MethodPost, "/v1/auth/token-refresh", token)
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp TokenResponse
	unmarshall(t, rec, &resp)
	require.NotEmpty(t, resp.Token)

	// refreshed tokens share the session: signing out revokes both
	req, rec = newAuthRequest(http.MethodPost, "/v1/auth/sign-out", resp.Token)
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)

	runHTTPTests(t, srv, []httpTest{
		{name: "old token", path: "/v1/subjects", token: token, wantCode: http.StatusUnauthorized, wantData: marshallObj(t, errRevoked)},
		{name: "refresh revoked", method: http.MethodPost, path: "/v1/auth/token-refresh", token: token, wantCode: http.StatusUnauthorized},
	})

	t.Run("refresh expired", func(t *testing.T) {
		usr := testutil.CreateStudent(t, env.UserRepo, "late@test.cd", "pass1234", "Late")
		sess := testutil.CreateSession(t, env.UserRepo, usr)
		claims := GetUserClaims(env.Conf, usr, sess, 1 /* oriat */)
		token, err := GenerateToken(env.Conf, claims)
		require.NoError(t, err)

		req, rec := newAuthRequest(http.MethodPost, "/v1/auth/token-refresh", token)
		srv.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusForbidden, wantData: marshallObj(t, httpErr{Error: "refresh has expired"})}, rec)
	})
}

func Test_adminMiddleware(t *testing.T) {
	srv, env := setup(t)
	student := testutil.CreateStudent(t, env.UserRepo, "amina@test.cd", "pass1234", "Amina")
	admin := testutil.CreateAdmin(t, env.UserRepo, "admin@test.cd", "admin123")
	studentToken := getToken(t, env, student)
	adminToken := getToken(t, env, admin)

	runHTTPTests(t, srv, []httpTest{
		{name: "Auth required", path: "/v1/admin/subjects", wantCode: http.StatusUnauthorized, wantData: marshallObj(t, errMissingToken)},
		{name: "garbage token", path: "/v1/admin/subjects", token: "garbage", wantCode: http.StatusUnauthorized},
		{name: "admin", path: "/v1/admin/subjects", token: adminToken, wantCode: http.StatusOK, wantData: marshallList(t)},
		{name: "student is signed out", path: "/v1/admin/subjects", token: studentToken, wantCode: http.StatusForbidden, wantData: marshallObj(t, errNotAdmin)},
		{name: "student session is gone", path: "/v1/subjects", token: studentToken, wantCode: http.StatusUnauthorized, wantData: marshallObj(t, errRevoked)},
	})
}
