package echoapi_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/maktab/core/ranking"
	"github.com/trezcool/maktab/core/user"
	"github.com/trezcool/maktab/tests"
)

func Test_studentApi(t *testing.T) {
	srv, env := setup(t)
	admin := testutil.CreateAdmin(t, env.UserRepo, "admin@test.cd", "admin123")
	adminToken := getToken(t, env, admin)
	now := time.Now()
	amina := testutil.CreateStudent(t, env.UserRepo, "amina@test.cd", "pass1234", "Amina", now.Add(-2*time.Hour))
	baraka := testutil.CreateStudent(t, env.UserRepo, "baraka@test.cd", "pass1234", "Baraka", now.Add(-time.Hour))

	t.Run("list excludes admins", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/admin/students", adminToken)
		srv.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var students []user.Student
		unmarshall(t, rec, &students)
		require.Len(t, students, 2)
		assert.Equal(t, baraka.ID, students[0].ID, "newest first")
		assert.Equal(t, amina.ID, students[1].ID)
		assert.Equal(t, "Amina", students[1].FullName)
	})

	runHTTPTests(t, srv, []httpTest{
		{
			name: "admins are not students", path: "/v1/admin/students/" + admin.ID, token: adminToken,
			wantCode: http.StatusNotFound, wantData: marshallObj(t, httpErr{Error: "user not found"}),
		},
		{
			name: "create: invalid", method: http.MethodPost, path: "/v1/admin/students", token: adminToken,
			body:     []byte(`{"email":"amina@test.cd","password":"pass1234"}`),
			wantCode: http.StatusBadRequest, wantData: marshallObj(t, map[string]string{"full_name": errFieldRequired}),
		},
		{
			name: "create: email taken", method: http.MethodPost, path: "/v1/admin/students", token: adminToken,
			body:     []byte(`{"email":"amina@test.cd","password":"pass1234","full_name":"Amina Bis"}`),
			wantCode: http.StatusBadRequest, wantData: marshallObj(t, map[string]string{"email": user.ErrEmailExists.Error()}),
		},
	})

	t.Run("create sends a welcome email", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/admin/students", adminToken,
			[]byte(`{"email":"Chausiku@test.cd","password":"pass1234","full_name":"Chausiku"}`))
		srv.ServeHTTP(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var st user.Student
		unmarshall(t, rec, &st)
		assert.Equal(t, "chausiku@test.cd", st.Email)
		assert.Equal(t, "Chausiku", st.FullName)

		sent := env.Mailer.Sent()
		require.Len(t, sent, 1)
		require.Len(t, sent[0].To, 1)
		assert.Equal(t, "chausiku@test.cd", sent[0].To[0].Address)
	})

	t.Run("update", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPut, "/v1/admin/students/"+amina.ID, adminToken, []byte(`{"full_name":"Amina Mwamba"}`))
		srv.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var st user.Student
		unmarshall(t, rec, &st)
		assert.Equal(t, "Amina Mwamba", st.FullName)
	})

	t.Run("ban & unban", func(t *testing.T) {
		token := getToken(t, env, baraka)

		req, rec := newAuthRequest(http.MethodPost, "/v1/admin/students/"+baraka.ID+"/ban", adminToken)
		srv.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var st user.Student
		unmarshall(t, rec, &st)
		assert.True(t, st.IsBanned)

		// banning ends the sessions
		req, rec = newAuthRequest(http.MethodGet, "/v1/subjects", token)
		srv.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)

		req, rec = newRequest(http.MethodPost, "/v1/auth/sign-in", []byte(`{"email":"baraka@test.cd","password":"pass1234"}`))
		srv.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code)

		req, rec = newAuthRequest(http.MethodPost, "/v1/admin/students/"+baraka.ID+"/unban", adminToken)
		srv.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		unmarshall(t, rec, &st)
		assert.False(t, st.IsBanned)

		req, rec = newRequest(http.MethodPost, "/v1/auth/sign-in", []byte(`{"email":"baraka@test.cd","password":"pass1234"}`))
		srv.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	})

	t.Run("delete", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodDelete, "/v1/admin/students/"+amina.ID, adminToken)
		srv.ServeHTTP(rec, req)
		require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

		_, err := env.UserSvc.GetByID(context.Background(), amina.ID)
		assert.True(t, err != nil)
	})
}

func Test_rankingApi(t *testing.T) {
	srv, env := setup(t)
	admin := testutil.CreateAdmin(t, env.UserRepo, "admin@test.cd", "admin123")
	amina := testutil.CreateStudent(t, env.UserRepo, "amina@test.cd", "pass1234", "Amina")
	baraka := testutil.CreateStudent(t, env.UserRepo, "baraka@test.cd", "pass1234", "Baraka")
	newcomer := testutil.CreateStudent(t, env.UserRepo, "new@test.cd", "pass1234", "Newcomer")

	maths := testutil.CreateSubject(t, env.SubjectRepo, "Mathematics")
	tst, questions := testutil.CreateFractionsQuiz(t, env.QuizRepo, maths.ID)
	ctx := context.Background()
	answers := func(labels ...string) map[string]string {
		m := make(map[string]string, len(labels))
		for i, l := range labels {
			m[questions[i].ID] = l
		}
		return m
	}
	_, err := env.QuizSvc.SubmitAttempt(ctx, amina.ID, tst.ID, answers("A", "B", "C", "A"))
	require.NoError(t, err)
	_, err = env.QuizSvc.SubmitAttempt(ctx, baraka.ID, tst.ID, answers("A", "B", "C", "D"))
	require.NoError(t, err)

	t.Run("students", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/rankings?limit=1", getToken(t, env, amina))
		srv.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var entries []ranking.Entry
		unmarshall(t, rec, &entries)
		require.Len(t, entries, 1)
		assert.Equal(t, baraka.ID, entries[0].UserID)
		assert.Equal(t, "Baraka", entries[0].FullName)
		assert.Empty(t, entries[0].Email, "emails are for admins")
	})

	t.Run("admin", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/admin/rankings", getToken(t, env, admin))
		srv.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var entries []ranking.Entry
		unmarshall(t, rec, &entries)
		require.Len(t, entries, 2)
		assert.Equal(t, "baraka@test.cd", entries[0].Email)
		assert.Equal(t, "amina@test.cd", entries[1].Email)
		require.NotNil(t, entries[1].RankPosition)
		assert.Equal(t, 2, *entries[1].RankPosition)
	})

	runHTTPTests(t, srv, []httpTest{
		{name: "no ranking yet", path: "/v1/me/ranking", token: getToken(t, env, newcomer), wantCode: http.StatusOK, wantData: []byte(`null`)},
		{name: "no results yet", path: "/v1/me/results", token: getToken(t, env, newcomer), wantCode: http.StatusOK, wantData: marshallList(t)},
	})
}
