package echoapi_test

import (
	"net/http"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/maktab/core/quiz"
	"github.com/trezcool/maktab/core/ranking"
	"github.com/trezcool/maktab/tests"
)

func answersBody(questions []quiz.Question, labels ...string) []byte {
	parts := make([]string, 0, len(labels))
	for i, label := range labels {
		parts = append(parts, `{"question_id":"`+questions[i].ID+`","selected_option":"`+label+`"}`)
	}
	return []byte(`{"answers":[` + strings.Join(parts, ",") + `]}`)
}

func Test_quizApi_admin(t *testing.T) {
	srv, env := setup(t)
	admin := testutil.CreateAdmin(t, env.UserRepo, "admin@test.cd", "admin123")
	adminToken := getToken(t, env, admin)
	maths := testutil.CreateSubject(t, env.SubjectRepo, "Mathematics")

	start := time.Now().Add(-time.Hour).UTC().Truncate(time.Second)
	end := start.Add(2 * time.Hour)
	testBody := func(start, end time.Time) []byte {
		return []byte(`{"subject_id":"` + maths.ID + `","name":"Fractions Quiz","start_time":"` +
			start.Format(time.RFC3339) + `","end_time":"` + end.Format(time.RFC3339) + `"}`)
	}

	runHTTPTests(t, srv, []httpTest{
		{
			name: "end before start", method: http.MethodPost, path: "/v1/admin/tests", token: adminToken,
			body:     testBody(end, start),
			wantCode: http.StatusBadRequest, wantData: marshallObj(t, map[string]string{"end_time": "end time must be after start time"}),
		},
		{
			name: "end equals start", method: http.MethodPost, path: "/v1/admin/tests", token: adminToken,
			body:     testBody(start, start),
			wantCode: http.StatusBadRequest, wantData: marshallObj(t, map[string]string{"end_time": "end time must be after start time"}),
		},
	})

	req, rec := newAuthRequest(http.MethodPost, "/v1/admin/tests", adminToken, testBody(start, end))
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var tst quiz.Test
	unmarshall(t, rec, &tst)
	assert.True(t, tst.StartTime.Equal(start))

	qPath := "/v1/admin/tests/" + tst.ID + "/questions"
	question := func(text, correct string, points int) []byte {
		return []byte(`{"question":"` + text + `","option_a":"1","option_b":"2","option_c":"3","option_d":"4",` +
			`"correct_option":"` + correct + `","points":` + strconv.Itoa(points) + `}`)
	}

	runHTTPTests(t, srv, []httpTest{
		{
			name: "bad option label", method: http.MethodPost, path: qPath, token: adminToken, body: question("What is 1+1?", "E", 1),
			wantCode: http.StatusBadRequest, wantData: marshallObj(t, map[string]string{"correct_option": "choose one of A, B, C or D"}),
		},
		{
			name: "too many points", method: http.MethodPost, path: qPath, token: adminToken, body: question("What is 1+1?", "B", 6),
			wantCode: http.StatusBadRequest, wantData: marshallObj(t, map[string]string{"points": "points must be 5 or less"}),
		},
		{
			name: "unknown test", method: http.MethodPost, path: "/v1/admin/tests/8a0e3a8c-0b7e-4f43-9d0f-6f2f8b1f0c11/questions",
			token: adminToken, body: question("What is 1+1?", "B", 1),
			wantCode: http.StatusNotFound, wantData: marshallObj(t, httpErr{Error: "test not found"}),
		},
	})

	var created []quiz.Question
	for _, body := range [][]byte{question("What is 1+1?", "B", 1), question("What is 1+2?", "C", 2)} {
		req, rec := newAuthRequest(http.MethodPost, qPath, adminToken, body)
		srv.ServeHTTP(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var q quiz.Question
		unmarshall(t, rec, &q)
		created = append(created, q)
	}
	assert.Equal(t, 0, created[0].SortOrder)
	assert.Equal(t, 1, created[1].SortOrder)

	t.Run("update keeps sort order", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPut, "/v1/admin/questions/"+created[0].ID, adminToken, question("What is 2+2?", "D", 3))
		srv.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var q quiz.Question
		unmarshall(t, rec, &q)
		assert.Equal(t, "What is 2+2?", q.Text)
		assert.Equal(t, 0, q.SortOrder)
	})

	t.Run("list with summary", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/admin/tests?subject_id="+maths.ID, adminToken)
		srv.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var tests []quiz.TestSummary
		unmarshall(t, rec, &tests)
		require.Len(t, tests, 1)
		assert.Equal(t, 2, tests[0].QuestionCount)
		assert.Equal(t, "Mathematics", tests[0].SubjectName)
		assert.Equal(t, quiz.StatusActive, tests[0].Status)
	})

	t.Run("delete question then test", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodDelete, "/v1/admin/questions/"+created[1].ID, adminToken)
		srv.ServeHTTP(rec, req)
		require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

		req, rec = newAuthRequest(http.MethodGet, qPath, adminToken)
		srv.ServeHTTP(rec, req)
		var questions []quiz.Question
		unmarshall(t, rec, &questions)
		assert.Len(t, questions, 1)

		req, rec = newAuthRequest(http.MethodDelete, "/v1/admin/tests/"+tst.ID, adminToken)
		srv.ServeHTTP(rec, req)
		require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

		req, rec = newAuthRequest(http.MethodGet, qPath, adminToken)
		srv.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func Test_quizApi_fractionsQuiz(t *testing.T) {
	srv, env := setup(t)
	student := testutil.CreateStudent(t, env.UserRepo, "amina@test.cd", "pass1234", "Amina")
	token := getToken(t, env, student)
	maths := testutil.CreateSubject(t, env.SubjectRepo, "Mathematics")
	tst, questions := testutil.CreateFractionsQuiz(t, env.QuizRepo, maths.ID)

	pending := testutil.CreateTest(t, env.QuizRepo, maths.ID, "Next week", time.Now().Add(24*time.Hour), time.Now().Add(48*time.Hour))
	testutil.CreateQuestion(t, env.QuizRepo, pending.ID, "What is 3/3?", "A", 1, 0)

	answersPath := "/v1/tests/" + tst.ID + "/answers"

	t.Run("questions hide the correct option", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/tests/"+tst.ID+"/questions", token)
		srv.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.NotContains(t, rec.Body.String(), "correct_option")

		var got []quiz.StudentQuestion
		unmarshall(t, rec, &got)
		require.Len(t, got, 4)
		for i, q := range got {
			assert.Equal(t, questions[i].ID, q.ID, "ordered by sort order")
		}
	})

	runHTTPTests(t, srv, []httpTest{
		{
			name: "pending test questions", path: "/v1/tests/" + pending.ID + "/questions", token: token,
			wantCode: http.StatusConflict, wantData: marshallObj(t, httpErr{Error: quiz.ErrTestNotStarted.Error()}),
		},
		{
			name: "pending test answers", method: http.MethodPost, path: "/v1/tests/" + pending.ID + "/answers", token: token,
			body: []byte(`{"answers":[{"question_id":"x","selected_option":"A"}]}`), wantCode: http.StatusConflict,
		},
		{
			name: "no answers", method: http.MethodPost, path: answersPath, token: token, body: []byte(`{}`),
			wantCode: http.StatusBadRequest, wantData: marshallObj(t, map[string]string{"answers": errFieldRequired}),
		},
		{
			name: "incomplete", method: http.MethodPost, path: answersPath, token: token, body: answersBody(questions, "A", "B", "C"),
			wantCode: http.StatusBadRequest, wantData: marshallObj(t, httpErr{Error: "please answer every question before submitting"}),
		},
		{
			name: "3 out of 4", method: http.MethodPost, path: answersPath, token: token, body: answersBody(questions, "A", "B", "C", "A"),
			wantCode: http.StatusCreated,
			wantData: []byte(`{"correct_count":3,"total_questions":4,"points_earned":3,"max_points":4,"percentage":75,"passed":true}`),
		},
		{
			name: "second attempt", method: http.MethodPost, path: answersPath, token: token, body: answersBody(questions, "A", "B", "C", "D"),
			wantCode: http.StatusConflict, wantData: marshallObj(t, httpErr{Error: quiz.ErrAlreadyTaken.Error()}),
		},
	})

	t.Run("test is marked as taken", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/tests?subject_id="+maths.ID, token)
		srv.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var tests []quiz.StudentTest
		unmarshall(t, rec, &tests)
		require.Len(t, tests, 2)
		for _, st := range tests {
			assert.Equal(t, st.ID == tst.ID, st.Taken, st.Name)
		}
	})

	t.Run("results & rankings", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/me/results", token)
		srv.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var results []ranking.TestResult
		unmarshall(t, rec, &results)
		require.Len(t, results, 1)
		assert.Equal(t, "Fractions Quiz", results[0].TestName)
		assert.Equal(t, 3, results[0].EarnedPoints)
		assert.Equal(t, 4, results[0].TotalPoints)
		assert.Equal(t, 3, results[0].CorrectAnswers)

		req, rec = newAuthRequest(http.MethodGet, "/v1/me/ranking", token)
		srv.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var entry ranking.Entry
		unmarshall(t, rec, &entry)
		assert.Equal(t, 3, entry.TotalPoints)
		assert.Equal(t, 1, entry.TestsTaken)
		require.NotNil(t, entry.RankPosition)
		assert.Equal(t, 1, *entry.RankPosition)
	})
}
