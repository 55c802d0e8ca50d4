package ranking_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/maktab/core/quiz"
	"github.com/trezcool/maktab/core/ranking"
	"github.com/trezcool/maktab/tests"
)

func answer(questions []quiz.Question, labels ...string) map[string]string {
	answers := make(map[string]string, len(questions))
	for i, q := range questions {
		answers[q.ID] = labels[i]
	}
	return answers
}

func TestService_rankings(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()

	maths := testutil.CreateSubject(t, env.SubjectRepo, "Mathematics")
	tst, questions := testutil.CreateFractionsQuiz(t, env.QuizRepo, maths.ID)

	amina := testutil.CreateStudent(t, env.UserRepo, "amina@maktab.test", "pwd", "Amina")
	bilal := testutil.CreateStudent(t, env.UserRepo, "bilal@maktab.test", "pwd", "Bilal")
	chloe := testutil.CreateStudent(t, env.UserRepo, "chloe@maktab.test", "pwd", "Chloe")
	dede := testutil.CreateStudent(t, env.UserRepo, "dede@maktab.test", "pwd", "Dede")

	me, err := env.RankingSvc.MyRanking(ctx, amina.ID)
	require.NoError(t, err)
	assert.Nil(t, me, "no ranking before the first test")

	for _, tc := range []struct {
		userID string
		labels []string
	}{
		{amina.ID, []string{"A", "B", "C", "D"}},
		{bilal.ID, []string{"A", "B", "A", "A"}},
		{chloe.ID, []string{"A", "B", "B", "B"}},
	} {
		_, err = env.QuizSvc.SubmitAttempt(ctx, tc.userID, tst.ID, answer(questions, tc.labels...))
		require.NoError(t, err)
	}

	entries, err := env.RankingSvc.Rankings(ctx, 0)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, amina.ID, entries[0].UserID)
	assert.Equal(t, "Amina", entries[0].FullName)
	assert.Equal(t, 4, entries[0].TotalPoints)
	assert.Equal(t, 1, entries[0].TestsTaken)
	require.NotNil(t, entries[0].RankPosition)
	assert.Equal(t, 1, *entries[0].RankPosition)
	assert.Empty(t, entries[0].Email)

	// tied students share a position
	for _, e := range entries[1:] {
		assert.Equal(t, 2, e.TotalPoints)
		require.NotNil(t, e.RankPosition)
		assert.Equal(t, 2, *e.RankPosition)
	}

	top, err := env.RankingSvc.Rankings(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, top, 1)

	me, err = env.RankingSvc.MyRanking(ctx, bilal.ID)
	require.NoError(t, err)
	require.NotNil(t, me)
	assert.Equal(t, 2, me.TotalPoints)

	me, err = env.RankingSvc.MyRanking(ctx, dede.ID)
	require.NoError(t, err)
	assert.Nil(t, me)
}

func TestService_AdminRankings(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()

	maths := testutil.CreateSubject(t, env.SubjectRepo, "Mathematics")
	tst, questions := testutil.CreateFractionsQuiz(t, env.QuizRepo, maths.ID)
	amina := testutil.CreateStudent(t, env.UserRepo, "amina@maktab.test", "pwd", "Amina")

	_, err := env.QuizSvc.SubmitAttempt(ctx, amina.ID, tst.ID, answer(questions, "A", "A", "A", "A"))
	require.NoError(t, err)

	entries, err := env.RankingSvc.AdminRankings(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "amina@maktab.test", entries[0].Email)
	assert.Equal(t, 1, entries[0].TotalPoints)
}

func TestService_MyResults(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()

	maths := testutil.CreateSubject(t, env.SubjectRepo, "Mathematics")
	tst, questions := testutil.CreateFractionsQuiz(t, env.QuizRepo, maths.ID)
	amina := testutil.CreateStudent(t, env.UserRepo, "amina@maktab.test", "pwd", "Amina")

	results, err := env.RankingSvc.MyResults(ctx, amina.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, results)

	_, err = env.QuizSvc.SubmitAttempt(ctx, amina.ID, tst.ID, answer(questions, "A", "B", "D", "D"))
	require.NoError(t, err)

	results, err = env.RankingSvc.MyResults(ctx, amina.ID, ranking.AdminLimit+50)
	require.NoError(t, err)
	require.Len(t, results, 1)

	res := results[0]
	assert.Equal(t, tst.ID, res.TestID)
	assert.Equal(t, "Fractions Quiz", res.TestName)
	assert.Equal(t, "Mathematics", res.SubjectName)
	assert.Equal(t, 3, res.EarnedPoints)
	assert.Equal(t, 4, res.TotalPoints)
	assert.Equal(t, 3, res.CorrectAnswers)
	assert.Equal(t, 4, res.TotalQuestions)
	assert.False(t, res.CompletedAt.IsZero())
}
