package subject_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/maktab/core"
	"github.com/trezcool/maktab/core/lesson"
	"github.com/trezcool/maktab/core/quiz"
	"github.com/trezcool/maktab/core/subject"
	"github.com/trezcool/maktab/tests"
)

func TestService_Create(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()

	subj, err := env.SubjectSvc.Create(ctx, subject.NewSubject{Name: "  Mathematics "})
	require.NoError(t, err)
	assert.Equal(t, "Mathematics", subj.Name)

	tests := []struct {
		name      string
		subjName  string
		wantField string
		wantErr   string
	}{
		{name: "duplicate", subjName: "Mathematics", wantField: "name", wantErr: subject.ErrNameExists.Error()},
		{name: "duplicate after trimming", subjName: " Mathematics  ", wantField: "name", wantErr: subject.ErrNameExists.Error()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.SubjectSvc.Create(ctx, subject.NewSubject{Name: tt.subjName})
			vErr, ok := err.(*core.ValidationError)
			require.True(t, ok, err)
			require.Len(t, vErr.Fields, 1)
			assert.Equal(t, tt.wantField, vErr.Fields[0].Field)
			assert.Equal(t, tt.wantErr, vErr.Fields[0].Error)
		})
	}

	_, err = env.SubjectSvc.Create(ctx, subject.NewSubject{Name: "  "})
	assert.Error(t, err)
}

func TestService_Update(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	maths := testutil.CreateSubject(t, env.SubjectRepo, "Mathematics")
	testutil.CreateSubject(t, env.SubjectRepo, "History")

	renamed, err := env.SubjectSvc.Update(ctx, maths.ID, subject.UpdateSubject{Name: "Maths"})
	require.NoError(t, err)
	assert.Equal(t, "Maths", renamed.Name)
	assert.Equal(t, maths.ID, renamed.ID)

	_, err = env.SubjectSvc.Update(ctx, maths.ID, subject.UpdateSubject{Name: "History"})
	vErr, ok := err.(*core.ValidationError)
	require.True(t, ok, err)
	assert.Equal(t, subject.ErrNameExists, vErr.Err)

	_, err = env.SubjectSvc.Update(ctx, "8a0e3a8c-0b7e-4f43-9d0f-6f2f8b1f0c11", subject.UpdateSubject{Name: "Biology"})
	assert.Equal(t, subject.ErrNotFound, err)
}

func TestService_List(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	now := time.Now()
	testutil.CreateSubject(t, env.SubjectRepo, "Mathematics", now.Add(-2*time.Hour))
	testutil.CreateSubject(t, env.SubjectRepo, "Biology", now.Add(-time.Hour))
	testutil.CreateSubject(t, env.SubjectRepo, "History", now)

	names := func(subjects []subject.Subject) []string {
		res := make([]string, 0, len(subjects))
		for _, s := range subjects {
			res = append(res, s.Name)
		}
		return res
	}

	subjects, err := env.SubjectSvc.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Mathematics", "Biology", "History"}, names(subjects))

	subjects, err = env.SubjectSvc.List(ctx, subject.OrderByName)
	require.NoError(t, err)
	assert.Equal(t, []string{"Biology", "History", "Mathematics"}, names(subjects))

	subjects, err = env.SubjectSvc.List(ctx, core.DBOrdering{Field: "created_at"})
	require.NoError(t, err)
	assert.Equal(t, []string{"History", "Biology", "Mathematics"}, names(subjects))

	_, err = env.SubjectSvc.List(ctx, core.DBOrdering{Field: "password"})
	assert.Error(t, err)
}

func TestService_Delete(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	amina := testutil.CreateStudent(t, env.UserRepo, "amina@test.cd", "pass1234", "Amina")
	maths := testutil.CreateSubject(t, env.SubjectRepo, "Mathematics")
	history := testutil.CreateSubject(t, env.SubjectRepo, "History")
	fractions := testutil.CreateLesson(t, env.LessonRepo, maths.ID, "Fractions")
	kongo := testutil.CreateLesson(t, env.LessonRepo, history.ID, "The Kingdom of Kongo")
	tst, questions := testutil.CreateFractionsQuiz(t, env.QuizRepo, maths.ID)

	pdf := []byte("%PDF-1.4 lesson")
	storedPDF := func(lessonID string) string {
		lsn, err := env.LessonSvc.UploadPDF(ctx, lessonID, bytes.NewReader(pdf), int64(len(pdf)), lesson.PDFContentType)
		require.NoError(t, err)
		key := env.Store.KeyFromURL(*lsn.PDFURL)
		require.NotEmpty(t, key)
		path := filepath.Join(env.Conf.Storage.RootDir, env.Conf.Storage.Bucket, filepath.FromSlash(key))
		require.FileExists(t, path)
		return path
	}
	fractionsPDF := storedPDF(fractions.ID)
	kongoPDF := storedPDF(kongo.ID)

	answers := make(map[string]string, len(questions))
	for _, q := range questions {
		answers[q.ID] = q.CorrectOption
	}
	_, err := env.QuizSvc.SubmitAttempt(ctx, amina.ID, tst.ID, answers)
	require.NoError(t, err)
	mine, err := env.RankingSvc.MyRanking(ctx, amina.ID)
	require.NoError(t, err)
	require.NotNil(t, mine)
	assert.Equal(t, 4, mine.TotalPoints)

	require.NoError(t, env.SubjectSvc.Delete(ctx, maths.ID))

	_, err = env.SubjectSvc.Get(ctx, maths.ID)
	assert.Equal(t, subject.ErrNotFound, err)
	_, err = env.LessonSvc.Get(ctx, fractions.ID)
	assert.Equal(t, lesson.ErrNotFound, err, "lessons are deleted with their subject")
	_, err = env.QuizSvc.GetTest(ctx, tst.ID)
	assert.Equal(t, quiz.ErrNotFound, err, "tests are deleted with their subject")

	_, err = os.Stat(fractionsPDF)
	assert.True(t, os.IsNotExist(err), "stored PDFs are removed with their lessons")

	_, err = env.LessonSvc.Get(ctx, kongo.ID)
	assert.NoError(t, err, "other subjects are untouched")
	assert.FileExists(t, kongoPDF)

	assert.Equal(t, subject.ErrNotFound, env.SubjectSvc.Delete(ctx, maths.ID))

	results, err := env.RankingSvc.MyResults(ctx, amina.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, results, "answers go with the questions")
}
