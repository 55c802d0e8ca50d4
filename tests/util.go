// Package testutil sets up in-memory environments and fixtures for package tests.
package testutil

import (
	"context"
	"io"
	"log"
	"testing"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/maktab/core"
	"github.com/trezcool/maktab/core/lesson"
	"github.com/trezcool/maktab/core/quiz"
	"github.com/trezcool/maktab/core/ranking"
	"github.com/trezcool/maktab/core/subject"
	"github.com/trezcool/maktab/core/user"
	appfs "github.com/trezcool/maktab/fs"
	"github.com/trezcool/maktab/services/email"
	"github.com/trezcool/maktab/services/imgproc"
	"github.com/trezcool/maktab/services/logger"
	"github.com/trezcool/maktab/services/objstore"
	"github.com/trezcool/maktab/storage/database/inmem"
)

// Env wires every service over a fresh in-memory datastore and a temporary object store.
type Env struct {
	Conf       *core.Config
	DB         *inmemdb.DB
	Logger     core.Logger
	Validate   *validator.Validate
	Translator ut.Translator
	Store      *objstore.FSStore
	Mailer     *emailsvc.ConsoleServiceMock
	Google     user.GoogleVerifierMock

	UserRepo    user.Repository
	SubjectRepo subject.Repository
	LessonRepo  lesson.Repository
	QuizRepo    quiz.Repository
	RankingRepo ranking.Repository

	UserSvc    user.Service
	SubjectSvc subject.Service
	LessonSvc  lesson.Service
	QuizSvc    quiz.Service
	RankingSvc ranking.Service
}

func NewEnv(t *testing.T) *Env {
	t.Helper()

	conf := core.NewTestConfig()
	conf.Storage.RootDir = t.TempDir()

	env := &Env{
		Conf:   conf,
		DB:     inmemdb.Open(),
		Logger: NewLogger(conf),
		Google: make(user.GoogleVerifierMock),
	}
	env.Validate, env.Translator = NewValidator()

	store, err := objstore.NewFSStore(conf.Storage.RootDir, conf.Storage.Bucket, conf.Storage.PublicBaseURL)
	if err != nil {
		t.Fatalf("NewEnv() failed: %v", err)
	}
	env.Store = store

	tmpls := core.ParseEmailTemplates(appfs.FS, "templates/email", conf, env.Logger)
	env.Mailer = emailsvc.NewConsoleServiceMock(conf, tmpls, env.Logger)

	env.UserRepo = inmemdb.NewUserRepository(env.DB)
	env.SubjectRepo = inmemdb.NewSubjectRepository(env.DB)
	env.LessonRepo = inmemdb.NewLessonRepository(env.DB)
	env.QuizRepo = inmemdb.NewQuizRepository(env.DB)
	env.RankingRepo = inmemdb.NewRankingRepository(env.DB)

	env.UserSvc = user.NewServiceMock(
		env.UserRepo, store, imgproc.NewAvatarEncoder(), env.Google, env.Mailer, env.Validate, env.Logger,
	)
	env.LessonSvc = lesson.NewService(env.LessonRepo, store, env.Validate, env.Logger, conf.Storage.MaxPDFSize)
	env.SubjectSvc = subject.NewService(env.SubjectRepo, env.LessonSvc, env.Validate)
	env.QuizSvc = quiz.NewService(env.QuizRepo, env.Validate)
	env.RankingSvc = ranking.NewService(env.RankingRepo, env.UserSvc)
	return env
}

// NewLogger returns a logger that writes nowhere and never reports.
func NewLogger(conf *core.Config) core.Logger {
	return logsvc.NewRollbarLogger(log.New(io.Discard, "", 0), conf)
}

// NewValidator returns a validator with every domain validation registered.
func NewValidator() (*validator.Validate, ut.Translator) {
	validate, translator := core.NewValidator()
	quiz.InitValidators(validate, translator)
	return validate, translator
}

// SetNow freezes the domain clock at now until the test ends.
func SetNow(t *testing.T, now time.Time) {
	prev := core.NowFunc
	core.NowFunc = func() time.Time { return now }
	t.Cleanup(func() { core.NowFunc = prev })
}

func CreateUser(t *testing.T, repo user.Repository, email, pwd string, createdAt ...time.Time) user.User {
	t.Helper()
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{Email: email, CreatedAt: tstamp}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

// CreateStudent creates a user with a profile.
func CreateStudent(t *testing.T, repo user.Repository, email, pwd, fullName string, createdAt ...time.Time) user.User {
	t.Helper()
	usr := CreateUser(t, repo, email, pwd, createdAt...)
	_, err := repo.UpsertProfile(context.Background(), user.Profile{UserID: usr.ID, FullName: fullName, UpdatedAt: usr.CreatedAt})
	if err != nil {
		t.Fatalf("CreateStudent() failed: %v", err)
	}
	return usr
}

func CreateAdmin(t *testing.T, repo user.Repository, email, pwd string) user.User {
	t.Helper()
	usr := CreateUser(t, repo, email, pwd)
	if err := repo.AddAdmin(context.Background(), usr.ID); err != nil {
		t.Fatalf("CreateAdmin() failed: %v", err)
	}
	return usr
}

func CreateSession(t *testing.T, repo user.Repository, usr user.User) user.Session {
	t.Helper()
	sess, err := repo.CreateSession(context.Background(), user.Session{UserID: usr.ID, CreatedAt: time.Now().UTC()})
	if err != nil {
		t.Fatalf("CreateSession() failed: %v", err)
	}
	return sess
}

func CreateSubject(t *testing.T, repo subject.Repository, name string, createdAt ...time.Time) subject.Subject {
	t.Helper()
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	subj, err := repo.CreateSubject(context.Background(), subject.Subject{Name: name, CreatedAt: tstamp})
	if err != nil {
		t.Fatalf("CreateSubject() failed: %v", err)
	}
	return subj
}

func CreateLesson(t *testing.T, repo lesson.Repository, subjectID, title string) lesson.Lesson {
	t.Helper()
	lsn, err := repo.CreateLesson(context.Background(), lesson.Lesson{SubjectID: subjectID, Title: title, CreatedAt: time.Now().UTC()})
	if err != nil {
		t.Fatalf("CreateLesson() failed: %v", err)
	}
	return lsn
}

func CreateTest(t *testing.T, repo quiz.Repository, subjectID, name string, start, end time.Time) quiz.Test {
	t.Helper()
	tst, err := repo.CreateTest(context.Background(), quiz.Test{
		SubjectID: subjectID,
		Name:      name,
		StartTime: start.UTC(),
		EndTime:   end.UTC(),
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("CreateTest() failed: %v", err)
	}
	return tst
}

// CreateActiveTest creates a test that started an hour ago and ends in an hour.
func CreateActiveTest(t *testing.T, repo quiz.Repository, subjectID, name string) quiz.Test {
	now := time.Now()
	return CreateTest(t, repo, subjectID, name, now.Add(-time.Hour), now.Add(time.Hour))
}

func CreateQuestion(t *testing.T, repo quiz.Repository, testID, text, correct string, points, sortOrder int) quiz.Question {
	t.Helper()
	q, err := repo.CreateQuestion(context.Background(), quiz.Question{
		TestID: testID,
		Text:   text,
		Options: []quiz.Option{
			{Label: "A", Text: text + " A"},
			{Label: "B", Text: text + " B"},
			{Label: "C", Text: text + " C"},
			{Label: "D", Text: text + " D"},
		},
		CorrectOption: correct,
		Points:        points,
		SortOrder:     sortOrder,
		CreatedAt:     time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("CreateQuestion() failed: %v", err)
	}
	return q
}

// CreateFractionsQuiz creates an active 4-question test worth 1 point per question,
// whose correct options are A, B, C and D in order.
func CreateFractionsQuiz(t *testing.T, repo quiz.Repository, subjectID string) (quiz.Test, []quiz.Question) {
	tst := CreateActiveTest(t, repo, subjectID, "Fractions Quiz")
	questions := []quiz.Question{
		CreateQuestion(t, repo, tst.ID, "What is 1/2 + 1/4?", "A", 1, 0),
		CreateQuestion(t, repo, tst.ID, "What is 2/3 of 9?", "B", 1, 1),
		CreateQuestion(t, repo, tst.ID, "Which is larger, 3/5 or 4/7?", "C", 1, 2),
		CreateQuestion(t, repo, tst.ID, "What is 5/10 simplified?", "D", 1, 3),
	}
	return tst, questions
}
