package dig_container

import (
	"fmt"
	"io"
	"log"
	"os"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"go.uber.org/dig"

	echoapi "github.com/trezcool/maktab/apps/api/echo"
	"github.com/trezcool/maktab/core"
	"github.com/trezcool/maktab/core/lesson"
	"github.com/trezcool/maktab/core/quiz"
	"github.com/trezcool/maktab/core/ranking"
	"github.com/trezcool/maktab/core/subject"
	"github.com/trezcool/maktab/core/user"
	appfs "github.com/trezcool/maktab/fs"
	emailsvc "github.com/trezcool/maktab/services/email"
	"github.com/trezcool/maktab/services/imgproc"
	logsvc "github.com/trezcool/maktab/services/logger"
	"github.com/trezcool/maktab/services/objstore"
	"github.com/trezcool/maktab/storage/database"
	inmemdb "github.com/trezcool/maktab/storage/database/inmem"
	sqlxrepos "github.com/trezcool/maktab/storage/database/sqlx"
)

type (
	DBLoggerParam struct {
		dig.In
		Logger core.Logger `name:"dbLogger"`
	}

	// Datastore is the set of repositories backed by the configured database.
	Datastore struct {
		dig.Out
		Closer   io.Closer `name:"db"`
		Users    user.Repository
		Subjects subject.Repository
		Lessons  lesson.Repository
		Quizzes  quiz.Repository
		Rankings ranking.Repository
	}

	DBCloserParam struct {
		dig.In
		Closer io.Closer `name:"db"`
	}

	serverParams struct {
		dig.In
		Conf       *core.Config
		Logger     core.Logger
		Validate   *validator.Validate
		Translator ut.Translator
		UserSvc    user.Service
		SubjectSvc subject.Service
		LessonSvc  lesson.Service
		QuizSvc    quiz.Service
		RankingSvc ranking.Service
	}

	nopCloser struct{}
)

func (nopCloser) Close() error { return nil }

func newLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug)
	return logger
}

func newDBLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug)
	return logger
}

// newDatastore sets up PostgreSQL (creating and migrating the database if needed),
// or an in-memory datastore when configured so.
func newDatastore(conf *core.Config, loggerParam DBLoggerParam) Datastore {
	if conf.Database.InMemory {
		loggerParam.Logger.Warn("using the in-memory datastore: data will not survive a restart")
		db := inmemdb.Open()
		return Datastore{
			Closer:   nopCloser{},
			Users:    inmemdb.NewUserRepository(db),
			Subjects: inmemdb.NewSubjectRepository(db),
			Lessons:  inmemdb.NewLessonRepository(db),
			Quizzes:  inmemdb.NewQuizRepository(db),
			Rankings: inmemdb.NewRankingRepository(db),
		}
	}

	if err := database.CreateIfNotExist(conf); err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("creating database: %v", err), err)
	}
	db, err := database.Open(conf)
	if err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("opening database: %v", err), err)
	}
	if err = database.Migrate(db); err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("migrating database: %v", err), err)
	}
	return Datastore{
		Closer:   db,
		Users:    sqlxrepos.NewUserRepository(db, conf),
		Subjects: sqlxrepos.NewSubjectRepository(db, conf),
		Lessons:  sqlxrepos.NewLessonRepository(db, conf),
		Quizzes:  sqlxrepos.NewQuizRepository(db, conf),
		Rankings: sqlxrepos.NewRankingRepository(db, conf),
	}
}

func newValidator() (*validator.Validate, ut.Translator) {
	validate, translator := core.NewValidator()
	quiz.InitValidators(validate, translator)
	return validate, translator
}

func newEmailTemplates(conf *core.Config, logger core.Logger) *core.EmailTemplates {
	return core.ParseEmailTemplates(appfs.FS, "templates/email", conf, logger)
}

func newEmailService(conf *core.Config, tmpls *core.EmailTemplates, logger core.Logger) core.EmailService {
	if conf.Debug || conf.SendgridAPIKey == "" {
		return emailsvc.NewConsoleService(conf, tmpls, logger)
	}
	return emailsvc.NewSendgridService(conf, tmpls, logger)
}

func newGoogleVerifier(conf *core.Config) user.GoogleVerifier {
	return user.NewGoogleVerifier(conf.Google.ClientID)
}

func newLessonService(
	conf *core.Config,
	repo lesson.Repository,
	store core.ObjectStore,
	validate *validator.Validate,
	logger core.Logger,
) lesson.Service {
	return lesson.NewService(repo, store, validate, logger, conf.Storage.MaxPDFSize)
}

func newSubjectService(repo subject.Repository, lessons lesson.Service, validate *validator.Validate) subject.Service {
	return subject.NewService(repo, lessons, validate)
}

func newRankingService(repo ranking.Repository, users user.Service) ranking.Service {
	return ranking.NewService(repo, users)
}

func newServer(p serverParams) *echoapi.Server {
	return echoapi.NewServer(echoapi.ServerDeps{
		Conf:       p.Conf,
		Logger:     p.Logger,
		Validate:   p.Validate,
		Translator: p.Translator,
		UserSvc:    p.UserSvc,
		SubjectSvc: p.SubjectSvc,
		LessonSvc:  p.LessonSvc,
		QuizSvc:    p.QuizSvc,
		RankingSvc: p.RankingSvc,
	})
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newDatastore))
	must(c.Provide(newValidator))
	must(c.Provide(newEmailTemplates))
	must(c.Provide(newEmailService))
	must(c.Provide(objstore.New))
	must(c.Provide(imgproc.NewAvatarEncoder))
	must(c.Provide(newGoogleVerifier))
	must(c.Provide(user.NewService))
	must(c.Provide(newSubjectService))
	must(c.Provide(newLessonService))
	must(c.Provide(quiz.NewService))
	must(c.Provide(newRankingService))
	must(c.Provide(newServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
