package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/maktab/core"
	"github.com/trezcool/maktab/core/quiz"
)

type quizAPI struct {
	svc      quiz.Service
	validate *validator.Validate
}

func registerQuizAPI(sg, ag *echo.Group, svc quiz.Service, validate *validator.Validate) {
	api := quizAPI{svc: svc, validate: validate}

	sg.GET("/tests", api.studentQuery)
	sg.GET("/tests/:id/questions", api.studentQuestions)
	sg.POST("/tests/:id/answers", api.submitAnswers)

	tg := ag.Group("/tests")
	tg.GET("", api.query)
	tg.POST("", api.create)
	tg.GET("/:id", api.retrieve)
	tg.PUT("/:id", api.update)
	tg.DELETE("/:id", api.destroy)
	tg.GET("/:id/questions", api.queryQuestions)
	tg.POST("/:id/questions", api.createQuestion)

	qg := ag.Group("/questions")
	qg.PUT("/:id", api.updateQuestion)
	qg.DELETE("/:id", api.destroyQuestion)
}

func bindTestFilter(ctx echo.Context) quiz.QueryFilter {
	return quiz.QueryFilter{SubjectID: ctx.QueryParam("subject_id")}
}

// Student

func (api *quizAPI) studentQuery(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	tests, err := api.svc.ListTestsForStudent(ctx.Request().Context(), usr.ID, bindTestFilter(ctx))
	if err != nil {
		return errors.Wrap(err, "querying tests")
	}
	if tests == nil {
		tests = []quiz.StudentTest{}
	}
	return ctx.JSON(http.StatusOK, tests)
}

// studentQuestions lists the questions of an active test, without their correct options.
func (api *quizAPI) studentQuestions(ctx echo.Context) error {
	questions, err := api.svc.StudentQuestions(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "querying questions")
	}
	if questions == nil {
		questions = []quiz.StudentQuestion{}
	}
	return ctx.JSON(http.StatusOK, questions)
}

// submitAnswers grades and records a whole attempt. A test can only be taken once.
func (api *quizAPI) submitAnswers(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	var data quiz.Submission
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Submission")
	}
	if err = api.validate.Struct(data); err != nil {
		submissionsTotal.WithLabelValues("invalid").Inc()
		return err
	}

	res, err := api.svc.SubmitAttempt(ctx.Request().Context(), usr.ID, ctx.Param("id"), data.AnswerMap())
	if err != nil {
		submissionsTotal.WithLabelValues(submissionOutcome(err)).Inc()
		return errors.Wrap(err, "submitting answers")
	}
	submissionsTotal.WithLabelValues("accepted").Inc()
	return ctx.JSON(http.StatusCreated, res)
}

func submissionOutcome(err error) string {
	switch errors.Cause(err) {
	case quiz.ErrAlreadyTaken:
		return "duplicate"
	case quiz.ErrIncomplete:
		return "incomplete"
	case quiz.ErrTestNotStarted, quiz.ErrTestClosed:
		return "closed"
	}
	if core.IsNotFound(err) {
		return "not_found"
	}
	return "error"
}

// Admin

func (api *quizAPI) query(ctx echo.Context) error {
	tests, err := api.svc.ListTests(ctx.Request().Context(), bindTestFilter(ctx))
	if err != nil {
		return errors.Wrap(err, "querying tests")
	}
	if tests == nil {
		tests = []quiz.TestSummary{}
	}
	return ctx.JSON(http.StatusOK, tests)
}

func (api *quizAPI) create(ctx echo.Context) error {
	var data quiz.NewTest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewTest")
	}
	t, err := api.svc.CreateTest(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating test")
	}
	return ctx.JSON(http.StatusCreated, t)
}

func (api *quizAPI) retrieve(ctx echo.Context) error {
	t, err := api.svc.GetTest(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "retrieving test")
	}
	return ctx.JSON(http.StatusOK, t)
}

func (api *quizAPI) update(ctx echo.Context) error {
	var data quiz.UpdateTest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateTest")
	}
	t, err := api.svc.UpdateTest(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating test")
	}
	return ctx.JSON(http.StatusOK, t)
}

func (api *quizAPI) destroy(ctx echo.Context) error {
	if err := api.svc.DeleteTest(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting test")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *quizAPI) queryQuestions(ctx echo.Context) error {
	questions, err := api.svc.ListQuestions(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "querying questions")
	}
	if questions == nil {
		questions = []quiz.Question{}
	}
	return ctx.JSON(http.StatusOK, questions)
}

func (api *quizAPI) createQuestion(ctx echo.Context) error {
	var data quiz.NewQuestion
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewQuestion")
	}
	q, err := api.svc.CreateQuestion(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "creating question")
	}
	return ctx.JSON(http.StatusCreated, q)
}

func (api *quizAPI) updateQuestion(ctx echo.Context) error {
	var data quiz.UpdateQuestion
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateQuestion")
	}
	q, err := api.svc.UpdateQuestion(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating question")
	}
	return ctx.JSON(http.StatusOK, q)
}

func (api *quizAPI) destroyQuestion(ctx echo.Context) error {
	if err := api.svc.DeleteQuestion(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting question")
	}
	return ctx.NoContent(http.StatusNoContent)
}
