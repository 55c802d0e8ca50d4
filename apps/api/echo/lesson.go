package echoapi

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/maktab/core"
	"github.com/trezcool/maktab/core/lesson"
)

const pdfFormField = "file"

type lessonAPI struct {
	svc lesson.Service
}

func registerLessonAPI(sg, ag *echo.Group, svc lesson.Service, maxPDFSize int64) {
	api := lessonAPI{svc: svc}

	sg.GET("/lessons", api.studentQuery)
	sg.POST("/lessons/:id/download", api.recordDownload)

	g := ag.Group("/lessons")
	g.GET("", api.query)
	g.POST("", api.create)
	g.GET("/:id", api.retrieve)
	g.PUT("/:id", api.update)
	g.DELETE("/:id", api.destroy)

	// leave room for the multipart envelope; the service enforces the exact file size
	limit := strconv.FormatInt(maxPDFSize/1024+1024, 10) + "K"
	g.PUT("/:id/pdf", api.uploadPDF, middleware.BodyLimit(limit))
}

func bindLessonFilter(ctx echo.Context) lesson.QueryFilter {
	return lesson.QueryFilter{SubjectID: ctx.QueryParam("subject_id")}
}

func (api *lessonAPI) studentQuery(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	lessons, err := api.svc.ListForStudent(ctx.Request().Context(), usr.ID, bindLessonFilter(ctx))
	if err != nil {
		return errors.Wrap(err, "querying lessons")
	}
	if lessons == nil {
		lessons = []lesson.StudentLesson{}
	}
	return ctx.JSON(http.StatusOK, lessons)
}

// recordDownload marks the lesson's current PDF version as downloaded by the user.
func (api *lessonAPI) recordDownload(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	mark, err := api.svc.RecordDownload(ctx.Request().Context(), usr.ID, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "recording download")
	}
	return ctx.JSON(http.StatusOK, mark)
}

func (api *lessonAPI) query(ctx echo.Context) error {
	lessons, err := api.svc.List(ctx.Request().Context(), bindLessonFilter(ctx))
	if err != nil {
		return errors.Wrap(err, "querying lessons")
	}
	if lessons == nil {
		lessons = []lesson.WithSubject{}
	}
	return ctx.JSON(http.StatusOK, lessons)
}

func (api *lessonAPI) create(ctx echo.Context) error {
	var data lesson.NewLesson
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewLesson")
	}
	lsn, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating lesson")
	}
	return ctx.JSON(http.StatusCreated, lsn)
}

func (api *lessonAPI) retrieve(ctx echo.Context) error {
	lsn, err := api.svc.Get(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "retrieving lesson")
	}
	return ctx.JSON(http.StatusOK, lsn)
}

func (api *lessonAPI) update(ctx echo.Context) error {
	var data lesson.UpdateLesson
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateLesson")
	}
	lsn, err := api.svc.Update(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating lesson")
	}
	return ctx.JSON(http.StatusOK, lsn)
}

func (api *lessonAPI) destroy(ctx echo.Context) error {
	if err := api.svc.Delete(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting lesson")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// uploadPDF replaces the lesson's PDF with the multipart `file` and bumps its version.
func (api *lessonAPI) uploadPDF(ctx echo.Context) error {
	fh, err := ctx.FormFile(pdfFormField)
	if err != nil {
		return core.NewValidationError(nil, core.FieldError{Field: pdfFormField, Error: "this field is required"})
	}
	f, err := fh.Open()
	if err != nil {
		return errors.Wrap(err, "opening uploaded file")
	}
	defer f.Close()

	lsn, err := api.svc.UploadPDF(ctx.Request().Context(), ctx.Param("id"), f, fh.Size, fh.Header.Get(echo.HeaderContentType))
	if err != nil {
		return errors.Wrap(err, "uploading PDF")
	}
	return ctx.JSON(http.StatusOK, lsn)
}
