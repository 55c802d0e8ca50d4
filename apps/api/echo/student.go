package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/maktab/core/user"
)

type studentAPI struct {
	svc user.Service
}

func registerStudentAPI(ag *echo.Group, svc user.Service) {
	api := studentAPI{svc: svc}

	g := ag.Group("/students")
	g.GET("", api.query)
	g.POST("", api.create)

	// detail endpoints
	g.GET("/:id", api.retrieve)
	g.PUT("/:id", api.update)
	g.DELETE("/:id", api.destroy)
	g.POST("/:id/ban", api.ban)
	g.POST("/:id/unban", api.unban)
}

func (api *studentAPI) query(ctx echo.Context) error {
	students, err := api.svc.ListStudents(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying students")
	}
	if students == nil {
		students = []user.Student{}
	}
	return ctx.JSON(http.StatusOK, students)
}

// create registers a student account; a welcome email is sent with their credentials.
func (api *studentAPI) create(ctx echo.Context) error {
	var data user.NewStudent
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewStudent")
	}
	st, err := api.svc.CreateStudent(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating student")
	}
	return ctx.JSON(http.StatusCreated, st)
}

func (api *studentAPI) retrieve(ctx echo.Context) error {
	st, err := api.svc.GetStudent(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "retrieving student")
	}
	return ctx.JSON(http.StatusOK, st)
}

func (api *studentAPI) update(ctx echo.Context) error {
	var data user.UpdateStudent
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateStudent")
	}
	st, err := api.svc.UpdateStudent(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating student")
	}
	return ctx.JSON(http.StatusOK, st)
}

func (api *studentAPI) destroy(ctx echo.Context) error {
	if err := api.svc.DeleteStudent(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting student")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *studentAPI) ban(ctx echo.Context) error {
	st, err := api.svc.Ban(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "banning student")
	}
	return ctx.JSON(http.StatusOK, st)
}

func (api *studentAPI) unban(ctx echo.Context) error {
	st, err := api.svc.Unban(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "unbanning student")
	}
	return ctx.JSON(http.StatusOK, st)
}
