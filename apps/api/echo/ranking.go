package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/maktab/core/ranking"
)

type rankingAPI struct {
	svc ranking.Service
}

func registerRankingAPI(sg, ag *echo.Group, svc ranking.Service) {
	api := rankingAPI{svc: svc}

	sg.GET("/rankings", api.query)
	sg.GET("/me/ranking", api.myRanking)
	sg.GET("/me/results", api.myResults)

	ag.GET("/rankings", api.adminQuery)
}

func (api *rankingAPI) query(ctx echo.Context) error {
	entries, err := api.svc.Rankings(ctx.Request().Context(), bindLimit(ctx))
	if err != nil {
		return errors.Wrap(err, "querying rankings")
	}
	if entries == nil {
		entries = []ranking.Entry{}
	}
	return ctx.JSON(http.StatusOK, entries)
}

func (api *rankingAPI) adminQuery(ctx echo.Context) error {
	entries, err := api.svc.AdminRankings(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying rankings")
	}
	if entries == nil {
		entries = []ranking.Entry{}
	}
	return ctx.JSON(http.StatusOK, entries)
}

// myRanking responds with null until the user has taken a test.
func (api *rankingAPI) myRanking(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	entry, err := api.svc.MyRanking(ctx.Request().Context(), usr.ID)
	if err != nil {
		return errors.Wrap(err, "retrieving ranking")
	}
	return ctx.JSON(http.StatusOK, entry)
}

func (api *rankingAPI) myResults(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	results, err := api.svc.MyResults(ctx.Request().Context(), usr.ID, bindLimit(ctx))
	if err != nil {
		return errors.Wrap(err, "querying results")
	}
	if results == nil {
		results = []ranking.TestResult{}
	}
	return ctx.JSON(http.StatusOK, results)
}
