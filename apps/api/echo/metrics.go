package echoapi

import (
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "maktab",
		Subsystem: "api",
		Name:      "requests_total",
		Help:      "HTTP requests handled, by route and status code.",
	}, []string{"method", "route", "code"})

	submissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "maktab",
		Subsystem: "api",
		Name:      "answer_submissions_total",
		Help:      "Test attempts submitted, by outcome.",
	}, []string{"outcome"})
)

func metricsMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		// the error handler writes the final status
		if err := next(ctx); err != nil {
			ctx.Error(err)
		}
		code := strconv.Itoa(ctx.Response().Status)
		requestsTotal.WithLabelValues(ctx.Request().Method, ctx.Path(), code).Inc()
		return nil
	}
}
