package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core/analytics"
)

type analyticsApi struct {
	svc *analytics.Service
}

func registerAnalyticsAPI(g *echo.Group, deps *Deps) {
	api := analyticsApi{svc: deps.AnalyticsSvc}

	g.GET("/api-usage", api.apiUsage)
	g.GET("/most-active-users", api.mostActiveUsers)
	g.GET("/popular-courses", api.popularCourses)
}

func (api *analyticsApi) apiUsage(ctx echo.Context) error {
	actor, err := getSubject(ctx)
	if err != nil {
		return err
	}
	var filter analytics.UsageFilter
	if err = ctx.Bind(&filter); err != nil {
		return errors.Wrap(err, "binding to UsageFilter")
	}

	usage, err := api.svc.APIUsage(ctx.Request().Context(), actor, filter)
	if err != nil {
		return errors.Wrap(err, "querying api usage")
	}
	if usage == nil {
		usage = []analytics.EndpointUsage{}
	}
	return ctx.JSON(http.StatusOK, usage)
}

func (api *analyticsApi) mostActiveUsers(ctx echo.Context) error {
	actor, err := getSubject(ctx)
	if err != nil {
		return err
	}
	users, err := api.svc.MostActiveUsers(ctx.Request().Context(), actor, queryLimit(ctx))
	if err != nil {
		return errors.Wrap(err, "querying most active users")
	}
	if users == nil {
		users = []analytics.UserActivity{}
	}
	return ctx.JSON(http.StatusOK, users)
}

func (api *analyticsApi) popularCourses(ctx echo.Context) error {
	actor, err := getSubject(ctx)
	if err != nil {
		return err
	}
	courses, err := api.svc.PopularCourses(ctx.Request().Context(), actor, queryLimit(ctx))
	if err != nil {
		return errors.Wrap(err, "querying popular courses")
	}
	if courses == nil {
		courses = []analytics.CoursePopularity{}
	}
	return ctx.JSON(http.StatusOK, courses)
}
