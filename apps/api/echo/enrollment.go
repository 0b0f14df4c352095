package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core/enrollment"
)

type enrollmentApi struct {
	svc *enrollment.Service
}

func registerEnrollmentAPI(g *echo.Group, deps *Deps) {
	api := enrollmentApi{svc: deps.EnrollmentSvc}

	g.GET("", api.query)
	g.POST("", api.create)
	g.GET("/:id", api.retrieve)
	g.PUT("/:id", api.update)
	g.DELETE("/:id", api.destroy)
}

func (api *enrollmentApi) query(ctx echo.Context) error {
	actor, err := getSubject(ctx)
	if err != nil {
		return err
	}
	var filter enrollment.QueryFilter
	if err = ctx.Bind(&filter); err != nil {
		return ctx.JSON(http.StatusOK, []enrollment.Enrollment{})
	}

	enrollments, err := api.svc.List(ctx.Request().Context(), actor, filter)
	if err != nil {
		return errors.Wrap(err, "listing enrollments")
	}
	if enrollments == nil {
		enrollments = []enrollment.Enrollment{}
	}
	return ctx.JSON(http.StatusOK, enrollments)
}

func (api *enrollmentApi) retrieve(ctx echo.Context) error {
	actor, err := getSubject(ctx)
	if err != nil {
		return err
	}
	e, err := api.svc.Get(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "retrieving enrollment")
	}
	return ctx.JSON(http.StatusOK, e)
}

func (api *enrollmentApi) create(ctx echo.Context) error {
	actor, err := getSubject(ctx)
	if err != nil {
		return err
	}
	var data enrollment.NewEnrollment
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewEnrollment")
	}

	e, err := api.svc.Create(ctx.Request().Context(), actor, data)
	if err != nil {
		return errors.Wrap(err, "creating enrollment")
	}
	return ctx.JSON(http.StatusCreated, e)
}

func (api *enrollmentApi) update(ctx echo.Context) error {
	actor, err := getSubject(ctx)
	if err != nil {
		return err
	}
	var data enrollment.UpdateEnrollment
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateEnrollment")
	}

	e, err := api.svc.Update(ctx.Request().Context(), actor, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating enrollment")
	}
	return ctx.JSON(http.StatusOK, e)
}

func (api *enrollmentApi) destroy(ctx echo.Context) error {
	actor, err := getSubject(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.Delete(ctx.Request().Context(), actor, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting enrollment")
	}
	return ctx.NoContent(http.StatusNoContent)
}
