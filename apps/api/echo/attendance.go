package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core/attendance"
)

type attendanceApi struct {
	svc *attendance.Service
}

func registerAttendanceAPI(g *echo.Group, deps *Deps) {
	api := attendanceApi{svc: deps.AttendanceSvc}

	g.GET("", api.query)
	g.POST("", api.create)
	g.POST("/mark/:student_id/:course_id", api.mark)
	g.GET("/:id", api.retrieve)
	g.PUT("/:id", api.update)
	g.DELETE("/:id", api.destroy)
}

func (api *attendanceApi) query(ctx echo.Context) error {
	actor, err := getSubject(ctx)
	if err != nil {
		return err
	}
	var filter attendance.QueryFilter
	if err = ctx.Bind(&filter); err != nil {
		return ctx.JSON(http.StatusOK, []attendance.Record{})
	}

	records, err := api.svc.List(ctx.Request().Context(), actor, filter)
	if err != nil {
		return errors.Wrap(err, "listing attendance records")
	}
	if records == nil {
		records = []attendance.Record{}
	}
	return ctx.JSON(http.StatusOK, records)
}

func (api *attendanceApi) retrieve(ctx echo.Context) error {
	actor, err := getSubject(ctx)
	if err != nil {
		return err
	}
	rec, err := api.svc.Get(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "retrieving attendance record")
	}
	return ctx.JSON(http.StatusOK, rec)
}

func (api *attendanceApi) create(ctx echo.Context) error {
	actor, err := getSubject(ctx)
	if err != nil {
		return err
	}
	var data attendance.NewRecord
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewRecord")
	}

	rec, err := api.svc.Create(ctx.Request().Context(), actor, data)
	if err != nil {
		return errors.Wrap(err, "creating attendance record")
	}
	return ctx.JSON(http.StatusCreated, rec)
}

// mark marks today's attendance of the student to the course as present.
func (api *attendanceApi) mark(ctx echo.Context) error {
	actor, err := getSubject(ctx)
	if err != nil {
		return err
	}
	if _, err = api.svc.Mark(ctx.Request().Context(), actor, ctx.Param("student_id"), ctx.Param("course_id")); err != nil {
		return errors.Wrap(err, "marking attendance")
	}
	return ctx.JSON(http.StatusOK, MessageResponse{Message: "Attendance marked as present."})
}

func (api *attendanceApi) update(ctx echo.Context) error {
	actor, err := getSubject(ctx)
	if err != nil {
		return err
	}
	var data attendance.UpdateRecord
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateRecord")
	}

	rec, err := api.svc.Update(ctx.Request().Context(), actor, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating attendance record")
	}
	return ctx.JSON(http.StatusOK, rec)
}

func (api *attendanceApi) destroy(ctx echo.Context) error {
	actor, err := getSubject(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.Delete(ctx.Request().Context(), actor, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting attendance record")
	}
	return ctx.NoContent(http.StatusNoContent)
}

type MessageResponse struct {
	Message string `json:"message"`
}
