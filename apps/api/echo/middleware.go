package echoapi

import (
	"github.com/labstack/echo/v4"
)

func adminMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		usr, err := getContextUser(ctx)
		if err != nil {
			return err
		}
		if usr.IsAdmin() {
			return next(ctx)
		}
		return errHttpForbidden
	}
}
