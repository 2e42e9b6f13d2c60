package echoapi

import (
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/chantio/chantio/core/user"
)

// registerSocketAPI mounts the events channel. Browsers cannot set an
// Authorization header on a websocket handshake, so the JWT arrives as a
// `token` query parameter instead of going through the JWT middleware.
func registerSocketAPI(g *echo.Group, sockets SocketServer, usrSvc user.Service) {
	g.GET("/ws", func(ctx echo.Context) error {
		claims, err := ParseToken(ctx.QueryParam("token"))
		if err != nil {
			return err
		}

		usr, err := usrSvc.GetByID(ctx.Request().Context(), claims.Subject)
		if err != nil {
			return errUnauthorized
		}
		if !usr.IsActive {
			return errAccountDeactivated
		}

		if err := sockets.ServeWS(ctx.Response(), ctx.Request(), usr.ID); err != nil {
			return errors.Wrap(err, "upgrading to websocket")
		}
		return nil
	})
}
