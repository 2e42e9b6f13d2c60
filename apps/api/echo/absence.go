package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/chantio/chantio/core/absence"
	"github.com/chantio/chantio/core/user"
)

type absenceApi struct {
	svc      *absence.Service
	usrSvc   user.Service
	validate *validator.Validate
}

func registerAbsenceAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *absence.Service, usrSvc user.Service, validate *validator.Validate) {
	api := absenceApi{svc: svc, usrSvc: usrSvc, validate: validate}

	ag := g.Group("/absences", jwt)
	ag.POST("", api.submit)
	ag.GET("", api.query)
	ag.GET("/:id", api.retrieve)
	ag.PUT("/:id/review", api.review, staffMiddleware(isHR))
	ag.DELETE("/:id", api.cancel)
}

func (api *absenceApi) submit(ctx echo.Context) error {
	var data absence.NewAbsence
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewAbsence")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	abs, err := api.svc.Submit(ctx.Request().Context(), claims.Subject, data)
	if err != nil {
		return errors.Wrap(err, "submitting absence")
	}
	return ctx.JSON(http.StatusCreated, abs)
}

func (api *absenceApi) query(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	filter := new(absence.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []absence.Absence{})
	}
	// non-staff only ever see their own requests
	if !(claims.IsAdmin || claims.IsHR || claims.IsManager) {
		filter.UserID = claims.Subject
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	absences, err := api.svc.Query(ctx.Request().Context(), filter, ordering.Orderings...)
	if err != nil {
		return errors.Wrap(err, "querying absences")
	}
	if absences == nil {
		absences = []absence.Absence{}
	}
	return ctx.JSON(http.StatusOK, absences)
}

func (api *absenceApi) retrieve(ctx echo.Context) error {
	abs, err := api.getVisibleAbsence(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, abs)
}

func (api *absenceApi) review(ctx echo.Context) error {
	var data absence.ReviewAbsence
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ReviewAbsence")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	reviewer, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	abs, err := api.svc.Review(ctx.Request().Context(), ctx.Param("id"), reviewer, data)
	if err != nil {
		if errors.Cause(err) == absence.ErrNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "reviewing absence")
	}
	return ctx.JSON(http.StatusOK, abs)
}

func (api *absenceApi) cancel(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	if err := api.svc.Cancel(ctx.Request().Context(), ctx.Param("id"), claims.Subject); err != nil {
		if errors.Cause(err) == absence.ErrNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "cancelling absence")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// getVisibleAbsence fetches the request; a hit someone may not see reads as a miss.
func (api *absenceApi) getVisibleAbsence(ctx echo.Context) (absence.Absence, error) {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return absence.Absence{}, errors.Wrap(err, "getting context claims")
	}

	abs, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		if errors.Cause(err) == absence.ErrNotFound {
			return absence.Absence{}, errHttpNotFound
		}
		return absence.Absence{}, errors.Wrap(err, "finding absence by ID")
	}
	if abs.UserID != claims.Subject && !(claims.IsAdmin || claims.IsHR || claims.IsManager) {
		return absence.Absence{}, errHttpNotFound
	}
	return abs, nil
}
