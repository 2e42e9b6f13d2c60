package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/chantio/chantio/core/intervention"
	"github.com/chantio/chantio/core/upload"
	"github.com/chantio/chantio/core/user"
)

type interventionApi struct {
	svc       *intervention.Service
	uploadSvc *upload.Service
	usrSvc    user.Service
	validate  *validator.Validate
}

func registerInterventionAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	svc *intervention.Service,
	uploadSvc *upload.Service,
	usrSvc user.Service,
	validate *validator.Validate,
) {
	api := interventionApi{svc: svc, uploadSvc: uploadSvc, usrSvc: usrSvc, validate: validate}

	ig := g.Group("/interventions", jwt)
	ig.POST("", api.submit)
	ig.GET("", api.query)
	ig.GET("/:id", api.retrieve)
	ig.PUT("/:id/assign", api.assign, staffMiddleware(isManager, isWorkshop))
	ig.PUT("/:id/status", api.setStatus, staffMiddleware(isWorkshop))
	ig.DELETE("/:id", api.cancel)
}

// submit accepts multipart form data: the ticket fields plus optional "photos" files.
func (api *interventionApi) submit(ctx echo.Context) error {
	var data intervention.NewIntervention
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewIntervention")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	ins, closeAll, err := optionalUploadInputs(ctx, "photos", claims.Subject)
	if err != nil {
		return err
	}
	defer closeAll()

	files, err := api.uploadSvc.ProcessAll(ctx.Request().Context(), ins...)
	if err != nil {
		return errors.Wrap(err, "processing photos")
	}
	photos := make([]upload.Attachment, 0, len(files))
	for _, f := range files {
		photos = append(photos, f.Attachment())
	}

	iv, err := api.svc.Submit(ctx.Request().Context(), claims.Subject, data, photos)
	if err != nil {
		return errors.Wrap(err, "submitting intervention")
	}
	return ctx.JSON(http.StatusCreated, iv)
}

func (api *interventionApi) query(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	filter := new(intervention.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []intervention.Intervention{})
	}
	filter.Clean()
	// workers only ever see their own tickets
	if !(claims.IsAdmin || claims.IsManager || claims.IsWorkshop) {
		filter.UserID = claims.Subject
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	ivs, err := api.svc.Query(ctx.Request().Context(), filter, ordering.Orderings...)
	if err != nil {
		return errors.Wrap(err, "querying interventions")
	}
	if ivs == nil {
		ivs = []intervention.Intervention{}
	}
	return ctx.JSON(http.StatusOK, ivs)
}

func (api *interventionApi) retrieve(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	iv, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		if errors.Cause(err) == intervention.ErrNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "finding intervention by ID")
	}
	visible := iv.UserID == claims.Subject ||
		iv.AssigneeID == claims.Subject ||
		claims.IsAdmin || claims.IsManager || claims.IsWorkshop
	if !visible {
		return errHttpNotFound
	}
	return ctx.JSON(http.StatusOK, iv)
}

func (api *interventionApi) assign(ctx echo.Context) error {
	var data intervention.AssignIntervention
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to AssignIntervention")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	iv, err := api.svc.Assign(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		if errors.Cause(err) == intervention.ErrNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "assigning intervention")
	}
	return ctx.JSON(http.StatusOK, iv)
}

func (api *interventionApi) setStatus(ctx echo.Context) error {
	var data intervention.UpdateStatus
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateStatus")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	iv, err := api.svc.SetStatus(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		if errors.Cause(err) == intervention.ErrNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "updating intervention status")
	}
	return ctx.JSON(http.StatusOK, iv)
}

func (api *interventionApi) cancel(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	if err := api.svc.Cancel(ctx.Request().Context(), ctx.Param("id"), claims.Subject); err != nil {
		if errors.Cause(err) == intervention.ErrNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "cancelling intervention")
	}
	return ctx.NoContent(http.StatusNoContent)
}
