package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/chantio/chantio/core/upload"
	"github.com/chantio/chantio/core/user"
)

type uploadApi struct {
	svc    *upload.Service
	usrSvc user.Service
}

func registerUploadAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *upload.Service, usrSvc user.Service) {
	api := uploadApi{svc: svc, usrSvc: usrSvc}

	ug := g.Group("/uploads", jwt)
	ug.POST("", api.create)
	ug.GET("/:id", api.download)
	ug.GET("/:id/thumbnail", api.thumbnail)
}

func (api *uploadApi) create(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	ins, closeAll, err := uploadInputs(ctx, "files", claims.Subject)
	if err != nil {
		return err
	}
	defer closeAll()

	files, err := api.svc.ProcessAll(ctx.Request().Context(), ins...)
	if err != nil {
		return errors.Wrap(err, "processing uploads")
	}
	return ctx.JSON(http.StatusCreated, files)
}

func (api *uploadApi) download(ctx echo.Context) error {
	f, err := api.getFile(ctx)
	if err != nil {
		return err
	}

	body, err := api.svc.Open(f)
	if err != nil {
		return errors.Wrap(err, "opening file")
	}
	defer body.Close()

	ctx.Response().Header().Set(echo.HeaderContentDisposition, `inline; filename="`+f.OriginalName+`"`)
	return ctx.Stream(http.StatusOK, f.ContentType, body)
}

func (api *uploadApi) thumbnail(ctx echo.Context) error {
	f, err := api.getFile(ctx)
	if err != nil {
		return err
	}

	body, err := api.svc.OpenThumbnail(f)
	if err != nil {
		if errors.Cause(err) == upload.ErrNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "opening thumbnail")
	}
	defer body.Close()

	return ctx.Stream(http.StatusOK, f.ContentType, body)
}

func (api *uploadApi) getFile(ctx echo.Context) (upload.StoredFile, error) {
	f, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		if errors.Cause(err) == upload.ErrNotFound {
			return upload.StoredFile{}, errHttpNotFound
		}
		return upload.StoredFile{}, errors.Wrap(err, "finding file by ID")
	}
	return f, nil
}

var errNoFiles = echo.NewHTTPError(http.StatusBadRequest, "no files provided")

// uploadInputs collects the multipart files under field into pipeline inputs.
// The returned closeAll must be called once processing is done.
func uploadInputs(ctx echo.Context, field, uploadedBy string) ([]upload.Input, func(), error) {
	form, err := ctx.MultipartForm()
	if err != nil {
		return nil, nil, errNoFiles
	}
	headers := form.File[field]
	if len(headers) == 0 {
		return nil, nil, errNoFiles
	}

	ins := make([]upload.Input, 0, len(headers))
	closers := make([]func() error, 0, len(headers))
	closeAll := func() {
		for _, close := range closers {
			_ = close()
		}
	}

	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			closeAll()
			return nil, nil, errors.Wrap(err, "opening multipart file")
		}
		closers = append(closers, f.Close)
		ins = append(ins, upload.Input{
			Name:        fh.Filename,
			ContentType: fh.Header.Get(echo.HeaderContentType),
			Size:        fh.Size,
			Body:        f,
			UploadedBy:  uploadedBy,
		})
	}
	return ins, closeAll, nil
}

// optionalUploadInputs is uploadInputs for endpoints where files may be absent.
func optionalUploadInputs(ctx echo.Context, field, uploadedBy string) ([]upload.Input, func(), error) {
	ins, closeAll, err := uploadInputs(ctx, field, uploadedBy)
	if err == errNoFiles {
		return nil, func() {}, nil
	}
	return ins, closeAll, err
}
