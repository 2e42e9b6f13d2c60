package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/chantio/chantio/core/chat"
	"github.com/chantio/chantio/core/upload"
	"github.com/chantio/chantio/core/user"
)

type chatApi struct {
	svc       *chat.Service
	uploadSvc *upload.Service
	usrSvc    user.Service
	validate  *validator.Validate
}

func registerChatAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	svc *chat.Service,
	uploadSvc *upload.Service,
	usrSvc user.Service,
	validate *validator.Validate,
) {
	api := chatApi{svc: svc, uploadSvc: uploadSvc, usrSvc: usrSvc, validate: validate}

	cg := g.Group("/conversations", jwt)
	cg.POST("", api.create)
	cg.GET("", api.list)
	cg.GET("/:id", api.retrieve)
	cg.POST("/:id/messages", api.send)
	cg.GET("/:id/messages", api.messages)
	cg.POST("/:id/read", api.markRead)
	cg.GET("/:id/unread", api.countUnread)
}

func (api *chatApi) create(ctx echo.Context) error {
	var data chat.NewConversation
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewConversation")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	conv, err := api.svc.Create(ctx.Request().Context(), claims.Subject, data)
	if err != nil {
		return errors.Wrap(err, "creating conversation")
	}
	return ctx.JSON(http.StatusCreated, conv)
}

func (api *chatApi) list(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	convs, err := api.svc.List(ctx.Request().Context(), claims.Subject)
	if err != nil {
		return errors.Wrap(err, "listing conversations")
	}
	if convs == nil {
		convs = []chat.Conversation{}
	}
	return ctx.JSON(http.StatusOK, convs)
}

func (api *chatApi) retrieve(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	conv, err := api.svc.Get(ctx.Request().Context(), ctx.Param("id"), claims.Subject)
	if err != nil {
		return chatError(err, "finding conversation")
	}
	return ctx.JSON(http.StatusOK, conv)
}

// send accepts multipart form data: a "body" field plus optional "attachments" files.
func (api *chatApi) send(ctx echo.Context) error {
	var data chat.NewMessage
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewMessage")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	// membership gates the upload pipeline: a refused send must leave no files behind
	if _, err := api.svc.Get(ctx.Request().Context(), ctx.Param("id"), claims.Subject); err != nil {
		return chatError(err, "finding conversation")
	}

	ins, closeAll, err := optionalUploadInputs(ctx, "attachments", claims.Subject)
	if err != nil {
		return err
	}
	defer closeAll()

	files, err := api.uploadSvc.ProcessAll(ctx.Request().Context(), ins...)
	if err != nil {
		return errors.Wrap(err, "processing attachments")
	}
	attachments := make([]upload.Attachment, 0, len(files))
	for _, f := range files {
		attachments = append(attachments, f.Attachment())
	}

	msg, err := api.svc.Send(ctx.Request().Context(), ctx.Param("id"), claims.Subject, data, attachments)
	if err != nil {
		return chatError(err, "sending message")
	}
	return ctx.JSON(http.StatusCreated, msg)
}

func (api *chatApi) messages(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	filter := new(chat.MessageFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []chat.Message{})
	}

	msgs, err := api.svc.Messages(ctx.Request().Context(), ctx.Param("id"), claims.Subject, *filter)
	if err != nil {
		return chatError(err, "querying messages")
	}
	if msgs == nil {
		msgs = []chat.Message{}
	}
	return ctx.JSON(http.StatusOK, msgs)
}

func (api *chatApi) markRead(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	n, err := api.svc.MarkRead(ctx.Request().Context(), ctx.Param("id"), claims.Subject)
	if err != nil {
		return chatError(err, "marking messages read")
	}
	return ctx.JSON(http.StatusOK, echo.Map{"marked": n})
}

func (api *chatApi) countUnread(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	n, err := api.svc.CountUnread(ctx.Request().Context(), ctx.Param("id"), claims.Subject)
	if err != nil {
		return chatError(err, "counting unread messages")
	}
	return ctx.JSON(http.StatusOK, echo.Map{"unread": n})
}

// chatError maps service errors; non-members get a 404, not a 403,
// so conversation IDs leak nothing.
func chatError(err error, msg string) error {
	switch errors.Cause(err) {
	case chat.ErrNotFound, chat.ErrNotMember:
		return errHttpNotFound
	}
	return errors.Wrap(err, msg)
}
