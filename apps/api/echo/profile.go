package echoapi

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/maktab/core"
	"github.com/trezcool/maktab/core/user"
)

const avatarFormField = "avatar"

type profileAPI struct {
	svc          user.Service
	maxImageSize int64
}

func registerProfileAPI(sg *echo.Group, svc user.Service, maxImageSize int64) {
	api := profileAPI{svc: svc, maxImageSize: maxImageSize}

	sg.GET("/me/profile", api.retrieve)
	sg.PUT("/me/profile", api.update)
	sg.PUT("/me/avatar", api.setAvatar)
}

func (api *profileAPI) retrieve(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	prof, err := api.svc.GetProfile(ctx.Request().Context(), usr.ID)
	if err != nil {
		return errors.Wrap(err, "retrieving profile")
	}
	return ctx.JSON(http.StatusOK, prof)
}

func (api *profileAPI) update(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	var data user.UpdateProfile
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateProfile")
	}
	prof, err := api.svc.UpdateProfile(ctx.Request().Context(), usr.ID, data)
	if err != nil {
		return errors.Wrap(err, "updating profile")
	}
	return ctx.JSON(http.StatusOK, prof)
}

// setAvatar stores the multipart `avatar` image, resized and re-encoded, as the user's avatar.
func (api *profileAPI) setAvatar(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	fh, err := ctx.FormFile(avatarFormField)
	if err != nil {
		return core.NewValidationError(nil, core.FieldError{Field: avatarFormField, Error: "this field is required"})
	}
	if api.maxImageSize > 0 && fh.Size > api.maxImageSize {
		return core.NewValidationError(nil, core.FieldError{Field: avatarFormField, Error: "image is too large"})
	}
	f, err := fh.Open()
	if err != nil {
		return errors.Wrap(err, "opening uploaded file")
	}
	defer f.Close()

	var r io.Reader = f
	if api.maxImageSize > 0 {
		r = io.LimitReader(f, api.maxImageSize)
	}
	prof, err := api.svc.SetAvatar(ctx.Request().Context(), usr.ID, r)
	if err != nil {
		return errors.Wrap(err, "setting avatar")
	}
	return ctx.JSON(http.StatusOK, prof)
}
