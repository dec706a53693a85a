package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"telemint/internal/datastore"
	"telemint/internal/log"
	"telemint/internal/pkg/limiter"
	"telemint/internal/services"
)

const HeaderTelegramInitData = "X-Telegram-Init-Data"

type ctxKey string

var ctxKeyTelegramUser ctxKey = "TELEGRAM_USER"

// Identify attaches the Telegram user behind the init data header. Requests
// without the header pass through anonymously.
func Identify(verifier interface {
	TelegramUserID(raw string) (int64, error)
},
) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw := c.Request().Header.Get(HeaderTelegramInitData)
			if raw == "" {
				return next(c)
			}

			id, err := verifier.TelegramUserID(raw)
			if err != nil {
				return abort(c, http.StatusUnauthorized, errors.New("invalid init data"))
			}

			ctx := context.WithValue(c.Request().Context(), ctxKeyTelegramUser, id)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

func telegramUserID(ctx context.Context) int64 {
	id, _ := ctx.Value(ctxKeyTelegramUser).(int64)
	return id
}

func abort(c echo.Context, status int, err error) error {
	return c.JSON(status, map[string]any{
		"success": false,
		"error":   err.Error(),
	})
}

// fail maps service errors onto status codes. Only client errors carry
// their text back.
func fail(c echo.Context, err error) error {
	switch {
	case errors.Is(err, services.ErrInvalidArgument):
		return abort(c, http.StatusBadRequest, err)
	case errors.Is(err, datastore.ErrNotFound):
		return abort(c, http.StatusNotFound, errors.New("mint request not found"))
	case errors.Is(err, limiter.ErrRateLimited):
		return abort(c, http.StatusTooManyRequests, errors.New("too many requests"))
	case errors.Is(err, services.ErrConfiguration):
		log.API.Error().Err(err).Str("uri", c.Request().RequestURI).Msg("misconfigured")
		return abort(c, http.StatusServiceUnavailable, errors.New("service not configured"))
	}
	log.API.Error().Err(err).Str("uri", c.Request().RequestURI).Msg("request failed")
	return abort(c, http.StatusInternalServerError, errors.New("internal error"))
}
