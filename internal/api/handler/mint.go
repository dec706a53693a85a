package handler

import (
	"net/http"
	"strings"

	"github.com/go-redis/redis_rate/v10"
	"github.com/labstack/echo/v4"
	"github.com/samber/do"

	"telemint/internal/interfaces"
	"telemint/internal/models"
	"telemint/internal/services"
)

type groupMint struct {
	container *do.Injector
}

func (gr *groupMint) Submit(c echo.Context) error {
	serviceMint, err := do.Invoke[*services.ServiceMint](gr.container)
	if err != nil {
		return fail(c, err)
	}
	limit, err := do.Invoke[interfaces.Limiter](gr.container)
	if err != nil {
		return fail(c, err)
	}

	var input models.MintRequestInput
	if err := c.Bind(&input); err != nil {
		return abort(c, http.StatusBadRequest, err)
	}
	if strings.TrimSpace(input.TxHash) == "" || strings.TrimSpace(input.UserAddress) == "" || strings.TrimSpace(input.MetadataURI) == "" {
		return abort(c, http.StatusBadRequest, services.ErrInvalidArgument)
	}

	ctx := c.Request().Context()
	if err := limit.Allow(ctx, services.RateLimitKeyMint(input.UserAddress), redis_rate.PerMinute(services.MINT_RATE_LIMIT_PER_MINUTE)); err != nil {
		return fail(c, err)
	}

	input.TelegramUserID = telegramUserID(ctx)
	req, err := serviceMint.Submit(ctx, input)
	if err != nil {
		return fail(c, err)
	}

	res := map[string]any{
		"success":   true,
		"requestId": req.ID,
	}
	if req.PredictedItemAddress != "" {
		res["predictedItemAddress"] = req.PredictedItemAddress
	}
	return c.JSON(http.StatusOK, res)
}

func (gr *groupMint) Status(c echo.Context) error {
	serviceMint, err := do.Invoke[*services.ServiceMint](gr.container)
	if err != nil {
		return fail(c, err)
	}

	req, err := serviceMint.Get(c.Request().Context(), c.Param("requestId"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"success": true, "request": req})
}

func (gr *groupMint) List(c echo.Context) error {
	serviceMint, err := do.Invoke[*services.ServiceMint](gr.container)
	if err != nil {
		return fail(c, err)
	}

	mints, err := serviceMint.List(c.Request().Context(), c.Param("userAddress"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"success": true, "mints": mints})
}

func (gr *groupMint) Quote(c echo.Context) error {
	config, err := do.Invoke[*services.ServiceConfig](gr.container)
	if err != nil {
		return fail(c, err)
	}
	serviceFee, err := do.Invoke[*services.ServiceFee](gr.container)
	if err != nil {
		return fail(c, err)
	}

	collection, err := config.RequireCollection(c.QueryParam("collection"))
	if err != nil {
		return fail(c, err)
	}
	quote, err := serviceFee.ResolveRequiredValue(c.Request().Context(), collection)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"success": true, "quote": quote})
}

type payloadInput struct {
	UserAddress string `json:"userAddress"`
	MetadataURI string `json:"metadataUri"`
	Collection  string `json:"collection"`
}

func (gr *groupMint) Payload(c echo.Context) error {
	serviceMint, err := do.Invoke[*services.ServiceMint](gr.container)
	if err != nil {
		return fail(c, err)
	}

	var input payloadInput
	if err := c.Bind(&input); err != nil {
		return abort(c, http.StatusBadRequest, err)
	}
	out, err := serviceMint.BuildPayload(c.Request().Context(), input.UserAddress, input.MetadataURI, input.Collection)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"success":    true,
		"payload":    out.Payload,
		"amount":     out.Amount,
		"collection": out.Collection,
		"validUntil": out.ValidUntil,
		"quote":      out.Quote,
	})
}
