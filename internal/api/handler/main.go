package handler

import (
	"net/http"

	"github.com/hiendaovinh/toolkit/pkg/httpx-echo"
	"github.com/labstack/echo-contrib/pprof"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/samber/do"

	"telemint/internal/services"
)

type Config struct {
	Container *do.Injector
	Mode      string
	Origins   []string
}

func New(cfg *Config) (http.Handler, error) {
	r := echo.New()
	r.Pre(middleware.RemoveTrailingSlash())
	if cfg.Mode == "debug" {
		r.Debug = true
		pprof.Register(r)
	}

	r.JSONSerializer = httpx.SegmentJSONSerializer{}
	r.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Format: "${time_rfc3339}\t${method}\t${uri}\t${status}\t${latency_human}\n",
	}))
	r.Use(middleware.Recover())

	r.GET("", func(c echo.Context) error {
		return c.String(http.StatusOK, "🤖")
	})

	routesAPI := r.Group("/api")
	{
		bot, err := do.Invoke[*services.Bot](cfg.Container)
		if err != nil {
			return nil, err
		}
		cors := middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: cfg.Origins,
			AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, HeaderTelegramInitData},
			MaxAge:       60 * 60,
		})
		routesAPI.Use(cors)
		routesAPI.Use(Identify(bot))

		m := groupMint{cfg.Container}
		routesAPI.POST("/mint-request", m.Submit)
		routesAPI.GET("/mint-status/:requestId", m.Status)
		routesAPI.GET("/mints/:userAddress", m.List)
		routesAPI.GET("/mint-quote", m.Quote)
		routesAPI.POST("/mint-payload", m.Payload)
	}

	return r, nil
}
