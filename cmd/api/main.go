package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/hiendaovinh/toolkit/pkg/env"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/samber/do"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"telemint/internal/api/handler"
	"telemint/internal/log"
	"telemint/internal/services"
)

func init() {
	// for development
	//nolint:errcheck
	godotenv.Load("../../.env")

	// for production
	//nolint:errcheck
	godotenv.Load("./.env")
}

func main() {
	vs, err := env.EnvsRequired(
		services.CONFIG_TON_NETWORK,
	)
	if err != nil {
		log.Fatal().Err(err).Msg("missing configuration")
	}

	container := NewContainer(vs)
	log.Init(vs["LOG_LEVEL"], vs["API_MODE"] == "production")

	app := &cli.App{
		Name: "api",
		Commands: []*cli.Command{
			commandServer(container),
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal().Err(err).Msg("api exited")
	}
}

func commandServer(container *do.Injector) *cli.Command {
	return &cli.Command{
		Name:  "server",
		Usage: "start the web server and the pending sweeper",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Value: "0.0.0.0:8080",
				Usage: "serve address",
			},
		},
		Action: func(c *cli.Context) error {
			vs := do.MustInvokeNamed[map[string]string](container, "envs")
			ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			serviceMint, err := do.Invoke[*services.ServiceMint](container)
			if err != nil {
				return err
			}
			restored, err := serviceMint.Restore(ctx)
			if err != nil {
				return err
			}
			log.Info().Int("requests", restored).Msg("journal restored")

			router, err := handler.New(&handler.Config{
				Container: container,
				Mode:      vs["API_MODE"],
				Origins:   strings.Split(vs["API_ORIGINS"], ","),
			})
			if err != nil {
				return err
			}

			srv := &http.Server{
				Addr:    c.String("addr"),
				Handler: router,
			}

			cronRunner := cron.New()
			if err := NewSweepJob(container).Start(cronRunner); err != nil {
				return err
			}
			cronRunner.Start()

			errWg, errCtx := errgroup.WithContext(ctx)

			errWg.Go(func() error {
				log.Info().Str("addr", c.String("addr")).Str("mode", vs["API_MODE"]).Msg("ListenAndServe")
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					return err
				}
				return nil
			})

			errWg.Go(func() error {
				<-errCtx.Done()
				<-cronRunner.Stop().Done()
				if err := srv.Shutdown(context.TODO()); err != nil {
					return err
				}
				return container.Shutdown()
			})

			return errWg.Wait()
		},
	}
}
