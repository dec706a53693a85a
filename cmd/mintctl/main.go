package main

import (
	"encoding/json"
	"os"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"telemint/internal/log"
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
	app := &cli.App{
		Name:  "mintctl",
		Usage: "operate the minting wallet and follow mint requests",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "log-level",
				Value: "warn",
				Usage: "debug, info, warn or error",
			},
		},
		Before: func(c *cli.Context) error {
			log.Init(c.String("log-level"), false)
			return nil
		},
		Commands: []*cli.Command{
			commandStatus(),
			commandPayload(),
			commandQuote(),
			commandPredict(),
			commandWallet(),
			commandTransfer(),
			commandChangeAdmin(),
			commandJetton(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal().Err(err).Msg("mintctl")
	}
}

func printJSON(c *cli.Context, v any) error {
	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
