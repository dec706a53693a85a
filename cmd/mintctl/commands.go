package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/samber/do"
	"github.com/tonkeeper/tongo/liteapi"
	"github.com/tonkeeper/tongo/wallet"
	"github.com/urfave/cli/v2"

	"telemint/internal/models"
	"telemint/internal/pkg/cell"
	"telemint/internal/pkg/payload"
	"telemint/internal/pkg/ton_utils"
	"telemint/internal/poller"
	"telemint/internal/services"
)

var sendFlag = &cli.BoolFlag{
	Name:  "send",
	Usage: "sign with the configured key and broadcast; otherwise only print the message",
}

func commandStatus() *cli.Command {
	return &cli.Command{
		Name:      "status",
		Usage:     "follow a mint request until it completes or fails",
		ArgsUsage: "<request id>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "api",
				Value:   "http://127.0.0.1:8080",
				EnvVars: []string{"MINT_API_URL"},
			},
			&cli.DurationFlag{
				Name:  "interval",
				Value: poller.DefaultInterval,
			},
		},
		Action: func(c *cli.Context) error {
			id := c.Args().First()
			if id == "" {
				return errors.New("request id is required")
			}
			p := poller.New(c.String("api"), poller.WithInterval(c.Duration("interval")))
			last := models.MintStatus("")
			req, err := p.Watch(c.Context, id, func(req *models.MintRequest) {
				if req.Status != last {
					fmt.Fprintf(c.App.Writer, "%s\t%s\n", time.Now().Format(time.TimeOnly), req.Status)
					last = req.Status
				}
			})
			if err != nil {
				return err
			}
			return printJSON(c, req)
		},
	}
}

func commandPayload() *cli.Command {
	return &cli.Command{
		Name:  "payload",
		Usage: "build a mint payload for a client wallet",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "user", Required: true, Usage: "recipient address"},
			&cli.StringFlag{Name: "uri", Required: true, Usage: "metadata uri"},
			&cli.StringFlag{Name: "collection"},
		},
		Action: func(c *cli.Context) error {
			serviceMint, err := do.Invoke[*services.ServiceMint](newContainer())
			if err != nil {
				return err
			}
			out, err := serviceMint.BuildPayload(c.Context, c.String("user"), c.String("uri"), c.String("collection"))
			if err != nil {
				return err
			}
			return printJSON(c, out)
		},
	}
}

func commandQuote() *cli.Command {
	return &cli.Command{
		Name:  "quote",
		Usage: "show the value a mint has to carry",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "collection"},
		},
		Action: func(c *cli.Context) error {
			container := newContainer()
			config, err := do.Invoke[*services.ServiceConfig](container)
			if err != nil {
				return err
			}
			serviceFee, err := do.Invoke[*services.ServiceFee](container)
			if err != nil {
				return err
			}
			collection, err := config.RequireCollection(c.String("collection"))
			if err != nil {
				return err
			}
			quote, err := serviceFee.ResolveRequiredValue(c.Context, collection)
			if err != nil {
				return err
			}
			return printJSON(c, quote)
		},
	}
}

func commandPredict() *cli.Command {
	return &cli.Command{
		Name:  "predict",
		Usage: "show the index and address of the next item",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "collection"},
		},
		Action: func(c *cli.Context) error {
			container := newContainer()
			config, err := do.Invoke[*services.ServiceConfig](container)
			if err != nil {
				return err
			}
			serviceMint, err := do.Invoke[*services.ServiceMint](container)
			if err != nil {
				return err
			}
			collection, err := config.RequireCollection(c.String("collection"))
			if err != nil {
				return err
			}
			index, addr, err := serviceMint.PredictItem(c.Context, collection)
			if err != nil {
				return err
			}
			return printJSON(c, map[string]any{
				"index":   index,
				"address": config.Human(addr),
				"raw":     addr.Raw(),
			})
		},
	}
}

func commandWallet() *cli.Command {
	return &cli.Command{
		Name:  "wallet",
		Usage: "list the wallets derived from the configured key and the one that would sign",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "liteapi",
				Usage: "cross-check the default wallet balance over liteservers (mnemonic only)",
			},
		},
		Action: func(c *cli.Context) error {
			container := newContainer()
			config, err := do.Invoke[*services.ServiceConfig](container)
			if err != nil {
				return err
			}
			if config.PrivateKey == nil {
				return fmt.Errorf("%w: no signing key", services.ErrConfiguration)
			}
			serviceWallet, err := do.Invoke[*services.ServiceWallet](container)
			if err != nil {
				return err
			}

			signer := services.NewKeySigner(config.PrivateKey)
			cands, err := serviceWallet.Candidates(c.Context, signer.PublicKey())
			if err != nil {
				return err
			}
			picked, err := services.SelectCandidate(cands, config.WalletVariant)
			if err != nil {
				return err
			}
			out := map[string]any{
				"candidates": cands,
				"selected":   picked.Tag,
			}

			if c.Bool("liteapi") {
				mnemonic := do.MustInvokeNamed[map[string]string](container, "envs")[services.CONFIG_WALLET_MNEMONIC]
				if mnemonic == "" {
					return fmt.Errorf("%w: liteapi cross-check needs %s", services.ErrConfiguration, services.CONFIG_WALLET_MNEMONIC)
				}
				client, err := liteClient(config.Testnet)
				if err != nil {
					return err
				}
				w, err := wallet.DefaultWalletFromSeed(mnemonic, client)
				if err != nil {
					return err
				}
				balance, err := w.GetBalance(c.Context)
				if err != nil {
					return err
				}
				addr := ton_utils.FromAccountID(w.GetAddress())
				out["liteapi"] = map[string]any{
					"address": config.Human(addr),
					"balance": balance,
				}
			}
			return printJSON(c, out)
		},
	}
}

func liteClient(testnet bool) (*liteapi.Client, error) {
	if testnet {
		return liteapi.NewClientWithDefaultTestnet()
	}
	return liteapi.NewClientWithDefaultMainnet()
}

func commandTransfer() *cli.Command {
	return &cli.Command{
		Name:  "transfer",
		Usage: "send TON from the signing wallet",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "to", Required: true},
			&cli.StringFlag{Name: "amount", Required: true, Usage: "TON, e.g. 1.5"},
			sendFlag,
		},
		Action: func(c *cli.Context) error {
			amount, err := ton_utils.ParseTON(c.String("amount"))
			if err != nil {
				return err
			}
			msg, err := payload.Transfer(c.String("to"), amount)
			if err != nil {
				return err
			}
			return dispatch(c, newContainer(), msg)
		},
	}
}

func commandChangeAdmin() *cli.Command {
	return &cli.Command{
		Name:  "change-admin",
		Usage: "hand the collection to a new admin, or revoke it with an empty --new-admin",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "collection"},
			&cli.StringFlag{Name: "new-admin"},
			&cli.StringFlag{Name: "value", Value: "0.05", Usage: "TON attached for gas"},
			sendFlag,
		},
		Action: func(c *cli.Context) error {
			container := newContainer()
			config, err := do.Invoke[*services.ServiceConfig](container)
			if err != nil {
				return err
			}
			collection, err := config.RequireCollection(c.String("collection"))
			if err != nil {
				return err
			}
			value, err := ton_utils.ParseTON(c.String("value"))
			if err != nil {
				return err
			}
			body, err := payload.ChangeAdmin(c.String("new-admin"))
			if err != nil {
				return err
			}
			return dispatch(c, container, &payload.Message{Destination: collection, Amount: value, Bounce: true, Payload: body})
		},
	}
}

func commandJetton() *cli.Command {
	return &cli.Command{
		Name:  "jetton",
		Usage: "deploy a jetton minter and mint to a recipient in one message",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "to", Required: true},
			&cli.Uint64Flag{Name: "amount", Required: true, Usage: "jetton units"},
			&cli.StringFlag{Name: "content", Required: true, Usage: "minter metadata uri"},
			&cli.StringFlag{Name: "minter-code", Required: true, Usage: "base64 BOC"},
			&cli.StringFlag{Name: "wallet-code", Required: true, Usage: "base64 BOC"},
			&cli.StringFlag{Name: "admin", Usage: "defaults to the signing wallet"},
			&cli.StringFlag{Name: "value", Value: "0.25", Usage: "TON attached to the deploy"},
			&cli.StringFlag{Name: "ton-amount", Value: "0.05", Usage: "TON forwarded to the recipient wallet"},
			sendFlag,
		},
		Action: func(c *cli.Context) error {
			container := newContainer()
			config, err := do.Invoke[*services.ServiceConfig](container)
			if err != nil {
				return err
			}
			minterCode, err := codeCell("minter-code", c.String("minter-code"))
			if err != nil {
				return err
			}
			walletCode, err := codeCell("wallet-code", c.String("wallet-code"))
			if err != nil {
				return err
			}
			value, err := ton_utils.ParseTON(c.String("value"))
			if err != nil {
				return err
			}
			tonAmount, err := ton_utils.ParseTON(c.String("ton-amount"))
			if err != nil {
				return err
			}

			admin := c.String("admin")
			if admin == "" {
				account, err := signingAccount(c, container)
				if err != nil {
					return err
				}
				admin = account.Address.Raw()
			}

			msg, err := payload.JettonDeployMint(payload.JettonMinterArgs{
				Workchain:  config.Workchain,
				Admin:      admin,
				ContentURI: c.String("content"),
				MinterCode: minterCode,
				WalletCode: walletCode,
			}, payload.JettonMintArgs{
				QueryID:   uint64(time.Now().Unix()),
				To:        c.String("to"),
				TonAmount: tonAmount,
				Amount:    c.Uint64("amount"),
				Response:  admin,
			}, value)
			if err != nil {
				return err
			}
			return dispatch(c, container, msg)
		},
	}
}

func codeCell(flag, b64 string) (*cell.Cell, error) {
	roots, err := cell.ParseBase64(b64)
	if err != nil {
		return nil, fmt.Errorf("--%s: %w", flag, err)
	}
	return roots[0], nil
}

func signingAccount(c *cli.Context, container *do.Injector) (*models.WalletCandidate, error) {
	config, err := do.Invoke[*services.ServiceConfig](container)
	if err != nil {
		return nil, err
	}
	if config.PrivateKey == nil {
		return nil, fmt.Errorf("%w: no signing key", services.ErrConfiguration)
	}
	serviceWallet, err := do.Invoke[*services.ServiceWallet](container)
	if err != nil {
		return nil, err
	}
	return serviceWallet.SelectSigningAccount(c.Context, services.NewKeySigner(config.PrivateKey).PublicKey())
}

// dispatch prints msg, and with --send signs and broadcasts it.
func dispatch(c *cli.Context, container *do.Injector, msg *payload.Message) error {
	config, err := do.Invoke[*services.ServiceConfig](container)
	if err != nil {
		return err
	}

	out := map[string]any{
		"destination": config.Human(msg.Destination),
		"amount":      ton_utils.FormatTON(msg.Amount),
		"bounce":      msg.Bounce,
		"deploy":      msg.StateInit != nil,
	}
	if msg.Payload != nil {
		b64, err := cell.ToBase64(msg.Payload)
		if err != nil {
			return err
		}
		out["payload"] = b64
	}
	if !c.Bool("send") {
		return printJSON(c, out)
	}

	account, err := signingAccount(c, container)
	if err != nil {
		return err
	}
	if account.BalanceError == "" && account.Balance < msg.Amount {
		return fmt.Errorf("%w: %s holds %s TON", services.ErrInsufficientBalance, account.Human, ton_utils.FormatTON(account.Balance))
	}
	submitter, err := do.Invoke[*services.ServiceSubmitter](container)
	if err != nil {
		return err
	}
	sub, err := submitter.Submit(c.Context, services.NewKeySigner(config.PrivateKey), account, msg)
	if sub != nil {
		out["state"] = sub.State
		out["wallet"] = account.Human
		out["seqno"] = sub.Seqno
		out["attempts"] = sub.Attempts
		out["messageHash"] = sub.MessageHash
	}
	if perr := printJSON(c, out); perr != nil {
		return perr
	}
	if err != nil {
		return fmt.Errorf("%s: %w", services.UserMessage(err), err)
	}
	return nil
}
