package main

import (
	"context"
	"database/sql"
	"os"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/hiendaovinh/toolkit/pkg/db"
	"github.com/redis/go-redis/v9"
	"github.com/samber/do"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"telemint/internal/datastore"
	"telemint/internal/interfaces"
	"telemint/internal/pkg/caching"
	"telemint/internal/pkg/limiter"
	"telemint/internal/pkg/locker"
	"telemint/internal/services"
	"telemint/internal/toncenter"
)

// lock expiry outlives the approval window of a submission
const lockExpiry = 2 * services.APPROVAL_TIMEOUT

var optionalEnvs = []string{
	"API_MODE",
	"API_ORIGINS",
	"LOG_LEVEL",
	"REDIS_URL",
	"DB_DSN",
	"DB_PASSWORD",
	"TONCENTER_ENDPOINTS",
	"TONCENTER_API_KEY",
	services.CONFIG_COLLECTION_ADDRESS,
	services.CONFIG_MINT_FEE_NANOTON,
	services.CONFIG_WALLET_VARIANT,
	services.CONFIG_WALLET_MNEMONIC,
	services.CONFIG_WALLET_PRIVATE_KEY,
	services.CONFIG_MINT_MODE,
	services.CONFIG_MINT_VERIFIER,
	services.CONFIG_NFT_ITEM_CODE,
	services.CONFIG_MINT_LOG_FILE,
	services.CONFIG_MINT_PROCESS_DELAY,
	services.CONFIG_MINT_PENDING_TTL,
	services.CONFIG_BOT_TOKEN,
	services.CONFIG_TELEGRAM_CHANNEL_ID,
	services.CONFIG_TELEGRAM_WEB_APP_URL,
}

func NewContainer(vs map[string]string) *do.Injector {
	injector := do.New()
	for _, key := range optionalEnvs {
		if _, ok := vs[key]; !ok {
			vs[key] = os.Getenv(key)
		}
	}
	if vs["API_MODE"] == "" {
		vs["API_MODE"] = "production"
	}
	if vs["API_ORIGINS"] == "" {
		vs["API_ORIGINS"] = "*"
	}

	do.ProvideNamedValue(injector, "envs", vs)
	do.Provide(injector, services.NewServiceConfig)

	do.Provide(injector, func(i *do.Injector) (interfaces.Chain, error) {
		config, err := do.Invoke[*services.ServiceConfig](i)
		if err != nil {
			return nil, err
		}

		var endpoints []toncenter.Endpoint
		if vs["TONCENTER_ENDPOINTS"] != "" {
			endpoints, err = toncenter.ParseEndpoints(vs["TONCENTER_ENDPOINTS"])
			if err != nil {
				return nil, err
			}
		} else if config.Testnet {
			endpoints = []toncenter.Endpoint{{URL: toncenter.TestnetEndpoint, Weight: 1}}
		} else {
			endpoints = []toncenter.Endpoint{{URL: toncenter.MainnetEndpoint, Weight: 1}}
		}
		return toncenter.NewClient(endpoints,
			toncenter.WithAPIKey(vs["TONCENTER_API_KEY"]),
			toncenter.WithRetryCount(1),
		)
	})

	do.Provide(injector, func(i *do.Injector) (redis.UniversalClient, error) {
		return db.InitRedis(&db.RedisConfig{
			URL: vs["REDIS_URL"],
		})
	})

	do.Provide(injector, func(i *do.Injector) (caching.Cache, error) {
		if vs["REDIS_URL"] == "" {
			return caching.NewCacheLocal(1000, services.CACHE_TTL_1_MIN), nil
		}
		dbRedis, err := do.Invoke[redis.UniversalClient](i)
		if err != nil {
			return nil, err
		}
		return caching.NewCacheRedis(dbRedis, true)
	})

	do.Provide(injector, func(i *do.Injector) (interfaces.Limiter, error) {
		if vs["REDIS_URL"] == "" {
			return limiter.Unlimited{}, nil
		}
		dbRedis, err := do.Invoke[redis.UniversalClient](i)
		if err != nil {
			return nil, err
		}
		return limiter.NewLimiter(dbRedis)
	})

	do.Provide(injector, func(i *do.Injector) (locker.Locker, error) {
		if vs["REDIS_URL"] == "" {
			return locker.NewLocalLocker(), nil
		}
		dbRedis, err := do.Invoke[redis.UniversalClient](i)
		if err != nil {
			return nil, err
		}
		rs := redsync.New(goredis.NewPool(dbRedis))
		return locker.NewRedsyncLocker(rs, lockExpiry), nil
	})

	do.Provide(injector, func(i *do.Injector) (*bun.DB, error) {
		sqldb := sql.OpenDB(pgdriver.NewConnector(
			pgdriver.WithDSN(vs["DB_DSN"]),
			pgdriver.WithPassword(vs["DB_PASSWORD"]),
		))

		return bun.NewDB(sqldb, pgdialect.New()), nil
	})

	do.Provide(injector, func(i *do.Injector) (datastore.MintRequestRepository, error) {
		return datastore.NewMemoryMintRequestRepository(), nil
	})

	do.Provide(injector, func(i *do.Injector) (datastore.Journal, error) {
		config, err := do.Invoke[*services.ServiceConfig](i)
		if err != nil {
			return nil, err
		}

		var journal datastore.MultiJournal
		if config.LogFile != "" {
			journal = append(journal, datastore.NewFileJournal(config.LogFile))
		}
		if vs["DB_DSN"] != "" {
			dbBun, err := do.Invoke[*bun.DB](i)
			if err != nil {
				return nil, err
			}
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := datastore.CreateTableMintRequestLog(ctx, dbBun); err != nil {
				return nil, err
			}
			journal = append(journal, datastore.NewBunJournal(dbBun))
		}

		switch len(journal) {
		case 0:
			return datastore.NopJournal{}, nil
		case 1:
			return journal[0], nil
		}
		return journal, nil
	})

	do.Provide(injector, services.NewVerifier)
	do.Provide(injector, services.NewServiceFee)
	do.Provide(injector, services.NewServiceWallet)
	do.Provide(injector, services.NewServiceSubmitter)
	do.Provide(injector, services.NewServiceMint)
	do.Provide(injector, services.NewBot)
	do.Provide(injector, func(i *do.Injector) (interfaces.Notifier, error) {
		return do.Invoke[*services.Bot](i)
	})

	return injector
}
