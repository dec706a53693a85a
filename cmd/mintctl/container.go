package main

import (
	"os"

	"github.com/samber/do"

	"telemint/internal/datastore"
	"telemint/internal/interfaces"
	"telemint/internal/pkg/caching"
	"telemint/internal/pkg/limiter"
	"telemint/internal/pkg/locker"
	"telemint/internal/services"
	"telemint/internal/toncenter"
)

var envs = []string{
	"TONCENTER_ENDPOINTS",
	"TONCENTER_API_KEY",
	services.CONFIG_TON_NETWORK,
	services.CONFIG_COLLECTION_ADDRESS,
	services.CONFIG_MINT_FEE_NANOTON,
	services.CONFIG_WALLET_VARIANT,
	services.CONFIG_WALLET_MNEMONIC,
	services.CONFIG_WALLET_PRIVATE_KEY,
	services.CONFIG_NFT_ITEM_CODE,
}

// newContainer wires the chain side of the service for one-shot commands.
// Nothing is persisted and no notifications are sent.
func newContainer() *do.Injector {
	vs := map[string]string{}
	for _, key := range envs {
		vs[key] = os.Getenv(key)
	}

	injector := do.New()
	do.ProvideNamedValue(injector, "envs", vs)
	do.Provide(injector, services.NewServiceConfig)

	do.Provide(injector, func(i *do.Injector) (interfaces.Chain, error) {
		config, err := do.Invoke[*services.ServiceConfig](i)
		if err != nil {
			return nil, err
		}
		endpoints := []toncenter.Endpoint{{URL: toncenter.MainnetEndpoint, Weight: 1}}
		if config.Testnet {
			endpoints = []toncenter.Endpoint{{URL: toncenter.TestnetEndpoint, Weight: 1}}
		}
		if vs["TONCENTER_ENDPOINTS"] != "" {
			if endpoints, err = toncenter.ParseEndpoints(vs["TONCENTER_ENDPOINTS"]); err != nil {
				return nil, err
			}
		}
		return toncenter.NewClient(endpoints, toncenter.WithAPIKey(vs["TONCENTER_API_KEY"]))
	})

	do.ProvideValue[caching.Cache](injector, caching.NewCacheLocal(100, services.CACHE_TTL_1_MIN))
	do.ProvideValue[interfaces.Limiter](injector, limiter.Unlimited{})
	do.ProvideValue[locker.Locker](injector, locker.NewLocalLocker())
	do.ProvideValue[datastore.MintRequestRepository](injector, datastore.NewMemoryMintRequestRepository())
	do.ProvideValue[datastore.Journal](injector, datastore.NopJournal{})

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
