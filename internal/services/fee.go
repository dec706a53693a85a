package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/do"

	"telemint/internal/interfaces"
	"telemint/internal/log"
	"telemint/internal/models"
	"telemint/internal/pkg/caching"
	"telemint/internal/pkg/retry"
	"telemint/internal/pkg/ton_utils"
	"telemint/internal/toncenter"
)

type ServiceFee struct {
	config *ServiceConfig
	chain  interfaces.Chain
	cache  caching.Cache
	logger zerolog.Logger
	policy retry.Policy
	// timeout bounds one resolution, getters and retries included
	timeout time.Duration
}

func NewServiceFee(container *do.Injector) (*ServiceFee, error) {
	config, err := do.Invoke[*ServiceConfig](container)
	if err != nil {
		return nil, err
	}

	chain, err := do.Invoke[interfaces.Chain](container)
	if err != nil {
		return nil, err
	}

	cache, err := do.Invoke[caching.Cache](container)
	if err != nil {
		return nil, err
	}

	return &ServiceFee{
		config: config,
		chain:  chain,
		cache:  cache,
		logger: log.Fee,
		policy: retry.Policy{
			MaxAttempts: 2,
			Backoff:     200 * time.Millisecond,
			// a getter that ran and failed will fail again, a timed out
			// read would only eat the rest of the budget
			Retryable: func(err error) bool {
				var apiErr *toncenter.APIError
				return !errors.As(err, &apiErr) && !errors.Is(err, context.DeadlineExceeded)
			},
		},
		timeout: FEE_READ_TIMEOUT,
	}, nil
}

// ResolveRequiredValue prices one mint against collection. It never fails
// because of the chain: getters, then the configured override, then the
// default fee are tried in that order.
func (service *ServiceFee) ResolveRequiredValue(ctx context.Context, collection ton_utils.Address) (*models.FeeQuote, error) {
	quote := &models.FeeQuote{
		DeployItemValue: DEPLOY_ITEM_VALUE,
		GasBuffer:       GAS_BUFFER,
	}

	readCtx, cancel := context.WithTimeout(ctx, service.timeout)
	defer cancel()
	fee, err := caching.UseCache(readCtx, service.cache, DBKeyFeeQuote(collection), CACHE_TTL_1_MIN, func() (uint64, error) {
		return service.chainFee(readCtx, collection)
	})
	switch {
	case err == nil:
		quote.Fee, quote.Source = fee, FEE_SOURCE_CHAIN
	case service.config.MintFeeOverride != nil:
		service.logger.Warn().Err(err).Str("collection", collection.Raw()).Msg("on-chain fee unavailable, using override")
		quote.Fee, quote.Source = *service.config.MintFeeOverride, FEE_SOURCE_OVERRIDE
	default:
		service.logger.Warn().Err(err).Str("collection", collection.Raw()).Msg("on-chain fee unavailable, using default")
		quote.Fee, quote.Source = DEFAULT_MINT_FEE, FEE_SOURCE_DEFAULT
	}

	quote.Total = quote.Fee + quote.DeployItemValue + quote.GasBuffer
	if quote.Total < quote.Fee {
		return nil, fmt.Errorf("%w: fee %d overflows", ErrInvalidArgument, quote.Fee)
	}
	return quote, nil
}

func (service *ServiceFee) chainFee(ctx context.Context, collection ton_utils.Address) (uint64, error) {
	var errs []error
	for _, method := range FEE_GETTERS {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		var fee uint64
		err := service.policy.Do(ctx, func(ctx context.Context) error {
			res, err := service.chain.RunGetMethod(ctx, collection, method, nil)
			if err != nil {
				return err
			}
			fee, err = res.Uint64(0)
			return err
		})
		if err == nil {
			return fee, nil
		}
		service.logger.Debug().Err(err).Str("method", method).Msg("fee getter failed")
		errs = append(errs, fmt.Errorf("%s: %w", method, err))
	}
	return 0, fmt.Errorf("%w: %w", ErrRemoteRead, errors.Join(errs...))
}
