package interfaces

import (
	"context"

	"github.com/go-redis/redis_rate/v10"

	"telemint/internal/models"
	"telemint/internal/pkg/ton_utils"
	"telemint/internal/toncenter"
)

type Limiter interface {
	Allow(ctx context.Context, key string, limit redis_rate.Limit) error
}

// Chain is the remote read/submit API.
type Chain interface {
	GetBalance(ctx context.Context, addr ton_utils.Address) (uint64, error)
	GetWalletInfo(ctx context.Context, addr ton_utils.Address) (*toncenter.WalletInfo, error)
	RunGetMethod(ctx context.Context, addr ton_utils.Address, method string, stack [][]string) (*toncenter.GetMethodResult, error)
	SendBoc(ctx context.Context, boc []byte) error
	TransactionsByMessage(ctx context.Context, msgHash string) (int, error)
}

type Notifier interface {
	NotifyMinted(ctx context.Context, req *models.MintRequest) error
}
