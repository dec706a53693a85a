package services

import (
	"fmt"
	"strings"
	"time"

	"telemint/internal/pkg/ton_utils"
)

const (
	CONFIG_TON_NETWORK          = "TON_NETWORK"
	CONFIG_COLLECTION_ADDRESS   = "COLLECTION_ADDRESS"
	CONFIG_MINT_FEE_NANOTON     = "MINT_FEE_NANOTON"
	CONFIG_WALLET_VARIANT       = "WALLET_VARIANT"
	CONFIG_WALLET_MNEMONIC      = "WALLET_MNEMONIC"
	CONFIG_WALLET_PRIVATE_KEY   = "WALLET_PRIVATE_KEY"
	CONFIG_MINT_MODE            = "MINT_MODE"
	CONFIG_MINT_VERIFIER        = "MINT_VERIFIER"
	CONFIG_NFT_ITEM_CODE        = "NFT_ITEM_CODE"
	CONFIG_MINT_LOG_FILE        = "MINT_LOG_FILE"
	CONFIG_MINT_PROCESS_DELAY   = "MINT_PROCESS_DELAY"
	CONFIG_MINT_PENDING_TTL     = "MINT_PENDING_TTL"
	CONFIG_BOT_TOKEN            = "BOT_TOKEN"
	CONFIG_TELEGRAM_CHANNEL_ID  = "TELEGRAM_CHANNEL_ID"
	CONFIG_TELEGRAM_WEB_APP_URL = "TELEGRAM_WEB_APP_URL"

	NETWORK_MAINNET = "mainnet"
	NETWORK_TESTNET = "testnet"

	MINT_MODE_NOTIFY    = "notify"
	MINT_MODE_CUSTODIAL = "custodial"

	VERIFIER_TRUSTING = "trusting"
	VERIFIER_ONCHAIN  = "onchain"

	FEE_SOURCE_CHAIN    = "chain"
	FEE_SOURCE_OVERRIDE = "override"
	FEE_SOURCE_DEFAULT  = "default"

	DEFAULT_MINT_FEE  = ton_utils.OneTON
	DEPLOY_ITEM_VALUE = ton_utils.OneTON / 20
	GAS_BUFFER        = ton_utils.OneTON * 3 / 10

	DEFAULT_PROCESS_DELAY = 5 * time.Second
	DEFAULT_PENDING_TTL   = 15 * time.Minute

	ENVELOPE_VALIDITY    = 180 * time.Second
	APPROVAL_TIMEOUT     = 60 * time.Second
	SEQNO_POLL_INTERVAL  = 2 * time.Second
	SUBMIT_MAX_ATTEMPTS  = 2
	SUBMIT_RETRY_BACKOFF = time.Second

	FEE_READ_TIMEOUT = 10 * time.Second

	BALANCE_LOOKUP_CONCURRENCY = 4
	MINT_RATE_LIMIT_PER_MINUTE = 10

	CACHE_TTL_1_MIN = 1 * time.Minute
)

var FEE_GETTERS = []string{"get_mint_fee", "get_full_price"}

func LockKeyAccount(addr ton_utils.Address) string {
	return fmt.Sprintf("lock:account:%s", addr.Raw())
}

func DBKeyFeeQuote(collection ton_utils.Address) string {
	return fmt.Sprintf("fee_quote:%s", strings.ToLower(collection.Raw()))
}

func RateLimitKeyMint(userAddress string) string {
	return fmt.Sprintf("rate:mint:%s", userAddress)
}
