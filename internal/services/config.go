package services

import (
	"crypto/ed25519"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/samber/do"

	"telemint/internal/pkg/cell"
	"telemint/internal/pkg/ton_utils"
)

// ServiceConfig is the typed view of the process environment.
type ServiceConfig struct {
	Testnet         bool
	Workchain       int32
	Collection      *ton_utils.Address
	MintFeeOverride *uint64
	WalletVariant   string
	Mode            string
	Verifier        string
	NftItemCode     *cell.Cell
	LogFile         string
	ProcessDelay    time.Duration
	PendingTTL      time.Duration
	BotToken        string
	ChannelID       int64
	WebAppURL       string
	PrivateKey      ed25519.PrivateKey
}

func NewServiceConfig(container *do.Injector) (*ServiceConfig, error) {
	vs, err := do.InvokeNamed[map[string]string](container, "envs")
	if err != nil {
		return nil, err
	}
	return LoadConfig(vs)
}

func configErr(key string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrConfiguration, key, err)
}

func LoadConfig(vs map[string]string) (*ServiceConfig, error) {
	get := func(key string) string {
		return strings.TrimSpace(vs[key])
	}
	cfg := &ServiceConfig{
		Mode:         MINT_MODE_NOTIFY,
		Verifier:     VERIFIER_TRUSTING,
		ProcessDelay: DEFAULT_PROCESS_DELAY,
		PendingTTL:   DEFAULT_PENDING_TTL,
		BotToken:     get(CONFIG_BOT_TOKEN),
		LogFile:      get(CONFIG_MINT_LOG_FILE),
		WebAppURL:    get(CONFIG_TELEGRAM_WEB_APP_URL),
	}

	switch network := strings.ToLower(get(CONFIG_TON_NETWORK)); network {
	case "", NETWORK_MAINNET:
	case NETWORK_TESTNET:
		cfg.Testnet = true
	default:
		return nil, configErr(CONFIG_TON_NETWORK, fmt.Errorf("unknown network %q", network))
	}

	if v := get(CONFIG_COLLECTION_ADDRESS); v != "" {
		addr, err := ton_utils.ParseAddress(v)
		if err != nil {
			return nil, configErr(CONFIG_COLLECTION_ADDRESS, err)
		}
		cfg.Collection = &addr
		cfg.Workchain = addr.Workchain
	}

	if v := get(CONFIG_MINT_FEE_NANOTON); v != "" {
		fee, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return nil, configErr(CONFIG_MINT_FEE_NANOTON, err)
		}
		cfg.MintFeeOverride = &fee
	}

	if v := get(CONFIG_WALLET_VARIANT); v != "" {
		if _, err := ton_utils.VariantByTag(cfg.Workchain, v); err != nil {
			return nil, configErr(CONFIG_WALLET_VARIANT, err)
		}
		cfg.WalletVariant = v
	}

	if v := strings.ToLower(get(CONFIG_MINT_MODE)); v != "" {
		if v != MINT_MODE_NOTIFY && v != MINT_MODE_CUSTODIAL {
			return nil, configErr(CONFIG_MINT_MODE, fmt.Errorf("unknown mode %q", v))
		}
		cfg.Mode = v
	}

	if v := strings.ToLower(get(CONFIG_MINT_VERIFIER)); v != "" {
		if v != VERIFIER_TRUSTING && v != VERIFIER_ONCHAIN {
			return nil, configErr(CONFIG_MINT_VERIFIER, fmt.Errorf("unknown verifier %q", v))
		}
		cfg.Verifier = v
	}

	if v := get(CONFIG_NFT_ITEM_CODE); v != "" {
		code, err := cell.ParseBase64(v)
		if err != nil {
			return nil, configErr(CONFIG_NFT_ITEM_CODE, err)
		}
		cfg.NftItemCode = code[0]
	}

	for key, target := range map[string]*time.Duration{
		CONFIG_MINT_PROCESS_DELAY: &cfg.ProcessDelay,
		CONFIG_MINT_PENDING_TTL:   &cfg.PendingTTL,
	} {
		v := get(key)
		if v == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, configErr(key, err)
		}
		if d < 0 {
			return nil, configErr(key, fmt.Errorf("negative duration %s", d))
		}
		*target = d
	}

	if v := get(CONFIG_TELEGRAM_CHANNEL_ID); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, configErr(CONFIG_TELEGRAM_CHANNEL_ID, err)
		}
		cfg.ChannelID = id
	}

	switch {
	case get(CONFIG_WALLET_PRIVATE_KEY) != "":
		key, err := ton_utils.PrivateKeyFromHex(get(CONFIG_WALLET_PRIVATE_KEY))
		if err != nil {
			return nil, configErr(CONFIG_WALLET_PRIVATE_KEY, err)
		}
		cfg.PrivateKey = key
	case get(CONFIG_WALLET_MNEMONIC) != "":
		key, err := ton_utils.PrivateKeyFromMnemonic(get(CONFIG_WALLET_MNEMONIC))
		if err != nil {
			return nil, configErr(CONFIG_WALLET_MNEMONIC, err)
		}
		cfg.PrivateKey = key
	}

	if cfg.Mode == MINT_MODE_CUSTODIAL {
		if cfg.PrivateKey == nil {
			return nil, fmt.Errorf("%w: custodial mode needs %s or %s", ErrConfiguration, CONFIG_WALLET_PRIVATE_KEY, CONFIG_WALLET_MNEMONIC)
		}
		if cfg.Collection == nil {
			return nil, fmt.Errorf("%w: custodial mode needs %s", ErrConfiguration, CONFIG_COLLECTION_ADDRESS)
		}
	}
	return cfg, nil
}

func (c *ServiceConfig) Human(a ton_utils.Address) string {
	return a.ToHuman(true, c.Testnet)
}

// RequireCollection resolves an explicit collection or falls back to the
// configured one.
func (c *ServiceConfig) RequireCollection(explicit string) (ton_utils.Address, error) {
	if explicit != "" {
		addr, err := ton_utils.ParseAddress(explicit)
		if err != nil {
			return ton_utils.Address{}, fmt.Errorf("%w: collection: %w", ErrInvalidArgument, err)
		}
		return addr, nil
	}
	if c.Collection == nil {
		return ton_utils.Address{}, fmt.Errorf("%w: %s is not set", ErrConfiguration, CONFIG_COLLECTION_ADDRESS)
	}
	return *c.Collection, nil
}
