package ton_utils

import (
	"crypto/ed25519"
	"fmt"

	"github.com/tonkeeper/tongo/wallet"

	"telemint/internal/pkg/cell"
)

const DefaultSubwallet = wallet.DefaultSubWallet

const (
	TagV4R2    = "v4r2"
	TagV4R2ID0 = "v4r2-id0"
	TagV3R2    = "v3r2"
)

// WalletVariant is one known wallet contract layout.
type WalletVariant interface {
	Tag() string
	StateInit(pub ed25519.PublicKey) (StateInit, error)
	Address(pub ed25519.PublicKey) (Address, error)
	BuildSignedEnvelope(key ed25519.PrivateKey, env *Envelope) (*cell.Cell, error)
}

type standardWallet struct {
	tag       string
	version   wallet.Version
	workchain int32
	subwallet uint32
}

// Variants lists the supported layouts, newest first.
func Variants(workchain int32) []WalletVariant {
	return []WalletVariant{
		&standardWallet{tag: TagV4R2, version: wallet.V4R2, workchain: workchain, subwallet: uint32(DefaultSubwallet + workchain)},
		&standardWallet{tag: TagV4R2ID0, version: wallet.V4R2, workchain: workchain, subwallet: 0},
		&standardWallet{tag: TagV3R2, version: wallet.V3R2, workchain: workchain, subwallet: uint32(DefaultSubwallet + workchain)},
	}
}

func VariantByTag(workchain int32, tag string) (WalletVariant, error) {
	for _, v := range Variants(workchain) {
		if v.Tag() == tag {
			return v, nil
		}
	}
	return nil, fmt.Errorf("unknown wallet variant %q", tag)
}

func (w *standardWallet) Tag() string {
	return w.tag
}

func (w *standardWallet) options() []wallet.Option {
	return []wallet.Option{
		wallet.WithWorkchain(int(w.workchain)),
		wallet.WithSubWalletID(w.subwallet),
	}
}

func (w *standardWallet) checkKey(pub ed25519.PublicKey) error {
	if len(pub) != ed25519.PublicKeySize {
		return fmt.Errorf("%s: bad public key length %d", w.tag, len(pub))
	}
	return nil
}

func (w *standardWallet) StateInit(pub ed25519.PublicKey) (StateInit, error) {
	if err := w.checkKey(pub); err != nil {
		return StateInit{}, err
	}
	subwallet := w.subwallet
	s, err := wallet.GenerateStateInit(pub, w.version, nil, int(w.workchain), &subwallet)
	if err != nil {
		return StateInit{}, fmt.Errorf("%s state init: %w", w.tag, err)
	}
	si, err := stateInitFromTLB(s)
	if err != nil {
		return StateInit{}, fmt.Errorf("%s state init: %w", w.tag, err)
	}
	return *si, nil
}

func (w *standardWallet) Address(pub ed25519.PublicKey) (Address, error) {
	if err := w.checkKey(pub); err != nil {
		return Address{}, err
	}
	subwallet := w.subwallet
	id, err := wallet.GenerateWalletAddress(pub, w.version, nil, int(w.workchain), &subwallet)
	if err != nil {
		return Address{}, fmt.Errorf("%s address: %w", w.tag, err)
	}
	return FromAccountID(id), nil
}

// BuildSignedEnvelope returns the external message carrying env signed by
// key. ed25519 signatures are deterministic, so the same envelope always
// yields the same bytes.
func (w *standardWallet) BuildSignedEnvelope(key ed25519.PrivateKey, env *Envelope) (*cell.Cell, error) {
	// sending stays with the caller, so no blockchain backend is attached
	tw, err := wallet.New(key, w.version, nil, w.options()...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", w.tag, err)
	}
	body, err := tw.CreateMessageBody(wallet.MessageConfig{
		Seqno:      env.Seqno,
		ValidUntil: env.ValidUntil,
	}, env.message())
	if err != nil {
		return nil, fmt.Errorf("signed body: %w", err)
	}
	signed, err := cell.FromBoc(body)
	if err != nil {
		return nil, fmt.Errorf("signed body: %w", err)
	}

	var init *StateInit
	if env.Deploy {
		si, err := w.StateInit(key.Public().(ed25519.PublicKey))
		if err != nil {
			return nil, err
		}
		init = &si
	}
	return ExternalMessage(FromAccountID(tw.GetAddress()), init, signed)
}

// PublicKeyFromData extracts the key stored in a v3/v4 wallet data cell.
func PublicKeyFromData(data *cell.Cell) (ed25519.PublicKey, error) {
	s := data.BeginParse()
	if _, err := s.LoadUint(64); err != nil {
		return nil, err
	}
	p, err := s.LoadBytes(ed25519.PublicKeySize)
	if err != nil {
		return nil, err
	}
	return ed25519.PublicKey(p), nil
}
