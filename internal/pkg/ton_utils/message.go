package ton_utils

import (
	"fmt"
	"time"

	"github.com/tonkeeper/tongo/boc"
	"github.com/tonkeeper/tongo/tlb"
	"github.com/tonkeeper/tongo/ton"
	"github.com/tonkeeper/tongo/wallet"

	"telemint/internal/pkg/cell"
)

const DefaultSendMode = wallet.DefaultMessageMode

// Envelope is everything a wallet signs for one outgoing message.
type Envelope struct {
	Seqno       uint32
	ValidUntil  time.Time
	Destination Address
	Amount      uint64
	Bounce      bool
	Payload     *cell.Cell
	// StateInit deploys the destination together with the message.
	StateInit *StateInit
	// Deploy attaches the wallet's own StateInit; needed while the wallet
	// account is not yet initialised.
	Deploy bool
	Mode   uint8
}

func (e *Envelope) mode() uint8 {
	if e.Mode == 0 {
		return DefaultSendMode
	}
	return e.Mode
}

// message maps the envelope onto tongo's wallet.Message.
func (e *Envelope) message() wallet.Message {
	m := wallet.Message{
		Amount:  tlb.Grams(e.Amount),
		Address: e.Destination.AccountID(),
		Bounce:  e.Bounce,
		Mode:    e.mode(),
	}
	if e.Payload != nil {
		m.Body = e.Payload.Boc()
	}
	if e.StateInit != nil && e.StateInit.Code != nil && e.StateInit.Data != nil {
		m.Code = e.StateInit.Code.Boc()
		m.Data = e.StateInit.Data.Boc()
	}
	return m
}

// InternalMessage encodes the message the wallet emits to the destination.
func InternalMessage(dest Address, amount uint64, bounce bool, init *StateInit, body *cell.Cell) (*cell.Cell, error) {
	if init != nil && (init.Code == nil || init.Data == nil) {
		return nil, fmt.Errorf("state init: %w", cell.ErrNilRef)
	}
	env := Envelope{Destination: dest, Amount: amount, Bounce: bounce, StateInit: init, Payload: body}
	msg, _, err := env.message().ToInternal()
	if err != nil {
		return nil, err
	}
	c := boc.NewCell()
	if err := tlb.Marshal(c, msg); err != nil {
		return nil, fmt.Errorf("internal message: %w", err)
	}
	return cell.FromBoc(c)
}

// ExternalMessage wraps a signed wallet body addressed to the wallet itself.
func ExternalMessage(self Address, init *StateInit, body *cell.Cell) (*cell.Cell, error) {
	if body == nil {
		return nil, fmt.Errorf("external message: %w", cell.ErrNilRef)
	}
	var si *tlb.StateInit
	if init != nil {
		s, err := init.TLB()
		if err != nil {
			return nil, err
		}
		si = &s
	}
	msg, err := ton.CreateExternalMessage(self.AccountID(), body.Boc(), si, tlb.VarUInteger16{})
	if err != nil {
		return nil, err
	}
	c := boc.NewCell()
	if err := tlb.Marshal(c, msg); err != nil {
		return nil, fmt.Errorf("external message: %w", err)
	}
	return cell.FromBoc(c)
}
