package models

import (
	"time"

	"github.com/uptrace/bun"
)

type MintStatus string

const (
	MintStatusPending   MintStatus = "pending"
	MintStatusCompleted MintStatus = "completed"
	MintStatusFailed    MintStatus = "failed"
)

func (s MintStatus) Terminal() bool {
	return s == MintStatusCompleted || s == MintStatusFailed
}

type MintRequest struct {
	ID          string     `json:"id"`
	TxHash      string     `json:"txHash"`
	UserAddress string     `json:"userAddress"`
	MetadataURI string     `json:"metadataUri"`
	Status      MintStatus `json:"status"`
	Timestamp   int64      `json:"timestamp"`
	CreatedAt   time.Time  `json:"createdAt"`
	MintedAt    *time.Time `json:"mintedAt,omitempty"`
	Error       string     `json:"error,omitempty"`
	MintTxHash  string     `json:"mintTxHash,omitempty"`

	// Predicted values are advisory; ConfirmedItemAddress is read back
	// from the collection after the mint landed.
	PredictedItemIndex   *uint64 `json:"predictedItemIndex,omitempty"`
	PredictedItemAddress string  `json:"predictedItemAddress,omitempty"`
	ConfirmedItemAddress string  `json:"confirmedItemAddress,omitempty"`

	TelegramUserID int64 `json:"telegramUserId,omitempty"`
}

func (r *MintRequest) Clone() *MintRequest {
	c := *r
	if r.MintedAt != nil {
		t := *r.MintedAt
		c.MintedAt = &t
	}
	if r.PredictedItemIndex != nil {
		i := *r.PredictedItemIndex
		c.PredictedItemIndex = &i
	}
	return &c
}

type MintRequestInput struct {
	TxHash         string `json:"txHash"`
	UserAddress    string `json:"userAddress"`
	MetadataURI    string `json:"metadataUri"`
	Timestamp      int64  `json:"timestamp"`
	TelegramUserID int64  `json:"-"`
}

// MintRequestLog mirrors one terminal transition in postgres.
type MintRequestLog struct {
	bun.BaseModel `bun:"table:mint_request_log"`
	ID            int64        `bun:"id,pk,autoincrement" json:"id"`
	RequestID     string       `bun:"request_id,notnull" json:"request_id"`
	Status        MintStatus   `bun:"status,notnull" json:"status"`
	Snapshot      *MintRequest `bun:"snapshot,type:jsonb" json:"snapshot"`
	LoggedAt      time.Time    `bun:"logged_at,notnull" json:"logged_at"`
}
