package entitlement

import (
	"time"

	"github.com/shopspring/decimal"
)

// EntitlementTTL is fixed at grant time and never recomputed.
const EntitlementTTL = 10 * 24 * time.Hour

type TransactionState string

const (
	StatePending  TransactionState = "pending"
	StateMigrated TransactionState = "migrated"
)

type Status string

const (
	StatusActive  Status = "active"
	StatusExpired Status = "expired"
)

type PaymentParams struct {
	Amount      decimal.Decimal `json:"amount"`
	PhoneNumber string          `json:"phoneNumber"`
	Network     string          `json:"network"`
}

// ProvisionalTransaction maps a gateway tx_reference to the user who initiated it.
type ProvisionalTransaction struct {
	TransactionId  string           `json:"transactionId"`
	UserId         *string          `json:"userId"`
	Params         PaymentParams    `json:"params"`
	State          TransactionState `json:"state"`
	EntitlementKey string           `json:"entitlementKey,omitempty"`
	CreatedAt      time.Time        `json:"createdAt"`
	MigratedAt     *time.Time       `json:"migratedAt,omitempty"`
}

func NewProvisionalTransaction(transactionId string, userId *string, params PaymentParams) ProvisionalTransaction {
	return ProvisionalTransaction{
		TransactionId: transactionId,
		UserId:        userId,
		Params:        params,
		State:         StatePending,
	}
}

// Entitlement is the VIP grant, keyed by the gateway's payment_reference.
type Entitlement struct {
	EntitlementKey      string          `json:"entitlementKey"`
	OwnerId             *string         `json:"ownerId"`
	GrantedAt           time.Time       `json:"grantedAt"`
	ExpiresAt           time.Time       `json:"expiresAt"`
	SourceTransactionId *string         `json:"sourceTransactionId"`
	Amount              decimal.Decimal `json:"amount"`
	PhoneNumber         string          `json:"phoneNumber,omitempty"`
}

func NewEntitlement(key string, ownerId, sourceTransactionId *string, grantedAt time.Time) Entitlement {
	grantedAt = grantedAt.UTC()
	return Entitlement{
		EntitlementKey:      key,
		OwnerId:             ownerId,
		GrantedAt:           grantedAt,
		ExpiresAt:           grantedAt.Add(EntitlementTTL),
		SourceTransactionId: sourceTransactionId,
	}
}

// StatusAt is derived on read; expiry never writes.
func (e Entitlement) StatusAt(now time.Time) Status {
	if now.Before(e.ExpiresAt) {
		return StatusActive
	}
	return StatusExpired
}
