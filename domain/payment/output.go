package payment

import (
	"time"

	"github.com/goccy/go-json"
)

const callbackAck = "Callback bien reçu"

type PayOutput struct {
	Success          bool            `json:"success"`
	TxReference      string          `json:"tx_reference"`
	PaymentReference string          `json:"payment_reference,omitempty"`
	Raw              json.RawMessage `json:"raw"`
}

type StatusOutput struct {
	Success          bool            `json:"success"`
	PaymentReference string          `json:"payment_reference,omitempty"`
	Raw              json.RawMessage `json:"raw"`
}

type EntitlementOutput struct {
	EntitlementKey      string    `json:"entitlement_key"`
	OwnerId             *string   `json:"owner_id"`
	Status              string    `json:"status"`
	GrantedAt           time.Time `json:"granted_at"`
	ExpiresAt           time.Time `json:"expires_at"`
	SourceTransactionId *string   `json:"source_transaction_id"`
}

type VipOutput struct {
	Uid       string     `json:"uid"`
	Vip       bool       `json:"vip"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

type ErrorOutput struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}
