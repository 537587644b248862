package payment

import (
	"bytes"
	"strings"

	"paygate-vip/infrastructure/service"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2/log"
	"github.com/shopspring/decimal"
)

type PayInput struct {
	PhoneNumber string          `json:"phone_number" validate:"required,msisdn"`
	Amount      decimal.Decimal `json:"amount"`
	Network     string          `json:"network" validate:"required,oneof=FLOOZ TMONEY"`
	Uid         string          `json:"uid" validate:"omitempty,max=128"`
}

func (in *PayInput) normalize() {
	in.PhoneNumber = strings.TrimSpace(in.PhoneNumber)
	in.Network = strings.ToUpper(strings.TrimSpace(in.Network))
	in.Uid = strings.TrimSpace(in.Uid)
}

type CheckStatusInput struct {
	TxReference string `json:"tx_reference" validate:"required"`
	Uid         string `json:"uid" validate:"omitempty,max=128"`
}

func (in *CheckStatusInput) normalize() {
	in.TxReference = strings.TrimSpace(in.TxReference)
	in.Uid = strings.TrimSpace(in.Uid)
}

// CallbackInput is what the gateway pushes to /callback.
type CallbackInput struct {
	TxReference      string                 `json:"tx_reference"`
	PaymentReference string                 `json:"payment_reference"`
	Amount           json.RawMessage        `json:"amount"`
	PhoneNumber      string                 `json:"phone_number"`
	Status           *service.GatewayStatus `json:"status"`
	Success          *bool                  `json:"success"`
}

// parsedAmount is informational only, so an unreadable amount becomes zero instead of
// failing the callback.
func (in CallbackInput) parsedAmount() decimal.Decimal {
	raw := string(bytes.Trim(bytes.TrimSpace(in.Amount), `"`))
	if raw == "" || raw == "null" {
		return decimal.Zero
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		log.Warnw("unreadable callback amount",
			"paymentReference", in.PaymentReference,
			"amount", string(in.Amount),
		)
		return decimal.Zero
	}
	return amount
}
