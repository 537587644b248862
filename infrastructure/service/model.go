package service

import (
	"bytes"
	"strconv"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"
)

const (
	// StatusPaid is the gateway code for a completed payment (and, on /pay, an accepted request).
	StatusPaid    GatewayStatus = 0
	StatusUnknown GatewayStatus = -1
)

// GatewayStatus accepts the code as a JSON number or a numeric string. Anything else
// decodes as StatusUnknown so one odd field never rejects the whole payload.
type GatewayStatus int

func (s *GatewayStatus) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(data, `"`)
	if len(data) == 0 || string(data) == "null" {
		*s = StatusUnknown
		return nil
	}
	n, err := strconv.Atoi(string(data))
	if err != nil {
		*s = StatusUnknown
		return nil
	}
	*s = GatewayStatus(n)
	return nil
}

type PaymentRequest struct {
	PhoneNumber string
	Amount      decimal.Decimal
	Network     string
	Identifier  string
	Description string
}

type payBody struct {
	AuthToken   string      `json:"auth_token"`
	PhoneNumber string      `json:"phone_number"`
	Amount      json.Number `json:"amount"`
	Description string      `json:"description"`
	Identifier  string      `json:"identifier"`
	Network     string      `json:"network"`
}

type statusBody struct {
	AuthToken   string `json:"auth_token"`
	TxReference string `json:"tx_reference"`
}

type balanceBody struct {
	AuthToken string `json:"auth_token"`
}

type PayResponse struct {
	TxReference      string          `json:"tx_reference"`
	PaymentReference string          `json:"payment_reference,omitempty"`
	Status           *GatewayStatus  `json:"status,omitempty"`
	Success          *bool           `json:"success,omitempty"`
	Raw              json.RawMessage `json:"-"`
}

func (r *PayResponse) Accepted() bool {
	return IsConfirmed(r.Status, r.Success)
}

type StatusResponse struct {
	TxReference      string          `json:"tx_reference"`
	Identifier       string          `json:"identifier,omitempty"`
	PaymentReference string          `json:"payment_reference,omitempty"`
	Status           *GatewayStatus  `json:"status,omitempty"`
	Success          *bool           `json:"success,omitempty"`
	Datetime         string          `json:"datetime,omitempty"`
	PaymentMethod    string          `json:"payment_method,omitempty"`
	Raw              json.RawMessage `json:"-"`
}

func (r *StatusResponse) Confirmed() bool {
	return IsConfirmed(r.Status, r.Success)
}

// IsConfirmed applies the gateway rule: status 0 or success true, anything else is pending or failed.
func IsConfirmed(status *GatewayStatus, success *bool) bool {
	if success != nil && *success {
		return true
	}
	return status != nil && *status == StatusPaid
}
