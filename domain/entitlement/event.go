package entitlement

import "github.com/shopspring/decimal"

// ConfirmationEvent is the normalised shape both the poll and the callback path produce.
type ConfirmationEvent struct {
	TransactionId  string          `json:"transactionId,omitempty"`
	EntitlementKey string          `json:"entitlementKey"`
	Amount         decimal.Decimal `json:"amount"`
	PhoneNumber    string          `json:"phoneNumber,omitempty"`
	Confirmed      bool            `json:"confirmed"`
	// OwnerHint is used only when no provisional transaction can be found.
	OwnerHint string `json:"ownerHint,omitempty"`
}

type Outcome string

const (
	OutcomeNoOp           Outcome = "noop"
	OutcomeGranted        Outcome = "granted"
	OutcomeAlreadyGranted Outcome = "already_granted"
)

type Result struct {
	Outcome     Outcome
	Entitlement *Entitlement
}
