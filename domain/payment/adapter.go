package payment

import (
	"paygate-vip/domain/entitlement"
	"paygate-vip/infrastructure/service"
)

// newPollEvent normalises a /status answer. The uid sent with the poll only matters when
// no provisional transaction exists for txReference.
func newPollEvent(txReference, uid string, resp *service.StatusResponse) entitlement.ConfirmationEvent {
	return entitlement.ConfirmationEvent{
		TransactionId:  txReference,
		EntitlementKey: resp.PaymentReference,
		Confirmed:      resp.Confirmed(),
		OwnerHint:      uid,
	}
}

func newCallbackEvent(in CallbackInput) entitlement.ConfirmationEvent {
	return entitlement.ConfirmationEvent{
		TransactionId:  in.TxReference,
		EntitlementKey: in.PaymentReference,
		Amount:         in.parsedAmount(),
		PhoneNumber:    in.PhoneNumber,
		Confirmed:      service.IsConfirmed(in.Status, in.Success),
	}
}
