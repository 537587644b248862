package payment

import (
	"context"

	"paygate-vip/domain/entitlement"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2/log"
)

type IReconciler interface {
	Reconcile(ctx context.Context, event entitlement.ConfirmationEvent) (entitlement.Result, error)
}

// IDispatcher hands a normalised confirmation to the engine, directly or through the queue.
type IDispatcher interface {
	Dispatch(ctx context.Context, event entitlement.ConfirmationEvent) error
}

type IPublisher interface {
	Publish(data []byte, dedupeID string) error
}

type inlineDispatcher struct {
	reconciler IReconciler
}

func NewInlineDispatcher(reconciler IReconciler) IDispatcher {
	return &inlineDispatcher{reconciler}
}

func (d *inlineDispatcher) Dispatch(ctx context.Context, event entitlement.ConfirmationEvent) error {
	_, err := d.reconciler.Reconcile(ctx, event)
	return err
}

type queueDispatcher struct {
	publisher IPublisher
	fallback  IDispatcher
}

// NewQueueDispatcher publishes confirmations for the consumer. When the broker refuses a
// message the confirmation is reconciled inline so it is never dropped.
func NewQueueDispatcher(publisher IPublisher, reconciler IReconciler) IDispatcher {
	return &queueDispatcher{
		publisher: publisher,
		fallback:  NewInlineDispatcher(reconciler),
	}
}

func (d *queueDispatcher) Dispatch(ctx context.Context, event entitlement.ConfirmationEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	if err = d.publisher.Publish(data, dedupeID(event)); err != nil {
		log.Warnw("confirmation publish failed, reconciling inline",
			"transactionId", event.TransactionId,
			"entitlementKey", event.EntitlementKey,
			"error", err,
		)
		return d.fallback.Dispatch(ctx, event)
	}

	log.Infow("confirmation queued",
		"transactionId", event.TransactionId,
		"entitlementKey", event.EntitlementKey,
	)
	return nil
}

// dedupeID lets the broker drop repeated callbacks for the same payment and transaction.
// A confirmation pairing the key with another transaction must still reach the engine.
func dedupeID(event entitlement.ConfirmationEvent) string {
	if !event.Confirmed || event.EntitlementKey == "" {
		return ""
	}
	return "confirmation:" + event.EntitlementKey + ":" + event.TransactionId
}
