package entitlement

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
)

// Engine turns confirmation events into at most one entitlement per payment reference.
// It is the only writer of provisional transactions and entitlements, and keeps no
// mutable state of its own: concurrent calls coordinate through the store's
// create-if-absent primitive alone.
type Engine struct {
	tracker ITransactionTracker
	store   IEntitlementStore
	now     func() time.Time
}

func NewEngine(tracker ITransactionTracker, store IEntitlementStore) *Engine {
	return &Engine{
		tracker: tracker,
		store:   store,
		now:     time.Now,
	}
}

// Track records a freshly initiated payment so later confirmations can find its owner.
func (e *Engine) Track(ctx context.Context, transactionId string, userId *string, params PaymentParams) error {
	err := e.tracker.Create(ctx, NewProvisionalTransaction(transactionId, userId, params))
	if err != nil {
		log.Errorw("track transaction failed", "transactionId", transactionId, "error", err)
		return err
	}
	log.Infow("transaction tracked", "transactionId", transactionId, "userId", deref(userId))
	return nil
}

// Reconcile applies one confirmation. A grant that succeeded is never rolled back: when
// closing the provisional record fails afterwards, the result still carries the grant and
// the error is returned next to it.
func (e *Engine) Reconcile(ctx context.Context, event ConfirmationEvent) (Result, error) {
	if !event.Confirmed || event.EntitlementKey == "" {
		log.Infow("confirmation ignored",
			"transactionId", event.TransactionId,
			"entitlementKey", event.EntitlementKey,
			"confirmed", event.Confirmed,
		)
		return Result{Outcome: OutcomeNoOp}, nil
	}

	ownerId, tracked, err := e.resolveOwner(ctx, event)
	if err != nil {
		return Result{}, err
	}

	candidate := NewEntitlement(event.EntitlementKey, ownerId, optional(event.TransactionId), e.now())
	candidate.Amount = event.Amount
	candidate.PhoneNumber = event.PhoneNumber

	stored, created, err := e.store.CreateIfAbsent(ctx, candidate)
	if err != nil {
		log.Errorw("entitlement write failed",
			"transactionId", event.TransactionId,
			"entitlementKey", event.EntitlementKey,
			"ownerId", deref(ownerId),
			"error", err,
		)
		return Result{}, fmt.Errorf("create entitlement %s: %w", event.EntitlementKey, err)
	}

	result := Result{Outcome: OutcomeAlreadyGranted, Entitlement: stored}
	if created {
		result.Outcome = OutcomeGranted
	}
	log.Infow("entitlement reconciled",
		"transactionId", event.TransactionId,
		"entitlementKey", event.EntitlementKey,
		"ownerId", deref(stored.OwnerId),
		"outcome", result.Outcome,
		"expiresAt", stored.ExpiresAt,
	)

	if tracked == nil {
		return result, nil
	}

	if err = e.tracker.MarkMigrated(ctx, tracked.TransactionId, event.EntitlementKey); err != nil {
		log.Errorw("mark migrated failed",
			"transactionId", tracked.TransactionId,
			"entitlementKey", event.EntitlementKey,
			"error", err,
		)
		return result, fmt.Errorf("mark %s migrated: %w", tracked.TransactionId, err)
	}
	return result, nil
}

// resolveOwner never fails on a missing or unreadable provisional record; that path
// continues without an owner. It does fail when the record is already bound to another key.
func (e *Engine) resolveOwner(ctx context.Context, event ConfirmationEvent) (*string, *ProvisionalTransaction, error) {
	hint := optional(event.OwnerHint)
	if event.TransactionId == "" {
		return hint, nil, nil
	}

	tx, err := e.tracker.Lookup(ctx, event.TransactionId)
	if err != nil {
		log.Warnw("transaction lookup failed, continuing without owner",
			"transactionId", event.TransactionId,
			"entitlementKey", event.EntitlementKey,
			"error", err,
		)
		return hint, nil, nil
	}
	if tx == nil {
		log.Warnw("no provisional transaction for confirmation",
			"transactionId", event.TransactionId,
			"entitlementKey", event.EntitlementKey,
		)
		return hint, nil, nil
	}

	if tx.State == StateMigrated && tx.EntitlementKey != "" && tx.EntitlementKey != event.EntitlementKey {
		log.Errorw("transaction already migrated to another entitlement",
			"transactionId", tx.TransactionId,
			"entitlementKey", event.EntitlementKey,
			"boundKey", tx.EntitlementKey,
		)
		return nil, nil, fmt.Errorf("%w: %s is bound to %s, got %s",
			ErrInconsistentMigration, tx.TransactionId, tx.EntitlementKey, event.EntitlementKey)
	}

	return tx.UserId, tx, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
