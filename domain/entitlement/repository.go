package entitlement

import "context"

type ITransactionTracker interface {
	// Create fails with ErrDuplicateTransaction when the id is already tracked.
	Create(ctx context.Context, tx ProvisionalTransaction) error
	// Lookup returns nil, nil when the transaction was never created.
	Lookup(ctx context.Context, transactionId string) (*ProvisionalTransaction, error)
	// MarkMigrated is a no-op when already migrated to entitlementKey and fails with
	// ErrInconsistentMigration when migrated to another key.
	MarkMigrated(ctx context.Context, transactionId, entitlementKey string) error
}

type IEntitlementStore interface {
	// CreateIfAbsent stores e only if its key is free. It returns the stored record and
	// whether this call created it; an existing record is never overwritten.
	CreateIfAbsent(ctx context.Context, e Entitlement) (*Entitlement, bool, error)
	Get(ctx context.Context, entitlementKey string) (*Entitlement, error)
	ListByOwner(ctx context.Context, ownerId string) ([]Entitlement, error)
}
