package entitlement

import "errors"

var (
	ErrDuplicateTransaction  = errors.New("duplicate transaction")
	ErrInconsistentMigration = errors.New("transaction already migrated to a different entitlement key")
	ErrTransactionNotFound   = errors.New("transaction not found")
	ErrEntitlementNotFound   = errors.New("entitlement not found")
)

// IsIntegrityError reports data anomalies that must be surfaced and never retried.
func IsIntegrityError(err error) bool {
	return errors.Is(err, ErrDuplicateTransaction) || errors.Is(err, ErrInconsistentMigration)
}
