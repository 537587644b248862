package entitlement

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const schema = `
CREATE TABLE IF NOT EXISTS provisional_transactions (
	transaction_id  TEXT PRIMARY KEY,
	user_id         TEXT NULL,
	amount          NUMERIC NOT NULL,
	phone_number    TEXT NOT NULL,
	network         TEXT NOT NULL,
	state           TEXT NOT NULL DEFAULT 'pending',
	entitlement_key TEXT NULL,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	migrated_at     TIMESTAMPTZ NULL
);

CREATE TABLE IF NOT EXISTS entitlements (
	entitlement_key       TEXT PRIMARY KEY,
	owner_id              TEXT NULL,
	granted_at            TIMESTAMPTZ NOT NULL,
	expires_at            TIMESTAMPTZ NOT NULL,
	source_transaction_id TEXT NULL,
	amount                NUMERIC NOT NULL DEFAULT 0,
	phone_number          TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS entitlements_owner_id_idx ON entitlements (owner_id);
`

// MigratePostgres creates the tables used by the Postgres tracker and store.
func MigratePostgres(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, schema)
	return err
}

type postgresTracker struct {
	db *sql.DB
}

func NewPostgresTracker(db *sql.DB) ITransactionTracker {
	return &postgresTracker{db}
}

func (r *postgresTracker) Create(ctx context.Context, tx ProvisionalTransaction) error {
	var createdAt sql.NullTime
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO provisional_transactions (transaction_id, user_id, amount, phone_number, network, state)
		VALUES ($1, $2, $3, $4, $5, 'pending')
		ON CONFLICT (transaction_id) DO NOTHING
		RETURNING created_at`,
		tx.TransactionId, tx.UserId, tx.Params.Amount, tx.Params.PhoneNumber, tx.Params.Network,
	).Scan(&createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrDuplicateTransaction, tx.TransactionId)
	}
	return err
}

func (r *postgresTracker) Lookup(ctx context.Context, transactionId string) (*ProvisionalTransaction, error) {
	var (
		tx             ProvisionalTransaction
		userId         sql.NullString
		state          string
		entitlementKey sql.NullString
		migratedAt     sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT transaction_id, user_id, amount, phone_number, network, state, entitlement_key, created_at, migrated_at
		FROM provisional_transactions
		WHERE transaction_id = $1`,
		transactionId,
	).Scan(
		&tx.TransactionId, &userId, &tx.Params.Amount, &tx.Params.PhoneNumber, &tx.Params.Network,
		&state, &entitlementKey, &tx.CreatedAt, &migratedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	tx.State = TransactionState(state)
	tx.EntitlementKey = entitlementKey.String
	if userId.Valid {
		tx.UserId = &userId.String
	}
	if migratedAt.Valid {
		tx.MigratedAt = &migratedAt.Time
	}
	return &tx, nil
}

func (r *postgresTracker) MarkMigrated(ctx context.Context, transactionId, entitlementKey string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE provisional_transactions
		SET state = 'migrated', entitlement_key = $2, migrated_at = now()
		WHERE transaction_id = $1 AND state = 'pending'`,
		transactionId, entitlementKey,
	)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 1 {
		return nil
	}

	var current sql.NullString
	err = r.db.QueryRowContext(ctx,
		`SELECT entitlement_key FROM provisional_transactions WHERE transaction_id = $1`,
		transactionId,
	).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrTransactionNotFound, transactionId)
	}
	if err != nil {
		return err
	}
	if current.String == entitlementKey {
		return nil
	}
	return fmt.Errorf("%w: %s is bound to %s, got %s",
		ErrInconsistentMigration, transactionId, current.String, entitlementKey)
}

type postgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) IEntitlementStore {
	return &postgresStore{db}
}

const selectEntitlement = `
	SELECT entitlement_key, owner_id, granted_at, expires_at, source_transaction_id, amount, phone_number
	FROM entitlements`

func (r *postgresStore) CreateIfAbsent(ctx context.Context, e Entitlement) (*Entitlement, bool, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO entitlements (entitlement_key, owner_id, granted_at, expires_at, source_transaction_id, amount, phone_number)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (entitlement_key) DO NOTHING`,
		e.EntitlementKey, e.OwnerId, e.GrantedAt, e.ExpiresAt, e.SourceTransactionId, e.Amount, e.PhoneNumber,
	)
	if err != nil {
		return nil, false, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, err
	}
	if n == 1 {
		return &e, true, nil
	}

	existing, err := r.Get(ctx, e.EntitlementKey)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (r *postgresStore) Get(ctx context.Context, entitlementKey string) (*Entitlement, error) {
	row := r.db.QueryRowContext(ctx, selectEntitlement+` WHERE entitlement_key = $1`, entitlementKey)
	e, err := scanEntitlement(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrEntitlementNotFound, entitlementKey)
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (r *postgresStore) ListByOwner(ctx context.Context, ownerId string) ([]Entitlement, error) {
	rows, err := r.db.QueryContext(ctx, selectEntitlement+` WHERE owner_id = $1 ORDER BY granted_at`, ownerId)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Entitlement
	for rows.Next() {
		e, err := scanEntitlement(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *e)
	}
	return result, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntitlement(row rowScanner) (*Entitlement, error) {
	var (
		e        Entitlement
		ownerId  sql.NullString
		sourceTx sql.NullString
	)
	if err := row.Scan(
		&e.EntitlementKey, &ownerId, &e.GrantedAt, &e.ExpiresAt, &sourceTx, &e.Amount, &e.PhoneNumber,
	); err != nil {
		return nil, err
	}
	if ownerId.Valid {
		e.OwnerId = &ownerId.String
	}
	if sourceTx.Valid {
		e.SourceTransactionId = &sourceTx.String
	}
	e.GrantedAt = e.GrantedAt.UTC()
	e.ExpiresAt = e.ExpiresAt.UTC()
	return &e, nil
}
