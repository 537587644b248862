package entitlement

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/bsm/redislock"
	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

const (
	transactionKeyPrefix = "transaction:"
	entitlementKeyPrefix = "entitlement:"
	migrationLockPrefix  = "lock:migrate:"

	migrationLockTTL = 5 * time.Second
)

// createEntitlementScript sets the record only when absent and indexes it under its owner
// in the same atomic step.
var createEntitlementScript = redis.NewScript(`
if redis.call('SET', KEYS[1], ARGV[1], 'NX') then
	if ARGV[2] ~= '' then
		redis.call('SADD', KEYS[2], ARGV[2])
	end
	return 1
end
return 0
`)

func getTransactionKey(transactionId string) string {
	return transactionKeyPrefix + transactionId
}

func getEntitlementKey(entitlementKey string) string {
	return entitlementKeyPrefix + entitlementKey
}

func getOwnerIndexKey(ownerId string) string {
	return fmt.Sprintf("owner:%s:entitlements", ownerId)
}

type redisTracker struct {
	client *redis.Client
	locker *redislock.Client
}

func NewRedisTracker(client *redis.Client, locker *redislock.Client) ITransactionTracker {
	return &redisTracker{client, locker}
}

func (r *redisTracker) Create(ctx context.Context, tx ProvisionalTransaction) error {
	now, err := r.client.Time(ctx).Result()
	if err != nil {
		return err
	}
	tx.State = StatePending
	tx.CreatedAt = now.UTC()

	data, err := json.Marshal(tx)
	if err != nil {
		return err
	}

	created, err := r.client.SetNX(ctx, getTransactionKey(tx.TransactionId), data, 0).Result()
	if err != nil {
		return err
	}
	if !created {
		return fmt.Errorf("%w: %s", ErrDuplicateTransaction, tx.TransactionId)
	}
	return nil
}

func (r *redisTracker) Lookup(ctx context.Context, transactionId string) (*ProvisionalTransaction, error) {
	raw, err := r.client.Get(ctx, getTransactionKey(transactionId)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var tx ProvisionalTransaction
	if err = json.Unmarshal(raw, &tx); err != nil {
		return nil, fmt.Errorf("decode transaction %s: %w", transactionId, err)
	}
	return &tx, nil
}

func (r *redisTracker) MarkMigrated(ctx context.Context, transactionId, entitlementKey string) error {
	lock, err := r.locker.Obtain(ctx, migrationLockPrefix+transactionId, migrationLockTTL, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(25*time.Millisecond), 40),
	})
	if err != nil {
		return fmt.Errorf("obtain migration lock for %s: %w", transactionId, err)
	}
	defer func() {
		_ = lock.Release(context.WithoutCancel(ctx))
	}()

	tx, err := r.Lookup(ctx, transactionId)
	if err != nil {
		return err
	}
	if tx == nil {
		return fmt.Errorf("%w: %s", ErrTransactionNotFound, transactionId)
	}

	if tx.State == StateMigrated {
		if tx.EntitlementKey == entitlementKey {
			return nil
		}
		return fmt.Errorf("%w: %s is bound to %s, got %s",
			ErrInconsistentMigration, transactionId, tx.EntitlementKey, entitlementKey)
	}

	now, err := r.client.Time(ctx).Result()
	if err != nil {
		return err
	}
	migratedAt := now.UTC()
	tx.State = StateMigrated
	tx.EntitlementKey = entitlementKey
	tx.MigratedAt = &migratedAt

	data, err := json.Marshal(tx)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, getTransactionKey(transactionId), data, 0).Err()
}

type redisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) IEntitlementStore {
	return &redisStore{client}
}

func (r *redisStore) CreateIfAbsent(ctx context.Context, e Entitlement) (*Entitlement, bool, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, false, err
	}

	var (
		owner    string
		indexKey = getOwnerIndexKey("")
	)
	if e.OwnerId != nil {
		owner = *e.OwnerId
		indexKey = getOwnerIndexKey(owner)
	}

	created, err := createEntitlementScript.Run(
		ctx, r.client,
		[]string{getEntitlementKey(e.EntitlementKey), indexKey},
		data, ownerMember(owner, e.EntitlementKey),
	).Int()
	if err != nil {
		return nil, false, err
	}

	if created == 1 {
		return &e, true, nil
	}

	existing, err := r.Get(ctx, e.EntitlementKey)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (r *redisStore) Get(ctx context.Context, entitlementKey string) (*Entitlement, error) {
	raw, err := r.client.Get(ctx, getEntitlementKey(entitlementKey)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", ErrEntitlementNotFound, entitlementKey)
	}
	if err != nil {
		return nil, err
	}

	var e Entitlement
	if err = json.Unmarshal(raw, &e); err != nil {
		return nil, fmt.Errorf("decode entitlement %s: %w", entitlementKey, err)
	}
	return &e, nil
}

func (r *redisStore) ListByOwner(ctx context.Context, ownerId string) ([]Entitlement, error) {
	keys, err := r.client.SMembers(ctx, getOwnerIndexKey(ownerId)).Result()
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, nil
	}

	redisKeys := make([]string, len(keys))
	for i, k := range keys {
		redisKeys[i] = getEntitlementKey(k)
	}

	values, err := r.client.MGet(ctx, redisKeys...).Result()
	if err != nil {
		return nil, err
	}

	result := make([]Entitlement, 0, len(values))
	for i, v := range values {
		if v == nil {
			continue
		}
		raw, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("invalid type for entitlement %s", keys[i])
		}
		var e Entitlement
		if err = json.Unmarshal([]byte(raw), &e); err != nil {
			return nil, fmt.Errorf("decode entitlement %s: %w", keys[i], err)
		}
		result = append(result, e)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].GrantedAt.Before(result[j].GrantedAt)
	})
	return result, nil
}

func ownerMember(owner, entitlementKey string) string {
	if owner == "" {
		return ""
	}
	return entitlementKey
}
