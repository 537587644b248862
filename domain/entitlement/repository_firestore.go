package entitlement

import (
	"context"
	"fmt"
	"sort"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/shopspring/decimal"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	transactionsCollection = "provisional_transactions"
	entitlementsCollection = "vip_entitlements"
)

type transactionDoc struct {
	TransactionId  string     `firestore:"transactionId"`
	UserId         *string    `firestore:"userId"`
	Amount         string     `firestore:"amount"`
	PhoneNumber    string     `firestore:"phoneNumber"`
	Network        string     `firestore:"network"`
	State          string     `firestore:"state"`
	EntitlementKey string     `firestore:"entitlementKey,omitempty"`
	CreatedAt      time.Time  `firestore:"createdAt,serverTimestamp"`
	MigratedAt     *time.Time `firestore:"migratedAt,omitempty"`
}

func (d transactionDoc) toEntity() (*ProvisionalTransaction, error) {
	amount, err := decimal.NewFromString(d.Amount)
	if err != nil {
		return nil, fmt.Errorf("decode amount of %s: %w", d.TransactionId, err)
	}
	return &ProvisionalTransaction{
		TransactionId: d.TransactionId,
		UserId:        d.UserId,
		Params: PaymentParams{
			Amount:      amount,
			PhoneNumber: d.PhoneNumber,
			Network:     d.Network,
		},
		State:          TransactionState(d.State),
		EntitlementKey: d.EntitlementKey,
		CreatedAt:      d.CreatedAt,
		MigratedAt:     d.MigratedAt,
	}, nil
}

type entitlementDoc struct {
	EntitlementKey      string    `firestore:"entitlementKey"`
	OwnerId             *string   `firestore:"ownerId"`
	GrantedAt           time.Time `firestore:"grantedAt"`
	ExpiresAt           time.Time `firestore:"expiresAt"`
	SourceTransactionId *string   `firestore:"sourceTransactionId"`
	Amount              string    `firestore:"amount"`
	PhoneNumber         string    `firestore:"phoneNumber"`
	CreatedAt           time.Time `firestore:"createdAt,serverTimestamp"`
}

func newEntitlementDoc(e Entitlement) entitlementDoc {
	return entitlementDoc{
		EntitlementKey:      e.EntitlementKey,
		OwnerId:             e.OwnerId,
		GrantedAt:           e.GrantedAt,
		ExpiresAt:           e.ExpiresAt,
		SourceTransactionId: e.SourceTransactionId,
		Amount:              e.Amount.String(),
		PhoneNumber:         e.PhoneNumber,
	}
}

func (d entitlementDoc) toEntity() (*Entitlement, error) {
	amount, err := decimal.NewFromString(d.Amount)
	if err != nil {
		return nil, fmt.Errorf("decode amount of %s: %w", d.EntitlementKey, err)
	}
	return &Entitlement{
		EntitlementKey:      d.EntitlementKey,
		OwnerId:             d.OwnerId,
		GrantedAt:           d.GrantedAt.UTC(),
		ExpiresAt:           d.ExpiresAt.UTC(),
		SourceTransactionId: d.SourceTransactionId,
		Amount:              amount,
		PhoneNumber:         d.PhoneNumber,
	}, nil
}

type firestoreTracker struct {
	client *firestore.Client
}

func NewFirestoreTracker(client *firestore.Client) ITransactionTracker {
	return &firestoreTracker{client}
}

func (r *firestoreTracker) Create(ctx context.Context, tx ProvisionalTransaction) error {
	doc := transactionDoc{
		TransactionId: tx.TransactionId,
		UserId:        tx.UserId,
		Amount:        tx.Params.Amount.String(),
		PhoneNumber:   tx.Params.PhoneNumber,
		Network:       tx.Params.Network,
		State:         string(StatePending),
	}

	_, err := r.client.Collection(transactionsCollection).Doc(tx.TransactionId).Create(ctx, doc)
	if status.Code(err) == codes.AlreadyExists {
		return fmt.Errorf("%w: %s", ErrDuplicateTransaction, tx.TransactionId)
	}
	return err
}

func (r *firestoreTracker) Lookup(ctx context.Context, transactionId string) (*ProvisionalTransaction, error) {
	snap, err := r.client.Collection(transactionsCollection).Doc(transactionId).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var doc transactionDoc
	if err = snap.DataTo(&doc); err != nil {
		return nil, err
	}
	return doc.toEntity()
}

func (r *firestoreTracker) MarkMigrated(ctx context.Context, transactionId, entitlementKey string) error {
	ref := r.client.Collection(transactionsCollection).Doc(transactionId)

	return r.client.RunTransaction(ctx, func(ctx context.Context, t *firestore.Transaction) error {
		snap, err := t.Get(ref)
		if status.Code(err) == codes.NotFound {
			return fmt.Errorf("%w: %s", ErrTransactionNotFound, transactionId)
		}
		if err != nil {
			return err
		}

		var doc transactionDoc
		if err = snap.DataTo(&doc); err != nil {
			return err
		}

		if TransactionState(doc.State) == StateMigrated {
			if doc.EntitlementKey == entitlementKey {
				return nil
			}
			return fmt.Errorf("%w: %s is bound to %s, got %s",
				ErrInconsistentMigration, transactionId, doc.EntitlementKey, entitlementKey)
		}

		return t.Update(ref, []firestore.Update{
			{Path: "state", Value: string(StateMigrated)},
			{Path: "entitlementKey", Value: entitlementKey},
			{Path: "migratedAt", Value: firestore.ServerTimestamp},
		})
	})
}

type firestoreStore struct {
	client *firestore.Client
}

func NewFirestoreStore(client *firestore.Client) IEntitlementStore {
	return &firestoreStore{client}
}

func (r *firestoreStore) CreateIfAbsent(ctx context.Context, e Entitlement) (*Entitlement, bool, error) {
	_, err := r.client.Collection(entitlementsCollection).Doc(e.EntitlementKey).Create(ctx, newEntitlementDoc(e))
	if err == nil {
		return &e, true, nil
	}
	if status.Code(err) != codes.AlreadyExists {
		return nil, false, err
	}

	existing, err := r.Get(ctx, e.EntitlementKey)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (r *firestoreStore) Get(ctx context.Context, entitlementKey string) (*Entitlement, error) {
	snap, err := r.client.Collection(entitlementsCollection).Doc(entitlementKey).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, fmt.Errorf("%w: %s", ErrEntitlementNotFound, entitlementKey)
	}
	if err != nil {
		return nil, err
	}

	var doc entitlementDoc
	if err = snap.DataTo(&doc); err != nil {
		return nil, err
	}
	return doc.toEntity()
}

func (r *firestoreStore) ListByOwner(ctx context.Context, ownerId string) ([]Entitlement, error) {
	snaps, err := r.client.Collection(entitlementsCollection).
		Where("ownerId", "==", ownerId).
		Documents(ctx).
		GetAll()
	if err != nil {
		return nil, err
	}

	result := make([]Entitlement, 0, len(snaps))
	for _, snap := range snaps {
		var doc entitlementDoc
		if err = snap.DataTo(&doc); err != nil {
			return nil, err
		}
		e, err := doc.toEntity()
		if err != nil {
			return nil, err
		}
		result = append(result, *e)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].GrantedAt.Before(result[j].GrantedAt)
	})
	return result, nil
}
