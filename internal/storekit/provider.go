// Package storekit defines the platform-store collaborator surface consumed
// by the entitlement engine: product catalog, purchase initiation, and the
// live transaction-update stream. Receipt cryptography stays on the platform
// side; the engine only consumes verification verdicts.
package storekit

import (
	"context"
	"time"
)

// Product is one purchasable subscription product.
type Product struct {
	ID           string
	DisplayName  string
	Description  string
	Price        string
	PeriodMonths int
}

// Transaction is one purchase/renewal event as reported by the store,
// before its authenticity verdict is known.
type Transaction struct {
	ProductID              string
	TransactionID          string
	PurchaseDate           time.Time
	ExpirationDate         *time.Time
	IsInIntroductoryPeriod bool
}

// VerifiedTransaction is a transaction whose authenticity check passed.
// Immutable once produced; superseded by later transactions for the same
// subscription group.
type VerifiedTransaction Transaction

// IsExpired reports whether the transaction's entitlement window has passed.
// A missing expiration date means the store has not bounded it yet and the
// transaction counts as current.
func (t VerifiedTransaction) IsExpired(now time.Time) bool {
	return t.ExpirationDate != nil && now.After(*t.ExpirationDate)
}

// VerificationResult is one item from the transaction-update stream: the
// transaction plus the store's authenticity verdict.
type VerificationResult struct {
	Transaction Transaction
	Verified    bool
	Err         error
}

// PurchaseOutcome classifies the synchronous result of a purchase attempt.
type PurchaseOutcome string

const (
	PurchaseSuccess       PurchaseOutcome = "success"
	PurchaseUserCancelled PurchaseOutcome = "user_cancelled"
	PurchasePending       PurchaseOutcome = "pending"
)

// PurchaseResult is the synchronous result of Purchase. Transaction is set
// only on success.
type PurchaseResult struct {
	Outcome     PurchaseOutcome
	Transaction *VerifiedTransaction
}

// Provider is the platform store collaborator.
type Provider interface {
	// LoadProducts returns the purchasable catalog.
	LoadProducts(ctx context.Context) ([]Product, error)

	// Purchase initiates a purchase for the given product and reports the
	// synchronous outcome. Asynchronous renewals arrive on TransactionUpdates.
	Purchase(ctx context.Context, productID string) (PurchaseResult, error)

	// TransactionUpdates returns a stream of transaction verdicts. The
	// channel is closed when the underlying store stream ends or errors;
	// callers are expected to resubscribe.
	TransactionUpdates(ctx context.Context) (<-chan VerificationResult, error)

	// CurrentEntitlements returns the store's view of currently owned
	// entitlements, used for restore.
	CurrentEntitlements(ctx context.Context) ([]VerifiedTransaction, error)

	// Finish acknowledges a processed transaction with the store.
	Finish(ctx context.Context, transactionID string) error
}
