package storekit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	engerrors "github.com/RAKSHIT1998/GoFit.Ai---live-Healthy-sub001/internal/errors"
)

// SimulatedProvider is an in-process store used in mock mode and tests.
// Purchases succeed immediately and emit a matching transaction update on
// the stream, mimicking the platform store's double delivery.
type SimulatedProvider struct {
	mu       sync.Mutex
	products []Product
	owned    []VerifiedTransaction
	updates  chan VerificationResult
	now      func() time.Time
}

// NewSimulatedProvider creates a simulated store with a default catalog.
func NewSimulatedProvider() *SimulatedProvider {
	return &SimulatedProvider{
		products: []Product{
			{ID: "gofit.premium.monthly", DisplayName: "GoFit Premium Monthly", Price: "$9.99", PeriodMonths: 1},
			{ID: "gofit.premium.yearly", DisplayName: "GoFit Premium Yearly", Price: "$59.99", PeriodMonths: 12},
		},
		updates: make(chan VerificationResult, 16),
		now:     time.Now,
	}
}

// SetNowFunc overrides the wall clock. Intended for tests.
func (p *SimulatedProvider) SetNowFunc(now func() time.Time) { p.now = now }

// LoadProducts returns the simulated catalog.
func (p *SimulatedProvider) LoadProducts(ctx context.Context) ([]Product, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Product(nil), p.products...), nil
}

// Purchase succeeds for known products and emits the transaction on the
// update stream as the real store does.
func (p *SimulatedProvider) Purchase(ctx context.Context, productID string) (PurchaseResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var product *Product
	for i := range p.products {
		if p.products[i].ID == productID {
			product = &p.products[i]
			break
		}
	}
	if product == nil {
		return PurchaseResult{}, engerrors.ErrProductNotFound
	}

	purchased := p.now().UTC()
	expires := purchased.AddDate(0, product.PeriodMonths, 0)
	txn := VerifiedTransaction{
		ProductID:      productID,
		TransactionID:  uuid.NewString(),
		PurchaseDate:   purchased,
		ExpirationDate: &expires,
	}
	p.owned = append(p.owned, txn)

	select {
	case p.updates <- VerificationResult{Transaction: Transaction(txn), Verified: true}:
	default:
	}

	return PurchaseResult{Outcome: PurchaseSuccess, Transaction: &txn}, nil
}

// TransactionUpdates returns the simulated update stream.
func (p *SimulatedProvider) TransactionUpdates(ctx context.Context) (<-chan VerificationResult, error) {
	return p.updates, nil
}

// CurrentEntitlements returns all simulated purchases.
func (p *SimulatedProvider) CurrentEntitlements(ctx context.Context) ([]VerifiedTransaction, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]VerifiedTransaction(nil), p.owned...), nil
}

// Finish is a no-op acknowledgment.
func (p *SimulatedProvider) Finish(ctx context.Context, transactionID string) error {
	return nil
}

// Emit injects a raw verification result into the stream. Intended for tests
// and mock-mode tooling.
func (p *SimulatedProvider) Emit(result VerificationResult) {
	p.updates <- result
}
