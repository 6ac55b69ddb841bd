package storekit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedProvider drives the listener with a controllable update stream.
type scriptedProvider struct {
	mu       sync.Mutex
	updates  chan VerificationResult
	finished []string
	subs     int
}

func newScriptedProvider() *scriptedProvider {
	return &scriptedProvider{updates: make(chan VerificationResult, 16)}
}

func (p *scriptedProvider) LoadProducts(ctx context.Context) ([]Product, error) { return nil, nil }

func (p *scriptedProvider) Purchase(ctx context.Context, productID string) (PurchaseResult, error) {
	return PurchaseResult{}, errors.New("not scripted")
}

func (p *scriptedProvider) TransactionUpdates(ctx context.Context) (<-chan VerificationResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subs++
	return p.updates, nil
}

func (p *scriptedProvider) subscriptions() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.subs
}

func (p *scriptedProvider) CurrentEntitlements(ctx context.Context) ([]VerifiedTransaction, error) {
	return nil, nil
}

func (p *scriptedProvider) Finish(ctx context.Context, transactionID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.finished = append(p.finished, transactionID)
	return nil
}

func (p *scriptedProvider) finishedIDs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.finished...)
}

// recordingSink captures the facts the listener forwards.
type recordingSink struct {
	mu   sync.Mutex
	txns []VerifiedTransaction
}

func (s *recordingSink) RecordStoreTransaction(txn VerifiedTransaction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txns = append(s.txns, txn)
}

func (s *recordingSink) recorded() []VerifiedTransaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]VerifiedTransaction(nil), s.txns...)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met within deadline")
}

func runListener(t *testing.T, l *Listener) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		l.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("listener did not stop")
		}
	})
	return cancel
}

func TestListenerForwardsVerifiedTransactions(t *testing.T) {
	provider := newScriptedProvider()
	sink := &recordingSink{}
	journal := openTestJournal(t, t.TempDir())

	var verifyMu sync.Mutex
	var verified []string
	verify := func(ctx context.Context, txn VerifiedTransaction) error {
		verifyMu.Lock()
		defer verifyMu.Unlock()
		verified = append(verified, txn.TransactionID)
		return nil
	}

	l := NewListener(provider, journal, sink, verify)
	runListener(t, l)

	provider.updates <- VerificationResult{
		Transaction: Transaction{TransactionID: "txn-1", ProductID: "gofit.premium.monthly", PurchaseDate: time.Now()},
		Verified:    true,
	}

	waitFor(t, func() bool { return len(sink.recorded()) == 1 })
	waitFor(t, func() bool { return len(provider.finishedIDs()) == 1 })
	waitFor(t, func() bool {
		verifyMu.Lock()
		defer verifyMu.Unlock()
		return len(verified) == 1
	})

	assert.Equal(t, "txn-1", sink.recorded()[0].TransactionID)
	assert.Equal(t, []string{"txn-1"}, provider.finishedIDs())
}

func TestListenerDiscardsUnverified(t *testing.T) {
	provider := newScriptedProvider()
	sink := &recordingSink{}

	var discards int
	var mu sync.Mutex
	l := NewListener(provider, nil, sink, nil)
	l.SetHooks(nil, func() {
		mu.Lock()
		discards++
		mu.Unlock()
	})
	runListener(t, l)

	provider.updates <- VerificationResult{
		Transaction: Transaction{TransactionID: "txn-bad", ProductID: "p"},
		Verified:    false,
		Err:         errors.New("signature mismatch"),
	}

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return discards == 1
	})

	assert.Empty(t, sink.recorded(), "unverified transactions must never become facts")
	assert.Empty(t, provider.finishedIDs(), "unverified transactions are not acknowledged")
}

func TestListenerDeduplicatesReplays(t *testing.T) {
	provider := newScriptedProvider()
	sink := &recordingSink{}
	journal := openTestJournal(t, t.TempDir())

	l := NewListener(provider, journal, sink, nil)
	runListener(t, l)

	result := VerificationResult{
		Transaction: Transaction{TransactionID: "txn-1", ProductID: "p", PurchaseDate: time.Now()},
		Verified:    true,
	}
	provider.updates <- result
	provider.updates <- result

	// Both deliveries are acknowledged, but only one becomes a fact.
	waitFor(t, func() bool { return len(provider.finishedIDs()) == 2 })
	assert.Len(t, sink.recorded(), 1)
}

func TestListenerRetriesUnackedOnStart(t *testing.T) {
	dir := t.TempDir()

	// A previous run journaled the transaction but crashed before the ack.
	j, err := OpenJournal(dir)
	require.NoError(t, err)
	_, err = j.Record(VerifiedTransaction{TransactionID: "txn-stale", ProductID: "p", PurchaseDate: time.Now()})
	require.NoError(t, err)
	require.NoError(t, j.Close())

	provider := newScriptedProvider()
	sink := &recordingSink{}
	journal := openTestJournal(t, dir)

	l := NewListener(provider, journal, sink, nil)
	runListener(t, l)

	waitFor(t, func() bool { return len(provider.finishedIDs()) == 1 })
	assert.Equal(t, []string{"txn-stale"}, provider.finishedIDs())
	assert.Empty(t, sink.recorded(), "replayed acks do not re-apply facts")

	ids, err := journal.UnackedIDs()
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestListenerResubscribesAfterStreamEnd(t *testing.T) {
	provider := newScriptedProvider()
	sink := &recordingSink{}

	var restarts int
	var mu sync.Mutex
	l := NewListener(provider, nil, sink, nil)
	l.SetRestartDelay(10 * time.Millisecond)
	l.SetHooks(func() {
		mu.Lock()
		restarts++
		mu.Unlock()
	}, nil)
	runListener(t, l)

	// Wait for the listener to subscribe so closing the original stream is
	// observed rather than racing with the swap below.
	waitFor(t, func() bool { return provider.subscriptions() >= 1 })

	first := provider.updates
	provider.mu.Lock()
	provider.updates = make(chan VerificationResult, 16)
	provider.mu.Unlock()
	close(first)

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return restarts >= 1
	})

	// The listener is on the new stream and still processing.
	provider.mu.Lock()
	provider.updates <- VerificationResult{
		Transaction: Transaction{TransactionID: "txn-after", ProductID: "p", PurchaseDate: time.Now()},
		Verified:    true,
	}
	provider.mu.Unlock()

	waitFor(t, func() bool { return len(sink.recorded()) == 1 })
	assert.Equal(t, "txn-after", sink.recorded()[0].TransactionID)
}
