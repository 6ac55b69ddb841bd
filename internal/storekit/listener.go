package storekit

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	listenerRestartDelay = 5 * time.Second
	verifyForwardTimeout = 30 * time.Second
)

// FactSink receives verified transactions as entitlement facts.
type FactSink interface {
	RecordStoreTransaction(txn VerifiedTransaction)
}

// VerifyFunc forwards a verified transaction to the backend. Called
// fire-and-forget; failures are logged and retried by later reconciliation
// passes, never blocking the store acknowledgment.
type VerifyFunc func(ctx context.Context, txn VerifiedTransaction) error

// Listener drains the store's transaction-update stream for the life of the
// process. Verified transactions become entitlement facts and are forwarded
// to the backend; unverified ones are discarded. The drain loop restarts
// automatically if the stream ends, so renewals arriving while the app was
// backgrounded are never silently dropped.
type Listener struct {
	provider Provider
	journal  *Journal
	sink     FactSink
	verify   VerifyFunc

	restartDelay time.Duration
	acks         sync.WaitGroup

	onRestart func() // metrics hook, may be nil
	onDiscard func()
}

// NewListener creates a transaction listener.
func NewListener(provider Provider, journal *Journal, sink FactSink, verify VerifyFunc) *Listener {
	return &Listener{
		provider:     provider,
		journal:      journal,
		sink:         sink,
		verify:       verify,
		restartDelay: listenerRestartDelay,
	}
}

// SetRestartDelay overrides the resubscribe backoff. Intended for tests.
func (l *Listener) SetRestartDelay(d time.Duration) { l.restartDelay = d }

// SetHooks installs optional observability callbacks.
func (l *Listener) SetHooks(onRestart, onDiscard func()) {
	l.onRestart = onRestart
	l.onDiscard = onDiscard
}

// Run drains the transaction stream until ctx is cancelled. In-flight
// acknowledgments complete before Run returns.
func (l *Listener) Run(ctx context.Context) {
	log.Info().Msg("Transaction listener started")
	defer l.acks.Wait()

	l.retryUnacked(ctx)

	for {
		if ctx.Err() != nil {
			log.Info().Msg("Transaction listener stopped")
			return
		}

		updates, err := l.provider.TransactionUpdates(ctx)
		if err != nil {
			log.Error().Err(err).Dur("retry_in", l.restartDelay).Msg("Failed to open transaction stream")
			if !sleepCtx(ctx, l.restartDelay) {
				return
			}
			continue
		}

		l.drain(ctx, updates)

		// The stream closed underneath us; resubscribe after a short delay.
		if ctx.Err() == nil {
			log.Warn().Dur("retry_in", l.restartDelay).Msg("Transaction stream ended, restarting")
			if l.onRestart != nil {
				l.onRestart()
			}
			if !sleepCtx(ctx, l.restartDelay) {
				return
			}
		}
	}
}

func (l *Listener) drain(ctx context.Context, updates <-chan VerificationResult) {
	for {
		select {
		case <-ctx.Done():
			return
		case result, ok := <-updates:
			if !ok {
				return
			}
			l.handle(ctx, result)
		}
	}
}

func (l *Listener) handle(ctx context.Context, result VerificationResult) {
	if !result.Verified {
		// Unverified transactions are never an entitlement fact.
		log.Warn().
			Str("transaction_id", result.Transaction.TransactionID).
			Str("product_id", result.Transaction.ProductID).
			Err(result.Err).
			Msg("Discarding unverified transaction")
		if l.onDiscard != nil {
			l.onDiscard()
		}
		return
	}

	txn := VerifiedTransaction(result.Transaction)

	isNew := true
	if l.journal != nil {
		var err error
		isNew, err = l.journal.Record(txn)
		if err != nil {
			log.Error().Err(err).Str("transaction_id", txn.TransactionID).Msg("Failed to journal transaction")
			// Treat as new: double-applying a fact is safe, dropping one is not.
			isNew = true
		}
	}

	if isNew {
		l.sink.RecordStoreTransaction(txn)

		if l.verify != nil {
			// Fire-and-forget backend verify; does not block the store ack.
			go func() {
				vctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), verifyForwardTimeout)
				defer cancel()
				if err := l.verify(vctx, txn); err != nil {
					log.Warn().Err(err).Str("transaction_id", txn.TransactionID).Msg("Backend verify failed, will reconcile later")
				}
			}()
		}
	} else {
		log.Debug().Str("transaction_id", txn.TransactionID).Msg("Transaction already journaled, skipping facts")
	}

	l.finish(ctx, txn.TransactionID)
}

// finish acknowledges the transaction with the store. The ack is tracked so
// shutdown waits for it rather than abandoning it mid-flight.
func (l *Listener) finish(ctx context.Context, transactionID string) {
	l.acks.Add(1)
	defer l.acks.Done()

	ackCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if err := l.provider.Finish(ackCtx, transactionID); err != nil {
		log.Error().Err(err).Str("transaction_id", transactionID).Msg("Failed to acknowledge transaction, will retry on next start")
		return
	}
	if l.journal != nil {
		if err := l.journal.MarkAcked(transactionID); err != nil {
			log.Error().Err(err).Str("transaction_id", transactionID).Msg("Failed to journal acknowledgment")
		}
	}
}

// retryUnacked re-acknowledges transactions left unacked by a previous run.
// Finish is idempotent on the store side, so replays are harmless.
func (l *Listener) retryUnacked(ctx context.Context) {
	if l.journal == nil {
		return
	}
	ids, err := l.journal.UnackedIDs()
	if err != nil {
		log.Error().Err(err).Msg("Failed to list unacked transactions")
		return
	}
	for _, id := range ids {
		if ctx.Err() != nil {
			return
		}
		log.Info().Str("transaction_id", id).Msg("Retrying unacknowledged transaction")
		l.finish(ctx, id)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
