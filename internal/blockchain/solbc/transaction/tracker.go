// internal/blockchain/solbc/transaction/tracker.go
package transaction

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/wallet-adapter/internal/blockchain"
)

// Tracker races a signature subscription against a status poll loop.
type Tracker struct {
	endpoint blockchain.Endpoint
	logger   *zap.Logger
	config   Config
}

func NewTracker(endpoint blockchain.Endpoint, logger *zap.Logger, config Config) *Tracker {
	return &Tracker{
		endpoint: endpoint,
		logger:   logger.Named("tx-tracker"),
		config:   config.withDefaults(),
	}
}

// Confirmation is a started tracker; Wait returns its single outcome.
type Confirmation struct {
	outcome Outcome
	ready   chan struct{}
}

// Wait blocks until the tracker has settled and released its subscription.
func (c *Confirmation) Wait() Outcome {
	<-c.ready
	return c.outcome
}

// Await tracks sig until deadline and returns its terminal outcome.
func (t *Tracker) Await(ctx context.Context, sig solana.Signature, deadline time.Time, done *atomic.Bool) Outcome {
	return t.Start(ctx, sig, deadline, done).Wait()
}

// Start launches both branches and returns immediately. done переводится в
// true ровно один раз, первым сработавшим источником; ребродкастер читает тот же флаг.
func (t *Tracker) Start(ctx context.Context, sig solana.Signature, deadline time.Time, done *atomic.Bool) *Confirmation {
	ctx, cancel := context.WithDeadline(ctx, deadline)
	c := &Confirmation{ready: make(chan struct{})}

	results := make(chan Outcome, 1)
	settle := func(o Outcome) bool {
		if !done.CompareAndSwap(false, true) {
			return false
		}
		results <- o
		return true
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		t.push(ctx, sig, settle)
	}()
	if t.config.PollStatus {
		wg.Add(1)
		go func() {
			defer wg.Done()
			t.poll(ctx, sig, done, settle)
		}()
	}

	go func() {
		defer close(c.ready)

		select {
		case c.outcome = <-results:
		case <-ctx.Done():
			if settle(t.expired(ctx)) {
				t.logger.Debug("Tracker deadline reached", zap.String("signature", sig.String()))
			}
			c.outcome = <-results
		}
		cancel()
		wg.Wait()

		t.logger.Debug("Signature settled",
			zap.String("signature", sig.String()),
			zap.Stringer("outcome", c.outcome.Kind),
			zap.Uint64("slot", c.outcome.Slot))
	}()

	return c
}

func (t *Tracker) expired(ctx context.Context) Outcome {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return Outcome{Kind: OutcomeTimedOut}
	}
	// вызывающий отменил контекст
	return Outcome{Kind: OutcomeTransportFailure, Cause: ctx.Err()}
}

func (t *Tracker) push(ctx context.Context, sig solana.Signature, settle func(Outcome) bool) {
	sub, err := t.endpoint.SubscribeSignature(ctx, sig, t.config.Commitment)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		settle(Outcome{
			Kind:  OutcomeTransportFailure,
			Cause: &TransportError{Op: "signatureSubscribe", Err: err},
		})
		return
	}
	defer func() {
		if err := sub.Unsubscribe(); err != nil {
			t.logger.Debug("Unsubscribe failed", zap.String("signature", sig.String()), zap.Error(err))
		}
	}()

	note, err := sub.Recv(ctx)
	if err != nil {
		if ctx.Err() == nil {
			// Подписка молча умерла: решение остаётся за опросом или дедлайном
			t.logger.Warn("Signature subscription dropped",
				zap.String("signature", sig.String()),
				zap.Error(err))
		}
		return
	}

	if note.Err != nil {
		settle(Outcome{Kind: OutcomeConfirmedWithError, Slot: note.Slot, Err: note.Err})
		return
	}
	settle(Outcome{Kind: OutcomeConfirmed, Slot: note.Slot})
}

func (t *Tracker) poll(ctx context.Context, sig solana.Signature, done *atomic.Bool, settle func(Outcome) bool) {
	budget := t.config.pollBudget()
	attempts := 0

	for !done.Load() {
		status, err := t.endpoint.GetSignatureStatus(ctx, sig)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return
			}
			t.logger.Warn("Signature status query failed", zap.String("signature", sig.String()), zap.Error(err))

		case status == nil:
			attempts++
			if attempts > budget {
				settle(Outcome{Kind: OutcomeTimedOut})
				return
			}

		case status.Err != nil:
			settle(Outcome{Kind: OutcomeConfirmedWithError, Slot: status.Slot, Err: status.Err})
			return

		default:
			if status.Confirmations == nil || *status.Confirmations == 0 {
				// Ноль подтверждений без ошибки считается успехом (возможен ложноположительный результат)
				t.logger.Debug("Status without confirmations, treating as confirmed",
					zap.String("signature", sig.String()),
					zap.String("status", string(status.ConfirmationStatus)))
			}
			settle(Outcome{Kind: OutcomeConfirmed, Slot: status.Slot})
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(t.config.PollDelay):
		}
	}
}
