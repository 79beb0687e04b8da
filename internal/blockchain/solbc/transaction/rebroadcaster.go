// internal/blockchain/solbc/transaction/rebroadcaster.go
package transaction

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/wallet-adapter/internal/blockchain"
)

// Rebroadcaster resubmits identical raw bytes while a tracker is pending.
type Rebroadcaster struct {
	endpoint blockchain.Endpoint
	logger   *zap.Logger
	interval time.Duration
	opts     blockchain.TransactionOptions
	metrics  *Metrics
}

func NewRebroadcaster(endpoint blockchain.Endpoint, logger *zap.Logger, config Config, metrics *Metrics) *Rebroadcaster {
	config = config.withDefaults()
	return &Rebroadcaster{
		endpoint: endpoint,
		logger:   logger.Named("tx-rebroadcaster"),
		interval: config.RebroadcastInterval,
		opts: blockchain.TransactionOptions{
			SkipPreflight:       true,
			PreflightCommitment: config.Commitment,
		},
		metrics: metrics,
	}
}

// Run blocks until done is set, the deadline passes or ctx is cancelled.
// Ошибки повторной отправки только логируются.
func (r *Rebroadcaster) Run(ctx context.Context, sig solana.Signature, raw []byte, done *atomic.Bool, deadline time.Time) {
	ticker := backoff.NewTicker(backoff.NewConstantBackOff(r.interval))
	defer ticker.Stop()

	expired := time.NewTimer(time.Until(deadline))
	defer expired.Stop()

	// первый тик backoff.Ticker приходит сразу, а исходная отправка уже была
	skip := true
	for {
		select {
		case <-ctx.Done():
			return
		case <-expired.C:
			return
		case <-ticker.C:
		}
		if skip {
			skip = false
			continue
		}

		if done.Load() || !time.Now().Before(deadline) {
			return
		}

		resent, err := r.endpoint.SendRawTransaction(ctx, raw, r.opts)
		if err != nil {
			r.logger.Debug("Rebroadcast failed", zap.String("signature", sig.String()), zap.Error(err))
			continue
		}
		r.metrics.rebroadcast()
		if !resent.Equals(sig) {
			r.logger.Warn("Rebroadcast returned a different signature",
				zap.String("signature", sig.String()),
				zap.String("resent", resent.String()))
		}
	}
}
