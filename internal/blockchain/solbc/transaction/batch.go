// internal/blockchain/solbc/transaction/batch.go
package transaction

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rovshanmuradov/wallet-adapter/internal/events"
	"github.com/rovshanmuradov/wallet-adapter/internal/utils/logger"
	"github.com/rovshanmuradov/wallet-adapter/internal/wallet"
)

// BatchRunner runs one batch pass. BatchSubmitter and ChunkedDriver implement it.
type BatchRunner interface {
	Submit(ctx context.Context, req BatchRequest) (BatchResult, error)
}

// BatchSubmitter signs a list of instruction groups with one wallet call and
// sends them under a sequencing policy.
type BatchSubmitter struct {
	manager *Manager
	logger  *zap.Logger
}

func NewBatchSubmitter(manager *Manager, logger *zap.Logger) *BatchSubmitter {
	return &BatchSubmitter{
		manager: manager,
		logger:  logger.Named("tx-batch"),
	}
}

// nonEmpty возвращает входные индексы непустых групп.
func nonEmpty(groups [][]solana.Instruction) []int {
	idx := make([]int, 0, len(groups))
	for i, g := range groups {
		if len(g) > 0 {
			idx = append(idx, i)
		}
	}
	return idx
}

func coSignersAt(groups [][]solana.PrivateKey, i int) []solana.PrivateKey {
	if groups == nil {
		return nil
	}
	return groups[i]
}

func checkAligned(req BatchRequest) error {
	if req.CoSigners != nil && len(req.CoSigners) != len(req.Instructions) {
		return fmt.Errorf("%w: %d instruction groups, %d co-signer groups",
			ErrMisalignedBatch, len(req.Instructions), len(req.CoSigners))
	}
	return nil
}

// Submit implements BatchRunner.
func (b *BatchSubmitter) Submit(ctx context.Context, req BatchRequest) (BatchResult, error) {
	if err := checkAligned(req); err != nil {
		return BatchResult{}, err
	}
	payer, err := feePayer(req.Signer, nil, false)
	if err != nil {
		return BatchResult{}, err
	}

	// StopIndex остаётся 0, пока не началась отправка
	result := BatchResult{
		Signatures: make([]solana.Signature, len(req.Instructions)),
	}

	indexes := nonEmpty(req.Instructions)
	if len(indexes) == 0 {
		result.StopIndex = len(req.Instructions)
		return result, nil
	}

	batchSigner, ok := req.Signer.(wallet.BatchSigner)
	if !ok {
		b.logger.Warn("Wallet cannot sign a batch", zap.String("wallet", payer.String()))
		result.Count = BatchUnsupported
		return result, nil
	}

	var blockhash solana.Hash
	if req.Blockhash != nil {
		blockhash = *req.Blockhash
	} else if blockhash, err = b.manager.latestBlockhash(ctx); err != nil {
		return result, err
	}

	unsigned := make([]*solana.Transaction, len(indexes))
	for k, i := range indexes {
		tx, err := b.manager.buildTransaction(req.Instructions[i], payer, blockhash, coSignersAt(req.CoSigners, i))
		if err != nil {
			return result, fmt.Errorf("group %d: %w", i, err)
		}
		unsigned[k] = tx
	}

	signed, err := batchSigner.SignAllTransactions(ctx, unsigned)
	if err != nil {
		return result, fmt.Errorf("wallet batch sign: %w", err)
	}
	if len(signed) != len(unsigned) {
		return result, fmt.Errorf("%w: sent %d, got %d", ErrSignedCountMismatch, len(unsigned), len(signed))
	}
	result.Count = len(signed)

	batchID := uuid.New().String()
	batchLog := b.logger.With(logger.BatchFields(batchID, req.Policy.String(), len(signed))...)
	b.manager.publish(events.BatchStartedEvent{
		BaseEvent: events.NewBase(events.BatchStarted),
		BatchID:   batchID,
		Policy:    req.Policy.String(),
		Size:      len(signed),
	})
	batchLog.Info("Sending batch", zap.Int("transactions", len(signed)), zap.String("blockhash", blockhash.String()))

	var (
		mu        sync.Mutex
		succeeded int
	)
	record := func(k int, res *SendResult, err error) {
		i := indexes[k]
		if err != nil {
			mu.Lock()
			result.Failed = append(result.Failed, i)
			result.Err = multierr.Append(result.Err, fmt.Errorf("transaction %d: %w", i, err))
			mu.Unlock()
			if req.OnFailure != nil {
				req.OnFailure(signed[k], i, err)
			}
			return
		}
		mu.Lock()
		result.Signatures[i] = res.Signature
		succeeded++
		mu.Unlock()
		if req.OnSuccess != nil {
			req.OnSuccess(res.Signature, i)
		}
	}

	result.StopIndex = len(req.Instructions)
	var haltErr error
	switch req.Policy {
	case PolicyParallel:
		// Ошибка одной транзакции не отменяет остальные
		var g errgroup.Group
		for k := range signed {
			g.Go(func() error {
				res, err := b.manager.SendSigned(ctx, signed[k])
				record(k, res, err)
				return nil
			})
		}
		_ = g.Wait()
		slices.Sort(result.Failed)

	default:
		for k := range signed {
			res, err := b.manager.SendSigned(ctx, signed[k])
			record(k, res, err)
			if err != nil && req.Policy == PolicyStopOnFailure {
				result.Halted = true
				result.StopIndex = indexes[k]
				haltErr = fmt.Errorf("batch halted at transaction %d: %w", indexes[k], err)
				break
			}
		}
	}

	b.manager.publish(events.BatchCompletedEvent{
		BaseEvent: events.NewBase(events.BatchCompleted),
		BatchID:   batchID,
		Policy:    req.Policy.String(),
		Succeeded: succeeded,
		Failed:    len(result.Failed),
		Halted:    result.Halted,
		StopIndex: result.StopIndex,
	})
	batchLog.Info("Batch finished",
		zap.Int("failed", len(result.Failed)),
		zap.Bool("halted", result.Halted),
		zap.Int("stop_index", result.StopIndex))

	return result, haltErr
}
