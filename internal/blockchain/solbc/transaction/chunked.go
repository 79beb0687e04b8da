// internal/blockchain/solbc/transaction/chunked.go
package transaction

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// ChunkedDriver splits a large batch into fixed-size chunks and runs them
// one after another, each with its own blockhash and wallet round trip.
type ChunkedDriver struct {
	runner    BatchRunner
	chunkSize int
	logger    *zap.Logger
}

func NewChunkedDriver(runner BatchRunner, chunkSize int, logger *zap.Logger) *ChunkedDriver {
	if chunkSize <= 0 {
		chunkSize = 1
	}
	return &ChunkedDriver{
		runner:    runner,
		chunkSize: chunkSize,
		logger:    logger.Named("tx-chunked"),
	}
}

// Submit implements BatchRunner. Индексы в результате и в колбэках глобальные.
func (d *ChunkedDriver) Submit(ctx context.Context, req BatchRequest) (BatchResult, error) {
	if err := checkAligned(req); err != nil {
		return BatchResult{}, err
	}

	total := BatchResult{
		StopIndex:  len(req.Instructions),
		Signatures: make([]solana.Signature, len(req.Instructions)),
	}

	for offset := 0; offset < len(req.Instructions); offset += d.chunkSize {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		end := min(offset+d.chunkSize, len(req.Instructions))

		chunk := req
		chunk.Instructions = req.Instructions[offset:end]
		if req.CoSigners != nil {
			chunk.CoSigners = req.CoSigners[offset:end]
		}
		// Закреплённый blockhash действует только на первый чанк
		if offset > 0 {
			chunk.Blockhash = nil
		}
		chunk.OnSuccess = shiftSuccess(req.OnSuccess, offset)
		chunk.OnFailure = shiftFailure(req.OnFailure, offset)

		d.logger.Debug("Submitting chunk",
			zap.Int("offset", offset),
			zap.Int("size", end-offset))

		res, err := d.runner.Submit(ctx, chunk)
		if res.Count == BatchUnsupported {
			total.Count = BatchUnsupported
			return total, err
		}

		total.Count += res.Count
		copy(total.Signatures[offset:end], res.Signatures)
		for _, i := range res.Failed {
			total.Failed = append(total.Failed, offset+i)
		}
		total.Err = multierr.Append(total.Err, res.Err)

		if err != nil {
			total.Halted = res.Halted
			total.StopIndex = offset + res.StopIndex
			return total, fmt.Errorf("chunk at %d: %w", offset, err)
		}
	}

	return total, nil
}

func shiftSuccess(fn func(solana.Signature, int), offset int) func(solana.Signature, int) {
	if fn == nil {
		return nil
	}
	return func(sig solana.Signature, i int) { fn(sig, offset+i) }
}

func shiftFailure(fn func(*solana.Transaction, int, error), offset int) func(*solana.Transaction, int, error) {
	if fn == nil {
		return nil
	}
	return func(tx *solana.Transaction, i int, err error) { fn(tx, offset+i, err) }
}
