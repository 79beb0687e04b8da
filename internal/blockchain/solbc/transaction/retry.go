// internal/blockchain/solbc/transaction/retry.go
package transaction

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/wallet-adapter/internal/wallet"
)

// maxStagnantAttempts: сколько попыток подряд без продвижения допускается.
const maxStagnantAttempts = 3

// RetryDriver re-runs a batch under StopOnFailure against the suffix that has
// not been confirmed yet. It gives up after maxStagnantAttempts passes in a
// row that made no progress.
type RetryDriver struct {
	runner  BatchRunner
	manager *Manager
	logger  *zap.Logger
}

func NewRetryDriver(runner BatchRunner, manager *Manager, logger *zap.Logger) *RetryDriver {
	return &RetryDriver{
		runner:  runner,
		manager: manager,
		logger:  logger.Named("tx-retry"),
	}
}

// Run drives req to completion. req.Policy is ignored: passes always stop on
// the first failure. OnFailure may receive a nil transaction for groups sent
// through the single submitter.
func (d *RetryDriver) Run(ctx context.Context, req BatchRequest) (RetryState, error) {
	state := RetryState{LastLength: -1}
	if err := checkAligned(req); err != nil {
		return state, err
	}
	if _, err := feePayer(req.Signer, nil, false); err != nil {
		return state, err
	}

	origin := nonEmpty(req.Instructions)
	instructions := make([][]solana.Instruction, len(origin))
	coSigners := make([][]solana.PrivateKey, len(origin))
	for k, i := range origin {
		instructions[k] = req.Instructions[i]
		coSigners[k] = coSignersAt(req.CoSigners, i)
	}
	_, batchable := req.Signer.(wallet.BatchSigner)

	for state.StopPoint < len(instructions) && state.Tries < maxStagnantAttempts {
		if err := ctx.Err(); err != nil {
			return state, err
		}
		from := state.StopPoint
		remaining := len(instructions) - from
		state.Attempts++

		progress, err := d.attempt(ctx, req, instructions[from:], coSigners[from:], origin[from:], batchable)
		progress = max(0, min(progress, remaining))
		if errors.Is(err, ErrPrecondition) {
			return state, err
		}
		if err != nil {
			state.LastErr = err
			d.logger.Warn("Batch attempt stopped",
				zap.Int("attempt", state.Attempts),
				zap.Int("from", from),
				zap.Int("progress", progress),
				zap.Error(err))
		}

		if progress > 0 {
			state.Tries = 0
		} else {
			state.Tries++
		}
		state.LastLength = remaining
		state.StopPoint = from + progress
	}

	if state.StopPoint < len(instructions) {
		if state.LastErr == nil {
			return state, fmt.Errorf("%w: %d of %d groups sent", ErrRetriesExhausted, state.StopPoint, len(instructions))
		}
		return state, fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, state.Attempts, state.LastErr)
	}

	d.logger.Info("All groups sent",
		zap.Int("groups", len(instructions)),
		zap.Int("attempts", state.Attempts))
	return state, nil
}

// attempt возвращает число групп, которые прошли, начиная с начала переданного суффикса.
func (d *RetryDriver) attempt(ctx context.Context, req BatchRequest, instructions [][]solana.Instruction,
	coSigners [][]solana.PrivateKey, origin []int, batchable bool) (int, error) {

	onSuccess := remapSuccess(req.OnSuccess, origin)
	onFailure := remapFailure(req.OnFailure, origin)

	if len(instructions) == 1 || !batchable {
		return d.sendOneByOne(ctx, req.Signer, instructions, coSigners, onSuccess, onFailure)
	}

	res, err := d.runner.Submit(ctx, BatchRequest{
		Instructions: instructions,
		CoSigners:    coSigners,
		Signer:       req.Signer,
		Policy:       PolicyStopOnFailure,
		OnSuccess:    onSuccess,
		OnFailure:    onFailure,
	})
	if res.Count == BatchUnsupported {
		return d.sendOneByOne(ctx, req.Signer, instructions, coSigners, onSuccess, onFailure)
	}
	// При ошибке до отправки (blockhash, подпись) StopIndex указывает на начало прохода
	return res.StopIndex, err
}

func (d *RetryDriver) sendOneByOne(ctx context.Context, signer wallet.Signer, instructions [][]solana.Instruction,
	coSigners [][]solana.PrivateKey, onSuccess func(solana.Signature, int), onFailure func(*solana.Transaction, int, error)) (int, error) {

	for k := range instructions {
		res, err := d.manager.SendInstructions(ctx, SendRequest{
			Instructions: instructions[k],
			CoSigners:    coSigners[k],
			Signer:       signer,
		})
		if err != nil {
			if onFailure != nil {
				onFailure(nil, k, err)
			}
			return k, err
		}
		if onSuccess != nil {
			onSuccess(res.Signature, k)
		}
	}
	return len(instructions), nil
}

func remapSuccess(fn func(solana.Signature, int), origin []int) func(solana.Signature, int) {
	if fn == nil {
		return nil
	}
	return func(sig solana.Signature, k int) { fn(sig, origin[k]) }
}

func remapFailure(fn func(*solana.Transaction, int, error), origin []int) func(*solana.Transaction, int, error) {
	if fn == nil {
		return nil
	}
	return func(tx *solana.Transaction, k int, err error) { fn(tx, origin[k], err) }
}
