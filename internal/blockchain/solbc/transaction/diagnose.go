// internal/blockchain/solbc/transaction/diagnose.go
package transaction

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/wallet-adapter/internal/blockchain"
	"github.com/rovshanmuradov/wallet-adapter/internal/blockchain/solbc"
)

// Diagnoser replays a reverted transaction in simulation to find a readable reason.
type Diagnoser struct {
	endpoint   blockchain.Endpoint
	analyzer   *solbc.ErrorAnalyzer
	commitment rpc.CommitmentType
	logger     *zap.Logger
}

func NewDiagnoser(endpoint blockchain.Endpoint, logger *zap.Logger, commitment rpc.CommitmentType) *Diagnoser {
	return &Diagnoser{
		endpoint:   endpoint,
		analyzer:   solbc.NewErrorAnalyzer(logger),
		commitment: commitment,
		logger:     logger.Named("tx-diagnoser"),
	}
}

// Diagnose always returns an *OnChainError for sig.
func (d *Diagnoser) Diagnose(ctx context.Context, tx *solana.Transaction, sig solana.Signature, detail interface{}) *OnChainError {
	onChain := &OnChainError{Signature: sig, Detail: detail}

	sim, err := d.endpoint.SimulateTransaction(ctx, tx, d.commitment)
	if err != nil {
		d.logger.Debug("Simulation failed",
			zap.String("signature", sig.String()),
			zap.String("analysis", d.analyzer.FormatErrorAnalysis(d.analyzer.AnalyzeRPCError(err))))
		onChain.Message = fmt.Sprintf("simulation failed: %v", err)
		onChain.Err = err
		return onChain
	}

	if sim.Err == nil {
		// Симуляция на текущем состоянии прошла: остаётся только ошибка из статуса
		onChain.Message = describe(detail)
		return onChain
	}

	if line, ok := solbc.LastProgramLog(sim.Logs); ok {
		onChain.Message = line
		if strings.Contains(line, "AnchorError") {
			anchor := solbc.ParseAnchorErrorLog(line)
			onChain.Anchor = &anchor
		}
	} else {
		onChain.Message = describe(sim.Err)
	}

	d.logger.Debug("On-chain failure diagnosed",
		zap.String("signature", sig.String()),
		zap.String("message", onChain.Message),
		zap.Uint64("units_consumed", sim.UnitsConsumed))
	return onChain
}

func describe(v interface{}) string {
	if v == nil {
		return "unknown error"
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}
