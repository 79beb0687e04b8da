// internal/blockchain/solbc/transaction/budget.go
package transaction

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	computebudget "github.com/gagliardetto/solana-go/programs/compute-budget"

	"github.com/rovshanmuradov/wallet-adapter/internal/wallet"
)

// budgetInstructions возвращает compute-budget инструкции, которые ставятся перед пользовательскими.
func (c Config) budgetInstructions() []solana.Instruction {
	var ixs []solana.Instruction
	if c.ComputeUnits > 0 {
		ixs = append(ixs, computebudget.NewSetComputeUnitLimitInstruction(c.ComputeUnits).Build())
	}
	if c.PriorityFee > 0 {
		ixs = append(ixs, computebudget.NewSetComputeUnitPriceInstruction(c.PriorityFee).Build())
	}
	return ixs
}

// feePayer определяет плательщика комиссии.
func feePayer(signer wallet.Signer, coSigners []solana.PrivateKey, includesFeePayer bool) (solana.PublicKey, error) {
	if includesFeePayer {
		if len(coSigners) == 0 || coSigners[0].PublicKey().IsZero() {
			return solana.PublicKey{}, ErrMissingPublicKey
		}
		return coSigners[0].PublicKey(), nil
	}
	if signer == nil {
		return solana.PublicKey{}, ErrMissingSigner
	}
	pk := signer.PublicKey()
	if pk.IsZero() {
		return solana.PublicKey{}, ErrMissingPublicKey
	}
	return pk, nil
}

// buildTransaction собирает транзакцию и ставит частичные подписи co-signer'ов.
func (m *Manager) buildTransaction(instructions []solana.Instruction, payer solana.PublicKey, blockhash solana.Hash, coSigners []solana.PrivateKey) (*solana.Transaction, error) {
	ixs := append(m.config.budgetInstructions(), instructions...)

	tx, err := solana.NewTransaction(ixs, blockhash, solana.TransactionPayer(payer))
	if err != nil {
		return nil, fmt.Errorf("failed to build transaction: %w", err)
	}

	if len(coSigners) > 0 {
		keys := make(map[solana.PublicKey]*solana.PrivateKey, len(coSigners))
		for i := range coSigners {
			keys[coSigners[i].PublicKey()] = &coSigners[i]
		}
		if _, err := tx.PartialSign(func(key solana.PublicKey) *solana.PrivateKey {
			return keys[key]
		}); err != nil {
			return nil, fmt.Errorf("co-signer partial sign: %w", err)
		}
	}
	return tx, nil
}

// latestBlockhash запрашивает свежий blockhash. Перебор узлов и таймауты
// остаются на стороне RPC пула.
func (m *Manager) latestBlockhash(ctx context.Context) (solana.Hash, error) {
	ref, err := m.endpoint.GetLatestBlockhash(ctx, m.config.Commitment)
	if err != nil {
		return solana.Hash{}, fmt.Errorf("failed to get latest blockhash: %w", err)
	}
	return ref.Blockhash, nil
}
