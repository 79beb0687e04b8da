// =============================================
// File: internal/task/task.go
// =============================================
package task

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/memo"
	"github.com/gagliardetto/solana-go/programs/system"
)

// Constants
const LamportsPerSOL = 1_000_000_000

// Transfer: перевод лампортов внутри группы. Пустой From означает плательщика.
type Transfer struct {
	From     string  `yaml:"from"`
	To       string  `yaml:"to"`
	Lamports uint64  `yaml:"lamports"`
	SOL      float64 `yaml:"sol"`
}

// Group is one transaction worth of instructions.
type Group struct {
	Name      string     `yaml:"name"`
	Transfers []Transfer `yaml:"transfers"`
	Memo      string     `yaml:"memo"`
	CoSigners []string   `yaml:"co_signers"` // base58 приватные ключи
}

// Plan represents a batch of transaction groups loaded from YAML.
type Plan struct {
	Name       string  `yaml:"name"`
	Wallet     string  `yaml:"wallet"`
	Sequencing string  `yaml:"sequencing"`
	Groups     []Group `yaml:"groups"`
}

func (t Transfer) amount() uint64 {
	if t.Lamports > 0 {
		return t.Lamports
	}
	return uint64(t.SOL * LamportsPerSOL)
}

// Validate checks if the plan has valid parameters
func (p *Plan) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("plan name cannot be empty")
	}
	if len(p.Groups) == 0 {
		return fmt.Errorf("plan %q has no groups", p.Name)
	}

	for i, g := range p.Groups {
		for j, tr := range g.Transfers {
			if tr.To == "" {
				return fmt.Errorf("group %d transfer %d: recipient cannot be empty", i, j)
			}
			if tr.amount() == 0 {
				return fmt.Errorf("group %d transfer %d: amount must be greater than zero", i, j)
			}
		}
	}
	return nil
}

// Build converts groups into instruction lists aligned with their co-signers.
// A group without transfers and memo stays empty and is skipped by the submitters.
func (p *Plan) Build(payer solana.PublicKey) ([][]solana.Instruction, [][]solana.PrivateKey, error) {
	instructions := make([][]solana.Instruction, len(p.Groups))
	coSigners := make([][]solana.PrivateKey, len(p.Groups))

	for i, g := range p.Groups {
		keys, err := parseKeys(g.CoSigners)
		if err != nil {
			return nil, nil, fmt.Errorf("group %d: %w", i, err)
		}
		coSigners[i] = keys

		for j, tr := range g.Transfers {
			from := payer
			if tr.From != "" {
				if from, err = solana.PublicKeyFromBase58(tr.From); err != nil {
					return nil, nil, fmt.Errorf("group %d transfer %d: invalid sender: %w", i, j, err)
				}
			}
			to, err := solana.PublicKeyFromBase58(tr.To)
			if err != nil {
				return nil, nil, fmt.Errorf("group %d transfer %d: invalid recipient: %w", i, j, err)
			}
			instructions[i] = append(instructions[i],
				system.NewTransferInstruction(tr.amount(), from, to).Build())
		}

		if g.Memo != "" {
			instructions[i] = append(instructions[i],
				memo.NewMemoInstruction([]byte(g.Memo), payer).Build())
		}
	}

	return instructions, coSigners, nil
}

func parseKeys(raw []string) ([]solana.PrivateKey, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	keys := make([]solana.PrivateKey, 0, len(raw))
	for _, s := range raw {
		key, err := solana.PrivateKeyFromBase58(s)
		if err != nil {
			return nil, fmt.Errorf("invalid co-signer key: %w", err)
		}
		keys = append(keys, key)
	}
	return keys, nil
}
