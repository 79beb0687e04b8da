// internal/blockchain/solbc/solana.go
package solbc

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/rovshanmuradov/wallet-adapter/internal/blockchain"
)

// Blockchain связывает Solana клиент с общим интерфейсом blockchain.Blockchain.
type Blockchain struct {
	client *Client
	logger *zap.Logger
}

func NewBlockchain(client *Client, logger *zap.Logger) (*Blockchain, error) {
	if client == nil {
		return nil, fmt.Errorf("client cannot be nil")
	}

	return &Blockchain{
		client: client,
		logger: logger,
	}, nil
}

func (s *Blockchain) Name() string {
	return "Solana"
}

func (s *Blockchain) Endpoint() blockchain.Endpoint {
	return s.client
}

var _ blockchain.Blockchain = (*Blockchain)(nil)
