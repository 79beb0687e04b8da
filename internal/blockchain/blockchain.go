// internal/blockchain/blockchain.go
package blockchain

// Blockchain описывает конкретную сеть, к которой подключён Endpoint.
type Blockchain interface {
	Name() string
	Endpoint() Endpoint
}
