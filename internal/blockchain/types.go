// internal/blockchain/types.go
package blockchain

import (
	"context"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// TransactionOptions определяет опции для отправки транзакций.
type TransactionOptions struct {
	SkipPreflight       bool
	PreflightCommitment rpc.CommitmentType
}

// SimulationResult представляет результат симуляции транзакции.
type SimulationResult struct {
	Err           interface{}
	Logs          []string
	UnitsConsumed uint64
}

// ReferenceBlock: свежий blockhash, на который ссылается транзакция.
type ReferenceBlock struct {
	Blockhash            solana.Hash
	LastValidBlockHeight uint64
}

// SignatureNotification: терминальный статус подписи, пришедший по подписке.
type SignatureNotification struct {
	Slot uint64
	// Err is nil when the transaction succeeded.
	Err interface{}
}

// Subscription: активная подписка на статус одной подписи.
type Subscription interface {
	// Recv блокируется до прихода уведомления, ошибки транспорта или отмены ctx.
	Recv(ctx context.Context) (*SignatureNotification, error)
	// Unsubscribe освобождает подписку. Повторный вызов безопасен.
	Unsubscribe() error
}

// Endpoint: фасад сетевого узла, которым пользуется конвейер отправки.
type Endpoint interface {
	// Отправить сериализованную транзакцию.
	SendRawTransaction(ctx context.Context, raw []byte, opts TransactionOptions) (solana.Signature, error)
	// Получить последний blockhash.
	GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*ReferenceBlock, error)
	// Получить статус подписи; nil, если узел ещё ничего о ней не знает.
	GetSignatureStatus(ctx context.Context, signature solana.Signature) (*rpc.SignatureStatusesResult, error)
	// Подписаться на терминальный статус подписи.
	SubscribeSignature(ctx context.Context, signature solana.Signature, commitment rpc.CommitmentType) (Subscription, error)
	// Симулировать транзакцию.
	SimulateTransaction(ctx context.Context, tx *solana.Transaction, commitment rpc.CommitmentType) (*SimulationResult, error)
}
