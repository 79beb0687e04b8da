// ==================================
// File: internal/wallet/wallet.go
// ==================================
package wallet

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
)

// ErrKeyNotInTransaction возвращается, если ключ кошелька не входит в число подписантов.
var ErrKeyNotInTransaction = errors.New("wallet key is not a required signer of the transaction")

// Signer: возможность подписать одну транзакцию.
type Signer interface {
	PublicKey() solana.PublicKey
	SignTransaction(ctx context.Context, tx *solana.Transaction) (*solana.Transaction, error)
}

// BatchSigner: кошелёк, который умеет подписать пачку транзакций одним вызовом.
// Возвращаемый срез имеет ту же длину и порядок, что и входной.
type BatchSigner interface {
	Signer
	SignAllTransactions(ctx context.Context, txs []*solana.Transaction) ([]*solana.Transaction, error)
}

// Wallet представляет кошелёк Solana на локальном ключе.
type Wallet struct {
	Name       string
	PrivateKey solana.PrivateKey
	address    solana.PublicKey
}

// NewWallet создаёт новый кошелёк из base58-encoded приватного ключа.
func NewWallet(privateKeyBase58 string) (*Wallet, error) {
	privateKeyBytes, err := base58.Decode(privateKeyBase58)
	if err != nil {
		return nil, fmt.Errorf("failed to decode private key: %w", err)
	}
	if len(privateKeyBytes) != 64 {
		return nil, fmt.Errorf("invalid private key length: expected 64 bytes, got %d", len(privateKeyBytes))
	}
	return FromPrivateKey(solana.PrivateKey(privateKeyBytes)), nil
}

// FromPrivateKey оборачивает уже декодированный ключ.
func FromPrivateKey(key solana.PrivateKey) *Wallet {
	return &Wallet{
		PrivateKey: key,
		address:    key.PublicKey(),
	}
}

// LoadWallets загружает кошельки из CSV-файла с колонками: [Name, PrivateKeyBase58].
func LoadWallets(path string) (map[string]*Wallet, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV: %w", err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("CSV file is empty or missing data")
	}

	wallets := make(map[string]*Wallet)
	for _, record := range records[1:] {
		if len(record) != 2 {
			continue
		}
		w, err := NewWallet(record[1])
		if err != nil {
			return nil, fmt.Errorf("wallet %q: %w", record[0], err)
		}
		w.Name = record[0]
		wallets[w.Name] = w
	}
	return wallets, nil
}

// PublicKey возвращает адрес кошелька.
func (w *Wallet) PublicKey() solana.PublicKey {
	return w.address
}

// SignTransaction добавляет подпись кошелька, не трогая подписи co-signer'ов.
func (w *Wallet) SignTransaction(ctx context.Context, tx *solana.Transaction) (*solana.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !tx.Message.IsSigner(w.address) {
		return nil, ErrKeyNotInTransaction
	}

	_, err := tx.PartialSign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(w.address) {
			return &w.PrivateKey
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}
	return tx, nil
}

// SignAllTransactions подписывает все транзакции по порядку.
func (w *Wallet) SignAllTransactions(ctx context.Context, txs []*solana.Transaction) ([]*solana.Transaction, error) {
	signed := make([]*solana.Transaction, 0, len(txs))
	for i, tx := range txs {
		out, err := w.SignTransaction(ctx, tx)
		if err != nil {
			return nil, fmt.Errorf("transaction %d: %w", i, err)
		}
		signed = append(signed, out)
	}
	return signed, nil
}

// String возвращает строковое представление кошелька (его публичный ключ).
func (w *Wallet) String() string {
	return w.address.String()
}

// singleSigner скрывает SignAllTransactions, имитируя кошелёк без пакетной подписи.
type singleSigner struct {
	Signer
}

// SingleOnly возвращает Signer, который не реализует BatchSigner.
func SingleOnly(s Signer) Signer {
	return singleSigner{Signer: s}
}

var (
	_ BatchSigner = (*Wallet)(nil)
	_ Signer      = singleSigner{}
)
