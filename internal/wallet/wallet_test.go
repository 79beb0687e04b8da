// internal/wallet/wallet_test.go
package wallet

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTransferTx(t *testing.T, payer, coSigner solana.PublicKey) *solana.Transaction {
	t.Helper()
	ixs := []solana.Instruction{
		system.NewTransferInstruction(1, payer, solana.NewWallet().PublicKey()).Build(),
	}
	if !coSigner.IsZero() {
		ixs = append(ixs, system.NewTransferInstruction(1, coSigner, payer).Build())
	}
	tx, err := solana.NewTransaction(ixs, solana.Hash{1}, solana.TransactionPayer(payer))
	require.NoError(t, err)
	return tx
}

func TestNewWallet(t *testing.T) {
	key := solana.NewWallet().PrivateKey
	w, err := NewWallet(base58.Encode(key))
	require.NoError(t, err)
	assert.Equal(t, key.PublicKey(), w.PublicKey())
	assert.Equal(t, key.PublicKey().String(), w.String())

	_, err = NewWallet("not-base58-0OIl")
	assert.Error(t, err)

	_, err = NewWallet(base58.Encode([]byte{1, 2, 3}))
	assert.ErrorContains(t, err, "invalid private key length")
}

func TestLoadWallets(t *testing.T) {
	key := solana.NewWallet().PrivateKey
	path := filepath.Join(t.TempDir(), "wallets.csv")
	content := "name,private_key\nmain," + base58.Encode(key) + "\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	wallets, err := LoadWallets(path)
	require.NoError(t, err)
	require.Contains(t, wallets, "main")
	assert.Equal(t, "main", wallets["main"].Name)
	assert.Equal(t, key.PublicKey(), wallets["main"].PublicKey())

	empty := filepath.Join(t.TempDir(), "empty.csv")
	require.NoError(t, os.WriteFile(empty, []byte("name,private_key\n"), 0o600))
	_, err = LoadWallets(empty)
	assert.Error(t, err)
}

func TestSignTransactionKeepsCoSignerSignature(t *testing.T) {
	w := FromPrivateKey(solana.NewWallet().PrivateKey)
	coSigner := solana.NewWallet().PrivateKey
	tx := newTransferTx(t, w.PublicKey(), coSigner.PublicKey())

	_, err := tx.PartialSign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(coSigner.PublicKey()) {
			return &coSigner
		}
		return nil
	})
	require.NoError(t, err)

	signed, err := w.SignTransaction(context.Background(), tx)
	require.NoError(t, err)
	require.Len(t, signed.Signatures, 2)
	for _, sig := range signed.Signatures {
		assert.False(t, sig.IsZero())
	}
	assert.NoError(t, signed.VerifySignatures())
}

func TestSignTransactionRejectsForeignTransaction(t *testing.T) {
	w := FromPrivateKey(solana.NewWallet().PrivateKey)
	tx := newTransferTx(t, solana.NewWallet().PublicKey(), solana.PublicKey{})

	_, err := w.SignTransaction(context.Background(), tx)
	assert.ErrorIs(t, err, ErrKeyNotInTransaction)
}

func TestSignAllTransactionsPreservesOrder(t *testing.T) {
	w := FromPrivateKey(solana.NewWallet().PrivateKey)
	txs := []*solana.Transaction{
		newTransferTx(t, w.PublicKey(), solana.PublicKey{}),
		newTransferTx(t, w.PublicKey(), solana.PublicKey{}),
		newTransferTx(t, w.PublicKey(), solana.PublicKey{}),
	}

	signed, err := w.SignAllTransactions(context.Background(), txs)
	require.NoError(t, err)
	require.Len(t, signed, len(txs))
	for i := range txs {
		assert.Same(t, txs[i], signed[i])
	}
}

func TestSingleOnlyHidesBatchSigning(t *testing.T) {
	w := FromPrivateKey(solana.NewWallet().PrivateKey)
	_, ok := Signer(w).(BatchSigner)
	assert.True(t, ok)

	_, ok = SingleOnly(w).(BatchSigner)
	assert.False(t, ok)
	assert.Equal(t, w.PublicKey(), SingleOnly(w).PublicKey())
}
