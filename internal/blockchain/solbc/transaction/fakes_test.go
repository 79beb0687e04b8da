// internal/blockchain/solbc/transaction/fakes_test.go
package transaction

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rovshanmuradov/wallet-adapter/internal/blockchain"
	"github.com/rovshanmuradov/wallet-adapter/internal/wallet"
)

// fakeEndpoint ведёт себя как узел: одинаковые байты дают одну и ту же подпись,
// транзакции с переводом на marker падают on-chain.
type fakeEndpoint struct {
	mu sync.Mutex

	marker solana.PublicKey

	blockhashErrs  []error
	blockhashCalls int

	sendErr  error
	sends    int
	sentTxs  []*solana.Transaction
	ids      map[string]solana.Signature
	poisoned map[solana.Signature]bool

	silentPush   bool
	subscribeErr error
	subscribes   int
	unsubscribes int

	status      func(call int) (*rpc.SignatureStatusesResult, error)
	statusCalls int

	simResult *blockchain.SimulationResult
	simErr    error
}

func newFakeEndpoint() *fakeEndpoint {
	return &fakeEndpoint{
		marker:   solana.NewWallet().PublicKey(),
		ids:      make(map[string]solana.Signature),
		poisoned: make(map[solana.Signature]bool),
	}
}

type endpointStats struct {
	blockhashCalls int
	sends          int
	distinct       int
	subscribes     int
	unsubscribes   int
	statusCalls    int
}

func (f *fakeEndpoint) stats() endpointStats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return endpointStats{
		blockhashCalls: f.blockhashCalls,
		sends:          f.sends,
		distinct:       len(f.ids),
		subscribes:     f.subscribes,
		unsubscribes:   f.unsubscribes,
		statusCalls:    f.statusCalls,
	}
}

// sentTo сообщает, уходила ли в сеть транзакция с аккаунтом key.
func (f *fakeEndpoint) sentTo(key solana.PublicKey) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, tx := range f.sentTxs {
		for _, k := range tx.Message.AccountKeys {
			if k.Equals(key) {
				return true
			}
		}
	}
	return false
}

func (f *fakeEndpoint) lastSent() *solana.Transaction {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sentTxs) == 0 {
		return nil
	}
	return f.sentTxs[len(f.sentTxs)-1]
}

func (f *fakeEndpoint) SendRawTransaction(_ context.Context, raw []byte, _ blockchain.TransactionOptions) (solana.Signature, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.sends++
	if f.sendErr != nil {
		return solana.Signature{}, f.sendErr
	}
	if sig, ok := f.ids[string(raw)]; ok {
		return sig, nil
	}

	tx, err := solana.TransactionFromBytes(raw)
	if err != nil {
		return solana.Signature{}, err
	}
	sig := tx.Signatures[0]
	f.ids[string(raw)] = sig
	f.sentTxs = append(f.sentTxs, tx)
	for _, k := range tx.Message.AccountKeys {
		if k.Equals(f.marker) {
			f.poisoned[sig] = true
		}
	}
	return sig, nil
}

func (f *fakeEndpoint) GetLatestBlockhash(_ context.Context, _ rpc.CommitmentType) (*blockchain.ReferenceBlock, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.blockhashCalls++
	if n := f.blockhashCalls; n <= len(f.blockhashErrs) && f.blockhashErrs[n-1] != nil {
		return nil, f.blockhashErrs[n-1]
	}
	return &blockchain.ReferenceBlock{
		Blockhash:            solana.Hash{byte(f.blockhashCalls), 0xAB},
		LastValidBlockHeight: 1000,
	}, nil
}

func (f *fakeEndpoint) GetSignatureStatus(_ context.Context, _ solana.Signature) (*rpc.SignatureStatusesResult, error) {
	f.mu.Lock()
	f.statusCalls++
	call, status := f.statusCalls, f.status
	f.mu.Unlock()

	if status == nil {
		return nil, nil
	}
	return status(call)
}

func (f *fakeEndpoint) SubscribeSignature(_ context.Context, sig solana.Signature, _ rpc.CommitmentType) (blockchain.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.subscribes++
	if f.subscribeErr != nil {
		return nil, f.subscribeErr
	}
	return &fakeSubscription{endpoint: f, sig: sig}, nil
}

func (f *fakeEndpoint) SimulateTransaction(_ context.Context, _ *solana.Transaction, _ rpc.CommitmentType) (*blockchain.SimulationResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.simErr != nil {
		return nil, f.simErr
	}
	if f.simResult == nil {
		return &blockchain.SimulationResult{}, nil
	}
	return f.simResult, nil
}

type fakeSubscription struct {
	endpoint *fakeEndpoint
	sig      solana.Signature
}

func (s *fakeSubscription) Recv(ctx context.Context) (*blockchain.SignatureNotification, error) {
	s.endpoint.mu.Lock()
	silent := s.endpoint.silentPush
	poisoned := s.endpoint.poisoned[s.sig]
	s.endpoint.mu.Unlock()

	if silent {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if poisoned {
		return &blockchain.SignatureNotification{
			Slot: 100,
			Err:  map[string]interface{}{"InstructionError": []interface{}{0, map[string]interface{}{"Custom": 6001}}},
		}, nil
	}
	return &blockchain.SignatureNotification{Slot: 100}, nil
}

func (s *fakeSubscription) Unsubscribe() error {
	s.endpoint.mu.Lock()
	defer s.endpoint.mu.Unlock()
	s.endpoint.unsubscribes++
	return errors.New("already unsubscribed") // ошибки отписки игнорируются
}

var _ blockchain.Endpoint = (*fakeEndpoint)(nil)

// zeroKeySigner: кошелёк без публичного ключа.
type zeroKeySigner struct{}

func (zeroKeySigner) PublicKey() solana.PublicKey { return solana.PublicKey{} }
func (zeroKeySigner) SignTransaction(_ context.Context, tx *solana.Transaction) (*solana.Transaction, error) {
	return tx, nil
}

// droppingSigner теряет последнюю транзакцию при пакетной подписи.
type droppingSigner struct {
	*wallet.Wallet
}

func (d droppingSigner) SignAllTransactions(ctx context.Context, txs []*solana.Transaction) ([]*solana.Transaction, error) {
	signed, err := d.Wallet.SignAllTransactions(ctx, txs)
	if err != nil {
		return nil, err
	}
	return signed[:len(signed)-1], nil
}

func testConfig() Config {
	return Config{
		Commitment:          rpc.CommitmentConfirmed,
		ConfirmTimeout:      2 * time.Second,
		PollDelay:           10 * time.Millisecond,
		RebroadcastInterval: 20 * time.Millisecond,
		SkipPreflight:       true,
	}
}

func newTestManager(t *testing.T, endpoint blockchain.Endpoint, config Config, opts ...Option) *Manager {
	t.Helper()
	return NewManager(endpoint, zaptest.NewLogger(t), config, opts...)
}

func newTestWallet() *wallet.Wallet {
	return wallet.FromPrivateKey(solana.NewWallet().PrivateKey)
}

func transferGroup(from, to solana.PublicKey) []solana.Instruction {
	return []solana.Instruction{system.NewTransferInstruction(1, from, to).Build()}
}

// groups строит n групп с разными получателями; группы из empty остаются пустыми,
// группы из failing переводят на marker.
func groups(t *testing.T, payer solana.PublicKey, f *fakeEndpoint, n int, empty, failing []int) ([][]solana.Instruction, []solana.PublicKey) {
	t.Helper()
	out := make([][]solana.Instruction, n)
	recipients := make([]solana.PublicKey, n)
	for i := 0; i < n; i++ {
		recipients[i] = solana.NewWallet().PublicKey()
		out[i] = transferGroup(payer, recipients[i])
	}
	for _, i := range failing {
		out[i] = append(out[i], system.NewTransferInstruction(1, payer, f.marker).Build())
	}
	for _, i := range empty {
		out[i] = nil
	}
	require.Len(t, out, n)
	return out, recipients
}
