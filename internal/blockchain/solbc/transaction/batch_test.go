// internal/blockchain/solbc/transaction/batch_test.go
package transaction

import (
	"context"
	"sort"
	"sync"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/rovshanmuradov/wallet-adapter/internal/wallet"
)

type callbackLog struct {
	mu        sync.Mutex
	successes map[int]int
	failures  map[int]int
}

func newCallbackLog() *callbackLog {
	return &callbackLog{successes: make(map[int]int), failures: make(map[int]int)}
}

func (c *callbackLog) attach(req *BatchRequest) {
	req.OnSuccess = func(_ solana.Signature, i int) {
		c.mu.Lock()
		c.successes[i]++
		c.mu.Unlock()
	}
	req.OnFailure = func(_ *solana.Transaction, i int, _ error) {
		c.mu.Lock()
		c.failures[i]++
		c.mu.Unlock()
	}
}

func (c *callbackLog) fired() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []int
	for i, n := range c.successes {
		for ; n > 0; n-- {
			out = append(out, i)
		}
	}
	for i, n := range c.failures {
		for ; n > 0; n-- {
			out = append(out, i)
		}
	}
	sort.Ints(out)
	return out
}

func newTestBatch(t *testing.T, f *fakeEndpoint) *BatchSubmitter {
	t.Helper()
	return NewBatchSubmitter(newTestManager(t, f, testConfig()), zaptest.NewLogger(t))
}

func TestBatchParallelCallbacksOncePerIndex(t *testing.T) {
	f := newFakeEndpoint()
	b := newTestBatch(t, f)
	w := newTestWallet()
	ixs, _ := groups(t, w.PublicKey(), f, 5, []int{1}, []int{3})

	log := newCallbackLog()
	req := BatchRequest{Instructions: ixs, Signer: w, Policy: PolicyParallel}
	log.attach(&req)

	res, err := b.Submit(context.Background(), req)
	require.NoError(t, err)

	// все колбэки отработали до возврата из Submit
	assert.Equal(t, []int{0, 2, 3, 4}, log.fired())
	assert.Equal(t, 1, log.failures[3])
	assert.Equal(t, 4, res.Count)
	assert.Equal(t, []int{3}, res.Failed)
	assert.Error(t, res.Err)
	assert.False(t, res.Halted)
	assert.Equal(t, 5, res.StopIndex)
	assert.True(t, res.Signatures[1].IsZero())
	assert.False(t, res.Signatures[4].IsZero())
	assert.Equal(t, 1, f.stats().blockhashCalls)
}

func TestBatchLogsCarryBatchFields(t *testing.T) {
	f := newFakeEndpoint()
	core, logs := observer.New(zapcore.InfoLevel)
	b := NewBatchSubmitter(newTestManager(t, f, testConfig()), zap.New(core))
	w := newTestWallet()
	ixs, _ := groups(t, w.PublicKey(), f, 3, nil, nil)

	_, err := b.Submit(context.Background(), BatchRequest{Instructions: ixs, Signer: w, Policy: PolicySequential})
	require.NoError(t, err)

	finished := logs.FilterMessage("Batch finished").All()
	require.Len(t, finished, 1)
	fields := finished[0].ContextMap()
	assert.NotEmpty(t, fields["batch_id"])
	assert.Equal(t, "sequential", fields["policy"])
	assert.EqualValues(t, 3, fields["batch_size"])
}

func TestBatchSequentialContinuesAfterFailure(t *testing.T) {
	f := newFakeEndpoint()
	b := newTestBatch(t, f)
	w := newTestWallet()
	ixs, recipients := groups(t, w.PublicKey(), f, 4, nil, []int{1})

	res, err := b.Submit(context.Background(), BatchRequest{Instructions: ixs, Signer: w, Policy: PolicySequential})
	require.NoError(t, err)

	assert.Equal(t, []int{1}, res.Failed)
	assert.False(t, res.Halted)
	assert.True(t, f.sentTo(recipients[3]))
}

func TestBatchStopOnFailureNeverStartsNext(t *testing.T) {
	f := newFakeEndpoint()
	b := newTestBatch(t, f)
	w := newTestWallet()
	ixs, recipients := groups(t, w.PublicKey(), f, 5, nil, []int{2})

	log := newCallbackLog()
	req := BatchRequest{Instructions: ixs, Signer: w, Policy: PolicyStopOnFailure}
	log.attach(&req)

	res, err := b.Submit(context.Background(), req)
	require.Error(t, err)

	var onChain *OnChainError
	assert.ErrorAs(t, err, &onChain)
	assert.True(t, res.Halted)
	assert.Equal(t, 2, res.StopIndex)
	assert.Equal(t, []int{0, 1, 2}, log.fired())
	assert.True(t, f.sentTo(recipients[1]))
	assert.False(t, f.sentTo(recipients[3]))
	assert.False(t, f.sentTo(recipients[4]))
}

func TestBatchStopIndexIsInputIndex(t *testing.T) {
	f := newFakeEndpoint()
	b := newTestBatch(t, f)
	w := newTestWallet()
	// пустые группы перед упавшей не сдвигают индекс
	ixs, _ := groups(t, w.PublicKey(), f, 5, []int{0, 1}, []int{3})

	res, err := b.Submit(context.Background(), BatchRequest{Instructions: ixs, Signer: w, Policy: PolicyStopOnFailure})
	require.Error(t, err)
	assert.Equal(t, 3, res.StopIndex)
	assert.Equal(t, 3, res.Count)
}

func TestBatchUnsupportedSigner(t *testing.T) {
	f := newFakeEndpoint()
	b := newTestBatch(t, f)
	w := newTestWallet()
	ixs, _ := groups(t, w.PublicKey(), f, 3, nil, nil)

	res, err := b.Submit(context.Background(), BatchRequest{Instructions: ixs, Signer: wallet.SingleOnly(w)})
	require.NoError(t, err)
	assert.Equal(t, BatchUnsupported, res.Count)
	assert.Zero(t, f.stats().blockhashCalls)
	assert.Zero(t, f.stats().sends)
}

func TestBatchSignedCountMismatch(t *testing.T) {
	f := newFakeEndpoint()
	b := newTestBatch(t, f)
	w := newTestWallet()
	ixs, _ := groups(t, w.PublicKey(), f, 3, nil, nil)

	_, err := b.Submit(context.Background(), BatchRequest{Instructions: ixs, Signer: droppingSigner{w}})
	assert.ErrorIs(t, err, ErrSignedCountMismatch)
	assert.Zero(t, f.stats().sends)
}

func TestBatchMisalignedAndPreconditions(t *testing.T) {
	f := newFakeEndpoint()
	b := newTestBatch(t, f)
	w := newTestWallet()
	ixs, _ := groups(t, w.PublicKey(), f, 3, nil, nil)

	_, err := b.Submit(context.Background(), BatchRequest{
		Instructions: ixs,
		CoSigners:    make([][]solana.PrivateKey, 2),
		Signer:       w,
	})
	assert.ErrorIs(t, err, ErrMisalignedBatch)

	_, err = b.Submit(context.Background(), BatchRequest{Instructions: ixs})
	assert.ErrorIs(t, err, ErrMissingSigner)
}

func TestBatchDropsCoSignersOfEmptyGroups(t *testing.T) {
	f := newFakeEndpoint()
	b := newTestBatch(t, f)
	w := newTestWallet()
	coSigner := solana.NewWallet().PrivateKey

	ixs := [][]solana.Instruction{
		nil,
		append(transferGroup(w.PublicKey(), solana.NewWallet().PublicKey()), transferGroup(coSigner.PublicKey(), w.PublicKey())...),
	}
	coSigners := [][]solana.PrivateKey{{solana.NewWallet().PrivateKey}, {coSigner}}

	res, err := b.Submit(context.Background(), BatchRequest{Instructions: ixs, CoSigners: coSigners, Signer: w})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Count)
	assert.Empty(t, res.Failed)
	assert.NoError(t, f.lastSent().VerifySignatures())
}

func TestBatchAllEmpty(t *testing.T) {
	f := newFakeEndpoint()
	b := newTestBatch(t, f)

	res, err := b.Submit(context.Background(), BatchRequest{
		Instructions: make([][]solana.Instruction, 3),
		Signer:       newTestWallet(),
	})
	require.NoError(t, err)
	assert.Zero(t, res.Count)
	assert.Equal(t, 3, res.StopIndex)
	assert.Zero(t, f.stats().blockhashCalls)
}
