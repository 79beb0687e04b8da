// internal/blockchain/solbc/transaction/types.go
package transaction

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/rovshanmuradov/wallet-adapter/internal/blockchain/solbc"
	"github.com/rovshanmuradov/wallet-adapter/internal/wallet"
)

var (
	// ErrPrecondition: общий предок ошибок, которые никогда не повторяются.
	ErrPrecondition     = errors.New("precondition failed")
	ErrMissingPublicKey = fmt.Errorf("%w: fee payer public key is not set", ErrPrecondition)
	ErrMissingSigner    = fmt.Errorf("%w: wallet signer is not available", ErrPrecondition)

	ErrTimedOut            = errors.New("transaction confirmation timed out")
	ErrRetriesExhausted    = errors.New("retries exhausted without progress")
	ErrMisalignedBatch     = errors.New("instruction and co-signer groups are not aligned")
	ErrSignedCountMismatch = errors.New("wallet returned a different number of signed transactions")

	ErrInvalidSignature   = errors.New("invalid transaction signature")
	ErrInvalidBlockhash   = errors.New("invalid blockhash")
	ErrInvalidInstruction = errors.New("invalid instruction")
)

// BatchUnsupported is the Count reported when the wallet cannot sign a batch.
const BatchUnsupported = -1

// TransportError: отправка или подписка не удалась на уровне сети.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport failure during %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// OnChainError: транзакция попала в блок, но программа вернула ошибку.
type OnChainError struct {
	Signature solana.Signature
	Detail    interface{}        // err из статуса подписи
	Message   string             // лучшая найденная строка лога
	Anchor    *solbc.AnchorError // если последняя строка: AnchorError
	Err       error              // ошибка симуляции, если она сама упала
}

func (e *OnChainError) Error() string {
	return fmt.Sprintf("transaction %s failed: %s", e.Signature, e.Message)
}

func (e *OnChainError) Unwrap() error {
	return e.Err
}

// OutcomeKind is the terminal state of a confirmation tracker.
type OutcomeKind int

const (
	OutcomePending OutcomeKind = iota
	OutcomeConfirmed
	OutcomeConfirmedWithError
	OutcomeTimedOut
	OutcomeTransportFailure
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeConfirmed:
		return "confirmed"
	case OutcomeConfirmedWithError:
		return "confirmed_with_error"
	case OutcomeTimedOut:
		return "timed_out"
	case OutcomeTransportFailure:
		return "transport_failure"
	default:
		return "pending"
	}
}

// Outcome is produced exactly once per tracked signature.
type Outcome struct {
	Kind  OutcomeKind
	Slot  uint64
	Err   interface{} // on-chain error payload for OutcomeConfirmedWithError
	Cause error       // for OutcomeTransportFailure
}

// Policy governs how a batch awaits and aborts its sends.
type Policy int

const (
	PolicySequential Policy = iota
	PolicyParallel
	PolicyStopOnFailure
)

func (p Policy) String() string {
	switch p {
	case PolicyParallel:
		return "parallel"
	case PolicyStopOnFailure:
		return "stop_on_failure"
	default:
		return "sequential"
	}
}

// ParsePolicy разбирает значение из конфигурации.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "sequential":
		return PolicySequential, nil
	case "parallel":
		return PolicyParallel, nil
	case "stop_on_failure", "stoponfailure":
		return PolicyStopOnFailure, nil
	default:
		return PolicySequential, fmt.Errorf("unknown sequencing policy %q", s)
	}
}

// Config holds the knobs of the send path.
type Config struct {
	Commitment          rpc.CommitmentType
	ConfirmTimeout      time.Duration
	PollDelay           time.Duration
	RebroadcastInterval time.Duration
	PollStatus          bool
	SkipPreflight       bool
	ComputeUnits        uint32
	PriorityFee         uint64 // micro-lamports за compute unit
}

// DefaultConfig returns the values used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		Commitment:          rpc.CommitmentConfirmed,
		ConfirmTimeout:      60 * time.Second,
		PollDelay:           5 * time.Second,
		RebroadcastInterval: 500 * time.Millisecond,
		PollStatus:          true,
		SkipPreflight:       true,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Commitment == "" {
		c.Commitment = def.Commitment
	}
	if c.ConfirmTimeout <= 0 {
		c.ConfirmTimeout = def.ConfirmTimeout
	}
	if c.PollDelay <= 0 {
		c.PollDelay = def.PollDelay
	}
	if c.RebroadcastInterval <= 0 {
		c.RebroadcastInterval = def.RebroadcastInterval
	}
	return c
}

// pollBudget: число пустых ответов подряд, после которого опрос сдаётся.
func (c Config) pollBudget() int {
	return int(c.ConfirmTimeout / c.PollDelay)
}

// SendRequest describes one transaction to build, sign and send.
type SendRequest struct {
	Instructions []solana.Instruction
	CoSigners    []solana.PrivateKey
	Signer       wallet.Signer
	Blockhash    *solana.Hash

	// IncludesFeePayer: первый co-signer платит комиссию, кошелёк не подписывает.
	IncludesFeePayer bool
	BeforeSend       func()
}

// SendResult is the successful outcome of a send.
type SendResult struct {
	Signature solana.Signature
	Slot      uint64
}

// BatchRequest describes index-aligned instruction and co-signer groups.
type BatchRequest struct {
	Instructions [][]solana.Instruction
	CoSigners    [][]solana.PrivateKey // nil = ни у одной группы нет co-signer'ов
	Signer       wallet.Signer
	Policy       Policy
	Blockhash    *solana.Hash

	// Индексы в колбэках: позиции во входных массивах.
	// При PolicyParallel колбэки вызываются конкурентно.
	OnSuccess func(sig solana.Signature, index int)
	OnFailure func(tx *solana.Transaction, index int, err error)
}

// BatchResult aggregates the sends of one batch pass.
type BatchResult struct {
	// Count: число непустых групп, принятых к отправке, или BatchUnsupported.
	Count int
	// StopIndex: индекс во входных массивах, где остановилась обработка;
	// len(Instructions), если дошли до конца.
	StopIndex int
	Halted    bool
	// Failed: входные индексы неудачных отправок; Err объединяет их ошибки.
	Failed     []int
	Err        error
	Signatures []solana.Signature // выровнены по входным индексам
}

// RetryState tracks the manual-retry loop.
type RetryState struct {
	StopPoint  int
	Tries      int
	LastLength int
	Attempts   int
	LastErr    error
}
