// internal/blockchain/solbc/transaction/manager.go
package transaction

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/wallet-adapter/internal/blockchain"
	"github.com/rovshanmuradov/wallet-adapter/internal/blockchain/solbc"
	"github.com/rovshanmuradov/wallet-adapter/internal/events"
)

// Publisher receives lifecycle events. *events.Bus satisfies it.
type Publisher interface {
	Publish(event events.Event) error
}

type Manager struct {
	endpoint      blockchain.Endpoint
	logger        *zap.Logger
	config        Config
	validator     *Validator
	tracker       *Tracker
	rebroadcaster *Rebroadcaster
	diagnoser     *Diagnoser
	analyzer      *solbc.ErrorAnalyzer
	metrics       *Metrics
	publisher     Publisher
}

type Option func(*Manager)

// WithMetrics подменяет метрики (по умолчанию: незарегистрированные).
func WithMetrics(metrics *Metrics) Option {
	return func(m *Manager) { m.metrics = metrics }
}

// WithPublisher включает публикацию событий.
func WithPublisher(p Publisher) Option {
	return func(m *Manager) { m.publisher = p }
}

func NewManager(endpoint blockchain.Endpoint, logger *zap.Logger, config Config, opts ...Option) *Manager {
	config = config.withDefaults()
	m := &Manager{
		endpoint:  endpoint,
		logger:    logger.Named("tx-manager"),
		config:    config,
		validator: NewValidator(logger),
		tracker:   NewTracker(endpoint, logger, config),
		diagnoser: NewDiagnoser(endpoint, logger, config.Commitment),
		analyzer:  solbc.NewErrorAnalyzer(logger),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.metrics == nil {
		m.metrics = NewMetrics(nil)
	}
	m.rebroadcaster = NewRebroadcaster(endpoint, logger, config, m.metrics)
	return m
}

// Config returns the effective configuration.
func (m *Manager) Config() Config {
	return m.config
}

// SendInstructions builds, signs, sends and confirms one transaction.
func (m *Manager) SendInstructions(ctx context.Context, req SendRequest) (*SendResult, error) {
	payer, err := feePayer(req.Signer, req.CoSigners, req.IncludesFeePayer)
	if err != nil {
		return nil, err
	}

	var blockhash solana.Hash
	if req.Blockhash != nil {
		blockhash = *req.Blockhash
	} else if blockhash, err = m.latestBlockhash(ctx); err != nil {
		return nil, err
	}

	tx, err := m.buildTransaction(req.Instructions, payer, blockhash, req.CoSigners)
	if err != nil {
		return nil, err
	}

	if !req.IncludesFeePayer {
		if tx, err = req.Signer.SignTransaction(ctx, tx); err != nil {
			return nil, fmt.Errorf("wallet sign: %w", err)
		}
	}

	return m.send(ctx, tx, req.BeforeSend)
}

// SendSigned sends an already signed transaction and waits for its outcome.
func (m *Manager) SendSigned(ctx context.Context, tx *solana.Transaction) (*SendResult, error) {
	return m.send(ctx, tx, nil)
}

func (m *Manager) send(ctx context.Context, tx *solana.Transaction, beforeSend func()) (*SendResult, error) {
	if err := m.validator.ValidateTransaction(tx); err != nil {
		m.logger.Error("Transaction validation failed", zap.Error(err))
		return nil, err
	}

	raw, err := tx.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize transaction: %w", err)
	}
	if beforeSend != nil {
		beforeSend()
	}

	start := time.Now()
	sig, err := m.endpoint.SendRawTransaction(ctx, raw, blockchain.TransactionOptions{
		SkipPreflight:       m.config.SkipPreflight,
		PreflightCommitment: m.config.Commitment,
	})
	if err != nil {
		m.metrics.failed("transport")
		m.logger.Error("Failed to send transaction",
			zap.String("analysis", m.analyzer.FormatErrorAnalysis(m.analyzer.AnalyzeRPCError(err))),
			zap.Error(err))
		transportErr := &TransportError{Op: "sendTransaction", Err: err}
		m.publishFailure(solana.Signature{}, "transport", transportErr)
		return nil, transportErr
	}
	m.metrics.sent()
	m.publish(events.TransactionSubmittedEvent{
		BaseEvent: events.NewBase(events.TransactionSubmitted),
		Signature: sig.String(),
		Size:      len(raw),
	})
	m.logger.Debug("Transaction submitted", zap.String("signature", sig.String()), zap.Int("size", len(raw)))

	// Один дедлайн на трекер и ребродкастер
	deadline := start.Add(m.config.ConfirmTimeout)
	var done atomic.Bool

	pending := m.tracker.Start(ctx, sig, deadline, &done)

	rebroadcastCtx, stopRebroadcast := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		m.rebroadcaster.Run(rebroadcastCtx, sig, raw, &done, deadline)
	}()

	outcome := pending.Wait()
	stopRebroadcast()
	wg.Wait()
	m.metrics.TrackTransaction(start)

	return m.classify(ctx, tx, sig, outcome, time.Since(start))
}

func (m *Manager) classify(ctx context.Context, tx *solana.Transaction, sig solana.Signature, outcome Outcome, latency time.Duration) (*SendResult, error) {
	switch outcome.Kind {
	case OutcomeConfirmed:
		m.metrics.confirmed()
		m.publish(events.TransactionConfirmedEvent{
			BaseEvent: events.NewBase(events.TransactionConfirmed),
			Signature: sig.String(),
			Slot:      outcome.Slot,
			Latency:   latency,
		})
		m.logger.Info("Transaction confirmed",
			zap.String("signature", sig.String()),
			zap.Uint64("slot", outcome.Slot),
			zap.Duration("latency", latency))
		return &SendResult{Signature: sig, Slot: outcome.Slot}, nil

	case OutcomeConfirmedWithError:
		m.metrics.failed("on_chain")
		onChain := m.diagnoser.Diagnose(ctx, tx, sig, outcome.Err)
		m.publishFailure(sig, "on_chain", onChain)
		m.logger.Error("Transaction failed on-chain",
			zap.String("signature", sig.String()),
			zap.String("reason", onChain.Message))
		return nil, onChain

	case OutcomeTimedOut:
		m.metrics.failed("timeout")
		err := fmt.Errorf("signature %s: %w", sig, ErrTimedOut)
		m.publishFailure(sig, "timeout", err)
		m.logger.Warn("Transaction confirmation timed out",
			zap.String("signature", sig.String()),
			zap.Duration("timeout", m.config.ConfirmTimeout))
		return nil, err

	default:
		cause := outcome.Cause
		if cause == nil {
			cause = errors.New("unknown transport failure")
		}
		if errors.Is(cause, context.Canceled) {
			m.metrics.failed("canceled")
		} else {
			m.metrics.failed("transport")
		}
		m.publishFailure(sig, "transport", cause)
		m.logger.Error("Transaction confirmation failed",
			zap.String("signature", sig.String()),
			zap.Error(cause))
		return nil, cause
	}
}

func (m *Manager) publish(event events.Event) {
	if m.publisher == nil {
		return
	}
	if err := m.publisher.Publish(event); err != nil {
		m.logger.Debug("Event dropped", zap.String("event_type", string(event.Type())), zap.Error(err))
	}
}

func (m *Manager) publishFailure(sig solana.Signature, reason string, err error) {
	var s string
	if !sig.IsZero() {
		s = sig.String()
	}
	m.publish(events.TransactionFailedEvent{
		BaseEvent: events.NewBase(events.TransactionFailed),
		Signature: s,
		Reason:    reason,
		Error:     err,
	})
}
