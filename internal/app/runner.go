// internal/app/runner.go
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"sync"
	"syscall"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rovshanmuradov/wallet-adapter/internal/blockchain/solbc"
	"github.com/rovshanmuradov/wallet-adapter/internal/blockchain/solbc/transaction"
	"github.com/rovshanmuradov/wallet-adapter/internal/config"
	"github.com/rovshanmuradov/wallet-adapter/internal/events"
	"github.com/rovshanmuradov/wallet-adapter/internal/journal"
	"github.com/rovshanmuradov/wallet-adapter/internal/task"
	"github.com/rovshanmuradov/wallet-adapter/internal/utils/logger"
	"github.com/rovshanmuradov/wallet-adapter/internal/wallet"
)

// Mode выбирает драйвер отправки пакета.
type Mode string

const (
	ModeBatch   Mode = "batch"
	ModeChunked Mode = "chunked"
	ModeRetry   Mode = "retry"
)

func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeBatch, ModeChunked, ModeRetry:
		return m, nil
	case "":
		return ModeChunked, nil
	default:
		return "", fmt.Errorf("unknown mode %q", s)
	}
}

// Options: пути к входным файлам и режим запуска.
type Options struct {
	WalletsPath string
	PlanPath    string
	Mode        Mode
}

// Report summarises one run.
type Report struct {
	Planned    int
	Sent       int
	Failed     []int
	Halted     bool
	StopIndex  int
	Signatures []solana.Signature
}

type Runner struct {
	logger     *logger.Logger
	config     *config.Config
	opts       Options
	registry   *prometheus.Registry
	shutdown   *ShutdownHandler
	shutdownCh chan os.Signal
}

func NewRunner(cfg *config.Config, log *logger.Logger, opts Options) *Runner {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &Runner{
		logger:     log,
		config:     cfg,
		opts:       opts,
		registry:   registry,
		shutdown:   NewShutdownHandler(log.Logger, 30*time.Second),
		shutdownCh: make(chan os.Signal, 1),
	}
}

func (r *Runner) Run(ctx context.Context) error {
	signal.Notify(r.shutdownCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(r.shutdownCh)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		select {
		case sig := <-r.shutdownCh:
			r.logger.Info("📡 Signal received: " + sig.String())
			cancel()
		case <-runCtx.Done():
		}
	}()

	plan, signer, err := r.loadInputs()
	if err != nil {
		return err
	}

	client, err := solbc.NewClient(r.config.RPCList, r.config.WebSocketURL, r.logger.Logger)
	if err != nil {
		return fmt.Errorf("failed to create solana client: %w", err)
	}
	if err := r.registry.Register(client.NodeMetrics()); err != nil {
		client.Close()
		return fmt.Errorf("failed to register rpc node metrics: %w", err)
	}
	r.shutdown.AddFunc("solana-client", func() error {
		client.Close()
		return nil
	})
	// повторный Shutdown ничего не делает; defer покрывает ранние выходы
	defer func() { _ = r.shutdown.Shutdown(context.Background()) }()

	chain, err := solbc.NewBlockchain(client, r.logger.Logger)
	if err != nil {
		return err
	}
	r.logger.Info("🔗 Connected", zap.String("chain", chain.Name()), zap.Int("rpc_nodes", len(r.config.RPCList)))

	bus := events.NewBus(r.logger.Logger, r.config.EventBuffer)
	tally := r.subscribe(bus)

	if r.config.JournalFile != "" {
		j, err := journal.Open(r.config.JournalFile, time.Second, r.logger.Logger)
		if err != nil {
			return err
		}
		j.Attach(bus)
		// закрывается после шины, чтобы записать последние события
		r.shutdown.Add("journal", j)
	}
	r.shutdown.AddFunc("event-bus", func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return bus.Shutdown(ctx)
	})

	manager := transaction.NewManager(chain.Endpoint(), r.logger.Logger, r.config.Transaction(),
		transaction.WithMetrics(transaction.NewMetrics(r.registry)),
		transaction.WithPublisher(bus),
	)

	var report *Report
	g, gctx := errgroup.WithContext(runCtx)
	finished := make(chan struct{})

	if r.config.MetricsAddr != "" {
		g.Go(func() error { return r.serveMetrics(gctx, finished) })
	}
	g.Go(func() error {
		defer close(finished)
		var err error
		report, err = r.execute(gctx, manager, plan, signer)
		return err
	})

	runErr := g.Wait()
	if err := r.shutdown.Shutdown(context.Background()); err != nil {
		r.logger.Warn("Shutdown completed with errors", zap.Error(err))
	}

	if report != nil {
		r.logger.Info("📊 Run summary",
			zap.String("plan", plan.Name),
			zap.Int("planned", report.Planned),
			zap.Int("sent", report.Sent),
			zap.Ints("failed", report.Failed),
			zap.Bool("halted", report.Halted),
			zap.Int("confirmed_events", tally.Count(events.TransactionConfirmed)),
			zap.Int("failed_events", tally.Count(events.TransactionFailed)))
	}
	return runErr
}

func (r *Runner) loadInputs() (*task.Plan, wallet.Signer, error) {
	plan, err := task.NewManager(r.logger.Logger).LoadPlan(r.opts.PlanPath)
	if err != nil {
		return nil, nil, err
	}

	wallets, err := wallet.LoadWallets(r.opts.WalletsPath)
	if err != nil {
		return nil, nil, fmt.Errorf("💥 failed to load wallets: %w", err)
	}

	w, err := pickWallet(wallets, plan.Wallet)
	if err != nil {
		return nil, nil, err
	}
	r.logger.WithWallet(w.PublicKey().String()).Info("🔑 Using wallet", zap.String("name", w.Name))
	return plan, w, nil
}

func pickWallet(wallets map[string]*wallet.Wallet, name string) (*wallet.Wallet, error) {
	if name != "" {
		w, ok := wallets[name]
		if !ok {
			return nil, fmt.Errorf("wallet %q not found", name)
		}
		return w, nil
	}
	if len(wallets) != 1 {
		return nil, fmt.Errorf("plan must name a wallet when %d wallets are loaded", len(wallets))
	}
	for _, w := range wallets {
		return w, nil
	}
	return nil, errors.New("no wallets loaded")
}

func (r *Runner) subscribe(bus *events.Bus) *events.Tally {
	tally := events.NewTally()
	for _, t := range []events.EventType{
		events.TransactionSubmitted,
		events.TransactionConfirmed,
		events.TransactionFailed,
		events.BatchStarted,
		events.BatchCompleted,
	} {
		bus.Subscribe(t, tally)
	}

	bus.SubscribeFunc(events.TransactionFailed, func(_ context.Context, e events.Event) error {
		if ev, ok := e.(events.TransactionFailedEvent); ok {
			r.logger.WithTransaction(ev.Signature).Warn("❌ Transaction failed",
				zap.String("reason", ev.Reason),
				zap.Error(ev.Error))
		}
		return nil
	})
	bus.SubscribeFunc(events.BatchCompleted, func(_ context.Context, e events.Event) error {
		if ev, ok := e.(events.BatchCompletedEvent); ok {
			r.logger.Info("📦 Batch completed",
				zap.String("batch_id", ev.BatchID),
				zap.Int("succeeded", ev.Succeeded),
				zap.Int("failed", ev.Failed))
		}
		return nil
	})
	return tally
}

func (r *Runner) execute(ctx context.Context, manager *transaction.Manager, plan *task.Plan, signer wallet.Signer) (*Report, error) {
	instructions, coSigners, err := plan.Build(signer.PublicKey())
	if err != nil {
		return nil, err
	}

	policy := r.config.Policy()
	if plan.Sequencing != "" {
		if policy, err = transaction.ParsePolicy(plan.Sequencing); err != nil {
			return nil, err
		}
	}

	opLogger := r.logger.WithOperation("send_plan")
	report := &Report{Planned: len(instructions), Signatures: make([]solana.Signature, len(instructions))}
	pending := newFailures()
	req := transaction.BatchRequest{
		Instructions: instructions,
		CoSigners:    coSigners,
		Signer:       signer,
		Policy:       policy,
		OnSuccess: func(sig solana.Signature, i int) {
			// при PolicyParallel индексы не пересекаются
			report.Signatures[i] = sig
			pending.remove(i)
		},
		OnFailure: func(_ *solana.Transaction, i int, _ error) {
			pending.add(i)
		},
	}

	end := r.logger.TrackPerformance("send_plan")
	defer end()

	batch := transaction.NewBatchSubmitter(manager, r.logger.Logger)
	chunked := transaction.NewChunkedDriver(batch, r.config.ChunkSize, r.logger.Logger)
	switch r.opts.Mode {
	case ModeRetry:
		state, err := transaction.NewRetryDriver(chunked, manager, r.logger.Logger).Run(ctx, req)
		report.StopIndex = state.StopPoint
		report.Halted = err != nil
		report.Sent = countSigned(report.Signatures)
		report.Failed = pending.sorted()
		opLogger.Info("Retry driver finished",
			zap.Int("stop_point", state.StopPoint),
			zap.Int("attempts", state.Attempts),
			zap.Ints("failed", report.Failed))
		return report, err

	case ModeBatch:
		res, err := batch.Submit(ctx, req)
		return r.fill(report, res, opLogger), err

	default:
		res, err := chunked.Submit(ctx, req)
		return r.fill(report, res, opLogger), err
	}
}

func (r *Runner) fill(report *Report, res transaction.BatchResult, opLogger *zap.Logger) *Report {
	if res.Count == transaction.BatchUnsupported {
		opLogger.Warn("Wallet cannot sign batches, nothing was sent; use retry mode")
		return report
	}
	report.Sent = res.Count
	report.Failed = res.Failed
	report.Halted = res.Halted
	report.StopIndex = res.StopIndex
	if res.Err != nil {
		opLogger.Warn("Some transactions failed", zap.Ints("failed", res.Failed), zap.Error(res.Err))
	}
	return report
}

func countSigned(sigs []solana.Signature) int {
	n := 0
	for _, s := range sigs {
		if !s.IsZero() {
			n++
		}
	}
	return n
}

// failures хранит индексы групп, последняя попытка которых закончилась ошибкой.
type failures struct {
	mu  sync.Mutex
	set map[int]struct{}
}

func newFailures() *failures {
	return &failures{set: make(map[int]struct{})}
}

func (f *failures) add(i int) {
	f.mu.Lock()
	f.set[i] = struct{}{}
	f.mu.Unlock()
}

func (f *failures) remove(i int) {
	f.mu.Lock()
	delete(f.set, i)
	f.mu.Unlock()
}

func (f *failures) sorted() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]int, 0, len(f.set))
	for i := range f.set {
		out = append(out, i)
	}
	slices.Sort(out)
	return out
}

// serveMetrics отдаёт /metrics, пока не завершится отправка.
func (r *Runner) serveMetrics(ctx context.Context, finished <-chan struct{}) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry}))
	srv := &http.Server{Addr: r.config.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		r.logger.Info("📈 Metrics server listening", zap.String("addr", r.config.MetricsAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	case <-ctx.Done():
	case <-finished:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
