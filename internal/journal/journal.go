// internal/journal/journal.go
package journal

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rovshanmuradov/wallet-adapter/internal/events"
)

var header = []string{"timestamp", "event", "signature", "slot", "latency_ms", "reason", "error"}

// Journal пишет итог каждой транзакции в CSV. Подписывается на шину событий.
type Journal struct {
	mu       sync.Mutex
	writer   *csv.Writer
	file     *os.File
	ticker   *time.Ticker
	done     chan struct{}
	logger   *zap.Logger
	filePath string

	written uint64
}

// Open creates the file (and its directory) or appends to an existing journal.
func Open(filePath string, flushInterval time.Duration, logger *zap.Logger) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	j := &Journal{
		writer:   csv.NewWriter(file),
		file:     file,
		ticker:   time.NewTicker(flushInterval),
		done:     make(chan struct{}),
		logger:   logger.Named("journal"),
		filePath: filePath,
	}

	if stat.Size() == 0 {
		if err := j.writer.Write(header); err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to write header: %w", err)
		}
		j.writer.Flush()
	}

	go j.periodicFlush()
	return j, nil
}

// Attach subscribes the journal to terminal transaction events.
func (j *Journal) Attach(bus *events.Bus) {
	bus.Subscribe(events.TransactionConfirmed, j)
	bus.Subscribe(events.TransactionFailed, j)
}

// Handle реализует events.Handler.
func (j *Journal) Handle(_ context.Context, event events.Event) error {
	var record []string
	ts := event.Timestamp().UTC().Format(time.RFC3339Nano)

	switch e := event.(type) {
	case events.TransactionConfirmedEvent:
		record = []string{ts, string(e.Type()), e.Signature,
			strconv.FormatUint(e.Slot, 10), strconv.FormatInt(e.Latency.Milliseconds(), 10), "", ""}
	case events.TransactionFailedEvent:
		errText := ""
		if e.Error != nil {
			errText = e.Error.Error()
		}
		record = []string{ts, string(e.Type()), e.Signature, "", "", e.Reason, errText}
	default:
		return nil
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.writer.Write(record); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}
	j.written++
	return nil
}

// Flush forces a write of any buffered data
func (j *Journal) Flush() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.writer.Flush()
	if err := j.writer.Error(); err != nil {
		return fmt.Errorf("CSV writer error: %w", err)
	}
	return j.file.Sync()
}

func (j *Journal) periodicFlush() {
	for {
		select {
		case <-j.ticker.C:
			if err := j.Flush(); err != nil {
				j.logger.Error("Periodic journal flush failed",
					zap.String("file", j.filePath),
					zap.Error(err))
			}
		case <-j.done:
			return
		}
	}
}

// Close stops periodic flushing and closes the file.
func (j *Journal) Close() error {
	close(j.done)
	j.ticker.Stop()

	j.mu.Lock()
	defer j.mu.Unlock()

	j.writer.Flush()
	if err := j.writer.Error(); err != nil {
		return fmt.Errorf("CSV writer error on close: %w", err)
	}
	if err := j.file.Close(); err != nil {
		return fmt.Errorf("failed to close file: %w", err)
	}

	j.logger.Info("Journal closed",
		zap.String("file", j.filePath),
		zap.Uint64("records", j.written))
	return nil
}
