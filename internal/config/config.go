// =================================
// File: internal/config/config.go
// =================================
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go/rpc"
	"github.com/spf13/viper"

	"github.com/rovshanmuradov/wallet-adapter/internal/blockchain/solbc/transaction"
)

// EnvPrefix: префикс переменных окружения, перекрывающих файл.
const EnvPrefix = "WALLET_ADAPTER"

type Config struct {
	RPCList          []string `mapstructure:"rpc_list"`
	WebSocketURL     string   `mapstructure:"websocket_url"`
	Commitment       string   `mapstructure:"commitment"`
	ConfirmTimeoutMs int      `mapstructure:"confirm_timeout_ms"`
	PollDelayMs      int      `mapstructure:"poll_delay_ms"`
	RebroadcastMs    int      `mapstructure:"rebroadcast_ms"`
	PollStatus       bool     `mapstructure:"poll_status"`
	SkipPreflight    bool     `mapstructure:"skip_preflight"`
	ChunkSize        int      `mapstructure:"chunk_size"`
	Sequencing       string   `mapstructure:"sequencing"`
	ComputeUnits     uint32   `mapstructure:"compute_units"`
	PriorityFee      uint64   `mapstructure:"priority_fee_micro_lamports"`
	DebugLogging     bool     `mapstructure:"debug_logging"`
	LogFile          string   `mapstructure:"log_file"`
	MetricsAddr      string   `mapstructure:"metrics_addr"`
	JournalFile      string   `mapstructure:"journal_file"`
	EventBuffer      int      `mapstructure:"event_buffer"`
}

const (
	DefaultCommitment       = "confirmed"
	DefaultConfirmTimeoutMs = 60000
	DefaultPollDelayMs      = 5000
	DefaultRebroadcastMs    = 500
	DefaultChunkSize        = 10
	DefaultSequencing       = "sequential"
	DefaultLogFile          = "sender.log"
	DefaultEventBuffer      = 256
)

func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	defaults := map[string]interface{}{
		"commitment":         DefaultCommitment,
		"confirm_timeout_ms": DefaultConfirmTimeoutMs,
		"poll_delay_ms":      DefaultPollDelayMs,
		"rebroadcast_ms":     DefaultRebroadcastMs,
		"poll_status":        true,
		"skip_preflight":     true,
		"chunk_size":         DefaultChunkSize,
		"sequencing":         DefaultSequencing,
		"log_file":           DefaultLogFile,
		"event_buffer":       DefaultEventBuffer,
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	// rpc_list из окружения приходит строкой через запятую, с пробелами
	cfg.RPCList = splitList(strings.Join(cfg.RPCList, ","))

	return &cfg, validateConfig(&cfg)
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if clean := strings.TrimSpace(part); clean != "" {
			out = append(out, clean)
		}
	}
	return out
}

func validateConfig(cfg *Config) error {
	if len(cfg.RPCList) == 0 {
		return errors.New("rpc_list is empty")
	}
	for _, rpcURL := range cfg.RPCList {
		if err := validateURLWithCache(rpcURL, "http"); err != nil {
			return fmt.Errorf("invalid RPC URL %q: %w", rpcURL, err)
		}
	}
	if cfg.WebSocketURL != "" {
		if err := validateURLWithCache(cfg.WebSocketURL, "ws"); err != nil {
			return errors.New("invalid WebSocket URL protocol")
		}
	}
	switch rpc.CommitmentType(cfg.Commitment) {
	case rpc.CommitmentProcessed, rpc.CommitmentConfirmed, rpc.CommitmentFinalized:
	default:
		return fmt.Errorf("invalid commitment %q", cfg.Commitment)
	}
	if _, err := transaction.ParsePolicy(cfg.Sequencing); err != nil {
		return err
	}
	return validateNumericParams(cfg)
}

func validateNumericParams(cfg *Config) error {
	if cfg.ConfirmTimeoutMs <= 0 {
		return errors.New("invalid confirm_timeout_ms")
	}
	if cfg.PollDelayMs <= 0 {
		return errors.New("invalid poll_delay_ms")
	}
	if cfg.PollDelayMs > cfg.ConfirmTimeoutMs {
		return errors.New("poll_delay_ms must not exceed confirm_timeout_ms")
	}
	if cfg.RebroadcastMs <= 0 {
		return errors.New("invalid rebroadcast_ms")
	}
	if cfg.ChunkSize <= 0 {
		return errors.New("invalid chunk_size")
	}
	if cfg.EventBuffer < 0 {
		return errors.New("invalid event_buffer")
	}
	return nil
}

var urlCache sync.Map

func validateURLWithCache(rawURL string, protocol string) error {
	key := protocol + "|" + rawURL
	if _, ok := urlCache.Load(key); ok {
		return nil
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return errors.New("invalid URL format")
	}
	if !strings.HasPrefix(parsed.Scheme, protocol) {
		return errors.New("invalid URL protocol")
	}
	urlCache.Store(key, parsed)
	return nil
}

// Policy возвращает политику последовательности для пакетов.
func (c *Config) Policy() transaction.Policy {
	p, _ := transaction.ParsePolicy(c.Sequencing)
	return p
}

// Transaction переводит миллисекунды в параметры пути отправки.
func (c *Config) Transaction() transaction.Config {
	return transaction.Config{
		Commitment:          rpc.CommitmentType(c.Commitment),
		ConfirmTimeout:      time.Duration(c.ConfirmTimeoutMs) * time.Millisecond,
		PollDelay:           time.Duration(c.PollDelayMs) * time.Millisecond,
		RebroadcastInterval: time.Duration(c.RebroadcastMs) * time.Millisecond,
		PollStatus:          c.PollStatus,
		SkipPreflight:       c.SkipPreflight,
		ComputeUnits:        c.ComputeUnits,
		PriorityFee:         c.PriorityFee,
	}
}
