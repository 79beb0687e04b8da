// internal/blockchain/solbc/client.go
package solbc

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/gagliardetto/solana-go"
	solanarpc "github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/ws"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/wallet-adapter/internal/blockchain"
	"github.com/rovshanmuradov/wallet-adapter/internal/blockchain/solbc/rpc"
)

// ErrNoWebSocket возвращается, если для клиента не задан websocket URL.
var ErrNoWebSocket = errors.New("websocket URL is not configured")

// Client – тонкий адаптер для взаимодействия с блокчейном Solana через solana-go.
// HTTP-запросы идут через пул узлов, а подписки на подписи через websocket.
type Client struct {
	pool   *rpc.RPCClient
	wsURL  string
	logger *zap.Logger

	wsMu sync.Mutex
	ws   *ws.Client
}

// NewClient создаёт новый клиент по списку RPC URL и websocket URL.
// Пустой wsURL выводится из первого RPC URL (http→ws, https→wss).
func NewClient(rpcURLs []string, wsURL string, logger *zap.Logger) (*Client, error) {
	pool, err := rpc.NewClient(rpcURLs, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create rpc pool: %w", err)
	}
	if wsURL == "" {
		wsURL = DeriveWebSocketURL(rpcURLs[0])
	}

	return &Client{
		pool:   pool,
		wsURL:  wsURL,
		logger: logger.Named("solbc-client"),
	}, nil
}

// DeriveWebSocketURL подбирает websocket URL для HTTP RPC URL.
func DeriveWebSocketURL(rpcURL string) string {
	switch {
	case strings.HasPrefix(rpcURL, "https://"):
		return "wss://" + strings.TrimPrefix(rpcURL, "https://")
	case strings.HasPrefix(rpcURL, "http://"):
		return "ws://" + strings.TrimPrefix(rpcURL, "http://")
	default:
		return ""
	}
}

// SendRawTransaction отправляет сериализованную транзакцию.
func (c *Client) SendRawTransaction(ctx context.Context, raw []byte, opts blockchain.TransactionOptions) (solana.Signature, error) {
	var sig solana.Signature
	err := c.pool.ExecuteWithRetry(ctx, "sendTransaction", func(ctx context.Context, node *rpc.NodeClient) error {
		var err error
		sig, err = node.Client.SendRawTransactionWithOpts(ctx, raw, solanarpc.TransactionOpts{
			SkipPreflight:       opts.SkipPreflight,
			PreflightCommitment: opts.PreflightCommitment,
		})
		return err
	})
	if err != nil {
		c.logger.Debug("SendRawTransaction error", zap.Error(err))
		return solana.Signature{}, err
	}
	return sig, nil
}

// GetLatestBlockhash получает последний blockhash.
func (c *Client) GetLatestBlockhash(ctx context.Context, commitment solanarpc.CommitmentType) (*blockchain.ReferenceBlock, error) {
	var result *solanarpc.GetLatestBlockhashResult
	err := c.pool.ExecuteWithRetry(ctx, "getLatestBlockhash", func(ctx context.Context, node *rpc.NodeClient) error {
		var err error
		result, err = node.Client.GetLatestBlockhash(ctx, commitment)
		return err
	})
	if err != nil {
		c.logger.Error("GetLatestBlockhash error", zap.Error(err))
		return nil, err
	}
	if result == nil || result.Value == nil {
		return nil, rpc.NewError(rpc.ErrInvalidResponse, "", "getLatestBlockhash")
	}

	return &blockchain.ReferenceBlock{
		Blockhash:            result.Value.Blockhash,
		LastValidBlockHeight: result.Value.LastValidBlockHeight,
	}, nil
}

// GetSignatureStatus получает статус одной подписи. Возвращает nil, если статуса ещё нет.
func (c *Client) GetSignatureStatus(ctx context.Context, signature solana.Signature) (*solanarpc.SignatureStatusesResult, error) {
	var result *solanarpc.GetSignatureStatusesResult
	err := c.pool.ExecuteWithRetry(ctx, "getSignatureStatuses", func(ctx context.Context, node *rpc.NodeClient) error {
		var err error
		result, err = node.Client.GetSignatureStatuses(ctx, false, signature)
		return err
	})
	if err != nil {
		return nil, err
	}
	if result == nil || len(result.Value) == 0 {
		return nil, nil
	}
	return result.Value[0], nil
}

// SimulateTransaction симулирует транзакцию и возвращает результат симуляции.
func (c *Client) SimulateTransaction(ctx context.Context, tx *solana.Transaction, commitment solanarpc.CommitmentType) (*blockchain.SimulationResult, error) {
	var result *solanarpc.SimulateTransactionResponse
	err := c.pool.ExecuteWithRetry(ctx, "simulateTransaction", func(ctx context.Context, node *rpc.NodeClient) error {
		var err error
		result, err = node.Client.SimulateTransactionWithOpts(ctx, tx, &solanarpc.SimulateTransactionOpts{
			Commitment: commitment,
		})
		return err
	})
	if err != nil {
		c.logger.Error("SimulateTransaction error", zap.Error(err))
		return nil, err
	}
	if result == nil || result.Value == nil {
		return nil, rpc.NewError(rpc.ErrInvalidResponse, "", "simulateTransaction")
	}

	units := uint64(0)
	if result.Value.UnitsConsumed != nil {
		units = *result.Value.UnitsConsumed
	}
	return &blockchain.SimulationResult{
		Err:           result.Value.Err,
		Logs:          result.Value.Logs,
		UnitsConsumed: units,
	}, nil
}

// SubscribeSignature подписывается на терминальный статус подписи через websocket.
func (c *Client) SubscribeSignature(ctx context.Context, signature solana.Signature, commitment solanarpc.CommitmentType) (blockchain.Subscription, error) {
	wsClient, err := c.wsClient(ctx)
	if err != nil {
		return nil, err
	}

	sub, err := wsClient.SignatureSubscribe(signature, commitment)
	if err != nil {
		c.dropWS(wsClient)
		return nil, fmt.Errorf("signature subscribe: %w", err)
	}

	return &signatureSubscription{
		sub:    sub,
		client: c,
		ws:     wsClient,
	}, nil
}

// wsClient лениво подключается к websocket и переиспользует соединение.
func (c *Client) wsClient(ctx context.Context) (*ws.Client, error) {
	c.wsMu.Lock()
	defer c.wsMu.Unlock()

	if c.ws != nil {
		return c.ws, nil
	}
	if c.wsURL == "" {
		return nil, ErrNoWebSocket
	}

	wsClient, err := ws.Connect(ctx, c.wsURL)
	if err != nil {
		c.logger.Warn("WebSocket connect failed", zap.String("url", c.wsURL), zap.Error(err))
		return nil, err
	}
	c.ws = wsClient
	c.logger.Debug("WebSocket connected", zap.String("url", c.wsURL))
	return wsClient, nil
}

// dropWS закрывает сломанное соединение, чтобы следующая подписка переподключилась.
func (c *Client) dropWS(broken *ws.Client) {
	c.wsMu.Lock()
	defer c.wsMu.Unlock()

	if c.ws != broken || broken == nil {
		return
	}
	broken.Close()
	c.ws = nil
}

// NodeMetrics отдает счетчики узлов RPC пула для регистрации в prometheus.
func (c *Client) NodeMetrics() *rpc.NodeCollector {
	return c.pool.Collector()
}

// Close закрывает websocket и HTTP клиенты.
func (c *Client) Close() {
	c.wsMu.Lock()
	if c.ws != nil {
		c.ws.Close()
		c.ws = nil
	}
	c.wsMu.Unlock()
	c.pool.Close()
}

type signatureSubscription struct {
	sub    *ws.SignatureSubscription
	client *Client
	ws     *ws.Client
	once   sync.Once
}

func (s *signatureSubscription) Recv(ctx context.Context) (*blockchain.SignatureNotification, error) {
	res, err := s.sub.Recv(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.client.dropWS(s.ws)
		}
		return nil, err
	}
	return &blockchain.SignatureNotification{
		Slot: res.Context.Slot,
		Err:  res.Value.Err,
	}, nil
}

func (s *signatureSubscription) Unsubscribe() error {
	s.once.Do(s.sub.Unsubscribe)
	return nil
}

// Гарантируем, что Client реализует интерфейс blockchain.Endpoint.
var _ blockchain.Endpoint = (*Client)(nil)
