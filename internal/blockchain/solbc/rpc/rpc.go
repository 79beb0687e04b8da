// internal/blockchain/solbc/rpc/rpc.go
package rpc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
)

// RPCClient: пул RPC узлов с круговой ротацией и переключением при ошибке.
type RPCClient struct {
	nodes      []*NodeClient
	current    int
	mu         sync.Mutex
	logger     *zap.Logger
	retryDelay time.Duration
	timeout    time.Duration
}

// NewClient создает новый RPC клиент
func NewClient(urls []string, logger *zap.Logger) (*RPCClient, error) {
	if len(urls) == 0 {
		return nil, ErrNoRPCNodes
	}

	nodes := make([]*NodeClient, len(urls))
	for i, url := range urls {
		nodes[i] = NewNodeClient(url)
	}

	return newPool(nodes, logger), nil
}

func newPool(nodes []*NodeClient, logger *zap.Logger) *RPCClient {
	return &RPCClient{
		nodes:      nodes,
		logger:     logger.Named("rpc-client"),
		retryDelay: RetryDelay,
		timeout:    DefaultTimeout,
	}
}

// Nodes возвращает узлы пула
func (c *RPCClient) Nodes() []*NodeClient {
	return c.nodes
}

// nextNode возвращает следующий активный узел. Если активных не осталось,
// все узлы возвращаются в ротацию.
func (c *RPCClient) nextNode() *NodeClient {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := 0; i < len(c.nodes); i++ {
		node := c.nodes[c.current]
		c.current = (c.current + 1) % len(c.nodes)
		if node.IsActive() {
			return node
		}
	}

	c.logger.Warn("All RPC nodes inactive, resetting rotation")
	for _, node := range c.nodes {
		node.SetActive(true)
	}
	node := c.nodes[c.current]
	c.current = (c.current + 1) % len(c.nodes)
	return node
}

// ExecuteWithRetry выполняет RPC-запрос с автоматическим переключением узлов при ошибке.
// Каждая попытка ограничена DefaultTimeout; неповторяемые ошибки возвращаются сразу.
func (c *RPCClient) ExecuteWithRetry(ctx context.Context, method string, operation func(context.Context, *NodeClient) error) error {
	attempts := MaxRetries
	if len(c.nodes) > attempts {
		attempts = len(c.nodes)
	}

	var lastErr error
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		if err := ctx.Err(); err != nil {
			return struct{}{}, backoff.Permanent(err)
		}

		node := c.nextNode()
		err := c.attempt(ctx, node, operation)
		if err == nil {
			return struct{}{}, nil
		}

		lastErr = NewError(err, node.URL, method)
		if IsCriticalError(err) {
			node.SetActive(false)
			c.logger.Warn("Node marked as inactive due to critical error",
				zap.String("url", node.URL),
				zap.String("method", method),
				zap.Error(err))
		} else if !IsRetryableError(err) {
			return struct{}{}, backoff.Permanent(lastErr)
		}

		c.logger.Debug("RPC request failed, trying next node",
			zap.String("url", node.URL),
			zap.String("method", method),
			zap.Error(err))
		return struct{}{}, lastErr
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(c.retryDelay)),
		backoff.WithMaxTries(uint(attempts)),
	)

	var permanent *backoff.PermanentError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &permanent):
		return permanent.Err
	case ctx.Err() != nil:
		return ctx.Err()
	default:
		return fmt.Errorf("all retry attempts failed: %w", lastErr)
	}
}

// attempt выполняет один запрос к узлу с собственным таймаутом.
func (c *RPCClient) attempt(ctx context.Context, node *NodeClient, operation func(context.Context, *NodeClient) error) error {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	err := operation(reqCtx, node)
	node.UpdateMetrics(err == nil, time.Since(start))
	if err == nil {
		return nil
	}

	// истек таймаут попытки, а не контекст вызывающего
	if ctx.Err() == nil && errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w after %s: %v", ErrTimeout, c.timeout, err)
	}
	return classify(err)
}

// Close закрывает клиент
func (c *RPCClient) Close() {
	for _, node := range c.nodes {
		_ = node.Client.Close()
	}
}
