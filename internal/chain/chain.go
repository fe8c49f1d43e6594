// Package chain talks to the Bitcoin Cash network: balance lookup, unspent
// output listing and raw transaction broadcast.
package chain

import (
	"context"
	"errors"
	"fmt"

	"github.com/avast/retry-go"
	"github.com/wx-shi/memo-wallet/internal/config"
	"github.com/wx-shi/memo-wallet/internal/model"
	"github.com/wx-shi/memo-wallet/internal/network"
	"go.uber.org/zap"
)

// Chain is the connectivity provider used by the wallet.
type Chain interface {
	Balance(ctx context.Context, address string) (*model.Balance, error)
	Unspents(ctx context.Context, address string) (*model.UnspentSet, error)
	// Broadcast submits a raw transaction hex and returns the txid reported
	// by the network.
	Broadcast(ctx context.Context, rawHex string) (string, error)
}

// New builds the backend selected by conf.Backend.
func New(conf *config.ChainConfig, net *network.Network, logger *zap.Logger) (Chain, error) {
	switch conf.Backend {
	case "", "rest":
		return NewRestClient(conf, net, logger), nil
	case "node":
		return NewNodeClient(conf, net, logger)
	}
	return nil, fmt.Errorf("%w: unsupported chain backend %q", model.ErrChainConnectivity, conf.Backend)
}

// wrapErr classifies a transport error.
func wrapErr(ctx context.Context, op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w: %s: %v", model.ErrTimeout, model.ErrChainConnectivity, op, err)
	}
	return fmt.Errorf("%w: %s: %v", model.ErrChainConnectivity, op, err)
}

// permanent marks errors that a retry cannot fix.
type permanent struct{ err error }

func (p permanent) Error() string { return p.err.Error() }
func (p permanent) Unwrap() error { return p.err }

func retryable(err error) bool {
	var p permanent
	return !errors.As(err, &p) && !errors.Is(err, context.Canceled)
}

// withRetry 只用于读接口, 广播不重试
func withRetry(ctx context.Context, attempts uint, logger *zap.Logger, op string, fn func() error) error {
	if attempts == 0 {
		attempts = 1
	}
	err := retry.Do(fn,
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.RetryIf(retryable),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			logger.Warn("retry", zap.String("op", op), zap.Uint("attempt", n+1), zap.Error(err))
		}),
	)
	var p permanent
	if errors.As(err, &p) {
		return p.err
	}
	return err
}
