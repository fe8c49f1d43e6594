// Package indexer cross-checks a posted memo against BitDB.
package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/avast/retry-go"
	"github.com/guonaihong/gout"
	"github.com/scylladb/go-set/strset"
	"github.com/wx-shi/memo-wallet/internal/config"
	"github.com/wx-shi/memo-wallet/internal/db"
	"github.com/wx-shi/memo-wallet/internal/model"
	"github.com/wx-shi/memo-wallet/internal/network"
	"github.com/wx-shi/memo-wallet/pkg"
	"go.uber.org/zap"
)

type Indexer struct {
	conf   *config.IndexerConfig
	net    *network.Network
	store  db.Store
	logger *zap.Logger
}

func NewIndexer(conf *config.IndexerConfig, net *network.Network, store db.Store, logger *zap.Logger) *Indexer {
	return &Indexer{
		conf:   conf,
		net:    net,
		store:  store,
		logger: logger.Named("indexer"),
	}
}

// Reconcile queries the indexer for txid, overwrites the snapshot with the
// raw response and compares the reported sender with identityAddress.
// A confirmed match is preferred over an unconfirmed one. An empty result
// returns ErrIndexerEmpty. A differing sender is not an error: the returned
// Reconciliation has Match set to false.
func (i *Indexer) Reconcile(ctx context.Context, identityAddress, txid string) (*model.Reconciliation, error) {
	queryURL, err := QueryURL(i.conf.URL, txid)
	if err != nil {
		return nil, err
	}

	body, err := i.fetch(ctx, queryURL)
	if err != nil {
		i.logger.Error("fetch", zap.String("txid", txid), zap.Error(err))
		return nil, err
	}
	if err := i.store.Save(model.KindSnapshot, body); err != nil {
		return nil, err
	}

	var resp model.IndexerResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode indexer response: %w", err)
	}

	rec := &model.Reconciliation{TxID: txid, WalletAddress: identityAddress}
	var match model.IndexerMatch
	switch {
	case len(resp.Confirmed) > 0:
		match = resp.Confirmed[0]
		rec.Confirmed = true
	case len(resp.Unconfirmed) > 0:
		match = resp.Unconfirmed[0]
	default:
		return nil, fmt.Errorf("%w (txid %s)", model.ErrIndexerEmpty, txid)
	}

	prefix := i.net.CashAddrPrefix
	rec.IndexerAddress = pkg.NormalizeCashAddr(match.Addr, prefix)
	rec.IndexerMessage = match.Msg
	rec.Match = rec.IndexerAddress == pkg.NormalizeCashAddr(identityAddress, prefix)
	if match.TxID != "" && match.TxID != txid {
		i.logger.Warn("indexer returned another txid", zap.String("want", txid), zap.String("got", match.TxID))
	}

	senders := strset.New()
	for _, rows := range [][]model.IndexerMatch{resp.Confirmed, resp.Unconfirmed} {
		for _, row := range rows {
			if row.Addr != "" {
				senders.Add(pkg.NormalizeCashAddr(row.Addr, prefix))
			}
		}
	}
	rec.DistinctAddresses = senders.List()
	sort.Strings(rec.DistinctAddresses)
	if senders.Size() > 1 {
		i.logger.Warn("indexer reports several senders", zap.Strings("addresses", rec.DistinctAddresses))
	}

	i.logger.Info("reconciled",
		zap.String("txid", txid),
		zap.Bool("confirmed", rec.Confirmed),
		zap.Bool("match", rec.Match),
		zap.String("indexerAddress", rec.IndexerAddress))
	return rec, nil
}

// fetch GETs the query url, retrying transport errors and 5xx replies.
func (i *Indexer) fetch(ctx context.Context, queryURL string) ([]byte, error) {
	attempts := i.conf.RetryAttempts
	if attempts == 0 {
		attempts = 1
	}

	var body []byte
	err := retry.Do(func() error {
		var err error
		body, err = i.get(ctx, queryURL)
		return err
	},
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			var he *httpError
			if errors.As(err, &he) {
				return he.code >= http.StatusInternalServerError || he.code == http.StatusTooManyRequests
			}
			return !errors.Is(err, context.Canceled)
		}),
		retry.OnRetry(func(n uint, err error) {
			i.logger.Warn("retry", zap.Uint("attempt", n+1), zap.Error(err))
		}),
	)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: indexer: %v", model.ErrTimeout, err)
		}
		return nil, fmt.Errorf("indexer: %w", err)
	}
	return body, nil
}

type httpError struct {
	code int
	body string
}

func (e *httpError) Error() string {
	return fmt.Sprintf("http %d: %s", e.code, e.body)
}

func (i *Indexer) get(ctx context.Context, queryURL string) ([]byte, error) {
	timeout := i.conf.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var (
		body string
		code int
	)
	if err := gout.GET(queryURL).WithContext(ctx).BindBody(&body).Code(&code).Do(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", ctx.Err(), err)
		}
		return nil, err
	}
	if code < http.StatusOK || code >= http.StatusMultipleChoices {
		return nil, &httpError{code: code, body: body}
	}
	return []byte(body), nil
}
