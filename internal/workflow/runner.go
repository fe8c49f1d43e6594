// Package workflow sequences the wallet stages, gating each one on the
// state store so that a run can be repeated safely.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wx-shi/memo-wallet/internal/chain"
	"github.com/wx-shi/memo-wallet/internal/db"
	"github.com/wx-shi/memo-wallet/internal/model"
	"github.com/wx-shi/memo-wallet/internal/wallet"
	"github.com/wx-shi/memo-wallet/pkg"
	"go.uber.org/zap"
)

// Reconciler compares a posted memo with an independent index.
type Reconciler interface {
	Reconcile(ctx context.Context, identityAddress, txid string) (*model.Reconciliation, error)
}

// Options are the operator facing settings of a run.
type Options struct {
	Message     string
	FaucetURL   string
	ExplorerURL string
}

// Report is the outcome of one run.
type Report struct {
	Identity       *model.WalletIdentity
	Memo           *model.MemoRecord
	Posted         bool // memo broadcast during this run
	Reconciliation *model.Reconciliation
	// Warnings are degraded but non-fatal conditions, ErrIndexerEmpty or
	// ErrIndexerMismatch.
	Warnings []error
}

type Runner struct {
	store   db.Store
	wallet  *wallet.Manager
	chain   chain.Chain
	indexer Reconciler
	opts    Options
	logger  *zap.Logger
}

func NewRunner(store db.Store, w *wallet.Manager, ch chain.Chain, idx Reconciler, opts Options, logger *zap.Logger) *Runner {
	return &Runner{
		store:   store,
		wallet:  w,
		chain:   ch,
		indexer: idx,
		opts:    opts,
		logger:  logger.Named("workflow"),
	}
}

// DefaultMessage is the memo text used when none is configured.
func DefaultMessage(now time.Time) string {
	return "TEST MESSAGE: " + now.Format(time.RFC1123)
}

// Run executes identity, funding check, memo post and reconciliation. The
// returned error is fatal; indexer problems are reported in Report.Warnings.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	identity, err := r.wallet.EnsureIdentity(ctx)
	if err != nil {
		return nil, fmt.Errorf("identity: %w", err)
	}
	report := &Report{Identity: identity}

	memo, err := r.ensureMemo(ctx, identity)
	if err != nil {
		return report, err
	}
	report.Memo = memo.record
	report.Posted = memo.posted

	rec, err := r.indexer.Reconcile(ctx, identity.CashAddress, memo.record.TxID)
	switch {
	case errors.Is(err, model.ErrIndexerEmpty):
		r.logger.Warn("indexer has no result yet", zap.String("txid", memo.record.TxID), zap.Error(err))
		report.Warnings = append(report.Warnings, err)
	case err != nil:
		return report, fmt.Errorf("reconcile: %w", err)
	default:
		report.Reconciliation = rec
		if !rec.Match {
			warn := fmt.Errorf("%w: wallet %s, indexer %s", model.ErrIndexerMismatch, rec.WalletAddress, rec.IndexerAddress)
			r.logger.Warn("address mismatch",
				zap.String("wallet", rec.WalletAddress),
				zap.String("indexer", rec.IndexerAddress),
				zap.String("walletExplorer", r.opts.ExplorerURL+rec.WalletAddress),
				zap.String("indexerExplorer", r.opts.ExplorerURL+rec.IndexerAddress))
			report.Warnings = append(report.Warnings, warn)
		} else {
			r.logger.Info("wallet and indexer agree on the sender", zap.String("address", rec.WalletAddress))
		}
	}
	return report, nil
}

type memoResult struct {
	record *model.MemoRecord
	posted bool
}

// ensureMemo returns the stored memo or posts and stores a new one.
func (r *Runner) ensureMemo(ctx context.Context, identity *model.WalletIdentity) (*memoResult, error) {
	ok, err := r.store.Exists(model.KindMemo)
	if err != nil {
		return nil, fmt.Errorf("memo: %w", err)
	}
	if ok {
		record := &model.MemoRecord{}
		if err := db.LoadJSON(r.store, model.KindMemo, record); err != nil {
			return nil, fmt.Errorf("memo: %w", err)
		}
		r.logger.Info("memo already posted", zap.String("txid", record.TxID))
		return &memoResult{record: record}, nil
	}

	if err := r.checkFunds(ctx, identity.CashAddress); err != nil {
		return nil, err
	}

	message := r.opts.Message
	if message == "" {
		message = DefaultMessage(time.Now())
	}
	record, err := r.wallet.PostMemo(ctx, identity, message)
	if err != nil {
		return nil, fmt.Errorf("post memo: %w", err)
	}
	// 广播已成功, 记录失败时需要人工处理
	if err := db.SaveJSON(r.store, model.KindMemo, record); err != nil {
		r.logger.Error("memo broadcast but not recorded", zap.String("txid", record.TxID), zap.Error(err))
		return nil, fmt.Errorf("record memo %s: %w", record.TxID, err)
	}
	return &memoResult{record: record, posted: true}, nil
}

// checkFunds gates on confirmed plus unconfirmed satoshis: a faucet payment
// is spendable before it confirms, and selection sees unconfirmed outputs too.
func (r *Runner) checkFunds(ctx context.Context, address string) error {
	balance, err := r.chain.Balance(ctx, address)
	if err != nil {
		return fmt.Errorf("balance: %w", err)
	}
	r.logger.Info("balance",
		zap.String("address", address),
		zap.Int64("confirmed", balance.ConfirmedSatoshis),
		zap.Int64("unconfirmed", balance.UnconfirmedSatoshis),
		zap.String("bch", pkg.SatoshiToCoin(balance.Total())))
	if balance.Total() < 1 {
		r.logger.Warn("wallet is empty, fund it from the faucet",
			zap.String("address", address),
			zap.String("faucet", r.opts.FaucetURL))
		return fmt.Errorf("%w: send coins to %s (faucet: %s)", model.ErrInsufficientFunds, address, r.opts.FaucetURL)
	}
	return nil
}
