package workflow

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/stretchr/testify/require"
	"github.com/wx-shi/memo-wallet/internal/db"
	"github.com/wx-shi/memo-wallet/internal/model"
	"github.com/wx-shi/memo-wallet/internal/network"
	"github.com/wx-shi/memo-wallet/internal/txbuilder"
	"github.com/wx-shi/memo-wallet/internal/wallet"
	"go.uber.org/zap"
)

type fakeChain struct {
	utxos       []model.UTXO
	unconfirmed bool
	broadcasts  []string
}

func (f *fakeChain) Balance(ctx context.Context, address string) (*model.Balance, error) {
	var b model.Balance
	for _, u := range f.utxos {
		if f.unconfirmed {
			b.UnconfirmedSatoshis += u.Satoshis
		} else {
			b.ConfirmedSatoshis += u.Satoshis
		}
	}
	return &b, nil
}

func (f *fakeChain) Unspents(ctx context.Context, address string) (*model.UnspentSet, error) {
	return &model.UnspentSet{OwnerAddress: address, UTXOs: f.utxos}, nil
}

func (f *fakeChain) Broadcast(ctx context.Context, rawHex string) (string, error) {
	f.broadcasts = append(f.broadcasts, rawHex)
	tx, err := txbuilder.Deserialize(rawHex)
	if err != nil {
		return "", err
	}
	return txbuilder.TxID(tx), nil
}

// fakeIndexer echoes the wallet address unless told otherwise.
type fakeIndexer struct {
	address string
	err     error
	calls   int
}

func (f *fakeIndexer) Reconcile(ctx context.Context, identityAddress, txid string) (*model.Reconciliation, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	addr := identityAddress
	if f.address != "" {
		addr = f.address
	}
	return &model.Reconciliation{
		TxID:           txid,
		WalletAddress:  identityAddress,
		IndexerAddress: addr,
		Confirmed:      true,
		Match:          addr == identityAddress,
	}, nil
}

func newRunner(t *testing.T, store db.Store, ch *fakeChain, idx Reconciler) *Runner {
	t.Helper()
	w, err := wallet.NewManager(wallet.Params{
		Network:          network.TestNet,
		MnemonicLanguage: "english",
		FeeSatoshis:      750,
		DataMarker:       []byte{0x6d, 0x02},
		MaxPayloadBytes:  217,
		RelayFeePerKb:    btcutil.Amount(1000),
	}, store, ch, zap.NewNop())
	require.NoError(t, err)
	return NewRunner(store, w, ch, idx, Options{
		Message:     "hello memo",
		FaucetURL:   "https://faucet.example/",
		ExplorerURL: "https://explorer.example/address/",
	}, zap.NewNop())
}

func newStore(t *testing.T) db.Store {
	t.Helper()
	store, err := db.NewFileStore(t.TempDir(), zap.NewNop())
	require.NoError(t, err)
	return store
}

func TestRunEndToEnd(t *testing.T) {
	store := newStore(t)
	ch := &fakeChain{utxos: []model.UTXO{{TxID: strings.Repeat("a", 64), Vout: 0, Satoshis: 10000}}}
	idx := &fakeIndexer{}

	report, err := newRunner(t, store, ch, idx).Run(context.Background())
	require.NoError(t, err)
	require.True(t, report.Posted)
	require.Empty(t, report.Warnings)
	require.NotEmpty(t, report.Memo.TxID)
	require.Equal(t, "hello memo", report.Memo.Message)
	require.True(t, report.Reconciliation.Match)
	require.Len(t, ch.broadcasts, 1)

	tx, err := txbuilder.Deserialize(ch.broadcasts[0])
	require.NoError(t, err)
	require.Equal(t, int64(9250), tx.TxOut[1].Value)

	var memo model.MemoRecord
	require.NoError(t, db.LoadJSON(store, model.KindMemo, &memo))
	require.Equal(t, *report.Memo, memo)

	// second run against the same store: same identity, no new broadcast
	second, err := newRunner(t, store, ch, idx).Run(context.Background())
	require.NoError(t, err)
	require.False(t, second.Posted)
	require.Equal(t, report.Identity, second.Identity)
	require.Equal(t, report.Memo, second.Memo)
	require.Len(t, ch.broadcasts, 1)
	require.Equal(t, 2, idx.calls)
}

func TestRunEmptyWallet(t *testing.T) {
	store := newStore(t)
	ch := &fakeChain{}
	idx := &fakeIndexer{}

	report, err := newRunner(t, store, ch, idx).Run(context.Background())
	require.ErrorIs(t, err, model.ErrInsufficientFunds)
	require.Contains(t, err.Error(), "https://faucet.example/")
	require.NotNil(t, report.Identity)
	require.Empty(t, ch.broadcasts)
	require.Zero(t, idx.calls)

	// the identity was kept for funding
	ok, err := store.Exists(model.KindIdentity)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = store.Exists(model.KindMemo)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRunUnconfirmedFunds(t *testing.T) {
	ch := &fakeChain{utxos: []model.UTXO{{TxID: strings.Repeat("a", 64), Satoshis: 10000}}, unconfirmed: true}

	report, err := newRunner(t, newStore(t), ch, &fakeIndexer{}).Run(context.Background())
	require.NoError(t, err)
	require.True(t, report.Posted)
	require.Len(t, ch.broadcasts, 1)
}

func TestRunIndexerMismatch(t *testing.T) {
	ch := &fakeChain{utxos: []model.UTXO{{TxID: strings.Repeat("a", 64), Satoshis: 10000}}}
	idx := &fakeIndexer{address: "bchtest:qqother"}

	report, err := newRunner(t, newStore(t), ch, idx).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Warnings, 1)
	require.ErrorIs(t, report.Warnings[0], model.ErrIndexerMismatch)
	require.False(t, report.Reconciliation.Match)
	require.Equal(t, "bchtest:qqother", report.Reconciliation.IndexerAddress)
}

func TestRunIndexerEmpty(t *testing.T) {
	ch := &fakeChain{utxos: []model.UTXO{{TxID: strings.Repeat("a", 64), Satoshis: 10000}}}
	idx := &fakeIndexer{err: model.ErrIndexerEmpty}

	report, err := newRunner(t, newStore(t), ch, idx).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Warnings, 1)
	require.ErrorIs(t, report.Warnings[0], model.ErrIndexerEmpty)
	require.Nil(t, report.Reconciliation)
	require.True(t, report.Posted)
}

func TestRunIndexerFailure(t *testing.T) {
	ch := &fakeChain{utxos: []model.UTXO{{TxID: strings.Repeat("a", 64), Satoshis: 10000}}}
	idx := &fakeIndexer{err: model.ErrTimeout}

	store := newStore(t)
	report, err := newRunner(t, store, ch, idx).Run(context.Background())
	require.ErrorIs(t, err, model.ErrTimeout)
	require.True(t, report.Posted)

	// the memo is recorded even though reconciliation failed
	ok, err := store.Exists(model.KindMemo)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestDefaultMessage(t *testing.T) {
	now := time.Date(2019, 3, 1, 12, 0, 0, 0, time.UTC)
	require.Equal(t, "TEST MESSAGE: Fri, 01 Mar 2019 12:00:00 UTC", DefaultMessage(now))
}
