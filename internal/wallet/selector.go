package wallet

import (
	"context"
	"fmt"

	"github.com/wx-shi/memo-wallet/internal/model"
	"github.com/wx-shi/memo-wallet/pkg"
	"go.uber.org/zap"
)

// SelectUTXO picks the output to spend for address. Zero-value outputs are
// dropped first. When the provider reports the set as owned by address the
// largest output wins (first one on ties). Otherwise the first remaining
// output is used, which may not be the first one the provider listed, or
// ErrOwnerMismatch is returned in strict mode.
func (m *Manager) SelectUTXO(ctx context.Context, address string) (*model.UTXO, error) {
	set, err := m.chain.Unspents(ctx, address)
	if err != nil {
		return nil, err
	}

	utxos := make([]model.UTXO, 0, len(set.UTXOs))
	for _, u := range set.UTXOs {
		if u.Satoshis > 0 {
			utxos = append(utxos, u)
		}
	}
	if len(utxos) == 0 {
		return nil, fmt.Errorf("%w (%s)", model.ErrNoFunds, address)
	}

	prefix := m.params.Network.CashAddrPrefix
	if pkg.NormalizeCashAddr(set.OwnerAddress, prefix) != pkg.NormalizeCashAddr(address, prefix) {
		if m.params.StrictOwner {
			return nil, fmt.Errorf("%w: queried %s, provider reported %q", model.ErrOwnerMismatch, address, set.OwnerAddress)
		}
		m.logger.Warn("utxo owner mismatch, using first output",
			zap.String("address", address),
			zap.String("owner", set.OwnerAddress))
		best := utxos[0]
		return &best, nil
	}

	best := utxos[0]
	for _, u := range utxos[1:] {
		if u.Satoshis > best.Satoshis {
			best = u
		}
	}
	m.logger.Debug("utxo selected",
		zap.String("txid", best.TxID),
		zap.Uint32("vout", best.Vout),
		zap.Int64("satoshis", best.Satoshis))
	return &best, nil
}
