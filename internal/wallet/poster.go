package wallet

import (
	"context"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/wx-shi/memo-wallet/internal/hdwallet"
	"github.com/wx-shi/memo-wallet/internal/model"
	"github.com/wx-shi/memo-wallet/internal/txbuilder"
	"github.com/wx-shi/memo-wallet/pkg"
	"go.uber.org/zap"
)

// PostMemo selects an output, builds and signs the memo transaction and
// broadcasts it. Nothing is retried: a failure aborts the post and the
// caller may start over, selection runs again every time. The returned
// record is not persisted here.
func (m *Manager) PostMemo(ctx context.Context, identity *model.WalletIdentity, payloadText string) (*model.MemoRecord, error) {
	payload := []byte(payloadText)
	if len(payload) == 0 {
		return nil, model.ErrEmptyPayload
	}
	if m.params.MaxPayloadBytes > 0 && len(payload) > m.params.MaxPayloadBytes {
		return nil, fmt.Errorf("%w: %d bytes, limit %d", model.ErrPayloadTooLarge, len(payload), m.params.MaxPayloadBytes)
	}

	net := m.params.Network
	key, err := hdwallet.DecodeWIF(identity.WIF, identity.CashAddress, net)
	if err != nil {
		return nil, err
	}
	changeScript, err := pkg.CashAddrScript(identity.CashAddress, net.Params, net.CashAddrPrefix)
	if err != nil {
		return nil, fmt.Errorf("%w: change script: %v", model.ErrCryptoProvider, err)
	}

	// SELECT_UTXO
	utxo, err := m.SelectUTXO(ctx, identity.CashAddress)
	if err != nil {
		return nil, err
	}

	// BUILD
	dataScript, err := txbuilder.EncodeDataScript(m.params.DataMarker, payload)
	if err != nil {
		return nil, err
	}
	memoTx, err := txbuilder.Build(*utxo, dataScript, changeScript, m.params.FeeSatoshis, m.params.RelayFeePerKb)
	if err != nil {
		return nil, err
	}
	memoTx.Payload = payload
	if minFee := txbuilder.MinRelayFee(memoTx.Tx, m.params.RelayFeePerKb); btcutil.Amount(m.params.FeeSatoshis) < minFee {
		m.logger.Warn("fee below relay minimum",
			zap.Int64("fee", m.params.FeeSatoshis),
			zap.Int64("minRelayFee", int64(minFee)))
	}

	// SIGN
	if err := memoTx.Sign(key); err != nil {
		return nil, err
	}
	rawHex, err := txbuilder.Serialize(memoTx.Tx)
	if err != nil {
		return nil, err
	}
	localID := txbuilder.TxID(memoTx.Tx)

	// BROADCAST
	remoteID, err := m.chain.Broadcast(ctx, rawHex)
	if err != nil {
		return nil, err
	}
	if remoteID != localID {
		m.logger.Error("broadcast txid mismatch", zap.String("local", localID), zap.String("remote", remoteID))
		return nil, fmt.Errorf("%w: local %s, remote %s", model.ErrTxIDMismatch, localID, remoteID)
	}

	m.logger.Info("memo posted",
		zap.String("txid", localID),
		zap.String("input", fmt.Sprintf("%s:%d", utxo.TxID, utxo.Vout)),
		zap.Int64("change", memoTx.ChangeAmount),
		zap.Int64("fee", memoTx.Fee))

	// RECORD
	return &model.MemoRecord{Message: payloadText, TxID: localID}, nil
}
