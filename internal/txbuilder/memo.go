// Package txbuilder assembles and signs the single-input memo transaction:
// one OP_RETURN data output followed by one change output.
package txbuilder

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcwallet/wallet/txrules"
	"github.com/btcsuite/btcwallet/wallet/txsizes"
	"github.com/wx-shi/memo-wallet/internal/model"
)

const (
	// SigHashForkID marks a Bitcoin Cash signature (BIP143 style digest
	// committing to the spent amount, fork id 0).
	SigHashForkID txscript.SigHashType = 0x40

	// SigHashAllForkID is the "sign all outputs" mode used for the memo input.
	SigHashAllForkID = txscript.SigHashAll | SigHashForkID
)

// MemoTx is a memo transaction in the making.
type MemoTx struct {
	Tx           *wire.MsgTx
	Input        model.UTXO
	InputScript  []byte // pkScript of the spent output
	Payload      []byte
	ChangeAmount int64
	Fee          int64
	Signed       bool
}

// EncodeDataScript builds OP_RETURN <marker> <payload>.
func EncodeDataScript(marker, payload []byte) ([]byte, error) {
	script, err := txscript.NewScriptBuilder().
		AddOp(txscript.OP_RETURN).
		AddData(marker).
		AddData(payload).
		Script()
	if err != nil {
		return nil, fmt.Errorf("%w: data script: %v", model.ErrCryptoProvider, err)
	}
	return script, nil
}

// Build creates the unsigned transaction spending utxo with the data output
// at index 0 and change = utxo.Satoshis - fee at index 1, paid to changeScript.
// The spent output is assumed to pay to changeScript as well.
func Build(utxo model.UTXO, dataScript, changeScript []byte, fee int64, relayFeePerKb btcutil.Amount) (*MemoTx, error) {
	if fee < 0 {
		return nil, fmt.Errorf("negative fee %d", fee)
	}
	if utxo.Satoshis <= fee {
		return nil, fmt.Errorf("%w: utxo %s:%d holds %d satoshis, fee is %d",
			model.ErrInsufficientFunds, utxo.TxID, utxo.Vout, utxo.Satoshis, fee)
	}
	change := utxo.Satoshis - fee

	prevHash, err := chainhash.NewHashFromStr(utxo.TxID)
	if err != nil {
		return nil, fmt.Errorf("invalid txid %q: %w", utxo.TxID, err)
	}

	changeOut := wire.NewTxOut(change, changeScript)
	if txrules.IsDustOutput(changeOut, relayFeePerKb) {
		return nil, fmt.Errorf("%w: change of %d satoshis is dust", model.ErrInsufficientFunds, change)
	}

	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(prevHash, utxo.Vout), nil, nil))
	tx.AddTxOut(wire.NewTxOut(0, dataScript))
	tx.AddTxOut(changeOut)

	return &MemoTx{
		Tx:           tx,
		Input:        utxo,
		InputScript:  changeScript,
		ChangeAmount: change,
		Fee:          fee,
	}, nil
}

// MinRelayFee estimates the relay fee a signed single P2PKH input version of
// tx needs under the given policy.
func MinRelayFee(tx *wire.MsgTx, relayFeePerKb btcutil.Amount) btcutil.Amount {
	size := txsizes.EstimateSerializeSize(len(tx.TxIn), tx.TxOut, false)
	return txrules.FeeForSerializeSize(relayFeePerKb, size)
}

// SignatureHash computes the fork id digest of input idx.
func SignatureHash(tx *wire.MsgTx, idx int, pkScript []byte, hashType txscript.SigHashType, amount int64) ([]byte, error) {
	if hashType&SigHashForkID == 0 {
		return nil, fmt.Errorf("%w: hash type %#x lacks fork id", model.ErrCryptoProvider, uint32(hashType))
	}
	fetcher := txscript.NewCannedPrevOutputFetcher(pkScript, amount)
	sigHashes := txscript.NewTxSigHashes(tx, fetcher)
	hash, err := txscript.CalcWitnessSigHash(pkScript, sigHashes, hashType, tx, idx, amount)
	if err != nil {
		return nil, fmt.Errorf("%w: sighash: %v", model.ErrCryptoProvider, err)
	}
	return hash, nil
}

// SignInput signs input idx with key and sets its scriptSig to
// <signature||hashType> <compressed pubkey>.
func SignInput(tx *wire.MsgTx, idx int, key *btcec.PrivateKey, pkScript []byte, hashType txscript.SigHashType, amount int64) error {
	if idx < 0 || idx >= len(tx.TxIn) {
		return fmt.Errorf("%w: input index %d out of range", model.ErrCryptoProvider, idx)
	}
	hash, err := SignatureHash(tx, idx, pkScript, hashType, amount)
	if err != nil {
		return err
	}

	sig := ecdsa.Sign(key, hash)
	sigBytes := append(sig.Serialize(), byte(hashType))

	sigScript, err := txscript.NewScriptBuilder().
		AddData(sigBytes).
		AddData(key.PubKey().SerializeCompressed()).
		Script()
	if err != nil {
		return fmt.Errorf("%w: signature script: %v", model.ErrCryptoProvider, err)
	}
	tx.TxIn[idx].SignatureScript = sigScript
	return nil
}

// Sign signs the memo input with SIGHASH_ALL|FORKID.
func (m *MemoTx) Sign(key *btcec.PrivateKey) error {
	if err := SignInput(m.Tx, 0, key, m.InputScript, SigHashAllForkID, m.Input.Satoshis); err != nil {
		return err
	}
	m.Signed = true
	return nil
}

// Serialize returns the raw transaction hex.
func Serialize(tx *wire.MsgTx) (string, error) {
	var buf bytes.Buffer
	buf.Grow(tx.SerializeSize())
	if err := tx.Serialize(&buf); err != nil {
		return "", fmt.Errorf("%w: serialize: %v", model.ErrCryptoProvider, err)
	}
	return hex.EncodeToString(buf.Bytes()), nil
}

// Deserialize parses a raw transaction hex.
func Deserialize(rawHex string) (*wire.MsgTx, error) {
	raw, err := hex.DecodeString(rawHex)
	if err != nil {
		return nil, fmt.Errorf("decode raw tx: %w", err)
	}
	tx := wire.NewMsgTx(wire.TxVersion)
	if err := tx.Deserialize(bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("deserialize raw tx: %w", err)
	}
	return tx, nil
}

// TxID returns the transaction id in the usual byte-reversed hex.
func TxID(tx *wire.MsgTx) string {
	return tx.TxHash().String()
}
