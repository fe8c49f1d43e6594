package model

import (
	"errors"
	"fmt"
)

// Error classes. Stages wrap one of these with context so callers can
// branch with errors.Is.
var (
	ErrCryptoProvider    = errors.New("crypto provider failure")
	ErrChainConnectivity = errors.New("chain connectivity failure")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrStorage           = errors.New("storage failure")
	ErrIndexerMismatch   = errors.New("indexer reports a different sender address")
	ErrIndexerEmpty      = errors.New("indexer returned no matching transaction")
	ErrTimeout           = errors.New("timeout")
	ErrPayloadTooLarge   = errors.New("memo payload too large")
	ErrEmptyPayload      = errors.New("memo payload is empty")
)

// Specialisations of the classes above.
var (
	ErrNoFunds           = fmt.Errorf("%w: no spendable outputs", ErrInsufficientFunds)
	ErrOwnerMismatch     = errors.New("utxo owner does not match queried address")
	ErrTxIDMismatch      = fmt.Errorf("%w: broadcast txid differs from signed txid", ErrChainConnectivity)
	ErrNotFound          = fmt.Errorf("%w: record not found", ErrStorage)
	ErrInconsistentState = fmt.Errorf("%w: record present without completion marker", ErrStorage)
)
