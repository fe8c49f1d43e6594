// Package network maps the configured network name to the btcd chain
// parameters and the Bitcoin Cash specific address settings.
package network

import (
	"fmt"

	"github.com/btcsuite/btcd/chaincfg"
)

// BIP44 coin type registered for Bitcoin Cash. Testnet keeps 145 as well,
// matching the derivation used by BCH wallets.
const CoinTypeBCH = 145

// Network bundles everything that differs between mainnet and testnet.
type Network struct {
	Name           string
	Params         *chaincfg.Params
	CashAddrPrefix string
	CoinType       uint32
}

var (
	MainNet = &Network{
		Name:           "mainnet",
		Params:         &chaincfg.MainNetParams,
		CashAddrPrefix: "bitcoincash",
		CoinType:       CoinTypeBCH,
	}
	TestNet = &Network{
		Name:           "testnet",
		Params:         &chaincfg.TestNet3Params,
		CashAddrPrefix: "bchtest",
		CoinType:       CoinTypeBCH,
	}
)

// ByName returns the network for "mainnet" or "testnet".
func ByName(name string) (*Network, error) {
	switch name {
	case MainNet.Name:
		return MainNet, nil
	case TestNet.Name:
		return TestNet, nil
	}
	return nil, fmt.Errorf("unsupported network: %s", name)
}
