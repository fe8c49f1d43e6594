package hdwallet

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/wx-shi/memo-wallet/internal/model"
	"github.com/wx-shi/memo-wallet/internal/network"
	"github.com/wx-shi/memo-wallet/pkg"
)

// AddressFormat selects the encoding returned by Node.Address.
type AddressFormat int

const (
	CashAddr AddressFormat = iota
	Legacy
)

// Node is an extended key bound to its network.
type Node struct {
	key *hdkeychain.ExtendedKey
	net *network.Network
}

// NewMasterNode creates the master node from a BIP39 seed.
func NewMasterNode(seed []byte, net *network.Network) (*Node, error) {
	master, err := hdkeychain.NewMaster(seed, net.Params)
	if err != nil {
		return nil, fmt.Errorf("%w: create master key: %v", model.ErrCryptoProvider, err)
	}
	return &Node{key: master, net: net}, nil
}

// AccountPath returns m/44'/coin'/account'.
func AccountPath(net *network.Network, account uint32) string {
	return fmt.Sprintf("m/44'/%d'/%d'", net.CoinType, account)
}

// AddressPath returns m/44'/coin'/account'/chain/index.
func AddressPath(net *network.Network, account, chain, index uint32) string {
	return fmt.Sprintf("%s/%d/%d", AccountPath(net, account), chain, index)
}

// ParsePath parses "m/44'/145'/0'/0/1" into child indices.
func ParsePath(path string) ([]uint32, error) {
	parts := strings.Split(strings.TrimSpace(path), "/")
	if len(parts) == 0 || parts[0] != "m" {
		return nil, fmt.Errorf("%w: path %q must start with m", model.ErrCryptoProvider, path)
	}
	indices := make([]uint32, 0, len(parts)-1)
	for _, p := range parts[1:] {
		hardened := strings.HasSuffix(p, "'") || strings.HasSuffix(p, "h")
		p = strings.TrimRight(p, "'h")
		n, err := strconv.ParseUint(p, 10, 32)
		if err != nil || n >= uint64(hdkeychain.HardenedKeyStart) {
			return nil, fmt.Errorf("%w: invalid path element %q in %q", model.ErrCryptoProvider, p, path)
		}
		idx := uint32(n)
		if hardened {
			idx += hdkeychain.HardenedKeyStart
		}
		indices = append(indices, idx)
	}
	return indices, nil
}

// DerivePath derives the descendant at path, relative to this node.
func (n *Node) DerivePath(path string) (*Node, error) {
	indices, err := ParsePath(path)
	if err != nil {
		return nil, err
	}
	key := n.key
	for _, idx := range indices {
		key, err = key.Derive(idx)
		if err != nil {
			return nil, fmt.Errorf("%w: derive %s: %v", model.ErrCryptoProvider, path, err)
		}
	}
	return &Node{key: key, net: n.net}, nil
}

// Address encodes the node's compressed public key hash.
func (n *Node) Address(format AddressFormat) (string, error) {
	legacy, err := n.key.Address(n.net.Params)
	if err != nil {
		return "", fmt.Errorf("%w: address: %v", model.ErrCryptoProvider, err)
	}
	switch format {
	case Legacy:
		return legacy.EncodeAddress(), nil
	case CashAddr:
		addr, err := pkg.LegacyToCashAddr(legacy, n.net.CashAddrPrefix)
		if err != nil {
			return "", fmt.Errorf("%w: %v", model.ErrCryptoProvider, err)
		}
		return addr, nil
	}
	return "", fmt.Errorf("%w: unknown address format %d", model.ErrCryptoProvider, format)
}

// PrivateKey returns the node's secp256k1 private key.
func (n *Node) PrivateKey() (*btcec.PrivateKey, error) {
	priv, err := n.key.ECPrivKey()
	if err != nil {
		return nil, fmt.Errorf("%w: private key: %v", model.ErrCryptoProvider, err)
	}
	return priv, nil
}

// WIF exports the private key for a compressed public key.
func (n *Node) WIF() (string, error) {
	priv, err := n.PrivateKey()
	if err != nil {
		return "", err
	}
	wif, err := btcutil.NewWIF(priv, n.net.Params, true)
	if err != nil {
		return "", fmt.Errorf("%w: wif: %v", model.ErrCryptoProvider, err)
	}
	return wif.String(), nil
}

// DecodeWIF parses a WIF for the network and checks that it controls addr.
func DecodeWIF(wifStr, cashAddr string, net *network.Network) (*btcec.PrivateKey, error) {
	wif, err := btcutil.DecodeWIF(wifStr)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid WIF: %v", model.ErrCryptoProvider, err)
	}
	if !wif.IsForNet(net.Params) {
		return nil, fmt.Errorf("%w: WIF is not for %s", model.ErrCryptoProvider, net.Name)
	}
	_, _, hash, err := pkg.DecodeCashAddr(cashAddr, net.CashAddrPrefix)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrCryptoProvider, err)
	}
	pkHash := btcutil.Hash160(wif.SerializePubKey())
	if string(pkHash) != string(hash) {
		return nil, fmt.Errorf("%w: WIF does not control %s", model.ErrCryptoProvider, cashAddr)
	}
	return wif.PrivKey, nil
}
