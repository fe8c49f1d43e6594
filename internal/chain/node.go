package chain

import (
	"context"
	"fmt"
	"math"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/rpcclient"
	"github.com/wx-shi/memo-wallet/internal/config"
	"github.com/wx-shi/memo-wallet/internal/model"
	"github.com/wx-shi/memo-wallet/internal/network"
	"github.com/wx-shi/memo-wallet/internal/txbuilder"
	"github.com/wx-shi/memo-wallet/pkg"
	"go.uber.org/zap"
)

// NodeClient talks JSON-RPC to a Bitcoin Cash full node. The wallet address
// must be imported into the node (watch-only) for listunspent to see it.
type NodeClient struct {
	rpc    *rpcclient.Client
	conf   *config.ChainConfig
	net    *network.Network
	logger *zap.Logger
}

func NewNodeClient(conf *config.ChainConfig, net *network.Network, logger *zap.Logger) (*NodeClient, error) {
	rpc, err := rpcclient.New(&rpcclient.ConnConfig{
		Host:         conf.RPC.URL,
		User:         conf.RPC.User,
		Pass:         conf.RPC.Password,
		HTTPPostMode: true, // Bitcoin core only supports HTTP POST mode
		DisableTLS:   true, // Bitcoin core does not provide TLS by default
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: rpc client: %v", model.ErrChainConnectivity, err)
	}
	return &NodeClient{
		rpc:    rpc,
		conf:   conf,
		net:    net,
		logger: logger.Named("chain.node"),
	}, nil
}

// Shutdown stops the rpc client.
func (c *NodeClient) Shutdown() {
	c.rpc.Shutdown()
}

// call runs a blocking rpc under the configured timeout.
func (c *NodeClient) call(ctx context.Context, op string, fn func() error) error {
	ctx, cancel := context.WithTimeout(ctx, c.conf.Timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- fn() }()
	select {
	case err := <-done:
		if err != nil {
			return wrapErr(ctx, op, err)
		}
		return nil
	case <-ctx.Done():
		return wrapErr(ctx, op, ctx.Err())
	}
}

func (c *NodeClient) listUnspent(ctx context.Context, address string) ([]btcjson.ListUnspentResult, error) {
	addr := cashAddress{addr: pkg.NormalizeCashAddr(address, c.net.CashAddrPrefix), params: c.net.Params}
	var res []btcjson.ListUnspentResult
	err := withRetry(ctx, c.conf.RetryAttempts, c.logger, "listunspent", func() error {
		return c.call(ctx, "listunspent", func() error {
			var err error
			res, err = c.rpc.ListUnspentMinMaxAddresses(0, math.MaxInt32, []btcutil.Address{addr})
			return err
		})
	})
	if err != nil {
		c.logger.Error("ListUnspent", zap.String("address", address), zap.Error(err))
		return nil, err
	}
	return res, nil
}

func (c *NodeClient) Balance(ctx context.Context, address string) (*model.Balance, error) {
	res, err := c.listUnspent(ctx, address)
	if err != nil {
		return nil, err
	}
	balance := &model.Balance{}
	for _, u := range res {
		sat, err := pkg.FloatToSatoshi(u.Amount)
		if err != nil {
			return nil, fmt.Errorf("%w: utxo %s:%d: %v", model.ErrChainConnectivity, u.TxID, u.Vout, err)
		}
		if u.Confirmations > 0 {
			balance.ConfirmedSatoshis += sat
		} else {
			balance.UnconfirmedSatoshis += sat
		}
	}
	return balance, nil
}

func (c *NodeClient) Unspents(ctx context.Context, address string) (*model.UnspentSet, error) {
	res, err := c.listUnspent(ctx, address)
	if err != nil {
		return nil, err
	}
	set := &model.UnspentSet{
		OwnerAddress: pkg.NormalizeCashAddr(address, c.net.CashAddrPrefix),
		UTXOs:        make([]model.UTXO, 0, len(res)),
	}
	if len(res) > 0 && res[0].Address != "" {
		set.OwnerAddress = pkg.NormalizeCashAddr(res[0].Address, c.net.CashAddrPrefix)
	}
	for _, u := range res {
		sat, err := pkg.FloatToSatoshi(u.Amount)
		if err != nil {
			return nil, fmt.Errorf("%w: utxo %s:%d: %v", model.ErrChainConnectivity, u.TxID, u.Vout, err)
		}
		set.UTXOs = append(set.UTXOs, model.UTXO{TxID: u.TxID, Vout: u.Vout, Satoshis: sat})
	}
	return set, nil
}

func (c *NodeClient) Broadcast(ctx context.Context, rawHex string) (string, error) {
	tx, err := txbuilder.Deserialize(rawHex)
	if err != nil {
		return "", fmt.Errorf("%w: %v", model.ErrChainConnectivity, err)
	}
	var txid string
	err = c.call(ctx, "sendrawtransaction", func() error {
		hash, err := c.rpc.SendRawTransaction(tx, false)
		if err != nil {
			return err
		}
		txid = hash.String()
		return nil
	})
	if err != nil {
		c.logger.Error("Broadcast", zap.Error(err))
		return "", err
	}
	return txid, nil
}

// cashAddress passes a cashaddr string through rpcclient, which only needs
// EncodeAddress to build the request.
type cashAddress struct {
	addr   string
	params *chaincfg.Params
}

func (a cashAddress) String() string        { return a.addr }
func (a cashAddress) EncodeAddress() string { return a.addr }

func (a cashAddress) ScriptAddress() []byte {
	_, _, hash, err := pkg.DecodeCashAddr(a.addr, "")
	if err != nil {
		return nil
	}
	return hash
}

func (a cashAddress) IsForNet(params *chaincfg.Params) bool {
	return a.params.Net == params.Net
}
