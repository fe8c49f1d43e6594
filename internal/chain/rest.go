package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/guonaihong/gout"
	"github.com/shopspring/decimal"
	"github.com/wx-shi/memo-wallet/internal/config"
	"github.com/wx-shi/memo-wallet/internal/model"
	"github.com/wx-shi/memo-wallet/internal/network"
	"github.com/wx-shi/memo-wallet/pkg"
	"go.uber.org/zap"
)

// RestClient queries a bitcoin.com REST v2 style API.
type RestClient struct {
	baseURL  string
	timeout  time.Duration
	attempts uint
	net      *network.Network
	logger   *zap.Logger
}

type addressDetails struct {
	Balance               decimal.Decimal `json:"balance"`
	BalanceSat            int64           `json:"balanceSat"`
	UnconfirmedBalance    decimal.Decimal `json:"unconfirmedBalance"`
	UnconfirmedBalanceSat int64           `json:"unconfirmedBalanceSat"`
	CashAddress           string          `json:"cashAddress"`
	LegacyAddress         string          `json:"legacyAddress"`
}

type restUTXO struct {
	TxID          string          `json:"txid"`
	Vout          uint32          `json:"vout"`
	Amount        decimal.Decimal `json:"amount"`
	Satoshis      int64           `json:"satoshis"`
	Height        int64           `json:"height"`
	Confirmations int64           `json:"confirmations"`
}

type addressUTXOs struct {
	UTXOs         []restUTXO `json:"utxos"`
	CashAddress   string     `json:"cashAddress"`
	LegacyAddress string     `json:"legacyAddress"`
	ScriptPubKey  string     `json:"scriptPubKey"`
}

type restError struct {
	Error string `json:"error"`
}

func NewRestClient(conf *config.ChainConfig, net *network.Network, logger *zap.Logger) *RestClient {
	base := conf.RestURL
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return &RestClient{
		baseURL:  base,
		timeout:  conf.Timeout,
		attempts: conf.RetryAttempts,
		net:      net,
		logger:   logger.Named("chain.rest"),
	}
}

// get performs one GET and returns the body of a 2xx response.
func (c *RestClient) get(ctx context.Context, path string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var (
		body string
		code int
	)
	err := gout.GET(c.baseURL + path).
		WithContext(ctx).
		BindBody(&body).
		Code(&code).
		Do()
	if err != nil {
		return nil, wrapErr(ctx, path, err)
	}
	if code < http.StatusOK || code >= http.StatusMultipleChoices {
		msg := strings.TrimSpace(body)
		var re restError
		if json.Unmarshal([]byte(body), &re) == nil && re.Error != "" {
			msg = re.Error
		}
		err := fmt.Errorf("%w: %s: http %d: %s", model.ErrChainConnectivity, path, code, msg)
		if code < http.StatusInternalServerError && code != http.StatusTooManyRequests {
			return nil, permanent{err}
		}
		return nil, err
	}
	return []byte(body), nil
}

func (c *RestClient) getJSON(ctx context.Context, op, path string, v interface{}) error {
	return withRetry(ctx, c.attempts, c.logger, op, func() error {
		body, err := c.get(ctx, path)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(body, v); err != nil {
			return permanent{fmt.Errorf("%w: %s: decode: %v", model.ErrChainConnectivity, op, err)}
		}
		return nil
	})
}

func (c *RestClient) Balance(ctx context.Context, address string) (*model.Balance, error) {
	var details addressDetails
	if err := c.getJSON(ctx, "Balance", "address/details/"+url.PathEscape(address), &details); err != nil {
		c.logger.Error("Balance", zap.String("address", address), zap.Error(err))
		return nil, err
	}

	confirmed, err := satoshis(details.BalanceSat, details.Balance)
	if err != nil {
		return nil, fmt.Errorf("%w: balance: %v", model.ErrChainConnectivity, err)
	}
	unconfirmed, err := satoshis(details.UnconfirmedBalanceSat, details.UnconfirmedBalance)
	if err != nil {
		return nil, fmt.Errorf("%w: unconfirmed balance: %v", model.ErrChainConnectivity, err)
	}
	return &model.Balance{
		ConfirmedSatoshis:   confirmed,
		UnconfirmedSatoshis: unconfirmed,
	}, nil
}

func (c *RestClient) Unspents(ctx context.Context, address string) (*model.UnspentSet, error) {
	var resp addressUTXOs
	if err := c.getJSON(ctx, "Unspents", "address/utxo/"+url.PathEscape(address), &resp); err != nil {
		c.logger.Error("Unspents", zap.String("address", address), zap.Error(err))
		return nil, err
	}

	set := &model.UnspentSet{
		// 服务端可能省略前缀
		OwnerAddress: pkg.NormalizeCashAddr(resp.CashAddress, c.net.CashAddrPrefix),
		UTXOs:        make([]model.UTXO, 0, len(resp.UTXOs)),
	}
	for _, u := range resp.UTXOs {
		sat, err := satoshis(u.Satoshis, u.Amount)
		if err != nil {
			return nil, fmt.Errorf("%w: utxo %s:%d: %v", model.ErrChainConnectivity, u.TxID, u.Vout, err)
		}
		set.UTXOs = append(set.UTXOs, model.UTXO{TxID: u.TxID, Vout: u.Vout, Satoshis: sat})
	}
	return set, nil
}

// Broadcast is sent once, a failed send is left to the operator.
func (c *RestClient) Broadcast(ctx context.Context, rawHex string) (string, error) {
	body, err := c.get(ctx, "rawtransactions/sendRawTransaction/"+rawHex)
	if err != nil {
		c.logger.Error("Broadcast", zap.Error(err))
		return "", err
	}

	var txid string
	if err := json.Unmarshal(body, &txid); err != nil {
		// 部分实现返回数组
		var txids []string
		if err := json.Unmarshal(body, &txids); err != nil || len(txids) == 0 {
			return "", fmt.Errorf("%w: broadcast: unexpected reply %q", model.ErrChainConnectivity, string(body))
		}
		txid = txids[0]
	}
	return txid, nil
}

// satoshis prefers the integer field and falls back to the coin amount.
func satoshis(sat int64, coin decimal.Decimal) (int64, error) {
	if sat != 0 || coin.IsZero() {
		return sat, nil
	}
	return pkg.CoinToSatoshi(coin)
}
