package chain

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"github.com/wx-shi/memo-wallet/internal/config"
	"github.com/wx-shi/memo-wallet/internal/model"
	"github.com/wx-shi/memo-wallet/internal/network"
	"github.com/wx-shi/memo-wallet/internal/txbuilder"
	"go.uber.org/zap"
)

type rpcRequest struct {
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
	ID     json.RawMessage   `json:"id"`
}

// rpcHandler answers one method; a non-nil error becomes the JSON-RPC error.
type rpcHandler func(params []json.RawMessage) (interface{}, *rpcError)

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// rpcRecorder keeps the params of every call by method.
type rpcRecorder struct {
	mu    sync.Mutex
	calls map[string][][]json.RawMessage
}

func (r *rpcRecorder) record(method string, params []json.RawMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls[method] = append(r.calls[method], params)
}

func (r *rpcRecorder) get(method string) [][]json.RawMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[method]
}

func newNodeServer(t *testing.T, handlers map[string]rpcHandler) (string, *rpcRecorder) {
	t.Helper()
	rec := &rpcRecorder{calls: map[string][][]json.RawMessage{}}
	srv := newRestServer(t, func(e *gin.Engine) {
		e.POST("/", func(c *gin.Context) {
			var req rpcRequest
			if err := c.ShouldBindJSON(&req); err != nil {
				c.Status(http.StatusBadRequest)
				return
			}
			rec.record(req.Method, req.Params)
			h, ok := handlers[req.Method]
			if !ok {
				c.JSON(http.StatusOK, gin.H{"result": nil, "error": rpcError{Code: -32601, Message: "Method not found"}, "id": req.ID})
				return
			}
			result, rpcErr := h(req.Params)
			if rpcErr != nil {
				c.JSON(http.StatusOK, gin.H{"result": nil, "error": rpcErr, "id": req.ID})
				return
			}
			c.JSON(http.StatusOK, gin.H{"result": result, "error": nil, "id": req.ID})
		})
	})
	return strings.TrimPrefix(srv.URL, "http://"), rec
}

func newNodeClient(t *testing.T, host string, timeout time.Duration) *NodeClient {
	t.Helper()
	c, err := NewNodeClient(&config.ChainConfig{
		Backend:       "node",
		Timeout:       timeout,
		RetryAttempts: 1,
		RPC:           &config.BitcoinRPCConfig{URL: host, User: "user", Password: "password"},
	}, network.TestNet, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(c.Shutdown)
	return c
}

func listUnspentReply(params []json.RawMessage) (interface{}, *rpcError) {
	return []gin.H{
		{"txid": "aa", "vout": 0, "address": "qpm2qsznhks23z7629mms6s4cwef74vcwvqcw003ap", "amount": 0.0001, "confirmations": 3},
		{"txid": "bb", "vout": 1, "address": "qpm2qsznhks23z7629mms6s4cwef74vcwvqcw003ap", "amount": 0.00000546, "confirmations": 0},
	}, nil
}

func TestNodeUnspents(t *testing.T) {
	host, rec := newNodeServer(t, map[string]rpcHandler{"listunspent": listUnspentReply})

	set, err := newNodeClient(t, host, time.Second).Unspents(context.Background(), testAddr)
	require.NoError(t, err)
	// the owner reported by the node gets the network prefix
	require.Equal(t, testAddr, set.OwnerAddress)
	require.Equal(t, []model.UTXO{
		{TxID: "aa", Vout: 0, Satoshis: 10000},
		{TxID: "bb", Vout: 1, Satoshis: 546},
	}, set.UTXOs)

	calls := rec.get("listunspent")
	require.Len(t, calls, 1)
	require.Len(t, calls[0], 3)
	require.JSONEq(t, `0`, string(calls[0][0]))
	require.JSONEq(t, `2147483647`, string(calls[0][1]))
	require.JSONEq(t, `["`+testAddr+`"]`, string(calls[0][2]))
}

func TestNodeBalance(t *testing.T) {
	host, _ := newNodeServer(t, map[string]rpcHandler{"listunspent": listUnspentReply})

	balance, err := newNodeClient(t, host, time.Second).Balance(context.Background(), testAddr)
	require.NoError(t, err)
	require.Equal(t, int64(10000), balance.ConfirmedSatoshis)
	require.Equal(t, int64(546), balance.UnconfirmedSatoshis)
}

func TestNodeUnspentsEmpty(t *testing.T) {
	host, _ := newNodeServer(t, map[string]rpcHandler{
		"listunspent": func([]json.RawMessage) (interface{}, *rpcError) { return []gin.H{}, nil },
	})

	set, err := newNodeClient(t, host, time.Second).Unspents(context.Background(), "qpm2qsznhks23z7629mms6s4cwef74vcwvqcw003ap")
	require.NoError(t, err)
	require.Equal(t, testAddr, set.OwnerAddress)
	require.Empty(t, set.UTXOs)
}

func TestNodeRPCError(t *testing.T) {
	host, _ := newNodeServer(t, map[string]rpcHandler{
		"listunspent": func([]json.RawMessage) (interface{}, *rpcError) {
			return nil, &rpcError{Code: -5, Message: "Invalid Bitcoin address"}
		},
	})

	_, err := newNodeClient(t, host, time.Second).Balance(context.Background(), testAddr)
	require.ErrorIs(t, err, model.ErrChainConnectivity)
	require.NotErrorIs(t, err, model.ErrTimeout)
	require.Contains(t, err.Error(), "Invalid Bitcoin address")
}

func TestNodeTimeout(t *testing.T) {
	host, _ := newNodeServer(t, map[string]rpcHandler{
		"listunspent": func(params []json.RawMessage) (interface{}, *rpcError) {
			time.Sleep(500 * time.Millisecond)
			return listUnspentReply(params)
		},
	})

	_, err := newNodeClient(t, host, 50*time.Millisecond).Unspents(context.Background(), testAddr)
	require.ErrorIs(t, err, model.ErrTimeout)
	require.ErrorIs(t, err, model.ErrChainConnectivity)
}

func TestNodeBroadcast(t *testing.T) {
	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(&chainhash.Hash{1}, 0), nil, nil))
	tx.AddTxOut(wire.NewTxOut(9250, []byte{0x51}))
	rawHex, err := txbuilder.Serialize(tx)
	require.NoError(t, err)

	host, rec := newNodeServer(t, map[string]rpcHandler{
		// rpcclient probes the backend version before sendrawtransaction
		"getinfo": func([]json.RawMessage) (interface{}, *rpcError) {
			return gin.H{"version": 230400}, nil
		},
		"sendrawtransaction": func(params []json.RawMessage) (interface{}, *rpcError) {
			var hexTx string
			if err := json.Unmarshal(params[0], &hexTx); err != nil {
				return nil, &rpcError{Code: -22, Message: "TX decode failed"}
			}
			decoded, err := txbuilder.Deserialize(hexTx)
			if err != nil {
				return nil, &rpcError{Code: -22, Message: "TX decode failed"}
			}
			return txbuilder.TxID(decoded), nil
		},
	})

	txid, err := newNodeClient(t, host, time.Second).Broadcast(context.Background(), rawHex)
	require.NoError(t, err)
	require.Equal(t, txbuilder.TxID(tx), txid)

	calls := rec.get("sendrawtransaction")
	require.Len(t, calls, 1)
	require.JSONEq(t, `"`+rawHex+`"`, string(calls[0][0]))
}

func TestNodeBroadcastRejected(t *testing.T) {
	host, rec := newNodeServer(t, map[string]rpcHandler{
		"getinfo": func([]json.RawMessage) (interface{}, *rpcError) {
			return gin.H{"version": 230400}, nil
		},
		"sendrawtransaction": func([]json.RawMessage) (interface{}, *rpcError) {
			return nil, &rpcError{Code: -26, Message: "dust"}
		},
	})

	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(&chainhash.Hash{2}, 1), nil, nil))
	tx.AddTxOut(wire.NewTxOut(1, []byte{0x51}))
	rawHex, err := txbuilder.Serialize(tx)
	require.NoError(t, err)

	_, err = newNodeClient(t, host, time.Second).Broadcast(context.Background(), rawHex)
	require.ErrorIs(t, err, model.ErrChainConnectivity)
	require.Len(t, rec.get("sendrawtransaction"), 1)

	_, err = newNodeClient(t, host, time.Second).Broadcast(context.Background(), "zz")
	require.ErrorIs(t, err, model.ErrChainConnectivity)
	require.Len(t, rec.get("sendrawtransaction"), 1)
}
