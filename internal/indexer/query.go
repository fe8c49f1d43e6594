package indexer

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// Projection picks the sender of the first input, the second push of the
// first output (the memo text) and the transaction hash.
const Projection = "[ .[] | {addr: .in[0].e.a, msg: .out[0].s2, txid: .tx.h} ]"

// QueryVersion is the BitDB query language version.
const QueryVersion = 3

type Query struct {
	V int       `json:"v"`
	Q QueryFind `json:"q"`
	R QueryResp `json:"r"`
}

type QueryFind struct {
	Find map[string]string `json:"find"`
}

type QueryResp struct {
	F string `json:"f"`
}

// NewTxQuery finds transactions whose hash is txid.
func NewTxQuery(txid string) *Query {
	return &Query{
		V: QueryVersion,
		Q: QueryFind{Find: map[string]string{"tx.h": txid}},
		R: QueryResp{F: Projection},
	}
}

// Encode returns the standard base64 of the query JSON.
func (q *Query) Encode() (string, error) {
	data, err := json.Marshal(q)
	if err != nil {
		return "", fmt.Errorf("marshal indexer query: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// QueryURL appends the encoded query for txid to baseURL.
func QueryURL(baseURL, txid string) (string, error) {
	encoded, err := NewTxQuery(txid).Encode()
	if err != nil {
		return "", err
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return baseURL + encoded, nil
}
