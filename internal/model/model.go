package model

import "time"

// WalletIdentity is persisted as wallet.json. Field names follow the layout
// other tools reading the file expect.
type WalletIdentity struct {
	Mnemonic      string `json:"mnemonic"`
	CashAddress   string `json:"cashAddress"`
	LegacyAddress string `json:"legacyAddress"`
	WIF           string `json:"WIF"`
}

// DerivedAddress is one line of the derivation report.
type DerivedAddress struct {
	Path        string `json:"path"`
	CashAddress string `json:"cashAddress"`
}

type UTXO struct {
	TxID     string `json:"txid"`
	Vout     uint32 `json:"vout"`
	Satoshis int64  `json:"satoshis"`
}

// UnspentSet utxo 列表以及服务端返回的归属地址
type UnspentSet struct {
	OwnerAddress string `json:"ownerAddress"`
	UTXOs        []UTXO `json:"utxos"`
}

type Balance struct {
	ConfirmedSatoshis   int64 `json:"confirmedSatoshis"`
	UnconfirmedSatoshis int64 `json:"unconfirmedSatoshis"`
}

// Total confirmed plus unconfirmed satoshis.
func (b Balance) Total() int64 {
	return b.ConfirmedSatoshis + b.UnconfirmedSatoshis
}

// MemoRecord is persisted as memo.json once the memo transaction is accepted.
type MemoRecord struct {
	Message string `json:"message"`
	TxID    string `json:"txid"`
}

// IndexerMatch is one projected row of the indexer response.
type IndexerMatch struct {
	Addr string `json:"addr"`
	Msg  string `json:"msg"`
	TxID string `json:"txid"`
}

// IndexerResponse 索引服务返回: u 为未确认, c 为已确认
type IndexerResponse struct {
	Unconfirmed []IndexerMatch `json:"u"`
	Confirmed   []IndexerMatch `json:"c"`
}

// Reconciliation compares the wallet address with the indexer's view of the
// memo transaction sender.
type Reconciliation struct {
	TxID              string   `json:"txid"`
	WalletAddress     string   `json:"walletAddress"`
	IndexerAddress    string   `json:"indexerAddress"`
	IndexerMessage    string   `json:"indexerMessage"`
	Confirmed         bool     `json:"confirmed"`
	Match             bool     `json:"match"`
	DistinctAddresses []string `json:"distinctAddresses,omitempty"`
}

// Status of a persisted workflow record.
type Status string

const (
	NotStarted Status = "NotStarted"
	Completed  Status = "Completed"
)

// Kind names one of the fixed-location workflow records.
type Kind string

const (
	KindIdentity Kind = "identity"
	KindReport   Kind = "report"
	KindMemo     Kind = "memo"
	KindSnapshot Kind = "snapshot"
)

// Kinds lists every record kind in workflow order.
var Kinds = []Kind{KindIdentity, KindReport, KindMemo, KindSnapshot}

// StageState is the status view served by the status API.
type StageState struct {
	Kind      Kind      `json:"kind"`
	Status    Status    `json:"status"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type IdentityReply struct {
	Network       string `json:"network"`
	CashAddress   string `json:"cashAddress"`
	LegacyAddress string `json:"legacyAddress"`
}
