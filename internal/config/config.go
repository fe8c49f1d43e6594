package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Network names accepted by the network field.
const (
	MainNet = "mainnet"
	TestNet = "testnet"
)

// Config holds the configuration settings for the application.
type Config struct {
	LogLevel string         `yaml:"log_level"`
	LogFile  string         `yaml:"log_file"`
	Network  string         `yaml:"network"`
	Wallet   *WalletConfig  `yaml:"wallet"`
	Store    *StoreConfig   `yaml:"store"`
	Chain    *ChainConfig   `yaml:"chain"`
	Indexer  *IndexerConfig `yaml:"indexer"`
	Server   *ServerConfig  `yaml:"server"`
}

// WalletConfig holds key derivation and transaction policy settings.
type WalletConfig struct {
	MnemonicLanguage string `yaml:"mnemonic_language"`
	FeeSatoshis      int64  `yaml:"fee_satoshis"`
	DataMarker       string `yaml:"data_marker"` // hex, memo.cash post = 6d02
	MaxPayloadBytes  int    `yaml:"max_payload_bytes"`
	RelayFeePerKb    int64  `yaml:"relay_fee_per_kb"`
	StrictOwner      bool   `yaml:"strict_owner"` // utxo 归属地址不一致时直接报错
	MemoMessage      string `yaml:"memo_message"`
	FaucetURL        string `yaml:"faucet_url"`
	ExplorerURL      string `yaml:"explorer_url"`
}

// StoreConfig holds the workflow state store settings.
type StoreConfig struct {
	Backend   string `yaml:"backend"` // file | badger | leveldb
	Directory string `yaml:"directory"`
}

// ChainConfig holds the chain connectivity settings.
type ChainConfig struct {
	Backend       string            `yaml:"backend"` // rest | node
	RestURL       string            `yaml:"rest_url"`
	RPC           *BitcoinRPCConfig `yaml:"rpc"`
	Timeout       time.Duration     `yaml:"timeout"`
	RetryAttempts uint              `yaml:"retry_attempts"`
}

// BitcoinRPCConfig holds the configuration settings for node JSON-RPC.
type BitcoinRPCConfig struct {
	URL      string `yaml:"url"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

// IndexerConfig holds the BitDB query service settings.
type IndexerConfig struct {
	URL           string        `yaml:"url"`
	Timeout       time.Duration `yaml:"timeout"`
	RetryAttempts uint          `yaml:"retry_attempts"`
}

// ServerConfig holds the configuration settings for the status HTTP server.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// endpoints are the public services of one network.
type endpoints struct {
	RestURL     string
	IndexerURL  string
	ExplorerURL string
}

var networkEndpoints = map[string]endpoints{
	TestNet: {
		RestURL:     "https://trest.bitcoin.com/v2/",
		IndexerURL:  "https://tbitdb.bitcoin.com/q/",
		ExplorerURL: "https://explorer.bitcoin.com/tbch/address/",
	},
	MainNet: {
		RestURL:     "https://rest.bitcoin.com/v2/",
		IndexerURL:  "https://bitdb.bitcoin.com/q/",
		ExplorerURL: "https://explorer.bitcoin.com/bch/address/",
	},
}

// Default returns the testnet configuration used when a field is left empty.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Network:  TestNet,
		Wallet: &WalletConfig{
			MnemonicLanguage: "english",
			FeeSatoshis:      750,
			DataMarker:       "6d02",
			MaxPayloadBytes:  217,
			RelayFeePerKb:    1000,
			FaucetURL:        "https://developer.bitcoin.com/faucets/bch/",
			ExplorerURL:      networkEndpoints[TestNet].ExplorerURL,
		},
		Store: &StoreConfig{
			Backend:   "file",
			Directory: "./data",
		},
		Chain: &ChainConfig{
			Backend:       "rest",
			RestURL:       networkEndpoints[TestNet].RestURL,
			Timeout:       30 * time.Second,
			RetryAttempts: 3,
		},
		Indexer: &IndexerConfig{
			URL:           networkEndpoints[TestNet].IndexerURL,
			Timeout:       30 * time.Second,
			RetryAttempts: 3,
		},
		Server: &ServerConfig{
			Host: "127.0.0.1",
			Port: 3000,
		},
	}
}

// LoadConfig reads and parses the configuration file.
// Missing sections fall back to Default.
func LoadConfig(configPath string) (*Config, error) {
	config := Default()

	file, err := os.Open(configPath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	if err := decoder.Decode(config); err != nil {
		return nil, err
	}
	config.fill()

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// fill 对 yaml 中显式置空的段落补默认值
func (c *Config) fill() {
	def := Default()
	if c.Wallet == nil {
		c.Wallet = def.Wallet
	}
	if c.Store == nil {
		c.Store = def.Store
	}
	if c.Chain == nil {
		c.Chain = def.Chain
	}
	if c.Indexer == nil {
		c.Indexer = def.Indexer
	}
	if c.Server == nil {
		c.Server = def.Server
	}
	if c.Chain.Timeout <= 0 {
		c.Chain.Timeout = def.Chain.Timeout
	}
	if c.Indexer.Timeout <= 0 {
		c.Indexer.Timeout = def.Indexer.Timeout
	}

	// 默认的测试网服务地址跟随所选网络
	if ep, ok := networkEndpoints[c.Network]; ok && c.Network != TestNet {
		test := networkEndpoints[TestNet]
		if c.Chain.RestURL == test.RestURL {
			c.Chain.RestURL = ep.RestURL
		}
		if c.Indexer.URL == test.IndexerURL {
			c.Indexer.URL = ep.IndexerURL
		}
		if c.Wallet.ExplorerURL == test.ExplorerURL {
			c.Wallet.ExplorerURL = ep.ExplorerURL
		}
	}
}

// Validate checks values that would otherwise fail deep inside a stage.
func (c *Config) Validate() error {
	switch c.Network {
	case MainNet, TestNet:
	default:
		return fmt.Errorf("unsupported network %q", c.Network)
	}
	if c.Wallet.FeeSatoshis <= 0 {
		return fmt.Errorf("fee_satoshis must be positive, got %d", c.Wallet.FeeSatoshis)
	}
	if _, err := c.Wallet.Marker(); err != nil {
		return err
	}
	if c.Wallet.MaxPayloadBytes <= 0 {
		return fmt.Errorf("max_payload_bytes must be positive, got %d", c.Wallet.MaxPayloadBytes)
	}
	switch c.Store.Backend {
	case "file", "badger", "leveldb":
	default:
		return fmt.Errorf("unsupported store backend %q", c.Store.Backend)
	}
	if c.Store.Directory == "" {
		return fmt.Errorf("store directory is required")
	}
	switch c.Chain.Backend {
	case "rest":
		if c.Chain.RestURL == "" {
			return fmt.Errorf("chain rest_url is required")
		}
	case "node":
		if c.Chain.RPC == nil || c.Chain.RPC.URL == "" {
			return fmt.Errorf("chain rpc url is required for the node backend")
		}
	default:
		return fmt.Errorf("unsupported chain backend %q", c.Chain.Backend)
	}
	if c.Indexer.URL == "" {
		return fmt.Errorf("indexer url is required")
	}
	return nil
}

// Marker decodes the hex protocol marker.
func (w *WalletConfig) Marker() ([]byte, error) {
	marker, err := hex.DecodeString(w.DataMarker)
	if err != nil {
		return nil, fmt.Errorf("invalid data_marker %q: %w", w.DataMarker, err)
	}
	if len(marker) == 0 {
		return nil, fmt.Errorf("data_marker must not be empty")
	}
	return marker, nil
}
