// Package wallet holds the wallet identity and the memo posting pipeline.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/wx-shi/memo-wallet/internal/chain"
	"github.com/wx-shi/memo-wallet/internal/db"
	"github.com/wx-shi/memo-wallet/internal/hdwallet"
	"github.com/wx-shi/memo-wallet/internal/model"
	"github.com/wx-shi/memo-wallet/internal/network"
	"go.uber.org/zap"
)

// ReportAddressCount is the number of receive addresses written to the
// derivation report. Only index 0 becomes the identity.
const ReportAddressCount = 10

// Params is the explicit wallet configuration handed to the manager.
type Params struct {
	Network          *network.Network
	MnemonicLanguage string
	FeeSatoshis      int64
	DataMarker       []byte
	MaxPayloadBytes  int
	RelayFeePerKb    btcutil.Amount
	StrictOwner      bool
}

// Manager owns the wallet identity and posts memos with it.
type Manager struct {
	params Params
	store  db.Store
	chain  chain.Chain
	logger *zap.Logger
}

func NewManager(params Params, store db.Store, ch chain.Chain, logger *zap.Logger) (*Manager, error) {
	if params.Network == nil {
		return nil, errors.New("wallet: network is required")
	}
	if params.MnemonicLanguage == "" {
		params.MnemonicLanguage = "english"
	}
	if params.FeeSatoshis <= 0 {
		return nil, fmt.Errorf("wallet: fee must be positive, got %d", params.FeeSatoshis)
	}
	if len(params.DataMarker) == 0 {
		return nil, errors.New("wallet: data marker is required")
	}
	return &Manager{
		params: params,
		store:  store,
		chain:  ch,
		logger: logger.Named("wallet"),
	}, nil
}

// EnsureIdentity returns the persisted identity, creating it on first use.
// A created identity is only returned once it is durably stored.
func (m *Manager) EnsureIdentity(ctx context.Context) (*model.WalletIdentity, error) {
	ok, err := m.store.Exists(model.KindIdentity)
	if err != nil {
		return nil, err
	}
	if ok {
		identity := &model.WalletIdentity{}
		if err := db.LoadJSON(m.store, model.KindIdentity, identity); err != nil {
			return nil, err
		}
		if err := m.checkIdentity(identity); err != nil {
			m.logger.Error("stored identity is corrupt", zap.Error(err))
			return nil, err
		}
		m.logger.Info("identity loaded", zap.String("cashAddress", identity.CashAddress))
		return identity, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mnemonic, err := hdwallet.GenerateMnemonic(hdwallet.MnemonicEntropyBits, m.params.MnemonicLanguage)
	if err != nil {
		return nil, err
	}
	identity, report, err := m.derive(mnemonic)
	if err != nil {
		return nil, err
	}

	// 报告先写, 身份文件是完成标记
	if err := m.store.Save(model.KindReport, []byte(report)); err != nil {
		return nil, err
	}
	if err := db.SaveJSON(m.store, model.KindIdentity, identity); err != nil {
		return nil, err
	}

	m.logger.Info("identity created",
		zap.String("network", m.params.Network.Name),
		zap.String("cashAddress", identity.CashAddress),
		zap.String("legacyAddress", identity.LegacyAddress))
	return identity, nil
}

// checkIdentity re-derives the stored mnemonic and compares address and key.
func (m *Manager) checkIdentity(stored *model.WalletIdentity) error {
	if !hdwallet.ValidateMnemonic(stored.Mnemonic, m.params.MnemonicLanguage) {
		return fmt.Errorf("%w: identity: invalid %s mnemonic", model.ErrStorage, m.params.MnemonicLanguage)
	}
	derived, _, err := m.derive(stored.Mnemonic)
	if err != nil {
		return fmt.Errorf("%w: identity: %v", model.ErrStorage, err)
	}
	if derived.CashAddress != stored.CashAddress || derived.WIF != stored.WIF {
		return fmt.Errorf("%w: identity: address or key does not match the mnemonic", model.ErrStorage)
	}
	return nil
}

// derive builds the identity and the derivation report for a mnemonic.
func (m *Manager) derive(mnemonic string) (*model.WalletIdentity, string, error) {
	net := m.params.Network
	seed, err := hdwallet.SeedFromMnemonic(mnemonic, m.params.MnemonicLanguage)
	if err != nil {
		return nil, "", err
	}
	master, err := hdwallet.NewMasterNode(seed, net)
	if err != nil {
		return nil, "", err
	}

	addrs := make([]model.DerivedAddress, 0, ReportAddressCount)
	identity := &model.WalletIdentity{Mnemonic: mnemonic}
	for i := uint32(0); i < ReportAddressCount; i++ {
		path := hdwallet.AddressPath(net, 0, 0, i)
		child, err := master.DerivePath(path)
		if err != nil {
			return nil, "", err
		}
		cash, err := child.Address(hdwallet.CashAddr)
		if err != nil {
			return nil, "", err
		}
		addrs = append(addrs, model.DerivedAddress{Path: path, CashAddress: cash})

		if i == 0 {
			identity.CashAddress = cash
			if identity.LegacyAddress, err = child.Address(hdwallet.Legacy); err != nil {
				return nil, "", err
			}
			if identity.WIF, err = child.WIF(); err != nil {
				return nil, "", err
			}
		}
	}

	return identity, formatReport(mnemonic, m.params.MnemonicLanguage, hdwallet.AccountPath(net, 0), addrs), nil
}

func formatReport(mnemonic, language, account string, addrs []model.DerivedAddress) string {
	var sb strings.Builder
	sb.WriteString("BIP44 $BCH Wallet\n")
	fmt.Fprintf(&sb, "\n%d bit %s BIP39 Mnemonic:\n%s\n\n", hdwallet.MnemonicEntropyBits, language, mnemonic)
	fmt.Fprintf(&sb, "BIP44 Account: \"%s\"\n", account)
	for _, a := range addrs {
		fmt.Fprintf(&sb, "%s: %s\n", a.Path, a.CashAddress)
	}
	return sb.String()
}
