package hdwallet

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/stretchr/testify/require"
	"github.com/tyler-smith/go-bip39"
	"github.com/tyler-smith/go-bip39/wordlists"
	"github.com/wx-shi/memo-wallet/internal/model"
	"github.com/wx-shi/memo-wallet/internal/network"
)

const abandonMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

func TestGenerateMnemonic(t *testing.T) {
	for _, lang := range []string{"english", "japanese", "spanish"} {
		mnemonic, err := GenerateMnemonic(MnemonicEntropyBits, lang)
		require.NoError(t, err)
		require.Len(t, strings.Fields(mnemonic), 12)
		require.True(t, ValidateMnemonic(mnemonic, lang), lang)
	}
	// the package word list is restored afterwards
	require.Equal(t, wordlists.English, bip39.GetWordList())

	_, err := GenerateMnemonic(MnemonicEntropyBits, "klingon")
	require.ErrorIs(t, err, model.ErrCryptoProvider)
}

func TestValidateMnemonic(t *testing.T) {
	require.True(t, ValidateMnemonic(abandonMnemonic, "english"))
	require.False(t, ValidateMnemonic(strings.Repeat("abandon ", 11)+"abandon", "english"))
	require.False(t, ValidateMnemonic(abandonMnemonic, "klingon"))
}

func TestSeedFromMnemonic(t *testing.T) {
	seed, err := SeedFromMnemonic(abandonMnemonic, "english")
	require.NoError(t, err)
	require.Equal(t,
		"5eb00bbddcf069084889a8ab9155568165f5c453ccb85e70811aaed6f6da5fc19a5ac40b389cd370d086206dec8aa6c43daea6690f20ad3d8d48b2d2ce9e38e4",
		hex.EncodeToString(seed))

	_, err = SeedFromMnemonic("abandon abandon", "english")
	require.ErrorIs(t, err, model.ErrCryptoProvider)
}

func TestParsePath(t *testing.T) {
	indices, err := ParsePath("m/44'/145'/0'/0/3")
	require.NoError(t, err)
	require.Equal(t, []uint32{
		hdkeychain.HardenedKeyStart + 44,
		hdkeychain.HardenedKeyStart + 145,
		hdkeychain.HardenedKeyStart,
		0,
		3,
	}, indices)

	indices, err = ParsePath("m")
	require.NoError(t, err)
	require.Empty(t, indices)

	for _, bad := range []string{"", "44'/0", "m/x", "m/4294967296", "m//1"} {
		_, err := ParsePath(bad)
		require.ErrorIs(t, err, model.ErrCryptoProvider, bad)
	}
}

func TestAddressPath(t *testing.T) {
	require.Equal(t, "m/44'/145'/0'", AccountPath(network.TestNet, 0))
	require.Equal(t, "m/44'/145'/0'/0/9", AddressPath(network.TestNet, 0, 0, 9))
}

func masterNode(t *testing.T, net *network.Network) *Node {
	t.Helper()
	seed, err := SeedFromMnemonic(abandonMnemonic, "english")
	require.NoError(t, err)
	master, err := NewMasterNode(seed, net)
	require.NoError(t, err)
	return master
}

func TestDeriveKnownAddress(t *testing.T) {
	child, err := masterNode(t, network.MainNet).DerivePath("m/44'/0'/0'/0/0")
	require.NoError(t, err)

	legacy, err := child.Address(Legacy)
	require.NoError(t, err)
	require.Equal(t, "1LqBGSKuX5yYUonjxT5qGfpUsXKYYWeabA", legacy)

	cash, err := child.Address(CashAddr)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(cash, "bitcoincash:q"), cash)
}

func TestNodeIdentity(t *testing.T) {
	net := network.TestNet
	child, err := masterNode(t, net).DerivePath(AddressPath(net, 0, 0, 0))
	require.NoError(t, err)

	cash, err := child.Address(CashAddr)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(cash, "bchtest:q"), cash)

	legacy, err := child.Address(Legacy)
	require.NoError(t, err)
	require.Contains(t, "mn", legacy[:1])

	wif, err := child.WIF()
	require.NoError(t, err)

	priv, err := DecodeWIF(wif, cash, net)
	require.NoError(t, err)
	expect, err := child.PrivateKey()
	require.NoError(t, err)
	require.Equal(t, expect.Serialize(), priv.Serialize())

	// same path, same keys
	again, err := masterNode(t, net).DerivePath(AddressPath(net, 0, 0, 0))
	require.NoError(t, err)
	againCash, err := again.Address(CashAddr)
	require.NoError(t, err)
	require.Equal(t, cash, againCash)

	// a WIF for another address is refused
	other, err := masterNode(t, net).DerivePath(AddressPath(net, 0, 0, 1))
	require.NoError(t, err)
	otherCash, err := other.Address(CashAddr)
	require.NoError(t, err)
	_, err = DecodeWIF(wif, otherCash, net)
	require.ErrorIs(t, err, model.ErrCryptoProvider)

	// and so is a WIF for another network
	_, err = DecodeWIF(wif, cash, network.MainNet)
	require.ErrorIs(t, err, model.ErrCryptoProvider)
}
