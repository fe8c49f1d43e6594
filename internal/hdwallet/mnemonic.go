// Package hdwallet implements the BIP39/BIP32/BIP44 key derivation used by
// the wallet identity.
package hdwallet

import (
	"fmt"
	"sync"

	"github.com/tyler-smith/go-bip39"
	"github.com/tyler-smith/go-bip39/wordlists"
	"github.com/wx-shi/memo-wallet/internal/model"
)

// MnemonicEntropyBits is the entropy size for 12-word mnemonics.
const MnemonicEntropyBits = 128

var languages = map[string][]string{
	"english":             wordlists.English,
	"japanese":            wordlists.Japanese,
	"spanish":             wordlists.Spanish,
	"french":              wordlists.French,
	"italian":             wordlists.Italian,
	"korean":              wordlists.Korean,
	"czech":               wordlists.Czech,
	"chinese_simplified":  wordlists.ChineseSimplified,
	"chinese_traditional": wordlists.ChineseTraditional,
}

// bip39 keeps its word list in a package variable.
var wordListMu sync.Mutex

// withWordList runs fn with the given language installed as the bip39
// word list and restores the previous list afterwards.
func withWordList(language string, fn func() error) error {
	list, ok := languages[language]
	if !ok {
		return fmt.Errorf("%w: unsupported mnemonic language %q", model.ErrCryptoProvider, language)
	}

	wordListMu.Lock()
	defer wordListMu.Unlock()

	prev := bip39.GetWordList()
	bip39.SetWordList(list)
	defer bip39.SetWordList(prev)
	return fn()
}

// GenerateMnemonic creates a new BIP39 mnemonic with the given entropy
// strength in the given word list language.
func GenerateMnemonic(strengthBits int, language string) (string, error) {
	var mnemonic string
	err := withWordList(language, func() error {
		entropy, err := bip39.NewEntropy(strengthBits)
		if err != nil {
			return fmt.Errorf("%w: generate entropy: %v", model.ErrCryptoProvider, err)
		}
		mnemonic, err = bip39.NewMnemonic(entropy)
		if err != nil {
			return fmt.Errorf("%w: generate mnemonic: %v", model.ErrCryptoProvider, err)
		}
		return nil
	})
	return mnemonic, err
}

// ValidateMnemonic checks word count, words and checksum for the language.
func ValidateMnemonic(mnemonic, language string) bool {
	valid := false
	_ = withWordList(language, func() error {
		valid = bip39.IsMnemonicValid(mnemonic)
		return nil
	})
	return valid
}

// SeedFromMnemonic derives the 64-byte BIP39 seed with an empty passphrase.
func SeedFromMnemonic(mnemonic, language string) ([]byte, error) {
	var seed []byte
	err := withWordList(language, func() error {
		var err error
		seed, err = bip39.NewSeedWithErrorChecking(mnemonic, "")
		if err != nil {
			return fmt.Errorf("%w: derive seed: %v", model.ErrCryptoProvider, err)
		}
		return nil
	})
	return seed, err
}
