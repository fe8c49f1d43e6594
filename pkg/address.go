package pkg

import (
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
)

// CashAddr type bits (high nibble of the version byte).
const (
	CashAddrP2PKH byte = 0
	CashAddrP2SH  byte = 1
)

const cashAddrCharset = "qpzry9x8gf2tvdw0s3jn54khce6mua7l"

var (
	ErrInvalidCashAddr = errors.New("invalid cashaddr")

	cashAddrRev = func() [128]int8 {
		var rev [128]int8
		for i := range rev {
			rev[i] = -1
		}
		for i, c := range cashAddrCharset {
			rev[c] = int8(i)
		}
		return rev
	}()
)

// EncodeCashAddr 编码 prefix:payload 形式的地址, hash 为 20 字节 hash160
func EncodeCashAddr(prefix string, addrType byte, hash []byte) (string, error) {
	sizeBits, ok := cashAddrSizeBits(len(hash))
	if !ok {
		return "", fmt.Errorf("%w: unsupported hash length %d", ErrInvalidCashAddr, len(hash))
	}
	payload := make([]byte, 0, len(hash)+1)
	payload = append(payload, addrType<<3|sizeBits)
	payload = append(payload, hash...)

	data, err := convertBits(payload, 8, 5, true)
	if err != nil {
		return "", err
	}
	checksum := cashAddrChecksum(prefix, data)

	var sb strings.Builder
	sb.Grow(len(prefix) + 1 + len(data) + len(checksum))
	sb.WriteString(prefix)
	sb.WriteByte(':')
	for _, d := range data {
		sb.WriteByte(cashAddrCharset[d])
	}
	for _, d := range checksum {
		sb.WriteByte(cashAddrCharset[d])
	}
	return sb.String(), nil
}

// DecodeCashAddr 解码地址, 没有前缀时使用 defaultPrefix
func DecodeCashAddr(addr, defaultPrefix string) (prefix string, addrType byte, hash []byte, err error) {
	if strings.ToLower(addr) != addr && strings.ToUpper(addr) != addr {
		return "", 0, nil, fmt.Errorf("%w: mixed case", ErrInvalidCashAddr)
	}
	addr = strings.ToLower(addr)

	prefix, body := defaultPrefix, addr
	if i := strings.LastIndexByte(addr, ':'); i >= 0 {
		prefix, body = addr[:i], addr[i+1:]
	}
	if prefix == "" || len(body) < 8 {
		return "", 0, nil, fmt.Errorf("%w: %q", ErrInvalidCashAddr, addr)
	}

	data := make([]byte, len(body))
	for i := 0; i < len(body); i++ {
		c := body[i]
		if c >= 128 || cashAddrRev[c] < 0 {
			return "", 0, nil, fmt.Errorf("%w: bad character %q", ErrInvalidCashAddr, c)
		}
		data[i] = byte(cashAddrRev[c])
	}
	if cashAddrPolymod(append(prefixBits(prefix), data...)) != 0 {
		return "", 0, nil, fmt.Errorf("%w: checksum mismatch", ErrInvalidCashAddr)
	}

	payload, err := convertBits(data[:len(data)-8], 5, 8, false)
	if err != nil {
		return "", 0, nil, err
	}
	if len(payload) == 0 {
		return "", 0, nil, fmt.Errorf("%w: empty payload", ErrInvalidCashAddr)
	}
	version := payload[0]
	hash = payload[1:]
	if sizeBits, ok := cashAddrSizeBits(len(hash)); !ok || version&0x07 != sizeBits {
		return "", 0, nil, fmt.Errorf("%w: hash size mismatch", ErrInvalidCashAddr)
	}
	return prefix, version >> 3, hash, nil
}

// CashAddrToLegacy 转换为 base58 旧格式地址
func CashAddrToLegacy(addr string, params *chaincfg.Params, prefix string) (btcutil.Address, error) {
	got, typ, hash, err := DecodeCashAddr(addr, prefix)
	if err != nil {
		return nil, err
	}
	if got != prefix {
		return nil, fmt.Errorf("%w: prefix %q is not %q", ErrInvalidCashAddr, got, prefix)
	}
	switch typ {
	case CashAddrP2PKH:
		return btcutil.NewAddressPubKeyHash(hash, params)
	case CashAddrP2SH:
		return btcutil.NewAddressScriptHashFromHash(hash, params)
	}
	return nil, fmt.Errorf("%w: unknown type %d", ErrInvalidCashAddr, typ)
}

// LegacyToCashAddr 将旧格式地址转换为 cashaddr
func LegacyToCashAddr(addr btcutil.Address, prefix string) (string, error) {
	switch a := addr.(type) {
	case *btcutil.AddressPubKeyHash:
		return EncodeCashAddr(prefix, CashAddrP2PKH, a.ScriptAddress())
	case *btcutil.AddressScriptHash:
		return EncodeCashAddr(prefix, CashAddrP2SH, a.ScriptAddress())
	}
	return "", fmt.Errorf("%w: unsupported address type %T", ErrInvalidCashAddr, addr)
}

// CashAddrScript 地址对应的锁定脚本
func CashAddrScript(addr string, params *chaincfg.Params, prefix string) ([]byte, error) {
	legacy, err := CashAddrToLegacy(addr, params, prefix)
	if err != nil {
		return nil, err
	}
	return txscript.PayToAddrScript(legacy)
}

// NormalizeCashAddr 缺少前缀时补全, 不改变大小写
func NormalizeCashAddr(addr, prefix string) string {
	addr = strings.TrimSpace(addr)
	if addr == "" || strings.Contains(addr, ":") {
		return addr
	}
	return prefix + ":" + addr
}

func cashAddrSizeBits(hashLen int) (byte, bool) {
	switch hashLen {
	case 20:
		return 0, true
	case 24:
		return 1, true
	case 28:
		return 2, true
	case 32:
		return 3, true
	case 40:
		return 4, true
	case 48:
		return 5, true
	case 56:
		return 6, true
	case 64:
		return 7, true
	}
	return 0, false
}

func prefixBits(prefix string) []byte {
	out := make([]byte, 0, len(prefix)+1)
	for i := 0; i < len(prefix); i++ {
		out = append(out, prefix[i]&0x1f)
	}
	return append(out, 0)
}

func cashAddrChecksum(prefix string, data []byte) []byte {
	values := prefixBits(prefix)
	values = append(values, data...)
	values = append(values, make([]byte, 8)...)
	mod := cashAddrPolymod(values)

	checksum := make([]byte, 8)
	for i := range checksum {
		checksum[i] = byte((mod >> (5 * (7 - uint(i)))) & 0x1f)
	}
	return checksum
}

func cashAddrPolymod(values []byte) uint64 {
	c := uint64(1)
	for _, d := range values {
		c0 := byte(c >> 35)
		c = ((c & 0x07ffffffff) << 5) ^ uint64(d)
		if c0&0x01 != 0 {
			c ^= 0x98f2bc8e61
		}
		if c0&0x02 != 0 {
			c ^= 0x79b76d99e2
		}
		if c0&0x04 != 0 {
			c ^= 0xf33e5fb3c4
		}
		if c0&0x08 != 0 {
			c ^= 0xae2eabe2a8
		}
		if c0&0x10 != 0 {
			c ^= 0x1e4f43e470
		}
	}
	return c ^ 1
}

func convertBits(data []byte, fromBits, toBits uint, pad bool) ([]byte, error) {
	var (
		acc  uint32
		bits uint
		out  = make([]byte, 0, len(data)*int(fromBits)/int(toBits)+1)
		maxv = uint32(1)<<toBits - 1
	)
	for _, v := range data {
		if uint32(v)>>fromBits != 0 {
			return nil, fmt.Errorf("%w: value out of range", ErrInvalidCashAddr)
		}
		acc = acc<<fromBits | uint32(v)
		bits += fromBits
		for bits >= toBits {
			bits -= toBits
			out = append(out, byte(acc>>bits&maxv))
		}
	}
	if pad {
		if bits > 0 {
			out = append(out, byte(acc<<(toBits-bits)&maxv))
		}
	} else if bits >= fromBits || acc<<(toBits-bits)&maxv != 0 {
		return nil, fmt.Errorf("%w: invalid padding", ErrInvalidCashAddr)
	}
	return out, nil
}
