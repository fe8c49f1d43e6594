package pkg

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// SatoshiPerCoin 1 BCH = 1e8 satoshi
const SatoshiPerCoin = 100000000

var satoshiPerCoin = decimal.NewFromInt(SatoshiPerCoin)

// CoinToSatoshi 将接口返回的币数量 (如 0.0001) 转为 satoshi, 不允许小数 satoshi
func CoinToSatoshi(coin decimal.Decimal) (int64, error) {
	sat := coin.Mul(satoshiPerCoin)
	if !sat.Equal(sat.Truncate(0)) {
		return 0, fmt.Errorf("amount %s has sub-satoshi precision", coin.String())
	}
	return sat.IntPart(), nil
}

// FloatToSatoshi 同 CoinToSatoshi, 用于 btcjson 的 float64 金额
func FloatToSatoshi(coin float64) (int64, error) {
	return CoinToSatoshi(decimal.NewFromFloat(coin).Round(8))
}

// SatoshiToCoin 格式化为 8 位小数
func SatoshiToCoin(sat int64) string {
	return decimal.New(sat, -8).StringFixed(8)
}
