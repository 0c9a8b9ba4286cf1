package worker

import (
	"fmt"
	"math/big"
)

// nativeDecimals is the decimal scale of the chain's native unit.
const nativeDecimals = 24

// usdValue converts a chain-native integer-string amount into a USD
// decimal string: amount / 10^decimals * price. Amounts exceed uint64
// range routinely, so the whole computation runs on big.Float.
func usdValue(amount string, decimals int, priceUSD string) (string, error) {
	if amount == "" {
		amount = "0"
	}
	amt, _, err := big.ParseFloat(amount, 10, 256, big.ToNearestEven)
	if err != nil {
		return "", fmt.Errorf("invalid amount %q: %w", amount, err)
	}
	price, _, err := big.ParseFloat(priceUSD, 10, 256, big.ToNearestEven)
	if err != nil {
		return "", fmt.Errorf("invalid price %q: %w", priceUSD, err)
	}

	scale := new(big.Float).SetPrec(256).SetInt(
		new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))

	v := new(big.Float).SetPrec(256).Quo(amt, scale)
	v.Mul(v, price)
	return v.Text('f', 8), nil
}
