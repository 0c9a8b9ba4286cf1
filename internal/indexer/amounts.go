package indexer

import (
	"fmt"
	"math/big"
	"time"

	"github.com/potlock-network/potlock-indexer/internal/decoder"
)

// parseAmount parses a chain-native integer-string amount. Empty and
// absent values count as zero; fees are frequently omitted upstream.
func parseAmount(s string) (*big.Int, error) {
	if s == "" {
		return big.NewInt(0), nil
	}
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	return n, nil
}

// computeNetAmount derives net = total - protocol - referrer - chef in
// chain-native units. Used when the upstream payload omits net_amount.
func computeNetAmount(total, protocolFee, referrerFee, chefFee string) (string, error) {
	t, err := parseAmount(total)
	if err != nil {
		return "", fmt.Errorf("total_amount: %w", err)
	}
	p, err := parseAmount(protocolFee)
	if err != nil {
		return "", fmt.Errorf("protocol_fee: %w", err)
	}
	r, err := parseAmount(referrerFee)
	if err != nil {
		return "", fmt.Errorf("referrer_fee: %w", err)
	}
	c, err := parseAmount(chefFee)
	if err != nil {
		return "", fmt.Errorf("chef_fee: %w", err)
	}

	net := new(big.Int).Sub(t, p)
	net.Sub(net, r)
	net.Sub(net, c)
	return net.String(), nil
}

// msTime converts a millisecond epoch timestamp; zero maps to nil.
func msTime(ms uint64) *time.Time {
	if ms == 0 {
		return nil
	}
	t := time.UnixMilli(int64(ms)).UTC()
	return &t
}

// orBlockTime falls back to the block timestamp when a payload omits
// its own millisecond timestamp.
func orBlockTime(t *time.Time, ev decoder.Event) time.Time {
	if t != nil {
		return *t
	}
	return ev.Ctx.BlockTime
}

// strPtr returns nil for empty strings, keeping optional text fields
// null in the store instead of "".
func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
