package models

import (
	"encoding/json"
	"time"
)

// Account is a chain address. Nearly every other entity references one;
// accounts are created lazily with defaults the first time any handler
// sees the address, and enriched later. Never deleted.
type Account struct {
	ID                          string          `json:"id"` // chain address
	TotalDonationsInUSD         string          `json:"total_donations_in_usd"`
	TotalDonationsOutUSD        string          `json:"total_donations_out_usd"`
	TotalMatchingPoolAllocksUSD string          `json:"total_matching_pool_allocations_usd"`
	DonorsCount                 uint64          `json:"donors_count"`
	NearSocialProfileData       json.RawMessage `json:"near_social_profile_data,omitempty"`
}

// Token is a fungible token contract, keyed by its owning account.
// Metadata fields are filled on first sight via ft_metadata and stay
// null when the lookup fails (backfilled later).
type Token struct {
	AccountID   string  `json:"account_id"`
	Decimals    *int    `json:"decimals,omitempty"`
	Name        *string `json:"name,omitempty"`
	Symbol      *string `json:"symbol,omitempty"`
	Icon        *string `json:"icon,omitempty"`
	CoingeckoID *string `json:"coingecko_id,omitempty"`
}

// NativeTokenID is the account id used for the chain's native unit.
const NativeTokenID = "near"

// TokenHistoricalPrice is an append-only USD price observation, used as
// a cache so repeated lookups within a window skip the external call.
type TokenHistoricalPrice struct {
	ID        uint64    `json:"id"`
	TokenID   string    `json:"token_id"`
	Timestamp time.Time `json:"timestamp"`
	PriceUSD  string    `json:"price_usd"`
}
