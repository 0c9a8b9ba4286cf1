package models

import "time"

// Donation is the highest-cardinality entity. OnChainID is the id
// assigned by the contract and is scoped by pot: direct donations have
// PotID nil and their OnChainID is unique among null-pot rows; pot
// donations are unique within (on_chain_id, pot). Amounts are stored
// as decimal strings in chain-native units; the USD fields stay null
// until the deferred price-resolution job fills them.
type Donation struct {
	ID             uint64    `json:"id"`
	OnChainID      int64     `json:"on_chain_id"`
	DonorID        string    `json:"donor_id"`
	TotalAmount    string    `json:"total_amount"`
	TotalAmountUSD *string   `json:"total_amount_usd,omitempty"`
	NetAmount      string    `json:"net_amount"`
	NetAmountUSD   *string   `json:"net_amount_usd,omitempty"`
	TokenID        string    `json:"token_id"`
	PotID          *string   `json:"pot_id,omitempty"`
	MatchingPool   bool      `json:"matching_pool"`
	Message        *string   `json:"message,omitempty"`
	DonatedAt      time.Time `json:"donated_at"`
	RecipientID    *string   `json:"recipient_id,omitempty"`
	ProtocolFee    string    `json:"protocol_fee"`
	ProtocolFeeUSD *string   `json:"protocol_fee_usd,omitempty"`
	ReferrerID     *string   `json:"referrer_id,omitempty"`
	ReferrerFee    *string   `json:"referrer_fee,omitempty"`
	ReferrerFeeUSD *string   `json:"referrer_fee_usd,omitempty"`
	ChefID         *string   `json:"chef_id,omitempty"`
	ChefFee        *string   `json:"chef_fee,omitempty"`
	ChefFeeUSD     *string   `json:"chef_fee_usd,omitempty"`
	TxHash         string    `json:"tx_hash,omitempty"`
}

// DonationUSDAmounts carries the derived USD fields written by the
// price-resolution worker in a single update.
type DonationUSDAmounts struct {
	TotalAmountUSD string
	NetAmountUSD   string
	ProtocolFeeUSD string
	ReferrerFeeUSD *string
	ChefFeeUSD     *string
}

// DonationTotals is the aggregate shape read by the external stats
// recompute job.
type DonationTotals struct {
	TotalUSD string    `json:"total_usd"`
	NetUSD   string    `json:"net_usd"`
	Count    uint64    `json:"count"`
	Donors   uint64    `json:"donors"`
	LastAt   time.Time `json:"last_at"`
}
