package models

import "time"

// NadabotRegistry is a sybil-verification registry contract, keyed by
// its account.
type NadabotRegistry struct {
	AccountID      string    `json:"account_id"`
	OwnerID        string    `json:"owner_id"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	SourceMetadata []byte    `json:"source_metadata,omitempty"`
}

// ProviderSentinelID is the duplicate placeholder id emitted by a
// migrated batch of providers upstream. Registrations carrying it get a
// locally assigned id from a persisted counter instead; see the
// provider handler.
const ProviderSentinelID = 13

// Provider is an identity-verification source, unique per
// (on_chain_id, registry).
type Provider struct {
	ID            uint64    `json:"id"`
	OnChainID     uint64    `json:"on_chain_id"`
	RegistryID    string    `json:"registry_id"`
	ContractID    string    `json:"contract_id"`
	MethodName    string    `json:"method_name"`
	Name          string    `json:"provider_name"`
	Description   *string   `json:"description,omitempty"`
	Status        string    `json:"status"`
	AdminNotes    *string   `json:"admin_notes,omitempty"`
	DefaultWeight uint64    `json:"default_weight"`
	GasAttached   *uint64   `json:"gas,omitempty"`
	SubmittedAt   time.Time `json:"submitted_at"`
	StampCount    uint64    `json:"stamp_count"`
	AccountIDArg  string    `json:"account_id_arg_name"`
	ExternalURL   *string   `json:"external_url,omitempty"`
	IconURL       *string   `json:"icon_url,omitempty"`
}

// Stamp is a user's proof of having passed a provider's verification;
// unique per (user, provider).
type Stamp struct {
	ID         uint64    `json:"id"`
	UserID     string    `json:"user_id"`
	ProviderID uint64    `json:"provider_id"`
	VerifiedAt time.Time `json:"verification_date"`
}

// BlackList bars an account from a registry; unique per
// (registry, account).
type BlackList struct {
	ID         uint64    `json:"id"`
	RegistryID string    `json:"registry_id"`
	AccountID  string    `json:"account_id"`
	Reason     *string   `json:"reason,omitempty"`
	CreatedAt  time.Time `json:"date_blacklisted"`
}

// Group bundles providers under a shared rule.
type Group struct {
	ID         uint64    `json:"id"` // on-chain group id
	RegistryID string    `json:"registry_id"`
	Name       string    `json:"name"`
	RuleType   *string   `json:"rule_type,omitempty"`
	RuleVal    *uint64   `json:"rule_val,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
