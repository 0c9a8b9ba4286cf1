package models

import "time"

// PotFactory deploys pots. Keyed by its account.
type PotFactory struct {
	AccountID        string    `json:"account_id"`
	OwnerID          string    `json:"owner_id"`
	DeployedAt       time.Time `json:"deployed_at"`
	SourceMetadata   []byte    `json:"source_metadata,omitempty"`
	ProtocolFeeBasis uint64    `json:"protocol_fee_basis_points"`
	ProtocolFeeRecip string    `json:"protocol_fee_recipient,omitempty"`
	RequireWhitelist bool      `json:"require_whitelist"`
}

// Pot is a matching-funds contract instance, keyed by its account.
// Created once on deploy; config updates mutate it in place. Aggregate
// fields are recomputed by an external batch job, never inline.
type Pot struct {
	AccountID                string     `json:"account_id"`
	FactoryID                *string    `json:"pot_factory_id,omitempty"`
	DeployerID               string     `json:"deployer_id"`
	OwnerID                  string     `json:"owner_id"`
	ChefID                   *string    `json:"chef_id,omitempty"`
	Name                     string     `json:"name"`
	Description              string     `json:"description"`
	MaxApprovedApplicants    uint64     `json:"max_approved_applicants"`
	BaseCurrency             *string    `json:"base_currency,omitempty"`
	ApplicationStart         *time.Time `json:"application_start,omitempty"`
	ApplicationEnd           *time.Time `json:"application_end,omitempty"`
	MatchingRoundStart       *time.Time `json:"matching_round_start,omitempty"`
	MatchingRoundEnd         *time.Time `json:"matching_round_end,omitempty"`
	RegistryProviderID       *string    `json:"registry_provider,omitempty"`
	MinMatchingPoolDonation  string     `json:"min_matching_pool_donation_amount"`
	SybilWrapperProviderID   *string    `json:"sybil_wrapper_provider,omitempty"`
	CustomSybilChecks        *string    `json:"custom_sybil_checks,omitempty"`
	CustomMinThreshold       *uint64    `json:"custom_min_threshold_score,omitempty"`
	ReferralFeeMatchingBPS   uint64     `json:"referral_fee_matching_pool_basis_points"`
	ReferralFeePublicBPS     uint64     `json:"referral_fee_public_round_basis_points"`
	ChefFeeBPS               uint64     `json:"chef_fee_basis_points"`
	TotalMatchingPool        string     `json:"total_matching_pool"`
	TotalMatchingPoolUSD     *string    `json:"total_matching_pool_usd,omitempty"`
	MatchingPoolBalance      string     `json:"matching_pool_balance"`
	MatchingPoolDonationsCnt uint64     `json:"matching_pool_donations_count"`
	TotalPublicDonations     string     `json:"total_public_donations"`
	TotalPublicDonationsUSD  *string    `json:"total_public_donations_usd,omitempty"`
	PublicDonationsCount     uint64     `json:"public_donations_count"`
	CooldownEnd              *time.Time `json:"cooldown_end,omitempty"`
	CooldownPeriodMs         *uint64    `json:"cooldown_period_ms,omitempty"`
	AllPaidOut               bool       `json:"all_paid_out"`
	ProtocolConfigProviderID *string    `json:"protocol_config_provider,omitempty"`
	DeployedAt               time.Time  `json:"deployed_at"`
}

// ApplicationStatus is the lifecycle state of a pot application.
type ApplicationStatus string

const (
	ApplicationPending  ApplicationStatus = "Pending"
	ApplicationApproved ApplicationStatus = "Approved"
	ApplicationRejected ApplicationStatus = "Rejected"
	ApplicationInReview ApplicationStatus = "InReview"
)

// PotApplication is unique per (pot, applicant). Status holds only the
// latest transition; the full history lives in PotApplicationReview.
type PotApplication struct {
	ID          uint64            `json:"id"`
	PotID       string            `json:"pot_id"`
	ApplicantID string            `json:"applicant_id"`
	Message     *string           `json:"message,omitempty"`
	Status      ApplicationStatus `json:"status"`
	SubmittedAt time.Time         `json:"submitted_at"`
	UpdatedAt   *time.Time        `json:"updated_at,omitempty"`
	TxHash      string            `json:"tx_hash,omitempty"`
}

// PotApplicationReview is an append-only status-transition record, one
// row per (application, reviewer, reviewed_at).
type PotApplicationReview struct {
	ID            uint64            `json:"id"`
	ApplicationID uint64            `json:"application_id"`
	ReviewerID    string            `json:"reviewer_id"`
	Notes         *string           `json:"notes,omitempty"`
	Status        ApplicationStatus `json:"status"`
	ReviewedAt    time.Time         `json:"reviewed_at"`
	TxHash        string            `json:"tx_hash,omitempty"`
}

// PotPayout is a matching-pool payout to a recipient. Amount is stored
// in chain-native precision; AmountUSD is filled asynchronously.
type PotPayout struct {
	ID          uint64     `json:"id"`
	PotID       string     `json:"pot_id"`
	RecipientID string     `json:"recipient_id"`
	Amount      string     `json:"amount"`
	AmountUSD   *string    `json:"amount_paid_usd,omitempty"`
	TokenID     string     `json:"token_id"`
	PaidAt      *time.Time `json:"paid_at,omitempty"`
	TxHash      *string    `json:"tx_hash,omitempty"`
}

// PotPayoutChallenge is unique per (challenger, pot).
type PotPayoutChallenge struct {
	ID           uint64    `json:"id"`
	ChallengerID string    `json:"challenger_id"`
	PotID        string    `json:"pot_id"`
	Message      string    `json:"message"`
	CreatedAt    time.Time `json:"created_at"`
}

// PotPayoutChallengeAdminResponse appends admin responses to a
// challenge.
type PotPayoutChallengeAdminResponse struct {
	ID           uint64    `json:"id"`
	ChallengerID string    `json:"challenger_id"`
	PotID        string    `json:"pot_id"`
	AdminID      string    `json:"admin_id"`
	Message      string    `json:"message"`
	ResolveChall bool      `json:"resolve_challenge"`
	CreatedAt    time.Time `json:"created_at"`
	TxHash       string    `json:"tx_hash,omitempty"`
}
