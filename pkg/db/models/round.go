package models

import "time"

// Round is a quadratic-style funding round, keyed by on-chain id.
// Structurally parallel to Pot but with voting instead of donations.
type Round struct {
	ID                  uint64     `json:"id"` // on-chain id
	FactoryID           *string    `json:"factory_id,omitempty"`
	DeployerID          string     `json:"deployer_id"`
	OwnerID             string     `json:"owner_id"`
	Name                string     `json:"name"`
	Description         string     `json:"description"`
	ContactsJSON        []byte     `json:"contacts,omitempty"`
	ExpectedAmount      string     `json:"expected_amount"`
	CurrentVaultBalance string     `json:"current_vault_balance"`
	VaultTotalDeposits  string     `json:"vault_total_deposits"`
	UseWhitelist        bool       `json:"use_whitelist"`
	UseVault            bool       `json:"use_vault"`
	NumPicksPerVoter    uint64     `json:"num_picks_per_voter"`
	MaxParticipants     uint64     `json:"max_participants"`
	ApplicationStart    *time.Time `json:"application_start,omitempty"`
	ApplicationEnd      *time.Time `json:"application_end,omitempty"`
	VotingStart         *time.Time `json:"voting_start,omitempty"`
	VotingEnd           *time.Time `json:"voting_end,omitempty"`
	ApprovedApplicants  uint64     `json:"approved_applicants_count"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// Project is a voteable entry within rounds, keyed by on-chain id.
type Project struct {
	ID        uint64    `json:"id"` // on-chain project id
	OwnerID   string    `json:"owner_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Vote is unique per (round, voter, voted_at).
type Vote struct {
	ID      uint64    `json:"id"`
	RoundID uint64    `json:"round_id"`
	VoterID string    `json:"voter_id"`
	VotedAt time.Time `json:"voted_at"`
	TxHash  string    `json:"tx_hash,omitempty"`
}

// VotePair links a vote to the project picked for a pair slot; unique
// per (vote, pair_id).
type VotePair struct {
	ID        uint64 `json:"id"`
	VoteID    uint64 `json:"vote_id"`
	PairID    uint64 `json:"pair_id"`
	ProjectID uint64 `json:"project_id"`
}
