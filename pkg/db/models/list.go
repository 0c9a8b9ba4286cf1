package models

import "time"

// RegistrationStatus is the lifecycle state of a list registration.
type RegistrationStatus string

const (
	RegistrationPending      RegistrationStatus = "Pending"
	RegistrationApproved     RegistrationStatus = "Approved"
	RegistrationRejected     RegistrationStatus = "Rejected"
	RegistrationGraylisted   RegistrationStatus = "Graylisted"
	RegistrationBlacklisted  RegistrationStatus = "Blacklisted"
	RegistrationUnregistered RegistrationStatus = "Unregistered"
)

// List is an on-chain registry list, keyed by the contract-assigned id.
type List struct {
	ID               uint64             `json:"id"` // on-chain id, globally unique
	OwnerID          string             `json:"owner_id"`
	Name             string             `json:"name"`
	Description      *string            `json:"description,omitempty"`
	CoverImageURL    *string            `json:"cover_image_url,omitempty"`
	AdminOnlyRegs    bool               `json:"admin_only_registrations"`
	DefaultRegStatus RegistrationStatus `json:"default_registration_status"`
	CreatedAt        time.Time          `json:"created_at"`
	UpdatedAt        time.Time          `json:"updated_at"`
}

// ListRegistration is unique per (list, registrant).
type ListRegistration struct {
	ID              uint64             `json:"id"` // on-chain registration id
	ListID          uint64             `json:"list_id"`
	RegistrantID    string             `json:"registrant_id"`
	RegisteredBy    string             `json:"registered_by"`
	Status          RegistrationStatus `json:"status"`
	SubmittedAt     time.Time          `json:"submitted_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
	RegistrantNotes *string            `json:"registrant_notes,omitempty"`
	AdminNotes      *string            `json:"admin_notes,omitempty"`
	TxHash          string             `json:"tx_hash,omitempty"`
}

// ListUpvote is unique per (list, account).
type ListUpvote struct {
	ID        uint64    `json:"id"`
	ListID    uint64    `json:"list_id"`
	AccountID string    `json:"account_id"`
	CreatedAt time.Time `json:"created_at"`
}
