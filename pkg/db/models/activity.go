package models

import (
	"encoding/json"
	"time"
)

// ActivityType is the closed set of audited actions.
type ActivityType string

const (
	ActivityDonateDirect          ActivityType = "Donate_Direct"
	ActivityDonatePotPublic       ActivityType = "Donate_Pot_Public"
	ActivityDonatePotMatchingPool ActivityType = "Donate_Pot_Matching_Pool"
	ActivityDeployPot             ActivityType = "Deploy_Pot"
	ActivityUpdatePotConfig       ActivityType = "Update_Pot_Config"
	ActivitySubmitApplication     ActivityType = "Submit_Application"
	ActivityUpdateApplication     ActivityType = "Update_Application"
	ActivityProcessPayouts        ActivityType = "Process_Payouts"
	ActivityTransferPayout        ActivityType = "Transfer_Payout"
	ActivityChallengePayout       ActivityType = "Challenge_Payout"
	ActivityCreateList            ActivityType = "Create_List"
	ActivityRegister              ActivityType = "Register"
	ActivityRegisterBatch         ActivityType = "Register_Batch"
	ActivityUpvote                ActivityType = "Upvote"
)

// Activity is an audit record of a decoded action. Uniqueness is
// enforced on (action_result, type): two identical payloads of the same
// type collapse into one row even when they happened at different
// times. That constraint is carried over from the original schema as a
// dedup heuristic; see DESIGN.md for why it is preserved as is.
type Activity struct {
	ID           uint64          `json:"id"`
	SignerID     string          `json:"signer_id"`
	ReceiverID   string          `json:"receiver_id"`
	Timestamp    time.Time       `json:"timestamp"`
	ActionResult json.RawMessage `json:"action_result,omitempty"`
	TxHash       string          `json:"tx_hash,omitempty"`
	Type         ActivityType    `json:"type"`
}
