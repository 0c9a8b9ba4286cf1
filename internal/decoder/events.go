package decoder

import (
	"encoding/json"
	"time"
)

// EventKind is the closed set of domain events the indexer understands.
// Dispatch over kinds is a fixed table; anything the decoder cannot
// classify never becomes an Event.
type EventKind string

const (
	KindPotDeploy               EventKind = "pot_deploy"
	KindPotConfigUpdate         EventKind = "pot_config_update"
	KindNewApplication          EventKind = "new_application"
	KindApplicationStatusChange EventKind = "application_status_change"
	KindSetPayouts              EventKind = "set_payouts"
	KindTransferPayout          EventKind = "transfer_payout"
	KindPayoutChallenge         EventKind = "payout_challenge"
	KindChallengeResponse       EventKind = "challenge_response"
	KindDirectDonation          EventKind = "direct_donation"
	KindPotDonation             EventKind = "pot_donation"
	KindListCreate              EventKind = "list_create"
	KindListRegistrationBatch   EventKind = "list_registration_batch"
	KindListRegistrationUpdate  EventKind = "list_registration_update"
	KindListUpvote              EventKind = "list_upvote"
	KindRoundCreate             EventKind = "round_create"
	KindRoundUpdate             EventKind = "round_update"
	KindVote                    EventKind = "vote"
	KindProviderRegister        EventKind = "provider_register"
	KindProviderUpdate          EventKind = "provider_update"
	KindStampAdd                EventKind = "stamp_add"
	KindBlacklistAdd            EventKind = "blacklist_add"
	KindGroupUpsert             EventKind = "group_upsert"
)

// Kinds lists every event kind; the router test checks the dispatch
// table covers all of them.
var Kinds = []EventKind{
	KindPotDeploy, KindPotConfigUpdate, KindNewApplication,
	KindApplicationStatusChange, KindSetPayouts, KindTransferPayout,
	KindPayoutChallenge, KindChallengeResponse, KindDirectDonation,
	KindPotDonation, KindListCreate, KindListRegistrationBatch,
	KindListRegistrationUpdate, KindListUpvote, KindRoundCreate,
	KindRoundUpdate, KindVote, KindProviderRegister, KindProviderUpdate,
	KindStampAdd, KindBlacklistAdd, KindGroupUpsert,
}

// Context carries the receipt-level metadata every handler needs.
type Context struct {
	SignerID    string
	ReceiverID  string
	ReceiptID   string
	TxHash      string
	BlockHeight uint64
	BlockTime   time.Time
	Deposit     string
}

// Event is one decoded domain event: a kind, the raw JSON payload for
// the matching handler to unmarshal, and the receipt context.
type Event struct {
	Kind    EventKind
	Payload json.RawMessage
	Ctx     Context
}
