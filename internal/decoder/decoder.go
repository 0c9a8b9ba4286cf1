// Package decoder turns raw block payloads into the closed set of
// domain events. Malformed log lines and unparseable actions are
// isolated and skipped; they never abort the remaining logs, receipts
// or the block.
package decoder

import (
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/potlock-network/potlock-indexer/pkg/near"
)

// EventJSONPrefix is the marker contracts prepend to structured event
// log lines. Lines without it are ordinary logs and are ignored.
const EventJSONPrefix = "EVENT_JSON:"

// logEvent is the NEP-297 style envelope behind the marker.
type logEvent struct {
	Standard string            `json:"standard"`
	Version  string            `json:"version"`
	Event    string            `json:"event"`
	Data     []json.RawMessage `json:"data"`
}

// logKinds maps marked-log event names to event kinds.
var logKinds = map[string]EventKind{
	"donation":            KindDirectDonation,
	"pot_donation":        KindPotDonation,
	"pot_deploy":          KindPotDeploy,
	"update_pot_config":   KindPotConfigUpdate,
	"add_or_update_group": KindGroupUpsert,
	"add_provider":        KindProviderRegister,
	"update_provider":     KindProviderUpdate,
	"add_stamp":           KindStampAdd,
	"add_blacklist":       KindBlacklistAdd,
	"create_round":        KindRoundCreate,
	"update_round":        KindRoundUpdate,
	"vote":                KindVote,
}

// methodKinds maps successful function-call method names to event
// kinds.
var methodKinds = map[string]EventKind{
	"donate":                           KindPotDonation,
	"direct_donate":                    KindDirectDonation,
	"deploy_pot":                       KindPotDeploy,
	"admin_dangerously_set_pot_config": KindPotConfigUpdate,
	"apply":                            KindNewApplication,
	"chg_application_status":           KindApplicationStatusChange,
	"chef_set_payouts":                 KindSetPayouts,
	"set_payouts":                      KindSetPayouts,
	"transfer_payout_callback":         KindTransferPayout,
	"challenge_payouts":                KindPayoutChallenge,
	"admin_respond_payout_challenge":   KindChallengeResponse,
	"create_list":                      KindListCreate,
	"register_batch":                   KindListRegistrationBatch,
	"update_registration":              KindListRegistrationUpdate,
	"upvote":                           KindListUpvote,
	"register_provider":                KindProviderRegister,
	"update_provider":                  KindProviderUpdate,
	"add_stamp":                        KindStampAdd,
	"add_to_blacklist":                 KindBlacklistAdd,
	"add_or_update_group":              KindGroupUpsert,
	"create_round":                     KindRoundCreate,
	"update_round":                     KindRoundUpdate,
	"vote":                             KindVote,
}

// DecodeBlock extracts the ordered event sequence from one block.
// Shards are walked in order, receipts within each shard in order, and
// a receipt's marked logs come before its actions. Receipts that did
// not execute successfully are skipped wholesale.
func DecodeBlock(block *near.Block) []Event {
	var events []Event
	blockTime := block.Header.Time()

	for _, shard := range block.Shards {
		for _, ro := range shard.ReceiptExecutionOutcomes {
			if !ro.Outcome.Status.Succeeded() {
				continue
			}

			ctx := Context{
				SignerID:    ro.Receipt.SignerID,
				ReceiverID:  ro.Receipt.ReceiverID,
				ReceiptID:   ro.Receipt.ReceiptID,
				TxHash:      ro.Outcome.TxHash,
				BlockHeight: block.Header.Height,
				BlockTime:   blockTime,
			}
			if ctx.SignerID == "" {
				ctx.SignerID = ro.Receipt.PredecessorID
			}

			events = append(events, decodeLogs(ro, ctx)...)
			events = append(events, decodeActions(ro, ctx)...)
		}
	}
	return events
}

// decodeLogs extracts events from a receipt's marked log lines. A
// marked line that fails to parse is logged and skipped on its own.
func decodeLogs(ro near.ReceiptOutcome, ctx Context) []Event {
	var events []Event
	for _, line := range ro.Outcome.Logs {
		if !strings.HasPrefix(line, EventJSONPrefix) {
			continue
		}

		var ev logEvent
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, EventJSONPrefix)), &ev); err != nil {
			slog.Warn("skipping malformed event log",
				"receipt_id", ctx.ReceiptID,
				"receiver", ctx.ReceiverID,
				"err", err,
			)
			continue
		}

		kind, ok := logKinds[ev.Event]
		if !ok {
			// Unknown event names are forward-compatible noise.
			continue
		}

		for _, data := range ev.Data {
			events = append(events, Event{Kind: kind, Payload: data, Ctx: ctx})
		}
	}
	return events
}

// decodeActions extracts events from a receipt's function calls. A
// failure decoding one action's args skips that action independently.
func decodeActions(ro near.ReceiptOutcome, ctx Context) []Event {
	var events []Event
	for _, action := range ro.Receipt.Actions {
		kind, ok := methodKinds[action.MethodName]
		if !ok {
			continue
		}

		args, err := action.DecodeArgs()
		if err != nil {
			slog.Warn("skipping unparseable action args",
				"receipt_id", ctx.ReceiptID,
				"method", action.MethodName,
				"err", err,
			)
			continue
		}
		if !json.Valid(args) {
			slog.Warn("skipping non-JSON action args",
				"receipt_id", ctx.ReceiptID,
				"method", action.MethodName,
			)
			continue
		}

		actionCtx := ctx
		actionCtx.Deposit = action.Deposit
		events = append(events, Event{Kind: kind, Payload: args, Ctx: actionCtx})
	}
	return events
}
